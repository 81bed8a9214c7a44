package experiment

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/MasterXiong/varibad/agent/a2c"
	"github.com/MasterXiong/varibad/buffer/gae"
	"github.com/MasterXiong/varibad/buffer/rollout"
	"github.com/MasterXiong/varibad/environment/gridnavi"
	"github.com/MasterXiong/varibad/policy"
	"github.com/MasterXiong/varibad/vae"
)

// Config represents a configuration of a meta-learning experiment
type Config struct {
	Seed uint64

	// Number of policy updates
	NumIterations int

	// Number of episodes of each task. A task and its belief form a
	// single trajectory of the VAE.
	MaxRolloutsPerTask int

	// Number of iterations between VAE updates
	VAEUpdateEvery int

	// PretrainLen is the number of iterations at the start of the
	// experiment during which only the VAE is updated
	PretrainLen int

	// Number of iterations between checkpoints of the policy and the
	// VAE, or 0 for no checkpoints
	SaveInterval int

	// Number of iterations between tracked metrics
	LogInterval int

	// SampleEmbeddings passes a sampled latent to the policy instead of
	// the concatenated mean and log-variance of the belief
	SampleEmbeddings bool

	// Directory in which metrics and checkpoints are saved
	OutDir string

	Env       gridnavi.Config
	VAE       vae.Config
	VAEBuffer rollout.Config
	Policy    policy.Config
	Storage   gae.Config
	A2C       a2c.Config
}

// DefaultConfig returns the default configuration of a meta-learning
// experiment on a 5 x 5 GridNavi
func DefaultConfig() Config {
	env := gridnavi.DefaultConfig()
	rolloutsPerTask := 4
	trajLen := rolloutsPerTask * env.EpisodeLen

	return Config{
		Seed:               0,
		NumIterations:      2000,
		MaxRolloutsPerTask: rolloutsPerTask,
		VAEUpdateEvery:     1,
		PretrainLen:        0,
		SaveInterval:       500,
		LogInterval:        25,
		SampleEmbeddings:   false,
		OutDir:             ".",

		Env: env,
		VAE: vae.DefaultConfig(),
		VAEBuffer: rollout.Config{
			MaxRollouts:      1000,
			MaxTrajectoryLen: trajLen,
			MinRollouts:      1,
			AddThreshold:     1,
			Selector:         rollout.Uniform,
		},
		Policy: policy.DefaultConfig(),
		Storage: gae.Config{
			NumSteps: trajLen,
			Gamma:    0.95,
			Lambda:   0.95,
		},
		A2C: a2c.DefaultConfig(),
	}
}

// Validate checks the Config for errors
func (c Config) Validate() error {
	if c.NumIterations <= 0 {
		return fmt.Errorf("validate: number of iterations must be positive, "+
			"got %d", c.NumIterations)
	}
	if c.MaxRolloutsPerTask <= 0 {
		return fmt.Errorf("validate: rollouts per task must be positive, "+
			"got %d", c.MaxRolloutsPerTask)
	}
	if c.VAEUpdateEvery <= 0 {
		return fmt.Errorf("validate: VAE update interval must be positive, "+
			"got %d", c.VAEUpdateEvery)
	}
	if c.PretrainLen < 0 || c.SaveInterval < 0 || c.LogInterval < 0 {
		return fmt.Errorf("validate: pretraining length, save interval, " +
			"and log interval must be non-negative")
	}

	if err := c.Env.Validate(); err != nil {
		return fmt.Errorf("validate: env: %v", err)
	}
	if err := c.VAE.Validate(); err != nil {
		return fmt.Errorf("validate: vae: %v", err)
	}
	if err := c.VAEBuffer.Validate(); err != nil {
		return fmt.Errorf("validate: vae buffer: %v", err)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("validate: policy: %v", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("validate: storage: %v", err)
	}
	if err := c.A2C.Validate(); err != nil {
		return fmt.Errorf("validate: a2c: %v", err)
	}

	if trajLen := c.MaxRolloutsPerTask * c.Env.EpisodeLen; c.VAEBuffer.
		MaxTrajectoryLen < trajLen {
		return fmt.Errorf("validate: vae buffer trajectories of %d steps "+
			"cannot hold %d episodes of %d steps",
			c.VAEBuffer.MaxTrajectoryLen, c.MaxRolloutsPerTask,
			c.Env.EpisodeLen)
	}
	return nil
}

// Load reads a Config from the JSON file filename. Fields missing from
// the file keep their default values.
func Load(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("load: %v", err)
	}

	c := DefaultConfig()
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("load: %v", err)
	}
	return c, nil
}

// Save writes the Config to the JSON file filename
func (c Config) Save(filename string) error {
	data, err := json.MarshalIndent(c, "", "\t")
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}
