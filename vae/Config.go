package vae

import (
	"fmt"

	"github.com/MasterXiong/varibad/decoder"
	"github.com/MasterXiong/varibad/encoder"
	"github.com/MasterXiong/varibad/solver"
)

// Config implements a configuration of a VAE
type Config struct {
	Encoder       encoder.Config
	StateDecoder  decoder.StateConfig
	RewardDecoder decoder.RewardConfig
	TaskDecoder   decoder.TaskConfig

	Strategy Strategy

	// Which decoders are used
	DecodeReward bool
	DecodeState  bool
	DecodeTask   bool

	// Loss weights
	RewLossCoeff   float64
	StateLossCoeff float64
	TaskLossCoeff  float64
	KLWeight       float64

	// KLToGaussPrior penalises every belief against a standard normal.
	// Otherwise each belief is penalised against the belief before it.
	KLToGaussPrior bool

	// LearnPrior removes the KL term of the prior belief when beliefs
	// are penalised against the belief before them
	LearnPrior bool

	// DecodeOnlyPast decodes only the steps the encoder has seen at
	// each ELBO term instead of the whole trajectory
	DecodeOnlyPast bool

	// DisableStochasticityInLatent decodes from the concatenated mean
	// and log-variance of each belief instead of from a sample
	DisableStochasticityInLatent bool

	DisableKLTerm bool

	NumVAEUpdates    int
	VAEBatchNumTrajs int

	// NumEncLen is the number of ELBO terms sampled per trajectory, or
	// <= 0 to use every term
	NumEncLen int

	// LogInterval is the number of iterations between metric emissions
	LogInterval int

	Solver *solver.Solver
}

// DefaultConfig returns the default VAE configuration, which decodes
// rewards with a deterministic single-head decoder
func DefaultConfig() Config {
	adam, err := solver.NewDefaultAdam(1e-3, 1)
	if err != nil {
		panic(fmt.Sprintf("defaultconfig: %v", err))
	}

	return Config{
		Encoder: encoder.DefaultConfig(),
		StateDecoder: decoder.StateConfig{
			Layers:          []int{32, 32},
			StateEmbedSize:  10,
			ActionEmbedSize: 10,
			Mode:            decoder.StateDeterministic,
		},
		RewardDecoder: decoder.RewardConfig{
			Layers:          []int{64, 32},
			StateEmbedSize:  10,
			ActionEmbedSize: 10,
			Mode:            decoder.RewardDeterministic,
			InputPrevState:  true,
			InputAction:     true,
		},
		TaskDecoder: decoder.TaskConfig{
			Layers: []int{32, 32},
			Mode:   decoder.TaskDescription,
		},

		Strategy:     SplitByTask,
		DecodeReward: true,

		RewLossCoeff:   1.0,
		StateLossCoeff: 1.0,
		TaskLossCoeff:  1.0,
		KLWeight:       0.1,

		KLToGaussPrior: false,
		LearnPrior:     false,

		NumVAEUpdates:    3,
		VAEBatchNumTrajs: 10,
		NumEncLen:        0,
		LogInterval:      25,

		Solver: adam,
	}
}

// Validate checks the Config for errors
func (c Config) Validate() error {
	if err := c.Encoder.Validate(); err != nil {
		return fmt.Errorf("validate: encoder: %v", err)
	}
	if c.DecodeState {
		if err := c.StateDecoder.Validate(); err != nil {
			return fmt.Errorf("validate: state decoder: %v", err)
		}
	}
	if c.DecodeReward {
		if err := c.RewardDecoder.Validate(); err != nil {
			return fmt.Errorf("validate: reward decoder: %v", err)
		}
	}
	if c.DecodeTask {
		if err := c.TaskDecoder.Validate(); err != nil {
			return fmt.Errorf("validate: task decoder: %v", err)
		}
	}

	switch c.Strategy {
	case WholeBatch:
		if c.DecodeOnlyPast {
			return fmt.Errorf("validate: %v strategy cannot decode only the "+
				"past", c.Strategy)
		}
	case SplitByTask, SplitByELBO:
	default:
		return fmt.Errorf("validate: unknown strategy %v", c.Strategy)
	}

	if c.NumVAEUpdates < 0 || c.VAEBatchNumTrajs < 0 || c.LogInterval < 0 {
		return fmt.Errorf("validate: update counts must be non-negative")
	}
	if c.Solver == nil {
		return fmt.Errorf("validate: no solver specified")
	}
	return nil
}

// decoding returns whether any decoder is enabled
func (c Config) decoding() bool {
	return c.DecodeReward || c.DecodeState || c.DecodeTask
}

// klEnabled returns whether the KL term contributes to the loss
func (c Config) klEnabled() bool {
	return !c.DisableKLTerm && !c.DisableStochasticityInLatent
}
