package policy

import (
	"encoding/json"
	"fmt"

	"github.com/MasterXiong/varibad/initwfn"
	"github.com/MasterXiong/varibad/network"
)

// ActionSpace describes the actions a Policy selects. Discrete action
// spaces have N actions, selected as a single index column. Continuous
// action spaces have N action dimensions.
type ActionSpace struct {
	Discrete bool
	N        int
}

// Validate checks the ActionSpace for errors
func (a ActionSpace) Validate() error {
	if a.N <= 0 {
		return fmt.Errorf("validate: action space must have a positive "+
			"size, got %d", a.N)
	}
	return nil
}

// Dim returns the number of columns of a batch of actions
func (a ActionSpace) Dim() int {
	if a.Discrete {
		return 1
	}
	return a.N
}

// InputDims holds the feature dimensions of each input modality of a
// Policy
type InputDims struct {
	State  int
	Latent int
	Belief int
	Task   int
}

// Config implements a configuration of a Policy
type Config struct {
	PassStateToPolicy  bool
	PassLatentToPolicy bool
	PassBeliefToPolicy bool
	PassTaskToPolicy   bool

	NormStateForPolicy  bool
	NormLatentForPolicy bool
	NormBeliefForPolicy bool
	NormTaskForPolicy   bool

	// Embedding sizes of each input modality. An embedding size of 0
	// passes the modality to the actor and critic unchanged.
	StateEmbeddingDim  int
	LatentEmbeddingDim int
	BeliefEmbeddingDim int
	TaskEmbeddingDim   int

	// Hidden layers of both the actor and the critic
	Layers     []int
	Activation string

	// Weight initialisation of the actor and the critic, one of
	// "orthogonal" or "normc"
	Init string

	// Initial and minimum standard deviations of Gaussian policies
	InitStd float64
	MinStd  float64

	// NormActionsPreSampling squashes the mean of Gaussian policies
	// with tanh
	NormActionsPreSampling bool

	// NormActionsPostSampling squashes the actions of Gaussian policies
	// with tanh after sampling. Policies still return and evaluate the
	// unsquashed actions; EnvAction squashes them for the environment.
	NormActionsPostSampling bool
}

// DefaultConfig returns the default policy configuration, which acts
// on the state and the latent task variable
func DefaultConfig() Config {
	return Config{
		PassStateToPolicy:   true,
		PassLatentToPolicy:  true,
		NormStateForPolicy:  true,
		NormLatentForPolicy: true,
		StateEmbeddingDim:   0,
		LatentEmbeddingDim:  0,
		Layers:              []int{32, 32},
		Activation:          "tanh",
		Init:                "normc",
		InitStd:             1.0,
		MinStd:              1e-6,
	}
}

// Validate checks the Config for errors
func (c Config) Validate() error {
	if !c.PassStateToPolicy && !c.PassLatentToPolicy &&
		!c.PassBeliefToPolicy && !c.PassTaskToPolicy {
		return fmt.Errorf("validate: policy must receive at least one input")
	}
	if c.StateEmbeddingDim < 0 || c.LatentEmbeddingDim < 0 ||
		c.BeliefEmbeddingDim < 0 || c.TaskEmbeddingDim < 0 {
		return fmt.Errorf("validate: embedding sizes must be non-negative")
	}
	if len(c.Layers) == 0 {
		return fmt.Errorf("validate: policy must have at least one hidden " +
			"layer")
	}
	for _, size := range c.Layers {
		if size <= 0 {
			return fmt.Errorf("validate: invalid layer size %v", size)
		}
	}
	if _, err := network.ParseActivation(c.Activation); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if _, err := initwfn.Scheme(c.Init, 1.0); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.InitStd <= 0 {
		return fmt.Errorf("validate: initial standard deviation must be "+
			"positive, got %v", c.InitStd)
	}
	if c.MinStd < 0 {
		return fmt.Errorf("validate: minimum standard deviation must be "+
			"non-negative, got %v", c.MinStd)
	}
	return nil
}

// String implements the Stringer interface
func (c Config) String() string {
	out, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%+v", map[string]interface{}{"error": err})
	}
	return string(out)
}
