package encoder

import (
	"fmt"

	"github.com/MasterXiong/varibad/network"
)

// Config implements a configuration of an RNNEncoder
type Config struct {
	// Embedding sizes of each input modality. An embedding size of 0
	// passes the modality to the recurrent core unchanged.
	ActionEmbedSize int
	StateEmbedSize  int
	RewardEmbedSize int

	// Fully connected layers before and after the GRU
	LayersBeforeGRU []int
	LayersAfterGRU  []int

	HiddenSize int
	LatentDim  int

	// Activation of the embedders and the fully connected layers
	Activation string
}

// DefaultConfig returns the default encoder configuration
func DefaultConfig() Config {
	return Config{
		ActionEmbedSize: 10,
		StateEmbedSize:  10,
		RewardEmbedSize: 5,
		LayersBeforeGRU: nil,
		LayersAfterGRU:  nil,
		HiddenSize:      128,
		LatentDim:       5,
		Activation:      "relu",
	}
}

// Validate checks the Config for errors
func (c Config) Validate() error {
	if c.ActionEmbedSize < 0 || c.StateEmbedSize < 0 || c.RewardEmbedSize < 0 {
		return fmt.Errorf("validate: embedding sizes must be non-negative")
	}
	if c.HiddenSize <= 0 {
		return fmt.Errorf("validate: invalid hidden size %v", c.HiddenSize)
	}
	if c.LatentDim <= 0 {
		return fmt.Errorf("validate: invalid latent dim %v", c.LatentDim)
	}
	for _, size := range append(append([]int{}, c.LayersBeforeGRU...),
		c.LayersAfterGRU...) {
		if size <= 0 {
			return fmt.Errorf("validate: invalid layer size %v", size)
		}
	}
	if _, err := network.ParseActivation(c.Activation); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	return nil
}
