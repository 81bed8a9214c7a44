package a2c

import (
	"fmt"

	"github.com/MasterXiong/varibad/solver"
)

// Config implements a configuration of an A2C learner
type Config struct {
	ValueLossCoeff float64
	EntropyCoeff   float64

	Solver *solver.Solver
}

// DefaultConfig returns the default A2C configuration, which steps
// the policy with RMSProp
func DefaultConfig() Config {
	rmsprop, err := solver.NewRMSProp(7e-4, 1e-5, 0.99, 1, 0.5)
	if err != nil {
		panic(fmt.Sprintf("defaultconfig: %v", err))
	}
	return Config{
		ValueLossCoeff: 0.5,
		EntropyCoeff:   0.01,
		Solver:         rmsprop,
	}
}

// Validate checks the Config for errors
func (c Config) Validate() error {
	if c.ValueLossCoeff < 0 {
		return fmt.Errorf("validate: value loss coefficient must be "+
			"non-negative, got %v", c.ValueLossCoeff)
	}
	if c.EntropyCoeff < 0 {
		return fmt.Errorf("validate: entropy coefficient must be "+
			"non-negative, got %v", c.EntropyCoeff)
	}
	if c.Solver == nil {
		return fmt.Errorf("validate: no solver")
	}
	return nil
}
