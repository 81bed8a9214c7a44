package gridnavi

import "fmt"

// Config implements a configuration of a GridNavi environment
type Config struct {
	// Number of cells along each side of the square grid
	NumCells int

	// Number of steps in an episode
	EpisodeLen int

	GoalReward float64
	StepReward float64
	Discount   float64
}

// DefaultConfig returns the default 5 x 5 GridNavi configuration
func DefaultConfig() Config {
	return Config{
		NumCells:   5,
		EpisodeLen: 15,
		GoalReward: 1.0,
		StepReward: -0.1,
		Discount:   0.95,
	}
}

// Validate checks the Config for errors
func (c Config) Validate() error {
	if c.NumCells < 3 {
		return fmt.Errorf("validate: grid must have at least 3 cells per "+
			"side, got %d", c.NumCells)
	}
	if c.EpisodeLen <= 0 {
		return fmt.Errorf("validate: episode length must be positive, got %d",
			c.EpisodeLen)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1], got %v",
			c.Discount)
	}
	return nil
}
