package initwfn

import (
	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
)

// ZeroesConfig implements a configuration of a weight initializer
// which sets all weights to zero
type ZeroesConfig struct{}

// NewZeroes returns a new weight initializer setting all weights to 0
func NewZeroes() *InitWFn {
	return newInitWFn(ZeroesConfig{})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (z ZeroesConfig) Type() Type {
	return Zeroes
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn. No random numbers are drawn from src.
func (z ZeroesConfig) Create(rand.Source) G.InitWFn {
	return G.Zeroes()
}
