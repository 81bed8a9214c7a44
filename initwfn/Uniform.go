package initwfn

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// UniformConfig implements a configuration of a weight initializer that
// draws weights from a uniform distribution
type UniformConfig struct {
	Low, High float64
}

// NewUniform returns a new uniform weight initializer
func NewUniform(low, high float64) (*InitWFn, error) {
	if low > high {
		return nil, fmt.Errorf("newuniform: low %v > high %v", low, high)
	}
	return newInitWFn(UniformConfig{Low: low, High: high}), nil
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (u UniformConfig) Type() Type {
	return Uniform
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (u UniformConfig) Create(src rand.Source) G.InitWFn {
	dist := distuv.Uniform{Min: u.Low, Max: u.High, Src: src}
	return func(dt tensor.Dtype, s ...int) interface{} {
		n := 1
		for _, d := range s {
			n *= d
		}
		return draw(dist, n)
	}
}
