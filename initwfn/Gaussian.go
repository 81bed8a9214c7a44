package initwfn

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GaussianConfig implements a configuration of a weight initializer
// that draws weights from a gaussian distribution
type GaussianConfig struct {
	Mean, StdDev float64
}

// NewGaussian returns a new gaussian weight initializer
func NewGaussian(mean, stddev float64) *InitWFn {
	return newInitWFn(GaussianConfig{Mean: mean, StdDev: stddev})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (u GaussianConfig) Type() Type {
	return Gaussian
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (u GaussianConfig) Create(src rand.Source) G.InitWFn {
	dist := distuv.Normal{Mu: u.Mean, Sigma: u.StdDev, Src: src}
	return func(dt tensor.Dtype, s ...int) interface{} {
		n := 1
		for _, d := range s {
			n *= d
		}
		return draw(dist, n)
	}
}
