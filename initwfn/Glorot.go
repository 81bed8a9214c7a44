package initwfn

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// GlorotUConfig implements a configuration of the Glorot Uniform
// initialization algorithm.
type GlorotUConfig struct {
	Gain float64
}

// NewGlorotU returns a new Glorot Uniform weight initializer
func NewGlorotU(gain float64) *InitWFn {
	return newInitWFn(GlorotUConfig{Gain: gain})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (g GlorotUConfig) Type() Type {
	return GlorotU
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (g GlorotUConfig) Create(src rand.Source) G.InitWFn {
	return func(dt tensor.Dtype, s ...int) interface{} {
		fanIn, fanOut := dims2(GlorotU, dt, s)
		limit := g.Gain * math.Sqrt(6.0/float64(fanIn+fanOut))
		dist := distuv.Uniform{Min: -limit, Max: limit, Src: src}
		return draw(dist, fanIn*fanOut)
	}
}

// GlorotNConfig implements a configuration of the Glorot Normal
// initialization algorithm.
type GlorotNConfig struct {
	Gain float64
}

// NewGlorotN returns a new Glorot Normal weight initializer.
func NewGlorotN(gain float64) *InitWFn {
	return newInitWFn(GlorotNConfig{Gain: gain})
}

// Type returns the type of initialization algorithm described by the
// configuration.
func (g GlorotNConfig) Type() Type {
	return GlorotN
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (g GlorotNConfig) Create(src rand.Source) G.InitWFn {
	return func(dt tensor.Dtype, s ...int) interface{} {
		fanIn, fanOut := dims2(GlorotN, dt, s)
		std := g.Gain * math.Sqrt(2.0/float64(fanIn+fanOut))
		dist := distuv.Normal{Mu: 0, Sigma: std, Src: src}
		return draw(dist, fanIn*fanOut)
	}
}

func draw(dist distuv.Rander, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}
