package initwfn

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NormCConfig implements a configuration of the normc initialization
// algorithm. Weights are drawn from a standard normal, then the
// incoming weights of each output unit are rescaled to have norm Gain.
//
// Weight matrices are stored inputs x outputs, so each column of the
// matrix is rescaled.
type NormCConfig struct {
	Gain float64
}

// NewNormC returns a new normc weight initializer
func NewNormC(gain float64) *InitWFn {
	return newInitWFn(NormCConfig{Gain: gain})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (n NormCConfig) Type() Type {
	return NormC
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (n NormCConfig) Create(src rand.Source) G.InitWFn {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	return func(dt tensor.Dtype, s ...int) interface{} {
		rows, cols := dims2(NormC, dt, s)

		out := make([]float64, rows*cols)
		for i := range out {
			out[i] = normal.Rand()
		}

		col := make([]float64, rows)
		for j := 0; j < cols; j++ {
			for i := 0; i < rows; i++ {
				col[i] = out[i*cols+j]
			}
			scale := n.Gain / math.Max(floats.Norm(col, 2), 1e-12)
			for i := 0; i < rows; i++ {
				out[i*cols+j] *= scale
			}
		}
		return out
	}
}
