package initwfn

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// OrthogonalConfig implements a configuration of the orthogonal
// initialization algorithm: weights form a (semi-)orthogonal matrix
// scaled by Gain.
type OrthogonalConfig struct {
	Gain float64
}

// NewOrthogonal returns a new orthogonal weight initializer
func NewOrthogonal(gain float64) *InitWFn {
	return newInitWFn(OrthogonalConfig{Gain: gain})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (o OrthogonalConfig) Type() Type {
	return Orthogonal
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (o OrthogonalConfig) Create(src rand.Source) G.InitWFn {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	return func(dt tensor.Dtype, s ...int) interface{} {
		rows, cols := dims2(Orthogonal, dt, s)

		// Factorise a tall matrix, transposing back afterwards if needed
		m, k := rows, cols
		if rows < cols {
			m, k = cols, rows
		}
		a := mat.NewDense(m, k, nil)
		for i := 0; i < m; i++ {
			for j := 0; j < k; j++ {
				a.Set(i, j, normal.Rand())
			}
		}

		var qr mat.QR
		qr.Factorize(a)
		var q, r mat.Dense
		qr.QTo(&q)
		qr.RTo(&r)

		// Make the decomposition unique by fixing the signs of diag(R)
		w := mat.NewDense(m, k, nil)
		for j := 0; j < k; j++ {
			sign := 1.0
			if r.At(j, j) < 0 {
				sign = -1.0
			}
			for i := 0; i < m; i++ {
				w.Set(i, j, o.Gain*sign*q.At(i, j))
			}
		}

		out := make([]float64, rows*cols)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if rows < cols {
					out[i*cols+j] = w.At(j, i)
				} else {
					out[i*cols+j] = w.At(i, j)
				}
			}
		}
		return out
	}
}
