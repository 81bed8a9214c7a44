// Package normalize implements running estimates of the mean and
// variance of a stream of inputs, used to normalise network inputs.
package normalize

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// Epsilon is added to the variance before normalising
	Epsilon = 1e-8

	// initialCount is the pseudo-count of the initial estimate
	initialCount = 1e-4
)

// RunningMeanStd tracks the per-feature mean and variance of a stream
// of batches. The estimate starts at mean 0 and variance 1.
//
// A nil *RunningMeanStd represents a disabled normaliser: Update is a
// no-op and Normalize returns its input unchanged.
type RunningMeanStd struct {
	count    float64
	mean     []float64
	variance []float64
}

// New returns a new RunningMeanStd over dim features
func New(dim int) *RunningMeanStd {
	variance := make([]float64, dim)
	for i := range variance {
		variance[i] = 1.0
	}
	return &RunningMeanStd{
		count:    initialCount,
		mean:     make([]float64, dim),
		variance: variance,
	}
}

// Update folds the moments of batch, whose rows are samples, into the
// running estimate. The two estimates are combined with the parallel
// algorithm of Chan et al.
func (r *RunningMeanStd) Update(batch mat.Matrix) error {
	if r == nil {
		return nil
	}

	rows, cols := batch.Dims()
	if cols != len(r.mean) {
		return fmt.Errorf("update: invalid number of features \n\twant(%d)"+
			"\n\thave(%d)", len(r.mean), cols)
	}
	if rows == 0 {
		return nil
	}

	col := make([]float64, rows)
	batchCount := float64(rows)
	total := r.count + batchCount
	for j := 0; j < cols; j++ {
		mat.Col(col, j, batch)
		batchMean := stat.Mean(col, nil)
		batchVar := stat.MomentAbout(2, col, batchMean, nil)

		delta := batchMean - r.mean[j]
		m2 := r.variance[j]*r.count + batchVar*batchCount +
			delta*delta*r.count*batchCount/total

		r.mean[j] += delta * batchCount / total
		r.variance[j] = m2 / total
	}
	r.count = total

	return nil
}

// Normalize returns (x - mean) / sqrt(variance + Epsilon) for each row
// of x. The receiver is not modified.
func (r *RunningMeanStd) Normalize(x mat.Matrix) *mat.Dense {
	if r == nil {
		return mat.DenseCopyOf(x)
	}

	rows, cols := x.Dims()
	if cols != len(r.mean) {
		panic(fmt.Sprintf("normalize: invalid number of features \n\twant(%d)"+
			"\n\thave(%d)", len(r.mean), cols))
	}

	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return (v - r.mean[j]) / math.Sqrt(r.variance[j]+Epsilon)
	}, x)
	return out
}

// Mean returns a copy of the running mean
func (r *RunningMeanStd) Mean() []float64 {
	return append([]float64(nil), r.mean...)
}

// Var returns a copy of the running variance
func (r *RunningMeanStd) Var() []float64 {
	return append([]float64(nil), r.variance...)
}

// Count returns the number of samples folded into the estimate,
// including the initial pseudo-count
func (r *RunningMeanStd) Count() float64 {
	return r.count
}

// Dim returns the number of features tracked
func (r *RunningMeanStd) Dim() int {
	return len(r.mean)
}
