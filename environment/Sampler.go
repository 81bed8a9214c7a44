package environment

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// CategoricalSampler samples indices in (0, 1, 2, ... N-1) from a
// uniform categorical distribution. Meta-environments use it to draw
// tasks from a finite set of candidates.
type CategoricalSampler struct {
	n    int
	rand distuv.Categorical
}

// NewCategoricalSampler returns a new CategoricalSampler over n
// indices
func NewCategoricalSampler(n int, src rand.Source) (*CategoricalSampler,
	error) {
	if n <= 0 {
		return nil, fmt.Errorf("newcategoricalsampler: number of categories "+
			"must be positive, got %d", n)
	}

	// Create the weights for the uniform categorical distribution
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1.0 / float64(n)
	}

	return &CategoricalSampler{n: n, rand: distuv.NewCategorical(weights, src)},
		nil
}

// Sample returns a sampled index
func (c *CategoricalSampler) Sample() int {
	return int(c.rand.Rand())
}

// N returns the number of categories
func (c *CategoricalSampler) N() int {
	return c.n
}
