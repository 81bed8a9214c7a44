// Package device implements the compute context that every learnable
// component of the module is constructed with. A Context fixes the data
// type of all tensors and owns the master random stream from which each
// component derives its own independent, reproducible source.
package device

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"
)

// Context is an explicit compute context. There is no package level
// default: components receive the Context they should use at
// construction.
type Context struct {
	dtype  tensor.Dtype
	seed   uint64
	master *rand.Rand
}

// NewCPU returns a new CPU Context using float64 tensors. All random
// streams derived from the Context are determined by seed.
func NewCPU(seed uint64) *Context {
	return &Context{
		dtype:  tensor.Float64,
		seed:   seed,
		master: rand.New(rand.NewSource(seed)),
	}
}

// Dtype returns the data type of all tensors created under the Context
func (c *Context) Dtype() tensor.Dtype {
	return c.dtype
}

// Seed returns the seed the Context was created with
func (c *Context) Seed() uint64 {
	return c.seed
}

// NewSource returns a new random source seeded from the master stream
// of the Context. Successive calls return different sources, but the
// sequence of sources is the same for two Contexts with the same seed.
func (c *Context) NewSource() rand.Source {
	return rand.NewSource(c.master.Uint64())
}

// String implements the fmt.Stringer interface
func (c *Context) String() string {
	return fmt.Sprintf("CPU(%v, seed=%d)", c.dtype, c.seed)
}
