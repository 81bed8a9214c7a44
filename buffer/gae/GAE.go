// Package gae implements storage of policy rollouts with generalized
// advantage estimates
package gae

import (
	"fmt"

	"github.com/MasterXiong/varibad/policy"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Config implements a configuration of a Buffer
type Config struct {
	// Number of steps stored between updates
	NumSteps int

	Gamma  float64
	Lambda float64
}

// Validate checks the Config for errors
func (c Config) Validate() error {
	if c.NumSteps <= 0 {
		return fmt.Errorf("validate: number of steps must be positive, got %d",
			c.NumSteps)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1], got %v",
			c.Gamma)
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("validate: λ must be in [0, 1], got %v", c.Lambda)
	}
	return nil
}

// Step is a single policy step. Inputs of zero dimension in the
// Buffer are ignored and may be nil.
type Step struct {
	State  []float64
	Latent []float64
	Belief []float64
	Task   []float64

	Action []float64
	Reward float64
	Value  float64
}

// Batch holds the contents of a full Buffer
type Batch struct {
	Inputs  policy.Inputs
	Actions *mat.Dense

	// Advantages are standardised to mean 0 and standard deviation 1
	Advantages []float64
	Returns    []float64
	Values     []float64
}

// column holds one stored field, row-major
type column struct {
	dim  int
	data []float64
}

func newColumn(dim, size int) *column {
	return &column{dim: dim, data: make([]float64, dim*size)}
}

func (c *column) store(pos int, x []float64) error {
	if c.dim == 0 {
		return nil
	}
	if len(x) != c.dim {
		return fmt.Errorf("illegal length \n\twant(%v)\n\thave(%v)", c.dim,
			len(x))
	}
	copy(c.data[pos*c.dim:(pos+1)*c.dim], x)
	return nil
}

// matrix returns a copy of the first rows stored rows, or nil if the
// column has no features
func (c *column) matrix(rows int) *mat.Dense {
	if c.dim == 0 || rows == 0 {
		return nil
	}
	data := append([]float64(nil), c.data[:rows*c.dim]...)
	return mat.NewDense(rows, c.dim, data)
}

// Buffer implements a forward view generalized advantage estimate -
// GAE(λ) - buffer following https://arxiv.org/abs/1506.02438. Each
// step stores the inputs the policy acted on, so that the policy can
// be evaluated on them at update time.
type Buffer struct {
	maxSize int

	currentPos   int // Current position in the buffer
	pathStartIdx int // Position in the buffer where current trajectory starts

	lambda float64 // λ for GAE(λ) calculation
	gamma  float64 // Discount factor ℽ

	state, latent, belief, task *column
	action                      *column

	rewBuffer []float64
	valBuffer []float64
	advBuffer []float64
	retBuffer []float64
}

// New creates and returns a new GAE(λ) buffer storing inputs of the
// given dimensions and actions of actionDim columns
func New(c Config, dims policy.InputDims, actionDim int) (*Buffer, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if actionDim <= 0 {
		return nil, fmt.Errorf("new: action dimension must be positive, got %d",
			actionDim)
	}

	size := c.NumSteps
	return &Buffer{
		maxSize:   size,
		lambda:    c.Lambda,
		gamma:     c.Gamma,
		state:     newColumn(dims.State, size),
		latent:    newColumn(dims.Latent, size),
		belief:    newColumn(dims.Belief, size),
		task:      newColumn(dims.Task, size),
		action:    newColumn(actionDim, size),
		rewBuffer: make([]float64, size),
		valBuffer: make([]float64, size),
		advBuffer: make([]float64, size),
		retBuffer: make([]float64, size),
	}, nil
}

// Store stores a single policy step in the Buffer
func (v *Buffer) Store(s Step) error {
	if v.currentPos >= v.maxSize {
		return fmt.Errorf("store: cannot add new transition, buffer at " +
			"maximum capacity")
	}

	fields := []struct {
		name string
		c    *column
		x    []float64
	}{
		{"state", v.state, s.State},
		{"latent", v.latent, s.Latent},
		{"belief", v.belief, s.Belief},
		{"task", v.task, s.Task},
		{"action", v.action, s.Action},
	}
	for _, f := range fields {
		if err := f.c.store(v.currentPos, f.x); err != nil {
			return fmt.Errorf("store: %v: %v", f.name, err)
		}
	}

	v.rewBuffer[v.currentPos] = s.Reward
	v.valBuffer[v.currentPos] = s.Value
	v.currentPos++
	return nil
}

// FinishPath computes advantage estimates using GAE(λ) and
// rewards-to-go for each step of the current trajectory. This should be
// called at the end of a trajectory or when one gets cut off by the
// buffer filling up.
//
// The lastVal argument should be 0 if the trajectory ended because
// the agent reached a terminal state, and otherwise it should be
// v(s), the value estimate of the current state, which bootstraps
// both the advantages and the rewards-to-go.
func (v *Buffer) FinishPath(lastVal float64) {
	start := v.pathStartIdx
	stop := v.currentPos
	if start == stop {
		return
	}

	n := stop - start
	rews := make([]float64, n+1)
	copy(rews, v.rewBuffer[start:stop])
	rews[n] = lastVal
	vals := make([]float64, n+1)
	copy(vals, v.valBuffer[start:stop])
	vals[n] = lastVal

	// δₜ = rₜ + ℽ v(sₜ₊₁) - v(sₜ)
	deltas := make([]float64, n)
	for t := range deltas {
		deltas[t] = rews[t] + v.gamma*vals[t+1] - vals[t]
	}
	copy(v.advBuffer[start:stop], discountCumSum(deltas, v.gamma*v.lambda))

	rewsToGo := discountCumSum(rews, v.gamma)
	copy(v.retBuffer[start:stop], rewsToGo[:n])

	v.pathStartIdx = v.currentPos
}

// Inputs returns the policy inputs stored so far
func (v *Buffer) Inputs() policy.Inputs {
	return policy.Inputs{
		State:  v.state.matrix(v.currentPos),
		Latent: v.latent.matrix(v.currentPos),
		Belief: v.belief.matrix(v.currentPos),
		Task:   v.task.matrix(v.currentPos),
	}
}

// Len returns the number of steps stored
func (v *Buffer) Len() int {
	return v.currentPos
}

// Full returns whether the buffer is full
func (v *Buffer) Full() bool {
	return v.currentPos == v.maxSize
}

// Get returns the contents of the buffer and empties it. Advantages
// are first standardized to mean 0 and standard deviation 1. The
// buffer must be full and its last path finished.
func (v *Buffer) Get() (*Batch, error) {
	if !v.Full() {
		return nil, fmt.Errorf("get: buffer must be full before sampling")
	}
	if v.pathStartIdx != v.currentPos {
		return nil, fmt.Errorf("get: current path must be finished before " +
			"sampling")
	}

	batch := &Batch{
		Inputs:     v.Inputs(),
		Actions:    v.action.matrix(v.currentPos),
		Advantages: standardise(v.advBuffer),
		Returns:    append([]float64(nil), v.retBuffer...),
		Values:     append([]float64(nil), v.valBuffer...),
	}

	v.currentPos = 0
	v.pathStartIdx = 0
	return batch, nil
}

// standardise returns (x - mean(x)) / (std(x) + 1e-8)
func standardise(x []float64) []float64 {
	mean, std := stat.MeanStdDev(x, nil)
	if len(x) < 2 {
		std = 0
	}
	out := make([]float64, len(x))
	for i := range x {
		out[i] = (x[i] - mean) / (std + 1e-8)
	}
	return out
}

// discountCumSum computes and returns the discounted cumulative sum
// of all elements of a vector. Given a vector v = [x0 x1 x2 ... xN]
// and discount ℽ, this function computes and returns:
//
// [
//	x0 + ℽ x1 + ℽ^2 x2 + ℽ^3 x3 + ... + ℽ^N xN
//	x1 + ℽ^1 x2 + ℽ^2 x3 + ... + ℽ^(N-1) xN
//	x2 + ℽ^1 x3 + ... + ℽ^(N-2) xN
// ...
// xN
// ]
func discountCumSum(x []float64, discount float64) []float64 {
	cumSums := make([]float64, len(x))
	next := 0.0
	for i := len(x) - 1; i >= 0; i-- {
		next = x[i] + discount*next
		cumSums[i] = next
	}
	return cumSums
}
