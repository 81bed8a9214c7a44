// Package a2c implements the synchronous advantage actor-critic
// learner of the policy
package a2c

import (
	"fmt"

	"github.com/MasterXiong/varibad/buffer/gae"
	"github.com/MasterXiong/varibad/network"
	"github.com/MasterXiong/varibad/policy"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// Stats holds the losses of an update
type Stats struct {
	ValueLoss  float64
	ActionLoss float64
	Entropy    float64
	Total      float64
}

// A2C updates a policy with the advantage actor-critic loss
//
//	c_v mean((R - v)²) - mean(A log π(a|s)) - c_H mean(H(π(·|s)))
//
// where the advantages A and returns R are computed by a GAE(λ)
// buffer. Each update takes a single gradient step on all the
// parameters of the policy.
type A2C struct {
	cfg    Config
	policy *policy.Policy
	solver G.Solver

	updates int
}

// New returns a new A2C learner of p
func New(c Config, p *policy.Policy) (*A2C, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if p == nil {
		return nil, fmt.Errorf("new: no policy")
	}
	return &A2C{cfg: c, policy: p, solver: c.Solver.Fresh().Solver}, nil
}

// Update empties the storage and takes one gradient step on the policy
// with the data it held. The storage must be full and its last path
// finished.
func (a *A2C) Update(storage *gae.Buffer) (Stats, error) {
	batch, err := storage.Get()
	if err != nil {
		return Stats{}, fmt.Errorf("update: %v", err)
	}
	rows := len(batch.Returns)

	g := network.NewGraph()
	eval, err := a.policy.EvaluateActions(g, a.policy.Filter(batch.Inputs),
		batch.Actions)
	if err != nil {
		return Stats{}, fmt.Errorf("update: %v", err)
	}

	returns := g.Matrix("returns", mat.NewDense(rows, 1, batch.Returns))
	valueLoss := G.Must(G.Mean(G.Must(G.Square(G.Must(G.Sub(returns,
		eval.Value))))))

	weights := make([]float64, rows)
	for i, adv := range batch.Advantages {
		weights[i] = -adv / float64(rows)
	}
	actionLoss := g.WeightedSum(eval.LogProb, weights)

	loss := G.Must(G.Add(
		G.Must(G.Mul(G.NewConstant(a.cfg.ValueLossCoeff), valueLoss)),
		actionLoss,
	))
	loss = G.Must(G.Sub(loss, G.Must(G.Mul(G.NewConstant(a.cfg.EntropyCoeff),
		eval.Entropy))))

	if err := g.Minimise(loss, a.policy.Params(), a.solver); err != nil {
		return Stats{}, fmt.Errorf("update: %v", err)
	}
	a.updates++

	return Stats{
		ValueLoss:  network.ScalarOf(valueLoss),
		ActionLoss: network.ScalarOf(actionLoss),
		Entropy:    network.ScalarOf(eval.Entropy),
		Total:      network.ScalarOf(loss),
	}, nil
}

// Updates returns the number of updates taken
func (a *A2C) Updates() int {
	return a.updates
}

// Policy returns the policy being learned
func (a *A2C) Policy() *policy.Policy {
	return a.policy
}
