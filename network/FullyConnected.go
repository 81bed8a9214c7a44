package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Linear implements a fully connected layer of a feed forward neural
// network, computing x·W + b. Inputs are batches of row vectors.
type Linear struct {
	weights *Param
	bias    *Param
	in, out int
}

// NewLinear returns a new fully connected layer mapping in features to
// out features. The weights are drawn from init and the bias, if
// used, is initialised to zero.
func NewLinear(name string, in, out int, init G.InitWFn,
	bias bool) (*Linear, error) {
	var biasInit G.InitWFn
	if bias {
		biasInit = G.Zeroes()
	}
	return NewLinearInit(name, in, out, init, biasInit)
}

// NewLinearInit returns a new fully connected layer whose weights are
// drawn from weights and whose bias is drawn from bias. A nil bias
// initialiser gives a layer without a bias.
func NewLinearInit(name string, in, out int, weights,
	bias G.InitWFn) (*Linear, error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("newlinear: %v: layer sizes must be positive"+
			"\n\tin(%d)\n\tout(%d)", name, in, out)
	}

	l := &Linear{
		weights: NewParamWithInit(name+"/weights", weights, in, out),
		in:      in,
		out:     out,
	}
	if bias != nil {
		l.bias = NewParamWithInit(name+"/bias", bias, 1, out)
	}
	return l, nil
}

// Fwd adds the forward pass of the layer to the computational graph
func (l *Linear) Fwd(g *Graph, x *G.Node) (*G.Node, error) {
	if cols := x.Shape()[1]; cols != l.in {
		return nil, fmt.Errorf("fwd: invalid input features \n\twant(%d)"+
			"\n\thave(%d)", l.in, cols)
	}

	x, err := G.Mul(x, g.Param(l.weights))
	if err != nil {
		return nil, fmt.Errorf("fwd: %v", err)
	}
	if l.bias != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x, err = G.BroadcastAdd(x, g.Param(l.bias), nil, []byte{0})
		if err != nil {
			return nil, fmt.Errorf("fwd: %v", err)
		}
	}
	return x, nil
}

// In returns the number of input features
func (l *Linear) In() int {
	return l.in
}

// Out returns the number of output features
func (l *Linear) Out() int {
	return l.out
}

// Weights returns the weight Param
func (l *Linear) Weights() *Param {
	return l.weights
}

// Bias returns the bias Param, which is nil if the layer has no bias
func (l *Linear) Bias() *Param {
	return l.bias
}

// Params returns the learnable Params of the layer
func (l *Linear) Params() Params {
	if l == nil {
		return nil
	}
	if l.bias == nil {
		return Params{l.weights}
	}
	return Params{l.weights, l.bias}
}
