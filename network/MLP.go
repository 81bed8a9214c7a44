package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// MLP implements a multi-layered perceptron of hidden layers. Each
// hidden layer is a fully connected layer with a bias followed by the
// MLP's activation. An MLP has no output layer: callers attach their
// own heads to Out() features.
//
// An MLP with no hidden layers is the identity function.
type MLP struct {
	layers     []*Linear
	activation *Activation
	in         int
}

// NewMLP returns a new MLP taking in features as input, with one
// hidden layer per element of hiddenSizes. The parameter init
// determines the weight initialization scheme.
func NewMLP(name string, in int, hiddenSizes []int, activation *Activation,
	init G.InitWFn) (*MLP, error) {
	if activation == nil {
		return nil, fmt.Errorf("newmlp: %v: activation must be specified",
			name)
	}

	layers := make([]*Linear, len(hiddenSizes))
	features := in
	for i, size := range hiddenSizes {
		var err error
		layerName := fmt.Sprintf("%v/fc%d", name, i)
		layers[i], err = NewLinear(layerName, features, size, init, true)
		if err != nil {
			return nil, fmt.Errorf("newmlp: could not create layer %d: %v", i,
				err)
		}
		features = size
	}

	return &MLP{
		layers:     layers,
		activation: activation,
		in:         in,
	}, nil
}

// Fwd adds the forward pass of the MLP on input x to the graph
func (m *MLP) Fwd(g *Graph, x *G.Node) (*G.Node, error) {
	pred := x
	var err error
	for i, l := range m.layers {
		if pred, err = l.Fwd(g, pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return nil, fmt.Errorf(msg, i, err)
		}
		if pred, err = m.activation.Fwd(pred); err != nil {
			msg := "fwd: could not compute activation of layer %v: %v"
			return nil, fmt.Errorf(msg, i, err)
		}
	}
	return pred, nil
}

// In returns the number of input features
func (m *MLP) In() int {
	return m.in
}

// Out returns the number of features output by the last hidden layer
func (m *MLP) Out() int {
	if len(m.layers) == 0 {
		return m.in
	}
	return m.layers[len(m.layers)-1].Out()
}

// Activation returns the activation of the hidden layers
func (m *MLP) Activation() *Activation {
	return m.activation
}

// Params returns the learnable Params of the MLP
func (m *MLP) Params() Params {
	if m == nil {
		return nil
	}
	params := make(Params, 0, 2*len(m.layers))
	for _, l := range m.layers {
		params = append(params, l.Params()...)
	}
	return params
}
