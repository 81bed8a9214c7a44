package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// GRU implements a single gated recurrent unit cell. The gates follow
// the reset (r), update (z), new (n) layout:
//
//	r  = σ(x·Wir + bir + h·Whr + bhr)
//	z  = σ(x·Wiz + biz + h·Whz + bhz)
//	n  = tanh(x·Win + bin + r ⊙ (h·Whn + bhn))
//	h' = (1 - z) ⊙ n + z ⊙ h
type GRU struct {
	ir, iz, in *Linear
	hr, hz, hn *Linear
	inputs     int
	hidden     int
}

// NewGRU returns a new GRU cell. Input-to-hidden and hidden-to-hidden
// weights are drawn from init and all biases are zero.
func NewGRU(name string, inputs, hidden int, init G.InitWFn) (*GRU, error) {
	gates := make([]*Linear, 6)
	names := []string{"ir", "iz", "in", "hr", "hz", "hn"}
	for i := range gates {
		in := inputs
		if i >= 3 {
			in = hidden
		}

		var err error
		gates[i], err = NewLinear(name+"/"+names[i], in, hidden, init, true)
		if err != nil {
			return nil, fmt.Errorf("newgru: %v", err)
		}
	}

	return &GRU{
		ir:     gates[0],
		iz:     gates[1],
		in:     gates[2],
		hr:     gates[3],
		hz:     gates[4],
		hn:     gates[5],
		inputs: inputs,
		hidden: hidden,
	}, nil
}

// Step adds a single step of the cell to the graph, returning the new
// hidden state given input x and previous hidden state h.
func (c *GRU) Step(g *Graph, x, h *G.Node) (*G.Node, error) {
	affine := func(input, hidden *Linear) (*G.Node, *G.Node, error) {
		xi, err := input.Fwd(g, x)
		if err != nil {
			return nil, nil, err
		}
		hh, err := hidden.Fwd(g, h)
		if err != nil {
			return nil, nil, err
		}
		return xi, hh, nil
	}

	xr, hr, err := affine(c.ir, c.hr)
	if err != nil {
		return nil, fmt.Errorf("step: reset gate: %v", err)
	}
	r := G.Must(G.Sigmoid(G.Must(G.Add(xr, hr))))

	xz, hz, err := affine(c.iz, c.hz)
	if err != nil {
		return nil, fmt.Errorf("step: update gate: %v", err)
	}
	z := G.Must(G.Sigmoid(G.Must(G.Add(xz, hz))))

	xn, hn, err := affine(c.in, c.hn)
	if err != nil {
		return nil, fmt.Errorf("step: new gate: %v", err)
	}
	n := G.Must(G.Tanh(G.Must(G.Add(xn, G.Must(G.HadamardProd(r, hn))))))

	one := G.NewConstant(1.0)
	keep := G.Must(G.HadamardProd(G.Must(G.Sub(one, z)), n))
	carry := G.Must(G.HadamardProd(z, h))
	return G.Add(keep, carry)
}

// Inputs returns the number of input features of the cell
func (c *GRU) Inputs() int {
	return c.inputs
}

// Hidden returns the size of the hidden state of the cell
func (c *GRU) Hidden() int {
	return c.hidden
}

// Params returns the learnable Params of the cell
func (c *GRU) Params() Params {
	if c == nil {
		return nil
	}
	return ParamsOf(c.ir, c.iz, c.in, c.hr, c.hz, c.hn)
}
