package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// FeatureExtractor embeds a single input modality with one fully
// connected layer followed by an activation. A FeatureExtractor
// created with zero output features is disabled and passes its input
// through unchanged.
type FeatureExtractor struct {
	fc         *Linear
	activation *Activation
	in         int
}

// NewFeatureExtractor returns a new FeatureExtractor mapping in
// features to out features
func NewFeatureExtractor(name string, in, out int, activation *Activation,
	init G.InitWFn) (*FeatureExtractor, error) {
	if out == 0 {
		return &FeatureExtractor{in: in}, nil
	}
	if activation == nil {
		return nil, fmt.Errorf("newfeatureextractor: %v: activation must be "+
			"specified", name)
	}

	fc, err := NewLinear(name, in, out, init, true)
	if err != nil {
		return nil, fmt.Errorf("newfeatureextractor: %v", err)
	}
	return &FeatureExtractor{fc: fc, activation: activation, in: in}, nil
}

// Enabled returns whether the FeatureExtractor embeds its input
func (f *FeatureExtractor) Enabled() bool {
	return f.fc != nil
}

// Fwd adds the forward pass of the FeatureExtractor to the graph
func (f *FeatureExtractor) Fwd(g *Graph, x *G.Node) (*G.Node, error) {
	if !f.Enabled() {
		return x, nil
	}
	h, err := f.fc.Fwd(g, x)
	if err != nil {
		return nil, fmt.Errorf("fwd: %v", err)
	}
	return f.activation.Fwd(h)
}

// Out returns the number of output features
func (f *FeatureExtractor) Out() int {
	if !f.Enabled() {
		return f.in
	}
	return f.fc.Out()
}

// Params returns the learnable Params of the FeatureExtractor
func (f *FeatureExtractor) Params() Params {
	if f == nil || !f.Enabled() {
		return nil
	}
	return f.fc.Params()
}
