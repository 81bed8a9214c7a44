package decoder

import (
	"fmt"

	"github.com/MasterXiong/varibad/device"
	"github.com/MasterXiong/varibad/initwfn"
	"github.com/MasterXiong/varibad/network"
	"github.com/MasterXiong/varibad/utils/op"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// StateConfig implements a configuration of a StateDecoder
type StateConfig struct {
	Layers          []int
	StateEmbedSize  int
	ActionEmbedSize int
	Mode            StateMode
}

// Validate checks the StateConfig for errors
func (c StateConfig) Validate() error {
	if err := validateLayers(c.Layers); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.StateEmbedSize < 0 || c.ActionEmbedSize < 0 {
		return fmt.Errorf("validate: embedding sizes must be non-negative")
	}
	if c.Mode != StateDeterministic && c.Mode != StateGaussian {
		return fmt.Errorf("validate: unknown state mode %v", c.Mode)
	}
	return nil
}

// StateDecoder predicts the next state from a latent sample, the
// previous state, and the action taken in it.
type StateDecoder struct {
	stateFE  *network.FeatureExtractor
	actionFE *network.FeatureExtractor
	hidden   *network.MLP
	out      *network.Linear

	mode     StateMode
	stateDim int
}

// NewStateDecoder returns a new StateDecoder
func NewStateDecoder(ctx *device.Context, c StateConfig, latentDim, stateDim,
	actionDim int) (*StateDecoder, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newstatedecoder: %v", err)
	}
	init := initwfn.NewGlorotU(1.0).InitWFn(ctx.NewSource())

	stateFE, err := network.NewFeatureExtractor("state_decoder/state",
		stateDim, c.StateEmbedSize, network.ReLU(), init)
	if err != nil {
		return nil, fmt.Errorf("newstatedecoder: %v", err)
	}
	actionFE, err := network.NewFeatureExtractor("state_decoder/action",
		actionDim, c.ActionEmbedSize, network.ReLU(), init)
	if err != nil {
		return nil, fmt.Errorf("newstatedecoder: %v", err)
	}

	features := latentDim + stateFE.Out() + actionFE.Out()
	hidden, err := network.NewMLP("state_decoder", features, c.Layers,
		network.ReLU(), init)
	if err != nil {
		return nil, fmt.Errorf("newstatedecoder: %v", err)
	}

	outputs := stateDim
	if c.Mode == StateGaussian {
		outputs *= 2
	}
	out, err := network.NewLinear("state_decoder/fc_out", hidden.Out(),
		outputs, init, true)
	if err != nil {
		return nil, fmt.Errorf("newstatedecoder: %v", err)
	}

	return &StateDecoder{
		stateFE:  stateFE,
		actionFE: actionFE,
		hidden:   hidden,
		out:      out,
		mode:     c.Mode,
		stateDim: stateDim,
	}, nil
}

// Fwd adds the prediction of the decoder to the graph. For the
// Gaussian mode, the first half of the output columns hold the mean and
// the second half the log-variance of the next state.
func (d *StateDecoder) Fwd(g *network.Graph, latent, prevState,
	action *G.Node) (*G.Node, error) {
	hs, err := d.stateFE.Fwd(g, prevState)
	if err != nil {
		return nil, fmt.Errorf("fwd: %v", err)
	}
	ha, err := d.actionFE.Fwd(g, action)
	if err != nil {
		return nil, fmt.Errorf("fwd: %v", err)
	}

	h, err := G.Concat(1, latent, hs, ha)
	if err != nil {
		return nil, fmt.Errorf("fwd: %v", err)
	}
	if h, err = d.hidden.Fwd(g, h); err != nil {
		return nil, fmt.Errorf("fwd: %v", err)
	}
	return d.out.Fwd(g, h)
}

// Loss adds the per-row reconstruction losses of nextState to the
// graph, averaged over state dimensions. The result is an N x 1 node.
func (d *StateDecoder) Loss(g *network.Graph, latent *G.Node, prevState,
	action, nextState mat.Matrix) (*G.Node, error) {
	if err := checkRows(latent, prevState, action, nextState); err != nil {
		return nil, fmt.Errorf("loss: %v", err)
	}

	pred, err := d.Fwd(g, latent, g.Matrix("prev_state", prevState),
		g.Matrix("action", action))
	if err != nil {
		return nil, fmt.Errorf("loss: %v", err)
	}
	target := g.Matrix("next_state", nextState)

	switch d.mode {
	case StateDeterministic:
		return g.RowMean(op.SquaredError(pred, target)), nil

	case StateGaussian:
		mean := g.SelectColumns(pred, 0, d.stateDim)
		logVar := g.SelectColumns(pred, d.stateDim, 2*d.stateDim)
		return g.RowMean(op.GaussianNLLLogVar(mean, logVar, target)), nil
	}
	panic(fmt.Sprintf("loss: unknown state mode %v", d.mode))
}

// Mode returns the output mode of the decoder
func (d *StateDecoder) Mode() StateMode {
	return d.mode
}

// Params returns the learnable Params of the decoder
func (d *StateDecoder) Params() network.Params {
	if d == nil {
		return nil
	}
	return network.ParamsOf(d.stateFE, d.actionFE, d.hidden, d.out)
}
