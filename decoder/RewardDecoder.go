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

// RewardConfig implements a configuration of a RewardDecoder
type RewardConfig struct {
	Layers          []int
	StateEmbedSize  int
	ActionEmbedSize int
	Mode            RewardMode

	// MultiHead decoders predict the reward of every state index from
	// the latent alone
	MultiHead bool

	// Additional inputs of single-head decoders
	InputPrevState bool
	InputAction    bool
}

// Validate checks the RewardConfig for errors
func (c RewardConfig) Validate() error {
	if err := validateLayers(c.Layers); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.StateEmbedSize < 0 || c.ActionEmbedSize < 0 {
		return fmt.Errorf("validate: embedding sizes must be non-negative")
	}
	switch c.Mode {
	case RewardDeterministic, RewardBernoulli:
	case RewardCategorical:
		if !c.MultiHead {
			return fmt.Errorf("validate: categorical reward prediction " +
				"requires a multi-head decoder")
		}
	default:
		return fmt.Errorf("validate: unknown reward mode %v", c.Mode)
	}
	return nil
}

// RewardDecoder predicts the reward of a transition from a latent
// sample.
//
// A single-head decoder conditions on the next state and, if
// configured, on the action and previous state, and predicts a single
// value. A multi-head decoder conditions on the latent alone and
// predicts one value per state index, from which the value of the
// next state is selected using a StateIndexer.
//
// Bernoulli and categorical predictions are scored against the target
// reward == 1.
type RewardDecoder struct {
	nextStateFE *network.FeatureExtractor
	prevStateFE *network.FeatureExtractor
	actionFE    *network.FeatureExtractor
	hidden      *network.MLP
	out         *network.Linear

	mode      RewardMode
	multiHead bool
	indexer   StateIndexer
}

// NewRewardDecoder returns a new RewardDecoder. The indexer is
// required by multi-head decoders and ignored otherwise.
func NewRewardDecoder(ctx *device.Context, c RewardConfig, latentDim,
	stateDim, actionDim int, indexer StateIndexer) (*RewardDecoder, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newrewarddecoder: %v", err)
	}
	if c.MultiHead && indexer == nil {
		return nil, fmt.Errorf("newrewarddecoder: multi-head decoder " +
			"requires a state indexer")
	}
	init := initwfn.NewGlorotU(1.0).InitWFn(ctx.NewSource())

	d := &RewardDecoder{mode: c.Mode, multiHead: c.MultiHead}
	features := latentDim
	outputs := 1
	if c.MultiHead {
		d.indexer = indexer
		outputs = indexer.NumStates()
	} else {
		var err error
		d.nextStateFE, err = network.NewFeatureExtractor(
			"reward_decoder/next_state", stateDim, c.StateEmbedSize,
			network.ReLU(), init)
		if err != nil {
			return nil, fmt.Errorf("newrewarddecoder: %v", err)
		}
		features += d.nextStateFE.Out()

		if c.InputAction {
			d.actionFE, err = network.NewFeatureExtractor(
				"reward_decoder/action", actionDim, c.ActionEmbedSize,
				network.ReLU(), init)
			if err != nil {
				return nil, fmt.Errorf("newrewarddecoder: %v", err)
			}
			features += d.actionFE.Out()
		}
		if c.InputPrevState {
			d.prevStateFE, err = network.NewFeatureExtractor(
				"reward_decoder/prev_state", stateDim, c.StateEmbedSize,
				network.ReLU(), init)
			if err != nil {
				return nil, fmt.Errorf("newrewarddecoder: %v", err)
			}
			features += d.prevStateFE.Out()
		}
	}

	var err error
	d.hidden, err = network.NewMLP("reward_decoder", features, c.Layers,
		network.ReLU(), init)
	if err != nil {
		return nil, fmt.Errorf("newrewarddecoder: %v", err)
	}
	d.out, err = network.NewLinear("reward_decoder/fc_out", d.hidden.Out(),
		outputs, init, true)
	if err != nil {
		return nil, fmt.Errorf("newrewarddecoder: %v", err)
	}

	return d, nil
}

// Fwd adds the raw prediction of the decoder to the graph. The context
// nodes nextState, prevState, and action are only used by single-head
// decoders configured to input them, and may otherwise be nil.
func (d *RewardDecoder) Fwd(g *network.Graph, latent, nextState, prevState,
	action *G.Node) (*G.Node, error) {
	h := latent
	if !d.multiHead {
		inputs := G.Nodes{latent}

		hns, err := d.nextStateFE.Fwd(g, nextState)
		if err != nil {
			return nil, fmt.Errorf("fwd: %v", err)
		}
		inputs = append(inputs, hns)

		if d.actionFE != nil {
			ha, err := d.actionFE.Fwd(g, action)
			if err != nil {
				return nil, fmt.Errorf("fwd: %v", err)
			}
			inputs = append(inputs, ha)
		}
		if d.prevStateFE != nil {
			hps, err := d.prevStateFE.Fwd(g, prevState)
			if err != nil {
				return nil, fmt.Errorf("fwd: %v", err)
			}
			inputs = append(inputs, hps)
		}

		if h, err = G.Concat(1, inputs...); err != nil {
			return nil, fmt.Errorf("fwd: %v", err)
		}
	}

	h, err := d.hidden.Fwd(g, h)
	if err != nil {
		return nil, fmt.Errorf("fwd: %v", err)
	}
	return d.out.Fwd(g, h)
}

// Loss adds the per-row reward reconstruction losses to the graph. The
// rewards are an N x 1 matrix. The result is an N x 1 node.
func (d *RewardDecoder) Loss(g *network.Graph, latent *G.Node, prevState,
	action, nextState, rewards mat.Matrix) (*G.Node, error) {
	if err := checkRows(latent, prevState, action, nextState,
		rewards); err != nil {
		return nil, fmt.Errorf("loss: %v", err)
	}

	var nextStateNode, prevStateNode, actionNode *G.Node
	if !d.multiHead {
		nextStateNode = g.Matrix("next_state", nextState)
		if d.prevStateFE != nil {
			prevStateNode = g.Matrix("prev_state", prevState)
		}
		if d.actionFE != nil {
			actionNode = g.Matrix("action", action)
		}
	}

	pred, err := d.Fwd(g, latent, nextStateNode, prevStateNode, actionNode)
	if err != nil {
		return nil, fmt.Errorf("loss: %v", err)
	}

	if d.multiHead {
		var indices []int
		for _, state := range rowsOf(nextState) {
			indices = append(indices, d.indexer.StateToIndex(state))
		}
		if d.mode == RewardCategorical {
			probs := G.Must(G.Exp(g.LogSoftmaxRows(pred)))
			pred = selectPerRow(g, probs, indices)
		} else {
			pred = selectPerRow(g, pred, indices)
		}
	}

	switch d.mode {
	case RewardDeterministic:
		return op.SquaredError(pred, g.Matrix("reward", rewards)), nil

	case RewardBernoulli:
		targets := g.Matrix("reward_target", successTargets(rewards))
		return op.BernoulliNLL(pred, targets), nil

	case RewardCategorical:
		targets := g.Matrix("reward_target", successTargets(rewards))
		return op.BCE(pred, targets), nil
	}
	panic(fmt.Sprintf("loss: unknown reward mode %v", d.mode))
}

// Mode returns the output mode of the decoder
func (d *RewardDecoder) Mode() RewardMode {
	return d.mode
}

// MultiHead returns whether the decoder is multi-headed
func (d *RewardDecoder) MultiHead() bool {
	return d.multiHead
}

// Params returns the learnable Params of the decoder
func (d *RewardDecoder) Params() network.Params {
	if d == nil {
		return nil
	}
	return network.ParamsOf(d.nextStateFE, d.actionFE, d.prevStateFE,
		d.hidden, d.out)
}
