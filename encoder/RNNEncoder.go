// Package encoder implements the recurrent task encoder, which infers
// a Gaussian belief over a latent task variable from a trajectory of
// (action, state, reward) transitions.
package encoder

import (
	"fmt"
	"math"

	"github.com/MasterXiong/varibad/device"
	"github.com/MasterXiong/varibad/initwfn"
	"github.com/MasterXiong/varibad/network"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
)

// RNNEncoder embeds each input modality, concatenates the embeddings,
// and passes them through a GRU. The output of the GRU is projected to
// the mean and log-variance of the belief at each step.
//
// The prior belief is the projection of the zero hidden state, so that
// it is learned through the biases of the projection.
type RNNEncoder struct {
	actionFE *network.FeatureExtractor
	stateFE  *network.FeatureExtractor
	rewardFE *network.FeatureExtractor

	before *network.MLP
	gru    *network.GRU
	after  *network.MLP

	mu     *network.Linear
	logVar *network.Linear

	actionDim, stateDim, rewardDim int
	latentDim                      int

	noise distuv.Normal
}

// New returns a new RNNEncoder over actions, states, and rewards with
// the given dimensions.
func New(ctx *device.Context, c Config, actionDim, stateDim,
	rewardDim int) (*RNNEncoder, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if actionDim <= 0 || stateDim <= 0 || rewardDim <= 0 {
		return nil, fmt.Errorf("new: input dimensions must be positive"+
			"\n\taction(%d)\n\tstate(%d)\n\treward(%d)", actionDim, stateDim,
			rewardDim)
	}
	act, err := network.ParseActivation(c.Activation)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	linearInit := initwfn.NewGlorotU(1.0).InitWFn(ctx.NewSource())
	recurrentInit := initwfn.NewOrthogonal(1.0).InitWFn(ctx.NewSource())

	e := &RNNEncoder{
		actionDim: actionDim,
		stateDim:  stateDim,
		rewardDim: rewardDim,
		latentDim: c.LatentDim,
		noise: distuv.Normal{
			Mu:    0,
			Sigma: 1,
			Src:   ctx.NewSource(),
		},
	}

	e.actionFE, err = network.NewFeatureExtractor("encoder/action", actionDim,
		c.ActionEmbedSize, act, linearInit)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	e.stateFE, err = network.NewFeatureExtractor("encoder/state", stateDim,
		c.StateEmbedSize, act, linearInit)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	e.rewardFE, err = network.NewFeatureExtractor("encoder/reward", rewardDim,
		c.RewardEmbedSize, act, linearInit)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	features := e.actionFE.Out() + e.stateFE.Out() + e.rewardFE.Out()
	e.before, err = network.NewMLP("encoder/before", features,
		c.LayersBeforeGRU, act, linearInit)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	e.gru, err = network.NewGRU("encoder/gru", e.before.Out(), c.HiddenSize,
		recurrentInit)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	e.after, err = network.NewMLP("encoder/after", c.HiddenSize,
		c.LayersAfterGRU, act, linearInit)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	e.mu, err = network.NewLinear("encoder/fc_mu", e.after.Out(), c.LatentDim,
		linearInit, true)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	e.logVar, err = network.NewLinear("encoder/fc_logvar", e.after.Out(),
		c.LatentDim, linearInit, true)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	return e, nil
}

// Output holds the nodes of a forward pass of the encoder. Means and
// LogVars hold one B x LatentDim node per step, and Hidden is the
// B x HiddenSize hidden state after the last step.
type Output struct {
	Means   []*G.Node
	LogVars []*G.Node
	Hidden  *G.Node
}

// Len returns the number of beliefs in the Output
func (o *Output) Len() int {
	return len(o.Means)
}

// heads adds the post-GRU layers and the belief projection of hidden
// state h to the graph
func (e *RNNEncoder) heads(g *network.Graph, h *G.Node) (*G.Node, *G.Node,
	error) {
	out, err := e.after.Fwd(g, h)
	if err != nil {
		return nil, nil, err
	}
	mean, err := e.mu.Fwd(g, out)
	if err != nil {
		return nil, nil, err
	}
	logVar, err := e.logVar.Fwd(g, out)
	if err != nil {
		return nil, nil, err
	}
	return mean, logVar, nil
}

// Forward adds the forward pass of the encoder to the graph. The
// slices actions, states, and rewards hold one B x dim node per step.
// If hidden is nil, the recurrence starts from the zero hidden state.
//
// If returnPrior is true, the prior belief is prepended to the output,
// which then holds one more belief than there are steps, and the
// recurrence starts from the zero hidden state of the prior regardless
// of hidden.
func (e *RNNEncoder) Forward(g *network.Graph, actions, states,
	rewards []*G.Node, hidden *G.Node, returnPrior bool) (*Output, error) {
	if len(actions) != len(states) || len(actions) != len(rewards) {
		return nil, fmt.Errorf("forward: sequences must have equal length"+
			"\n\tactions(%d)\n\tstates(%d)\n\trewards(%d)", len(actions),
			len(states), len(rewards))
	}

	var batch int
	switch {
	case len(actions) > 0:
		batch = actions[0].Shape()[0]
	case hidden != nil:
		batch = hidden.Shape()[0]
	default:
		return nil, fmt.Errorf("forward: cannot infer batch size")
	}

	out := &Output{}
	if returnPrior || hidden == nil {
		hidden = g.Fill("encoder/h0", batch, e.gru.Hidden(), 0.0)
	}
	if returnPrior {
		mean, logVar, err := e.heads(g, hidden)
		if err != nil {
			return nil, fmt.Errorf("forward: prior: %v", err)
		}
		out.Means = append(out.Means, mean)
		out.LogVars = append(out.LogVars, logVar)
	}

	for t := range actions {
		ha, err := e.actionFE.Fwd(g, actions[t])
		if err != nil {
			return nil, fmt.Errorf("forward: step %d: action: %v", t, err)
		}
		hs, err := e.stateFE.Fwd(g, states[t])
		if err != nil {
			return nil, fmt.Errorf("forward: step %d: state: %v", t, err)
		}
		hr, err := e.rewardFE.Fwd(g, rewards[t])
		if err != nil {
			return nil, fmt.Errorf("forward: step %d: reward: %v", t, err)
		}

		x, err := G.Concat(1, ha, hs, hr)
		if err != nil {
			return nil, fmt.Errorf("forward: step %d: %v", t, err)
		}
		if x, err = e.before.Fwd(g, x); err != nil {
			return nil, fmt.Errorf("forward: step %d: %v", t, err)
		}
		if hidden, err = e.gru.Step(g, x, hidden); err != nil {
			return nil, fmt.Errorf("forward: step %d: %v", t, err)
		}

		mean, logVar, err := e.heads(g, hidden)
		if err != nil {
			return nil, fmt.Errorf("forward: step %d: %v", t, err)
		}
		out.Means = append(out.Means, mean)
		out.LogVars = append(out.LogVars, logVar)
	}
	out.Hidden = hidden

	return out, nil
}

// Belief is the numeric result of encoding a batch of trajectories.
// Means, LogVars, and Samples hold one B x LatentDim matrix per belief.
type Belief struct {
	Means   []*mat.Dense
	LogVars []*mat.Dense
	Samples []*mat.Dense
	Hidden  *mat.Dense
}

// Last returns the sample, mean, and log-variance of the last belief
func (b *Belief) Last() (sample, mean, logVar *mat.Dense) {
	last := len(b.Means) - 1
	return b.Samples[last], b.Means[last], b.LogVars[last]
}

// Encode runs the encoder over a batch of trajectories. Each element
// of actions, states, and rewards is the B x dim matrix of one step.
// See Forward for the semantics of hidden and returnPrior.
func (e *RNNEncoder) Encode(actions, states, rewards []*mat.Dense,
	hidden *mat.Dense, returnPrior bool) (*Belief, error) {
	if len(actions) != len(states) || len(actions) != len(rewards) {
		return nil, fmt.Errorf("encode: sequences must have equal length"+
			"\n\tactions(%d)\n\tstates(%d)\n\trewards(%d)", len(actions),
			len(states), len(rewards))
	}

	g := network.NewGraph()
	actionNodes := make([]*G.Node, len(actions))
	stateNodes := make([]*G.Node, len(states))
	rewardNodes := make([]*G.Node, len(rewards))
	for t := range actions {
		actionNodes[t] = g.Matrix("actions", actions[t])
		stateNodes[t] = g.Matrix("states", states[t])
		rewardNodes[t] = g.Matrix("rewards", rewards[t])
	}
	var hiddenNode *G.Node
	if hidden != nil {
		hiddenNode = g.Matrix("hidden", hidden)
	}

	out, err := e.Forward(g, actionNodes, stateNodes, rewardNodes, hiddenNode,
		returnPrior)
	if err != nil {
		return nil, fmt.Errorf("encode: %v", err)
	}
	if err := g.Run(); err != nil {
		return nil, fmt.Errorf("encode: %v", err)
	}

	b := &Belief{
		Means:   make([]*mat.Dense, out.Len()),
		LogVars: make([]*mat.Dense, out.Len()),
		Samples: make([]*mat.Dense, out.Len()),
		Hidden:  network.MatOf(out.Hidden),
	}
	for i := range out.Means {
		b.Means[i] = network.MatOf(out.Means[i])
		b.LogVars[i] = network.MatOf(out.LogVars[i])
		b.Samples[i] = e.Sample(b.Means[i], b.LogVars[i])
	}
	return b, nil
}

// Prior returns the prior belief for a batch of the given size
func (e *RNNEncoder) Prior(batch int) (*Belief, error) {
	hidden := mat.NewDense(batch, e.gru.Hidden(), nil)
	b, err := e.Encode(nil, nil, nil, hidden, true)
	if err != nil {
		return nil, fmt.Errorf("prior: %v", err)
	}
	return b, nil
}

// Step advances the belief by a single transition given the hidden
// state carried from the previous step. It computes exactly what Encode
// computes for the same step of a longer trajectory.
func (e *RNNEncoder) Step(action, state, reward, hidden *mat.Dense) (*Belief,
	error) {
	b, err := e.Encode([]*mat.Dense{action}, []*mat.Dense{state},
		[]*mat.Dense{reward}, hidden, false)
	if err != nil {
		return nil, fmt.Errorf("step: %v", err)
	}
	return b, nil
}

// Sample draws a latent from the Gaussian with the given mean and
// log-variance using the reparameterisation mean + exp(½logVar)⊙ε.
// Each call draws fresh noise ε.
func (e *RNNEncoder) Sample(mean, logVar *mat.Dense) *mat.Dense {
	r, c := mean.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, m float64) float64 {
		return m + math.Exp(0.5*logVar.At(i, j))*e.noise.Rand()
	}, mean)
	return out
}

// Noise returns an r x c matrix of standard normal noise drawn from the
// encoder's noise stream
func (e *RNNEncoder) Noise(r, c int) *mat.Dense {
	out := mat.NewDense(r, c, nil)
	out.Apply(func(int, int, float64) float64 {
		return e.noise.Rand()
	}, out)
	return out
}

// Reparameterise adds the sample mean + exp(½logVar)⊙ε to the graph,
// where the noise ε is supplied as a constant input
func Reparameterise(g *network.Graph, mean, logVar *G.Node,
	noise mat.Matrix) *G.Node {
	eps := g.Matrix("noise", noise)
	std := G.Must(G.Exp(G.Must(G.HadamardProd(G.NewConstant(0.5), logVar))))
	return G.Must(G.Add(mean, G.Must(G.HadamardProd(std, eps))))
}

// LatentDim returns the dimension of the latent task variable
func (e *RNNEncoder) LatentDim() int {
	return e.latentDim
}

// HiddenSize returns the size of the GRU hidden state
func (e *RNNEncoder) HiddenSize() int {
	return e.gru.Hidden()
}

// ActionDim returns the dimension of actions input to the encoder
func (e *RNNEncoder) ActionDim() int {
	return e.actionDim
}

// StateDim returns the dimension of states input to the encoder
func (e *RNNEncoder) StateDim() int {
	return e.stateDim
}

// RewardDim returns the dimension of rewards input to the encoder
func (e *RNNEncoder) RewardDim() int {
	return e.rewardDim
}

// Params returns the learnable Params of the encoder
func (e *RNNEncoder) Params() network.Params {
	return network.ParamsOf(e.actionFE, e.stateFE, e.rewardFE, e.before,
		e.gru, e.after, e.mu, e.logVar)
}
