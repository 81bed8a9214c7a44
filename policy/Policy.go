// Package policy implements the actor-critic policy of the meta-learner.
// The policy acts on any combination of the environment state, the
// latent task variable, the belief over tasks, and the true task.
package policy

import (
	"fmt"
	"math"

	"github.com/MasterXiong/varibad/device"
	"github.com/MasterXiong/varibad/initwfn"
	"github.com/MasterXiong/varibad/network"
	"github.com/MasterXiong/varibad/normalize"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// Inputs holds a batch of policy inputs, one row per sample. Inputs
// the policy does not receive must be nil.
type Inputs struct {
	State  *mat.Dense
	Latent *mat.Dense
	Belief *mat.Dense
	Task   *mat.Dense
}

// rows returns the number of samples in the Inputs
func (in Inputs) rows() int {
	for _, m := range []*mat.Dense{in.State, in.Latent, in.Belief, in.Task} {
		if m != nil {
			r, _ := m.Dims()
			return r
		}
	}
	return 0
}

// Latent returns the latent input of the policy: the sample if
// sampleEmbeddings is true and the concatenated mean and log-variance
// otherwise.
func Latent(sample, mean, logVar *mat.Dense, sampleEmbeddings bool) *mat.Dense {
	if sampleEmbeddings {
		return mat.DenseCopyOf(sample)
	}
	r, c := mean.Dims()
	out := mat.NewDense(r, 2*c, nil)
	out.Slice(0, r, 0, c).(*mat.Dense).Copy(mean)
	out.Slice(0, r, c, 2*c).(*mat.Dense).Copy(logVar)
	return out
}

// modality is a single input of the policy
type modality struct {
	name string
	dim  int
	rms  *normalize.RunningMeanStd
	fe   *network.FeatureExtractor
}

// fwd normalises and embeds x
func (m *modality) fwd(g *network.Graph, x *mat.Dense) (*G.Node, error) {
	if _, cols := x.Dims(); cols != m.dim {
		return nil, fmt.Errorf("%v: invalid number of features \n\twant(%d)"+
			"\n\thave(%d)", m.name, m.dim, cols)
	}
	return m.fe.Fwd(g, g.Matrix("policy_"+m.name, m.rms.Normalize(x)))
}

// Policy is an actor-critic policy. The actor and the critic are
// separate MLPs over the same normalised and embedded inputs.
type Policy struct {
	cfg     Config
	actions ActionSpace

	// Enabled inputs only, ordered state, latent, belief, task
	inputs []*modality

	actor        *network.MLP
	critic       *network.MLP
	criticLinear *network.Linear
	head         head

	src rand.Source
}

// New returns a new Policy over inputs with the given dimensions.
// Dimensions of inputs the policy does not receive are ignored.
func New(ctx *device.Context, c Config, dims InputDims,
	actions ActionSpace) (*Policy, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := actions.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if actions.Discrete && c.NormActionsPostSampling {
		return nil, fmt.Errorf("new: cannot squash discrete actions")
	}
	act, err := network.ParseActivation(c.Activation)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	p := &Policy{cfg: c, actions: actions, src: ctx.NewSource()}

	embedInit := initwfn.NewGlorotU(1.0).InitWFn(ctx.NewSource())
	add := func(name string, pass, norm bool, dim, embed int) error {
		if !pass {
			return nil
		}
		if dim <= 0 {
			return fmt.Errorf("%v: input dimension must be positive, got %d",
				name, dim)
		}
		m := &modality{name: name, dim: dim}
		if norm {
			m.rms = normalize.New(dim)
		}
		m.fe, err = network.NewFeatureExtractor("policy/"+name+"_encoder", dim,
			embed, act, embedInit)
		if err != nil {
			return err
		}
		p.inputs = append(p.inputs, m)
		return nil
	}
	if err := add("state", c.PassStateToPolicy, c.NormStateForPolicy,
		dims.State, c.StateEmbeddingDim); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := add("latent", c.PassLatentToPolicy, c.NormLatentForPolicy,
		dims.Latent, c.LatentEmbeddingDim); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := add("belief", c.PassBeliefToPolicy, c.NormBeliefForPolicy,
		dims.Belief, c.BeliefEmbeddingDim); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if err := add("task", c.PassTaskToPolicy, c.NormTaskForPolicy,
		dims.Task, c.TaskEmbeddingDim); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	features := 0
	for _, m := range p.inputs {
		features += m.fe.Out()
	}

	scheme, err := initwfn.Scheme(c.Init, act.Gain())
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	p.actor, err = network.NewMLP("policy/actor", features, c.Layers, act,
		scheme.InitWFn(ctx.NewSource()))
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	p.critic, err = network.NewMLP("policy/critic", features, c.Layers, act,
		scheme.InitWFn(ctx.NewSource()))
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	// The value head keeps the default fully connected initialisation,
	// uniform in ±1/√fan_in for both weights and bias
	bound := 1 / math.Sqrt(float64(p.critic.Out()))
	linearInit, err := initwfn.NewUniform(-bound, bound)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	p.criticLinear, err = network.NewLinearInit("policy/critic_linear",
		p.critic.Out(), 1, linearInit.InitWFn(ctx.NewSource()),
		linearInit.InitWFn(ctx.NewSource()))
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	if actions.Discrete {
		p.head, err = newCategoricalHead(ctx, p.actor.Out(), actions.N)
	} else {
		p.head, err = newGaussianHead(ctx, p.actor.Out(), actions.N,
			c.InitStd, c.MinStd, c.NormActionsPreSampling,
			c.NormActionsPostSampling)
	}
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	return p, nil
}

// Filter returns the Inputs with the inputs the policy does not
// receive set to nil
func (p *Policy) Filter(in Inputs) Inputs {
	if !p.cfg.PassStateToPolicy {
		in.State = nil
	}
	if !p.cfg.PassLatentToPolicy {
		in.Latent = nil
	}
	if !p.cfg.PassBeliefToPolicy {
		in.Belief = nil
	}
	if !p.cfg.PassTaskToPolicy {
		in.Task = nil
	}
	return in
}

// matrices returns the matrices of the Inputs in the order of the
// enabled modalities of the policy
func (p *Policy) matrices(in Inputs) ([]*mat.Dense, error) {
	all := []struct {
		name string
		pass bool
		m    *mat.Dense
	}{
		{"state", p.cfg.PassStateToPolicy, in.State},
		{"latent", p.cfg.PassLatentToPolicy, in.Latent},
		{"belief", p.cfg.PassBeliefToPolicy, in.Belief},
		{"task", p.cfg.PassTaskToPolicy, in.Task},
	}

	rows := in.rows()
	var out []*mat.Dense
	for _, input := range all {
		switch {
		case input.pass && input.m == nil:
			return nil, fmt.Errorf("missing %v input", input.name)
		case !input.pass && input.m != nil:
			return nil, fmt.Errorf("policy does not receive %v input",
				input.name)
		case input.pass:
			if r, _ := input.m.Dims(); r != rows {
				return nil, fmt.Errorf("%v input has %d rows, expected %d",
					input.name, r, rows)
			}
			out = append(out, input.m)
		}
	}
	return out, nil
}

// Forward adds the forward pass of the policy to the graph, returning
// the B x 1 values and the B x F actor features
func (p *Policy) Forward(g *network.Graph, in Inputs) (value,
	actorFeatures *G.Node, err error) {
	matrices, err := p.matrices(in)
	if err != nil {
		return nil, nil, fmt.Errorf("forward: %v", err)
	}

	embedded := make([]*G.Node, len(matrices))
	for i, m := range matrices {
		embedded[i], err = p.inputs[i].fwd(g, m)
		if err != nil {
			return nil, nil, fmt.Errorf("forward: %v", err)
		}
	}
	x := embedded[0]
	if len(embedded) > 1 {
		x = G.Must(G.Concat(1, embedded...))
	}

	h, err := p.critic.Fwd(g, x)
	if err != nil {
		return nil, nil, fmt.Errorf("forward: critic: %v", err)
	}
	value, err = p.criticLinear.Fwd(g, h)
	if err != nil {
		return nil, nil, fmt.Errorf("forward: critic: %v", err)
	}

	actorFeatures, err = p.actor.Fwd(g, x)
	if err != nil {
		return nil, nil, fmt.Errorf("forward: actor: %v", err)
	}
	return value, actorFeatures, nil
}

// Dist adds the forward pass of the policy to the graph, returning the
// values and the action distributions
func (p *Policy) Dist(g *network.Graph, in Inputs) (*G.Node, Distribution,
	error) {
	value, features, err := p.Forward(g, in)
	if err != nil {
		return nil, nil, fmt.Errorf("dist: %v", err)
	}
	dist, err := p.head.dist(g, features)
	if err != nil {
		return nil, nil, fmt.Errorf("dist: %v", err)
	}
	return value, dist, nil
}

// Act returns the values of the inputs and the actions selected in
// them. If deterministic is true, the mode of each distribution is
// selected and Act has no side effects.
func (p *Policy) Act(in Inputs, deterministic bool) ([]float64, *mat.Dense,
	error) {
	g := network.NewGraph()
	value, dist, err := p.Dist(g, in)
	if err != nil {
		return nil, nil, fmt.Errorf("act: %v", err)
	}
	if err := g.Run(); err != nil {
		return nil, nil, fmt.Errorf("act: %v", err)
	}

	var action *mat.Dense
	if deterministic {
		action = dist.Mode()
	} else {
		action = dist.Sample(p.src)
	}
	return network.ValueOf(value), action, nil
}

// EnvAction returns the actions to take in the environment given the
// actions returned by Act. Continuous actions are squashed with tanh
// when NormActionsPostSampling is set, and all other actions are
// returned unchanged.
func (p *Policy) EnvAction(actions *mat.Dense) *mat.Dense {
	if p.actions.Discrete || !p.cfg.NormActionsPostSampling {
		return actions
	}
	r, c := actions.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) },
		actions)
	return out
}

// GetValue returns the values of the inputs
func (p *Policy) GetValue(in Inputs) ([]float64, error) {
	g := network.NewGraph()
	value, _, err := p.Forward(g, in)
	if err != nil {
		return nil, fmt.Errorf("getvalue: %v", err)
	}
	if err := g.Run(); err != nil {
		return nil, fmt.Errorf("getvalue: %v", err)
	}
	return network.ValueOf(value), nil
}

// Evaluation holds the nodes of an evaluation of actions: the B x 1
// values and log-probabilities, and the scalar mean entropy
type Evaluation struct {
	Value   *G.Node
	LogProb *G.Node
	Entropy *G.Node
}

// EvaluateActions adds the evaluation of actions taken in the inputs to
// the graph
func (p *Policy) EvaluateActions(g *network.Graph, in Inputs,
	actions mat.Matrix) (*Evaluation, error) {
	if r, c := actions.Dims(); r != in.rows() || c != p.actions.Dim() {
		return nil, fmt.Errorf("evaluateactions: invalid actions shape "+
			"\n\twant(%d, %d)\n\thave(%d, %d)", in.rows(), p.actions.Dim(), r, c)
	}
	value, dist, err := p.Dist(g, in)
	if err != nil {
		return nil, fmt.Errorf("evaluateactions: %v", err)
	}

	rows := in.rows()
	weights := make([]float64, rows)
	for i := range weights {
		weights[i] = 1 / float64(rows)
	}
	return &Evaluation{
		Value:   value,
		LogProb: dist.LogProb(actions),
		Entropy: g.WeightedSum(dist.Entropy(), weights),
	}, nil
}

// EvaluationValues holds the computed values of an Evaluation
type EvaluationValues struct {
	Value   []float64
	LogProb []float64
	Entropy float64
}

// EvaluateActionsValues evaluates actions taken in the inputs
func (p *Policy) EvaluateActionsValues(in Inputs,
	actions mat.Matrix) (EvaluationValues, error) {
	g := network.NewGraph()
	eval, err := p.EvaluateActions(g, in, actions)
	if err != nil {
		return EvaluationValues{}, err
	}
	if err := g.Run(); err != nil {
		return EvaluationValues{}, fmt.Errorf("evaluateactionsvalues: %v", err)
	}
	return EvaluationValues{
		Value:   network.ValueOf(eval.Value),
		LogProb: network.ValueOf(eval.LogProb),
		Entropy: network.ScalarOf(eval.Entropy),
	}, nil
}

// UpdateRMS folds a batch of inputs into the normalisers of the
// normalised inputs
func (p *Policy) UpdateRMS(in Inputs) error {
	matrices, err := p.matrices(in)
	if err != nil {
		return fmt.Errorf("updaterms: %v", err)
	}
	for i, m := range matrices {
		if err := p.inputs[i].rms.Update(m); err != nil {
			return fmt.Errorf("updaterms: %v: %v", p.inputs[i].name, err)
		}
	}
	return nil
}

// ActionSpace returns the action space of the policy
func (p *Policy) ActionSpace() ActionSpace {
	return p.actions
}

// Params returns the learnable Params of the policy
func (p *Policy) Params() network.Params {
	var params network.Params
	for _, m := range p.inputs {
		params = append(params, m.fe.Params()...)
	}
	return append(params, network.ParamsOf(p.actor, p.critic,
		p.criticLinear, p.head)...)
}

// GobEncode implements the gob.GobEncoder interface
func (p *Policy) GobEncode() ([]byte, error) {
	return p.Params().GobEncode()
}

// GobDecode implements the gob.GobDecoder interface. The Policy must
// have been constructed with the configuration it was encoded with.
func (p *Policy) GobDecode(in []byte) error {
	params := p.Params()
	return params.GobDecode(in)
}
