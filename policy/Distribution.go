package policy

import (
	"fmt"
	"math"

	"github.com/MasterXiong/varibad/device"
	"github.com/MasterXiong/varibad/initwfn"
	"github.com/MasterXiong/varibad/network"
	"github.com/MasterXiong/varibad/utils/op"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Distribution is a batch of action distributions, one per row of the
// actor features it was computed from.
//
// LogProb and Entropy add nodes to the graph the Distribution was
// built in, so they must be called before the graph is run. Sample and
// Mode read the computed parameters of the Distribution, so they must
// be called after the graph is run.
type Distribution interface {
	// Sample draws one action per row
	Sample(src rand.Source) *mat.Dense

	// Mode returns the most likely action of each row
	Mode() *mat.Dense

	// LogProb returns the B x 1 log-probabilities of actions
	LogProb(actions mat.Matrix) *G.Node

	// Entropy returns the B x 1 entropies of the distributions
	Entropy() *G.Node
}

// head maps actor features to a Distribution
type head interface {
	network.Module
	dist(g *network.Graph, features *G.Node) (Distribution, error)
}

// categoricalHead parameterises a Categorical with a linear layer
type categoricalHead struct {
	linear *network.Linear
}

func newCategoricalHead(ctx *device.Context, in, actions int) (*categoricalHead,
	error) {
	init := initwfn.NewOrthogonal(0.01).InitWFn(ctx.NewSource())
	linear, err := network.NewLinear("policy/dist/linear", in, actions, init,
		true)
	if err != nil {
		return nil, fmt.Errorf("newcategoricalhead: %v", err)
	}
	return &categoricalHead{linear: linear}, nil
}

func (c *categoricalHead) dist(g *network.Graph,
	features *G.Node) (Distribution, error) {
	logits, err := c.linear.Fwd(g, features)
	if err != nil {
		return nil, fmt.Errorf("dist: %v", err)
	}
	return &Categorical{
		g:        g,
		logits:   logits,
		logProbs: g.LogSoftmaxRows(logits),
	}, nil
}

func (c *categoricalHead) Params() network.Params {
	return c.linear.Params()
}

// Categorical is a batch of categorical distributions over action
// indices. Actions are B x 1 matrices of indices.
type Categorical struct {
	g        *network.Graph
	logits   *G.Node
	logProbs *G.Node
}

// Sample draws one action index per row from the softmax of the
// logits
func (c *Categorical) Sample(src rand.Source) *mat.Dense {
	logits := network.MatOf(c.logits)
	rows, _ := logits.Dims()

	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		weights := softmax(logits.RawRowView(i))
		out.Set(i, 0, distuv.NewCategorical(weights, src).Rand())
	}
	return out
}

// Mode returns the index of the largest logit of each row
func (c *Categorical) Mode() *mat.Dense {
	logits := network.MatOf(c.logits)
	rows, _ := logits.Dims()

	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, float64(floats.MaxIdx(logits.RawRowView(i))))
	}
	return out
}

// LogProb returns the log-probability of the action index in each row
// of actions
func (c *Categorical) LogProb(actions mat.Matrix) *G.Node {
	rows, cols := actions.Dims()
	if cols != 1 {
		panic(fmt.Sprintf("logprob: categorical actions must be a single "+
			"column, got %d", cols))
	}
	idx := make([]int, rows)
	for i := range idx {
		idx[i] = int(actions.At(i, 0))
	}
	mask := c.g.OneHot("action", idx, c.logProbs.Shape()[1])
	return c.g.RowSum(G.Must(G.HadamardProd(c.logProbs, mask)))
}

// Entropy returns -Σ p log p of each row
func (c *Categorical) Entropy() *G.Node {
	probs := G.Must(G.Exp(c.logProbs))
	return G.Must(G.Neg(c.g.RowSum(G.Must(G.HadamardProd(probs, c.logProbs)))))
}

// softmax returns the softmax of x
func softmax(x []float64) []float64 {
	max := floats.Max(x)
	out := make([]float64, len(x))
	for i := range out {
		out[i] = math.Exp(x[i] - max)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

// gaussianHead parameterises a DiagGaussian with a linear layer for
// the mean and a learned, state-independent log standard deviation
type gaussianHead struct {
	mean   *network.Linear
	logStd *network.Param

	minStd float64

	// Squash the mean before sampling, or the sample after it
	preSquash  bool
	postSquash bool
}

func newGaussianHead(ctx *device.Context, in, actions int, initStd,
	minStd float64, preSquash, postSquash bool) (*gaussianHead, error) {
	init := initwfn.NewNormC(1.0).InitWFn(ctx.NewSource())
	mean, err := network.NewLinear("policy/dist/fc_mean", in, actions, init,
		true)
	if err != nil {
		return nil, fmt.Errorf("newgaussianhead: %v", err)
	}

	backing := make([]float64, actions)
	for i := range backing {
		backing[i] = math.Log(initStd)
	}
	logStd := network.NewParam("policy/dist/logstd", tensor.New(
		tensor.WithShape(1, actions),
		tensor.WithBacking(backing),
	))

	return &gaussianHead{
		mean:   mean,
		logStd: logStd,
		minStd:     minStd,
		preSquash:  preSquash,
		postSquash: postSquash,
	}, nil
}

func (d *gaussianHead) dist(g *network.Graph,
	features *G.Node) (Distribution, error) {
	mean, err := d.mean.Fwd(g, features)
	if err != nil {
		return nil, fmt.Errorf("dist: %v", err)
	}
	if d.preSquash {
		mean = G.Must(G.Tanh(mean))
	}

	// std = max(minStd, exp(logstd)), shared by every row
	actions := mean.Shape()[1]
	std := G.Must(G.Exp(g.Param(d.logStd)))
	std, err = op.Max(std, g.Fill("min_std", 1, actions, d.minStd))
	if err != nil {
		return nil, fmt.Errorf("dist: %v", err)
	}
	std = G.Must(G.Mul(g.Fill("ones", mean.Shape()[0], 1, 1.0), std))

	return &DiagGaussian{g: g, mean: mean, std: std, squashed: d.postSquash},
		nil
}

func (d *gaussianHead) Params() network.Params {
	return append(d.mean.Params(), d.logStd)
}

// DiagGaussian is a batch of Gaussian distributions with diagonal
// covariance. Actions are B x A matrices.
//
// A squashed DiagGaussian is the distribution of tanh(u) for Gaussian
// u. Its samples, modes, and evaluated actions are still u, and its
// entropy is that of u.
type DiagGaussian struct {
	g        *network.Graph
	mean     *G.Node
	std      *G.Node
	squashed bool
}

// Sample draws one action per row
func (d *DiagGaussian) Sample(src rand.Source) *mat.Dense {
	mean := network.MatOf(d.mean)
	std := network.MatOf(d.std)
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	r, c := mean.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return v + std.At(i, j)*normal.Rand()
	}, mean)
	return out
}

// Mode returns the mean of each row
func (d *DiagGaussian) Mode() *mat.Dense {
	return network.MatOf(d.mean)
}

// LogProb returns the log-density of each row of actions, summed over
// action dimensions. For a squashed DiagGaussian this is the density of
// tanh(u) at the unsquashed actions u:
//
//	log p(u) - Σ log(1 - tanh²(u))
//
// with log(1 - tanh²(u)) = 2 (log 2 - u - softplus(-2u)).
func (d *DiagGaussian) LogProb(actions mat.Matrix) *G.Node {
	x := d.g.Matrix("action", actions)
	logProb := d.g.RowSum(op.GaussianLogPdf(d.mean, d.std, x))
	if !d.squashed {
		return logProb
	}

	twoX := G.Must(G.HadamardProd(G.NewConstant(2.0), x))
	logDet := G.Must(G.Sub(G.NewConstant(math.Log(2)), x))
	logDet = G.Must(G.Sub(logDet, G.Must(G.Softplus(G.Must(G.Neg(twoX))))))
	logDet = G.Must(G.HadamardProd(G.NewConstant(2.0), logDet))
	return G.Must(G.Sub(logProb, d.g.RowSum(logDet)))
}

// Entropy returns the entropy of each row, summed over action
// dimensions:
//
//	H = Σ ½ + ½ log 2π + log σ
func (d *DiagGaussian) Entropy() *G.Node {
	c := G.NewConstant(0.5 + 0.5*math.Log(2*math.Pi))
	return d.g.RowSum(G.Must(G.Add(G.Must(G.Log(d.std)), c)))
}
