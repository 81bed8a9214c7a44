package policy

import (
	"math"
	"testing"

	"github.com/MasterXiong/varibad/device"
	"github.com/MasterXiong/varibad/network"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

var dims = InputDims{State: 2, Latent: 4, Belief: 3, Task: 2}

func testConfig() Config {
	c := DefaultConfig()
	c.Layers = []int{16}
	c.StateEmbeddingDim = 4
	return c
}

func inputs(rows int) Inputs {
	state := mat.NewDense(rows, dims.State, nil)
	latent := mat.NewDense(rows, dims.Latent, nil)
	for i := 0; i < rows; i++ {
		state.SetRow(i, []float64{float64(i), -float64(i)})
		latent.SetRow(i, []float64{0.1 * float64(i), 0.2, -0.3, 0.5})
	}
	return Inputs{State: state, Latent: latent}
}

func newPolicy(t *testing.T, c Config, actions ActionSpace) *Policy {
	t.Helper()
	p, err := New(device.NewCPU(5), c, dims, actions)
	if err != nil {
		t.Fatalf("could not create policy: %v", err)
	}
	return p
}

func TestDeterministicActIsPure(t *testing.T) {
	for _, actions := range []ActionSpace{{Discrete: true, N: 5},
		{Discrete: false, N: 2}} {
		p := newPolicy(t, testConfig(), actions)
		in := inputs(3)

		v1, a1, err := p.Act(in, true)
		if err != nil {
			t.Fatal(err)
		}
		v2, a2, err := p.Act(in, true)
		if err != nil {
			t.Fatal(err)
		}
		if !floats.Equal(v1, v2) || !mat.Equal(a1, a2) {
			t.Errorf("%+v: deterministic act is not pure", actions)
		}
		if r, c := a1.Dims(); r != 3 || c != actions.Dim() {
			t.Errorf("%+v: action shape \n\twant(3, %d) \n\thave(%d, %d)",
				actions, actions.Dim(), r, c)
		}

		values, err := p.GetValue(in)
		if err != nil {
			t.Fatal(err)
		}
		if !floats.EqualApprox(values, v1, 1e-12) {
			t.Errorf("%+v: values \n\twant(%v) \n\thave(%v)", actions, v1,
				values)
		}
	}
}

func TestCategoricalEvaluation(t *testing.T) {
	const n = 4
	p := newPolicy(t, testConfig(), ActionSpace{Discrete: true, N: n})
	in := inputs(2)

	// The log-probabilities of all actions must normalise
	total := make([]float64, 2)
	var entropy float64
	for a := 0; a < n; a++ {
		actions := mat.NewDense(2, 1, []float64{float64(a), float64(a)})
		eval, err := p.EvaluateActionsValues(in, actions)
		if err != nil {
			t.Fatal(err)
		}
		for i, lp := range eval.LogProb {
			if lp > 0 {
				t.Errorf("positive log-probability %v", lp)
			}
			total[i] += math.Exp(lp)
		}
		entropy = eval.Entropy
	}
	for _, sum := range total {
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("probabilities sum \n\twant(1) \n\thave(%v)", sum)
		}
	}

	// Initial logits are close to zero, so the distributions are close
	// to uniform
	if math.Abs(entropy-math.Log(n)) > 1e-2 {
		t.Errorf("entropy \n\twant(≈%v) \n\thave(%v)", math.Log(n), entropy)
	}
}

func TestGaussianEvaluation(t *testing.T) {
	c := testConfig()
	c.InitStd = 0.5
	p := newPolicy(t, c, ActionSpace{Discrete: false, N: 2})
	in := inputs(2)

	_, mean, err := p.Act(in, true)
	if err != nil {
		t.Fatal(err)
	}
	eval, err := p.EvaluateActionsValues(in, mean)
	if err != nil {
		t.Fatal(err)
	}

	// At the mean, log p = -A (log σ + ½ log 2π)
	want := -2 * (math.Log(0.5) + 0.5*math.Log(2*math.Pi))
	for _, lp := range eval.LogProb {
		if math.Abs(lp-want) > 1e-9 {
			t.Errorf("log-probability at mean \n\twant(%v) \n\thave(%v)", want,
				lp)
		}
	}
	wantEntropy := 2 * (0.5 + 0.5*math.Log(2*math.Pi) + math.Log(0.5))
	if math.Abs(eval.Entropy-wantEntropy) > 1e-9 {
		t.Errorf("entropy \n\twant(%v) \n\thave(%v)", wantEntropy,
			eval.Entropy)
	}
}

func TestMinStd(t *testing.T) {
	c := testConfig()
	c.InitStd = 1e-9
	c.MinStd = 1e-3
	p := newPolicy(t, c, ActionSpace{Discrete: false, N: 1})

	g := network.NewGraph()
	_, dist, err := p.Dist(g, inputs(1))
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Run(); err != nil {
		t.Fatal(err)
	}
	std := network.MatOf(dist.(*DiagGaussian).std)
	if got := std.At(0, 0); math.Abs(got-1e-3) > 1e-12 {
		t.Errorf("floored std \n\twant(%v) \n\thave(%v)", 1e-3, got)
	}
}

func TestSampleCategorical(t *testing.T) {
	p := newPolicy(t, testConfig(), ActionSpace{Discrete: true, N: 3})
	counts := make([]int, 3)
	for i := 0; i < 300; i++ {
		_, action, err := p.Act(inputs(1), false)
		if err != nil {
			t.Fatal(err)
		}
		counts[int(action.At(0, 0))]++
	}
	for a, count := range counts {
		if count < 50 {
			t.Errorf("action %d sampled %d of 300 times from a near-uniform "+
				"policy", a, count)
		}
	}
}

func TestInputsValidation(t *testing.T) {
	p := newPolicy(t, testConfig(), ActionSpace{Discrete: true, N: 2})

	in := inputs(2)
	in.Latent = nil
	if _, err := p.GetValue(in); err == nil {
		t.Errorf("expected error for missing latent input")
	}

	in = inputs(2)
	in.Task = mat.NewDense(2, dims.Task, nil)
	if _, err := p.GetValue(in); err == nil {
		t.Errorf("expected error for task input to a policy without tasks")
	}
	if _, err := p.GetValue(p.Filter(in)); err != nil {
		t.Errorf("filtered inputs: %v", err)
	}
}

func TestUpdateRMS(t *testing.T) {
	p := newPolicy(t, testConfig(), ActionSpace{Discrete: true, N: 2})
	in := inputs(4)
	before, _, err := p.Act(in, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.UpdateRMS(in); err != nil {
		t.Fatal(err)
	}
	after, _, err := p.Act(in, true)
	if err != nil {
		t.Fatal(err)
	}
	if floats.Equal(before, after) {
		t.Errorf("updating the normalisers did not change the values")
	}
}

func TestMinimiseChangesParams(t *testing.T) {
	p := newPolicy(t, testConfig(), ActionSpace{Discrete: false, N: 2})
	in := inputs(3)
	actions := mat.NewDense(3, 2, []float64{1, 0, 0, 1, -1, -1})

	g := network.NewGraph()
	eval, err := p.EvaluateActions(g, in, actions)
	if err != nil {
		t.Fatal(err)
	}
	loss := G.Must(G.Sub(G.Must(G.Mean(G.Must(G.Square(eval.Value)))),
		G.Must(G.Add(G.Must(G.Mean(eval.LogProb)), eval.Entropy))))

	params := p.Params()
	before := make([][]float64, len(params))
	for i, param := range params {
		before[i] = append([]float64(nil), param.Data()...)
	}
	if err := g.Minimise(loss, params, G.NewVanillaSolver(
		G.WithLearnRate(0.01))); err != nil {
		t.Fatal(err)
	}
	for i, param := range params {
		if floats.Equal(before[i], param.Data()) {
			t.Errorf("param %v did not change", param.Name())
		}
	}
}

func TestLatent(t *testing.T) {
	sample := mat.NewDense(1, 2, []float64{1, 2})
	mean := mat.NewDense(1, 2, []float64{3, 4})
	logVar := mat.NewDense(1, 2, []float64{5, 6})

	if got := Latent(sample, mean, logVar, true); !mat.Equal(got, sample) {
		t.Errorf("sampled latent \n\twant(%v) \n\thave(%v)",
			mat.Formatted(sample), mat.Formatted(got))
	}
	want := mat.NewDense(1, 4, []float64{3, 4, 5, 6})
	if got := Latent(sample, mean, logVar, false); !mat.Equal(got, want) {
		t.Errorf("belief latent \n\twant(%v) \n\thave(%v)",
			mat.Formatted(want), mat.Formatted(got))
	}
}

func TestNewInvalid(t *testing.T) {
	c := testConfig()
	c.Init = "glorot"
	if _, err := New(device.NewCPU(0), c, dims, ActionSpace{N: 1}); err == nil {
		t.Errorf("expected error for unknown init scheme")
	}
	c = testConfig()
	c.PassStateToPolicy, c.PassLatentToPolicy = false, false
	if _, err := New(device.NewCPU(0), c, dims, ActionSpace{N: 1}); err == nil {
		t.Errorf("expected error for a policy without inputs")
	}
}

func TestPostSamplingTanh(t *testing.T) {
	actions := ActionSpace{Discrete: false, N: 2}
	plain := newPolicy(t, testConfig(), actions)
	c := testConfig()
	c.NormActionsPostSampling = true
	squashed := newPolicy(t, c, actions)

	in := inputs(2)
	u := mat.NewDense(2, 2, []float64{0.3, -1.5, 2.2, 0})

	want, err := plain.EvaluateActionsValues(in, u)
	if err != nil {
		t.Fatal(err)
	}
	have, err := squashed.EvaluateActionsValues(in, u)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		correction := 0.0
		for _, v := range u.RawRowView(i) {
			correction += math.Log(1 - math.Tanh(v)*math.Tanh(v))
		}
		if math.Abs(have.LogProb[i]-(want.LogProb[i]-correction)) > 1e-9 {
			t.Errorf("squashed log-probability row %d \n\twant(%v) \n\thave(%v)",
				i, want.LogProb[i]-correction, have.LogProb[i])
		}
	}
	if math.Abs(have.Entropy-want.Entropy) > 1e-12 {
		t.Errorf("entropy of the unsquashed distribution \n\twant(%v) "+
			"\n\thave(%v)", want.Entropy, have.Entropy)
	}

	env := squashed.EnvAction(u)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if env.At(i, j) != math.Tanh(u.At(i, j)) {
				t.Errorf("environment action (%d, %d) \n\twant(%v) \n\thave(%v)",
					i, j, math.Tanh(u.At(i, j)), env.At(i, j))
			}
		}
	}
	if !mat.Equal(plain.EnvAction(u), u) {
		t.Errorf("unsquashed policy changed the environment action")
	}

	if _, err := New(device.NewCPU(5), c, dims,
		ActionSpace{Discrete: true, N: 3}); err == nil {
		t.Errorf("expected error for squashed discrete actions")
	}
}

func TestCriticLinearInit(t *testing.T) {
	p := newPolicy(t, testConfig(), ActionSpace{Discrete: true, N: 3})

	bound := 1 / math.Sqrt(16)
	for _, param := range p.criticLinear.Params() {
		nonzero := false
		for _, w := range param.Data() {
			if math.Abs(w) > bound {
				t.Errorf("%v: %v outside ±%v", param.Name(), w, bound)
			}
			nonzero = nonzero || w != 0
		}
		if !nonzero {
			t.Errorf("%v: all zero", param.Name())
		}
	}
}
