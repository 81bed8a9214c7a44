package network

import (
	"encoding/json"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func equal(t *testing.T, name string, want, have []float64) {
	t.Helper()
	if !floats.EqualApprox(want, have, 1e-9) {
		t.Errorf("%v \n\twant(%v) \n\thave(%v)", name, want, have)
	}
}

func TestGRUStep(t *testing.T) {
	// With zero weights and biases both gates are ½ and the new gate is
	// 0, so that the cell halves its hidden state
	gru, err := NewGRU("gru", 3, 2, G.Zeroes())
	if err != nil {
		t.Fatal(err)
	}

	g := NewGraph()
	x := g.Matrix("x", mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}))
	h := g.Matrix("h", mat.NewDense(2, 2, []float64{1, 2, -1, 4}))
	next, err := gru.Step(g, x, h)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Run(); err != nil {
		t.Fatal(err)
	}

	if s := next.Shape(); s[0] != 2 || s[1] != 2 {
		t.Errorf("hidden shape \n\twant([2 2]) \n\thave(%v)", s)
	}
	equal(t, "hidden", []float64{0.5, 1, -0.5, 2}, ValueOf(next))

	if n := len(gru.Params()); n != 12 {
		t.Errorf("number of params \n\twant(12) \n\thave(%v)", n)
	}
}

func TestGraphOps(t *testing.T) {
	g := NewGraph()
	x := g.Matrix("x", mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}))

	cols := g.SelectColumns(x, 1, 3)
	col := g.SelectColumns(x, 2, 3)
	sum := g.RowSum(x)
	mean := g.RowMean(x)
	rows := g.GatherRows(x, []int{1, 1, 0})
	lsm := g.LogSoftmaxRows(x)
	weighted := g.WeightedSum(sum, []float64{0.5, 2})

	if err := g.Run(); err != nil {
		t.Fatal(err)
	}

	equal(t, "columns", []float64{2, 3, 5, 6}, ValueOf(cols))
	if s := col.Shape(); s[0] != 2 || s[1] != 1 {
		t.Errorf("single column shape \n\twant([2 1]) \n\thave(%v)", s)
	}
	equal(t, "column", []float64{3, 6}, ValueOf(col))
	equal(t, "rowsum", []float64{6, 15}, ValueOf(sum))
	equal(t, "rowmean", []float64{2, 5}, ValueOf(mean))
	equal(t, "gather", []float64{4, 5, 6, 4, 5, 6, 1, 2, 3}, ValueOf(rows))
	equal(t, "weightedsum", []float64{33}, ValueOf(weighted))

	lse := math.Log(math.Exp(1) + math.Exp(2) + math.Exp(3))
	equal(t, "logsoftmax", []float64{1 - lse, 2 - lse, 3 - lse},
		ValueOf(lsm)[:3])
}

func TestMinimise(t *testing.T) {
	l, err := NewLinear("linear", 1, 1, G.Ones(), true)
	if err != nil {
		t.Fatal(err)
	}

	g := NewGraph()
	x := g.Matrix("x", mat.NewDense(1, 1, []float64{3}))
	y, err := l.Fwd(g, x)
	if err != nil {
		t.Fatal(err)
	}
	loss := G.Must(G.Sum(y))

	solver := G.NewVanillaSolver(G.WithLearnRate(0.1))
	if err := g.Minimise(loss, l.Params(), solver); err != nil {
		t.Fatal(err)
	}

	// ∂loss/∂w = x and ∂loss/∂b = 1
	equal(t, "weights", []float64{0.7}, l.Weights().Data())
	equal(t, "bias", []float64{-0.1}, l.Bias().Data())
}

func TestMinimiseDetached(t *testing.T) {
	a, _ := NewLinear("a", 1, 1, G.Ones(), false)
	b, _ := NewLinear("b", 1, 1, G.Ones(), false)
	c, _ := NewLinear("c", 1, 1, G.Ones(), false)
	params := ParamsOf(a, b, c)
	solver := G.NewAdamSolver(G.WithLearnRate(0.1))

	step := func(loss func(g *Graph, x *G.Node) *G.Node) {
		t.Helper()
		g := NewGraph()
		x := g.Matrix("x", mat.NewDense(1, 1, []float64{3}))
		if err := g.Minimise(loss(g, x), params, solver); err != nil {
			t.Fatal(err)
		}
	}
	fwd := func(l *Linear, g *Graph, x *G.Node) *G.Node {
		y, err := l.Fwd(g, x)
		if err != nil {
			t.Fatal(err)
		}
		return G.Must(G.Sum(y))
	}

	// b is in the graph but not in the loss, and c is not in the graph
	step(func(g *Graph, x *G.Node) *G.Node {
		fwd(b, g, x)
		return fwd(a, g, x)
	})
	if a.Weights().Data()[0] == 1 {
		t.Errorf("connected weights were not updated")
	}
	equal(t, "detached weights", []float64{1}, b.Weights().Data())
	equal(t, "unbound weights", []float64{1}, c.Weights().Data())

	step(func(g *Graph, x *G.Node) *G.Node {
		return G.Must(G.Add(fwd(b, g, x), fwd(c, g, x)))
	})
	if b.Weights().Data()[0] == 1 || c.Weights().Data()[0] == 1 {
		t.Errorf("weights were not updated once connected \n\tb(%v) \n\tc(%v)",
			b.Weights().Data(), c.Weights().Data())
	}

	g := NewGraph()
	if err := g.Minimise(G.NewConstant(1.0), params, solver); err == nil {
		t.Errorf("minimise of a constant loss should fail")
	}
}

func TestConnected(t *testing.T) {
	a, _ := NewLinear("a", 2, 1, G.Ones(), false)
	b, _ := NewLinear("b", 2, 1, G.Ones(), false)

	g := NewGraph()
	x := g.Matrix("x", mat.NewDense(1, 2, []float64{1, 2}))
	ya, err := a.Fwd(g, x)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Fwd(g, x); err != nil {
		t.Fatal(err)
	}

	if !g.Connected(ya, a.Params()) {
		t.Errorf("output of a not connected to a")
	}
	if g.Connected(ya, b.Params()) {
		t.Errorf("output of a connected to b")
	}
}

func TestParamsGob(t *testing.T) {
	mlp, err := NewMLP("mlp", 3, []int{4, 2}, TanH(),
		G.GlorotU(1.0))
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := mlp.Params().GobEncode()
	if err != nil {
		t.Fatal(err)
	}

	// Decoding into empty Params creates new Params
	var fresh Params
	if err := fresh.GobDecode(encoded); err != nil {
		t.Fatal(err)
	}
	if len(fresh) != len(mlp.Params()) {
		t.Fatalf("number of params \n\twant(%v) \n\thave(%v)",
			len(mlp.Params()), len(fresh))
	}
	for i, p := range mlp.Params() {
		if fresh[i].Name() != p.Name() {
			t.Errorf("name \n\twant(%v) \n\thave(%v)", p.Name(),
				fresh[i].Name())
		}
		equal(t, p.Name(), p.Data(), fresh[i].Data())
	}

	// Decoding into existing Params overwrites them in place
	other, err := NewMLP("mlp", 3, []int{4, 2}, TanH(), G.Zeroes())
	if err != nil {
		t.Fatal(err)
	}
	params := other.Params()
	if err := params.GobDecode(encoded); err != nil {
		t.Fatal(err)
	}
	for i, p := range mlp.Params() {
		equal(t, p.Name(), p.Data(), other.Params()[i].Data())
	}

	// Mismatched shapes are rejected
	small, _ := NewMLP("mlp", 2, []int{4, 2}, TanH(), G.Zeroes())
	smallParams := small.Params()
	if err := smallParams.GobDecode(encoded); err == nil {
		t.Errorf("gobdecode: expected error for mismatched shapes")
	}
}

func TestParamSet(t *testing.T) {
	p := NewParam("p", tensor.New(tensor.WithShape(1, 2),
		tensor.WithBacking([]float64{1, 2})))
	if err := p.Set(tensor.New(tensor.WithShape(2, 1),
		tensor.WithBacking([]float64{3, 4}))); err == nil {
		t.Errorf("set: expected error for mismatched shape")
	}
	if err := p.Set(tensor.New(tensor.WithShape(1, 2),
		tensor.WithBacking([]float64{3, 4}))); err != nil {
		t.Fatal(err)
	}
	equal(t, "param", []float64{3, 4}, p.Data())
}

func TestActivations(t *testing.T) {
	tests := []struct {
		name string
		gain float64
	}{
		{"relu", math.Sqrt2},
		{"leaky-relu", math.Sqrt(2 / (1 + 0.01*0.01))},
		{"tanh", 5.0 / 3.0},
		{"identity", 1},
	}
	for _, test := range tests {
		a, err := ParseActivation(test.name)
		if err != nil {
			t.Errorf("parseactivation: %v", err)
			continue
		}
		if a.String() != test.name {
			t.Errorf("name \n\twant(%v) \n\thave(%v)", test.name, a)
		}
		if math.Abs(a.Gain()-test.gain) > 1e-12 {
			t.Errorf("%v gain \n\twant(%v) \n\thave(%v)", test.name, test.gain,
				a.Gain())
		}

		data, err := json.Marshal(a)
		if err != nil {
			t.Fatal(err)
		}
		var decoded Activation
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatal(err)
		}
		if decoded.String() != test.name {
			t.Errorf("json \n\twant(%v) \n\thave(%v)", test.name, &decoded)
		}
	}

	if _, err := ParseActivation("sigmoid"); err == nil {
		t.Errorf("parseactivation: expected error for unknown activation")
	}
}

func TestFeatureExtractor(t *testing.T) {
	pass, err := NewFeatureExtractor("pass", 3, 0, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if pass.Enabled() || pass.Out() != 3 || len(pass.Params()) != 0 {
		t.Errorf("disabled feature extractor \n\twant(false, 3, 0) "+
			"\n\thave(%v, %v, %v)", pass.Enabled(), pass.Out(),
			len(pass.Params()))
	}

	fe, err := NewFeatureExtractor("fe", 3, 2, ReLU(), G.Ones())
	if err != nil {
		t.Fatal(err)
	}
	g := NewGraph()
	x := g.Matrix("x", mat.NewDense(1, 3, []float64{1, -4, 1}))
	passed, err := pass.Fwd(g, x)
	if err != nil {
		t.Fatal(err)
	}
	if passed != x {
		t.Errorf("disabled feature extractor changed its input")
	}
	y, err := fe.Fwd(g, x)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Run(); err != nil {
		t.Fatal(err)
	}
	equal(t, "features", []float64{0, 0}, ValueOf(y))

	var nilFE *FeatureExtractor
	if len(ParamsOf(nilFE, fe)) != 2 {
		t.Errorf("paramsof: expected params of the enabled extractor only")
	}
}
