package decoder

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/MasterXiong/varibad/device"
	"github.com/MasterXiong/varibad/network"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// cells indexes states by their first coordinate and tasks likewise
type cells int

func (c cells) StateToIndex(state []float64) int { return int(state[0]) }
func (c cells) NumStates() int                   { return int(c) }
func (c cells) TaskToID(task []float64) int      { return int(task[0]) }
func (c cells) NumTasks() int                    { return int(c) }

const (
	latentDim = 3
	stateDim  = 2
	actionDim = 1
	rows      = 4
)

var (
	latent    = mat.NewDense(rows, latentDim, []float64{0.1, -0.2, 0.3, 1, 0, -1, 0.5, 0.5, 0.5, -0.3, 0.2, 0.9})
	prevState = mat.NewDense(rows, stateDim, []float64{0, 1, 1, 1, 2, 0, 3, 2})
	action    = mat.NewDense(rows, actionDim, []float64{0, 1, 2, 3})
	nextState = mat.NewDense(rows, stateDim, []float64{1, 1, 2, 0, 3, 2, 4, 4})
	rewards   = mat.NewDense(rows, 1, []float64{-0.1, 1, -0.1, 1})
)

func TestStateDecoderDeterministic(t *testing.T) {
	c := StateConfig{Layers: []int{8}, StateEmbedSize: 4, ActionEmbedSize: 2,
		Mode: StateDeterministic}
	d, err := NewStateDecoder(device.NewCPU(1), c, latentDim, stateDim,
		actionDim)
	if err != nil {
		t.Fatal(err)
	}

	g := network.NewGraph()
	z := g.Matrix("latent", latent)
	loss, err := d.Loss(g, z, prevState, action, nextState)
	if err != nil {
		t.Fatal(err)
	}
	pred, err := d.Fwd(g, z, g.Matrix("prev", prevState), g.Matrix("action",
		action))
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Run(); err != nil {
		t.Fatal(err)
	}

	if s := loss.Shape(); s[0] != rows || s[1] != 1 {
		t.Fatalf("loss shape \n\twant(%d, 1) \n\thave(%v)", rows, s)
	}
	p := network.MatOf(pred)
	got := network.ValueOf(loss)
	for i := 0; i < rows; i++ {
		var want float64
		for j := 0; j < stateDim; j++ {
			diff := p.At(i, j) - nextState.At(i, j)
			want += diff * diff / stateDim
		}
		if math.Abs(got[i]-want) > 1e-10 {
			t.Errorf("row %d: loss \n\twant(%v) \n\thave(%v)", i, want, got[i])
		}
	}
}

func TestStateDecoderGaussian(t *testing.T) {
	c := StateConfig{Layers: []int{8}, Mode: StateGaussian}
	d, err := NewStateDecoder(device.NewCPU(2), c, latentDim, stateDim,
		actionDim)
	if err != nil {
		t.Fatal(err)
	}

	g := network.NewGraph()
	z := g.Matrix("latent", latent)
	loss, err := d.Loss(g, z, prevState, action, nextState)
	if err != nil {
		t.Fatal(err)
	}
	pred, err := d.Fwd(g, z, g.Matrix("prev", prevState), g.Matrix("action",
		action))
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Run(); err != nil {
		t.Fatal(err)
	}

	if s := pred.Shape(); s[1] != 2*stateDim {
		t.Fatalf("prediction columns \n\twant(%d) \n\thave(%d)", 2*stateDim, s[1])
	}
	p := network.MatOf(pred)
	got := network.ValueOf(loss)
	for i := 0; i < rows; i++ {
		var want float64
		for j := 0; j < stateDim; j++ {
			mean, logVar := p.At(i, j), p.At(i, stateDim+j)
			std := math.Exp(0.5 * logVar)
			z := (nextState.At(i, j) - mean) / std
			want += (0.5*z*z + math.Log(std) + 0.5*math.Log(2*math.Pi)) / stateDim
		}
		if math.Abs(got[i]-want) > 1e-10 {
			t.Errorf("row %d: loss \n\twant(%v) \n\thave(%v)", i, want, got[i])
		}
	}
}

func TestRewardDecoderMultiHeadCategorical(t *testing.T) {
	c := RewardConfig{Layers: []int{8}, Mode: RewardCategorical,
		MultiHead: true}
	d, err := NewRewardDecoder(device.NewCPU(3), c, latentDim, stateDim,
		actionDim, cells(5))
	if err != nil {
		t.Fatal(err)
	}

	g := network.NewGraph()
	z := g.Matrix("latent", latent)
	loss, err := d.Loss(g, z, prevState, action, nextState, rewards)
	if err != nil {
		t.Fatal(err)
	}
	pred, err := d.Fwd(g, z, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Run(); err != nil {
		t.Fatal(err)
	}

	logits := network.MatOf(pred)
	got := network.ValueOf(loss)
	for i := 0; i < rows; i++ {
		var norm float64
		for j := 0; j < 5; j++ {
			norm += math.Exp(logits.At(i, j))
		}
		p := math.Exp(logits.At(i, int(nextState.At(i, 0)))) / norm

		want := -math.Log(1 - p)
		if rewards.At(i, 0) == 1 {
			want = -math.Log(p)
		}
		if math.Abs(got[i]-want) > 1e-8 {
			t.Errorf("row %d: loss \n\twant(%v) \n\thave(%v)", i, want, got[i])
		}
	}
}

func TestRewardDecoderBernoulli(t *testing.T) {
	c := RewardConfig{Layers: []int{8}, StateEmbedSize: 3, ActionEmbedSize: 2,
		Mode: RewardBernoulli, InputAction: true, InputPrevState: true}
	d, err := NewRewardDecoder(device.NewCPU(4), c, latentDim, stateDim,
		actionDim, nil)
	if err != nil {
		t.Fatal(err)
	}

	g := network.NewGraph()
	z := g.Matrix("latent", latent)
	loss, err := d.Loss(g, z, prevState, action, nextState, rewards)
	if err != nil {
		t.Fatal(err)
	}
	pred, err := d.Fwd(g, z, g.Matrix("next", nextState), g.Matrix("prev",
		prevState), g.Matrix("action", action))
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Run(); err != nil {
		t.Fatal(err)
	}

	logits := network.ValueOf(pred)
	got := network.ValueOf(loss)
	for i := 0; i < rows; i++ {
		p := 1 / (1 + math.Exp(-logits[i]))
		want := -math.Log(1 - p)
		if rewards.At(i, 0) == 1 {
			want = -math.Log(p)
		}
		if math.Abs(got[i]-want) > 1e-8 {
			t.Errorf("row %d: loss \n\twant(%v) \n\thave(%v)", i, want, got[i])
		}
	}
}

func TestRewardDecoderMultiHead(t *testing.T) {
	tests := []struct {
		mode RewardMode
		loss func(logit, reward float64) float64
	}{
		{RewardDeterministic, func(logit, reward float64) float64 {
			return (logit - reward) * (logit - reward)
		}},
		{RewardBernoulli, func(logit, reward float64) float64 {
			p := 1 / (1 + math.Exp(-logit))
			if reward == 1 {
				return -math.Log(p)
			}
			return -math.Log(1 - p)
		}},
	}

	for _, test := range tests {
		c := RewardConfig{Layers: []int{8}, Mode: test.mode, MultiHead: true}
		d, err := NewRewardDecoder(device.NewCPU(6), c, latentDim, stateDim,
			actionDim, cells(5))
		if err != nil {
			t.Fatal(err)
		}

		g := network.NewGraph()
		z := g.Matrix("latent", latent)
		loss, err := d.Loss(g, z, prevState, action, nextState, rewards)
		if err != nil {
			t.Fatal(err)
		}
		pred, err := d.Fwd(g, z, nil, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := g.Run(); err != nil {
			t.Fatal(err)
		}

		heads := network.MatOf(pred)
		if _, c := heads.Dims(); c != 5 {
			t.Fatalf("%v: heads \n\twant(5) \n\thave(%d)", test.mode, c)
		}
		got := network.ValueOf(loss)
		for i := 0; i < rows; i++ {
			logit := heads.At(i, int(nextState.At(i, 0)))
			want := test.loss(logit, rewards.At(i, 0))
			if math.Abs(got[i]-want) > 1e-8 {
				t.Errorf("%v: row %d: loss \n\twant(%v) \n\thave(%v)",
					test.mode, i, want, got[i])
			}
		}
	}
}

func TestRewardDecoderInvalid(t *testing.T) {
	c := RewardConfig{Mode: RewardCategorical}
	if _, err := NewRewardDecoder(device.NewCPU(0), c, 1, 1, 1,
		cells(2)); err == nil {
		t.Errorf("expected error for categorical single-head decoder")
	}

	c = RewardConfig{Mode: RewardBernoulli, MultiHead: true}
	if _, err := NewRewardDecoder(device.NewCPU(0), c, 1, 1, 1,
		nil); err == nil {
		t.Errorf("expected error for multi-head decoder without indexer")
	}
}

func TestTaskDecoderTaskID(t *testing.T) {
	c := TaskConfig{Layers: []int{6}, Mode: TaskID}
	d, err := NewTaskDecoder(device.NewCPU(5), c, latentDim, 2, cells(4))
	if err != nil {
		t.Fatal(err)
	}
	tasks := mat.NewDense(rows, 2, []float64{0, 0, 3, 1, 2, 2, 1, 0})

	g := network.NewGraph()
	z := g.Matrix("latent", latent)
	loss, err := d.Loss(g, z, tasks)
	if err != nil {
		t.Fatal(err)
	}
	pred, err := d.Fwd(g, z)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Run(); err != nil {
		t.Fatal(err)
	}

	logits := network.MatOf(pred)
	got := network.ValueOf(loss)
	for i := 0; i < rows; i++ {
		var norm float64
		for j := 0; j < 4; j++ {
			norm += math.Exp(logits.At(i, j))
		}
		want := -logits.At(i, int(tasks.At(i, 0))) + math.Log(norm)
		if math.Abs(got[i]-want) > 1e-10 {
			t.Errorf("row %d: loss \n\twant(%v) \n\thave(%v)", i, want, got[i])
		}
	}
}

func TestTaskDecoderGradient(t *testing.T) {
	c := TaskConfig{Layers: []int{6}, Mode: TaskDescription}
	d, err := NewTaskDecoder(device.NewCPU(6), c, latentDim, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	tasks := mat.NewDense(rows, 2, []float64{0, 0, 3, 1, 2, 2, 1, 0})

	before := make([]float64, len(d.Params()[0].Data()))
	copy(before, d.Params()[0].Data())

	g := network.NewGraph()
	loss, err := d.Loss(g, g.Matrix("latent", latent), tasks)
	if err != nil {
		t.Fatal(err)
	}
	total := G.Must(G.Mean(loss))
	if !g.Connected(total, d.Params()) {
		t.Fatalf("loss is not connected to the decoder parameters")
	}
	solver := G.NewVanillaSolver(G.WithLearnRate(0.1))
	if err := g.Minimise(total, d.Params(), solver); err != nil {
		t.Fatal(err)
	}

	changed := false
	for i, v := range d.Params()[0].Data() {
		if v != before[i] {
			changed = true
		}
	}
	if !changed {
		t.Errorf("optimiser step did not change the decoder parameters")
	}
}

func TestParseModes(t *testing.T) {
	if _, err := ParseStateMode("poisson"); err == nil {
		t.Errorf("expected error for unknown state mode")
	}
	if m, err := ParseRewardMode("bernoulli"); err != nil || m != RewardBernoulli {
		t.Errorf("parse bernoulli \n\twant(%v) \n\thave(%v, %v)", RewardBernoulli,
			m, err)
	}

	var c TaskConfig
	if err := json.Unmarshal([]byte(`{"Mode": "task_description"}`),
		&c); err != nil {
		t.Fatal(err)
	}
	if c.Mode != TaskDescription {
		t.Errorf("json task mode \n\twant(%v) \n\thave(%v)", TaskDescription,
			c.Mode)
	}
	if err := json.Unmarshal([]byte(`{"Mode": "task"}`), &c); err == nil {
		t.Errorf("expected error for unknown json task mode")
	}
}
