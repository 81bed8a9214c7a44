package gae

import (
	"testing"

	"github.com/MasterXiong/varibad/policy"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var dims = policy.InputDims{State: 2, Latent: 1}

func newBuffer(t *testing.T, steps int) *Buffer {
	t.Helper()
	b, err := New(Config{NumSteps: steps, Gamma: 0.9, Lambda: 0.5}, dims, 1)
	if err != nil {
		t.Fatalf("could not create buffer: %v", err)
	}
	return b
}

func store(t *testing.T, b *Buffer, i int, reward, value float64) {
	t.Helper()
	err := b.Store(Step{
		State:  []float64{float64(i), -float64(i)},
		Latent: []float64{float64(i)},
		Action: []float64{float64(i % 2)},
		Reward: reward,
		Value:  value,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestFinishPath(t *testing.T) {
	b := newBuffer(t, 3)
	rewards := []float64{1, 0, 2}
	values := []float64{0.5, 1, 0.5}
	for i := range rewards {
		store(t, b, i, rewards[i], values[i])
	}
	b.FinishPath(1)

	// δ = [1.4, -0.55, 2.4] and ℽλ = 0.45
	wantAdv := []float64{1.6385, 0.53, 2.4}
	if !floats.EqualApprox(b.advBuffer, wantAdv, 1e-12) {
		t.Errorf("advantages \n\twant(%v) \n\thave(%v)", wantAdv, b.advBuffer)
	}
	wantRet := []float64{3.349, 2.61, 2.9}
	if !floats.EqualApprox(b.retBuffer, wantRet, 1e-12) {
		t.Errorf("returns \n\twant(%v) \n\thave(%v)", wantRet, b.retBuffer)
	}
	if !floats.Equal(b.rewBuffer, rewards) {
		t.Errorf("rewards modified by finishing the path: %v", b.rewBuffer)
	}
}

func TestFinishPathTwice(t *testing.T) {
	b := newBuffer(t, 4)
	store(t, b, 0, 1, 0)
	store(t, b, 1, 1, 0)
	b.FinishPath(0)
	store(t, b, 2, 1, 0)
	store(t, b, 3, 1, 0)
	b.FinishPath(0)

	// Both paths are independent and identical
	want := []float64{1.9, 1, 1.9, 1}
	if !floats.EqualApprox(b.retBuffer, want, 1e-12) {
		t.Errorf("returns \n\twant(%v) \n\thave(%v)", want, b.retBuffer)
	}
}

func TestGet(t *testing.T) {
	b := newBuffer(t, 4)
	for i := 0; i < 3; i++ {
		store(t, b, i, float64(i), 0.5)
	}
	if _, err := b.Get(); err == nil {
		t.Errorf("expected error getting from a buffer that is not full")
	}
	store(t, b, 3, 3, 0.5)
	if _, err := b.Get(); err == nil {
		t.Errorf("expected error getting from an unfinished path")
	}
	b.FinishPath(0)

	batch, err := b.Get()
	if err != nil {
		t.Fatal(err)
	}
	mean, std := stat.MeanStdDev(batch.Advantages, nil)
	if mean > 1e-9 || mean < -1e-9 || std < 1-1e-6 || std > 1+1e-6 {
		t.Errorf("advantages not standardised: mean(%v) std(%v)", mean, std)
	}

	wantState := mat.NewDense(4, 2, []float64{0, 0, 1, -1, 2, -2, 3, -3})
	if !mat.Equal(batch.Inputs.State, wantState) {
		t.Errorf("states \n\twant(%v) \n\thave(%v)", mat.Formatted(wantState),
			mat.Formatted(batch.Inputs.State))
	}
	if batch.Inputs.Belief != nil || batch.Inputs.Task != nil {
		t.Errorf("inputs of zero dimension are not nil")
	}
	if r, c := batch.Actions.Dims(); r != 4 || c != 1 {
		t.Errorf("actions shape \n\twant(4, 1) \n\thave(%d, %d)", r, c)
	}
	if b.Len() != 0 {
		t.Errorf("buffer not emptied by get")
	}
}

func TestStoreInvalid(t *testing.T) {
	b := newBuffer(t, 1)
	err := b.Store(Step{State: []float64{1}, Latent: []float64{1},
		Action: []float64{0}})
	if err == nil {
		t.Errorf("expected error for invalid state length")
	}
	store(t, b, 0, 0, 0)
	if err := b.Store(Step{State: []float64{1, 1}, Latent: []float64{1},
		Action: []float64{0}}); err == nil {
		t.Errorf("expected error storing in a full buffer")
	}
}
