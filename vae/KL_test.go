package vae

import (
	"math"
	"testing"

	"github.com/MasterXiong/varibad/network"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

func TestGaussianKLSelf(t *testing.T) {
	mean := []float64{0.3, -1.2, 2}
	logVar := []float64{-0.5, 0.1, 1.4}

	if kl := GaussianKL(mean, logVar, mean, logVar); math.Abs(kl) > 1e-12 {
		t.Errorf("kl(p, p) \n\twant(0) \n\thave(%v)", kl)
	}
}

func TestGaussianKLStdNormal(t *testing.T) {
	mean := []float64{0.3, -1.2, 2}
	logVar := []float64{-0.5, 0.1, 1.4}
	zeros := make([]float64, len(mean))

	want := StdGaussianKL(mean, logVar)
	if have := GaussianKL(mean, logVar, zeros, zeros); math.Abs(have-want) > 1e-12 {
		t.Errorf("kl to standard normal \n\twant(%v) \n\thave(%v)", want, have)
	}

	// Unit variance shifted by one in a single dimension
	if have := StdGaussianKL([]float64{1, 0}, []float64{0, 0}); have != 0.5 {
		t.Errorf("shifted kl \n\twant(0.5) \n\thave(%v)", have)
	}
}

func TestKLRowsMatchNumeric(t *testing.T) {
	mean := mat.NewDense(2, 2, []float64{0.3, -1.2, 1, 0})
	logE := mat.NewDense(2, 2, []float64{-0.5, 0.1, 0.2, -0.3})
	priorMean := mat.NewDense(2, 2, []float64{0, 0.5, -1, 2})
	logS := mat.NewDense(2, 2, []float64{0.4, -0.2, 0, 1})

	g := network.NewGraph()
	std := stdGaussianKLRows(g, g.Matrix("mean", mean), g.Matrix("loge", logE))
	gen := gaussianKLRows(g, g.Matrix("mean2", mean), g.Matrix("loge2", logE),
		g.Matrix("priormean", priorMean), g.Matrix("logs", logS))
	if err := g.Run(); err != nil {
		t.Fatal(err)
	}

	stdRows := network.ValueOf(std)
	genRows := network.ValueOf(gen)
	for i := 0; i < 2; i++ {
		want := StdGaussianKL(mean.RawRowView(i), logE.RawRowView(i))
		if math.Abs(stdRows[i]-want) > 1e-9 {
			t.Errorf("standard normal kl row %d \n\twant(%v) \n\thave(%v)", i,
				want, stdRows[i])
		}

		want = GaussianKL(mean.RawRowView(i), logE.RawRowView(i),
			priorMean.RawRowView(i), logS.RawRowView(i))
		if math.Abs(genRows[i]-want) > 1e-9 {
			t.Errorf("gaussian kl row %d \n\twant(%v) \n\thave(%v)", i, want,
				genRows[i])
		}
	}
}

func TestKLRowsLearnPrior(t *testing.T) {
	means := []*mat.Dense{
		mat.NewDense(2, 2, []float64{0.5, -0.2, 1, 0.3}),
		mat.NewDense(2, 2, []float64{0.1, 0.4, -0.7, 0.2}),
		mat.NewDense(2, 2, []float64{-0.3, 0.9, 0, 1.1}),
	}
	logVars := []*mat.Dense{
		mat.NewDense(2, 2, []float64{-0.1, 0.2, 0.3, -0.4}),
		mat.NewDense(2, 2, []float64{0, -0.5, 0.1, 0.2}),
		mat.NewDense(2, 2, []float64{0.6, -0.2, -0.3, 0}),
	}

	// total returns the summed KL terms and whether the term of the
	// prior was masked out
	total := func(toGaussPrior, learnPrior bool) (float64, bool) {
		t.Helper()
		g := network.NewGraph()
		var m, lv []*G.Node
		for i := range means {
			m = append(m, g.Matrix("mean", means[i]))
			lv = append(lv, g.Matrix("logvar", logVars[i]))
		}
		kls := klRows(g, m, lv, toGaussPrior, learnPrior)
		if err := g.Run(); err != nil {
			t.Fatal(err)
		}
		var sum float64
		for _, kl := range kls {
			if kl != nil {
				sum += floats.Sum(network.ValueOf(kl))
			}
		}
		return sum, kls[0] == nil
	}

	var prior float64
	for i := 0; i < 2; i++ {
		prior += StdGaussianKL(means[0].RawRowView(i), logVars[0].RawRowView(i))
	}

	tests := []struct {
		name         string
		toGaussPrior bool
		wantMasked   bool
		wantDiff     float64
	}{
		{"sequential", false, true, prior},
		{"gaussian prior", true, false, 0},
	}

	for _, test := range tests {
		off, maskedOff := total(test.toGaussPrior, false)
		on, maskedOn := total(test.toGaussPrior, true)
		if maskedOff {
			t.Errorf("%v: prior term masked without a learned prior", test.name)
		}
		if maskedOn != test.wantMasked {
			t.Errorf("%v: prior term masked \n\twant(%v) \n\thave(%v)",
				test.name, test.wantMasked, maskedOn)
		}
		if diff := off - on; math.Abs(diff-test.wantDiff) > 1e-9 {
			t.Errorf("%v: kl removed by a learned prior \n\twant(%v) "+
				"\n\thave(%v)", test.name, test.wantDiff, diff)
		}
	}
}
