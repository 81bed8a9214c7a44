package normalize

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestUpdateConstant(t *testing.T) {
	r := New(2)
	batch := mat.NewDense(4, 2, []float64{3, -1, 3, -1, 3, -1, 3, -1})

	for i := 0; i < 200; i++ {
		if err := r.Update(batch); err != nil {
			t.Fatal(err)
		}
	}

	if !floats.EqualApprox(r.Mean(), []float64{3, -1}, 1e-6) {
		t.Errorf("mean \n\twant(%v) \n\thave(%v)", []float64{3, -1}, r.Mean())
	}
	for _, v := range r.Var() {
		if v > 1e-6 {
			t.Errorf("variance \n\twant(0) \n\thave(%v)", v)
		}
	}
}

func TestUpdateMatchesFullBatch(t *testing.T) {
	data := []float64{1, 2, 4, 8, 16, -3, 0.5, 7}
	r := New(1)
	if err := r.Update(mat.NewDense(3, 1, data[:3])); err != nil {
		t.Fatal(err)
	}
	if err := r.Update(mat.NewDense(5, 1, data[3:])); err != nil {
		t.Fatal(err)
	}

	// The initial pseudo-count contributes a negligible amount
	mean := stat.Mean(data, nil)
	variance := stat.MomentAbout(2, data, mean, nil)
	if math.Abs(r.Mean()[0]-mean) > 1e-3 {
		t.Errorf("mean \n\twant(%v) \n\thave(%v)", mean, r.Mean()[0])
	}
	if math.Abs(r.Var()[0]-variance) > 1e-2 {
		t.Errorf("variance \n\twant(%v) \n\thave(%v)", variance, r.Var()[0])
	}
}

func TestNormalize(t *testing.T) {
	r := New(2)
	x := mat.NewDense(1, 2, []float64{2, -2})

	// Initial estimate: mean 0, variance 1
	got := r.Normalize(x)
	want := 2 / math.Sqrt(1+Epsilon)
	if math.Abs(got.At(0, 0)-want) > 1e-12 || math.Abs(got.At(0, 1)+want) > 1e-12 {
		t.Errorf("normalize \n\twant(%v) \n\thave(%v)", want, mat.Formatted(got))
	}
	if x.At(0, 0) != 2 {
		t.Errorf("normalize modified its input")
	}
}

func TestNilIsDisabled(t *testing.T) {
	var r *RunningMeanStd
	x := mat.NewDense(2, 1, []float64{5, 6})
	if err := r.Update(x); err != nil {
		t.Errorf("update on disabled normaliser: %v", err)
	}
	if !mat.Equal(r.Normalize(x), x) {
		t.Errorf("disabled normaliser changed its input")
	}
}

func TestUpdateInvalidFeatures(t *testing.T) {
	r := New(3)
	if err := r.Update(mat.NewDense(1, 2, nil)); err == nil {
		t.Errorf("expected error for wrong number of features")
	}
}
