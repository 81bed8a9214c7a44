package tracker

import (
	"path/filepath"
	"testing"

	ts "github.com/MasterXiong/varibad/timestep"
	"gonum.org/v1/gonum/mat"
)

func TestScalarsSaveLoad(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "data.bin")
	s := NewScalars(filename)
	s.Add("vae_losses/kl", 0.5, 0)
	s.Track("vae_losses/kl", 0.25, 10)
	s.Track("policy/entropy", 1.2, 10)

	if err := s.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := LoadData(filename)
	if err != nil {
		t.Fatalf("loaddata: %v", err)
	}

	kl := data["vae_losses/kl"]
	want := []Point{{0, 0.5}, {10, 0.25}}
	if len(kl) != len(want) {
		t.Fatalf("series length \n\twant(%v) \n\thave(%v)", len(want), len(kl))
	}
	for i := range want {
		if kl[i] != want[i] {
			t.Errorf("point %d \n\twant(%v) \n\thave(%v)", i, want[i], kl[i])
		}
	}

	tags := s.Tags()
	if len(tags) != 2 || tags[0] != "policy/entropy" {
		t.Errorf("tags \n\twant([policy/entropy vae_losses/kl]) \n\thave(%v)",
			tags)
	}
}

func TestEvery(t *testing.T) {
	s := NewScalars("")
	every := Every(s, 5)
	for i := 0; i < 12; i++ {
		every.Add("x", float64(i), i)
	}

	series := s.Series("x")
	if len(series) != 3 {
		t.Fatalf("tracked values \n\twant(3) \n\thave(%v)", len(series))
	}
	for i, p := range series {
		if p.Iter != 5*i {
			t.Errorf("iteration \n\twant(%v) \n\thave(%v)", 5*i, p.Iter)
		}
	}
}

func TestEpisodes(t *testing.T) {
	s := NewScalars("")
	e := NewEpisodes(s)
	obs := mat.NewVecDense(1, nil)

	rewards := []float64{0, 1, 2, 3}
	for episode := 0; episode < 2; episode++ {
		for i, r := range rewards {
			stepType := ts.Mid
			switch i {
			case 0:
				stepType = ts.First
			case len(rewards) - 1:
				stepType = ts.Last
			}
			e.Step(ts.New(stepType, r, 1, obs, i), episode)
		}
	}

	returns := s.Series(ReturnTag)
	if len(returns) != 2 {
		t.Fatalf("number of returns \n\twant(2) \n\thave(%v)", len(returns))
	}
	for _, ret := range returns {
		if ret.Value != 6 {
			t.Errorf("return \n\twant(6) \n\thave(%v)", ret.Value)
		}
	}
	if l := s.Series(EpisodeLengthTag)[0].Value; l != 3 {
		t.Errorf("episode length \n\twant(3) \n\thave(%v)", l)
	}
}

func TestEpisodesNonSequential(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("step: expected panic on non-sequential timesteps")
		}
	}()

	e := NewEpisodes(NewScalars(""))
	obs := mat.NewVecDense(1, nil)
	e.Step(ts.New(ts.First, 0, 1, obs, 0), 0)
	e.Step(ts.New(ts.Mid, 0, 1, obs, 2), 0)
}
