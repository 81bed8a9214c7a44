package experiment

import (
	"os"
	"testing"

	"github.com/MasterXiong/varibad/device"
	"github.com/MasterXiong/varibad/experiment/tracker"
	"github.com/MasterXiong/varibad/vae"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	c := DefaultConfig()
	c.NumIterations = 4
	c.MaxRolloutsPerTask = 2
	c.SaveInterval = 2
	c.LogInterval = 1
	c.OutDir = t.TempDir()

	c.Env.NumCells = 3
	c.Env.EpisodeLen = 5

	c.VAE.Encoder.HiddenSize = 8
	c.VAE.Encoder.LatentDim = 2
	c.VAE.RewardDecoder.Layers = []int{8}
	c.VAE.NumVAEUpdates = 1
	c.VAE.VAEBatchNumTrajs = 2
	c.VAE.LogInterval = 1

	c.VAEBuffer.MaxRollouts = 8
	c.VAEBuffer.MaxTrajectoryLen = 10

	c.Policy.Layers = []int{8}

	// Iterations end in the middle of a task rollout
	c.Storage.NumSteps = 7
	return c
}

func TestRun(t *testing.T) {
	c := testConfig(t)
	m, err := NewMetaLearner(device.NewCPU(3), c, nil)
	if err != nil {
		t.Fatalf("newmetalearner: %v", err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	if m.Iteration() != c.NumIterations {
		t.Errorf("iterations \n\twant(%v) \n\thave(%v)", c.NumIterations,
			m.Iteration())
	}

	// 28 steps were taken, completing two rollouts of 10 steps
	if n := m.vaeBuf.Len(); n != 2 {
		t.Errorf("stored trajectories \n\twant(2) \n\thave(%v)", n)
	}

	metrics := m.Metrics()
	if n := len(metrics.Series(ValueLossTag)); n != c.NumIterations {
		t.Errorf("tracked value losses \n\twant(%v) \n\thave(%v)",
			c.NumIterations, n)
	}
	if n := len(metrics.Series(tracker.ReturnTag)); n != 5 {
		t.Errorf("tracked returns \n\twant(5) \n\thave(%v)", n)
	}
	for _, ret := range metrics.Series(tracker.ReturnTag) {
		if ret.Value < 5*c.Env.StepReward || ret.Value > 5*c.Env.GoalReward {
			t.Errorf("return %v outside of possible range", ret.Value)
		}
	}
	if n := len(metrics.Series(vae.SumTag)); n == 0 {
		t.Errorf("no VAE losses tracked")
	}

	if err := m.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	for _, name := range []string{
		m.filename("policy-1", ".bin"),
		m.filename("policy-2", ".bin"),
		m.filename("vae-2", ".bin"),
		m.filename("policy-final", ".bin"),
		m.filename("config", ".json"),
	} {
		if _, err := os.Stat(name); err != nil {
			t.Errorf("missing output file: %v", err)
		}
	}

	data, err := tracker.LoadData(m.filename("metrics", ".bin"))
	if err != nil {
		t.Fatalf("loaddata: %v", err)
	}
	if len(data[EntropyTag]) != c.NumIterations {
		t.Errorf("saved entropies \n\twant(%v) \n\thave(%v)", c.NumIterations,
			len(data[EntropyTag]))
	}
}

func TestPretrain(t *testing.T) {
	c := testConfig(t)
	c.PretrainLen = c.NumIterations
	c.SaveInterval = 0
	m, err := NewMetaLearner(device.NewCPU(5), c, nil)
	if err != nil {
		t.Fatalf("newmetalearner: %v", err)
	}

	before, err := m.Policy().GobEncode()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	after, err := m.Policy().GobEncode()
	if err != nil {
		t.Fatal(err)
	}

	if string(before) != string(after) {
		t.Errorf("policy changed during pretraining")
	}
	if n := len(m.Metrics().Series(ValueLossTag)); n != 0 {
		t.Errorf("tracked value losses \n\twant(0) \n\thave(%v)", n)
	}
}

func TestConfigLoad(t *testing.T) {
	filename := t.TempDir() + "/config.json"
	c := testConfig(t)
	if err := c.Save(filename); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(filename)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := loaded.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if loaded.Storage != c.Storage || loaded.Env != c.Env {
		t.Errorf("loaded config \n\twant(%v, %v) \n\thave(%v, %v)",
			c.Storage, c.Env, loaded.Storage, loaded.Env)
	}
	if loaded.VAE.Solver.Type != c.VAE.Solver.Type {
		t.Errorf("vae solver \n\twant(%v) \n\thave(%v)", c.VAE.Solver.Type,
			loaded.VAE.Solver.Type)
	}
}

func TestConfigInvalid(t *testing.T) {
	c := testConfig(t)
	c.VAEBuffer.MaxTrajectoryLen = 5
	if err := c.Validate(); err == nil {
		t.Errorf("validate: expected error for short VAE trajectories")
	}
}
