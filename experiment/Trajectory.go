package experiment

import (
	"github.com/MasterXiong/varibad/buffer/rollout"
	"gonum.org/v1/gonum/mat"
)

// trajectory accumulates the transitions of the current task until
// they are stored for the VAE
type trajectory struct {
	obsDim, actionDim int

	prevObs []float64
	nextObs []float64
	actions []float64
	rewards []float64
	dones   []bool
}

func newTrajectory(obsDim, actionDim int) *trajectory {
	return &trajectory{obsDim: obsDim, actionDim: actionDim}
}

// add appends a transition
func (t *trajectory) add(prevObs, nextObs, action []float64, reward float64,
	done bool) {
	t.prevObs = append(t.prevObs, prevObs...)
	t.nextObs = append(t.nextObs, nextObs...)
	t.actions = append(t.actions, action...)
	t.rewards = append(t.rewards, reward)
	t.dones = append(t.dones, done)
}

// len returns the number of transitions
func (t *trajectory) len() int {
	return len(t.rewards)
}

// trajectory returns the transitions as a rollout.Trajectory of the
// given task
func (t *trajectory) trajectory(task []float64) *rollout.Trajectory {
	steps := t.len()
	return &rollout.Trajectory{
		PrevObs: mat.NewDense(steps, t.obsDim, t.prevObs),
		NextObs: mat.NewDense(steps, t.obsDim, t.nextObs),
		Actions: mat.NewDense(steps, t.actionDim, t.actions),
		Rewards: t.rewards,
		Dones:   t.dones,
		Task:    append([]float64(nil), task...),
	}
}
