package rollout

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Batch is a batch of trajectories sampled from a Storage. Each
// trajectory is padded with zeros to MaxLen steps, the longest true
// length in the batch, and Lengths holds the true lengths.
type Batch struct {
	PrevObs []*mat.Dense
	NextObs []*mat.Dense
	Actions []*mat.Dense
	Rewards [][]float64
	Dones   [][]bool
	Tasks   [][]float64

	Lengths []int

	// Cutoffs holds the encoder cutoffs of each trajectory, the ELBO
	// terms the trajectory contributes, sorted in increasing order
	Cutoffs [][]int

	MaxLen int
}

// Size returns the number of trajectories in the batch
func (b *Batch) Size() int {
	return len(b.Lengths)
}

// Uniform returns whether all trajectories in the batch have the same
// length
func (b *Batch) Uniform() bool {
	for _, l := range b.Lengths {
		if l != b.MaxLen {
			return false
		}
	}
	return true
}

// stepOf returns the B x dim matrix of step t of each trajectory
func stepOf(trajectories []*mat.Dense, t int) *mat.Dense {
	_, dim := trajectories[0].Dims()
	out := mat.NewDense(len(trajectories), dim, nil)
	for i, traj := range trajectories {
		out.SetRow(i, traj.RawRowView(t))
	}
	return out
}

func (b *Batch) checkStep(t int) {
	if t < 0 || t >= b.MaxLen {
		panic(fmt.Sprintf("step %d out of range [0, %d)", t, b.MaxLen))
	}
}

// PrevObsAt returns the previous observations of step t of each
// trajectory as a B x obsDim matrix. Padded steps are zero.
func (b *Batch) PrevObsAt(t int) *mat.Dense {
	b.checkStep(t)
	return stepOf(b.PrevObs, t)
}

// NextObsAt returns the next observations of step t of each trajectory
// as a B x obsDim matrix. Padded steps are zero.
func (b *Batch) NextObsAt(t int) *mat.Dense {
	b.checkStep(t)
	return stepOf(b.NextObs, t)
}

// ActionsAt returns the actions of step t of each trajectory as a
// B x actionDim matrix. Padded steps are zero.
func (b *Batch) ActionsAt(t int) *mat.Dense {
	b.checkStep(t)
	return stepOf(b.Actions, t)
}

// RewardsAt returns the rewards of step t of each trajectory as a
// B x 1 matrix. Padded steps are zero.
func (b *Batch) RewardsAt(t int) *mat.Dense {
	b.checkStep(t)
	out := mat.NewDense(len(b.Rewards), 1, nil)
	for i := range b.Rewards {
		out.Set(i, 0, b.Rewards[i][t])
	}
	return out
}
