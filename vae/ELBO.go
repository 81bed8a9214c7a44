package vae

import (
	"fmt"

	"github.com/MasterXiong/varibad/buffer/rollout"
	"github.com/MasterXiong/varibad/encoder"
	"github.com/MasterXiong/varibad/network"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// Terms holds the nodes of the ELBO loss of a batch. A term is nil if
// it is disabled.
//
// For a batch of B trajectories, where trajectory b contributes the
// ELBO terms at its encoder cutoffs C_b and decodes the steps D(b, e)
// at cutoff e, the reconstruction terms are
//
//	L = (1/B) Σ_b Σ_{e ∈ C_b} Σ_{h ∈ D(b, e)} ℓ(b, e, h)
//
// the task term is (1/B) Σ_b Σ_{e ∈ C_b} ℓ(b, e), and the KL term is
// (1/B) Σ_b Σ_{e ∈ C_b} KL(b, e).
type Terms struct {
	Reward *G.Node
	State  *G.Node
	Task   *G.Node
	KL     *G.Node
	Total  *G.Node

	// The unreduced N x 1 losses of each decoder call. Rows are ordered
	// by trajectory, then by ELBO term, then by decoded step.
	RewardRows []*G.Node
	StateRows  []*G.Node
	TaskRows   []*G.Node
}

// row identifies a decoded step h of trajectory b at ELBO term e. For
// task reconstruction, h is unused.
type row struct {
	b, e, h int
}

// Noise returns the reparameterisation noise of every belief of a
// batch, one B x LatentDim matrix per belief. It is nil when latents
// are deterministic.
func (v *VAE) Noise(batch *rollout.Batch) []*mat.Dense {
	if v.cfg.DisableStochasticityInLatent {
		return nil
	}
	noise := make([]*mat.Dense, batch.MaxLen+1)
	for e := range noise {
		noise[e] = v.enc.Noise(batch.Size(), v.enc.LatentDim())
	}
	return noise
}

// ComputeELBO adds the ELBO loss of a batch to the graph using the
// given strategy to group decoded rows into decoder calls. The noise
// holds one B x LatentDim matrix per belief, see Noise.
//
// The WholeBatch strategy panics if the trajectories in the batch
// have different lengths or only the past is decoded.
func (v *VAE) ComputeELBO(g *network.Graph, strategy Strategy,
	batch *rollout.Batch, noise []*mat.Dense) (*Terms, error) {
	if strategy == WholeBatch {
		if !batch.Uniform() {
			panic(fmt.Sprintf("computeelbo: %v strategy requires trajectories "+
				"of equal length, got lengths %v", strategy, batch.Lengths))
		}
		if v.cfg.DecodeOnlyPast {
			panic(fmt.Sprintf("computeelbo: %v strategy cannot decode only "+
				"the past", strategy))
		}
	}

	// Encode the full padded trajectories, the encoder sees the next
	// observation of each step
	var actions, states, rewards []*G.Node
	for t := 0; t < batch.MaxLen; t++ {
		actions = append(actions, g.Matrix("vae_actions", batch.ActionsAt(t)))
		states = append(states, g.Matrix("vae_next_obs", batch.NextObsAt(t)))
		rewards = append(rewards, g.Matrix("vae_rewards", batch.RewardsAt(t)))
	}
	out, err := v.enc.Forward(g, actions, states, rewards, nil, true)
	if err != nil {
		return nil, fmt.Errorf("computeelbo: %v", err)
	}

	latents := make([]*G.Node, out.Len())
	for e := range latents {
		if v.cfg.DisableStochasticityInLatent {
			latents[e] = G.Must(G.Concat(1, out.Means[e], out.LogVars[e]))
		} else {
			latents[e] = encoder.Reparameterise(g, out.Means[e],
				out.LogVars[e], noise[e])
		}
	}
	// Row e·B + b of allLatents is the latent of trajectory b at e
	allLatents := G.Must(G.Concat(0, latents...))

	terms := &Terms{}
	weight := 1.0 / float64(batch.Size())

	if v.reward != nil {
		for _, group := range v.group(strategy, batch, true) {
			latent := g.GatherRows(allLatents, latentRows(group, batch.Size()))
			prev, act, next, rew := stepRows(batch, group)
			loss, err := v.reward.Loss(g, latent, prev, act, next, rew)
			if err != nil {
				return nil, fmt.Errorf("computeelbo: reward: %v", err)
			}
			terms.RewardRows = append(terms.RewardRows, loss)
			terms.Reward = add(terms.Reward, g.WeightedSum(loss,
				constant(len(group), weight)))
		}
	}

	if v.state != nil {
		for _, group := range v.group(strategy, batch, true) {
			latent := g.GatherRows(allLatents, latentRows(group, batch.Size()))
			prev, act, next, _ := stepRows(batch, group)
			loss, err := v.state.Loss(g, latent, prev, act, next)
			if err != nil {
				return nil, fmt.Errorf("computeelbo: state: %v", err)
			}
			terms.StateRows = append(terms.StateRows, loss)
			terms.State = add(terms.State, g.WeightedSum(loss,
				constant(len(group), weight)))
		}
	}

	if v.task != nil {
		for _, group := range v.group(strategy, batch, false) {
			latent := g.GatherRows(allLatents, latentRows(group, batch.Size()))
			loss, err := v.task.Loss(g, latent, taskRows(batch, group))
			if err != nil {
				return nil, fmt.Errorf("computeelbo: task: %v", err)
			}
			terms.TaskRows = append(terms.TaskRows, loss)
			terms.Task = add(terms.Task, g.WeightedSum(loss,
				constant(len(group), weight)))
		}
	}

	if v.cfg.klEnabled() {
		kls := klRows(g, out.Means, out.LogVars, v.cfg.KLToGaussPrior,
			v.cfg.LearnPrior)
		for e, kl := range kls {
			if kl == nil {
				continue
			}
			// Trajectory b contributes the KL at e only if e ∈ C_b
			weights := make([]float64, batch.Size())
			used := false
			for b, cutoffs := range batch.Cutoffs {
				if contains(cutoffs, e) {
					weights[b] = weight
					used = true
				}
			}
			if used {
				terms.KL = add(terms.KL, g.WeightedSum(kl, weights))
			}
		}
	}

	terms.Total = add(add(add(add(nil,
		scale(v.cfg.RewLossCoeff, terms.Reward)),
		scale(v.cfg.StateLossCoeff, terms.State)),
		scale(v.cfg.TaskLossCoeff, terms.Task)),
		scale(v.cfg.KLWeight, terms.KL))

	return terms, nil
}

// group returns the rows decoded for a batch, grouped into decoder
// calls by the strategy. If horizon is false, a single row is
// returned per ELBO term of each trajectory.
func (v *VAE) group(strategy Strategy, batch *rollout.Batch,
	horizon bool) [][]row {
	byTask := make([][]row, batch.Size())
	byELBO := make([][]row, batch.MaxLen+1)
	for b, cutoffs := range batch.Cutoffs {
		for _, e := range cutoffs {
			var rows []row
			if !horizon {
				rows = []row{{b: b, e: e}}
			} else {
				steps := batch.Lengths[b]
				if v.cfg.DecodeOnlyPast {
					steps = e
				}
				for h := 0; h < steps; h++ {
					rows = append(rows, row{b: b, e: e, h: h})
				}
			}
			byTask[b] = append(byTask[b], rows...)
			byELBO[e] = append(byELBO[e], rows...)
		}
	}

	var groups [][]row
	switch strategy {
	case WholeBatch:
		var all []row
		for _, rows := range byTask {
			all = append(all, rows...)
		}
		groups = [][]row{all}
	case SplitByTask:
		groups = byTask
	case SplitByELBO:
		groups = byELBO
	default:
		panic(fmt.Sprintf("group: unknown strategy %v", strategy))
	}

	// Drop empty calls, e.g. the prior when decoding only the past
	nonEmpty := groups[:0]
	for _, rows := range groups {
		if len(rows) > 0 {
			nonEmpty = append(nonEmpty, rows)
		}
	}
	return nonEmpty
}

// latentRows returns the indices of the latents of rows
func latentRows(rows []row, batchSize int) []int {
	idx := make([]int, len(rows))
	for i, r := range rows {
		idx[i] = r.e*batchSize + r.b
	}
	return idx
}

// stepRows returns the previous observations, actions, next
// observations, and rewards of the decoded steps of rows
func stepRows(batch *rollout.Batch, rows []row) (prev, act, next,
	rew *mat.Dense) {
	_, obsDim := batch.PrevObs[0].Dims()
	_, actionDim := batch.Actions[0].Dims()

	prev = mat.NewDense(len(rows), obsDim, nil)
	next = mat.NewDense(len(rows), obsDim, nil)
	act = mat.NewDense(len(rows), actionDim, nil)
	rew = mat.NewDense(len(rows), 1, nil)
	for i, r := range rows {
		prev.SetRow(i, batch.PrevObs[r.b].RawRowView(r.h))
		next.SetRow(i, batch.NextObs[r.b].RawRowView(r.h))
		act.SetRow(i, batch.Actions[r.b].RawRowView(r.h))
		rew.Set(i, 0, batch.Rewards[r.b][r.h])
	}
	return prev, act, next, rew
}

// taskRows returns the tasks of the trajectories of rows
func taskRows(batch *rollout.Batch, rows []row) *mat.Dense {
	tasks := mat.NewDense(len(rows), len(batch.Tasks[0]), nil)
	for i, r := range rows {
		tasks.SetRow(i, batch.Tasks[r.b])
	}
	return tasks
}

// add returns a + b, where a nil node is treated as an absent term
func add(a, b *G.Node) *G.Node {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return G.Must(G.Add(a, b))
	}
}

// scale returns coeff·x, or nil if x is nil
func scale(coeff float64, x *G.Node) *G.Node {
	if x == nil {
		return nil
	}
	return G.Must(G.Mul(G.NewConstant(coeff), x))
}

// constant returns a slice of n copies of value
func constant(n int, value float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
