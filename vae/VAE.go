// Package vae implements the variational task inference module: the
// task encoder, its decoders, and the ELBO objective they are trained
// with.
package vae

import (
	"fmt"

	"github.com/MasterXiong/varibad/buffer/rollout"
	"github.com/MasterXiong/varibad/decoder"
	"github.com/MasterXiong/varibad/device"
	"github.com/MasterXiong/varibad/encoder"
	"github.com/MasterXiong/varibad/network"
	G "gorgonia.org/gorgonia"
)

// Metric tags emitted by a VAE
const (
	RewardReconstructionTag = "vae_losses/reward_reconstr_err"
	StateReconstructionTag  = "vae_losses/state_reconstr_err"
	TaskReconstructionTag   = "vae_losses/task_reconstr_err"
	KLTag                   = "vae_losses/kl"
	SumTag                  = "vae_losses/sum"
)

// Logger records scalar metrics at a given iteration
type Logger interface {
	Add(tag string, value float64, iter int)
}

// EnvInfo describes the environment the VAE infers tasks of
type EnvInfo struct {
	ObsDim    int
	ActionDim int
	TaskDim   int

	// Required by multi-head reward decoders
	StateIndexer decoder.StateIndexer

	// Required by task decoders predicting task identifiers
	TaskIDer decoder.TaskIDer
}

// Losses holds the values of the terms of the ELBO loss. Disabled
// terms are zero.
type Losses struct {
	Reward float64
	State  float64
	Task   float64
	KL     float64
	Total  float64
}

// add returns the element-wise sum of two Losses
func (l Losses) add(o Losses) Losses {
	return Losses{
		Reward: l.Reward + o.Reward,
		State:  l.State + o.State,
		Task:   l.Task + o.Task,
		KL:     l.KL + o.KL,
		Total:  l.Total + o.Total,
	}
}

// scale returns the Losses multiplied by c
func (l Losses) scale(c float64) Losses {
	return Losses{
		Reward: c * l.Reward,
		State:  c * l.State,
		Task:   c * l.Task,
		KL:     c * l.KL,
		Total:  c * l.Total,
	}
}

// VAE trains a task encoder and its decoders with the ELBO of
// trajectories sampled from a rollout buffer.
//
// Each decoder is optional and nil when disabled, so that call sites
// must check its presence.
type VAE struct {
	cfg Config
	buf *rollout.Storage
	log Logger

	enc    *encoder.RNNEncoder
	state  *decoder.StateDecoder
	reward *decoder.RewardDecoder
	task   *decoder.TaskDecoder

	params network.Params
	solver G.Solver

	// forwards counts the forward passes through the encoder made by
	// ComputeLoss
	forwards int
}

// New returns a new VAE sampling trajectories from buf. The logger
// may be nil, in which case no metrics are emitted.
func New(ctx *device.Context, c Config, buf *rollout.Storage, info EnvInfo,
	log Logger) (*VAE, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if buf == nil {
		return nil, fmt.Errorf("new: no rollout buffer")
	}

	enc, err := encoder.New(ctx, c.Encoder, info.ActionDim, info.ObsDim, 1)
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	v := &VAE{
		cfg:    c,
		buf:    buf,
		log:    log,
		enc:    enc,
		solver: c.Solver.Fresh().Solver,
	}

	// Deterministic latents are the concatenated mean and log-variance
	latentDim := c.Encoder.LatentDim
	if c.DisableStochasticityInLatent {
		latentDim *= 2
	}

	if c.DecodeState {
		v.state, err = decoder.NewStateDecoder(ctx, c.StateDecoder, latentDim,
			info.ObsDim, info.ActionDim)
		if err != nil {
			return nil, fmt.Errorf("new: %v", err)
		}
	}
	if c.DecodeReward {
		v.reward, err = decoder.NewRewardDecoder(ctx, c.RewardDecoder,
			latentDim, info.ObsDim, info.ActionDim, info.StateIndexer)
		if err != nil {
			return nil, fmt.Errorf("new: %v", err)
		}
	}
	if c.DecodeTask {
		v.task, err = decoder.NewTaskDecoder(ctx, c.TaskDecoder, latentDim,
			info.TaskDim, info.TaskIDer)
		if err != nil {
			return nil, fmt.Errorf("new: %v", err)
		}
	}

	v.params = network.ParamsOf(v.enc, v.state, v.reward, v.task)
	return v, nil
}

// ComputeLoss computes the ELBO loss of a batch of trajectories sampled
// from the rollout buffer and, if update is true, takes one optimiser
// step on the joint parameters of the encoder and the decoders.
//
// If the buffer is not ready for an update, or if no term of the loss
// can be computed, ComputeLoss returns zero Losses without a forward
// pass. Metrics are emitted when iter is a multiple of the log
// interval.
func (v *VAE) ComputeLoss(update bool, iter int) (Losses, error) {
	if !v.buf.ReadyForUpdate() {
		return Losses{}, nil
	}
	if !v.cfg.decoding() && !v.cfg.klEnabled() {
		return Losses{}, nil
	}

	batch, err := v.buf.GetBatch(v.cfg.VAEBatchNumTrajs, v.cfg.NumEncLen)
	if err != nil {
		return Losses{}, fmt.Errorf("computeloss: %v", err)
	}
	noise := v.Noise(batch)

	g := network.NewGraph()
	v.forwards++
	terms, err := v.ComputeELBO(g, v.cfg.Strategy, batch, noise)
	if err != nil {
		return Losses{}, fmt.Errorf("computeloss: %v", err)
	}
	if !v.complete(terms) {
		return Losses{}, nil
	}
	v.assertGradients(g, terms)

	if update {
		err = g.Minimise(terms.Total, v.params, v.solver)
	} else {
		err = g.Run()
	}
	if err != nil {
		return Losses{}, fmt.Errorf("computeloss: %v", err)
	}

	losses := Losses{
		Reward: valueOf(terms.Reward),
		State:  valueOf(terms.State),
		Task:   valueOf(terms.Task),
		KL:     valueOf(terms.KL),
		Total:  valueOf(terms.Total),
	}
	v.emit(losses, iter)
	return losses, nil
}

// Update runs the configured number of updating ComputeLoss calls and
// returns their mean Losses
func (v *VAE) Update(iter int) (Losses, error) {
	if v.cfg.NumVAEUpdates == 0 {
		return Losses{}, nil
	}

	var total Losses
	for i := 0; i < v.cfg.NumVAEUpdates; i++ {
		losses, err := v.ComputeLoss(true, iter)
		if err != nil {
			return Losses{}, fmt.Errorf("update: %v", err)
		}
		total = total.add(losses)
	}
	return total.scale(1 / float64(v.cfg.NumVAEUpdates)), nil
}

// complete returns whether every enabled term of the loss was
// computed. A reconstruction term is missing when no step is decoded,
// which happens when only the past is decoded and every sampled
// cutoff is zero.
func (v *VAE) complete(terms *Terms) bool {
	if terms.Total == nil {
		return false
	}
	if (v.reward != nil && terms.Reward == nil) ||
		(v.state != nil && terms.State == nil) ||
		(v.task != nil && terms.Task == nil) {
		return false
	}
	return true
}

// assertGradients panics if an enabled term of the loss has no
// gradient path to the encoder
func (v *VAE) assertGradients(g *network.Graph, terms *Terms) {
	check := func(name string, term *G.Node) {
		if term != nil && !g.Connected(term, v.enc.Params()) {
			panic(fmt.Sprintf("computeloss: %v loss is detached from the "+
				"encoder", name))
		}
	}
	check("reward", terms.Reward)
	check("state", terms.State)
	check("task", terms.Task)
	check("kl", terms.KL)
}

// emit logs the Losses if iter is a multiple of the log interval
func (v *VAE) emit(losses Losses, iter int) {
	if v.log == nil || v.cfg.LogInterval <= 0 || iter%v.cfg.LogInterval != 0 {
		return
	}
	if v.reward != nil {
		v.log.Add(RewardReconstructionTag, losses.Reward, iter)
	}
	if v.state != nil {
		v.log.Add(StateReconstructionTag, losses.State, iter)
	}
	if v.task != nil {
		v.log.Add(TaskReconstructionTag, losses.Task, iter)
	}
	if v.cfg.klEnabled() {
		v.log.Add(KLTag, losses.KL, iter)
	}
	v.log.Add(SumTag, losses.Total, iter)
}

// Encoder returns the task encoder
func (v *VAE) Encoder() *encoder.RNNEncoder {
	return v.enc
}

// Buffer returns the rollout buffer the VAE is trained on
func (v *VAE) Buffer() *rollout.Storage {
	return v.buf
}

// StateDecoder returns the state decoder, or nil if states are not
// decoded
func (v *VAE) StateDecoder() *decoder.StateDecoder {
	return v.state
}

// RewardDecoder returns the reward decoder, or nil if rewards are not
// decoded
func (v *VAE) RewardDecoder() *decoder.RewardDecoder {
	return v.reward
}

// TaskDecoder returns the task decoder, or nil if tasks are not
// decoded
func (v *VAE) TaskDecoder() *decoder.TaskDecoder {
	return v.task
}

// Params returns the joint learnable Params of the encoder and the
// enabled decoders
func (v *VAE) Params() network.Params {
	return v.params
}

// GobEncode implements the gob.GobEncoder interface
func (v *VAE) GobEncode() ([]byte, error) {
	return v.params.GobEncode()
}

// GobDecode implements the gob.GobDecoder interface. The VAE must have
// been constructed with the configuration it was encoded with.
func (v *VAE) GobDecode(in []byte) error {
	return v.params.GobDecode(in)
}

func valueOf(n *G.Node) float64 {
	if n == nil {
		return 0
	}
	return network.ScalarOf(n)
}
