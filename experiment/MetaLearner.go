package experiment

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/MasterXiong/varibad/agent/a2c"
	"github.com/MasterXiong/varibad/buffer/gae"
	"github.com/MasterXiong/varibad/buffer/rollout"
	"github.com/MasterXiong/varibad/device"
	"github.com/MasterXiong/varibad/encoder"
	"github.com/MasterXiong/varibad/environment/gridnavi"
	"github.com/MasterXiong/varibad/experiment/checkpointer"
	"github.com/MasterXiong/varibad/experiment/tracker"
	"github.com/MasterXiong/varibad/policy"
	ts "github.com/MasterXiong/varibad/timestep"
	"github.com/MasterXiong/varibad/utils/progressbar"
	"github.com/MasterXiong/varibad/vae"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// Tags of the policy metrics tracked by a MetaLearner
const (
	ValueLossTag  = "policy/value_loss"
	ActionLossTag = "policy/action_loss"
	EntropyTag    = "policy/entropy"
)

// MetaLearner runs VariBAD on a GridNavi environment. Each iteration
// collects a fixed number of steps with the policy, conditioning it on
// the belief the encoder infers online, then updates the policy with
// A2C and, periodically, the VAE with the ELBO of stored trajectories.
//
// All tasks of a MetaLearner share a single rollout of
// MaxRolloutsPerTask episodes, during which the hidden state of the
// encoder is carried from step to step. The hidden state is reset to
// the prior whenever the task changes.
type MetaLearner struct {
	cfg   Config
	runID string

	env     *gridnavi.GridNavi
	vae     *vae.VAE
	vaeBuf  *rollout.Storage
	policy  *policy.Policy
	learner *a2c.A2C
	storage *gae.Buffer

	scalars  *tracker.Scalars
	metrics  *tracker.Interval
	episodes *tracker.Episodes
	checks   []checkpointer.Checkpointer
	pbar     *progressbar.ManualProgressBar

	// State of the current task
	step      ts.TimeStep
	episode   int
	hidden    *mat.Dense
	belief    *encoder.Belief
	traj      *trajectory
	iteration int
}

// NewMetaLearner creates and returns a new MetaLearner. Progress is
// printed to out, which may be nil.
func NewMetaLearner(ctx *device.Context, c Config,
	out io.Writer) (*MetaLearner, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newmetalearner: %v", err)
	}
	if out == nil {
		out = io.Discard
	}

	m := &MetaLearner{cfg: c, runID: uuid.New().String()}

	var err error
	m.env, err = gridnavi.New(ctx, c.Env)
	if err != nil {
		return nil, fmt.Errorf("newmetalearner: %v", err)
	}
	obsDim := m.env.ObservationSpec().Dim()
	actions := policy.ActionSpace{
		Discrete: true,
		N:        m.env.ActionSpec().NumActions(),
	}

	m.scalars = tracker.NewScalars(m.filename("metrics", ".bin"))
	m.metrics = tracker.Every(m.scalars, c.LogInterval)
	m.episodes = tracker.NewEpisodes(m.metrics)

	m.vaeBuf, err = rollout.New(ctx, c.VAEBuffer, obsDim, actions.Dim(),
		m.env.TaskDim())
	if err != nil {
		return nil, fmt.Errorf("newmetalearner: %v", err)
	}
	m.vae, err = vae.New(ctx, c.VAE, m.vaeBuf, vae.EnvInfo{
		ObsDim:       obsDim,
		ActionDim:    actions.Dim(),
		TaskDim:      m.env.TaskDim(),
		StateIndexer: m.env,
		TaskIDer:     m.env,
	}, m.scalars)
	if err != nil {
		return nil, fmt.Errorf("newmetalearner: %v", err)
	}

	latentDim := c.VAE.Encoder.LatentDim
	if !c.SampleEmbeddings {
		latentDim *= 2
	}
	dims := policy.InputDims{
		State:  obsDim,
		Latent: latentDim,
		Belief: m.env.BeliefDim(),
		Task:   m.env.TaskDim(),
	}
	m.policy, err = policy.New(ctx, c.Policy, dims, actions)
	if err != nil {
		return nil, fmt.Errorf("newmetalearner: %v", err)
	}
	m.learner, err = a2c.New(c.A2C, m.policy)
	if err != nil {
		return nil, fmt.Errorf("newmetalearner: %v", err)
	}
	m.storage, err = gae.New(c.Storage, stored(c.Policy, dims), actions.Dim())
	if err != nil {
		return nil, fmt.Errorf("newmetalearner: %v", err)
	}

	if c.SaveInterval > 0 {
		for _, obj := range []struct {
			name string
			s    checkpointer.Serializable
		}{{"policy-", m.policy}, {"vae-", m.vae}} {
			check, err := checkpointer.NewNStep(c.SaveInterval, obj.s,
				checkpointer.FilenameEnumerator(0, m.filename(obj.name, ""),
					".bin"))
			if err != nil {
				return nil, fmt.Errorf("newmetalearner: %v", err)
			}
			m.checks = append(m.checks, check)
		}
	}

	m.pbar = progressbar.NewManualProgressBar(out, 40, c.NumIterations)

	if err := m.resetTask(); err != nil {
		return nil, fmt.Errorf("newmetalearner: %v", err)
	}
	return m, nil
}

// stored returns the dimensions of the inputs stored for the policy,
// which are zero for inputs the policy does not receive
func stored(c policy.Config, dims policy.InputDims) policy.InputDims {
	if !c.PassStateToPolicy {
		dims.State = 0
	}
	if !c.PassLatentToPolicy {
		dims.Latent = 0
	}
	if !c.PassBeliefToPolicy {
		dims.Belief = 0
	}
	if !c.PassTaskToPolicy {
		dims.Task = 0
	}
	return dims
}

// filename returns the path of an output file of the run
func (m *MetaLearner) filename(name, extension string) string {
	return filepath.Join(m.cfg.OutDir, m.runID+"-"+name+extension)
}

// RunID returns the unique identifier of the run, which prefixes all
// its output files
func (m *MetaLearner) RunID() string {
	return m.runID
}

// Run runs all iterations of the experiment
func (m *MetaLearner) Run() error {
	for m.iteration < m.cfg.NumIterations {
		if err := m.RunIteration(); err != nil {
			return fmt.Errorf("run: %v", err)
		}
	}
	m.pbar.Close()
	return nil
}

// RunIteration collects a batch of steps with the policy and updates
// the policy and the VAE
func (m *MetaLearner) RunIteration() error {
	iter := m.iteration
	if err := m.collect(iter); err != nil {
		return fmt.Errorf("runiteration: %v", err)
	}

	if iter >= m.cfg.PretrainLen {
		err := m.policy.UpdateRMS(m.policy.Filter(m.storage.Inputs()))
		if err != nil {
			return fmt.Errorf("runiteration: %v", err)
		}
		stats, err := m.learner.Update(m.storage)
		if err != nil {
			return fmt.Errorf("runiteration: %v", err)
		}
		m.metrics.Track(ValueLossTag, stats.ValueLoss, iter)
		m.metrics.Track(ActionLossTag, stats.ActionLoss, iter)
		m.metrics.Track(EntropyTag, stats.Entropy, iter)
	} else {
		// Discard the batch, keeping the trajectories stored for the VAE
		if _, err := m.storage.Get(); err != nil {
			return fmt.Errorf("runiteration: %v", err)
		}
	}

	var losses vae.Losses
	if iter%m.cfg.VAEUpdateEvery == 0 {
		var err error
		losses, err = m.vae.Update(iter)
		if err != nil {
			return fmt.Errorf("runiteration: %v", err)
		}
	}

	m.iteration++
	for _, check := range m.checks {
		if err := check.Checkpoint(m.iteration); err != nil {
			return fmt.Errorf("runiteration: %v", err)
		}
	}

	m.pbar.Increment()
	m.pbar.Display(fmt.Sprintf("elbo: %.4f", losses.Total))
	return nil
}

// collect fills the policy storage with steps in the environment
func (m *MetaLearner) collect(iter int) error {
	for !m.storage.Full() {
		in := m.inputs()
		values, action, err := m.policy.Act(m.policy.Filter(in), false)
		if err != nil {
			return fmt.Errorf("collect: %v", err)
		}

		prevObs := m.step.Observation
		actionRow := action.RawRowView(0)
		envAction := m.policy.EnvAction(action).RawRowView(0)
		step, done := m.env.Step(mat.NewVecDense(len(envAction),
			append([]float64(nil), envAction...)))
		m.episodes.Step(step, iter)

		// Infer the belief after the transition
		m.belief, err = m.vae.Encoder().Step(
			mat.NewDense(1, len(actionRow), append([]float64(nil),
				actionRow...)),
			mat.NewDense(1, step.Observation.Len(), vec(step.Observation)),
			mat.NewDense(1, 1, []float64{step.Reward}),
			m.hidden,
		)
		if err != nil {
			return fmt.Errorf("collect: %v", err)
		}
		m.hidden = m.belief.Hidden

		err = m.storage.Store(gae.Step{
			State:  row(in.State),
			Latent: row(in.Latent),
			Belief: row(in.Belief),
			Task:   row(in.Task),
			Action: actionRow,
			Reward: step.Reward,
			Value:  values[0],
		})
		if err != nil {
			return fmt.Errorf("collect: %v", err)
		}
		m.traj.add(vec(prevObs), vec(step.Observation), actionRow,
			step.Reward, done)

		m.step = step
		if done {
			m.episode++
			if m.episode >= m.cfg.MaxRolloutsPerTask {
				// The rollout of the task has ended
				m.storage.FinishPath(0)
				if _, err := m.vaeBuf.Insert(m.traj.trajectory(
					m.env.Task())); err != nil {
					return fmt.Errorf("collect: %v", err)
				}
				if err := m.resetTask(); err != nil {
					return fmt.Errorf("collect: %v", err)
				}
			} else {
				m.step = m.env.Reset()
				m.episodes.Step(m.step, iter)
			}
		}
	}

	// Bootstrap the unfinished rollout of the current task
	if m.traj.len() > 0 {
		values, err := m.policy.GetValue(m.policy.Filter(m.inputs()))
		if err != nil {
			return fmt.Errorf("collect: %v", err)
		}
		m.storage.FinishPath(values[0])
	}
	return nil
}

// resetTask samples a new task and resets the environment, the belief,
// and the trajectory of the current task
func (m *MetaLearner) resetTask() error {
	m.env.ResetTask()
	m.step = m.env.Reset()
	m.episodes.Step(m.step, m.iteration)
	m.episode = 0
	m.traj = newTrajectory(m.step.Observation.Len(),
		m.policy.ActionSpace().Dim())

	var err error
	m.belief, err = m.vae.Encoder().Prior(1)
	if err != nil {
		return fmt.Errorf("resettask: %v", err)
	}
	m.hidden = m.belief.Hidden
	return nil
}

// inputs returns all inputs the policy may act on in the current state
func (m *MetaLearner) inputs() policy.Inputs {
	sample, mean, logVar := m.belief.Last()
	belief := m.env.Belief()
	task := m.env.Task()
	return policy.Inputs{
		State: mat.NewDense(1, m.step.Observation.Len(),
			vec(m.step.Observation)),
		Latent: policy.Latent(sample, mean, logVar, m.cfg.SampleEmbeddings),
		Belief: mat.NewDense(1, len(belief), belief),
		Task:   mat.NewDense(1, len(task), task),
	}
}

// Save saves all tracked metrics and the final parameters of the
// policy and the VAE to disk
func (m *MetaLearner) Save() error {
	if err := os.MkdirAll(m.cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if err := m.scalars.Save(); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	if err := m.cfg.Save(m.filename("config", ".json")); err != nil {
		return fmt.Errorf("save: %v", err)
	}
	err := checkpointer.Save(m.filename("policy-final", ".bin"), m.policy)
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	err = checkpointer.Save(m.filename("vae-final", ".bin"), m.vae)
	if err != nil {
		return fmt.Errorf("save: %v", err)
	}
	return nil
}

// Metrics returns the tracker of the experiment's metrics
func (m *MetaLearner) Metrics() *tracker.Scalars {
	return m.scalars
}

// Iteration returns the number of iterations run
func (m *MetaLearner) Iteration() int {
	return m.iteration
}

// Policy returns the policy being learned
func (m *MetaLearner) Policy() *policy.Policy {
	return m.policy
}

// VAE returns the VAE being learned
func (m *MetaLearner) VAE() *vae.VAE {
	return m.vae
}

// vec returns a copy of the elements of v
func vec(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// row returns a copy of the first row of m, or nil if m is nil
func row(m *mat.Dense) []float64 {
	if m == nil {
		return nil
	}
	return append([]float64(nil), m.RawRowView(0)...)
}
