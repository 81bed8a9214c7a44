// Package rollout implements the storage of complete trajectories used
// to train the task encoder and decoders.
package rollout

import (
	"fmt"
	"sort"

	"github.com/MasterXiong/varibad/device"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Trajectory is the sequence of transitions of one task. Row t of
// PrevObs, Actions, and NextObs, and element t of Rewards and Dones,
// describe step t.
type Trajectory struct {
	PrevObs *mat.Dense
	NextObs *mat.Dense
	Actions *mat.Dense
	Rewards []float64
	Dones   []bool
	Task    []float64
}

// Len returns the number of steps in the trajectory
func (t *Trajectory) Len() int {
	return len(t.Rewards)
}

// Config implements a configuration of a Storage
type Config struct {
	MaxRollouts      int
	MaxTrajectoryLen int

	// MinRollouts is the number of trajectories required before the
	// Storage is ready to be sampled for an update
	MinRollouts int

	// AddThreshold is the probability with which an inserted trajectory
	// is stored
	AddThreshold float64

	Selector SelectorType
}

// Validate checks the Config for errors
func (c Config) Validate() error {
	if c.MaxRollouts <= 0 {
		return fmt.Errorf("validate: max rollouts must be positive")
	}
	if c.MaxTrajectoryLen <= 0 {
		return fmt.Errorf("validate: max trajectory length must be positive")
	}
	if c.MinRollouts > c.MaxRollouts {
		return fmt.Errorf("validate: min rollouts (%d) > max rollouts (%d)",
			c.MinRollouts, c.MaxRollouts)
	}
	if c.AddThreshold <= 0 || c.AddThreshold > 1 {
		return fmt.Errorf("validate: add threshold must be in (0, 1], got %v",
			c.AddThreshold)
	}
	return nil
}

// Storage is a fixed-capacity ring buffer of trajectories. Each
// trajectory is stored zero-padded to the maximum trajectory length
// together with its true length. Once full, each insertion overwrites
// the oldest trajectory.
//
// A Storage has a single writer and a single reader, and insertions
// must not happen concurrently with sampling.
type Storage struct {
	prevObs []float64
	nextObs []float64
	actions []float64
	rewards []float64
	dones   []bool
	tasks   []float64
	lengths []int

	next int
	size int

	maxRollouts int
	maxLen      int
	minRollouts int
	obsDim      int
	actionDim   int
	taskDim     int

	addThreshold float64
	accept       distuv.Uniform
	selector     Selector
	rng          *rand.Rand
}

// New returns a new Storage of trajectories with the given observation,
// action, and task dimensions
func New(ctx *device.Context, c Config, obsDim, actionDim,
	taskDim int) (*Storage, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	if obsDim <= 0 || actionDim <= 0 || taskDim < 0 {
		return nil, fmt.Errorf("new: invalid dimensions \n\tobs(%d)"+
			"\n\taction(%d)\n\ttask(%d)", obsDim, actionDim, taskDim)
	}

	selector, err := NewSelector(c.Selector, ctx.NewSource())
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	minRollouts := c.MinRollouts
	if minRollouts < 1 {
		minRollouts = 1
	}
	steps := c.MaxRollouts * c.MaxTrajectoryLen

	return &Storage{
		prevObs: make([]float64, steps*obsDim),
		nextObs: make([]float64, steps*obsDim),
		actions: make([]float64, steps*actionDim),
		rewards: make([]float64, steps),
		dones:   make([]bool, steps),
		tasks:   make([]float64, c.MaxRollouts*taskDim),
		lengths: make([]int, c.MaxRollouts),

		maxRollouts: c.MaxRollouts,
		maxLen:      c.MaxTrajectoryLen,
		minRollouts: minRollouts,
		obsDim:      obsDim,
		actionDim:   actionDim,
		taskDim:     taskDim,

		addThreshold: c.AddThreshold,
		accept:       distuv.Uniform{Min: 0, Max: 1, Src: ctx.NewSource()},
		selector:     selector,
		rng:          rand.New(ctx.NewSource()),
	}, nil
}

// validate checks that a trajectory can be stored
func (s *Storage) validate(t *Trajectory) error {
	steps := t.Len()
	if steps == 0 {
		return fmt.Errorf("empty trajectory")
	}
	if steps > s.maxLen {
		return fmt.Errorf("trajectory length %d exceeds maximum %d", steps,
			s.maxLen)
	}
	if len(t.Dones) != 0 && len(t.Dones) != steps {
		return fmt.Errorf("have %d done flags for %d steps", len(t.Dones),
			steps)
	}
	if len(t.Task) != s.taskDim {
		return fmt.Errorf("invalid task dimension \n\twant(%d)\n\thave(%d)",
			s.taskDim, len(t.Task))
	}

	check := func(name string, m *mat.Dense, cols int) error {
		if m == nil {
			return fmt.Errorf("missing %v", name)
		}
		if r, c := m.Dims(); r != steps || c != cols {
			return fmt.Errorf("invalid %v shape \n\twant(%d, %d)\n\t"+
				"have(%d, %d)", name, steps, cols, r, c)
		}
		return nil
	}
	if err := check("previous observations", t.PrevObs, s.obsDim); err != nil {
		return err
	}
	if err := check("next observations", t.NextObs, s.obsDim); err != nil {
		return err
	}
	return check("actions", t.Actions, s.actionDim)
}

// Insert stores a trajectory in the next slot of the buffer, evicting
// the oldest trajectory if the buffer is full. The trajectory is
// accepted with probability AddThreshold, and Insert returns whether it
// was stored.
func (s *Storage) Insert(t *Trajectory) (bool, error) {
	if err := s.validate(t); err != nil {
		return false, fmt.Errorf("insert: %v", err)
	}
	if s.addThreshold < 1 && s.accept.Rand() > s.addThreshold {
		return false, nil
	}

	slot := s.next
	steps := t.Len()
	s.fill(s.prevObs, slot, s.obsDim, t.PrevObs)
	s.fill(s.nextObs, slot, s.obsDim, t.NextObs)
	s.fill(s.actions, slot, s.actionDim, t.Actions)

	start := slot * s.maxLen
	copy(s.rewards[start:start+steps], t.Rewards)
	for i := steps; i < s.maxLen; i++ {
		s.rewards[start+i] = 0
	}
	for i := 0; i < s.maxLen; i++ {
		s.dones[start+i] = i < len(t.Dones) && t.Dones[i]
	}
	copy(s.tasks[slot*s.taskDim:(slot+1)*s.taskDim], t.Task)
	s.lengths[slot] = steps

	s.next = (s.next + 1) % s.maxRollouts
	if s.size < s.maxRollouts {
		s.size++
	}
	return true, nil
}

// fill copies m into the cache for slot, zero-padding the remaining
// steps of the slot
func (s *Storage) fill(cache []float64, slot, dim int, m *mat.Dense) {
	block := cache[slot*s.maxLen*dim : (slot+1)*s.maxLen*dim]
	for i := range block {
		block[i] = 0
	}
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		mat.Row(block[i*dim:(i+1)*dim], i, m)
	}
}

// Len returns the number of trajectories in the buffer
func (s *Storage) Len() int {
	return s.size
}

// MaxRollouts returns the capacity of the buffer
func (s *Storage) MaxRollouts() int {
	return s.maxRollouts
}

// MaxTrajectoryLen returns the maximum length of stored trajectories
func (s *Storage) MaxTrajectoryLen() int {
	return s.maxLen
}

// ReadyForUpdate returns whether enough trajectories are stored to
// sample an update batch
func (s *Storage) ReadyForUpdate() bool {
	return s.size >= s.minRollouts
}

// Tasks returns the tasks of all stored trajectories, oldest first
func (s *Storage) Tasks() [][]float64 {
	tasks := make([][]float64, s.size)
	for i := range tasks {
		slot := (s.next - s.size + i + s.maxRollouts) % s.maxRollouts
		tasks[i] = append([]float64(nil),
			s.tasks[slot*s.taskDim:(slot+1)*s.taskDim]...)
	}
	return tasks
}

// GetBatch samples numRollouts distinct trajectories, or all stored
// trajectories if fewer are stored or numRollouts <= 0, together with
// the encoder cutoffs of each trajectory.
//
// The cutoffs of a trajectory of length L are the numbers of
// transitions the encoder has seen at each ELBO term. If numEncLen <= 0
// or numEncLen >= L + 1, every cutoff 0, 1, ..., L is used. Otherwise,
// numEncLen distinct cutoffs are drawn uniformly and sorted.
func (s *Storage) GetBatch(numRollouts, numEncLen int) (*Batch, error) {
	if s.size == 0 {
		return nil, &BufferError{Op: "getbatch", Err: errEmptyBuffer}
	}
	if numRollouts <= 0 || numRollouts > s.size {
		numRollouts = s.size
	}
	slots := s.selector.choose(s, numRollouts)

	maxLen := 0
	for _, slot := range slots {
		if s.lengths[slot] > maxLen {
			maxLen = s.lengths[slot]
		}
	}

	b := &Batch{
		PrevObs: make([]*mat.Dense, len(slots)),
		NextObs: make([]*mat.Dense, len(slots)),
		Actions: make([]*mat.Dense, len(slots)),
		Rewards: make([][]float64, len(slots)),
		Dones:   make([][]bool, len(slots)),
		Tasks:   make([][]float64, len(slots)),
		Lengths: make([]int, len(slots)),
		Cutoffs: make([][]int, len(slots)),
		MaxLen:  maxLen,
	}
	for i, slot := range slots {
		start := slot * s.maxLen
		b.PrevObs[i] = s.padded(s.prevObs, slot, s.obsDim, maxLen)
		b.NextObs[i] = s.padded(s.nextObs, slot, s.obsDim, maxLen)
		b.Actions[i] = s.padded(s.actions, slot, s.actionDim, maxLen)
		b.Rewards[i] = append([]float64(nil), s.rewards[start:start+maxLen]...)
		b.Dones[i] = append([]bool(nil), s.dones[start:start+maxLen]...)
		b.Tasks[i] = append([]float64(nil),
			s.tasks[slot*s.taskDim:(slot+1)*s.taskDim]...)
		b.Lengths[i] = s.lengths[slot]
		b.Cutoffs[i] = s.cutoffs(s.lengths[slot], numEncLen)
	}
	return b, nil
}

// padded returns the first steps steps of slot as a matrix
func (s *Storage) padded(cache []float64, slot, dim, steps int) *mat.Dense {
	start := slot * s.maxLen * dim
	data := append([]float64(nil), cache[start:start+steps*dim]...)
	return mat.NewDense(steps, dim, data)
}

// cutoffs returns the encoder cutoffs of a trajectory of length steps
func (s *Storage) cutoffs(steps, numEncLen int) []int {
	if numEncLen <= 0 || numEncLen >= steps+1 {
		all := make([]int, steps+1)
		for i := range all {
			all[i] = i
		}
		return all
	}
	chosen := s.rng.Perm(steps + 1)[:numEncLen]
	sort.Ints(chosen)
	return chosen
}
