// Package gridnavi implements a 2D grid navigation meta-environment, in
// which the task is an unobserved goal cell that the agent must find
// and then return to in later episodes.
package gridnavi

import (
	"fmt"

	"github.com/MasterXiong/varibad/device"
	"github.com/MasterXiong/varibad/environment"
	"github.com/MasterXiong/varibad/timestep"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

// Actions of a GridNavi environment
const (
	Stay = iota
	Up
	Right
	Down
	Left

	numActions
)

var (
	_ environment.MetaEnvironment = (*GridNavi)(nil)
	_ environment.TaskIDer        = (*GridNavi)(nil)
	_ environment.StateIndexer    = (*GridNavi)(nil)
)

// GridNavi represents a square gridworld whose goal cell is drawn
// uniformly from the cells not adjacent to the start corner (0, 0).
// Observations are the (x, y) coordinates of the agent, and the task
// descriptor is the (x, y) coordinates of the goal. The agent is
// rewarded with GoalReward on the goal and StepReward elsewhere, and
// episodes do not end at the goal.
type GridNavi struct {
	cfg   Config
	ender environment.StepLimit

	goals   []cell
	sampler *environment.CategoricalSampler

	position    cell
	goal        cell
	belief      *belief
	currentStep timestep.TimeStep
}

// New creates a new GridNavi with a sampled task. The environment must
// be Reset before the first step.
func New(ctx *device.Context, c Config) (*GridNavi, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	goals := candidates(c.NumCells)
	sampler, err := environment.NewCategoricalSampler(len(goals),
		ctx.NewSource())
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}

	g := &GridNavi{
		cfg:     c,
		ender:   environment.NewStepLimit(c.EpisodeLen),
		goals:   goals,
		sampler: sampler,
		belief:  newBelief(c.NumCells),
	}
	g.ResetTask()
	return g, nil
}

// ResetTask samples a new goal and resets the belief over goals
func (g *GridNavi) ResetTask() {
	g.goal = g.goals[g.sampler.Sample()]
	g.belief.reset()
}

// SetTask sets the goal to the cell with descriptor task and resets
// the belief over goals
func (g *GridNavi) SetTask(task []float64) error {
	c, err := cellOf(task, g.cfg.NumCells)
	if err != nil {
		return fmt.Errorf("settask: %v", err)
	}
	valid := false
	for _, goal := range g.goals {
		valid = valid || goal == c
	}
	if !valid {
		return fmt.Errorf("settask: %v is not a goal cell", task)
	}
	g.goal = c
	g.belief.reset()
	return nil
}

// Reset returns the agent to the start corner. The task and the belief
// over tasks are kept.
func (g *GridNavi) Reset() timestep.TimeStep {
	g.position = cell{0, 0}
	g.currentStep = timestep.New(timestep.First, 0, g.cfg.Discount,
		g.observation(), 0)
	return g.currentStep
}

// Step takes one environmental step given some action
func (g *GridNavi) Step(action *mat.VecDense) (timestep.TimeStep, bool) {
	if action.Len() != 1 {
		panic(fmt.Sprintf("step: action dimension \n\twant(1) \n\thave(%d)",
			action.Len()))
	}
	if g.currentStep.Last() {
		panic("step: cannot step after the last step of an episode")
	}

	x, y := g.position.x, g.position.y
	switch int(action.AtVec(0)) {
	case Stay:
	case Up:
		y++
	case Right:
		x++
	case Down:
		y--
	case Left:
		x--
	default:
		panic(fmt.Sprintf("step: invalid action %v", action.AtVec(0)))
	}
	g.position = cell{clip(x, g.cfg.NumCells), clip(y, g.cfg.NumCells)}

	atGoal := g.position == g.goal
	g.belief.update(g.position, atGoal)

	reward := g.cfg.StepReward
	if atGoal {
		reward = g.cfg.GoalReward
	}

	step := timestep.New(timestep.Mid, reward, g.cfg.Discount,
		g.observation(), g.currentStep.Number+1)
	done := g.ender.End(&step)
	g.currentStep = step

	return step, done
}

func clip(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

func (g *GridNavi) observation() *mat.VecDense {
	return mat.NewVecDense(2, []float64{float64(g.position.x),
		float64(g.position.y)})
}

// Task returns the (x, y) coordinates of the goal
func (g *GridNavi) Task() []float64 {
	return []float64{float64(g.goal.x), float64(g.goal.y)}
}

// TaskDim returns the dimension of task descriptors
func (g *GridNavi) TaskDim() int {
	return 2
}

// Belief returns the Bayes-optimal belief over goal cells, indexed by
// TaskToID
func (g *GridNavi) Belief() []float64 {
	return g.belief.values()
}

// BeliefDim returns the dimension of the belief
func (g *GridNavi) BeliefDim() int {
	return g.cfg.NumCells * g.cfg.NumCells
}

// TaskToID returns the cell index of a goal
func (g *GridNavi) TaskToID(task []float64) int {
	c, err := cellOf(task, g.cfg.NumCells)
	if err != nil {
		panic(fmt.Sprintf("tasktoid: %v", err))
	}
	return c.index(g.cfg.NumCells)
}

// NumTasks returns the number of task identifiers, one per cell
func (g *GridNavi) NumTasks() int {
	return g.cfg.NumCells * g.cfg.NumCells
}

// StateToIndex returns the cell index of an observation
func (g *GridNavi) StateToIndex(obs []float64) int {
	c, err := cellOf(obs, g.cfg.NumCells)
	if err != nil {
		panic(fmt.Sprintf("statetoindex: %v", err))
	}
	return c.index(g.cfg.NumCells)
}

// NumStates returns the number of cells
func (g *GridNavi) NumStates() int {
	return g.cfg.NumCells * g.cfg.NumCells
}

// ObservationSpec returns the observation specification of the
// environment
func (g *GridNavi) ObservationSpec() environment.Spec {
	bound := r1.Interval{Min: 0, Max: float64(g.cfg.NumCells - 1)}
	return environment.NewSpec(environment.Observation,
		[]r1.Interval{bound, bound}, environment.Discrete)
}

// ActionSpec returns the action specification of the environment
func (g *GridNavi) ActionSpec() environment.Spec {
	return environment.NewSpec(environment.Action,
		[]r1.Interval{{Min: 0, Max: numActions - 1}}, environment.Discrete)
}

// TaskSpec returns the task specification of the environment
func (g *GridNavi) TaskSpec() environment.Spec {
	bound := r1.Interval{Min: 0, Max: float64(g.cfg.NumCells - 1)}
	return environment.NewSpec(environment.Task,
		[]r1.Interval{bound, bound}, environment.Discrete)
}

// EpisodeLen returns the number of steps in an episode
func (g *GridNavi) EpisodeLen() int {
	return g.ender.Steps()
}

func (g *GridNavi) String() string {
	str := "GridNavi | At: (%d, %d)  |  Goal: (%d, %d)  |  Bounds: (%d, %d)"
	return fmt.Sprintf(str, g.position.x, g.position.y, g.goal.x, g.goal.y,
		g.cfg.NumCells, g.cfg.NumCells)
}
