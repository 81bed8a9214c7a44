// Package environment outlines the interfaces and structs needed to
// implement concrete meta-environments: environments that sample a
// task which stays fixed over a number of episodes
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/MasterXiong/varibad/timestep"
)

// Ender determines when episodes end
type Ender interface {
	End(*timestep.TimeStep) bool
}

// Environment implements a simulated environment
type Environment interface {
	Reset() timestep.TimeStep // Resets between episodes
	Step(action *mat.VecDense) (timestep.TimeStep, bool)
	ObservationSpec() Spec
	ActionSpec() Spec
}

// MetaEnvironment implements an Environment over a distribution of
// tasks. The task is resampled only by ResetTask, so that consecutive
// episodes share a task.
type MetaEnvironment interface {
	Environment

	// ResetTask samples a new task and resets the belief over tasks
	ResetTask()

	// Task returns the descriptor of the current task
	Task() []float64
	TaskDim() int

	// Belief returns the Bayes-optimal belief over tasks given the
	// transitions observed since the last call to ResetTask
	Belief() []float64
	BeliefDim() int
}

// TaskIDer maps task descriptors to task identifiers
type TaskIDer interface {
	TaskToID(task []float64) int
	NumTasks() int
}

// StateIndexer maps observations to state indices
type StateIndexer interface {
	StateToIndex(obs []float64) int
	NumStates() int
}
