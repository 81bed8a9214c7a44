package tracker

import (
	"fmt"

	ts "github.com/MasterXiong/varibad/timestep"
)

// Tags of the values tracked by Episodes
const (
	ReturnTag        = "returns/episode"
	EpisodeLengthTag = "returns/episode_length"
)

// Episodes tracks the episodic return and the length of each episode
// in an experiment. When an environment returns a TimeStep, Episodes
// will extract the reward and accumulate the return of the episode.
// When the last TimeStep of an episode is seen, its return and length
// are passed to the wrapped Tracker.
//
// Note: An episode must finish for its return to be tracked.
type Episodes struct {
	t             Tracker
	lastTimeStep  int
	currentReturn float64
}

// NewEpisodes returns a new Episodes which passes episodic returns and
// lengths to t
func NewEpisodes(t Tracker) *Episodes {
	return &Episodes{t: t, lastTimeStep: -1}
}

// Step tracks the reward seen on a timestep. By calling this method
// on every timestep, including the first of each episode, Episodes
// accumulates the return of each episode separately.
//
// Step panics if it is called for non-sequential timesteps
func (e *Episodes) Step(step ts.TimeStep, iter int) {
	// Ensure that Step is called on sequential timesteps
	if e.lastTimeStep+1 != step.Number {
		msg := fmt.Sprintf("step: last two timesteps tracked are not "+
			"sequential: timestep %v --> timestep %v were tracked",
			e.lastTimeStep, step.Number)
		panic(msg)
	}

	e.currentReturn += step.Reward
	if !step.Last() {
		e.lastTimeStep = step.Number
		return
	}

	// Episode has ended, track the return and begin tracking the
	// return of a new episode
	e.t.Track(ReturnTag, e.currentReturn, iter)
	e.t.Track(EpisodeLengthTag, float64(step.Number), iter)
	e.currentReturn = 0.0
	e.lastTimeStep = -1
}
