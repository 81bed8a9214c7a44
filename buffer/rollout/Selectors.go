package rollout

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// SelectorType determines how trajectories are chosen from a Storage
// when a batch is sampled
type SelectorType string

const (
	// Uniform chooses distinct trajectories uniformly at random
	Uniform SelectorType = "Uniform"

	// Recent chooses the most recently inserted trajectories
	Recent SelectorType = "Recent"
)

// Selector chooses the slots of a Storage to sample a batch from
type Selector interface {
	// choose selects n distinct occupied slots of s
	choose(s *Storage, n int) []int
}

// NewSelector returns a new Selector of the given type
func NewSelector(t SelectorType, src rand.Source) (Selector, error) {
	switch t {
	case Uniform:
		return &uniformSelector{rng: rand.New(src)}, nil
	case Recent:
		return recentSelector{}, nil
	default:
		return nil, fmt.Errorf("newselector: unknown selector type %q", t)
	}
}

// uniformSelector is a Selector which selects trajectories uniformly
// randomly without replacement
type uniformSelector struct {
	rng *rand.Rand
}

// choose implements the Selector interface
func (u *uniformSelector) choose(s *Storage, n int) []int {
	// Slots are filled in order, so the occupied slots are the first
	// s.Len() slots
	return u.rng.Perm(s.Len())[:n]
}

// recentSelector is a Selector which selects the most recently
// inserted trajectories, most recent first
type recentSelector struct{}

// choose implements the Selector interface
func (recentSelector) choose(s *Storage, n int) []int {
	selected := make([]int, n)
	for i := range selected {
		selected[i] = (s.next - 1 - i + s.maxRollouts) % s.maxRollouts
	}
	return selected
}
