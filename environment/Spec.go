package environment

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r1"
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an action, an observation, or a task.
type SpecType int

const (
	Action SpecType = iota
	Observation
	Task
)

// Cardinality determines the cardinality of a number (discrete or continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec implements an environment specification, which tells the type,
// dimension, and bounds of an action, observation, or task in an
// environment
type Spec struct {
	Type   SpecType
	Bounds []r1.Interval
	Cardinality
}

// NewSpec constructs a new environment specification with one bound
// per dimension. The cardinality argument describes whether the values
// that the spec describes are continuous or discrete.
func NewSpec(t SpecType, bounds []r1.Interval, cardinality Cardinality) Spec {
	for i, b := range bounds {
		if b.Min > b.Max {
			panic(fmt.Sprintf("newspec: bound %d has min %v > max %v", i,
				b.Min, b.Max))
		}
	}
	return Spec{Type: t, Bounds: bounds, Cardinality: cardinality}
}

// Dim returns the number of dimensions of the Spec
func (s Spec) Dim() int {
	return len(s.Bounds)
}

// Contains returns whether x lies within the bounds of the Spec
func (s Spec) Contains(x []float64) bool {
	if len(x) != len(s.Bounds) {
		return false
	}
	for i, b := range s.Bounds {
		if x[i] < b.Min || x[i] > b.Max {
			return false
		}
	}
	return true
}

// NumActions returns the number of discrete values of a
// one-dimensional discrete Spec starting at its lower bound. It panics
// for any other Spec.
func (s Spec) NumActions() int {
	if s.Cardinality != Discrete || len(s.Bounds) != 1 {
		panic(fmt.Sprintf("numactions: spec is not one-dimensional and "+
			"discrete: %v dimensions, %v", len(s.Bounds), s.Cardinality))
	}
	return int(s.Bounds[0].Max-s.Bounds[0].Min) + 1
}
