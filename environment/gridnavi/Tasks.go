package gridnavi

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// cell is a position (x, y) in the grid
type cell struct {
	x, y int
}

// candidates returns the goal cells of an n x n grid: every cell that
// is not adjacent to the start corner (0, 0)
func candidates(n int) []cell {
	var out []cell
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			if x <= 1 && y <= 1 {
				continue
			}
			out = append(out, cell{x, y})
		}
	}
	return out
}

// index returns the index of c in an n x n grid
func (c cell) index(n int) int {
	return c.x*n + c.y
}

// cellOf returns the cell with descriptor v, which must lie in an
// n x n grid
func cellOf(v []float64, n int) (cell, error) {
	if len(v) != 2 {
		return cell{}, fmt.Errorf("cell descriptor must have 2 elements, "+
			"got %d", len(v))
	}
	c := cell{int(v[0]), int(v[1])}
	if float64(c.x) != v[0] || float64(c.y) != v[1] {
		return cell{}, fmt.Errorf("cell descriptor %v is not integral", v)
	}
	if c.x < 0 || c.x >= n || c.y < 0 || c.y >= n {
		return cell{}, fmt.Errorf("cell %v out of bounds [0, %d)", v, n)
	}
	return c, nil
}

// belief is the Bayes-optimal belief over the goal cell, indexed by
// cell index. Under a uniform prior over candidate goals, visiting a
// cell that is not the goal rules it out, and visiting the goal
// identifies it.
type belief struct {
	n      int
	probs  []float64
	prior  []float64
	solved bool
}

func newBelief(n int) *belief {
	prior := make([]float64, n*n)
	goals := candidates(n)
	for _, c := range goals {
		prior[c.index(n)] = 1 / float64(len(goals))
	}
	b := &belief{n: n, prior: prior}
	b.reset()
	return b
}

// reset returns the belief to the prior
func (b *belief) reset() {
	b.probs = append([]float64(nil), b.prior...)
	b.solved = false
}

// update observes that the agent is at c
func (b *belief) update(c cell, atGoal bool) {
	if b.solved {
		return
	}
	if atGoal {
		for i := range b.probs {
			b.probs[i] = 0
		}
		b.probs[c.index(b.n)] = 1
		b.solved = true
		return
	}

	b.probs[c.index(b.n)] = 0
	if total := floats.Sum(b.probs); total > 0 {
		floats.Scale(1/total, b.probs)
	}
}

// values returns a copy of the belief
func (b *belief) values() []float64 {
	return append([]float64(nil), b.probs...)
}
