// Package decoder implements the decoders of the latent task variable.
// Each decoder reconstructs a target signal (next state, reward, or
// task) from a latent sample and returns its losses unreduced: one
// loss per decoded row, as an N x 1 node. Reducing the losses over
// rows is left to the caller.
package decoder

import (
	"fmt"

	"github.com/MasterXiong/varibad/network"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// StateIndexer maps states to the index of the head of a multi-head
// reward decoder that predicts the reward of the state
type StateIndexer interface {
	StateToIndex(state []float64) int
	NumStates() int
}

// TaskIDer maps task descriptors to task identifiers
type TaskIDer interface {
	TaskToID(task []float64) int
	NumTasks() int
}

func validateLayers(layers []int) error {
	for _, size := range layers {
		if size <= 0 {
			return fmt.Errorf("invalid layer size %v", size)
		}
	}
	return nil
}

// successTargets returns the N x 1 matrix whose rows are 1 where the
// reward is exactly 1 and 0 elsewhere
func successTargets(rewards mat.Matrix) *mat.Dense {
	r, _ := rewards.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		if rewards.At(i, 0) == 1 {
			out.Set(i, 0, 1)
		}
	}
	return out
}

// selectPerRow returns the N x 1 node whose i-th row is x[i, idx[i]]
func selectPerRow(g *network.Graph, x *G.Node, idx []int) *G.Node {
	mask := g.OneHot("select", idx, x.Shape()[1])
	return g.RowSum(G.Must(G.HadamardProd(x, mask)))
}

// rowsOf returns the rows of m as slices
func rowsOf(m mat.Matrix) [][]float64 {
	r, _ := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, m)
	}
	return rows
}

func checkRows(latent *G.Node, targets ...mat.Matrix) error {
	n := latent.Shape()[0]
	for _, t := range targets {
		if t == nil {
			continue
		}
		if r, _ := t.Dims(); r != n {
			return fmt.Errorf("number of target rows %d does not match number "+
				"of latent rows %d", r, n)
		}
	}
	return nil
}
