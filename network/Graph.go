package network

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Graph is a computational graph into which Params are bound. Each
// Param is bound at most once per Graph, and every node the Graph
// creates receives a unique name so that Gorgonia never merges two
// distinct inputs into a single node.
type Graph struct {
	*G.ExprGraph

	bound   map[*Param]*G.Node
	created int
}

// NewGraph returns a new, empty Graph
func NewGraph() *Graph {
	return &Graph{
		ExprGraph: G.NewGraph(),
		bound:     make(map[*Param]*G.Node),
	}
}

// Param returns the node holding p in the graph, binding p into the
// graph if it has not been bound yet.
func (g *Graph) Param(p *Param) *G.Node {
	if n, ok := g.bound[p]; ok {
		return n
	}

	var n *G.Node
	switch p.Shape().Dims() {
	case 2:
		n = G.NewMatrix(g.ExprGraph, tensor.Float64,
			G.WithShape(p.Shape()...), G.WithName(p.name),
			G.WithValue(p.value))
	default:
		n = G.NewTensor(g.ExprGraph, tensor.Float64, p.Shape().Dims(),
			G.WithShape(p.Shape()...), G.WithName(p.name),
			G.WithValue(p.value))
	}
	g.bound[p] = n
	return n
}

// Nodes returns the nodes of ps in the graph, in the order of ps
func (g *Graph) Nodes(ps Params) G.Nodes {
	nodes := make(G.Nodes, len(ps))
	for i, p := range ps {
		nodes[i] = g.Param(p)
	}
	return nodes
}

// Input adds a new, non-learnable input node with value t to the graph
func (g *Graph) Input(name string, t *tensor.Dense) *G.Node {
	g.created++
	name = fmt.Sprintf("%s_%d", name, g.created)
	if t.Shape().Dims() == 2 {
		return G.NewMatrix(g.ExprGraph, tensor.Float64,
			G.WithShape(t.Shape()...), G.WithName(name), G.WithValue(t))
	}
	return G.NewTensor(g.ExprGraph, tensor.Float64, t.Shape().Dims(),
		G.WithShape(t.Shape()...), G.WithName(name), G.WithValue(t))
}

// Matrix adds a new, non-learnable matrix input node to the graph with
// the same value as m
func (g *Graph) Matrix(name string, m mat.Matrix) *G.Node {
	return g.Input(name, DenseFromMat(m))
}

// Fill adds a new, non-learnable r x c matrix input node with all
// entries set to value
func (g *Graph) Fill(name string, r, c int, value float64) *G.Node {
	backing := make([]float64, r*c)
	for i := range backing {
		backing[i] = value
	}
	return g.Input(name, tensor.New(tensor.WithShape(r, c),
		tensor.WithBacking(backing)))
}

// RowSum sums an N x F matrix over its columns, returning an N x 1
// matrix. The sum is computed as a matrix product so that all
// intermediate values remain matrices.
func (g *Graph) RowSum(x *G.Node) *G.Node {
	cols := x.Shape()[1]
	return G.Must(G.Mul(x, g.Fill("rowsum", cols, 1, 1.0)))
}

// RowMean averages an N x F matrix over its columns, returning an
// N x 1 matrix.
func (g *Graph) RowMean(x *G.Node) *G.Node {
	cols := x.Shape()[1]
	return G.Must(G.Mul(x, g.Fill("rowmean", cols, 1, 1.0/float64(cols))))
}

// LogSumExpRows computes log(Σ exp(x)) over the columns of each row of
// an N x K matrix, returning an N x 1 matrix.
func (g *Graph) LogSumExpRows(x *G.Node) *G.Node {
	return G.Must(G.Log(g.RowSum(G.Must(G.Exp(x)))))
}

// LogSoftmaxRows computes the log-softmax over the columns of each row
// of an N x K matrix.
func (g *Graph) LogSoftmaxRows(x *G.Node) *G.Node {
	lse := g.LogSumExpRows(x)
	return G.Must(G.BroadcastSub(x, lse, nil, []byte{1}))
}

// GatherRows returns the matrix whose i-th row is row idx[i] of x. The
// gather is a product with a constant one-hot selection matrix so that
// gradients flow back into x.
func (g *Graph) GatherRows(x *G.Node, idx []int) *G.Node {
	rows := x.Shape()[0]
	return G.Must(G.Mul(g.OneHot("gather", idx, rows), x))
}

// SelectColumns returns columns [start, end) of an N x F matrix as an
// N x (end - start) matrix. Slicing would drop the column dimension of
// single-column selections, so the selection is a matrix product.
func (g *Graph) SelectColumns(x *G.Node, start, end int) *G.Node {
	cols := x.Shape()[1]
	if start < 0 || end > cols || start >= end {
		panic(fmt.Sprintf("selectcolumns: invalid range [%d, %d) for %d "+
			"columns", start, end, cols))
	}
	width := end - start
	backing := make([]float64, cols*width)
	for j := 0; j < width; j++ {
		backing[(start+j)*width+j] = 1.0
	}
	sel := g.Input("columns", tensor.New(tensor.WithShape(cols, width),
		tensor.WithBacking(backing)))
	return G.Must(G.Mul(x, sel))
}

// OneHot adds a len(idx) x k one-hot input matrix to the graph, where
// row i has a 1 in column idx[i].
func (g *Graph) OneHot(name string, idx []int, k int) *G.Node {
	backing := make([]float64, len(idx)*k)
	for i, j := range idx {
		if j < 0 || j >= k {
			panic(fmt.Sprintf("onehot: index %d out of range [0, %d)", j, k))
		}
		backing[i*k+j] = 1.0
	}
	return g.Input(name, tensor.New(tensor.WithShape(len(idx), k),
		tensor.WithBacking(backing)))
}

// WeightedSum returns the scalar Σᵢ wᵢ xᵢ for an N x 1 matrix x
func (g *Graph) WeightedSum(x *G.Node, w []float64) *G.Node {
	if x.Shape()[0] != len(w) {
		panic(fmt.Sprintf("weightedsum: have %d weights for %d rows", len(w),
			x.Shape()[0]))
	}
	weights := g.Input("weights", tensor.New(tensor.WithShape(len(w), 1),
		tensor.WithBacking(append([]float64(nil), w...))))
	return G.Must(G.Sum(G.Must(G.HadamardProd(x, weights))))
}

// Run executes the graph
func (g *Graph) Run() error {
	vm := G.NewTapeMachine(g.ExprGraph)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return fmt.Errorf("run: %v", err)
	}
	return nil
}

// Minimise computes the gradient of loss with respect to ps, executes
// the graph, and takes a single step of solver on ps.
//
// Only the Params with a gradient path to loss are differentiated. The
// others are stepped with a zero gradient, so that the solver sees ps
// in the same order on every call and its per-parameter state stays
// aligned with ps.
func (g *Graph) Minimise(loss *G.Node, ps Params, solver G.Solver) error {
	ancestors := make(map[*G.Node]bool)
	for node := range G.WalkGraph(loss) {
		ancestors[node] = true
	}

	var learnables G.Nodes
	model := make([]G.ValueGrad, len(ps))
	for i, p := range ps {
		n, ok := g.bound[p]
		if ok && ancestors[n] {
			learnables = append(learnables, n)
			model[i] = n
			continue
		}
		model[i] = detached{p: p, node: n}
	}
	if len(learnables) == 0 {
		return fmt.Errorf("minimise: loss is not connected to any parameter")
	}

	if _, err := G.Grad(loss, learnables...); err != nil {
		return fmt.Errorf("minimise: could not compute gradient: %v", err)
	}

	vm := G.NewTapeMachine(g.ExprGraph, G.BindDualValues(learnables...))
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return fmt.Errorf("minimise: %v", err)
	}
	if err := solver.Step(model); err != nil {
		return fmt.Errorf("minimise: could not step solver: %v", err)
	}
	g.sync(ps)
	return nil
}

// detached is a Param with no gradient path to a loss. Its gradient is
// zero.
type detached struct {
	p    *Param
	node *G.Node
}

// Value returns the value that sync will read back into the Param
func (d detached) Value() G.Value {
	if d.node != nil {
		if v, ok := d.node.Value().(*tensor.Dense); ok {
			return v
		}
	}
	return d.p.value
}

// Grad returns a zero gradient
func (d detached) Grad() (G.Value, error) {
	return tensor.New(tensor.Of(tensor.Float64),
		tensor.WithShape(d.p.Shape().Clone()...)), nil
}

// sync writes the values of the nodes bound to ps back into ps, for
// solvers that replace rather than update node values.
func (g *Graph) sync(ps Params) {
	for _, p := range ps {
		n, ok := g.bound[p]
		if !ok {
			continue
		}
		v, ok := n.Value().(*tensor.Dense)
		if !ok || v == p.value {
			continue
		}
		copy(p.Data(), v.Data().([]float64))
	}
}

// Connected returns whether any of the nodes bound to ps is an
// ancestor of n, i.e. whether n carries a gradient path to ps.
func (g *Graph) Connected(n *G.Node, ps Params) bool {
	targets := make(map[*G.Node]bool, len(ps))
	for _, p := range ps {
		if bound, ok := g.bound[p]; ok {
			targets[bound] = true
		}
	}
	// The walk must be drained, so keep ranging after a match
	connected := false
	for node := range G.WalkGraph(n) {
		if targets[node] {
			connected = true
		}
	}
	return connected
}

// ValueOf returns a copy of the data held by a node after the graph
// has been run
func ValueOf(n *G.Node) []float64 {
	switch d := n.Value().Data().(type) {
	case []float64:
		return append([]float64(nil), d...)
	case float64:
		return []float64{d}
	default:
		panic(fmt.Sprintf("valueof: unsupported data type %T", d))
	}
}

// MatOf returns the value of a matrix node as a *mat.Dense after the
// graph has been run
func MatOf(n *G.Node) *mat.Dense {
	shape := n.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("matof: node %v is not a matrix", n.Name()))
	}
	return mat.NewDense(shape[0], shape[1], ValueOf(n))
}

// ScalarOf returns the value of a scalar node after the graph has been
// run
func ScalarOf(n *G.Node) float64 {
	return ValueOf(n)[0]
}

// DenseFromMat copies a gonum matrix into a new tensor
func DenseFromMat(m mat.Matrix) *tensor.Dense {
	r, c := m.Dims()
	backing := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			backing[i*c+j] = m.At(i, j)
		}
	}
	return tensor.New(tensor.WithShape(r, c), tensor.WithBacking(backing))
}
