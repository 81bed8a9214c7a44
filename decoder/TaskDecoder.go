package decoder

import (
	"fmt"

	"github.com/MasterXiong/varibad/device"
	"github.com/MasterXiong/varibad/initwfn"
	"github.com/MasterXiong/varibad/network"
	"github.com/MasterXiong/varibad/utils/op"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
)

// TaskConfig implements a configuration of a TaskDecoder
type TaskConfig struct {
	Layers []int
	Mode   TaskMode
}

// Validate checks the TaskConfig for errors
func (c TaskConfig) Validate() error {
	if err := validateLayers(c.Layers); err != nil {
		return fmt.Errorf("validate: %v", err)
	}
	if c.Mode != TaskID && c.Mode != TaskDescription {
		return fmt.Errorf("validate: unknown task mode %v", c.Mode)
	}
	return nil
}

// TaskDecoder predicts the task from a latent sample, either as logits
// over task identifiers or as a task descriptor.
type TaskDecoder struct {
	hidden *network.MLP
	out    *network.Linear

	mode TaskMode
	ider TaskIDer
}

// NewTaskDecoder returns a new TaskDecoder. The ider is required when
// predicting task identifiers and ignored otherwise.
func NewTaskDecoder(ctx *device.Context, c TaskConfig, latentDim,
	taskDim int, ider TaskIDer) (*TaskDecoder, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newtaskdecoder: %v", err)
	}

	outputs := taskDim
	if c.Mode == TaskID {
		if ider == nil {
			return nil, fmt.Errorf("newtaskdecoder: task id prediction " +
				"requires a task IDer")
		}
		outputs = ider.NumTasks()
	}
	init := initwfn.NewGlorotU(1.0).InitWFn(ctx.NewSource())

	hidden, err := network.NewMLP("task_decoder", latentDim, c.Layers,
		network.ReLU(), init)
	if err != nil {
		return nil, fmt.Errorf("newtaskdecoder: %v", err)
	}
	out, err := network.NewLinear("task_decoder/fc_out", hidden.Out(),
		outputs, init, true)
	if err != nil {
		return nil, fmt.Errorf("newtaskdecoder: %v", err)
	}

	return &TaskDecoder{hidden: hidden, out: out, mode: c.Mode, ider: ider}, nil
}

// Fwd adds the prediction of the decoder to the graph
func (d *TaskDecoder) Fwd(g *network.Graph, latent *G.Node) (*G.Node, error) {
	h, err := d.hidden.Fwd(g, latent)
	if err != nil {
		return nil, fmt.Errorf("fwd: %v", err)
	}
	return d.out.Fwd(g, h)
}

// Loss adds the per-row task reconstruction losses to the graph. Row i
// of tasks is the task of row i of latent. The result is an N x 1
// node.
func (d *TaskDecoder) Loss(g *network.Graph, latent *G.Node,
	tasks mat.Matrix) (*G.Node, error) {
	if err := checkRows(latent, tasks); err != nil {
		return nil, fmt.Errorf("loss: %v", err)
	}
	pred, err := d.Fwd(g, latent)
	if err != nil {
		return nil, fmt.Errorf("loss: %v", err)
	}

	switch d.mode {
	case TaskID:
		var ids []int
		for _, task := range rowsOf(tasks) {
			ids = append(ids, d.ider.TaskToID(task))
		}
		logProbs := selectPerRow(g, g.LogSoftmaxRows(pred), ids)
		return G.Must(G.Neg(logProbs)), nil

	case TaskDescription:
		return g.RowMean(op.SquaredError(pred, g.Matrix("task", tasks))), nil
	}
	panic(fmt.Sprintf("loss: unknown task mode %v", d.mode))
}

// Mode returns the output mode of the decoder
func (d *TaskDecoder) Mode() TaskMode {
	return d.mode
}

// Params returns the learnable Params of the decoder
func (d *TaskDecoder) Params() network.Params {
	if d == nil {
		return nil
	}
	return network.ParamsOf(d.hidden, d.out)
}
