package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Param is a learnable weight tensor. A Param outlives the
// computational graphs it is used in: each time a model builds a new
// graph, its Params are bound into that graph by value, and optimiser
// updates made through the graph are written back into the Param.
type Param struct {
	name  string
	value *tensor.Dense
}

// NewParam returns a new Param with the given initial value
func NewParam(name string, value *tensor.Dense) *Param {
	return &Param{name: name, value: value}
}

// NewParamWithInit returns a new Param of the given shape whose value
// is drawn from init
func NewParamWithInit(name string, init G.InitWFn, shape ...int) *Param {
	backing := init(tensor.Float64, shape...).([]float64)
	value := tensor.New(
		tensor.WithShape(shape...),
		tensor.WithBacking(backing),
	)
	return NewParam(name, value)
}

// Name returns the name of the Param
func (p *Param) Name() string {
	return p.name
}

// Value returns the current value of the Param
func (p *Param) Value() *tensor.Dense {
	return p.value
}

// Shape returns the shape of the Param
func (p *Param) Shape() tensor.Shape {
	return p.value.Shape()
}

// Data returns the backing data of the Param. Modifying the returned
// slice modifies the Param.
func (p *Param) Data() []float64 {
	return p.value.Data().([]float64)
}

// Set copies the data of v into the Param
func (p *Param) Set(v *tensor.Dense) error {
	if !v.Shape().Eq(p.Shape()) {
		return fmt.Errorf("set: cannot set param %v with shape %v to value "+
			"with shape %v", p.name, p.Shape(), v.Shape())
	}
	copy(p.Data(), v.Data().([]float64))
	return nil
}

// Params is an ordered list of Params. The order of Params is the
// order in which optimisers see them, and so must be stable over the
// life of a model.
type Params []*Param

// Concat returns the concatenation of a number of Params lists
func Concat(lists ...Params) Params {
	var out Params
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// Set sets each Param in dest to the value of the corresponding Param
// in source
func (dest Params) Set(source Params) error {
	if len(dest) != len(source) {
		return fmt.Errorf("set: expected %d params, got %d", len(dest),
			len(source))
	}
	for i := range dest {
		if err := dest[i].Set(source[i].value); err != nil {
			return err
		}
	}
	return nil
}

type encodedParam struct {
	Name  string
	Shape []int
	Data  []float64
}

// GobEncode implements the gob.GobEncoder interface
func (p Params) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	encoded := make([]encodedParam, len(p))
	for i := range p {
		encoded[i] = encodedParam{
			Name:  p[i].name,
			Shape: []int(p[i].Shape().Clone()),
			Data:  p[i].Data(),
		}
	}
	if err := enc.Encode(encoded); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode params: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. If p already
// holds Params, their values are overwritten in place after checking
// that names and shapes match, so that a model can restore a
// checkpoint into its existing Params.
func (p *Params) GobDecode(in []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	var encoded []encodedParam
	if err := dec.Decode(&encoded); err != nil {
		return fmt.Errorf("gobdecode: could not decode params: %v", err)
	}

	if len(*p) == 0 {
		out := make(Params, len(encoded))
		for i, e := range encoded {
			out[i] = NewParam(e.Name, tensor.New(
				tensor.WithShape(e.Shape...),
				tensor.WithBacking(e.Data),
			))
		}
		*p = out
		return nil
	}

	if len(*p) != len(encoded) {
		return fmt.Errorf("gobdecode: expected %d params, got %d", len(*p),
			len(encoded))
	}
	for i, e := range encoded {
		param := (*p)[i]
		if param.name != e.Name {
			return fmt.Errorf("gobdecode: param %d: expected %v, got %v", i,
				param.name, e.Name)
		}
		value := tensor.New(tensor.WithShape(e.Shape...),
			tensor.WithBacking(e.Data))
		if err := param.Set(value); err != nil {
			return fmt.Errorf("gobdecode: %v", err)
		}
	}
	return nil
}
