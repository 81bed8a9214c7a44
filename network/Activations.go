package network

import (
	"encoding/json"
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
)

type activationType string

const (
	relu      activationType = "relu"
	leakyRelu activationType = "leaky-relu"
	identity  activationType = "identity"
	tanh      activationType = "tanh"
)

// LeakyReLUSlope is the negative slope used by the leaky ReLU activation
const LeakyReLUSlope = 0.01

// Activation represents an activation function type. The set of
// activations is closed: an Activation is resolved once from its name
// and never re-dispatched on its name afterwards.
type Activation struct {
	activationType
	f func(x *G.Node) (*G.Node, error)
}

// Fwd performs the forward pass of an Activation
func (a *Activation) Fwd(x *G.Node) (*G.Node, error) {
	return a.f(x)
}

// String implements the Stringer interface
func (a *Activation) String() string {
	return string(a.activationType)
}

// IsIdentity returns whether or not the Activation is the identity
// function.
func (a *Activation) IsIdentity() bool {
	return a.activationType == identity
}

// Gain returns the recommended gain for weights feeding into the
// activation function.
func (a *Activation) Gain() float64 {
	switch a.activationType {
	case tanh:
		return 5.0 / 3.0
	case relu:
		return math.Sqrt2
	case leakyRelu:
		return math.Sqrt(2.0 / (1 + LeakyReLUSlope*LeakyReLUSlope))
	default:
		return 1.0
	}
}

// ParseActivation returns the Activation with the given name. Valid
// names are "relu", "leaky-relu", "tanh", and "identity".
func ParseActivation(name string) (*Activation, error) {
	switch activationType(name) {
	case relu:
		return ReLU(), nil
	case leakyRelu:
		return LeakyReLU(), nil
	case identity:
		return Identity(), nil
	case tanh:
		return TanH(), nil
	default:
		return nil, fmt.Errorf("parseactivation: invalid activation "+
			"function %q", name)
	}
}

// GobEncode implements the GobEncoder interface
func (a *Activation) GobEncode() ([]byte, error) {
	return []byte(a.activationType), nil
}

// GobDecode implements the GobDecoder interface
func (a *Activation) GobDecode(encoded []byte) error {
	decoded, err := ParseActivation(string(encoded))
	if err != nil {
		return fmt.Errorf("gobdecode: %v", err)
	}
	*a = *decoded
	return nil
}

// MarshalJSON implements the json.Marshaler interface
func (a *Activation) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a.activationType))
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (a *Activation) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	decoded, err := ParseActivation(name)
	if err != nil {
		return fmt.Errorf("unmarshaljson: %v", err)
	}
	*a = *decoded
	return nil
}

// Identity returns an identity *Activation
func Identity() *Activation {
	return &Activation{
		activationType: identity,
		f: func(x *G.Node) (*G.Node, error) {
			return x, nil
		},
	}
}

// ReLU returns a ReLU *Activation
func ReLU() *Activation {
	return &Activation{
		activationType: relu,
		f:              G.Rectify,
	}
}

// LeakyReLU returns a leaky ReLU *Activation with negative slope
// LeakyReLUSlope
func LeakyReLU() *Activation {
	return &Activation{
		activationType: leakyRelu,
		f: func(x *G.Node) (*G.Node, error) {
			return G.LeakyRelu(x, LeakyReLUSlope)
		},
	}
}

// TanH returns a tanh *Activation
func TanH() *Activation {
	return &Activation{
		activationType: tanh,
		f:              G.Tanh,
	}
}
