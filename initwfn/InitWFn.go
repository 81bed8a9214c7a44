// Package initwfn implements weight initialisation schemes for the
// module's networks and wraps them so that they can be JSON serialized
// into configuration files.
package initwfn

import (
	"encoding/json"
	"fmt"
	"reflect"

	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Type describes different types of InitWFn that are available.
// Type is used to implement a basic type system of InitWFn's.
type Type string

// Available InitWFn types
const (
	Orthogonal Type = "Orthogonal"
	NormC      Type = "NormC"
	GlorotU    Type = "GlorotU"
	GlorotN    Type = "GlorotN"
	Gaussian   Type = "Gaussian"
	Uniform    Type = "Uniform"
	Zeroes     Type = "Zeroes"
)

// InitWFn wraps a weight initialisation Config so that it can be JSON
// marshalled and unmarshalled.
type InitWFn struct {
	Type
	Config
}

// newInitWFn returns a new InitWFn
func newInitWFn(c Config) *InitWFn {
	return &InitWFn{Type: c.Type(), Config: c}
}

// InitWFn returns the Gorgonia InitWFn described by the wrapped Config,
// drawing its random numbers from src.
func (i *InitWFn) InitWFn(src rand.Source) G.InitWFn {
	return i.Config.Create(src)
}

// String implements the fmt.Stringer interface
func (i *InitWFn) String() string {
	return fmt.Sprintf("{%v InitWFn: %v}", i.Type, i.Config)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (i *InitWFn) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(
		data,
		"Type",
		"Config",
		map[string]reflect.Type{
			string(Orthogonal): reflect.TypeOf(OrthogonalConfig{}),
			string(NormC):      reflect.TypeOf(NormCConfig{}),
			string(GlorotU):    reflect.TypeOf(GlorotUConfig{}),
			string(GlorotN):    reflect.TypeOf(GlorotNConfig{}),
			string(Gaussian):   reflect.TypeOf(GaussianConfig{}),
			string(Uniform):    reflect.TypeOf(UniformConfig{}),
			string(Zeroes):     reflect.TypeOf(ZeroesConfig{}),
		})
	if err != nil {
		return err
	}

	i.Type = typeName
	i.Config = config
	return nil
}

// unmarshalConfig uses reflection to unmarshall a Config into its
// concrete type. Both the Config and its Type are returned.
func unmarshalConfig(data []byte, typeJsonField, valueJsonField string,
	customTypes map[string]reflect.Type) (Config, Type, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	typeName, ok := m[typeJsonField].(string)
	if !ok {
		return nil, "", fmt.Errorf("unmarshalconfig: missing field %v",
			typeJsonField)
	}
	ty, found := customTypes[typeName]
	if !found {
		return nil, "", fmt.Errorf("unmarshalconfig: unknown initialiser "+
			"type %q", typeName)
	}
	value := reflect.New(ty).Interface()

	if raw, ok := m[valueJsonField]; ok {
		valueBytes, err := json.Marshal(raw)
		if err != nil {
			return nil, "", err
		}
		if err = json.Unmarshal(valueBytes, value); err != nil {
			return nil, "", err
		}
	}
	concreteValue := reflect.ValueOf(value).Elem().Interface().(Config)

	return concreteValue, Type(typeName), nil
}

// Config implements a weight initialisation configuration and can be
// used to create the described Gorgonia InitWFn's.
type Config interface {
	// Create returns the Gorgonia InitWFn that the Config describes.
	// Random weights are drawn from src.
	Create(src rand.Source) G.InitWFn

	// Type returns the type of Gorgonia InitWFn that is returned
	Type() Type
}

// Scheme returns the initialisation scheme with the given name and
// gain. Valid names are "orthogonal" and "normc".
func Scheme(name string, gain float64) (*InitWFn, error) {
	switch name {
	case "orthogonal":
		return NewOrthogonal(gain), nil
	case "normc":
		return NewNormC(gain), nil
	default:
		return nil, fmt.Errorf("scheme: invalid initialisation scheme %q",
			name)
	}
}

// dims2 returns the two dimensions of a weight matrix shape, panicking
// if the shape is not two-dimensional or the data type is not float64.
func dims2(scheme Type, dt tensor.Dtype, s []int) (int, int) {
	if dt != tensor.Float64 {
		panic(fmt.Sprintf("%v: unsupported data type %v", scheme, dt))
	}
	if len(s) != 2 {
		panic(fmt.Sprintf("%v: weights must be a matrix, got shape %v",
			scheme, s))
	}
	return s[0], s[1]
}
