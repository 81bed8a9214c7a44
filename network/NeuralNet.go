// Package network implements the neural network building blocks of
// the module: persistent Params, the Graph they are bound into, fully
// connected layers, MLPs, feature extractors, and a GRU cell.
package network

// Module is a component holding learnable Params. The order of the
// returned Params is stable over the life of the Module. Calling
// Params on a nil Module of any concrete type in this package returns
// no Params, so optional components can be collected without checks.
type Module interface {
	Params() Params
}

// ParamsOf returns the Params of a number of Modules in order
func ParamsOf(modules ...Module) Params {
	var out Params
	for _, m := range modules {
		if m == nil {
			continue
		}
		out = append(out, m.Params()...)
	}
	return out
}
