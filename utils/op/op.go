// Package op provides extended Gorgonia graph operations.
//
// Max is adapted from aunum/gold on GitHub
package op

import (
	"math"

	G "gorgonia.org/gorgonia"
)

// Max value between the nodes. If values are equal the first value is returned.
func Max(a *G.Node, b *G.Node) (retVal *G.Node, err error) {
	aMask, err := G.Gte(a, b, true)
	if err != nil {
		return nil, err
	}
	aVal, err := G.HadamardProd(a, aMask)
	if err != nil {
		return nil, err
	}

	bMask, err := G.Gt(b, a, true)
	if err != nil {
		return nil, err
	}
	bVal, err := G.HadamardProd(b, bMask)
	if err != nil {
		return nil, err
	}
	return G.Add(aVal, bVal)
}

// GaussianLogPdf calculates the elementwise log of the probability
// density function of x under independent Gaussians with means mean
// and standard deviations std. All arguments must have the same shape,
// and so does the result:
//
//	log p(x) = -½((x - μ) / σ)² - log σ - ½ log 2π
func GaussianLogPdf(mean, std, x *G.Node) *G.Node {
	if mean.Graph() != std.Graph() || mean.Graph() != x.Graph() {
		panic("gaussianLogPdf: all nodes must share the same graph")
	}

	z := G.Must(G.HadamardDiv(G.Must(G.Sub(x, mean)), std))
	exponent := G.Must(G.HadamardProd(G.NewConstant(-0.5), G.Must(G.Square(z))))

	norm := G.Must(G.Add(G.Must(G.Log(std)), G.NewConstant(0.5*math.Log(2*math.Pi))))
	return G.Must(G.Sub(exponent, norm))
}

// GaussianNLLLogVar calculates the elementwise negative log-likelihood
// of x under independent Gaussians parameterised by their means and
// log-variances.
func GaussianNLLLogVar(mean, logVar, x *G.Node) *G.Node {
	std := G.Must(G.Exp(G.Must(G.HadamardProd(G.NewConstant(0.5), logVar))))
	return G.Must(G.Neg(GaussianLogPdf(mean, std, x)))
}

// BernoulliNLL calculates the elementwise binary cross-entropy between
// sigmoid(logits) and targets in {0, 1}, computed from the logits
// directly:
//
//	t·softplus(-x) + (1 - t)·softplus(x)
func BernoulliNLL(logits, targets *G.Node) *G.Node {
	one := G.NewConstant(1.0)
	pos := G.Must(G.HadamardProd(targets,
		G.Must(G.Softplus(G.Must(G.Neg(logits))))))
	neg := G.Must(G.HadamardProd(G.Must(G.Sub(one, targets)),
		G.Must(G.Softplus(logits))))
	return G.Must(G.Add(pos, neg))
}

// BCE calculates the elementwise binary cross-entropy between the
// probabilities probs and targets in {0, 1}. Log probabilities are
// floored at -100.
func BCE(probs, targets *G.Node) *G.Node {
	one := G.NewConstant(1.0)
	floor := G.NewConstant(math.Exp(-100))

	logP := G.Must(G.Log(G.Must(G.Add(probs, floor))))
	log1mP := G.Must(G.Log(G.Must(G.Add(G.Must(G.Sub(one, probs)), floor))))

	pos := G.Must(G.HadamardProd(targets, logP))
	neg := G.Must(G.HadamardProd(G.Must(G.Sub(one, targets)), log1mP))
	return G.Must(G.Neg(G.Must(G.Add(pos, neg))))
}

// SquaredError calculates the elementwise squared error (pred - target)²
func SquaredError(pred, target *G.Node) *G.Node {
	return G.Must(G.Square(G.Must(G.Sub(pred, target))))
}
