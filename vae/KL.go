package vae

import (
	"fmt"
	"math"

	"github.com/MasterXiong/varibad/network"
	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
)

// StdGaussianKL returns the KL divergence between the diagonal Gaussian
// with the given mean and log-variance and a standard normal:
//
//	-½ Σ (1 + logVar - mean² - exp(logVar))
func StdGaussianKL(mean, logVar []float64) float64 {
	if len(mean) != len(logVar) {
		panic("stdgaussiankl: mean and log-variance lengths differ")
	}
	var sum float64
	for i := range mean {
		sum += 1 + logVar[i] - mean[i]*mean[i] - math.Exp(logVar[i])
	}
	return -0.5 * sum
}

// GaussianKL returns KL(N(mean, E) || N(priorMean, S)) between two
// diagonal Gaussians with log-variances logE and logS:
//
//	½ (Σ logS - Σ logE - K + Σ E/S + Σ (priorMean - mean)² / S)
func GaussianKL(mean, logE, priorMean, logS []float64) float64 {
	k := len(mean)
	if len(logE) != k || len(priorMean) != k || len(logS) != k {
		panic(fmt.Sprintf("gaussiankl: dimension mismatch (%d, %d, %d, %d)",
			len(mean), len(logE), len(priorMean), len(logS)))
	}

	var ratio, mahalanobis float64
	for i := 0; i < k; i++ {
		s := math.Exp(logS[i])
		ratio += math.Exp(logE[i]) / s
		diff := priorMean[i] - mean[i]
		mahalanobis += diff * diff / s
	}
	return 0.5 * (floats.Sum(logS) - floats.Sum(logE) - float64(k) + ratio +
		mahalanobis)
}

// stdGaussianKLRows adds the KL divergence of each row of a batch of
// beliefs from a standard normal to the graph, as a B x 1 node
func stdGaussianKLRows(g *network.Graph, mean, logVar *G.Node) *G.Node {
	one := G.NewConstant(1.0)
	pos := G.Must(G.Add(one, logVar))
	neg := G.Must(G.Add(G.Must(G.Square(mean)), G.Must(G.Exp(logVar))))
	sum := g.RowSum(G.Must(G.Sub(pos, neg)))
	return G.Must(G.HadamardProd(G.NewConstant(-0.5), sum))
}

// gaussianKLRows adds KL(N(mean, E) || N(priorMean, S)) of each row of
// a batch of beliefs to the graph, as a B x 1 node
func gaussianKLRows(g *network.Graph, mean, logE, priorMean,
	logS *G.Node) *G.Node {
	ratio := G.Must(G.Exp(G.Must(G.Sub(logE, logS))))
	diff := G.Must(G.Sub(priorMean, mean))
	mahalanobis := G.Must(G.HadamardDiv(G.Must(G.Square(diff)),
		G.Must(G.Exp(logS))))

	// Σ (logS - logE - 1 + E/S + (priorMean - mean)²/S)
	sum := G.Must(G.Sub(G.Must(G.Sub(logS, logE)), G.NewConstant(1.0)))
	sum = G.Must(G.Add(sum, G.Must(G.Add(ratio, mahalanobis))))
	return G.Must(G.HadamardProd(G.NewConstant(0.5), g.RowSum(sum)))
}

// klRows returns the per-belief KL terms of an encoder output, one
// B x 1 node per belief. Belief 0 is the prior. Each belief is
// penalised against a standard normal if toGaussPrior is set, and
// otherwise against the belief before it, with a standard normal before
// the prior. A nil node denotes a KL term that is masked out.
func klRows(g *network.Graph, means, logVars []*G.Node, toGaussPrior,
	learnPrior bool) []*G.Node {
	kls := make([]*G.Node, len(means))
	for e := range means {
		switch {
		case toGaussPrior:
			kls[e] = stdGaussianKLRows(g, means[e], logVars[e])
		case e == 0 && learnPrior:
			kls[e] = nil
		case e == 0:
			// The belief before the prior is a standard normal
			kls[e] = stdGaussianKLRows(g, means[e], logVars[e])
		default:
			kls[e] = gaussianKLRows(g, means[e], logVars[e], means[e-1],
				logVars[e-1])
		}
	}
	return kls
}
