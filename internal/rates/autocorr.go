package rates

import (
	"errors"
	"fmt"
	"math"

	"github.com/evolbioinfo/gotree/tree"
	"golang.org/x/exp/rand"

	"github.com/jsdoublel/sage/internal/phylo"
)

var ErrMissingFactor = errors.New("no autocorrelation factor for species branch")

// AutocorrFactors runs a geometric Brownian motion over the species tree and
// returns rate factors for its nodes and edges, both keyed by node label
// (an edge by its lower endpoint). The root gets factor 1.0, the expected
// value of the process everywhere. For every other node the step variance is
// the given variance scaled by the edge length, and the log-normal draw is
// mean-corrected so that the child's expected rate equals the parent's. The
// edge factor is the arithmetic mean of the endpoint factors.
//
// The walk is a single top-down pass; each node's rate depends on its
// parent's.
func AutocorrFactors(species *phylo.TreeData, variance float64, rng *rand.Rand) (nodeRates, edgeRates map[string]float64) {
	n := len(species.IdToNodes)
	nodeRates = make(map[string]float64, n)
	edgeRates = make(map[string]float64, n)
	byID := make([]float64, n)
	species.PreOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		id := cur.Id()
		if prev == nil {
			byID[id] = 1.0
			nodeRates[cur.Name()] = 1.0
			edgeRates[cur.Name()] = 1.0
			return true
		}
		stepVar := variance * species.Dist(id)
		rate := byID[prev.Id()]
		if stepVar > 0 {
			mu := math.Log(rate) - stepVar/2
			rate = math.Exp(mu + math.Sqrt(stepVar)*rng.NormFloat64())
		}
		byID[id] = rate
		nodeRates[cur.Name()] = rate
		edgeRates[cur.Name()] = (byID[prev.Id()] + rate) / 2
		return true
	})
	return nodeRates, edgeRates
}

// applyAutocorrelation multiplies every gene-tree edge length by the factor
// of the species branch its lower endpoint occupies.
func applyAutocorrelation(gene *phylo.TreeData, edgeRates map[string]float64) error {
	for id, node := range gene.IdToNodes {
		if gene.Parents[id] == nil {
			continue
		}
		key := gene.Reconcs[id].Bottom
		factor, ok := edgeRates[key]
		if !ok {
			return fmt.Errorf("%w: gene node %q maps to %q", ErrMissingFactor, node.Name(), key)
		}
		gene.SetDist(id, gene.Dist(id)*factor)
	}
	return nil
}
