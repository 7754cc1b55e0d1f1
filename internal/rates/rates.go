// Package rates implements evolution rate heterogeneity: it rewrites the
// edge lengths of a dated gene tree so they reflect substitution rates
// instead of pure elapsed time, modeling conservation versus divergence
// after duplication and transfer events, optionally composed with an
// autocorrelated rate process over the species tree.
package rates

import (
	"errors"
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/jsdoublel/sage/internal/phylo"
	"github.com/jsdoublel/sage/internal/sampling"
)

var (
	ErrBadWeights     = errors.New("mode weights must be non-negative with positive sum")
	ErrUnknownSpecies = errors.New("gene node mapped to unknown species")
)

// gene state during the traversal; never stored on the tree
type state int8

const (
	conserved state = iota
	divergent
)

// Options configures AssignRates. The zero value of RateIncrease means the
// default Gamma(0.5, 2.2) + 1 distribution; nil CSNWeights mean the uniform
// 1:1:1 choice between conservation, subfunctionalization and
// neofunctionalization at duplications, while supplied weights are validated
// as given.
type Options struct {
	BaseRate         float64            // scalar applied to every edge last
	AutocorrFactors  map[string]float64 // species-branch rate factors keyed by the lower endpoint's label
	AutocorrVariance float64            // used to generate factors when none are supplied
	RateIncrease     sampling.Distribution
	CSNWeights       *[3]float64
	InPlace          bool
	Rng              *rand.Rand
}

// DefaultRateIncrease is the rate increase distribution for divergent genes,
// a Gamma fitted to post-duplication yeast data, shifted so the factor is
// 1 + x.
func DefaultRateIncrease() sampling.Distribution {
	return sampling.Distribution{Name: "gamma", Params: []float64{0.5, 2.2}, Shift: 1.0}
}

// AssignRates rewrites the edge lengths of the gene tree according to the
// rate heterogeneity model. The gene tree must be dated (time stamps set)
// and reconciled with the species tree. If InPlace is false the input tree
// is left untouched and a modified copy is returned.
func AssignRates(gene, species *phylo.TreeData, opts Options) (*phylo.TreeData, error) {
	if !opts.InPlace {
		gene = gene.Clone()
	}
	if opts.RateIncrease.Name == "" {
		opts.RateIncrease = DefaultRateIncrease()
	}
	if opts.CSNWeights == nil {
		opts.CSNWeights = &[3]float64{1, 1, 1}
	}
	if opts.Rng == nil {
		opts.Rng = rand.New(rand.NewSource(rand.Uint64()))
	}
	sum := 0.0
	for _, w := range opts.CSNWeights {
		if w < 0 {
			return nil, ErrBadWeights
		}
		sum += w
	}
	if sum == 0 {
		return nil, ErrBadWeights
	}
	sampler, err := opts.RateIncrease.Sampler(opts.Rng)
	if err != nil {
		return nil, err
	}

	if err := divergentRates(gene, species, sampler, *opts.CSNWeights, opts.Rng); err != nil {
		return nil, err
	}

	factors := opts.AutocorrFactors
	if factors == nil && opts.AutocorrVariance > 0 {
		_, factors = AutocorrFactors(species, opts.AutocorrVariance, opts.Rng)
	}
	if factors != nil {
		if err := applyAutocorrelation(gene, factors); err != nil {
			return nil, err
		}
	}

	for id := range gene.IdToNodes {
		gene.SetDist(id, gene.Dist(id)*opts.BaseRate)
	}
	return gene, nil
}

// ratePoint records that the instantaneous rate on an edge changed to rate
// at time tstamp.
type ratePoint struct {
	tstamp float64
	rate   float64
}

// divergentRates runs the conserved/divergent state machine over the gene
// tree's nodes in time order (oldest first) and collapses the resulting
// per-edge rate histories into edge lengths.
func divergentRates(gene, species *phylo.TreeData, sampler sampling.Sampler, weights [3]float64, rng *rand.Rand) error {
	nodes := gene.SortedNodes()
	hist := make([][]ratePoint, len(gene.IdToNodes)) // keyed by the edge's child id
	marked := make([]state, len(gene.IdToNodes))     // all conserved initially

	speciesParents := species.SpeciesParents()
	counter := make(map[phylo.SpeciesBranch][]int) // live gene copies per species branch
	for branch := range species.SpeciesBranches() {
		counter[branch] = []int{}
	}

	draw := func(s state) float64 {
		if s == divergent {
			return sampler.Draw()
		}
		return 1.0
	}

	for _, u := range nodes {
		uid := u.Id()
		switch gene.Events[uid] {

		case phylo.NoEvent, phylo.Speciation:
			for _, v := range gene.Children[uid] {
				vid := v.Id()
				marked[vid] = marked[uid]
				branch := phylo.SpeciesBranch{Top: gene.Reconcs[uid].Bottom, Bottom: gene.Reconcs[vid].Bottom}
				counter[branch] = append(counter[branch], vid)
				hist[vid] = append(hist[vid], ratePoint{gene.Tstamps[uid], draw(marked[vid])})
			}

		case phylo.Duplication:
			if len(gene.Children[uid]) == 2 {
				s1, s2 := duplicationType(marked[uid], weights, rng)
				marked[gene.Children[uid][0].Id()] = s1
				marked[gene.Children[uid][1].Id()] = s2
			}
			branch, err := branchOf(gene.Reconcs[uid], speciesParents)
			if err != nil {
				return err
			}
			counter[branch] = remove(counter[branch], uid)
			for _, v := range gene.Children[uid] {
				vid := v.Id()
				counter[branch] = append(counter[branch], vid)
				hist[vid] = append(hist[vid], ratePoint{gene.Tstamps[uid], draw(marked[vid])})
			}

		case phylo.Loss:
			branch, err := branchOf(gene.Reconcs[uid], speciesParents)
			if err != nil {
				return err
			}
			counter[branch] = remove(counter[branch], uid)
			if len(counter[branch]) == 1 {
				vid := counter[branch][0]
				if marked[vid] == divergent {
					marked[vid] = conserved
					hist[vid] = append(hist[vid], ratePoint{gene.Tstamps[uid], 1.0})
				}
			}

		case phylo.Transfer:
			if err := transferRates(gene, speciesParents, counter, marked, hist, uid, sampler, rng); err != nil {
				return err
			}
		}
	}

	adjustDistances(gene, hist)
	return nil
}

// transferRates handles an HGT node: the untransferred copy continues the
// parent's rate segment unchanged, while the transferred copy is forced to
// divergent and starts a fresh segment in the recipient species branch.
func transferRates(gene *phylo.TreeData, speciesParents map[string]string, counter map[phylo.SpeciesBranch][]int, marked []state, hist [][]ratePoint, uid int, sampler sampling.Sampler, rng *rand.Rand) error {
	children := gene.Children[uid]
	if len(children) != 2 {
		return nil
	}
	v1, v2 := children[0].Id(), children[1].Id()
	if gene.Transferred[v1] {
		v1, v2 = v2, v1 // v2 is the transferred copy
	}

	marked[v1] = marked[uid]
	branch, err := branchOf(gene.Reconcs[uid], speciesParents)
	if err != nil {
		return err
	}
	counter[branch] = remove(counter[branch], uid)
	counter[branch] = append(counter[branch], v1)
	if len(hist[uid]) > 0 {
		hist[v1] = append(hist[v1], ratePoint{gene.Tstamps[uid], hist[uid][len(hist[uid])-1].rate})
	} else {
		rate := 1.0
		if marked[v1] == divergent {
			rate = sampler.Draw()
		}
		hist[v1] = append(hist[v1], ratePoint{gene.Tstamps[uid], rate})
	}

	marked[v2] = divergent
	recipient, err := branchOf(gene.Reconcs[v2], speciesParents)
	if err != nil {
		return err
	}
	counter[recipient] = append(counter[recipient], v2)
	hist[v2] = append(hist[v2], ratePoint{gene.Tstamps[uid], sampler.Draw()})
	return nil
}

// duplicationType draws the post-duplication fates of the two copies. A
// divergent parent stays divergent on both sides; otherwise the mode is
// conservation, subfunctionalization or neofunctionalization with the given
// weights.
func duplicationType(parent state, weights [3]float64, rng *rand.Rand) (state, state) {
	if parent == divergent {
		return divergent, divergent
	}
	sum := weights[0] + weights[1] + weights[2]
	r := rng.Float64() * sum
	switch {
	case r < weights[0]: // conservation
		return conserved, conserved
	case r < weights[0]+weights[1]: // subfunctionalization
		return divergent, divergent
	default: // neofunctionalization
		if rng.Float64() < 0.5 {
			return divergent, conserved
		}
		return conserved, divergent
	}
}

// branchOf resolves a gene node's reconciliation to the species branch it
// occupies. A node mapped exactly onto a species node resolves to the branch
// above that node.
func branchOf(rec phylo.Reconc, speciesParents map[string]string) (phylo.SpeciesBranch, error) {
	if rec.OnBranch() {
		return phylo.SpeciesBranch{Top: rec.Top, Bottom: rec.Bottom}, nil
	}
	top, ok := speciesParents[rec.Bottom]
	if !ok {
		return phylo.SpeciesBranch{}, fmt.Errorf("%w: %q has no parent branch", ErrUnknownSpecies, rec.Bottom)
	}
	return phylo.SpeciesBranch{Top: top, Bottom: rec.Bottom}, nil
}

// adjustDistances collapses each edge's rate history into a single length:
// the sum over segments of duration times rate, the last segment ending at
// the child's time stamp. Edges with no history keep length zero.
func adjustDistances(gene *phylo.TreeData, hist [][]ratePoint) {
	for vid := range gene.IdToNodes {
		if gene.Parents[vid] == nil {
			continue
		}
		points := hist[vid]
		dist := 0.0
		for i, p := range points {
			end := gene.Tstamps[vid]
			if i+1 < len(points) {
				end = points[i+1].tstamp
			}
			dist += (p.tstamp - end) * p.rate
		}
		gene.SetDist(vid, dist)
	}
}

func remove(s []int, v int) []int {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
