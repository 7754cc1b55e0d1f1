package sim

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/evolbioinfo/gotree/tree"
	"golang.org/x/exp/rand"

	"github.com/jsdoublel/sage/internal/phylo"
)

var (
	ErrNotPlanted = errors.New("species tree must be planted")
	ErrBadRates   = errors.New("event rates must be non-negative")
)

// EventRates are the per-lineage rates of the three gene-level event types.
type EventRates struct {
	Dupl, Loss, HGT float64
}

func (r EventRates) total() float64 { return r.Dupl + r.Loss + r.HGT }

// GeneTreeSimulator simulates true gene trees along a fixed dated species
// tree. The species tree must be planted and its time stamps must strictly
// decrease from parent to child except on zero-length edges.
type GeneTreeSimulator struct {
	species *phylo.TreeData
	events  []*tree.Node                     // species nodes below the planted root, oldest first
	spans   map[phylo.SpeciesBranch][2]float64 // branch -> (top tstamp, bottom tstamp)
}

func NewGeneTreeSimulator(species *phylo.TreeData) (*GeneTreeSimulator, error) {
	if !species.Planted() {
		return nil, ErrNotPlanted
	}
	spans := make(map[phylo.SpeciesBranch][2]float64)
	for id, p := range species.Parents {
		if p == nil {
			continue
		}
		top, bottom := species.Tstamps[p.Id()], species.Tstamps[id]
		if bottom > top {
			return nil, fmt.Errorf("%w: node %q is older than its parent", phylo.ErrMalformedTiming, species.IdToNodes[id].Name())
		}
		branch := phylo.SpeciesBranch{Top: p.Name(), Bottom: species.IdToNodes[id].Name()}
		spans[branch] = [2]float64{top, bottom}
	}
	events := species.SortedNodes()[1:] // drop the planted root
	return &GeneTreeSimulator{species: species, events: events, spans: spans}, nil
}

// lineage is a live gene copy evolving along a species branch. parent is the
// gene node the next event's node will attach to; transferred marks the copy
// as freshly transferred until its next node is created.
type lineage struct {
	parent      *tree.Node
	branch      phylo.SpeciesBranch
	transferred bool
}

// run carries the mutable state of one simulation.
type run struct {
	sim    *GeneTreeSimulator
	tre    *tree.Tree
	attrs  map[*tree.Node]phylo.NodeAttrs
	active []lineage
	rates  EventRates
	rng    *rand.Rand
}

// Simulate produces one true gene tree, losses included, with events,
// reconciliations, time stamps and transfer flags set, a planted root, and
// edge lengths matching the timing.
func (s *GeneTreeSimulator) Simulate(rates EventRates, rng *rand.Rand) (*phylo.TreeData, error) {
	if rates.Dupl < 0 || rates.Loss < 0 || rates.HGT < 0 {
		return nil, ErrBadRates
	}
	root := s.species.Root()
	stem := s.species.Children[root.Id()][0]

	r := &run{sim: s, tre: tree.NewTree(), attrs: make(map[*tree.Node]phylo.NodeAttrs), rates: rates, rng: rng}
	geneRoot := r.tre.NewNode()
	r.tre.SetRoot(geneRoot)
	r.attrs[geneRoot] = phylo.NodeAttrs{
		Tstamp: s.species.Tstamps[root.Id()],
		Reconc: phylo.NodeReconc(root.Name()),
	}
	r.active = []lineage{{parent: geneRoot, branch: phylo.SpeciesBranch{Top: root.Name(), Bottom: stem.Name()}}}

	t := s.species.Tstamps[root.Id()]
	for _, ev := range s.events {
		tNext := s.species.Tstamps[ev.Id()]
		for {
			total := rates.total() * float64(len(r.active))
			if total <= 0 {
				break
			}
			step := rng.ExpFloat64() / total
			if t-step <= tNext {
				break
			}
			t -= step
			r.geneEvent(t)
		}
		t = tNext
		r.speciesEvent(ev, t)
	}

	td := phylo.Assemble(r.tre, r.attrs)
	td.AssignMissingLabels()
	td.DistanceFromTiming()
	return td, nil
}

// newNode attaches a fresh gene node below the lineage's parent, consuming
// the lineage's transferred flag.
func (r *run) newNode(l lineage, tstamp float64, event phylo.Event, rec phylo.Reconc) *tree.Node {
	node := r.tre.NewNode()
	r.tre.ConnectNodes(l.parent, node)
	r.attrs[node] = phylo.NodeAttrs{
		Tstamp:      tstamp,
		Event:       event,
		Reconc:      rec,
		Transferred: l.transferred,
	}
	return node
}

// speciesEvent ends every lineage on the branch terminating at the species
// node ev: extant leaves at species leaves, one copy per child branch at
// speciations.
func (r *run) speciesEvent(ev *tree.Node, t float64) {
	s := r.sim.species
	branch := phylo.SpeciesBranch{Top: s.Parents[ev.Id()].Name(), Bottom: ev.Name()}
	kept := r.active[:0]
	var ended []lineage
	for _, l := range r.active {
		if l.branch == branch {
			ended = append(ended, l)
		} else {
			kept = append(kept, l)
		}
	}
	r.active = kept
	for _, l := range ended {
		if s.IsLeaf(ev.Id()) {
			r.newNode(l, t, phylo.NoEvent, phylo.NodeReconc(ev.Name()))
			continue
		}
		node := r.newNode(l, t, phylo.Speciation, phylo.NodeReconc(ev.Name()))
		for _, child := range s.Children[ev.Id()] {
			r.active = append(r.active, lineage{
				parent: node,
				branch: phylo.SpeciesBranch{Top: ev.Name(), Bottom: child.Name()},
			})
		}
	}
}

// geneEvent applies one duplication, loss or transfer at time t to a
// uniformly chosen live lineage.
func (r *run) geneEvent(t float64) {
	i := r.rng.Intn(len(r.active))
	l := r.active[i]
	rec := phylo.BranchReconc(phylo.SpeciesBranch{Top: l.branch.Top, Bottom: l.branch.Bottom})
	draw := r.rng.Float64() * r.rates.total()
	switch {
	case draw < r.rates.Dupl:
		node := r.newNode(l, t, phylo.Duplication, rec)
		r.active[i] = lineage{parent: node, branch: l.branch}
		r.active = append(r.active, lineage{parent: node, branch: l.branch})
	case draw < r.rates.Dupl+r.rates.Loss:
		r.newNode(l, t, phylo.Loss, rec)
		r.active = append(r.active[:i], r.active[i+1:]...)
	default:
		recipient, ok := r.pickRecipient(l.branch, t)
		if !ok {
			return // no contemporaneous branch to transfer into
		}
		node := r.newNode(l, t, phylo.Transfer, rec)
		r.active[i] = lineage{parent: node, branch: l.branch}
		r.active = append(r.active, lineage{parent: node, branch: recipient, transferred: true})
	}
}

// pickRecipient draws a species branch alive at time t, other than from,
// uniformly at random.
func (r *run) pickRecipient(from phylo.SpeciesBranch, t float64) (phylo.SpeciesBranch, bool) {
	candidates := make([]phylo.SpeciesBranch, 0)
	for branch, span := range r.sim.spans {
		if branch != from && span[0] > t && t > span[1] {
			candidates = append(candidates, branch)
		}
	}
	if len(candidates) == 0 {
		return phylo.SpeciesBranch{}, false
	}
	// map iteration order is random; sort for a reproducible draw
	slices.SortFunc(candidates, func(a, b phylo.SpeciesBranch) int {
		if a.Top != b.Top {
			return strings.Compare(a.Top, b.Top)
		}
		return strings.Compare(a.Bottom, b.Bottom)
	})
	return candidates[r.rng.Intn(len(candidates))], true
}
