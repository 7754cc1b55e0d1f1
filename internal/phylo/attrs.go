// Package containing the shared attribute model for dated, event-labeled
// phylogenetic trees used in SAGE. Trees are gotree trees wrapped in a
// side-car struct (TreeData) that stores per-node timestamps, event tags,
// reconciliations, and transfer flags indexed by node id.
package phylo

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidEvent = errors.New("invalid event tag")

// Evolutionary event associated with a tree node
type Event int8

const (
	NoEvent Event = iota
	Speciation
	Duplication
	Loss
	Transfer
)

var eventNames = [...]string{
	NoEvent:     "",
	Speciation:  "S",
	Duplication: "D",
	Loss:        "L",
	Transfer:    "H",
}

func (ev Event) String() string {
	if ev < 0 || int(ev) >= len(eventNames) {
		panic(fmt.Sprintf("event (%d) does not exist", ev))
	}
	return eventNames[ev]
}

func ParseEvent(s string) (Event, error) {
	for ev, name := range eventNames {
		if s == name {
			return Event(ev), nil
		}
	}
	return NoEvent, fmt.Errorf("%w %q", ErrInvalidEvent, s)
}

// SpeciesBranch identifies an edge of the species tree by the labels of its
// two endpoints. It is the key type for all per-branch bookkeeping (live gene
// counts, autocorrelation factors).
type SpeciesBranch struct {
	Top    string // parent end
	Bottom string // child end
}

func (br SpeciesBranch) String() string {
	return br.Top + "-" + br.Bottom
}

// Reconc places a gene tree node on the species tree. A node sits either at
// the species node labeled Bottom (speciation events and extant leaves;
// Top is empty), or along the species branch Top -> Bottom (duplications,
// losses, and the instant after a transfer, where Top -> Bottom is the
// recipient branch).
type Reconc struct {
	Top    string
	Bottom string
}

func NodeReconc(label string) Reconc {
	return Reconc{Bottom: label}
}

func BranchReconc(br SpeciesBranch) Reconc {
	return Reconc{Top: br.Top, Bottom: br.Bottom}
}

func (r Reconc) IsZero() bool {
	return r.Top == "" && r.Bottom == ""
}

func (r Reconc) OnBranch() bool {
	return r.Top != ""
}

// Resolves the species branch a node occupies. Nodes placed at a species node
// resolve to the branch above it, looked up in the parent map.
func (r Reconc) Branch(speciesParents map[string]string) SpeciesBranch {
	if r.OnBranch() {
		return SpeciesBranch{Top: r.Top, Bottom: r.Bottom}
	}
	return SpeciesBranch{Top: speciesParents[r.Bottom], Bottom: r.Bottom}
}

// String renders the reconciliation in the <top-bottom> / <bottom> notation
// used in annotated newick output.
func (r Reconc) String() string {
	switch {
	case r.IsZero():
		return ""
	case r.OnBranch():
		return "<" + r.Top + "-" + r.Bottom + ">"
	default:
		return "<" + r.Bottom + ">"
	}
}

func parseReconc(s string) Reconc {
	if i := strings.IndexByte(s, '-'); i >= 0 {
		return Reconc{Top: s[:i], Bottom: s[i+1:]}
	}
	return Reconc{Bottom: s}
}

// Full set of SAGE attributes for a single node; used by tree builders before
// the node ids are fixed and the side-car slices can be filled.
type NodeAttrs struct {
	Tstamp      float64
	Event       Event
	Reconc      Reconc
	Transferred bool // incoming edge is a horizontal-transfer edge
}
