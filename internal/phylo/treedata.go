package phylo

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/evolbioinfo/gotree/tree"
)

var (
	ErrMalformedTiming = errors.New("malformed timing")
	ErrNoSuchNode      = errors.New("no node with given label")
)

// Expanded tree struct containing the tree topology side-cars (children,
// parents, depths) plus the SAGE node attributes, all indexed by node id.
// The struct must be rebuilt whenever the underlying tree topology changes.
type TreeData struct {
	tree.Tree
	Children    [][]*tree.Node // children for each node
	Parents     []*tree.Node   // parent for each node (nil at the root)
	ParentEdges []*tree.Edge   // edge from parent for each node (nil at the root)
	Depths      []int          // distance from each node to the root
	IdToNodes   []*tree.Node   // mapping between id and node pointer
	Tstamps     []float64      // node times; the root carries the largest value
	Events      []Event        // event tag for each node
	Reconcs     []Reconc       // reconciliation (species placement) for each node
	Transferred []bool         // true iff the edge from the parent is a transfer edge
}

// Preprocess topology data and make a TreeData struct. Node ids are expected
// to lie in [0, #nodes); trees built outside the newick parser should be
// assembled with Assemble, which renumbers ids first.
func MakeTreeData(tre *tree.Tree) *TreeData {
	n := len(tre.Nodes())
	td := &TreeData{
		Tree:        *tre,
		Children:    make([][]*tree.Node, n),
		Parents:     make([]*tree.Node, n),
		ParentEdges: make([]*tree.Edge, n),
		Depths:      make([]int, n),
		IdToNodes:   make([]*tree.Node, n),
		Tstamps:     make([]float64, n),
		Events:      make([]Event, n),
		Reconcs:     make([]Reconc, n),
		Transferred: make([]bool, n),
	}
	td.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		id := cur.Id()
		if id < 0 || id >= n {
			panic(fmt.Sprintf("node id %d out of range [0, %d)", id, n))
		}
		td.IdToNodes[id] = cur
		if prev != nil {
			td.Parents[id] = prev
			td.ParentEdges[id] = e
		}
		return true
	})
	td.PreOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if prev != nil {
			td.Depths[cur.Id()] = td.Depths[prev.Id()] + 1
			td.Children[prev.Id()] = append(td.Children[prev.Id()], cur)
		}
		return true
	})
	return td
}

// Renumber node ids in postorder and build a TreeData from a tree constructed
// outside the newick parser, filling in the attributes recorded per node.
func Assemble(tre *tree.Tree, attrs map[*tree.Node]NodeAttrs) *TreeData {
	id := 0
	tre.PostOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		cur.SetId(id)
		id++
		return true
	})
	td := MakeTreeData(tre)
	for node, a := range attrs {
		td.SetAttrs(node.Id(), a)
	}
	return td
}

// Verify that the side-car data still covers the tree, and thus is still
// applicable. Catches topology edits made after construction.
func (td *TreeData) Verify() {
	if len(td.IdToNodes) != len(td.Nodes()) {
		panic("TreeData is stale: tree topology changed after construction")
	}
}

func (td *TreeData) Attrs(id int) NodeAttrs {
	return NodeAttrs{
		Tstamp:      td.Tstamps[id],
		Event:       td.Events[id],
		Reconc:      td.Reconcs[id],
		Transferred: td.Transferred[id],
	}
}

func (td *TreeData) SetAttrs(id int, a NodeAttrs) {
	td.Tstamps[id] = a.Tstamp
	td.Events[id] = a.Event
	td.Reconcs[id] = a.Reconc
	td.Transferred[id] = a.Transferred
}

// AttrMap snapshots all node attributes keyed by node pointer, for tree
// builders that are about to invalidate the node ids.
func (td *TreeData) AttrMap() map[*tree.Node]NodeAttrs {
	attrs := make(map[*tree.Node]NodeAttrs, len(td.IdToNodes))
	for id, node := range td.IdToNodes {
		attrs[node] = td.Attrs(id)
	}
	return attrs
}

// SetAttrMap writes back a snapshot taken with AttrMap. Nodes missing from
// the map keep zero attributes.
func (td *TreeData) SetAttrMap(attrs map[*tree.Node]NodeAttrs) {
	for id, node := range td.IdToNodes {
		td.SetAttrs(id, attrs[node])
	}
}

func (td *TreeData) IsLeaf(id int) bool {
	return len(td.Children[id]) == 0
}

// Planted reports whether the root has exactly one child (the ancestral stem
// edge convention).
func (td *TreeData) Planted() bool {
	return len(td.Children[td.Root().Id()]) == 1
}

// Leaves returns the leaf nodes in deterministic preorder.
func (td *TreeData) Leaves() []*tree.Node {
	leaves := make([]*tree.Node, 0)
	td.PreOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if td.IsLeaf(cur.Id()) {
			leaves = append(leaves, cur)
		}
		return true
	})
	return leaves
}

// SortedNodes returns all nodes sorted by time stamp beginning with the
// oldest (highest time stamp). The sort is stable over a preorder walk, so
// on ties (zero-duration edges) a parent still precedes its descendants and
// the order is deterministic.
func (td *TreeData) SortedNodes() []*tree.Node {
	nodes := make([]*tree.Node, 0, len(td.IdToNodes))
	td.PreOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		nodes = append(nodes, cur)
		return true
	})
	slices.SortStableFunc(nodes, func(a, b *tree.Node) int {
		switch {
		case td.Tstamps[a.Id()] > td.Tstamps[b.Id()]:
			return -1
		case td.Tstamps[a.Id()] < td.Tstamps[b.Id()]:
			return 1
		default:
			return 0
		}
	})
	return nodes
}

// Edges returns all (parent, child) pairs in preorder.
func (td *TreeData) Edges() [][2]*tree.Node {
	edges := make([][2]*tree.Node, 0, len(td.IdToNodes))
	td.PreOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if prev != nil {
			edges = append(edges, [2]*tree.Node{prev, cur})
		}
		return true
	})
	return edges
}

// SortedEdges returns all (parent, child) pairs sorted by the parent's time
// stamp beginning with the oldest, ties resolved like SortedNodes: the
// stable sort over the preorder edge list keeps an edge before the edges
// below it.
func (td *TreeData) SortedEdges() [][2]*tree.Node {
	edges := td.Edges()
	slices.SortStableFunc(edges, func(a, b [2]*tree.Node) int {
		switch {
		case td.Tstamps[a[0].Id()] > td.Tstamps[b[0].Id()]:
			return -1
		case td.Tstamps[a[0].Id()] < td.Tstamps[b[0].Id()]:
			return 1
		default:
			return 0
		}
	})
	return edges
}

// Dist returns the length of the edge from the parent, or 0 at the root and
// for edges with no length set.
func (td *TreeData) Dist(id int) float64 {
	e := td.ParentEdges[id]
	if e == nil || e.Length() == tree.NIL_LENGTH {
		return 0
	}
	return e.Length()
}

// TotalLength is the sum of all edge lengths.
func (td *TreeData) TotalLength() float64 {
	total := 0.0
	for id := range td.IdToNodes {
		total += td.Dist(id)
	}
	return total
}

func (td *TreeData) SetDist(id int, dist float64) {
	if e := td.ParentEdges[id]; e != nil {
		e.SetLength(dist)
	}
}

// Clone deep-copies the tree and all side-car data. Gotree preserves node ids
// on Clone, so attributes transfer index-for-index.
func (td *TreeData) Clone() *TreeData {
	c := MakeTreeData(td.Tree.Clone())
	copy(c.Tstamps, td.Tstamps)
	copy(c.Events, td.Events)
	copy(c.Reconcs, td.Reconcs)
	copy(c.Transferred, td.Transferred)
	return c
}

// NodeWithName finds the unique node carrying the given label.
func (td *TreeData) NodeWithName(name string) (*tree.Node, error) {
	var found *tree.Node
	for _, node := range td.IdToNodes {
		if node.Name() == name {
			if found != nil {
				return nil, fmt.Errorf("%w: label %q is not unique", ErrNoSuchNode, name)
			}
			found = node
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w %q", ErrNoSuchNode, name)
	}
	return found, nil
}

// DistanceFromTiming adjusts all edge lengths according to the time stamp
// difference of their endpoints.
func (td *TreeData) DistanceFromTiming() {
	for id, e := range td.ParentEdges {
		if e == nil {
			continue
		}
		diff := td.Tstamps[td.Parents[id].Id()] - td.Tstamps[id]
		if diff < 0 {
			diff = -diff
		}
		e.SetLength(diff)
	}
}

// ReconstructTimestamps makes the time stamps match the edge lengths. The
// root obtains time stamp 1.0 and every other node a smaller stamp such that
// the difference to the parent is exactly the edge length.
func (td *TreeData) ReconstructTimestamps() error {
	td.Tstamps[td.Root().Id()] = 1.0
	var badEdge *tree.Node
	td.PreOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if prev == nil {
			return true
		}
		if e.Length() == tree.NIL_LENGTH || e.Length() < 0 {
			badEdge = cur
			return false
		}
		td.Tstamps[cur.Id()] = td.Tstamps[prev.Id()] - e.Length()
		return true
	})
	if badEdge != nil {
		return fmt.Errorf("%w: edge above %q has no usable length", ErrMalformedTiming, badEdge.Name())
	}
	return nil
}

// AssignMissingLabels assigns the smallest unused non-negative integer label
// to every unnamed node.
func (td *TreeData) AssignMissingLabels() {
	used := make(map[string]bool)
	for _, node := range td.IdToNodes {
		if node.Name() != "" {
			used[node.Name()] = true
		}
	}
	next := 0
	td.PreOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if cur.Name() == "" {
			for used[strconv.Itoa(next)] {
				next++
			}
			cur.SetName(strconv.Itoa(next))
			used[strconv.Itoa(next)] = true
		}
		return true
	})
}

// SpeciesParents maps each node label to its parent's label; used to resolve
// reconciliations placed at species nodes onto species branches.
func (td *TreeData) SpeciesParents() map[string]string {
	parents := make(map[string]string, len(td.IdToNodes))
	for id, p := range td.Parents {
		if p != nil {
			parents[td.IdToNodes[id].Name()] = p.Name()
		}
	}
	return parents
}

// SpeciesBranches returns the set of species branches (edges keyed by the
// labels of their endpoints).
func (td *TreeData) SpeciesBranches() map[SpeciesBranch]bool {
	branches := make(map[SpeciesBranch]bool)
	for _, e := range td.Edges() {
		branches[SpeciesBranch{Top: e[0].Name(), Bottom: e[1].Name()}] = true
	}
	return branches
}
