// Package lca implements a constant-time lowest common ancestor oracle over
// a fixed tree, backed by an Euler tour with sparse-table range-minimum
// queries. Preprocessing is O(n log n); queries are O(1).
package lca

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/evolbioinfo/gotree/tree"

	"github.com/jsdoublel/sage/internal/phylo"
)

var ErrUnknownLabel = errors.New("label not in tree")

// Oracle answers ancestor queries against the tree it was built from. The
// tree topology must not change while the oracle is in use; as a guard,
// every query panics if the tree's node count has changed since New.
type Oracle struct {
	td    *phylo.TreeData
	tour  []int   // euler tour of node ids
	depth []int   // depth of tour[i]
	pos   []int   // first tour index for each node id
	table [][]int // table[k][i] = index of min depth in tour[i : i+2^k]
	byLab map[string]int
}

// New preprocesses the tree for constant-time LCA queries.
func New(td *phylo.TreeData) *Oracle {
	n := len(td.IdToNodes)
	o := &Oracle{
		td:    td,
		tour:  make([]int, 0, 2*n),
		depth: make([]int, 0, 2*n),
		pos:   make([]int, n),
		byLab: make(map[string]int, n),
	}
	for i := range o.pos {
		o.pos[i] = -1
	}
	o.eulerTour(td.Root())
	for id, node := range td.IdToNodes {
		if node.Name() != "" {
			o.byLab[node.Name()] = id
		}
	}
	o.buildTable()
	return o
}

func (o *Oracle) eulerTour(cur *tree.Node) {
	id := cur.Id()
	o.visit(id)
	for _, child := range o.td.Children[id] {
		o.eulerTour(child)
		o.visit(id)
	}
}

func (o *Oracle) visit(id int) {
	if o.pos[id] == -1 {
		o.pos[id] = len(o.tour)
	}
	o.tour = append(o.tour, id)
	o.depth = append(o.depth, o.td.Depths[id])
}

func (o *Oracle) buildTable() {
	m := len(o.tour)
	levels := bits.Len(uint(m))
	o.table = make([][]int, levels)
	o.table[0] = make([]int, m)
	for i := 0; i < m; i++ {
		o.table[0][i] = i
	}
	for k := 1; k < levels; k++ {
		width := 1 << k
		o.table[k] = make([]int, m-width+1)
		for i := 0; i < len(o.table[k]); i++ {
			left := o.table[k-1][i]
			right := o.table[k-1][i+width/2]
			if o.depth[left] <= o.depth[right] {
				o.table[k][i] = left
			} else {
				o.table[k][i] = right
			}
		}
	}
}

// rangeMin returns the tour index of the minimum depth in tour[i..j]
// (inclusive, i <= j).
func (o *Oracle) rangeMin(i, j int) int {
	k := bits.Len(uint(j-i+1)) - 1
	left := o.table[k][i]
	right := o.table[k][j-(1<<k)+1]
	if o.depth[left] <= o.depth[right] {
		return left
	}
	return right
}

func (o *Oracle) verify() {
	if len(o.pos) != len(o.td.Nodes()) {
		panic("lca oracle is stale: tree changed after preprocessing")
	}
}

// LCA returns the lowest common ancestor of the nodes with ids a and b.
func (o *Oracle) LCA(a, b int) *tree.Node {
	o.verify()
	i, j := o.pos[a], o.pos[b]
	if i > j {
		i, j = j, i
	}
	return o.td.IdToNodes[o.tour[o.rangeMin(i, j)]]
}

// NodeID resolves a node label to its id.
func (o *Oracle) NodeID(label string) (int, error) {
	id, ok := o.byLab[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return id, nil
}

// Ancestor reports whether a is an ancestor of b (including a == b).
func (o *Oracle) Ancestor(a, b int) bool {
	return o.LCA(a, b).Id() == a
}

// StrictAncestor reports whether a is a proper ancestor of b.
func (o *Oracle) StrictAncestor(a, b int) bool {
	return a != b && o.Ancestor(a, b)
}

// Comparable reports whether one of the two nodes is an ancestor of the
// other.
func (o *Oracle) Comparable(a, b int) bool {
	l := o.LCA(a, b).Id()
	return l == a || l == b
}
