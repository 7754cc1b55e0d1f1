package fitch

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/jsdoublel/sage/internal/phylo"
)

// Leaf is a gene-tree leaf carried into the Fitch graph with the data
// downstream consumers need.
type Leaf struct {
	ID     int // node id in the gene tree the graph was built from
	Label  string
	Reconc phylo.Reconc
}

// Graph is a directed graph over gene-tree leaves. It is never mutated after
// construction by the builders in this package. Leaf indices refer to
// positions in Leaves.
type Graph struct {
	Leaves []Leaf
	rows   []bitset.BitSet
}

func NewGraph(leaves []Leaf) *Graph {
	return &Graph{
		Leaves: leaves,
		rows:   make([]bitset.BitSet, len(leaves)),
	}
}

func (g *Graph) AddEdge(i, j int) {
	g.rows[i].Set(uint(j))
}

func (g *Graph) HasEdge(i, j int) bool {
	return g.rows[i].Test(uint(j))
}

// Edges lists all (i, j) pairs with an edge, ordered by source then target.
func (g *Graph) Edges() [][2]int {
	edges := make([][2]int, 0)
	for i := range g.rows {
		for j, ok := g.rows[i].NextSet(0); ok; j, ok = g.rows[i].NextSet(j + 1) {
			edges = append(edges, [2]int{i, int(j)})
		}
	}
	return edges
}

func (g *Graph) NumEdges() int {
	n := 0
	for i := range g.rows {
		n += int(g.rows[i].Count())
	}
	return n
}

// Symmetric returns the symmetric closure: an undirected graph with an edge
// wherever at least one direction is present.
func (g *Graph) Symmetric() *Graph {
	s := NewGraph(g.Leaves)
	for i := range g.rows {
		s.rows[i].InPlaceUnion(&g.rows[i])
		for j, ok := g.rows[i].NextSet(0); ok; j, ok = g.rows[i].NextSet(j + 1) {
			s.rows[j].Set(uint(i))
		}
	}
	return s
}
