// Package fitch reconstructs Fitch graphs, encoding which pairs of gene-tree
// leaves are related through horizontal transfer, from transfer-edge
// annotations on a dated gene tree.
package fitch

import (
	"errors"
	"fmt"

	"github.com/jsdoublel/sage/internal/lca"
	"github.com/jsdoublel/sage/internal/phylo"
)

var ErrUnknownSpecies = errors.New("gene node mapped to unknown species")

// TrueTransferEdges returns the node ids whose incoming edge is flagged as a
// transfer edge in the simulated scenario.
func TrueTransferEdges(gene *phylo.TreeData) map[int]bool {
	transfer := make(map[int]bool)
	for id, t := range gene.Transferred {
		if t {
			transfer[id] = true
		}
	}
	return transfer
}

// RSTransferEdges returns the transfer edges under the relaxed scenario
// definition: an edge (u, v) is a transfer edge iff u and v are mapped to
// incomparable nodes or branches of the species tree. speciesLCA must be
// built over the species tree the gene tree is reconciled with.
func RSTransferEdges(gene *phylo.TreeData, speciesLCA *lca.Oracle) (map[int]bool, error) {
	transfer := make(map[int]bool)
	for _, e := range gene.Edges() {
		u, v := e[0].Id(), e[1].Id()
		comp, err := comparable(speciesLCA, gene.Reconcs[u], gene.Reconcs[v])
		if err != nil {
			return nil, err
		}
		if !comp {
			transfer[v] = true
		}
	}
	return transfer, nil
}

// Fitch builds the directed Fitch graph over the gene tree's leaves. An edge
// x -> y means y's lineage received a transfer after it diverged from x's.
// transfer holds the lower-endpoint node ids of the transfer edges (from
// TrueTransferEdges or RSTransferEdges); geneLCA must be built over gene and
// rebuilt if the tree changed since.
//
// For each leaf y the walk towards the root records the most recent transfer
// edge; x -> y holds iff that edge exists and lies strictly below lca(x, y),
// so that x's lineage did not pass through it.
func Fitch(gene *phylo.TreeData, transfer map[int]bool, geneLCA *lca.Oracle) *Graph {
	leaves := gene.Leaves()
	firstTransfer := make([]int, len(leaves)) // node id, -1 if none
	graphLeaves := make([]Leaf, len(leaves))
	for i, leaf := range leaves {
		graphLeaves[i] = Leaf{ID: leaf.Id(), Label: leaf.Name(), Reconc: gene.Reconcs[leaf.Id()]}
		firstTransfer[i] = -1
		for cur := leaf; cur != nil; cur = gene.Parents[cur.Id()] {
			if transfer[cur.Id()] {
				firstTransfer[i] = cur.Id()
				break
			}
		}
	}
	g := NewGraph(graphLeaves)
	for i, x := range leaves {
		for j, y := range leaves {
			if i == j || firstTransfer[j] == -1 {
				continue
			}
			if geneLCA.StrictAncestor(geneLCA.LCA(x.Id(), y.Id()).Id(), firstTransfer[j]) {
				g.AddEdge(i, j)
			}
		}
	}
	return g
}

// UndirectedFitch builds the undirected Fitch graph, keeping an edge if it is
// present in at least one direction.
func UndirectedFitch(gene *phylo.TreeData, transfer map[int]bool, geneLCA *lca.Oracle) *Graph {
	return Fitch(gene, transfer, geneLCA).Symmetric()
}

// comparable tests whether two reconciliations occupy comparable regions of
// the species tree. A reconciliation is treated as the interval of species
// nodes it covers: a single node, or the two endpoints of a branch. Two
// intervals are comparable iff one's lower endpoint is an ancestor of (or
// equal to) the other's upper endpoint, or they are identical.
func comparable(speciesLCA *lca.Oracle, a, b phylo.Reconc) (bool, error) {
	if a == b {
		return true, nil
	}
	aTop, aBot, err := intervalIDs(speciesLCA, a)
	if err != nil {
		return false, err
	}
	bTop, bBot, err := intervalIDs(speciesLCA, b)
	if err != nil {
		return false, err
	}
	return speciesLCA.Ancestor(aBot, bTop) || speciesLCA.Ancestor(bBot, aTop), nil
}

func intervalIDs(speciesLCA *lca.Oracle, rec phylo.Reconc) (top, bottom int, err error) {
	if rec.IsZero() {
		return 0, 0, fmt.Errorf("%w: empty reconciliation", ErrUnknownSpecies)
	}
	bottom, err = speciesLCA.NodeID(rec.Bottom)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownSpecies, err.Error())
	}
	top = bottom
	if rec.OnBranch() {
		top, err = speciesLCA.NodeID(rec.Top)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %s", ErrUnknownSpecies, err.Error())
		}
	}
	return top, bottom, nil
}

// LabelEdges renders the graph's edges as ordered label pairs, useful for
// reporting.
func LabelEdges(g *Graph) [][2]string {
	edges := g.Edges()
	out := make([][2]string, len(edges))
	for i, e := range edges {
		out[i] = [2]string{g.Leaves[e[0]].Label, g.Leaves[e[1]].Label}
	}
	return out
}
