package phylo

import (
	"errors"
	"fmt"

	"github.com/evolbioinfo/gotree/tree"
	"gonum.org/v1/gonum/mat"
)

var ErrLeafOrderMismatch = errors.New("leaf order does not match the tree")

// DistancesFromRoot returns, per node id, the sum of edge lengths on the path
// from the root.
func (td *TreeData) DistancesFromRoot() []float64 {
	dist := make([]float64, len(td.IdToNodes))
	td.PreOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		if prev != nil {
			dist[cur.Id()] = dist[prev.Id()] + td.Dist(cur.Id())
		}
		return true
	})
	return dist
}

// DistanceMatrix computes the pairwise path-length distances between the
// given leaves, in the given order. If leafOrder is nil the tree's preorder
// leaves are used. A label that is not a leaf of the tree is an error, raised
// before any distance is computed.
func (td *TreeData) DistanceMatrix(leafOrder []string) (*mat.SymDense, []string, error) {
	leaves := td.Leaves()
	byName := make(map[string]*tree.Node, len(leaves))
	for _, leaf := range leaves {
		byName[leaf.Name()] = leaf
	}
	if leafOrder == nil {
		leafOrder = make([]string, len(leaves))
		for i, leaf := range leaves {
			leafOrder[i] = leaf.Name()
		}
	} else {
		if len(leafOrder) != len(leaves) {
			return nil, nil, fmt.Errorf("%w: %d labels for %d leaves", ErrLeafOrderMismatch, len(leafOrder), len(leaves))
		}
		seen := make(map[string]bool, len(leafOrder))
		for _, name := range leafOrder {
			if byName[name] == nil {
				return nil, nil, fmt.Errorf("%w: %q is not a leaf", ErrLeafOrderMismatch, name)
			}
			if seen[name] {
				return nil, nil, fmt.Errorf("%w: %q appears twice", ErrLeafOrderMismatch, name)
			}
			seen[name] = true
		}
	}
	rootDist := td.DistancesFromRoot()
	n := len(leafOrder)
	dm := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			u, v := byName[leafOrder[i]], byName[leafOrder[j]]
			anc := td.pathLCA(u, v)
			d := rootDist[u.Id()] + rootDist[v.Id()] - 2*rootDist[anc.Id()]
			dm.SetSym(i, j, d)
		}
	}
	return dm, leafOrder, nil
}

// pathLCA walks the two nodes up to equal depth and then in lockstep until
// they meet.
func (td *TreeData) pathLCA(u, v *tree.Node) *tree.Node {
	for td.Depths[u.Id()] > td.Depths[v.Id()] {
		u = td.Parents[u.Id()]
	}
	for td.Depths[v.Id()] > td.Depths[u.Id()] {
		v = td.Parents[v.Id()]
	}
	for u != v {
		u = td.Parents[u.Id()]
		v = td.Parents[v.Id()]
	}
	return u
}
