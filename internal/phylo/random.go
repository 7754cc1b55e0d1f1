package phylo

import (
	"errors"
	"fmt"

	"github.com/evolbioinfo/gotree/tree"
	"golang.org/x/exp/rand"
)

var (
	ErrBadLeafCount  = errors.New("leaf count must be positive")
	ErrBadColorCount = errors.New("color list must be non-empty")
	ErrTooManyColors = errors.New("more colors than leaves")
)

// RandomColoredTree generates a random binary tree with numLeaves leaves by
// repeatedly splitting a uniformly chosen leaf, then labels the leaves with
// the given colors such that every color occurs at least once. Inner nodes
// are tagged as speciations and receive integer labels.
func RandomColoredTree(numLeaves int, colors []string, planted bool, rng *rand.Rand) (*TreeData, error) {
	switch {
	case numLeaves < 1:
		return nil, fmt.Errorf("%w: got %d", ErrBadLeafCount, numLeaves)
	case len(colors) < 1:
		return nil, ErrBadColorCount
	case len(colors) > numLeaves:
		return nil, fmt.Errorf("%w: %d colors, %d leaves", ErrTooManyColors, len(colors), numLeaves)
	}
	tre := tree.NewTree()
	root := tre.NewNode()
	tre.SetRoot(root)
	leaves := []*tree.Node{root}
	for len(leaves) < numLeaves {
		i := rng.Intn(len(leaves))
		split := leaves[i]
		left, right := tre.NewNode(), tre.NewNode()
		tre.ConnectNodes(split, left)
		tre.ConnectNodes(split, right)
		leaves[i] = left
		leaves = append(leaves, right)
	}
	// every color occurs; remaining leaves draw uniformly
	perm := rng.Perm(numLeaves)
	for i, j := range perm {
		if i < len(colors) {
			leaves[j].SetName(colors[i])
		} else {
			leaves[j].SetName(colors[rng.Intn(len(colors))])
		}
	}
	attrs := make(map[*tree.Node]NodeAttrs)
	randomUltrametricTiming(tre, attrs, rng)
	for _, node := range tre.Nodes() {
		a := attrs[node]
		if len(node.Neigh()) > 1 || node == tre.Root() {
			a.Event = Speciation
		}
		attrs[node] = a
	}
	if planted {
		addPlantedRoot(tre, attrs)
	}
	td := Assemble(tre, attrs)
	td.AssignMissingLabels()
	td.DistanceFromTiming()
	return td, nil
}

// RandomUltrametricTiming redraws the time stamps of td: 1.0 at the root,
// 0.0 at every leaf, and a uniform draw below the parent's stamp at each
// inner node. Edge lengths are refreshed from the new stamps.
func (td *TreeData) RandomUltrametricTiming(rng *rand.Rand) {
	attrs := td.AttrMap()
	randomUltrametricTiming(&td.Tree, attrs, rng)
	td.SetAttrMap(attrs)
	td.DistanceFromTiming()
}

// AddPlantedRoot returns td re-rooted under a planted root one time unit
// above the old root, modeling the ancestral stem lineage. Node ids are
// reassigned, so any oracle built on td must be rebuilt.
func (td *TreeData) AddPlantedRoot() *TreeData {
	attrs := td.AttrMap()
	addPlantedRoot(&td.Tree, attrs)
	out := Assemble(&td.Tree, attrs)
	out.DistanceFromTiming()
	return out
}

// randomUltrametricTiming assigns time stamp 1.0 to the root, 0.0 to every
// leaf, and a uniform draw below the parent's stamp to each inner node, so
// stamps strictly decrease towards the leaves.
func randomUltrametricTiming(tre *tree.Tree, attrs map[*tree.Node]NodeAttrs, rng *rand.Rand) {
	tre.PreOrder(func(cur, prev *tree.Node, e *tree.Edge) (keep bool) {
		a := attrs[cur]
		switch {
		case prev == nil:
			a.Tstamp = 1.0
		case cur.Tip():
			a.Tstamp = 0.0
		default:
			a.Tstamp = attrs[prev].Tstamp * rng.Float64()
		}
		attrs[cur] = a
		return true
	})
}

// addPlantedRoot plants the tree: a new root with a single child (the old
// root) whose stamp exceeds the old root's by one unit, modeling the
// ancestral stem lineage.
func addPlantedRoot(tre *tree.Tree, attrs map[*tree.Node]NodeAttrs) {
	old := tre.Root()
	planted := tre.NewNode()
	tre.SetRoot(planted)
	tre.ConnectNodes(planted, old)
	attrs[planted] = NodeAttrs{Tstamp: attrs[old].Tstamp + 1.0, Event: Speciation}
}
