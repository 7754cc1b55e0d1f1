package phylo

import (
	"github.com/evolbioinfo/gotree/tree"
)

// DeleteLossesAndContract returns the observable tree: all loss leaves are
// removed, and inner nodes left with a single child are contracted with
// their distances summed. The transfer flag of a contracted edge survives if
// either merged edge carried it. The input is left untouched.
func (td *TreeData) DeleteLossesAndContract() *TreeData {
	out := tree.NewTree()
	attrs := make(map[*tree.Node]NodeAttrs)
	root := td.copyObservable(td.Root(), out, attrs, 0, false)
	if root == nil {
		out.SetRoot(out.NewNode())
		return Assemble(out, attrs)
	}
	out.SetRoot(root.node)
	return Assemble(out, attrs)
}

type observableCopy struct {
	node        *tree.Node
	dist        float64
	transferred bool
}

// copyObservable copies the subtree below cur into out, skipping loss leaves
// and contracting unary nodes. dist and transferred accumulate over
// contracted edges on the way down; the accumulated values end up on the
// surviving edge, so rate-scaled distances are preserved.
func (td *TreeData) copyObservable(cur *tree.Node, out *tree.Tree, attrs map[*tree.Node]NodeAttrs, dist float64, transferred bool) *observableCopy {
	id := cur.Id()
	if td.IsLeaf(id) {
		if td.Events[id] == Loss {
			return nil
		}
		return td.copyNode(cur, out, attrs, dist, transferred)
	}
	kept := make([]*observableCopy, 0, len(td.Children[id]))
	for _, child := range td.Children[id] {
		c := td.copyObservable(child, out, attrs, td.Dist(child.Id()), td.Transferred[child.Id()])
		if c != nil {
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		// contract: the surviving child absorbs this node's incoming edge
		kept[0].dist += dist
		kept[0].transferred = kept[0].transferred || transferred
		return kept[0]
	default:
		parent := td.copyNode(cur, out, attrs, dist, transferred)
		for _, c := range kept {
			e := out.ConnectNodes(parent.node, c.node)
			e.SetLength(c.dist)
			a := attrs[c.node]
			a.Transferred = c.transferred
			attrs[c.node] = a
		}
		return parent
	}
}

func (td *TreeData) copyNode(cur *tree.Node, out *tree.Tree, attrs map[*tree.Node]NodeAttrs, dist float64, transferred bool) *observableCopy {
	node := out.NewNode()
	node.SetName(cur.Name())
	a := td.Attrs(cur.Id())
	a.Transferred = transferred
	attrs[node] = a
	return &observableCopy{node: node, dist: dist, transferred: transferred}
}

// RemovePlantedRoot removes a unary root, making its single child the new
// root. Trees whose root already has two children are returned unchanged.
func (td *TreeData) RemovePlantedRoot() *TreeData {
	if !td.Planted() {
		return td
	}
	attrs := make(map[*tree.Node]NodeAttrs)
	out := tree.NewTree()
	child := td.Children[td.Root().Id()][0]
	root := td.copyWithLengths(child, out, attrs)
	out.SetRoot(root)
	return Assemble(out, attrs)
}

// copyWithLengths copies the subtree below cur into out, keeping edge lengths
// and node attributes.
func (td *TreeData) copyWithLengths(cur *tree.Node, out *tree.Tree, attrs map[*tree.Node]NodeAttrs) *tree.Node {
	node := out.NewNode()
	node.SetName(cur.Name())
	attrs[node] = td.Attrs(cur.Id())
	for _, child := range td.Children[cur.Id()] {
		e := out.ConnectNodes(node, td.copyWithLengths(child, out, attrs))
		e.SetLength(td.Dist(child.Id()))
	}
	return node
}

// NodeTypeCounts tallies the tree composition.
type NodeTypeCounts struct {
	Inner, Leaves                           int
	Speciations, Duplications, Losses, HGTs int
}

func (td *TreeData) CountNodeTypes() NodeTypeCounts {
	var c NodeTypeCounts
	for id := range td.IdToNodes {
		if td.IsLeaf(id) {
			c.Leaves++
		} else {
			c.Inner++
		}
		switch td.Events[id] {
		case Speciation:
			c.Speciations++
		case Duplication:
			c.Duplications++
		case Loss:
			c.Losses++
		case Transfer:
			c.HGTs++
		}
	}
	return c
}

// TopologyOnly strips time stamps and edge lengths, keeping labels, events
// and reconciliations. Useful for comparing simulated against reconstructed
// trees.
func (td *TreeData) TopologyOnly() *TreeData {
	c := td.Clone()
	for id := range c.Tstamps {
		c.Tstamps[id] = 0
		if e := c.ParentEdges[id]; e != nil {
			e.SetLength(tree.NIL_LENGTH)
		}
	}
	return c
}
