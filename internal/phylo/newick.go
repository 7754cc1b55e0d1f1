package phylo

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/evolbioinfo/gotree/io/newick"
	"github.com/evolbioinfo/gotree/tree"
)

var ErrInvalidFormat = errors.New("invalid newick format")

// Node names may end with a reconciliation annotation in angle brackets:
// "a1<A>" for a node mapped onto species branch terminating at A, and
// "3<A-B>" for a node mapped exactly onto species node A whose child is B
// (the edge rendered top-bottom). A trailing "*" marks a node whose incoming
// edge is a transfer edge. Gotree keeps the brackets as part of the name so
// we split them off after parsing.
var reconcRe = regexp.MustCompile(`^(.*)<([^<>]*)>(\*?)$`)

// ParseNewick reads an event-labeled tree with optional reconciliation
// annotations and packs the annotations into the TreeData side-cars.
func ParseNewick(r io.Reader) (*TreeData, error) {
	tre, err := newick.NewParser(r).Parse()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, err.Error())
	}
	td := MakeTreeData(tre)
	for id, node := range td.IdToNodes {
		m := reconcRe.FindStringSubmatch(node.Name())
		if m == nil {
			continue
		}
		node.SetName(m[1])
		td.Reconcs[id] = parseReconc(m[2])
		td.Transferred[id] = m[3] == "*"
	}
	if err := td.ReconstructTimestamps(); err != nil {
		return nil, err
	}
	return td, nil
}

// WriteNewick renders the tree with reconciliation annotations appended to
// the node names, and restores the bare names afterwards.
func (td *TreeData) WriteNewick(w io.Writer) error {
	annotated := make([]*tree.Node, 0)
	for id, node := range td.IdToNodes {
		if !td.Reconcs[id].IsZero() {
			suffix := td.Reconcs[id].String()
			if td.Transferred[id] {
				suffix += "*"
			}
			node.SetName(node.Name() + suffix)
			annotated = append(annotated, node)
		}
	}
	nwk := td.Newick()
	for _, node := range annotated {
		name := node.Name()
		node.SetName(name[:strings.LastIndexByte(name, '<')])
	}
	if _, err := fmt.Fprintln(w, nwk); err != nil {
		return fmt.Errorf("could not write newick: %w", err)
	}
	return nil
}
