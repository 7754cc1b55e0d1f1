package lca_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/jsdoublel/sage/internal/lca"
	"github.com/jsdoublel/sage/internal/phylo"
)

func parse(t *testing.T, nwk string) *phylo.TreeData {
	t.Helper()
	td, err := phylo.ParseNewick(strings.NewReader(nwk))
	if err != nil {
		t.Fatalf("failed to parse tree: %s", err)
	}
	return td
}

func TestLCA(t *testing.T) {
	testCases := []struct {
		name    string
		tree    string
		queries [][3]string // a, b, expected lca
	}{
		{
			name: "balanced quartet",
			tree: "(((a:1,b:1)e:1,(c:1,d:1)f:1)g:1);",
			queries: [][3]string{
				{"a", "b", "e"},
				{"a", "c", "g"},
				{"c", "d", "f"},
				{"a", "a", "a"},
				{"e", "a", "e"},
				{"e", "f", "g"},
			},
		},
		{
			name: "caterpillar",
			tree: "((((a:1,b:1)x:1,c:1)y:1,d:1)z:1);",
			queries: [][3]string{
				{"a", "d", "z"},
				{"b", "c", "y"},
				{"x", "c", "y"},
				{"z", "a", "z"},
			},
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			td := parse(t, test.tree)
			oracle := lca.New(td)
			for _, q := range test.queries {
				a, err := oracle.NodeID(q[0])
				if err != nil {
					t.Fatal(err)
				}
				b, err := oracle.NodeID(q[1])
				if err != nil {
					t.Fatal(err)
				}
				if got := oracle.LCA(a, b); got.Name() != q[2] {
					t.Errorf("lca(%s, %s) = %s, expected %s", q[0], q[1], got.Name(), q[2])
				}
				if got := oracle.LCA(b, a); got.Name() != q[2] {
					t.Errorf("lca(%s, %s) = %s, expected %s", q[1], q[0], got.Name(), q[2])
				}
			}
		})
	}
}

func TestAncestorPredicates(t *testing.T) {
	td := parse(t, "(((a:1,b:1)e:1,(c:1,d:1)f:1)g:1);")
	oracle := lca.New(td)
	id := func(label string) int {
		v, err := oracle.NodeID(label)
		if err != nil {
			t.Fatal(err)
		}
		return v
	}
	if !oracle.StrictAncestor(id("e"), id("a")) {
		t.Error("e should be a strict ancestor of a")
	}
	if oracle.StrictAncestor(id("a"), id("a")) {
		t.Error("a node is not its own strict ancestor")
	}
	if !oracle.Ancestor(id("a"), id("a")) {
		t.Error("a node is its own ancestor")
	}
	if oracle.StrictAncestor(id("e"), id("c")) {
		t.Error("e is not an ancestor of c")
	}
	if !oracle.Comparable(id("g"), id("d")) {
		t.Error("g and d are comparable")
	}
	if oracle.Comparable(id("e"), id("f")) {
		t.Error("e and f are not comparable")
	}
}

func TestNodeIDUnknown(t *testing.T) {
	td := parse(t, "((a:1,b:1)e:1);")
	oracle := lca.New(td)
	if _, err := oracle.NodeID("nope"); !errors.Is(err, lca.ErrUnknownLabel) {
		t.Errorf("expected ErrUnknownLabel, got %v", err)
	}
}

func TestStaleOraclePanics(t *testing.T) {
	td := parse(t, "((a:1,b:1)e:1);")
	oracle := lca.New(td)
	fresh := td.Clone()
	node := fresh.NewNode()
	fresh.ConnectNodes(fresh.Root(), node)
	// oracle built on td still fine
	a, err := oracle.NodeID("a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := oracle.NodeID("b")
	if err != nil {
		t.Fatal(err)
	}
	if got := oracle.LCA(a, b); got.Name() != "e" {
		t.Errorf("lca(a, b) = %s, expected e", got.Name())
	}
	// mutate the oracle's own tree and expect the guard to fire
	td.ConnectNodes(td.Root(), td.NewNode())
	defer func() {
		if recover() == nil {
			t.Error("expected panic on stale oracle")
		}
	}()
	oracle.LCA(a, b)
}
