package fitch_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/jsdoublel/sage/internal/fitch"
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

// markTransferred flags the incoming edges of the named nodes.
func markTransferred(t *testing.T, td *phylo.TreeData, names ...string) {
	t.Helper()
	for _, name := range names {
		node, err := td.NodeWithName(name)
		if err != nil {
			t.Fatal(err)
		}
		td.Transferred[node.Id()] = true
	}
}

func edgeSet(g *fitch.Graph) map[[2]string]bool {
	set := make(map[[2]string]bool)
	for _, e := range fitch.LabelEdges(g) {
		set[e] = true
	}
	return set
}

func TestFitchDirected(t *testing.T) {
	testCases := []struct {
		name        string
		tree        string
		transferred []string
		expected    [][2]string
	}{
		{
			name:        "no transfers",
			tree:        "((a1:1,b1:1)x:1,c1:2)r;",
			transferred: nil,
			expected:    nil,
		},
		{
			name:        "single transfer below root",
			tree:        "((a1:0.7,c2:0.7)h1:0.3,b1:1.0)r;",
			transferred: []string{"c2"},
			expected:    [][2]string{{"a1", "c2"}, {"b1", "c2"}},
		},
		{
			name:        "transfer above subtree spreads to all its leaves",
			tree:        "(((c2:0.5,c3:0.5)t:0.2,a1:0.7)h1:0.3,b1:1.0)r;",
			transferred: []string{"t"},
			expected:    [][2]string{{"a1", "c2"}, {"a1", "c3"}, {"b1", "c2"}, {"b1", "c3"}},
		},
		{
			name:        "transfer above lca affects both sides",
			tree:        "(((a1:0.5,b1:0.5)x:0.2)h1:0.3,c1:1.0)r;",
			transferred: []string{"h1"},
			expected:    [][2]string{{"c1", "a1"}, {"c1", "b1"}},
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			td := parse(t, test.tree)
			markTransferred(t, td, test.transferred...)
			oracle := lca.New(td)
			g := fitch.Fitch(td, fitch.TrueTransferEdges(td), oracle)
			got := edgeSet(g)
			if len(got) != len(test.expected) {
				t.Fatalf("got edges %v, expected %v", fitch.LabelEdges(g), test.expected)
			}
			for _, e := range test.expected {
				if !got[e] {
					t.Errorf("missing edge %v", e)
				}
			}
		})
	}
}

func TestFitchNoSelfLoops(t *testing.T) {
	td := parse(t, "(((c2:0.5,c3:0.5)t:0.2,a1:0.7)h1:0.3,b1:1.0)r;")
	markTransferred(t, td, "t", "h1")
	g := fitch.Fitch(td, fitch.TrueTransferEdges(td), lca.New(td))
	for i := range g.Leaves {
		if g.HasEdge(i, i) {
			t.Errorf("self loop at leaf %s", g.Leaves[i].Label)
		}
	}
}

func TestUndirectedIsSymmetricClosure(t *testing.T) {
	td := parse(t, "(((c2:0.5,c3:0.5)t:0.2,a1:0.7)h1:0.3,b1:1.0)r;")
	markTransferred(t, td, "t")
	oracle := lca.New(td)
	transfer := fitch.TrueTransferEdges(td)
	directed := fitch.Fitch(td, transfer, oracle)
	undirected := fitch.UndirectedFitch(td, transfer, oracle)
	n := len(directed.Leaves)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := directed.HasEdge(i, j) || directed.HasEdge(j, i)
			if undirected.HasEdge(i, j) != want {
				t.Errorf("symmetric closure mismatch at (%d, %d)", i, j)
			}
		}
	}
}

func TestRSTransferEdges(t *testing.T) {
	species := parse(t, "((A:0.5,B:0.5)X:0.5,(C:0.5,D:0.5)Y:0.5)R;")
	gene := parse(t, "((a1<A>:0.7,c2<C>:0.7)h1<X-A>:0.3,b1<B>:1.0)r<R>;")
	transfer, err := fitch.RSTransferEdges(gene, lca.New(species))
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	c2, err := gene.NodeWithName("c2")
	if err != nil {
		t.Fatal(err)
	}
	if !transfer[c2.Id()] {
		t.Error("edge into c2 should be an rs-transfer edge")
	}
	if len(transfer) != 1 {
		t.Errorf("expected exactly one transfer edge, got %d", len(transfer))
	}
}

func TestRSTransferEdgesUnknownSpecies(t *testing.T) {
	species := parse(t, "((A:0.5,B:0.5)X:0.5,(C:0.5,D:0.5)Y:0.5)R;")
	gene := parse(t, "((a1<A>:0.7,c2<Z>:0.7)h1<X-A>:0.3,b1<B>:1.0)r<R>;")
	if _, err := fitch.RSTransferEdges(gene, lca.New(species)); !errors.Is(err, fitch.ErrUnknownSpecies) {
		t.Errorf("expected ErrUnknownSpecies, got %v", err)
	}
}

// Scenario test: species tree ((A,B),(C,D)), transfer from branch A into
// branch C at time 0.3. The transferred copy's leaf must receive directed
// edges from every leaf that diverged before the transfer, and only those.
func TestTransferScenarioRoundTrip(t *testing.T) {
	species := parse(t, "((A:0.5,B:0.5)X:0.5,(C:0.5,D:0.5)Y:0.5)R;")
	gene := parse(t, "(((a1<A>:0.3,c2<C>:0.3)h1<X-A>:0.4,b1<B>:0.7)g1<R>:0.3,(c1<C>:0.5,d1<D>:0.5)g2<Y>:0.5)r<R>;")
	markTransferred(t, gene, "c2")
	rs, err := fitch.RSTransferEdges(gene, lca.New(species))
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	c2, err := gene.NodeWithName("c2")
	if err != nil {
		t.Fatal(err)
	}
	if !rs[c2.Id()] || len(rs) != 1 {
		t.Fatalf("rs transfer edges %v, expected only edge into c2", rs)
	}
	oracle := lca.New(gene)
	g := fitch.Fitch(gene, rs, oracle)
	got := edgeSet(g)
	expected := [][2]string{{"a1", "c2"}, {"b1", "c2"}, {"c1", "c2"}, {"d1", "c2"}}
	if len(got) != len(expected) {
		t.Fatalf("got edges %v, expected %v", fitch.LabelEdges(g), expected)
	}
	for _, e := range expected {
		if !got[e] {
			t.Errorf("missing edge %v", e)
		}
	}
	// true flags and rs definition agree on this scenario
	trueG := fitch.Fitch(gene, fitch.TrueTransferEdges(gene), oracle)
	if trueG.NumEdges() != g.NumEdges() {
		t.Errorf("true-scenario and rs graphs disagree: %d vs %d edges", trueG.NumEdges(), g.NumEdges())
	}
}
