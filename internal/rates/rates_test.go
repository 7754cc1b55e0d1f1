package rates

import (
	"math"
	"strings"
	"testing"

	"golang.org/x/exp/rand"

	"github.com/jsdoublel/sage/internal/phylo"
	"github.com/jsdoublel/sage/internal/sampling"
)

func parse(t *testing.T, nwk string) *phylo.TreeData {
	t.Helper()
	td, err := phylo.ParseNewick(strings.NewReader(nwk))
	if err != nil {
		t.Fatalf("failed to parse tree: %s", err)
	}
	return td
}

func setEvent(t *testing.T, td *phylo.TreeData, name string, ev phylo.Event) {
	t.Helper()
	node, err := td.NodeWithName(name)
	if err != nil {
		t.Fatal(err)
	}
	td.Events[node.Id()] = ev
}

func dist(t *testing.T, td *phylo.TreeData, name string) float64 {
	t.Helper()
	node, err := td.NodeWithName(name)
	if err != nil {
		t.Fatal(err)
	}
	return td.Dist(node.Id())
}

func TestAssignRatesConservedOnly(t *testing.T) {
	species := parse(t, "(A:1,B:1)R;")
	gene := parse(t, "(a1<A>:1,b1<B>:1)r<R>;")
	setEvent(t, gene, "r", phylo.Speciation)
	out, err := AssignRates(gene, species, Options{
		BaseRate: 1.0,
		InPlace:  false,
		Rng:      rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	// no duplication or transfer, so every edge keeps its elapsed time
	for _, name := range []string{"a1", "b1"} {
		if d := dist(t, out, name); math.Abs(d-1.0) > 1e-12 {
			t.Errorf("dist(%s) = %f, expected 1.0", name, d)
		}
	}
	// input untouched with InPlace false
	if d := dist(t, gene, "a1"); math.Abs(d-1.0) > 1e-12 {
		t.Errorf("input tree was modified, dist(a1) = %f", d)
	}
}

func TestAssignRatesNonNegative(t *testing.T) {
	species := parse(t, "((A:0.5,B:0.5)X:0.5)R;")
	gene := parse(t, "(((a1<A>:0.5,a2<A>:0.5)d1<X-A>:0.3,l1<X-B>:0.3)x1<X>:0.2)r<R>;")
	setEvent(t, gene, "r", phylo.Speciation)
	setEvent(t, gene, "x1", phylo.Speciation)
	setEvent(t, gene, "d1", phylo.Duplication)
	setEvent(t, gene, "l1", phylo.Loss)
	for seed := uint64(0); seed < 20; seed++ {
		out, err := AssignRates(gene, species, Options{
			BaseRate: 1.0,
			InPlace:  false,
			Rng:      rand.New(rand.NewSource(seed)),
		})
		if err != nil {
			t.Fatalf("unexpected error %s", err)
		}
		for id := range out.IdToNodes {
			if out.Parents[id] == nil {
				continue
			}
			if d := out.Dist(id); d < 0 {
				t.Fatalf("seed %d: negative distance %f", seed, d)
			}
		}
	}
}

func TestAssignRatesBaseRateLinearity(t *testing.T) {
	species := parse(t, "((A:0.5,B:0.5)X:0.5)R;")
	gene := parse(t, "(((a1<A>:0.5,a2<A>:0.5)d1<X-A>:0.3,b1<B>:0.8)x1<X>:0.2)r<R>;")
	setEvent(t, gene, "r", phylo.Speciation)
	setEvent(t, gene, "x1", phylo.Speciation)
	setEvent(t, gene, "d1", phylo.Duplication)
	run := func(base float64) *phylo.TreeData {
		out, err := AssignRates(gene, species, Options{
			BaseRate: base,
			InPlace:  false,
			Rng:      rand.New(rand.NewSource(7)),
		})
		if err != nil {
			t.Fatalf("unexpected error %s", err)
		}
		return out
	}
	one, three := run(1.0), run(3.0)
	for id := range one.IdToNodes {
		if one.Parents[id] == nil {
			continue
		}
		if math.Abs(three.Dist(id)-3*one.Dist(id)) > 1e-9 {
			t.Errorf("node %d: dist %f with base 3, expected %f", id, three.Dist(id), 3*one.Dist(id))
		}
	}
}

// A divergent surviving copy reverts to conserved when it becomes the last
// copy on its species branch; its edge gains a rate-1 segment from the loss
// time onward.
func TestLossReversion(t *testing.T) {
	species := parse(t, "(A:1)R;")
	gene := parse(t, "(l1<R-A>:0.5,a1<A>:1)r<R-A>;")
	setEvent(t, gene, "r", phylo.Duplication)
	setEvent(t, gene, "l1", phylo.Loss)
	out, err := AssignRates(gene, species, Options{
		BaseRate:     1.0,
		RateIncrease: sampling.Constant(5.0),
		CSNWeights:   &[3]float64{0, 1, 0}, // always subfunctionalization
		InPlace:      false,
		Rng:          rand.New(rand.NewSource(3)),
	})
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	// a1 runs at 5.0 from t=1.0 to the loss at t=0.5, then at 1.0 to t=0
	if d := dist(t, out, "a1"); math.Abs(d-3.0) > 1e-12 {
		t.Errorf("dist(a1) = %f, expected 3.0", d)
	}
	// the lost copy itself ran divergent until the loss
	if d := dist(t, out, "l1"); math.Abs(d-2.5) > 1e-12 {
		t.Errorf("dist(l1) = %f, expected 2.5", d)
	}
}

// The untransferred child of an HGT node continues the parent's rate segment
// while the transferred copy restarts divergent.
func TestTransferAsymmetry(t *testing.T) {
	species := parse(t, "(A:1,B:1)R;")
	gene := parse(t, "((a1<A>:0.6,c2<R-B>:0.6)h1<R-A>:0.4,b1<B>:1)r<R>;")
	setEvent(t, gene, "r", phylo.Speciation)
	setEvent(t, gene, "h1", phylo.Transfer)
	c2, err := gene.NodeWithName("c2")
	if err != nil {
		t.Fatal(err)
	}
	gene.Transferred[c2.Id()] = true
	out, err := AssignRates(gene, species, Options{
		BaseRate:     1.0,
		RateIncrease: sampling.Constant(5.0),
		InPlace:      false,
		Rng:          rand.New(rand.NewSource(3)),
	})
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if d := dist(t, out, "a1"); math.Abs(d-0.6) > 1e-12 {
		t.Errorf("dist(a1) = %f, expected 0.6 (conserved continuation)", d)
	}
	if d := dist(t, out, "c2"); math.Abs(d-3.0) > 1e-12 {
		t.Errorf("dist(c2) = %f, expected 3.0 (divergent at rate 5)", d)
	}
	if d := dist(t, out, "b1"); math.Abs(d-1.0) > 1e-12 {
		t.Errorf("dist(b1) = %f, expected 1.0", d)
	}
}

// Two duplications at the same instant: the divergent state assigned by the
// first must already be visible when the second is processed, so the
// grandchildren run at the increased rate.
func TestZeroDurationDuplicationChain(t *testing.T) {
	species := parse(t, "(A:1)R;")
	gene := parse(t, "((a1<A>:1,a2<A>:1)d2<R-A>:0,a3<A>:1)d1<R-A>;")
	setEvent(t, gene, "d1", phylo.Duplication)
	setEvent(t, gene, "d2", phylo.Duplication)
	out, err := AssignRates(gene, species, Options{
		BaseRate:     1.0,
		RateIncrease: sampling.Constant(5.0),
		CSNWeights:   &[3]float64{0, 1, 0}, // always subfunctionalization
		InPlace:      false,
		Rng:          rand.New(rand.NewSource(3)),
	})
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	for _, leaf := range []string{"a1", "a2", "a3"} {
		if d := dist(t, out, leaf); math.Abs(d-5.0) > 1e-12 {
			t.Errorf("dist(%s) = %f, expected 5.0", leaf, d)
		}
	}
	if d := dist(t, out, "d2"); d != 0 {
		t.Errorf("dist(d2) = %f, expected 0 on the zero-duration edge", d)
	}
}

func TestAssignRatesBadWeights(t *testing.T) {
	species := parse(t, "(A:1,B:1)R;")
	gene := parse(t, "(a1<A>:1,b1<B>:1)r<R>;")
	for _, weights := range []*[3]float64{{-1, 1, 1}, {0, 0, 0}} {
		if _, err := AssignRates(gene, species, Options{
			BaseRate:   1.0,
			CSNWeights: weights,
			InPlace:    false,
			Rng:        rand.New(rand.NewSource(1)),
		}); err == nil {
			t.Errorf("weights %v: expected error", weights)
		}
	}
}

func TestZeroDurationEdges(t *testing.T) {
	species := parse(t, "(A:1,B:1)R;")
	gene := parse(t, "(a1<A>:1,(b1<B>:0)x1<B>:1)r<R>;")
	setEvent(t, gene, "r", phylo.Speciation)
	out, err := AssignRates(gene, species, Options{
		BaseRate: 1.0,
		InPlace:  false,
		Rng:      rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if d := dist(t, out, "b1"); d != 0 || math.IsNaN(d) {
		t.Errorf("zero-duration edge got dist %f, expected exactly 0", d)
	}
}
