package rates

import (
	"errors"
	"math"
	"testing"

	"golang.org/x/exp/rand"
)

func TestAutocorrFactorsRoot(t *testing.T) {
	species := parse(t, "((A:0.5,B:0.5)X:0.5)R;")
	nodeRates, edgeRates := AutocorrFactors(species, 0.2, rand.New(rand.NewSource(11)))
	if nodeRates["R"] != 1.0 || edgeRates["R"] != 1.0 {
		t.Errorf("root rates = %f/%f, expected 1.0", nodeRates["R"], edgeRates["R"])
	}
	for _, label := range []string{"X", "A", "B"} {
		if nodeRates[label] <= 0 {
			t.Errorf("node rate for %s = %f, expected positive", label, nodeRates[label])
		}
		parent := map[string]string{"X": "R", "A": "X", "B": "X"}[label]
		want := (nodeRates[parent] + nodeRates[label]) / 2
		if math.Abs(edgeRates[label]-want) > 1e-12 {
			t.Errorf("edge rate for %s = %f, expected mean %f", label, edgeRates[label], want)
		}
	}
}

func TestAutocorrZeroVariance(t *testing.T) {
	species := parse(t, "((A:0.5,B:0.5)X:0.5)R;")
	nodeRates, _ := AutocorrFactors(species, 0, rand.New(rand.NewSource(1)))
	for label, rate := range nodeRates {
		if rate != 1.0 {
			t.Errorf("rate for %s = %f, expected 1.0 with zero variance", label, rate)
		}
	}
}

// The log-normal mean correction makes a child's expected rate equal its
// parent's; the sample mean over many draws must approach 1.
func TestAutocorrUnbiased(t *testing.T) {
	species := parse(t, "(A:1)R;")
	rng := rand.New(rand.NewSource(5))
	const n = 20000
	sum := 0.0
	for i := 0; i < n; i++ {
		nodeRates, _ := AutocorrFactors(species, 0.1, rng)
		sum += nodeRates["A"]
	}
	if mean := sum / n; math.Abs(mean-1.0) > 0.02 {
		t.Errorf("sample mean %f, expected 1.0 within tolerance", mean)
	}
}

func TestApplyAutocorrelationMissingFactor(t *testing.T) {
	gene := parse(t, "(a1<A>:1,b1<B>:1)r<R>;")
	err := applyAutocorrelation(gene, map[string]float64{"A": 1.0})
	if !errors.Is(err, ErrMissingFactor) {
		t.Errorf("expected ErrMissingFactor, got %v", err)
	}
}

func TestApplyAutocorrelationScalesDistances(t *testing.T) {
	gene := parse(t, "(a1<A>:1,b1<B>:2)r<R>;")
	if err := applyAutocorrelation(gene, map[string]float64{"A": 0.5, "B": 2.0}); err != nil {
		t.Fatalf("unexpected error %s", err)
	}
	if d := dist(t, gene, "a1"); math.Abs(d-0.5) > 1e-12 {
		t.Errorf("dist(a1) = %f, expected 0.5", d)
	}
	if d := dist(t, gene, "b1"); math.Abs(d-4.0) > 1e-12 {
		t.Errorf("dist(b1) = %f, expected 4.0", d)
	}
}
