// Package sim simulates dated gene trees along a dated species tree:
// a random species tree generator, a Gillespie-style gene tree simulator
// with duplication, loss and horizontal transfer, and a driver running
// batches of independent simulations.
package sim

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/jsdoublel/sage/internal/phylo"
)

// RandomSpeciesTree generates a planted, dated, ultrametric species tree
// with n extant species named S1..Sn. Inner nodes are speciations with
// integer labels; edge lengths follow the timing.
func RandomSpeciesTree(n int, rng *rand.Rand) (*phylo.TreeData, error) {
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = fmt.Sprintf("S%d", i+1)
	}
	return phylo.RandomColoredTree(n, names, true, rng)
}
