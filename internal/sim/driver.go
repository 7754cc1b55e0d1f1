package sim

import (
	"errors"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"github.com/jsdoublel/sage/internal/phylo"
	"github.com/jsdoublel/sage/internal/rates"
	"github.com/jsdoublel/sage/internal/sampling"
)

var ErrBadRunCount = errors.New("number of gene trees must be positive")

// Config parameterizes a batch of gene tree simulations. The event and base
// rates are sampler specifications, drawn once per run.
type Config struct {
	NumTrees         int
	DuplRate         sampling.Distribution
	LossRate         sampling.Distribution
	HGTRate          sampling.Distribution
	BaseRate         sampling.Distribution
	RateIncrease     sampling.Distribution
	CSNWeights       *[3]float64 // nil means the rates package default
	AutocorrVariance float64
	Seed             uint64
	NumWorkers       int // max concurrent runs; <= 0 means 1
}

// SimulateGeneTrees runs NumTrees independent gene tree simulations along
// the planted species tree and assigns heterogeneous rates to each result.
// Autocorrelation factors are computed once on the species tree and shared
// across runs. Each run draws from its own random stream seeded from
// Config.Seed, so results are reproducible regardless of worker count, and
// are returned in run order.
func SimulateGeneTrees(species *phylo.TreeData, cfg Config) ([]*phylo.TreeData, error) {
	if cfg.NumTrees < 1 {
		return nil, ErrBadRunCount
	}
	simulator, err := NewGeneTreeSimulator(species)
	if err != nil {
		return nil, err
	}
	baseRng := rand.New(rand.NewSource(cfg.Seed))
	var factors map[string]float64
	if cfg.AutocorrVariance > 0 {
		_, factors = rates.AutocorrFactors(species, cfg.AutocorrVariance, baseRng)
	}

	draw := func(d sampling.Distribution, fallback float64) (sampling.Sampler, error) {
		if d.Name == "" {
			d = sampling.Constant(fallback)
		}
		return d.Sampler(baseRng)
	}
	duplSampler, err := draw(cfg.DuplRate, 0)
	if err != nil {
		return nil, err
	}
	lossSampler, err := draw(cfg.LossRate, 0)
	if err != nil {
		return nil, err
	}
	hgtSampler, err := draw(cfg.HGTRate, 0)
	if err != nil {
		return nil, err
	}
	baseSampler, err := draw(cfg.BaseRate, 1)
	if err != nil {
		return nil, err
	}

	// per-run parameters drawn up front on a single stream
	type runParams struct {
		rates rates.Options
		ev    EventRates
	}
	params := make([]runParams, cfg.NumTrees)
	for i := range params {
		params[i] = runParams{
			ev: EventRates{Dupl: duplSampler.Draw(), Loss: lossSampler.Draw(), HGT: hgtSampler.Draw()},
			rates: rates.Options{
				BaseRate:        baseSampler.Draw(),
				AutocorrFactors: factors,
				RateIncrease:    cfg.RateIncrease,
				CSNWeights:      cfg.CSNWeights,
				InPlace:         true,
				Rng:             rand.New(rand.NewSource(cfg.Seed + uint64(i) + 1)),
			},
		}
	}

	trees := make([]*phylo.TreeData, cfg.NumTrees)
	var g errgroup.Group
	workers := cfg.NumWorkers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)
	for i := 0; i < cfg.NumTrees; i++ {
		i := i
		g.Go(func() error {
			gene, err := simulator.Simulate(params[i].ev, params[i].rates.Rng)
			if err != nil {
				return err
			}
			if _, err := rates.AssignRates(gene, species, params[i].rates); err != nil {
				return err
			}
			trees[i] = gene
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return trees, nil
}
