/*
SAGE (Simulation with Asymmetric Gene-tree Evolution) simulates dated gene
trees along a species tree with duplications, losses and horizontal gene
transfers, assigns heterogeneous evolution rates, and reconstructs Fitch
graphs of transfer relationships.

usage: sage [ flags ] <command> [ args ]

commands:

	simulate	simulates gene trees along a species tree (random or from file)
	fitch		builds the Fitch graph of a reconciled gene tree

positional arguments:

	<species_tree>	dated species newick tree file (fitch command)
	<gene_tree>	annotated gene newick tree file (fitch command)

flags:

	-a float
	  	autocorrelation variance for rate factors
	-b spec
	  	base rate sampler (default "1")
	-d spec
	  	duplication rate sampler (default "0")
	-g int
	  	number of gene trees to simulate (default 1)
	-h	prints this message and exits
	-l spec
	  	loss rate sampler (default "0")
	-n int
	  	number of parallel processes
	-o string
	  	output directory for the simulate command (default ".")
	-p	additionally write a tree length plot (simulate)
	-r spec
	  	HGT rate sampler (default "0")
	-rs
	  	infer transfer edges from reconciliations instead of flags (fitch)
	-s int
	  	number of species for a random species tree (default 10)
	-seed uint
	  	random seed (default 1)
	-species string
	  	species tree file; generated randomly if empty (simulate)
	-u	build the undirected Fitch graph (fitch)
	-v	prints version number and exits

examples:

	  simulate command example:
		sage -s 20 -g 100 -d 0.3 -l 0.2 -r 0.1 -a 0.2 -o out simulate 2> log.txt

	  fitch command example:
		sage -rs fitch species.nwk genetree.nwk > fitch.csv 2> log.txt
*/
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/exp/rand"

	"github.com/jsdoublel/sage/internal/fitch"
	"github.com/jsdoublel/sage/internal/lca"
	"github.com/jsdoublel/sage/internal/phylo"
	pr "github.com/jsdoublel/sage/internal/prep"
	"github.com/jsdoublel/sage/internal/sampling"
	"github.com/jsdoublel/sage/internal/sim"
)

const (
	Version    = "v0.2.0"
	ErrMessage = "SAGE encountered an error ::"

	Simulate Command = iota
	Fitch
)

type Command int

var parseCommand = map[string]Command{
	"simulate": Simulate,
	"fitch":    Fitch,
}

type args struct {
	command     Command // simulate or fitch
	speciesFile string  // species tree input (simulate: optional, fitch: positional)
	geneFile    string  // gene tree input (fitch)
	outDir      string  // output directory (simulate)
	numSpecies  int     // random species tree size (simulate)
	numTrees    int     // gene trees per batch (simulate)
	duplRate    sampling.Distribution
	lossRate    sampling.Distribution
	hgtRate     sampling.Distribution
	baseRate    sampling.Distribution
	autocorrVar float64
	seed        uint64
	nprocs      int
	plotLengths bool // write tree length plot (simulate)
	rsEdges     bool // infer transfer edges from reconciliations (fitch)
	undirected  bool // symmetric Fitch graph (fitch)
}

func setNProcs(nprocs int) int {
	maxProcs := runtime.GOMAXPROCS(0)
	switch {
	case nprocs > maxProcs:
		log.Printf("%d is greater than available processes (%d); limit set to %d\n", nprocs, maxProcs, maxProcs)
		return maxProcs
	case nprocs <= 0:
		log.Printf("number of processes not set; defaulting to %d processes\n", maxProcs)
		return maxProcs
	default:
		return nprocs
	}
}

func parseArgs() args {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr,
			"usage: sage [ flags ] <command> [ args ]\n",
			"\n",
			"commands:\n\n",
			"  simulate\tsimulates gene trees along a species tree (random or from file)\n",
			"  fitch\t\tbuilds the Fitch graph of a reconciled gene tree\n",
			"\n",
			"positional arguments:\n\n",
			"  <species_tree>\tdated species newick tree file (fitch command)\n",
			"  <gene_tree>\tannotated gene newick tree file (fitch command)\n",
			"\n",
			"flags:\n\n",
		)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr,
			"\n",
			"examples:\n\n",
			"  simulate command example:\n",
			"\tsage -s 20 -g 100 -d 0.3 -l 0.2 -r 0.1 -a 0.2 -o out simulate 2> log.txt\n\n",
			"  fitch command example:\n",
			"\tsage -rs fitch species.nwk genetree.nwk > fitch.csv 2> log.txt\n",
		)
	}
	duplRate := sampling.Constant(0)
	lossRate := sampling.Constant(0)
	hgtRate := sampling.Constant(0)
	baseRate := sampling.Constant(1)
	flag.Var(&duplRate, "d", "duplication rate sampler `spec` (default \"0\")")
	flag.Var(&lossRate, "l", "loss rate sampler `spec` (default \"0\")")
	flag.Var(&hgtRate, "r", "HGT rate sampler `spec` (default \"0\")")
	flag.Var(&baseRate, "b", "base rate sampler `spec` (default \"1\")")
	autocorrVar := flag.Float64("a", 0, "autocorrelation variance for rate factors")
	numSpecies := flag.Int("s", 10, "number of species for a random species tree")
	numTrees := flag.Int("g", 1, "number of gene trees to simulate")
	speciesFile := flag.String("species", "", "species tree file; generated randomly if empty (simulate)")
	outDir := flag.String("o", ".", "output directory for the simulate command")
	seed := flag.Uint64("seed", 1, "random seed")
	nprocs := flag.Int("n", 0, "number of parallel processes")
	plotLengths := flag.Bool("p", false, "additionally write a tree length plot (simulate)")
	rsEdges := flag.Bool("rs", false, "infer transfer edges from reconciliations instead of flags (fitch)")
	undirected := flag.Bool("u", false, "build the undirected Fitch graph (fitch)")
	help := flag.Bool("h", false, "prints this message and exits")
	ver := flag.Bool("v", false, "prints version number and exits")
	flag.Parse()
	if *help {
		flag.Usage()
		os.Exit(0)
	}
	if *ver {
		fmt.Printf("SAGE version %s\n", Version)
		os.Exit(0)
	}
	if flag.NArg() < 1 {
		parserError("a command is required: either \"simulate\" or \"fitch\"")
	}
	cmd, ok := parseCommand[flag.Arg(0)]
	if !ok {
		parserError(fmt.Sprintf("\"%s\" is not a valid command: either \"simulate\" or \"fitch\" required", flag.Arg(0)))
	}
	a := args{
		command:     cmd,
		speciesFile: *speciesFile,
		outDir:      *outDir,
		numSpecies:  *numSpecies,
		numTrees:    *numTrees,
		duplRate:    duplRate,
		lossRate:    lossRate,
		hgtRate:     hgtRate,
		baseRate:    baseRate,
		autocorrVar: *autocorrVar,
		seed:        *seed,
		nprocs:      setNProcs(*nprocs),
		plotLengths: *plotLengths,
		rsEdges:     *rsEdges,
		undirected:  *undirected,
	}
	if cmd == Fitch {
		if flag.NArg() != 3 {
			parserError("fitch requires two positional arguments: <species_tree> <gene_tree>")
		}
		a.speciesFile = flag.Arg(1)
		a.geneFile = flag.Arg(2)
	} else if flag.NArg() != 1 {
		parserError("simulate takes no positional arguments")
	}
	return a
}

// prints message, usage, and exits (status code 1)
func parserError(message string) {
	fmt.Fprintln(os.Stderr, message)
	flag.Usage()
	os.Exit(1)
}

func runSimulate(a args) error {
	species, err := speciesTree(a)
	if err != nil {
		return err
	}
	trees, err := sim.SimulateGeneTrees(species, sim.Config{
		NumTrees:         a.numTrees,
		DuplRate:         a.duplRate,
		LossRate:         a.lossRate,
		HGTRate:          a.hgtRate,
		BaseRate:         a.baseRate,
		AutocorrVariance: a.autocorrVar,
		Seed:             a.seed,
		NumWorkers:       a.nprocs,
	})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(a.outDir, 0755); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(a.outDir, "species.nwk"), func(f *os.File) error {
		return species.WriteNewick(f)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(a.outDir, "genetrees.nwk"), func(f *os.File) error {
		return pr.WriteTrees(trees, f)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(a.outDir, "stats.csv"), func(f *os.File) error {
		return pr.WriteEventCountsCSV(trees, f)
	}); err != nil {
		return err
	}
	if a.plotLengths {
		if err := pr.WriteTreeLengthPlot(trees, filepath.Join(a.outDir, "lengths")); err != nil {
			return err
		}
	}
	log.Printf("wrote %d gene trees to %s", len(trees), a.outDir)
	return nil
}

func speciesTree(a args) (*phylo.TreeData, error) {
	if a.speciesFile != "" {
		log.Printf("reading species tree from %s...", a.speciesFile)
		return pr.ReadSpeciesTree(a.speciesFile)
	}
	log.Printf("generating random species tree with %d species...", a.numSpecies)
	return sim.RandomSpeciesTree(a.numSpecies, rand.New(rand.NewSource(a.seed)))
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			panic(fmt.Sprintf("could not close file %s, %s", path, cerr))
		}
	}()
	return write(f)
}

func runFitch(a args) error {
	species, err := pr.ReadSpeciesTree(a.speciesFile)
	if err != nil {
		return err
	}
	genes, err := pr.ReadGeneTrees(a.geneFile)
	if err != nil {
		return err
	}
	gene := genes[0]
	var transfer map[int]bool
	if a.rsEdges {
		transfer, err = fitch.RSTransferEdges(gene, lca.New(species))
		if err != nil {
			return err
		}
	} else {
		transfer = fitch.TrueTransferEdges(gene)
	}
	graph := fitch.Fitch(gene, transfer, lca.New(gene))
	if a.undirected {
		graph = graph.Symmetric()
	}
	return pr.WriteFitchCSV(graph, os.Stdout)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("SAGE version %s", Version)
	a := parseArgs()
	switch a.command {
	case Simulate:
		log.Println("running simulate...")
		if err := runSimulate(a); err != nil {
			log.Fatalf("%s %s\n", ErrMessage, err)
		}
	case Fitch:
		log.Println("running fitch...")
		if err := runFitch(a); err != nil {
			log.Fatalf("%s %s\n", ErrMessage, err)
		}
	default:
		panic(fmt.Sprintf("invalid command (%d)", a.command))
	}
}
