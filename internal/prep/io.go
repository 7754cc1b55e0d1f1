// Package prep handles file input and output for the simulator and the
// Fitch graph tools: newick tree files with reconciliation annotations, CSV
// reports, and summary plots.
package prep

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log"
	"math"
	"os"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/jsdoublel/sage/internal/fitch"
	"github.com/jsdoublel/sage/internal/phylo"
)

var (
	ErrInvalidFile = errors.New("invalid file")
	ErrWritingFile = errors.New("error writing file")

	plotLineColor  = color.RGBA{R: 37, G: 150, B: 190, A: 255}
	plotMarkerShap = draw.SquareGlyph{}
)

const (
	plotH = 4 * vg.Inch
	plotW = 6 * vg.Inch

	maxTicks = 10
)

// ReadSpeciesTree reads a single dated species tree from a newick file.
// Returns an error if the file does not contain exactly one tree.
func ReadSpeciesTree(path string) (td *phylo.TreeData, err error) {
	defer quietGotree()()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading species tree file: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if bytes.Count(raw, []byte{byte('\n')}) != 0 || len(raw) == 0 {
		return nil, fmt.Errorf("%w, there should be exactly one newick tree in species tree file %s",
			ErrInvalidFile, path)
	}
	td, err = phylo.ParseNewick(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("error parsing species tree from %s: %w", path, err)
	}
	return td, nil
}

// ReadGeneTrees reads one annotated gene tree per line.
func ReadGeneTrees(path string) (trees []*phylo.TreeData, err error) {
	defer quietGotree()()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %s, %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			panic(fmt.Sprintf("could not close file %s, %s", path, cerr))
		}
	}()
	scanner := bufio.NewScanner(file)
	for i := 0; scanner.Scan(); i++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		td, err := phylo.ParseNewick(bytes.NewReader(line))
		if err != nil {
			return nil, fmt.Errorf("error reading gene tree on line %d in %s: %w", i, path, err)
		}
		trees = append(trees, td)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	if len(trees) < 1 {
		return nil, fmt.Errorf("%w, empty gene tree file %s", ErrInvalidFile, path)
	}
	return trees, nil
}

// gotree logs while parsing; silence it and restore the logger after
func quietGotree() func() {
	flags := log.Flags()
	lout := log.Writer()
	log.SetOutput(io.Discard)
	return func() {
		log.SetOutput(lout)
		log.SetFlags(flags)
	}
}

// WriteTrees writes the trees in annotated newick, one per line.
func WriteTrees(trees []*phylo.TreeData, w io.Writer) error {
	for _, td := range trees {
		if err := td.WriteNewick(w); err != nil {
			return fmt.Errorf("%w, %s", ErrWritingFile, err)
		}
	}
	return nil
}

// WriteEventCountsCSV writes a per-run census of the simulated gene trees.
//
// Columns: "gene", "leaves", "speciations", "duplications", "losses",
// "transfers", "total length".
func WriteEventCountsCSV(trees []*phylo.TreeData, w io.Writer) (err error) {
	data := make([][]string, len(trees)+1)
	data[0] = []string{"gene", "leaves", "speciations", "duplications", "losses", "transfers", "total length"}
	for i, td := range trees {
		c := td.CountNodeTypes()
		data[i+1] = []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(c.Leaves),
			strconv.Itoa(c.Speciations),
			strconv.Itoa(c.Duplications),
			strconv.Itoa(c.Losses),
			strconv.Itoa(c.HGTs),
			strconv.FormatFloat(td.TotalLength(), 'f', -1, 64),
		}
	}
	writer := csv.NewWriter(w)
	defer func() {
		writer.Flush()
		if err == nil {
			err = writer.Error()
		} else if writer.Error() != nil {
			log.Printf("error when flushing output csv, %s", writer.Error())
		}
	}()
	if err = writer.WriteAll(data); err != nil {
		err = fmt.Errorf("%w, %s", ErrWritingFile, err)
		return
	}
	return
}

// WriteFitchCSV writes the edges of a Fitch graph.
//
// Columns: "from", "to", "from species", "to species".
func WriteFitchCSV(g *fitch.Graph, w io.Writer) (err error) {
	edges := g.Edges()
	data := make([][]string, len(edges)+1)
	data[0] = []string{"from", "to", "from species", "to species"}
	for i, e := range edges {
		u, v := g.Leaves[e[0]], g.Leaves[e[1]]
		data[i+1] = []string{u.Label, v.Label, u.Reconc.Bottom, v.Reconc.Bottom}
	}
	writer := csv.NewWriter(w)
	defer func() {
		writer.Flush()
		if err == nil {
			err = writer.Error()
		} else if writer.Error() != nil {
			log.Printf("error when flushing output csv, %s", writer.Error())
		}
	}()
	if err = writer.WriteAll(data); err != nil {
		err = fmt.Errorf("%w, %s", ErrWritingFile, err)
		return
	}
	return
}

// WriteTreeLengthPlot saves a line plot of total tree length per simulated
// gene tree to prefix.png.
func WriteTreeLengthPlot(trees []*phylo.TreeData, prefix string) error {
	p := plot.New()
	p.X.Label.Text = "Gene Tree"
	p.Y.Label.Text = "Total Tree Length"
	p.X.Min = 1
	p.X.Max = float64(len(trees))
	p.X.Tick.Marker = plot.TickerFunc(func(_, max float64) []plot.Tick {
		step := 1
		if int(max) > maxTicks {
			step = int(math.Ceil(max / maxTicks))
		}
		ticks := make([]plot.Tick, 0, int(max)/step+2)
		for i := 1; i <= int(max); i++ {
			if i%step == 0 {
				ticks = append(ticks, plot.Tick{Value: float64(i), Label: fmt.Sprintf("%d", i)})
			} else {
				ticks = append(ticks, plot.Tick{Value: float64(i)})
			}
		}
		return ticks
	})
	p.Y.Min = 0
	pts := make(plotter.XYs, len(trees))
	for i, td := range trees {
		pts[i].X = float64(i + 1)
		pts[i].Y = td.TotalLength()
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return err
	}
	line.Color = plotLineColor
	line.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
	points.Color = plotLineColor
	points.Shape = plotMarkerShap
	points.Radius = vg.Points(4)
	p.Add(line, points)
	return p.Save(plotW, plotH, fmt.Sprintf("%s.png", prefix))
}
