package savigp

import (
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgpdf"
)

const (
	figureWidth  = 6 * vg.Inch
	figureHeight = 4 * vg.Inch
	fitGridSize  = 200
)

// PlotSSE reads the exported files of experiment name under root, scores
// every model in modelNames and writes box plots of the normalised squared
// error and NLPD to graphs/SSE.pdf and graphs/NLPD.pdf.
func PlotSSE(root, name string, modelNames []string) (*Metrics, error) {
	metrics, err := LoadMetrics(root, name, modelNames)
	if err != nil {
		return nil, err
	}

	dir := GraphDir(root, name)
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	if err := boxPlot("SSE", metrics.Models, metrics.SSE, true, filepath.Join(dir, "SSE.pdf")); err != nil {
		return nil, err
	}

	if err := boxPlot("NLPD", metrics.Models, metrics.NLPD, false, filepath.Join(dir, "NLPD.pdf")); err != nil {
		return nil, err
	}

	return metrics, nil
}

// boxPlot draws one box per model. unitRange clamps the y axis to [0, 1].
func boxPlot(title string, models []string, values map[string][]float64, unitRange bool, path string) error {
	p := plot.New()
	p.Title.Text = title

	for i, m := range models {
		box, err := plotter.NewBoxPlot(vg.Points(20), float64(i), plotter.Values(values[m]))
		if err != nil {
			return invalidArgument("%s box for %q: %v", title, m, err)
		}

		p.Add(box)
	}

	p.NominalX(models...)

	if unitRange {
		p.Y.Min = 0
		p.Y.Max = 1
	}

	return savePDF(p, path)
}

// fitColors cycles through the curves of PlotFit, the main model first.
var fitColors = []color.Color{
	color.RGBA{B: 200, A: 255},
	color.RGBA{R: 200, A: 255},
	color.RGBA{G: 140, A: 255},
	color.RGBA{R: 160, B: 160, A: 255},
}

// PlotFit draws the training data, the predictive mean and a band of two
// standard deviations over a grid spanning X. Only 1-D inputs are supported.
//
// Baselines, typically the exact GP, are drawn over the same grid in their
// own colours so both fits can be compared on one figure.
//
// Usage example:
//
//	err := PlotFit("results/normal_1D/graphs/fit.pdf", model, Xtrain, Ytrain, gp)
func PlotFit(path string, model Model, X, Y *mat.Dense, baselines ...Model) error {
	if model == nil {
		return invalidArgument("a model is required")
	}

	if numCols(X) != 1 {
		return invalidArgument("fit plots need 1-D inputs, got %d columns", numCols(X))
	}

	if numRows(X) != numRows(Y) || numRows(X) == 0 {
		return invalidArgument("X has %d rows, Y has %d", numRows(X), numRows(Y))
	}

	xs := column(X, 0)
	lo, hi := floats.Min(xs), floats.Max(xs)
	pad := 0.05 * (hi - lo)

	grid := make([]float64, fitGridSize)
	floats.Span(grid, lo-pad, hi+pad)

	points := make(plotter.XYs, numRows(X))
	for i := range points {
		points[i] = plotter.XY{X: X.At(i, 0), Y: Y.At(i, 0)}
	}

	p := plot.New()
	p.Title.Text = model.Kind()
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	scatter, err := plotter.NewScatter(points)
	if err != nil {
		return invalidArgument("training points: %v", err)
	}

	scatter.GlyphStyle.Radius = vg.Points(1.5)
	scatter.GlyphStyle.Color = color.Gray{Y: 96}

	p.Add(scatter)
	p.Legend.Add("train", scatter)

	for i, m := range append([]Model{model}, baselines...) {
		if m == nil {
			continue
		}

		if err := addFitCurves(p, m, grid, fitColors[i%len(fitColors)]); err != nil {
			return err
		}
	}

	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}

	return savePDF(p, path)
}

// addFitCurves draws m's predictive mean and ±2 sd band over grid.
func addFitCurves(p *plot.Plot, m Model, grid []float64, c color.Color) error {
	mean, variance, err := m.Predict(mat.NewDense(len(grid), 1, grid))
	if err != nil {
		return err
	}

	meanLine := make(plotter.XYs, len(grid))
	upper := make(plotter.XYs, len(grid))
	lower := make(plotter.XYs, len(grid))

	for i, x := range grid {
		mu, sd := mean.At(i, 0), math.Sqrt(variance.At(i, 0))
		meanLine[i] = plotter.XY{X: x, Y: mu}
		upper[i] = plotter.XY{X: x, Y: mu + 2*sd}
		lower[i] = plotter.XY{X: x, Y: mu - 2*sd}
	}

	line, err := plotter.NewLine(meanLine)
	if err != nil {
		return invalidArgument("%s predictive mean: %v", m.Kind(), err)
	}

	line.Color = c
	line.Width = vg.Points(1.5)

	p.Add(line)
	p.Legend.Add(m.Kind(), line)

	for _, band := range []plotter.XYs{upper, lower} {
		l, err := plotter.NewLine(band)
		if err != nil {
			return invalidArgument("%s predictive band: %v", m.Kind(), err)
		}

		l.Color = c
		l.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(l)
	}

	return nil
}

// savePDF renders p to a PDF file at path, overwriting it.
func savePDF(p *plot.Plot, path string) error {
	c := vgpdf.New(figureWidth, figureHeight)
	p.Draw(draw.New(c))

	f, err := os.Create(path)
	if err != nil {
		return ioFailure(err, "creating %s", path)
	}

	if _, err := c.WriteTo(f); err != nil {
		f.Close()

		return ioFailure(err, "writing %s", path)
	}

	if err := f.Close(); err != nil {
		return ioFailure(err, "closing %s", path)
	}

	return nil
}
