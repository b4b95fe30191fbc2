// Package plotting renders comparison outputs: PNG heat maps and histograms of
// a difference raster (gonum/plot) and an HTML per-zone chart (go-echarts).
package plotting

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/raster.report/internal/compare"
	"github.com/banshee-data/raster.report/internal/raster"
	"github.com/banshee-data/raster.report/internal/units"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// DefaultBins is the histogram bin count used when the caller passes zero.
const DefaultBins = 30

// ErrNoValidCells is returned when a raster has nothing to draw.
var ErrNoValidCells = errors.New("raster has no valid cells")

// gridXYZ adapts a raster to plotter.GridXYZ. Heat map rows run south to
// north, so row r of the grid is raster row Rows-1-r. No-data becomes NaN.
type gridXYZ struct {
	r *raster.Raster
}

func (g gridXYZ) Dims() (c, r int) { return g.r.Cols, g.r.Rows }

func (g gridXYZ) Z(c, r int) float64 {
	row := g.r.Rows - 1 - r
	if !g.r.Valid(row, c) {
		return math.NaN()
	}
	return g.r.At(row, c)
}

func (g gridXYZ) X(c int) float64 { return g.r.XLL + (float64(c)+0.5)*g.r.CellSize }

func (g gridXYZ) Y(r int) float64 { return g.r.YLL + (float64(r)+0.5)*g.r.CellSize }

// WriteDifferenceHeatMap saves r as a PNG heat map. No-data cells are drawn
// transparent.
func WriteDifferenceHeatMap(path, title string, r *raster.Raster) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("heat map: %w", err)
	}
	if r.ValidCount() == 0 {
		return fmt.Errorf("heat map: %w", ErrNoValidCells)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Easting"
	p.Y.Label.Text = "Northing"

	hm := plotter.NewHeatMap(gridXYZ{r}, palette.Heat(12, 1))
	hm.NaN = color.Transparent
	if hm.Min == hm.Max {
		// a flat raster still needs a non-empty colour range
		hm.Min -= 0.5
		hm.Max += 0.5
	}
	p.Add(hm)

	return save(p, path, 8*vg.Inch, 8*vg.Inch)
}

// WriteHistogram saves a PNG histogram of r's valid cell values.
func WriteHistogram(path, title string, r *raster.Raster, bins int) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	vs := r.ValidValues()
	if len(vs) == 0 {
		return fmt.Errorf("histogram: %w", ErrNoValidCells)
	}
	if bins <= 0 {
		bins = DefaultBins
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Difference"
	p.Y.Label.Text = "Cells"

	h, err := plotter.NewHist(plotter.Values(vs), bins)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	h.FillColor = color.RGBA{R: 49, G: 104, B: 142, A: 255}
	p.Add(h)

	return save(p, path, 10*vg.Inch, 6*vg.Inch)
}

func save(p *plot.Plot, path string, w, h vg.Length) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// WriteZoneChart renders an HTML bar chart of per-zone mean and standard
// deviation of the difference raster.
func WriteZoneChart(w io.Writer, res *compare.Result) error {
	if res == nil || len(res.Zones) == 0 {
		return errors.New("zone chart: result has no zones")
	}

	x := make([]string, 0, len(res.Zones))
	means := make([]opts.BarData, 0, len(res.Zones))
	stds := make([]opts.BarData, 0, len(res.Zones))
	for _, z := range res.Zones {
		x = append(x, strconv.Itoa(z.ZoneID))
		means = append(means, opts.BarData{Value: round3(z.Mean)})
		stds = append(stds, opts.BarData{Value: round3(z.Std)})
	}

	unit := units.Abbrev(res.Unit)
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Raster comparison", Width: "900px", Height: "540px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    res.Label,
			Subtitle: fmt.Sprintf("bias=%.3f std=%.3f rmse=%.3f %s", res.Bias, res.Std, res.RMSE, unit),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Zone"}),
		charts.WithYAxisOpts(opts.YAxis{Name: unit}),
	)
	bar.SetXAxis(x).
		AddSeries("mean", means).
		AddSeries("std", stds)

	if err := bar.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}

// WriteZoneChartFile writes WriteZoneChart output to path.
func WriteZoneChartFile(path string, res *compare.Result) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteZoneChart(f, res)
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
