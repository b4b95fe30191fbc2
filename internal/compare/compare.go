// Package compare measures how far one raster departs from another over an
// area of interest. Compare reports the bias, the standard deviation and the
// RMSE of the cell-wise difference, and checks that
// RMSE ≈ sqrt(bias² + std²) to within a tolerance.
//
// Geoprocessing is delegated to a geoproc.Processor. Every intermediate lives
// in a scratch workspace that is released before Compare returns.
package compare

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/raster.report/internal/geoproc"
	"github.com/banshee-data/raster.report/internal/monitoring"
	"github.com/banshee-data/raster.report/internal/raster"
	"github.com/banshee-data/raster.report/internal/zones"
)

// Comparator runs comparisons with a fixed processor and options. It holds no
// per-call state and may be shared.
type Comparator struct {
	proc geoproc.Processor
	opts Options
}

// New returns a Comparator. A nil processor selects geoproc.Local.
func New(proc geoproc.Processor, opts Options) (*Comparator, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("failed to configure comparator: %w", err)
	}
	if proc == nil {
		proc = geoproc.NewLocal()
	}
	return &Comparator{proc: proc, opts: opts}, nil
}

// Options returns the comparator's options.
func (c *Comparator) Options() Options { return c.opts }

// run carries one invocation's workspace.
type run struct {
	c  *Comparator
	ws *geoproc.Workspace
}

// Compare computes the error metrics of r1 against r2 over the zones of zs.
// Only the cells inside both footprints are compared.
func (c *Comparator) Compare(ctx context.Context, r1, r2 *raster.Raster, zs *zones.Partition, label string) (res *Result, err error) {
	if err := checkInputs(r1, r2, zs, label); err != nil {
		return nil, err
	}

	wsOpts := []geoproc.WorkspaceOption{geoproc.WithScratchDir(c.opts.ScratchDir)}
	if c.opts.FS != nil {
		wsOpts = append(wsOpts, geoproc.WithFileSystem(c.opts.FS))
	}
	ws := geoproc.NewWorkspace(label, wsOpts...)
	defer func() {
		if rerr := ws.Release(); rerr != nil && err == nil {
			res, err = nil, fmt.Errorf("failed to release workspace for %s: %w", label, rerr)
		}
	}()
	rn := &run{c: c, ws: ws}

	// 1-2. footprints and their overlap
	f1, err := c.proc.Footprint(r1)
	if err != nil {
		return nil, &DelegateFailure{Op: "footprint", Err: err}
	}
	if err := rn.keep("domain1", f1); err != nil {
		return nil, err
	}
	f2, err := c.proc.Footprint(r2)
	if err != nil {
		return nil, &DelegateFailure{Op: "footprint", Err: err}
	}
	if err := rn.keep("domain2", f2); err != nil {
		return nil, err
	}
	overlap, err := c.proc.Intersect(f1, f2)
	if errors.Is(err, raster.ErrNoOverlap) {
		return nil, &InputError{Reason: raster.ErrNoOverlap.Error()}
	}
	if err != nil {
		return nil, &DelegateFailure{Op: "intersect", Err: err}
	}
	if err := rn.keep("intersect", overlap); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 3. crop both rasters to the overlap
	m1, err := c.proc.Mask(r1, overlap)
	if errors.Is(err, raster.ErrNoOverlap) {
		return nil, &InputError{Reason: "raster_1 has no valid cells in the overlap", Err: err}
	}
	if err != nil {
		return nil, &DelegateFailure{Op: "mask", Err: err}
	}
	if err := rn.keep("extract1", m1); err != nil {
		return nil, err
	}
	m2, err := c.proc.Mask(r2, overlap)
	if errors.Is(err, raster.ErrNoOverlap) {
		return nil, &InputError{Reason: "raster_2 has no valid cells in the overlap", Err: err}
	}
	if err != nil {
		return nil, &DelegateFailure{Op: "mask", Err: err}
	}
	if err := rn.keep("extract2", m2); err != nil {
		return nil, err
	}

	// 4. d = r1' - r2'
	diff, err := c.proc.Subtract(m1, m2)
	if err != nil {
		return nil, &DelegateFailure{Op: "subtract", Err: err}
	}
	diffName, err := rn.put("difference", diff)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 5-6. bias, std and the check value
	diffStats, err := c.proc.ZonalStatistics(zs, diff)
	if err != nil {
		return nil, &DelegateFailure{Op: "zonal statistics", Err: err}
	}
	if err := rn.keep("difference_table", diffStats); err != nil {
		return nil, err
	}
	bias, std := c.aggregate(diffStats)
	check := math.Sqrt(std*std + bias*bias)

	// 7-9. RMSE from the zonal totals of d²
	sq, err := c.proc.Square(diff)
	if err != nil {
		return nil, &DelegateFailure{Op: "square", Err: err}
	}
	if _, err := rn.put("square_raster", sq); err != nil {
		return nil, err
	}
	sqStats, err := c.proc.ZonalStatistics(zs, sq)
	if err != nil {
		return nil, &DelegateFailure{Op: "zonal statistics", Err: err}
	}
	if err := rn.keep("square_table", sqStats); err != nil {
		return nil, err
	}
	count, sumSq := zones.Totals(sqStats)
	if count == 0 {
		return nil, &DivisionError{Label: label}
	}
	rmse := math.Sqrt(sumSq / float64(count))

	// 10-11. consistency
	res = &Result{
		Label:        label,
		Unit:         c.opts.Unit,
		Aggregation:  c.opts.Aggregation,
		Bias:         bias,
		Std:          std,
		Check:        check,
		RMSE:         rmse,
		Delta:        math.Abs(rmse - check),
		Count:        count,
		SumSquares:   sumSq,
		Tolerance:    c.opts.Tolerance,
		Zones:        diffStats,
		SquaredZones: sqStats,
	}
	res.Consistent = res.Delta < c.opts.Tolerance
	if !res.Consistent {
		res.Warning = &ConsistencyWarning{Delta: res.Delta, Tolerance: c.opts.Tolerance}
		monitoring.Warnf("[compare] %s: %v", label, res.Warning)
	}

	if c.opts.KeepDifference {
		v, err := ws.Take(diffName)
		if err != nil {
			return nil, fmt.Errorf("failed to retain difference raster: %w", err)
		}
		res.Difference = v.(*raster.Raster)
	}
	monitoring.Logf("[compare] %s: bias=%.3f std=%.3f rmse=%.3f cells=%d", label, bias, std, rmse, count)
	return res, nil
}

func (c *Comparator) aggregate(stats []zones.Stats) (bias, std float64) {
	if c.opts.Aggregation == AggregationPooled {
		bias, std, _ = zones.Pooled(stats)
		return bias, std
	}
	for _, s := range stats {
		bias += s.Mean
		std += s.Std
	}
	return bias, std
}

func checkInputs(r1, r2 *raster.Raster, zs *zones.Partition, label string) error {
	if label == "" {
		return &InputError{Reason: "label is empty"}
	}
	for i, r := range []*raster.Raster{r1, r2} {
		if err := r.Validate(); err != nil {
			return &InputError{Reason: fmt.Sprintf("raster_%d", i+1), Err: err}
		}
		if r.ValidCount() == 0 {
			return &InputError{Reason: fmt.Sprintf("raster_%d has no valid cells", i+1)}
		}
	}
	if err := zs.Validate(); err != nil {
		return &InputError{Reason: "zone partition", Err: err}
	}
	return nil
}

// keep stores v in the workspace.
func (rn *run) keep(kind string, v any) error {
	_, err := rn.put(kind, v)
	return err
}

// put stores v and, when configured, spills rasters to the scratch directory.
func (rn *run) put(kind string, v any) (string, error) {
	name, err := rn.ws.Put(kind, v)
	if err != nil {
		return "", &DelegateFailure{Op: "store " + kind, Err: err}
	}
	if _, ok := v.(*raster.Raster); ok && rn.c.opts.SpillIntermediates {
		if _, err := rn.ws.Spill(name); err != nil {
			return "", &DelegateFailure{Op: "spill " + kind, Err: err}
		}
	}
	return name, nil
}
