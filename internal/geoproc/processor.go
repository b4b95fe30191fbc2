// Package geoproc provides the geoprocessing capability that the comparison
// and datum tools delegate to: raster footprints, polygon intersection,
// buffering and erasing, masking, cell-wise raster algebra and zonal
// statistics. Processor is the boundary; Local implements it in-process.
//
// Intermediate results live in a Workspace, which names them without
// collisions and releases them together.
package geoproc

import (
	"errors"
	"fmt"

	"github.com/banshee-data/raster.report/internal/raster"
	"github.com/banshee-data/raster.report/internal/zones"
	"github.com/ctessum/geom"
)

// Processor is the set of geoprocessing operations the tools are built on.
// Implementations must not retain or modify their inputs.
type Processor interface {
	// Footprint returns the polygon covering r's extent.
	Footprint(r *raster.Raster) (Region, error)
	// Intersect returns the overlap of a and b, or raster.ErrNoOverlap.
	Intersect(a, b Region) (Region, error)
	// Buffer returns the area within distance of g, g included.
	Buffer(g geom.Polygonal, distance float64) (Region, error)
	// Erase returns base with hole removed.
	Erase(base, hole Region) (Region, error)
	// Mask crops r to region's bounds and drops cells whose centre is outside region.
	Mask(r *raster.Raster, region Region) (*raster.Raster, error)
	// Subtract returns a - b on a's grid.
	Subtract(a, b *raster.Raster) (*raster.Raster, error)
	// Square returns r² cell by cell.
	Square(r *raster.Raster) (*raster.Raster, error)
	// Calculate returns Σ weights[i]*rs[i] on the first raster's grid.
	Calculate(weights []float64, rs ...*raster.Raster) (*raster.Raster, error)
	// ZonalStatistics returns one record per zone, in partition order.
	ZonalStatistics(zs *zones.Partition, r *raster.Raster) ([]zones.Stats, error)
}

// Local runs every operation in-process.
type Local struct{}

// NewLocal returns the in-process Processor.
func NewLocal() *Local { return &Local{} }

var _ Processor = (*Local)(nil)

// Footprint returns r's extent as a polygon.
func (*Local) Footprint(r *raster.Raster) (Region, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("footprint: %w", err)
	}
	return Polygon{r.Bounds()}, nil
}

// Intersect returns the overlap of a and b. Two polygons intersect
// geometrically; any other pairing yields a lazy Intersection.
func (*Local) Intersect(a, b Region) (Region, error) {
	if a == nil || b == nil {
		return nil, errors.New("intersect: nil region")
	}
	pa, okA := a.(Polygon)
	pb, okB := b.(Polygon)
	if okA && okB {
		if !overlaps(pa.Bounds(), pb.Bounds()) {
			return nil, raster.ErrNoOverlap
		}
		if ba, ok := pa.Polygonal.(*geom.Bounds); ok {
			if bb, ok := pb.Polygonal.(*geom.Bounds); ok {
				return Polygon{boundsOverlap(ba, bb)}, nil
			}
		}
		g := pa.Intersection(pb.Polygonal)
		if g == nil || g.Area() <= 0 {
			return nil, raster.ErrNoOverlap
		}
		return Polygon{g}, nil
	}
	x := Intersection{A: a, B: b}
	if !overlaps(a.Bounds(), b.Bounds()) {
		return nil, raster.ErrNoOverlap
	}
	return x, nil
}

// Buffer returns the planar buffer of g.
func (*Local) Buffer(g geom.Polygonal, distance float64) (Region, error) {
	if g == nil {
		return nil, errors.New("buffer: nil geometry")
	}
	if distance < 0 {
		return nil, fmt.Errorf("buffer: negative distance %v", distance)
	}
	return Buffered{Source: g, Distance: distance}, nil
}

// Erase returns base minus hole.
func (*Local) Erase(base, hole Region) (Region, error) {
	if base == nil {
		return nil, errors.New("erase: nil base region")
	}
	if hole == nil {
		return base, nil
	}
	return Erased{Base: base, Hole: hole}, nil
}

// Mask crops r to region and drops cells whose centre falls outside it.
func (*Local) Mask(r *raster.Raster, region Region) (*raster.Raster, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("mask: %w", err)
	}
	if region == nil {
		return nil, errors.New("mask: nil region")
	}
	keep := region.Contains
	if p, ok := region.(Polygon); ok {
		if _, ok := p.Polygonal.(*geom.Bounds); ok {
			keep = nil // every cell of the crop overlaps the box
		}
	}
	return raster.Mask(r, region.Bounds(), keep)
}

// Subtract returns a - b. b is resampled onto a's grid when they differ.
func (*Local) Subtract(a, b *raster.Raster) (*raster.Raster, error) {
	if err := validateAll(a, b); err != nil {
		return nil, fmt.Errorf("subtract: %w", err)
	}
	return raster.Subtract(a, align(b, a))
}

// Square returns r².
func (*Local) Square(r *raster.Raster) (*raster.Raster, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("square: %w", err)
	}
	return raster.Square(r), nil
}

// Calculate returns the weighted sum of rs, resampled onto rs[0]'s grid.
func (*Local) Calculate(weights []float64, rs ...*raster.Raster) (*raster.Raster, error) {
	if err := validateAll(rs...); err != nil {
		return nil, fmt.Errorf("calculate: %w", err)
	}
	aligned := make([]*raster.Raster, len(rs))
	for i, r := range rs {
		aligned[i] = align(r, rs[0])
	}
	return raster.Combine(weights, aligned...)
}

// ZonalStatistics returns the per-zone statistics of r.
func (*Local) ZonalStatistics(zs *zones.Partition, r *raster.Raster) ([]zones.Stats, error) {
	if err := zs.Validate(); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("zonal statistics: %w", err)
	}
	return zones.Statistics(zs, r), nil
}

func validateAll(rs ...*raster.Raster) error {
	if len(rs) == 0 {
		return errors.New("no rasters")
	}
	for i, r := range rs {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("raster %d: %w", i, err)
		}
	}
	return nil
}

func align(r, like *raster.Raster) *raster.Raster {
	if raster.SameGrid(r, like) {
		return r
	}
	return raster.Resample(r, like)
}

func overlaps(a, b *geom.Bounds) bool {
	return a.Min.X < b.Max.X && b.Min.X < a.Max.X && a.Min.Y < b.Max.Y && b.Min.Y < a.Max.Y
}

func boundsOverlap(a, b *geom.Bounds) *geom.Bounds {
	x := Intersection{A: Polygon{a}, B: Polygon{b}}
	return x.Bounds()
}
