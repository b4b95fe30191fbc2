// Package testutil provides shared raster and zone fixtures for tests.
package testutil

import (
	"testing"

	"github.com/banshee-data/raster.report/internal/raster"
	"github.com/banshee-data/raster.report/internal/zones"
	"github.com/ctessum/geom"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Box returns the axis-aligned rectangle [x0,x1]×[y0,y1].
func Box(x0, y0, x1, y1 float64) *geom.Bounds {
	return &geom.Bounds{Min: geom.Point{X: x0, Y: y0}, Max: geom.Point{X: x1, Y: y1}}
}

// Square returns the rectangle [x0,x1]×[y0,y1] as a closed polygon ring.
func Square(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0},
	}}
}

// Constant returns a rows×cols raster of unit cells at (xll, yll) with every
// cell set to v.
func Constant(t testing.TB, rows, cols int, xll, yll, v float64) *raster.Raster {
	t.Helper()
	r, err := raster.New(rows, cols, xll, yll, 1, raster.DefaultNoData)
	AssertNoError(t, err)
	for i := range r.Values {
		r.Values[i] = v
	}
	return r
}

// Grid returns a rows×cols raster of unit cells at the origin holding values
// in row-major order, top row first.
func Grid(t testing.TB, rows, cols int, values ...float64) *raster.Raster {
	t.Helper()
	if len(values) != rows*cols {
		t.Fatalf("Grid: got %d values, want %d", len(values), rows*cols)
	}
	r, err := raster.New(rows, cols, 0, 0, 1, raster.DefaultNoData)
	AssertNoError(t, err)
	copy(r.Values, values)
	return r
}

// Zones builds a partition of rectangles; ids are assigned 1, 2, ... in order.
func Zones(t testing.TB, boxes ...*geom.Bounds) *zones.Partition {
	t.Helper()
	zs := make([]*zones.Zone, len(boxes))
	for i, b := range boxes {
		zs[i] = &zones.Zone{ID: i + 1, Polygonal: b}
	}
	p, err := zones.NewPartition(zs...)
	AssertNoError(t, err)
	return p
}
