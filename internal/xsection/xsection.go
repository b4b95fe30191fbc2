// Package xsection turns cross-section lines into elevation profiles: it
// thins dense line sets, places points at a fixed spacing along each line,
// samples a DEM under them and writes one CSV per profile.
package xsection

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/raster.report/internal/raster"
	"github.com/ctessum/geom"
)

// DefaultThinEvery keeps one feature in fifteen.
const DefaultThinEvery = 15

// DefaultSpacing is the distance between profile points, in map units.
const DefaultSpacing = 1.0

// Feature is one row of a line or point layer.
type Feature struct {
	ID   int
	Geom geom.Geom
}

// Thin keeps the features whose ID is a multiple of every and renumbers the
// survivors 1, 2, ... in their original order. every < 2 keeps everything.
func Thin(features []Feature, every int) []Feature {
	var out []Feature
	for _, f := range features {
		if every < 2 || f.ID%every == 0 {
			out = append(out, Feature{ID: len(out) + 1, Geom: f.Geom})
		}
	}
	return out
}

// Point is one station of a profile.
type Point struct {
	X, Y     float64
	Z        float64 // NaN until sampled, and where the DEM has no value
	Distance float64 // chainage from the start of the line
}

// Profile is the sampled station list of one line.
type Profile struct {
	ID     int
	Points []Point
}

// PointsAlongLine places a point every spacing units from the start of line,
// plus one on each end point.
func PointsAlongLine(line geom.LineString, spacing float64) ([]Point, error) {
	if !(spacing > 0) {
		return nil, fmt.Errorf("spacing must be positive, got %v", spacing)
	}
	if len(line) < 2 {
		return nil, errors.New("line needs at least two vertices")
	}

	pts := []Point{{X: line[0].X, Y: line[0].Y, Z: math.NaN()}}
	next := spacing
	walked := 0.0
	for i := 0; i+1 < len(line); i++ {
		a, b := line[i], line[i+1]
		seg := math.Hypot(b.X-a.X, b.Y-a.Y)
		for seg > 0 && next < walked+seg {
			t := (next - walked) / seg
			pts = append(pts, Point{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y), Z: math.NaN(), Distance: next})
			next += spacing
		}
		walked += seg
	}
	end := line[len(line)-1]
	if last := pts[len(pts)-1]; walked-last.Distance > 1e-9 {
		pts = append(pts, Point{X: end.X, Y: end.Y, Z: math.NaN(), Distance: walked})
	}
	return pts, nil
}

// Sample sets the Z of every point to the bilinear DEM value under it.
func Sample(pts []Point, dem *raster.Raster) {
	for i := range pts {
		pts[i].Z = Bilinear(dem, pts[i].X, pts[i].Y)
	}
}

// Bilinear interpolates dem at (x, y) between the four surrounding cell
// centres. Within half a cell of the grid edge the edge cells are used.
// It returns NaN outside the grid or when any contributing cell is no-data.
func Bilinear(dem *raster.Raster, x, y float64) float64 {
	if x < dem.XLL || x > dem.XMax() || y < dem.YLL || y > dem.YMax() {
		return math.NaN()
	}
	fc := clampf((x-dem.XLL)/dem.CellSize-0.5, 0, float64(dem.Cols-1))
	fr := clampf((dem.YMax()-y)/dem.CellSize-0.5, 0, float64(dem.Rows-1))

	c0, r0 := int(math.Floor(fc)), int(math.Floor(fr))
	c1, r1 := min(c0+1, dem.Cols-1), min(r0+1, dem.Rows-1)
	tx, ty := fc-float64(c0), fr-float64(r0)

	v00, v01 := dem.At(r0, c0), dem.At(r0, c1)
	v10, v11 := dem.At(r1, c0), dem.At(r1, c1)
	for _, v := range []float64{v00, v01, v10, v11} {
		if dem.IsNoData(v) {
			return math.NaN()
		}
	}
	top := v00*(1-tx) + v01*tx
	bottom := v10*(1-tx) + v11*tx
	return top*(1-ty) + bottom*ty
}

func clampf(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Profiles samples every line feature of features. Multi-part lines are
// walked part after part with continuous chainage.
func Profiles(features []Feature, dem *raster.Raster, spacing float64) ([]Profile, error) {
	if err := dem.Validate(); err != nil {
		return nil, fmt.Errorf("invalid DEM: %w", err)
	}
	out := make([]Profile, 0, len(features))
	for _, f := range features {
		var parts []geom.LineString
		switch g := f.Geom.(type) {
		case geom.LineString:
			parts = []geom.LineString{g}
		case geom.MultiLineString:
			parts = g
		default:
			return nil, fmt.Errorf("feature %d: geometry %T is not a line", f.ID, f.Geom)
		}

		p := Profile{ID: f.ID}
		offset := 0.0
		for _, part := range parts {
			pts, err := PointsAlongLine(part, spacing)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", f.ID, err)
			}
			for i := range pts {
				pts[i].Distance += offset
			}
			offset = pts[len(pts)-1].Distance
			p.Points = append(p.Points, pts...)
		}
		Sample(p.Points, dem)
		out = append(out, p)
	}
	return out, nil
}
