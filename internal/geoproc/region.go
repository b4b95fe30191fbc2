package geoproc

import (
	"math"

	"github.com/ctessum/geom"
)

// Region is an area that raster cells are tested against by centre point.
type Region interface {
	Bounds() *geom.Bounds
	Contains(p geom.Point) bool
}

// Polygon is a Region backed by a polygon geometry.
type Polygon struct {
	geom.Polygonal
}

// Contains reports whether p is inside the polygon or on its boundary.
func (p Polygon) Contains(pt geom.Point) bool {
	if !inBounds(p.Bounds(), pt) {
		return false
	}
	if _, ok := p.Polygonal.(*geom.Bounds); ok {
		return true
	}
	return pt.Within(p.Polygonal) != geom.Outside
}

// Area returns the polygon area.
func (p Polygon) Area() float64 { return p.Polygonal.Area() }

// Buffered is the set of points within Distance of a polygon, including the
// polygon itself (a full, round-ended planar buffer).
type Buffered struct {
	Source   geom.Polygonal
	Distance float64
}

// Bounds returns the source bounds grown by the buffer distance.
func (b Buffered) Bounds() *geom.Bounds {
	src := b.Source.Bounds()
	return &geom.Bounds{
		Min: geom.Point{X: src.Min.X - b.Distance, Y: src.Min.Y - b.Distance},
		Max: geom.Point{X: src.Max.X + b.Distance, Y: src.Max.Y + b.Distance},
	}
}

// Contains reports whether p is inside the source or within Distance of its
// boundary.
func (b Buffered) Contains(p geom.Point) bool {
	if !inBounds(b.Bounds(), p) {
		return false
	}
	if (Polygon{b.Source}).Contains(p) {
		return true
	}
	return distanceToBoundary(b.Source, p) <= b.Distance
}

// Erased is Base with Hole removed.
type Erased struct {
	Base Region
	Hole Region
}

// Bounds returns the bounds of Base.
func (e Erased) Bounds() *geom.Bounds { return e.Base.Bounds() }

// Contains reports whether p is in Base and not in Hole.
func (e Erased) Contains(p geom.Point) bool {
	return e.Base.Contains(p) && !e.Hole.Contains(p)
}

// Intersection is the overlap of regions that cannot be reduced to a single
// polygon (buffers and erased regions).
type Intersection struct {
	A, B Region
}

// Bounds returns the overlap of the operand bounds.
func (x Intersection) Bounds() *geom.Bounds {
	a, b := x.A.Bounds(), x.B.Bounds()
	return &geom.Bounds{
		Min: geom.Point{X: math.Max(a.Min.X, b.Min.X), Y: math.Max(a.Min.Y, b.Min.Y)},
		Max: geom.Point{X: math.Min(a.Max.X, b.Max.X), Y: math.Min(a.Max.Y, b.Max.Y)},
	}
}

// Contains reports whether p is in both operands.
func (x Intersection) Contains(p geom.Point) bool {
	return x.A.Contains(p) && x.B.Contains(p)
}

func inBounds(b *geom.Bounds, p geom.Point) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// distanceToBoundary returns the distance from p to the nearest edge of g.
func distanceToBoundary(g geom.Polygonal, p geom.Point) float64 {
	best := math.Inf(1)
	for _, poly := range g.Polygons() {
		for _, ring := range poly {
			for i := 0; i+1 < len(ring); i++ {
				if d := segmentDistance(p, ring[i], ring[i+1]); d < best {
					best = d
				}
			}
			if n := len(ring); n > 1 && ring[0] != ring[n-1] {
				if d := segmentDistance(p, ring[n-1], ring[0]); d < best {
					best = d
				}
			}
		}
	}
	return best
}

func segmentDistance(p, a, b geom.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}
