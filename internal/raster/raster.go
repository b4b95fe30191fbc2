// Package raster holds a georeferenced grid of cell values and the cell-wise
// operations the comparison and datum tools run over it.
//
// Rows are stored top to bottom (row 0 is the northernmost row), matching the
// ESRI ASCII grid layout. A cell is valid when its value is neither NaN nor the
// raster's no-data value.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// DefaultNoData is the no-data marker used when a grid header omits one.
const DefaultNoData = -9999.0

// MaxCells caps Rows*Cols so grids stay addressable in memory.
const MaxCells = 1 << 30

var (
	// ErrNoOverlap is returned when two rasters, or a raster and a region,
	// share no cells.
	ErrNoOverlap = errors.New("raster domains do not overlap")
	// ErrGridMismatch is returned by cell-wise operations on rasters that do
	// not share a grid.
	ErrGridMismatch = errors.New("rasters do not share a grid")
	// ErrEmpty is returned for rasters without cells.
	ErrEmpty = errors.New("raster has no cells")
)

// Raster is a regular grid of float64 cells.
type Raster struct {
	XLL, YLL float64 // lower-left corner of the grid
	CellSize float64
	Rows     int
	Cols     int
	NoData   float64
	Values   []float64 // row-major, len Rows*Cols
	SRS      string    // spatial reference (WKT or proj4), empty when unknown
}

// New allocates a raster with every cell set to no-data.
func New(rows, cols int, xll, yll, cellSize, noData float64) (*Raster, error) {
	r := &Raster{
		XLL:      xll,
		YLL:      yll,
		CellSize: cellSize,
		Rows:     rows,
		Cols:     cols,
		NoData:   noData,
	}
	if rows > 0 && cols > 0 && fits(rows, cols) {
		r.Values = make([]float64, rows*cols)
		for i := range r.Values {
			r.Values[i] = noData
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewLike allocates a no-data raster on the same grid as like.
func NewLike(like *Raster) *Raster {
	out := &Raster{
		XLL:      like.XLL,
		YLL:      like.YLL,
		CellSize: like.CellSize,
		Rows:     like.Rows,
		Cols:     like.Cols,
		NoData:   like.NoData,
		SRS:      like.SRS,
		Values:   make([]float64, len(like.Values)),
	}
	for i := range out.Values {
		out.Values[i] = out.NoData
	}
	return out
}

// Validate checks the grid geometry and the value slice length.
func (r *Raster) Validate() error {
	if r == nil {
		return errors.New("raster is nil")
	}
	if r.Rows <= 0 || r.Cols <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrEmpty, r.Rows, r.Cols)
	}
	if !fits(r.Rows, r.Cols) {
		return fmt.Errorf("raster %dx%d exceeds %d cells", r.Rows, r.Cols, MaxCells)
	}
	if !(r.CellSize > 0) || math.IsInf(r.CellSize, 0) {
		return fmt.Errorf("cell size must be positive, got %v", r.CellSize)
	}
	if len(r.Values) != r.Rows*r.Cols {
		return fmt.Errorf("raster has %d values, want %d (%dx%d)", len(r.Values), r.Rows*r.Cols, r.Rows, r.Cols)
	}
	return nil
}

func fits(rows, cols int) bool {
	return rows <= MaxCells/cols
}

// Index returns the offset of (row, col) in Values.
func (r *Raster) Index(row, col int) int { return row*r.Cols + col }

// At returns the value stored at (row, col).
func (r *Raster) At(row, col int) float64 { return r.Values[r.Index(row, col)] }

// Set stores v at (row, col).
func (r *Raster) Set(row, col int, v float64) { r.Values[r.Index(row, col)] = v }

// IsNoData reports whether v is the no-data marker (or NaN).
func (r *Raster) IsNoData(v float64) bool {
	return math.IsNaN(v) || v == r.NoData
}

// Valid reports whether the cell at (row, col) holds data.
func (r *Raster) Valid(row, col int) bool {
	return !r.IsNoData(r.At(row, col))
}

// XMax returns the right edge of the grid.
func (r *Raster) XMax() float64 { return r.XLL + float64(r.Cols)*r.CellSize }

// YMax returns the top edge of the grid.
func (r *Raster) YMax() float64 { return r.YLL + float64(r.Rows)*r.CellSize }

// Bounds returns the grid extent. *geom.Bounds is a geom.Polygonal, so the
// result doubles as the raster's footprint polygon.
func (r *Raster) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: r.XLL, Y: r.YLL},
		Max: geom.Point{X: r.XMax(), Y: r.YMax()},
	}
}

// CellCenter returns the coordinates of the centre of (row, col).
func (r *Raster) CellCenter(row, col int) geom.Point {
	return geom.Point{
		X: r.XLL + (float64(col)+0.5)*r.CellSize,
		Y: r.YLL + (float64(r.Rows-row)-0.5)*r.CellSize,
	}
}

// CellAt returns the cell containing (x, y). Points on the right or top edge
// of the grid are outside.
func (r *Raster) CellAt(x, y float64) (row, col int, ok bool) {
	if x < r.XLL || y < r.YLL {
		return 0, 0, false
	}
	col = int(math.Floor((x - r.XLL) / r.CellSize))
	fromBottom := int(math.Floor((y - r.YLL) / r.CellSize))
	if col >= r.Cols || fromBottom >= r.Rows {
		return 0, 0, false
	}
	return r.Rows - 1 - fromBottom, col, true
}

// SameGrid reports whether a and b share origin, cell size and dimensions.
func SameGrid(a, b *Raster) bool {
	const eps = 1e-9
	return a.Rows == b.Rows && a.Cols == b.Cols &&
		math.Abs(a.CellSize-b.CellSize) <= eps*a.CellSize &&
		math.Abs(a.XLL-b.XLL) <= eps*math.Max(1, math.Abs(a.XLL)) &&
		math.Abs(a.YLL-b.YLL) <= eps*math.Max(1, math.Abs(a.YLL))
}

// Clone returns a deep copy of r.
func (r *Raster) Clone() *Raster {
	out := *r
	out.Values = append([]float64(nil), r.Values...)
	return &out
}

// ValidCount returns the number of cells holding data.
func (r *Raster) ValidCount() int {
	n := 0
	for _, v := range r.Values {
		if !r.IsNoData(v) {
			n++
		}
	}
	return n
}

// ValidValues returns the values of every cell holding data, in storage order.
func (r *Raster) ValidValues() []float64 {
	out := make([]float64, 0, len(r.Values))
	for _, v := range r.Values {
		if !r.IsNoData(v) {
			out = append(out, v)
		}
	}
	return out
}

// Each calls fn for every valid cell with its centre and value.
func (r *Raster) Each(fn func(row, col int, centre geom.Point, v float64)) {
	for row := 0; row < r.Rows; row++ {
		for col := 0; col < r.Cols; col++ {
			v := r.At(row, col)
			if r.IsNoData(v) {
				continue
			}
			fn(row, col, r.CellCenter(row, col), v)
		}
	}
}

func (r *Raster) String() string {
	return fmt.Sprintf("raster %dx%d @(%g,%g) cs=%g", r.Rows, r.Cols, r.XLL, r.YLL, r.CellSize)
}
