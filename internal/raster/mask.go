package raster

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// snap tolerance, as a fraction of a cell, for bounds that fall on cell edges.
const edgeTolerance = 1e-6

// Crop returns the sub-grid of r whose cells overlap b, aligned to r's grid.
// Cells keep their values; nothing is set to no-data.
func Crop(r *Raster, b *geom.Bounds) (*Raster, error) {
	if b == nil {
		return nil, fmt.Errorf("crop %v: nil bounds", r)
	}
	c0 := int(math.Floor((b.Min.X-r.XLL)/r.CellSize + edgeTolerance))
	c1 := int(math.Ceil((b.Max.X-r.XLL)/r.CellSize - edgeTolerance))
	// rows counted from the bottom of the grid
	b0 := int(math.Floor((b.Min.Y-r.YLL)/r.CellSize + edgeTolerance))
	b1 := int(math.Ceil((b.Max.Y-r.YLL)/r.CellSize - edgeTolerance))

	c0, c1 = clamp(c0, 0, r.Cols), clamp(c1, 0, r.Cols)
	b0, b1 = clamp(b0, 0, r.Rows), clamp(b1, 0, r.Rows)
	if c1 <= c0 || b1 <= b0 {
		return nil, ErrNoOverlap
	}

	out := &Raster{
		XLL:      r.XLL + float64(c0)*r.CellSize,
		YLL:      r.YLL + float64(b0)*r.CellSize,
		CellSize: r.CellSize,
		Rows:     b1 - b0,
		Cols:     c1 - c0,
		NoData:   r.NoData,
		SRS:      r.SRS,
	}
	out.Values = make([]float64, out.Rows*out.Cols)
	top := r.Rows - b1 // first source row
	for row := 0; row < out.Rows; row++ {
		src := r.Values[(top+row)*r.Cols+c0 : (top+row)*r.Cols+c1]
		copy(out.Values[row*out.Cols:(row+1)*out.Cols], src)
	}
	return out, nil
}

// Mask crops r to bounds and sets every cell whose centre fails keep to
// no-data. It returns ErrNoOverlap when no valid cell survives.
func Mask(r *Raster, bounds *geom.Bounds, keep func(geom.Point) bool) (*Raster, error) {
	out, err := Crop(r, bounds)
	if err != nil {
		return nil, err
	}
	kept := 0
	for row := 0; row < out.Rows; row++ {
		for col := 0; col < out.Cols; col++ {
			i := out.Index(row, col)
			if out.IsNoData(out.Values[i]) {
				continue
			}
			if keep != nil && !keep(out.CellCenter(row, col)) {
				out.Values[i] = out.NoData
				continue
			}
			kept++
		}
	}
	if kept == 0 {
		return nil, ErrNoOverlap
	}
	return out, nil
}

// Resample returns a raster on like's grid whose cells take the value of the
// src cell containing their centre (nearest neighbour). Cells outside src, or
// over src no-data, are no-data in the result.
func Resample(src, like *Raster) *Raster {
	if SameGrid(src, like) {
		out := src.Clone()
		out.NoData = like.NoData
		for i, v := range out.Values {
			if src.IsNoData(v) {
				out.Values[i] = like.NoData
			}
		}
		return out
	}
	out := NewLike(like)
	if out.SRS == "" {
		out.SRS = src.SRS
	}
	for row := 0; row < like.Rows; row++ {
		for col := 0; col < like.Cols; col++ {
			c := like.CellCenter(row, col)
			sr, sc, ok := src.CellAt(c.X, c.Y)
			if !ok {
				continue
			}
			if v := src.At(sr, sc); !src.IsNoData(v) {
				out.Set(row, col, v)
			}
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
