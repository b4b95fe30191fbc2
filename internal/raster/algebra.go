package raster

import (
	"fmt"
)

// Subtract returns a - b cell by cell. A cell is no-data when either input is.
func Subtract(a, b *Raster) (*Raster, error) {
	return Combine([]float64{1, -1}, a, b)
}

// Square returns r² cell by cell; no-data cells stay no-data.
func Square(r *Raster) *Raster {
	return Apply(r, func(v float64) float64 { return v * v })
}

// Apply returns fn applied to every valid cell of r.
func Apply(r *Raster, fn func(float64) float64) *Raster {
	out := r.Clone()
	for i, v := range out.Values {
		if r.IsNoData(v) {
			out.Values[i] = out.NoData
			continue
		}
		out.Values[i] = fn(v)
	}
	return out
}

// Combine returns Σ weights[i]*rs[i] cell by cell. All rasters must share the
// first raster's grid; a cell is no-data when any input is.
func Combine(weights []float64, rs ...*Raster) (*Raster, error) {
	if len(rs) == 0 {
		return nil, fmt.Errorf("combine: no rasters")
	}
	if len(weights) != len(rs) {
		return nil, fmt.Errorf("combine: %d weights for %d rasters", len(weights), len(rs))
	}
	for i, r := range rs {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("combine: raster %d: %w", i, err)
		}
		if i > 0 && !SameGrid(rs[0], r) {
			return nil, fmt.Errorf("combine: raster %d (%v) vs %v: %w", i, r, rs[0], ErrGridMismatch)
		}
	}

	out := NewLike(rs[0])
	for i := range out.Values {
		sum := 0.0
		valid := true
		for k, r := range rs {
			v := r.Values[i]
			if r.IsNoData(v) {
				valid = false
				break
			}
			sum += weights[k] * v
		}
		if valid {
			out.Values[i] = sum
		}
	}
	return out, nil
}
