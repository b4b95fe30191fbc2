package compare

import (
	"github.com/banshee-data/raster.report/internal/raster"
	"github.com/banshee-data/raster.report/internal/units"
	"github.com/banshee-data/raster.report/internal/zones"
)

// Result holds the error metrics of one comparison. Delta is always
// |RMSE - Check| and Consistent is Delta < Tolerance.
type Result struct {
	Label       string      `json:"label"`
	Unit        string      `json:"unit"`
	Aggregation Aggregation `json:"aggregation"`

	Bias  float64 `json:"bias"`
	Std   float64 `json:"std"`
	RMSE  float64 `json:"rmse"`
	Check float64 `json:"check"`
	Delta float64 `json:"delta"`

	Consistent bool                `json:"consistent"`
	Tolerance  float64             `json:"tolerance"`
	Warning    *ConsistencyWarning `json:"-"`

	// Count and SumSquares are the zonal totals of the squared difference.
	Count      int     `json:"count"`
	SumSquares float64 `json:"sum_squares"`

	Zones        []zones.Stats `json:"zones"`
	SquaredZones []zones.Stats `json:"squared_zones"`

	// Difference is set only when Options.KeepDifference is.
	Difference *raster.Raster `json:"-"`
}

// Convert returns a copy of the result expressed in unit. Squared quantities
// scale with the square of the factor. The difference raster is not copied.
func (r *Result) Convert(unit string) *Result {
	out := *r
	out.Difference = nil
	if unit == r.Unit {
		return &out
	}
	k := units.ConvertLength(1, r.Unit, unit)
	out.Unit = unit
	out.Bias *= k
	out.Std *= k
	out.RMSE *= k
	out.Check *= k
	out.Delta *= k
	out.Tolerance *= k
	out.SumSquares *= k * k
	out.Zones = scaleStats(r.Zones, k)
	out.SquaredZones = scaleStats(r.SquaredZones, k*k)
	if r.Warning != nil {
		out.Warning = &ConsistencyWarning{Delta: out.Delta, Tolerance: out.Tolerance}
	}
	return &out
}

func scaleStats(in []zones.Stats, k float64) []zones.Stats {
	out := make([]zones.Stats, len(in))
	for i, s := range in {
		s.Sum *= k
		s.Mean *= k
		s.Std *= k
		s.Min *= k
		s.Max *= k
		out[i] = s
	}
	return out
}
