package compare

import (
	"fmt"

	"github.com/banshee-data/raster.report/internal/fsutil"
	"github.com/banshee-data/raster.report/internal/units"
)

// DefaultTolerance is the consistency threshold, in the raster's linear unit.
const DefaultTolerance = 0.01

// Aggregation selects how per-zone statistics combine into bias and std.
type Aggregation string

const (
	// AggregationAdditive sums the per-zone means and standard deviations.
	AggregationAdditive Aggregation = "additive"
	// AggregationPooled uses a single mean and population standard deviation
	// over every valid cell in every zone.
	AggregationPooled Aggregation = "pooled"
)

// Valid reports whether a names a known aggregation.
func (a Aggregation) Valid() bool {
	return a == AggregationAdditive || a == AggregationPooled
}

// Options configures a Comparator.
type Options struct {
	Tolerance   float64
	Unit        string
	Aggregation Aggregation
	// KeepDifference detaches the difference raster from the scratch
	// workspace and returns it in Result.Difference.
	KeepDifference bool
	// SpillIntermediates writes each intermediate raster under ScratchDir.
	SpillIntermediates bool
	ScratchDir         string
	FS                 fsutil.FileSystem
}

// DefaultOptions returns additive aggregation, meters and a 0.01 tolerance.
func DefaultOptions() Options {
	return Options{
		Tolerance:   DefaultTolerance,
		Unit:        units.Meters,
		Aggregation: AggregationAdditive,
	}
}

// Validate checks option values.
func (o Options) Validate() error {
	if !(o.Tolerance > 0) {
		return fmt.Errorf("tolerance must be positive, got %v", o.Tolerance)
	}
	if !units.IsValid(o.Unit) {
		return fmt.Errorf("invalid unit %q, must be one of: %s", o.Unit, units.GetValidUnitsString())
	}
	if !o.Aggregation.Valid() {
		return fmt.Errorf("invalid aggregation %q, must be %q or %q", o.Aggregation, AggregationAdditive, AggregationPooled)
	}
	if o.SpillIntermediates && o.ScratchDir == "" {
		return fmt.Errorf("spilling intermediates needs a scratch directory")
	}
	return nil
}
