package compare

import (
	"errors"
	"fmt"
)

var (
	// ErrInput matches every *InputError.
	ErrInput = errors.New("invalid comparison input")
	// ErrDivision matches every *DivisionError.
	ErrDivision = errors.New("no valid cells to divide by")
)

// InputError reports a missing or unusable input: a nil or empty raster, an
// empty partition, an empty label, or rasters that do not overlap.
type InputError struct {
	Reason string
	Err    error // underlying cause, may be nil
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid input: %s: %v", e.Reason, e.Err)
	}
	return "invalid input: " + e.Reason
}

// Is reports ErrInput.
func (e *InputError) Is(target error) bool { return target == ErrInput }

func (e *InputError) Unwrap() error { return e.Err }

// DivisionError is returned when no zone holds a valid overlapping cell, so
// RMSE has no denominator.
type DivisionError struct {
	Label string
}

func (e *DivisionError) Error() string {
	return fmt.Sprintf("cannot compute RMSE for %s: zero valid cells across all zones", e.Label)
}

// Is reports ErrDivision.
func (e *DivisionError) Is(target error) bool { return target == ErrDivision }

// DelegateFailure wraps an error from a geoprocessing operation.
type DelegateFailure struct {
	Op  string
	Err error
}

func (e *DelegateFailure) Error() string {
	return fmt.Sprintf("geoprocessing %s failed: %v", e.Op, e.Err)
}

func (e *DelegateFailure) Unwrap() error { return e.Err }

// ConsistencyWarning marks a result whose RMSE disagrees with
// sqrt(bias² + std²) by Tolerance or more. It is carried in Result.Warning and
// never returned as an error.
type ConsistencyWarning struct {
	Delta     float64
	Tolerance float64
}

func (w *ConsistencyWarning) Error() string {
	return fmt.Sprintf("inconsistent statistics: |RMSE - sqrt(bias² + std²)| = %.3f, tolerance %.3g", w.Delta, w.Tolerance)
}
