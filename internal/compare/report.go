package compare

import (
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/raster.report/internal/units"
)

// WriteReport writes the human-readable summary of r: the bias, standard
// deviation, check value and RMSE lines, each to three decimals, followed by
// the pass/fail consistency line.
func (r *Result) WriteReport(w io.Writer) error {
	lines := []string{
		fmt.Sprintf("The bias for %s is %.3f %s.", r.Label, r.Bias, r.Unit),
		fmt.Sprintf("The standard deviation for %s is %.3f %s.", r.Label, r.Std, r.Unit),
		fmt.Sprintf("The square root of the square standard deviation plus the square mean for %s is %.3f %s.", r.Label, r.Check, r.Unit),
		fmt.Sprintf("The RMSE for %s is %.3f %s.", r.Label, r.RMSE, r.Unit),
	}
	verdict := "All good!"
	if !r.Consistent {
		verdict = "No good!"
	}
	lines = append(lines, fmt.Sprintf("%s RMSE minus square root of square mean plus square standard deviation is %.3f %s.",
		verdict, r.Delta, units.Abbrev(r.Unit)))

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	return nil
}

// Report returns the WriteReport text.
func (r *Result) Report() string {
	var b strings.Builder
	_ = r.WriteReport(&b)
	return b.String()
}
