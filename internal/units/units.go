// Package units provides shared constants, validation and conversion for the
// linear units that raster values and report lines are expressed in.
package units

import "strings"

// Unit constants
const (
	Meters       = "meters"
	Centimeters  = "centimeters"
	Feet         = "feet"
	USSurveyFeet = "us_survey_feet"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Meters, Centimeters, Feet, USSurveyFeet}

// metres per unit
var toMeters = map[string]float64{
	Meters:       1,
	Centimeters:  0.01,
	Feet:         0.3048,
	USSurveyFeet: 1200.0 / 3937.0,
}

var abbrev = map[string]string{
	Meters:       "m",
	Centimeters:  "cm",
	Feet:         "ft",
	USSurveyFeet: "ftUS",
}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	_, ok := toMeters[unit]
	return ok
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// Abbrev returns the short symbol for unit ("m" for meters). Unknown units are
// returned unchanged.
func Abbrev(unit string) string {
	if a, ok := abbrev[unit]; ok {
		return a
	}
	return unit
}

// ConvertLength converts v from one linear unit to another. Unknown units are
// treated as meters.
func ConvertLength(v float64, from, to string) float64 {
	if from == to {
		return v
	}
	f, ok := toMeters[from]
	if !ok {
		f = 1
	}
	t, ok := toMeters[to]
	if !ok {
		t = 1
	}
	return v * f / t
}
