package units

import (
	"math"
	"testing"
)

func TestConvertLength(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		from, to string
		expected float64
	}{
		{"meters to feet", 1.0, Meters, Feet, 3.28084},
		{"feet to meters", 10.0, Feet, Meters, 3.048},
		{"meters to centimeters", 0.25, Meters, Centimeters, 25},
		{"survey feet to meters", 3937.0, USSurveyFeet, Meters, 1200.0},
		{"same unit", 2.5, Feet, Feet, 2.5},
		{"unknown units default to meters", 2.0, "furlong", Meters, 2.0},
		{"zero", 0, Meters, Feet, 0},
		{"negative bias", -0.5, Meters, Centimeters, -50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertLength(tt.value, tt.from, tt.to)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("ConvertLength(%f, %s, %s) = %f, want %f", tt.value, tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid meters", Meters, true},
		{"valid centimeters", Centimeters, true},
		{"valid feet", Feet, true},
		{"valid survey feet", USSurveyFeet, true},
		{"invalid unit", "invalid", false},
		{"empty string", "", false},
		{"case sensitive", "Meters", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValid(tt.unit)
			if result != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, result, tt.expected)
			}
		})
	}
}

func TestAbbrev(t *testing.T) {
	if got := Abbrev(Meters); got != "m" {
		t.Errorf("Abbrev(meters) = %q, want m", got)
	}
	if got := Abbrev(USSurveyFeet); got != "ftUS" {
		t.Errorf("Abbrev(us_survey_feet) = %q, want ftUS", got)
	}
	if got := Abbrev("leagues"); got != "leagues" {
		t.Errorf("Abbrev(leagues) = %q, want leagues", got)
	}
}

func TestGetValidUnitsString(t *testing.T) {
	want := "meters, centimeters, feet, us_survey_feet"
	if got := GetValidUnitsString(); got != want {
		t.Errorf("GetValidUnitsString() = %q, want %q", got, want)
	}
}
