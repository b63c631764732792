package units

import (
	"math"
	"testing"
)

func TestConvertAngle(t *testing.T) {
	tests := []struct {
		name     string
		deg      float64
		unit     string
		expected float64
	}{
		{"180 deg to rad", 180, Radians, math.Pi},
		{"-90 deg to rad", -90, Radians, -math.Pi / 2},
		{"30 deg to deg", 30, Degrees, 30},
		{"unknown units default to deg", 30, "grad", 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConvertAngle(tt.deg, tt.unit); math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("ConvertAngle(%f, %s) = %f, want %f", tt.deg, tt.unit, got, tt.expected)
			}
		})
	}
}

func TestConvertLength(t *testing.T) {
	tests := []struct {
		name     string
		mm       float64
		unit     string
		expected float64
	}{
		{"1000 mm to m", 1000, Metres, 1},
		{"304 mm to cm", 304, Centimetres, 30.4},
		{"15 mm to mm", 15, Millimetres, 15},
		{"unknown units default to mm", 15, "in", 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConvertLength(tt.mm, tt.unit); math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("ConvertLength(%f, %s) = %f, want %f", tt.mm, tt.unit, got, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	for _, u := range ValidAngleUnits {
		if !IsValidAngle(u) {
			t.Errorf("IsValidAngle(%q) = false", u)
		}
	}
	for _, u := range ValidLengthUnits {
		if !IsValidLength(u) {
			t.Errorf("IsValidLength(%q) = false", u)
		}
	}
	if IsValidAngle("mm") || IsValidLength("deg") || IsValidAngle("") {
		t.Error("unit families must not overlap")
	}
}

func TestValidUnitsStrings(t *testing.T) {
	if got := GetValidAngleUnitsString(); got != "deg, rad" {
		t.Errorf("GetValidAngleUnitsString() = %q", got)
	}
	if got := GetValidLengthUnitsString(); got != "mm, cm, m" {
		t.Errorf("GetValidLengthUnitsString() = %q", got)
	}
}
