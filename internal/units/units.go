// Package units provides shared constants and conversions for the angle and
// length units the API can report in. Stored values are degrees and
// millimetres.
package units

import (
	"math"
	"strings"
)

// Angle units
const (
	Degrees = "deg"
	Radians = "rad"
)

// Length units
const (
	Millimetres = "mm"
	Centimetres = "cm"
	Metres      = "m"
)

// ValidAngleUnits contains all valid angle unit values.
var ValidAngleUnits = []string{Degrees, Radians}

// ValidLengthUnits contains all valid length unit values.
var ValidLengthUnits = []string{Millimetres, Centimetres, Metres}

// IsValidAngle checks if unit is a known angle unit.
func IsValidAngle(unit string) bool {
	return contains(ValidAngleUnits, unit)
}

// IsValidLength checks if unit is a known length unit.
func IsValidLength(unit string) bool {
	return contains(ValidLengthUnits, unit)
}

// GetValidAngleUnitsString returns the angle units for error messages.
func GetValidAngleUnitsString() string {
	return strings.Join(ValidAngleUnits, ", ")
}

// GetValidLengthUnitsString returns the length units for error messages.
func GetValidLengthUnitsString() string {
	return strings.Join(ValidLengthUnits, ", ")
}

// ConvertAngle converts degrees to the target unit. Unknown units return
// degrees.
func ConvertAngle(deg float64, target string) float64 {
	switch target {
	case Radians:
		return deg * math.Pi / 180
	default:
		return deg
	}
}

// ConvertLength converts millimetres to the target unit. Unknown units
// return millimetres.
func ConvertLength(mm float64, target string) float64 {
	switch target {
	case Centimetres:
		return mm / 10
	case Metres:
		return mm / 1000
	default:
		return mm
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
