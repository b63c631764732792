package carm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// LPSAxis names a logical anatomical axis.
type LPSAxis string

const (
	AxisLeft      LPSAxis = "Left"
	AxisPosterior LPSAxis = "Posterior"
	AxisSuperior  LPSAxis = "Superior"
	AxisSagittal  LPSAxis = "Sagittal"
	AxisCoronal   LPSAxis = "Coronal"
	AxisAxial     LPSAxis = "Axial"
)

// AxisRef locates a logical axis in the volume's index space: the column of
// the orientation matrix and the sign of that column along the axis.
type AxisRef struct {
	Index int     `json:"index"`
	Sign  float64 `json:"sign"`
}

// LPSOrientation maps logical axis names to index-space axes.
type LPSOrientation map[LPSAxis]AxisRef

// IdentityLPSOrientation is the mapping of a volume acquired in LPS order.
// Sagittal slices stack along Left, Coronal along Posterior, Axial along
// Superior.
func IdentityLPSOrientation() LPSOrientation {
	return LPSOrientation{
		AxisLeft:      {Index: 0, Sign: 1},
		AxisPosterior: {Index: 1, Sign: 1},
		AxisSuperior:  {Index: 2, Sign: 1},
		AxisSagittal:  {Index: 0, Sign: 1},
		AxisCoronal:   {Index: 1, Sign: 1},
		AxisAxial:     {Index: 2, Sign: 1},
	}
}

// LPSOrientationFromMatrix derives the mapping from a row-major direction
// cosine matrix whose columns are the index axes in world LPS space. Each
// world axis is assigned the index axis with the dominant cosine.
func LPSOrientationFromMatrix(m [9]float64) LPSOrientation {
	o := make(LPSOrientation, 6)
	names := [3][2]LPSAxis{
		{AxisLeft, AxisSagittal},
		{AxisPosterior, AxisCoronal},
		{AxisSuperior, AxisAxial},
	}
	for world := 0; world < 3; world++ {
		best, bestAbs := 0, -1.0
		for col := 0; col < 3; col++ {
			if a := math.Abs(m[world*3+col]); a > bestAbs {
				best, bestAbs = col, a
			}
		}
		sign := 1.0
		if m[world*3+best] < 0 {
			sign = -1
		}
		ref := AxisRef{Index: best, Sign: sign}
		o[names[world][0]] = ref
		o[names[world][1]] = ref
	}
	return o
}

// VolumeMetadata describes the scanned volume the gantry is positioned over.
// It is supplied by an external provider and never modified by the core.
type VolumeMetadata struct {
	Dimensions [3]int     `json:"dimensions"`
	Spacing    [3]float64 `json:"spacing"`
	// WorldBounds is xmin, xmax, ymin, ymax, zmin, zmax in world mm.
	WorldBounds [6]float64 `json:"world_bounds"`
	// Orientation is a row-major 3x3 direction cosine matrix.
	Orientation    [9]float64     `json:"orientation"`
	LPSOrientation LPSOrientation `json:"lps_orientation"`
}

// IdentityVolume returns metadata for a volume of the given size centred on
// the world origin with identity orientation.
func IdentityVolume(dims [3]int, spacing [3]float64) VolumeMetadata {
	var bounds [6]float64
	for i := 0; i < 3; i++ {
		half := float64(dims[i]) * spacing[i] / 2
		bounds[2*i] = -half
		bounds[2*i+1] = half
	}
	return VolumeMetadata{
		Dimensions:     dims,
		Spacing:        spacing,
		WorldBounds:    bounds,
		Orientation:    [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		LPSOrientation: IdentityLPSOrientation(),
	}
}

// Isocenter returns the centre of the world bounds.
func (v VolumeMetadata) Isocenter() r3.Vec {
	b := v.WorldBounds
	return r3.Vec{
		X: (b[0] + b[1]) / 2,
		Y: (b[2] + b[3]) / 2,
		Z: (b[4] + b[5]) / 2,
	}
}

// Extent returns the world-space size of the bounds along each axis.
func (v VolumeMetadata) Extent() r3.Vec {
	b := v.WorldBounds
	return r3.Vec{X: b[1] - b[0], Y: b[3] - b[2], Z: b[5] - b[4]}
}

// IndexAxis returns the index-space axis for a logical axis name. Metadata
// without an LPS mapping falls back to identity.
func (v VolumeMetadata) IndexAxis(axis LPSAxis) (AxisRef, bool) {
	o := v.LPSOrientation
	if len(o) == 0 {
		o = IdentityLPSOrientation()
	}
	ref, ok := o[axis]
	return ref, ok
}

// Validate reports structural problems: non-positive spacing, inverted
// bounds, or an orientation that is not a proper rotation.
func (v VolumeMetadata) Validate() error {
	for i := 0; i < 3; i++ {
		if v.Dimensions[i] < 0 {
			return fmt.Errorf("dimension %d is negative: %d", i, v.Dimensions[i])
		}
		if v.Spacing[i] <= 0 {
			return fmt.Errorf("spacing %d must be positive, got %g", i, v.Spacing[i])
		}
		if v.WorldBounds[2*i] > v.WorldBounds[2*i+1] {
			return fmt.Errorf("world bounds axis %d inverted: min %g > max %g",
				i, v.WorldBounds[2*i], v.WorldBounds[2*i+1])
		}
	}
	m := v.Orientation
	det := m[0]*(m[4]*m[8]-m[5]*m[7]) - m[1]*(m[3]*m[8]-m[5]*m[6]) + m[2]*(m[3]*m[7]-m[4]*m[6])
	if math.Abs(math.Abs(det)-1) > orientationTolerance {
		return fmt.Errorf("orientation is not orthonormal (det=%g)", det)
	}
	for name, ref := range v.LPSOrientation {
		if ref.Index < 0 || ref.Index > 2 {
			return fmt.Errorf("lps axis %s has index %d outside [0,2]", name, ref.Index)
		}
	}
	return nil
}

const orientationTolerance = 0.01
