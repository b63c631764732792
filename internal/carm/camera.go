package carm

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultBorderFactor widens the view angle so the detector edge is not
// clipped at the viewport boundary.
const DefaultBorderFactor = 1.1

// Viewport is the render surface size in pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Aspect returns width/height. A viewport without height is treated as
// square.
func (v Viewport) Aspect() float64 {
	if v.Height <= 0 {
		return 1
	}
	return float64(v.Width) / float64(v.Height)
}

// CameraParameters configure the perspective X-ray view camera.
type CameraParameters struct {
	Position              r3.Vec  `json:"position"`
	DirectionOfProjection r3.Vec  `json:"direction_of_projection"`
	ViewUp                r3.Vec  `json:"view_up"`
	FocalPoint            r3.Vec  `json:"focal_point"`
	ViewAngleDeg          float64 `json:"view_angle_deg"`
}

type projectorOptions struct {
	borderFactor float64
}

// ProjectorOption adjusts ProjectCamera.
type ProjectorOption func(*projectorOptions)

// WithBorderFactor overrides DefaultBorderFactor.
func WithBorderFactor(f float64) ProjectorOption {
	return func(o *projectorOptions) { o.borderFactor = f }
}

// EmitterHalfAngle is the half-angle subtended by the detector disk at the
// emitter, in radians. A zero diameter yields zero.
func EmitterHalfAngle(detectorDiameterMm, sddMm float64) float64 {
	return math.Atan2(detectorDiameterMm/2, sddMm)
}

// FullViewAngle returns the vertical full view angle (radians, before the
// border factor) that frames a detector subtending emitterHalfAngle.
//
// In landscape the detector height is the limiting extent. In portrait the
// width is, so the vertical angle is re-derived from the horizontal one. The
// two branches agree at aspect 1.
func FullViewAngle(emitterHalfAngle, aspect float64) float64 {
	if aspect >= 1 {
		return 2 * emitterHalfAngle
	}
	t := math.Tan(emitterHalfAngle)
	if t == 0 {
		return 0
	}
	x := (aspect / 2) / t
	return 2 * math.Atan2(0.5, x)
}

// ProjectCamera derives the X-ray view camera: it sits at the emitter,
// looks along the beam at the translated isocenter and frames the detector
// disk for the viewport aspect.
func ProjectCamera(g DerivedGeometry, detectorDiameterMm, sddMm float64, vp Viewport, opts ...ProjectorOption) CameraParameters {
	o := projectorOptions{borderFactor: DefaultBorderFactor}
	for _, opt := range opts {
		opt(&o)
	}

	half := EmitterHalfAngle(detectorDiameterMm, sddMm)
	full := FullViewAngle(half, vp.Aspect())

	return CameraParameters{
		Position:              g.EmitterPos,
		DirectionOfProjection: g.EmitterDir,
		ViewUp:                g.EmitterUpDir,
		FocalPoint:            g.CenterPos,
		ViewAngleDeg:          radToDeg(full) * o.borderFactor,
	}
}

// ViewMatrix returns the world-to-camera transform.
func (c CameraParameters) ViewMatrix() mgl64.Mat4 {
	eye := toMgl(c.Position)
	// Look along the direction of projection so a camera whose focal
	// point coincides with its position (zero SDD) still has a view.
	target := eye.Add(toMgl(c.DirectionOfProjection))
	return mgl64.LookAtV(eye, target, toMgl(c.ViewUp))
}

// ProjectionMatrix returns the perspective projection for the camera's
// vertical view angle.
func (c CameraParameters) ProjectionMatrix(aspect, near, far float64) mgl64.Mat4 {
	return mgl64.Perspective(degToRad(c.ViewAngleDeg), aspect, near, far)
}

// ProjectToViewport maps a world point to window coordinates (pixels, origin
// bottom-left) and normalised depth.
func (c CameraParameters) ProjectToViewport(p r3.Vec, vp Viewport, near, far float64) r3.Vec {
	w := mgl64.Project(toMgl(p), c.ViewMatrix(), c.ProjectionMatrix(vp.Aspect(), near, far), 0, 0, vp.Width, vp.Height)
	return r3.Vec{X: w[0], Y: w[1], Z: w[2]}
}

func toMgl(v r3.Vec) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}
