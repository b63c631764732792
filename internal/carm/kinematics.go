package carm

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/spatial/r3"
)

// Canonical directions in LPS world axes, before rotation and tilt.
var (
	// DefaultEmitterDir points from the isocenter to the emitter (Posterior).
	DefaultEmitterDir = r3.Vec{X: 0, Y: 1, Z: 0}
	// DefaultUpDir is the detector image up direction (Superior).
	DefaultUpDir = r3.Vec{X: 0, Y: 0, Z: 1}
	// DefaultAnchorDir is a fixed marker direction (Right). It is never
	// rotated by the pose.
	DefaultAnchorDir = r3.Vec{X: -1, Y: 0, Z: 0}

	verticalAxis   = r3.Vec{X: 0, Y: 0, Z: 1} // Superior
	horizontalAxis = r3.Vec{X: 1, Y: 0, Z: 0} // Sagittal
)

// DerivedGeometry is the world-space gantry layout for one pose snapshot.
// Positions are in millimetres, directions are unit vectors.
type DerivedGeometry struct {
	EmitterPos  r3.Vec `json:"emitter_pos"`
	DetectorPos r3.Vec `json:"detector_pos"`
	AnchorPos   r3.Vec `json:"anchor_pos"`
	CenterPos   r3.Vec `json:"center_pos"`

	// EmitterDir is the direction X-rays travel, emitter to detector.
	EmitterDir   r3.Vec `json:"emitter_dir"`
	DetectorDir  r3.Vec `json:"detector_dir"`
	EmitterUpDir r3.Vec `json:"emitter_up_dir"`

	ArmRotationRad float64 `json:"arm_rotation_rad"`
	ArmTiltRad     float64 `json:"arm_tilt_rad"`
}

// ArmAngles converts a pose to the arm rotation and tilt in radians. The
// rotation sign is inverted to follow the clinical alpha convention.
func ArmAngles(p CArmPose) (rotationRad, tiltRad float64) {
	return degToRad(-p.RotationDeg), degToRad(p.TiltDeg)
}

// DirectionToEmitter rotates the default emitter direction about the
// vertical axis and then about the horizontal axis. The order matters.
func DirectionToEmitter(rotationRad, tiltRad float64) r3.Vec {
	v := r3.NewRotation(rotationRad, verticalAxis).Rotate(DefaultEmitterDir)
	return r3.NewRotation(tiltRad, horizontalAxis).Rotate(v)
}

// UpDirection tilts the default up vector. Rotation about the vertical axis
// spins the image in-plane and leaves the up vector alone.
func UpDirection(tiltRad float64) r3.Vec {
	return r3.NewRotation(tiltRad, horizontalAxis).Rotate(DefaultUpDir)
}

// ComputeGeometry derives the gantry layout from a pose snapshot and the
// volume metadata. It never fails: a zero source-to-detector distance
// collapses the emitter and detector onto the centre.
func ComputeGeometry(snap PoseSnapshot, vol VolumeMetadata) DerivedGeometry {
	p := snap.Pose
	rot, tilt := ArmAngles(p)

	dirToEmitter := DirectionToEmitter(rot, tilt)
	emitterDir := r3.Scale(-1, dirToEmitter)
	half := p.SourceToDetectorDistanceMm / 2

	center := r3.Add(vol.Isocenter(), p.Translation)

	return DerivedGeometry{
		EmitterPos:     r3.Add(center, r3.Scale(half, dirToEmitter)),
		DetectorPos:    r3.Sub(center, r3.Scale(half, dirToEmitter)),
		AnchorPos:      r3.Add(center, r3.Scale(half, DefaultAnchorDir)),
		CenterPos:      center,
		EmitterDir:     emitterDir,
		DetectorDir:    negate(emitterDir),
		EmitterUpDir:   UpDirection(tilt),
		ArmRotationRad: rot,
		ArmTiltRad:     tilt,
	}
}

// ModelTransform returns the gantry mesh transform
// M = T(center) * Rx(tilt) * Rz(rotation), column-major.
func ModelTransform(g DerivedGeometry) mgl64.Mat4 {
	return mgl64.Translate3D(g.CenterPos.X, g.CenterPos.Y, g.CenterPos.Z).
		Mul4(mgl64.HomogRotate3DX(g.ArmTiltRad)).
		Mul4(mgl64.HomogRotate3DZ(g.ArmRotationRad))
}

// OrientedModelTransform is ModelTransform with the volume orientation
// applied between the translation and the arm rotations, so the gantry mesh
// follows the image axes.
func OrientedModelTransform(g DerivedGeometry, vol VolumeMetadata) mgl64.Mat4 {
	o := vol.Orientation
	// mgl64.Mat3 is column-major; Orientation is row-major.
	rot := mgl64.Mat3{
		o[0], o[3], o[6],
		o[1], o[4], o[7],
		o[2], o[5], o[8],
	}.Mat4()
	return mgl64.Translate3D(g.CenterPos.X, g.CenterPos.Y, g.CenterPos.Z).
		Mul4(rot).
		Mul4(mgl64.HomogRotate3DX(g.ArmTiltRad)).
		Mul4(mgl64.HomogRotate3DZ(g.ArmRotationRad))
}

// TransformPoint applies a homogeneous transform to p.
func TransformPoint(m mgl64.Mat4, p r3.Vec) r3.Vec {
	v := m.Mul4x1(mgl64.Vec4{p.X, p.Y, p.Z, 1})
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

func negate(v r3.Vec) r3.Vec {
	return r3.Vec{X: -v.X, Y: -v.Y, Z: -v.Z}
}

func degToRad(deg float64) float64 { return deg * math.Pi / 180 }

func radToDeg(rad float64) float64 { return rad * 180 / math.Pi }
