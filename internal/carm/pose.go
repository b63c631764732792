package carm

import (
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// Default gantry dimensions (millimetres).
const (
	DefaultSourceToDetectorDistanceMm = 1000.0
	DefaultDetectorDiameterMm         = 304.0
	DefaultNumSamples                 = 100
)

// CArmPose is the compact gantry pose. Angles are in degrees, lengths in
// millimetres. Translation is an isocenter-relative offset in LPS space.
type CArmPose struct {
	RotationDeg                float64 `json:"rotation_deg"`
	TiltDeg                    float64 `json:"tilt_deg"`
	Translation                r3.Vec  `json:"translation"`
	SourceToDetectorDistanceMm float64 `json:"source_to_detector_distance_mm"`
	DetectorDiameterMm         float64 `json:"detector_diameter_mm"`
}

// DefaultPose returns the upright, centred pose with the default gantry
// dimensions.
func DefaultPose() CArmPose {
	return CArmPose{
		SourceToDetectorDistanceMm: DefaultSourceToDetectorDistanceMm,
		DetectorDiameterMm:         DefaultDetectorDiameterMm,
	}
}

// AxisRandomization is the uncertainty attached to one degree of freedom.
// StdDev is in degrees for angles and millimetres for translation axes.
type AxisRandomization struct {
	Enabled bool    `json:"enabled"`
	StdDev  float64 `json:"std_dev"`
}

// RandomizationConfig holds the export-time uncertainty controls.
type RandomizationConfig struct {
	Rotation AxisRandomization `json:"rotation"`
	Tilt     AxisRandomization `json:"tilt"`
	// Translation is indexed by LPS axis: 0=Left, 1=Posterior, 2=Superior.
	Translation [3]AxisRandomization `json:"translation"`
	NumSamples  int                  `json:"num_samples"`
}

// PoseSnapshot is an immutable copy of a PoseModel taken under its lock.
// Revision increases by one on every mutation.
type PoseSnapshot struct {
	Pose          CArmPose
	Randomization RandomizationConfig
	Revision      uint64
}

// PoseModel owns the mutable pose and randomization state of one
// simulation session. It is safe for concurrent use; readers should derive
// geometry from a Snapshot so a single recompute never mixes two states.
//
// Setters do not clamp. A non-positive source-to-detector distance yields
// degenerate geometry downstream, not an error.
type PoseModel struct {
	mu       sync.RWMutex
	pose     CArmPose
	rand     RandomizationConfig
	revision uint64
}

// NewPoseModel creates a model seeded with pose.
func NewPoseModel(pose CArmPose) *PoseModel {
	return &PoseModel{pose: pose}
}

// Snapshot returns a consistent copy of the current state.
func (m *PoseModel) Snapshot() PoseSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return PoseSnapshot{Pose: m.pose, Randomization: m.rand, Revision: m.revision}
}

// Revision returns the current mutation counter.
func (m *PoseModel) Revision() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.revision
}

func (m *PoseModel) update(fn func()) {
	m.mu.Lock()
	fn()
	m.revision++
	m.mu.Unlock()
}

func (m *PoseModel) read(fn func()) {
	m.mu.RLock()
	fn()
	m.mu.RUnlock()
}

// Pose returns a copy of the current pose.
func (m *PoseModel) Pose() CArmPose {
	var p CArmPose
	m.read(func() { p = m.pose })
	return p
}

// SetPose replaces the whole pose in one write.
func (m *PoseModel) SetPose(p CArmPose) {
	m.update(func() { m.pose = p })
}

// RotationDeg returns the craniocaudal angle (alpha).
func (m *PoseModel) RotationDeg() float64 {
	var v float64
	m.read(func() { v = m.pose.RotationDeg })
	return v
}

// SetRotationDeg sets the craniocaudal angle (alpha).
func (m *PoseModel) SetRotationDeg(deg float64) {
	m.update(func() { m.pose.RotationDeg = deg })
}

// TiltDeg returns the tilt angle (beta).
func (m *PoseModel) TiltDeg() float64 {
	var v float64
	m.read(func() { v = m.pose.TiltDeg })
	return v
}

// SetTiltDeg sets the tilt angle (beta).
func (m *PoseModel) SetTiltDeg(deg float64) {
	m.update(func() { m.pose.TiltDeg = deg })
}

// Translation returns the isocenter offset in LPS millimetres.
func (m *PoseModel) Translation() r3.Vec {
	var v r3.Vec
	m.read(func() { v = m.pose.Translation })
	return v
}

// SetTranslation sets all three translation axes in one write.
func (m *PoseModel) SetTranslation(t r3.Vec) {
	m.update(func() { m.pose.Translation = t })
}

// SetTranslationAxis sets a single LPS axis (0, 1 or 2). Other indices are
// ignored.
func (m *PoseModel) SetTranslationAxis(axis int, mm float64) {
	if axis < 0 || axis > 2 {
		return
	}
	m.update(func() { m.pose.Translation = setComponent(m.pose.Translation, axis, mm) })
}

// SourceToDetectorDistanceMm returns the SDD.
func (m *PoseModel) SourceToDetectorDistanceMm() float64 {
	var v float64
	m.read(func() { v = m.pose.SourceToDetectorDistanceMm })
	return v
}

// SetSourceToDetectorDistanceMm sets the SDD. Callers should supply a
// positive value.
func (m *PoseModel) SetSourceToDetectorDistanceMm(mm float64) {
	m.update(func() { m.pose.SourceToDetectorDistanceMm = mm })
}

// DetectorDiameterMm returns the detector diameter.
func (m *PoseModel) DetectorDiameterMm() float64 {
	var v float64
	m.read(func() { v = m.pose.DetectorDiameterMm })
	return v
}

// SetDetectorDiameterMm sets the detector diameter.
func (m *PoseModel) SetDetectorDiameterMm(mm float64) {
	m.update(func() { m.pose.DetectorDiameterMm = mm })
}

// Randomization returns a copy of the randomization settings.
func (m *PoseModel) Randomization() RandomizationConfig {
	var v RandomizationConfig
	m.read(func() { v = m.rand })
	return v
}

// SetRandomization replaces all randomization settings in one write.
func (m *PoseModel) SetRandomization(cfg RandomizationConfig) {
	m.update(func() { m.rand = cfg })
}

// SetRandomizeRotation toggles rotation randomization.
func (m *PoseModel) SetRandomizeRotation(enabled bool) {
	m.update(func() { m.rand.Rotation.Enabled = enabled })
}

// SetRotationStdDevDeg sets the rotation standard deviation.
func (m *PoseModel) SetRotationStdDevDeg(deg float64) {
	m.update(func() { m.rand.Rotation.StdDev = deg })
}

// SetRandomizeTilt toggles tilt randomization.
func (m *PoseModel) SetRandomizeTilt(enabled bool) {
	m.update(func() { m.rand.Tilt.Enabled = enabled })
}

// SetTiltStdDevDeg sets the tilt standard deviation.
func (m *PoseModel) SetTiltStdDevDeg(deg float64) {
	m.update(func() { m.rand.Tilt.StdDev = deg })
}

// SetRandomizeTranslationAxis toggles randomization of one LPS axis.
func (m *PoseModel) SetRandomizeTranslationAxis(axis int, enabled bool) {
	if axis < 0 || axis > 2 {
		return
	}
	m.update(func() { m.rand.Translation[axis].Enabled = enabled })
}

// SetTranslationStdDevMm sets the standard deviation of one LPS axis.
func (m *PoseModel) SetTranslationStdDevMm(axis int, mm float64) {
	if axis < 0 || axis > 2 {
		return
	}
	m.update(func() { m.rand.Translation[axis].StdDev = mm })
}

// NumSamples returns the configured sample count (zero means unset).
func (m *PoseModel) NumSamples() int {
	var v int
	m.read(func() { v = m.rand.NumSamples })
	return v
}

// SetNumSamples sets the number of poses the simulation should draw.
func (m *PoseModel) SetNumSamples(n int) {
	m.update(func() { m.rand.NumSamples = n })
}

func setComponent(v r3.Vec, axis int, value float64) r3.Vec {
	switch axis {
	case 0:
		v.X = value
	case 1:
		v.Y = value
	case 2:
		v.Z = value
	}
	return v
}

func component(v r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}
