package carm

import "sync"

// Simulation ties a PoseModel to the volume and viewport collaborators and
// serves derived values on demand. Each derived value is recomputed lazily
// when one of its inputs changed since the last read and cached otherwise.
type Simulation struct {
	pose *PoseModel

	mu           sync.Mutex
	volume       VolumeMetadata
	volumeRev    uint64
	viewport     Viewport
	borderFactor float64

	geom        DerivedGeometry
	geomSnap    PoseSnapshot
	geomKey     geometryKey
	geomValid   bool
	camera      CameraParameters
	cameraKey   cameraKey
	cameraValid bool
	export      ExportParameters
	exportRev   uint64
	exportValid bool

	recomputes int
}

type geometryKey struct {
	poseRev   uint64
	volumeRev uint64
}

type cameraKey struct {
	geometryKey
	viewport     Viewport
	borderFactor float64
}

// NewSimulation creates a simulation over pose and vol. The viewport starts
// square until SetViewport is called.
func NewSimulation(pose *PoseModel, vol VolumeMetadata) *Simulation {
	return &Simulation{
		pose:         pose,
		volume:       vol,
		viewport:     Viewport{Width: 1, Height: 1},
		borderFactor: DefaultBorderFactor,
	}
}

// PoseModel returns the model the simulation reads from.
func (s *Simulation) PoseModel() *PoseModel { return s.pose }

// Volume returns the current metadata.
func (s *Simulation) Volume() VolumeMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// SetVolume replaces the volume metadata.
func (s *Simulation) SetVolume(vol VolumeMetadata) {
	s.mu.Lock()
	s.volume = vol
	s.volumeRev++
	s.mu.Unlock()
}

// SetViewport records a render surface resize.
func (s *Simulation) SetViewport(vp Viewport) {
	s.mu.Lock()
	s.viewport = vp
	s.mu.Unlock()
}

// SetBorderFactor overrides the camera border margin.
func (s *Simulation) SetBorderFactor(f float64) {
	s.mu.Lock()
	s.borderFactor = f
	s.mu.Unlock()
}

// Geometry returns the derived geometry for the current pose and volume.
func (s *Simulation) Geometry() DerivedGeometry {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, _ := s.geometryLocked()
	return g
}

// geometryLocked returns the geometry and the snapshot it was built from.
func (s *Simulation) geometryLocked() (DerivedGeometry, PoseSnapshot) {
	if s.geomValid && s.geomKey.poseRev == s.pose.Revision() && s.geomKey.volumeRev == s.volumeRev {
		return s.geom, s.geomSnap
	}
	snap := s.pose.Snapshot()
	s.geom = ComputeGeometry(snap, s.volume)
	s.geomSnap = snap
	s.geomKey = geometryKey{poseRev: snap.Revision, volumeRev: s.volumeRev}
	s.geomValid = true
	s.recomputes++
	return s.geom, s.geomSnap
}

// Camera returns the X-ray view camera for the current state.
func (s *Simulation) Camera() CameraParameters {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, snap := s.geometryLocked()
	key := cameraKey{geometryKey: s.geomKey, viewport: s.viewport, borderFactor: s.borderFactor}
	if s.cameraValid && s.cameraKey == key {
		return s.camera
	}
	// Detector size comes from the same snapshot as the geometry.
	s.camera = ProjectCamera(g, snap.Pose.DetectorDiameterMm, snap.Pose.SourceToDetectorDistanceMm,
		s.viewport, WithBorderFactor(s.borderFactor))
	s.cameraKey = key
	s.cameraValid = true
	return s.camera
}

// Export returns the export payload for the current pose.
func (s *Simulation) Export() ExportParameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exportValid && s.exportRev == s.pose.Revision() {
		return s.export
	}
	snap := s.pose.Snapshot()
	s.export = BuildExport(snap)
	s.exportRev = snap.Revision
	s.exportValid = true
	return s.export
}

// Recomputes reports how many times the geometry was rebuilt.
func (s *Simulation) Recomputes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recomputes
}
