package carm

import (
	"sync"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestPoseModel_SettersBumpRevision(t *testing.T) {
	m := NewPoseModel(DefaultPose())
	if m.Revision() != 0 {
		t.Fatalf("new model revision = %d, want 0", m.Revision())
	}

	steps := []struct {
		name string
		fn   func()
	}{
		{"rotation", func() { m.SetRotationDeg(12) }},
		{"tilt", func() { m.SetTiltDeg(-4) }},
		{"translation", func() { m.SetTranslation(r3.Vec{X: 1, Y: 2, Z: 3}) }},
		{"translation axis", func() { m.SetTranslationAxis(2, 9) }},
		{"sdd", func() { m.SetSourceToDetectorDistanceMm(1100) }},
		{"diameter", func() { m.SetDetectorDiameterMm(400) }},
		{"randomize rotation", func() { m.SetRandomizeRotation(true) }},
		{"rotation std dev", func() { m.SetRotationStdDevDeg(5) }},
		{"randomize tilt", func() { m.SetRandomizeTilt(true) }},
		{"tilt std dev", func() { m.SetTiltStdDevDeg(3) }},
		{"randomize axis", func() { m.SetRandomizeTranslationAxis(1, true) }},
		{"axis std dev", func() { m.SetTranslationStdDevMm(1, 2.5) }},
		{"num samples", func() { m.SetNumSamples(42) }},
	}
	for i, s := range steps {
		s.fn()
		if got, want := m.Revision(), uint64(i+1); got != want {
			t.Errorf("after %s: revision = %d, want %d", s.name, got, want)
		}
	}

	snap := m.Snapshot()
	want := CArmPose{
		RotationDeg:                12,
		TiltDeg:                    -4,
		Translation:                r3.Vec{X: 1, Y: 2, Z: 9},
		SourceToDetectorDistanceMm: 1100,
		DetectorDiameterMm:         400,
	}
	if snap.Pose != want {
		t.Errorf("pose = %+v, want %+v", snap.Pose, want)
	}
	r := snap.Randomization
	if !r.Rotation.Enabled || r.Rotation.StdDev != 5 || !r.Tilt.Enabled || r.Tilt.StdDev != 3 {
		t.Errorf("angle randomization = %+v / %+v", r.Rotation, r.Tilt)
	}
	if !r.Translation[1].Enabled || r.Translation[1].StdDev != 2.5 || r.Translation[0].Enabled {
		t.Errorf("translation randomization = %+v", r.Translation)
	}
	if r.NumSamples != 42 || m.NumSamples() != 42 {
		t.Errorf("num samples = %d", r.NumSamples)
	}
}

func TestPoseModel_OutOfRangeAxisIgnored(t *testing.T) {
	m := NewPoseModel(DefaultPose())
	m.SetTranslationAxis(3, 10)
	m.SetTranslationAxis(-1, 10)
	m.SetRandomizeTranslationAxis(5, true)
	m.SetTranslationStdDevMm(7, 1)

	if m.Revision() != 0 {
		t.Errorf("revision = %d, want 0", m.Revision())
	}
	if m.Translation() != (r3.Vec{}) {
		t.Errorf("translation = %v, want zero", m.Translation())
	}
}

func TestPoseModel_Getters(t *testing.T) {
	m := NewPoseModel(CArmPose{RotationDeg: 1, TiltDeg: 2, SourceToDetectorDistanceMm: 3, DetectorDiameterMm: 4})
	if m.RotationDeg() != 1 || m.TiltDeg() != 2 || m.SourceToDetectorDistanceMm() != 3 || m.DetectorDiameterMm() != 4 {
		t.Errorf("getters disagree with pose %+v", m.Pose())
	}

	cfg := RandomizationConfig{Rotation: AxisRandomization{Enabled: true, StdDev: 1}, NumSamples: 7}
	m.SetRandomization(cfg)
	if m.Randomization() != cfg {
		t.Errorf("randomization = %+v, want %+v", m.Randomization(), cfg)
	}
}

func TestPoseModel_SnapshotIsConsistentUnderConcurrentWrites(t *testing.T) {
	m := NewPoseModel(DefaultPose())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			v := float64(i)
			// SetPose keeps rotation and tilt equal within one write.
			p := DefaultPose()
			p.RotationDeg = v
			p.TiltDeg = v
			m.SetPose(p)
		}
	}()

	var last uint64
	for i := 0; i < 2000; i++ {
		snap := m.Snapshot()
		if snap.Pose.RotationDeg != snap.Pose.TiltDeg {
			t.Fatalf("torn snapshot: rotation %v tilt %v", snap.Pose.RotationDeg, snap.Pose.TiltDeg)
		}
		if snap.Revision < last {
			t.Fatalf("revision went backwards: %d after %d", snap.Revision, last)
		}
		last = snap.Revision
	}
	close(stop)
	wg.Wait()
}
