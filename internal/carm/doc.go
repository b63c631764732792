// Package carm models a mobile fluoroscopy gantry over a scanned volume.
//
// A PoseModel holds the compact pose (rotation, tilt, translation, source to
// detector distance, detector diameter) and the export-time randomization
// settings. ComputeGeometry turns a pose snapshot and VolumeMetadata into
// world-space emitter, detector and anchor positions; ProjectCamera frames
// the detector for the X-ray view; BuildExport produces the payload consumed
// by the simulation service. Simulation caches all three and recomputes
// only when an input changed.
//
// World space is LPS (x=Left, y=Posterior, z=Superior) in millimetres.
package carm
