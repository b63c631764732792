package volume

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/carm/internal/carm"
)

const maxMetadataSize = 1 * 1024 * 1024 // 1MB

// LoadJSON reads volume metadata from a JSON file. A missing orientation
// means identity; a missing LPS mapping is derived from the orientation.
func LoadJSON(path string) (carm.VolumeMetadata, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return carm.VolumeMetadata{}, fmt.Errorf("metadata file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return carm.VolumeMetadata{}, fmt.Errorf("failed to stat metadata file: %w", err)
	}
	if info.Size() > maxMetadataSize {
		return carm.VolumeMetadata{}, fmt.Errorf("metadata file too large: %d bytes (max %d)", info.Size(), maxMetadataSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return carm.VolumeMetadata{}, fmt.Errorf("failed to read metadata file: %w", err)
	}
	return ParseJSON(data)
}

// ParseJSON decodes and normalises metadata from raw JSON.
func ParseJSON(data []byte) (carm.VolumeMetadata, error) {
	var vol carm.VolumeMetadata
	if err := json.Unmarshal(data, &vol); err != nil {
		return carm.VolumeMetadata{}, fmt.Errorf("failed to parse metadata JSON: %w", err)
	}
	if vol.Orientation == ([9]float64{}) {
		vol.Orientation = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	}
	if len(vol.LPSOrientation) == 0 {
		vol.LPSOrientation = carm.LPSOrientationFromMatrix(vol.Orientation)
	}
	if err := vol.Validate(); err != nil {
		return carm.VolumeMetadata{}, fmt.Errorf("invalid metadata: %w", err)
	}
	return vol, nil
}

// Load picks the loader from the path: a directory is read as a DICOM
// series, anything else as JSON.
func Load(path string) (carm.VolumeMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return carm.VolumeMetadata{}, fmt.Errorf("volume source: %w", err)
	}
	if info.IsDir() {
		return LoadDICOMSeries(path)
	}
	return LoadJSON(path)
}
