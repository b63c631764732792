// Package volume loads scan metadata for the gantry simulation, either from
// a directory of DICOM slices or from a JSON description.
package volume

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/carm/internal/carm"
	"github.com/banshee-data/carm/internal/monitoring"
)

// ErrNoSlices is returned when a series directory holds no readable slice.
var ErrNoSlices = errors.New("no DICOM slices found")

// SliceHeader is the geometric subset of one DICOM slice header.
type SliceHeader struct {
	Path    string
	Rows    int
	Columns int
	// PixelSpacing is (row spacing, column spacing) in mm, as stored.
	PixelSpacing [2]float64
	Position     r3.Vec
	RowDir       r3.Vec
	ColumnDir    r3.Vec
	Thickness    float64
}

// normal returns the slice stacking direction.
func (h SliceHeader) normal() r3.Vec {
	return r3.Unit(r3.Cross(h.RowDir, h.ColumnDir))
}

// ReadSliceHeader parses the geometry tags of one file. Pixel data is
// skipped.
func ReadSliceHeader(path string) (SliceHeader, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return SliceHeader{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return sliceHeaderFromDataset(path, ds)
}

func sliceHeaderFromDataset(path string, ds dicom.Dataset) (SliceHeader, error) {
	var err error
	h := SliceHeader{Path: path}
	if h.Rows, err = intTag(ds, tag.Rows); err != nil {
		return SliceHeader{}, fmt.Errorf("%s: %w", path, err)
	}
	if h.Columns, err = intTag(ds, tag.Columns); err != nil {
		return SliceHeader{}, fmt.Errorf("%s: %w", path, err)
	}

	spacing, err := decimalTag(ds, tag.PixelSpacing, 2)
	if err != nil {
		return SliceHeader{}, fmt.Errorf("%s: %w", path, err)
	}
	h.PixelSpacing = [2]float64{spacing[0], spacing[1]}

	pos, err := decimalTag(ds, tag.ImagePositionPatient, 3)
	if err != nil {
		return SliceHeader{}, fmt.Errorf("%s: %w", path, err)
	}
	h.Position = r3.Vec{X: pos[0], Y: pos[1], Z: pos[2]}

	cosines, err := decimalTag(ds, tag.ImageOrientationPatient, 6)
	if err != nil {
		return SliceHeader{}, fmt.Errorf("%s: %w", path, err)
	}
	h.RowDir = r3.Vec{X: cosines[0], Y: cosines[1], Z: cosines[2]}
	h.ColumnDir = r3.Vec{X: cosines[3], Y: cosines[4], Z: cosines[5]}

	// Slice thickness is optional.
	if th, err := decimalTag(ds, tag.SliceThickness, 1); err == nil {
		h.Thickness = th[0]
	}
	return h, nil
}

func intTag(ds dicom.Dataset, t tag.Tag) (int, error) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, fmt.Errorf("missing tag %v: %w", t, err)
	}
	v, ok := valueOf[[]int](el)
	if !ok {
		return 0, fmt.Errorf("tag %v is not an integer element", t)
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("tag %v is empty", t)
	}
	return v[0], nil
}

// valueOf unpacks an element value without the panics of dicom.MustGet*.
func valueOf[T any](el *dicom.Element) (T, bool) {
	var zero T
	if el.Value == nil {
		return zero, false
	}
	v, ok := el.Value.GetValue().(T)
	return v, ok
}

// decimalTag reads a DS (decimal string) element with at least n values.
func decimalTag(ds dicom.Dataset, t tag.Tag, n int) ([]float64, error) {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return nil, fmt.Errorf("missing tag %v: %w", t, err)
	}
	raw, ok := valueOf[[]string](el)
	if !ok {
		return nil, fmt.Errorf("tag %v is not a string element", t)
	}
	// Some writers store multi-valued DS as one backslash-joined string.
	if len(raw) == 1 && strings.Contains(raw[0], `\`) {
		raw = strings.Split(raw[0], `\`)
	}
	if len(raw) < n {
		return nil, fmt.Errorf("tag %v has %d values, want %d", t, len(raw), n)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("tag %v value %d: %w", t, i, err)
		}
		out[i] = f
	}
	return out, nil
}

// LoadDICOMSeries reads every slice header in dir and assembles volume
// metadata. Files that are not DICOM, or whose geometry tags are missing or
// mistyped, are skipped with a log line.
func LoadDICOMSeries(dir string) (carm.VolumeMetadata, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return carm.VolumeMetadata{}, fmt.Errorf("read series dir: %w", err)
	}

	var headers []SliceHeader
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		h, err := ReadSliceHeader(path)
		if err != nil {
			monitoring.Logf("volume: skipping %s: %v", e.Name(), err)
			continue
		}
		headers = append(headers, h)
	}
	if len(headers) == 0 {
		return carm.VolumeMetadata{}, fmt.Errorf("%s: %w", dir, ErrNoSlices)
	}
	return FromSlices(headers)
}

// FromSlices assembles metadata from parsed slice headers. Slices are
// ordered along the slice normal; the third spacing is the mean distance
// between neighbouring slices, or the slice thickness for a single slice.
func FromSlices(headers []SliceHeader) (carm.VolumeMetadata, error) {
	if len(headers) == 0 {
		return carm.VolumeMetadata{}, ErrNoSlices
	}
	first := headers[0]
	for _, h := range headers[1:] {
		if h.Rows != first.Rows || h.Columns != first.Columns {
			return carm.VolumeMetadata{}, fmt.Errorf("slice %s is %dx%d, series is %dx%d",
				h.Path, h.Columns, h.Rows, first.Columns, first.Rows)
		}
	}

	normal := first.normal()
	sorted := make([]SliceHeader, len(headers))
	copy(sorted, headers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return r3.Dot(sorted[i].Position, normal) < r3.Dot(sorted[j].Position, normal)
	})

	sliceSpacing := first.Thickness
	if n := len(sorted); n > 1 {
		span := r3.Dot(r3.Sub(sorted[n-1].Position, sorted[0].Position), normal)
		sliceSpacing = span / float64(n-1)
	}
	if sliceSpacing <= 0 {
		sliceSpacing = 1
	}

	// PixelSpacing is stored row spacing first, which runs along the
	// column direction.
	spacing := [3]float64{first.PixelSpacing[1], first.PixelSpacing[0], sliceSpacing}
	dims := [3]int{first.Columns, first.Rows, len(sorted)}
	axes := [3]r3.Vec{r3.Unit(first.RowDir), r3.Unit(first.ColumnDir), normal}

	var orientation [9]float64
	for c, axis := range axes {
		orientation[0*3+c] = axis.X
		orientation[1*3+c] = axis.Y
		orientation[2*3+c] = axis.Z
	}

	vol := carm.VolumeMetadata{
		Dimensions:     dims,
		Spacing:        spacing,
		WorldBounds:    cornerBounds(sorted[0].Position, axes, dims, spacing),
		Orientation:    orientation,
		LPSOrientation: carm.LPSOrientationFromMatrix(orientation),
	}
	if err := vol.Validate(); err != nil {
		return carm.VolumeMetadata{}, fmt.Errorf("series metadata: %w", err)
	}
	return vol, nil
}

// cornerBounds returns the axis-aligned world box around the eight voxel
// centre corners of the volume.
func cornerBounds(origin r3.Vec, axes [3]r3.Vec, dims [3]int, spacing [3]float64) [6]float64 {
	b := [6]float64{math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)}
	for corner := 0; corner < 8; corner++ {
		p := origin
		for i := 0; i < 3; i++ {
			if corner&(1<<i) == 0 || dims[i] < 1 {
				continue
			}
			p = r3.Add(p, r3.Scale(float64(dims[i]-1)*spacing[i], axes[i]))
		}
		b[0], b[1] = math.Min(b[0], p.X), math.Max(b[1], p.X)
		b[2], b[3] = math.Min(b[2], p.Y), math.Max(b[3], p.Y)
		b[4], b[5] = math.Min(b[4], p.Z), math.Max(b[5], p.Z)
	}
	return b
}
