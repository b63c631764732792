package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/carm/internal/export"
	"github.com/banshee-data/carm/internal/httputil"
	"github.com/banshee-data/carm/internal/monitoring"
	"github.com/banshee-data/carm/internal/sampling"
)

const testSession = "1b4e28ba-2fa1-11d2-883f-0016d3cca427"

func runReport(t *testing.T, args ...string) Report {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), args, &out, nil))
	var r Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &r), out.String())
	return r
}

func TestParseFlags(t *testing.T) {
	o, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Zero(t, o.rotation)
	assert.False(t, o.post)

	o, err = parseFlags([]string{"-rotation", "30", "-head-foot-sd", "4", "-session", testSession})
	require.NoError(t, err)
	assert.Equal(t, 30.0, o.rotation)
	assert.Equal(t, 4.0, o.headFootSD)
	assert.Equal(t, testSession, o.session)

	_, err = parseFlags([]string{"stray"})
	assert.Error(t, err)
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-version"}, &out, nil))
	assert.True(t, strings.HasPrefix(out.String(), "carm-sim "))
}

func TestRun_Report(t *testing.T) {
	r := runReport(t,
		"-rotation", "30",
		"-tilt-sd", "5",
		"-head-foot", "12",
		"-sdd", "1100",
		"-samples", "25",
		"-width", "1920", "-height", "1080",
		"-preview", "50", "-seed", "3",
	)

	require.NotNil(t, r.Export.CarmAlpha)
	assert.Equal(t, 30.0, *r.Export.CarmAlpha)
	assert.Nil(t, r.Export.CarmBeta)
	require.NotNil(t, r.Export.CarmBetaKappa)
	assert.InDelta(t, 131.312, *r.Export.CarmBetaKappa, 1e-3)
	require.NotNil(t, r.Export.CarmHeadFootTranslation)
	assert.Equal(t, 12.0, *r.Export.CarmHeadFootTranslation)
	assert.Equal(t, 25, r.Export.NumSamples)
	assert.Equal(t, 1100.0, r.Export.SourceToDetectorDistance)

	assert.InDelta(t, 1100, r3.Norm(r3.Sub(r.Geometry.EmitterPos, r.Geometry.DetectorPos)), 1e-6)
	assert.Equal(t, r.Geometry.EmitterPos, r.Camera.Position)
	assert.Greater(t, r.Camera.ViewAngleDeg, 0.0)

	require.Len(t, r.Preview, len(sampling.Fields))
	assert.Equal(t, 30.0, r.Preview["carm_alpha"].Mean)
	assert.Greater(t, r.Preview["carm_beta"].StdDev, 0.0)
}

func TestRun_LoadsConfigAndVolume(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "carm.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"detector_diameter": 400, "num_samples": 12}`), 0o644))
	volPath := filepath.Join(dir, "volume.json")
	require.NoError(t, os.WriteFile(volPath, []byte(`{
  "dimensions": [100, 100, 50],
  "spacing": [1, 1, 2],
  "world_bounds": [0, 100, 0, 100, 0, 100]
}`), 0o644))

	r := runReport(t, "-config", cfgPath, "-volume", volPath)
	assert.Equal(t, 400.0, r.Export.DetectorDiameter)
	assert.Equal(t, 12, r.Export.NumSamples)
	assert.Equal(t, [3]int{100, 100, 50}, r.Volume.Dimensions)

	var out bytes.Buffer
	err := run(context.Background(), []string{"-volume", filepath.Join(dir, "missing.json")}, &out, nil)
	assert.Error(t, err)
}

func TestRun_Post(t *testing.T) {
	orig := monitoring.Logf
	monitoring.SetLogger(nil)
	defer func() { monitoring.Logf = orig }()

	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusCreated, "{}")
	var out bytes.Buffer
	err := run(context.Background(), []string{
		"-rotation", "10",
		"-post",
		"-endpoint", "https://render.example.org/api/v1/",
		"-session", "/api/v1/session/" + testSession + "/",
	}, &out, mock)
	require.NoError(t, err)

	require.Equal(t, 1, mock.RequestCount())
	req, body := mock.LastRequest()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "https://render.example.org/api/v1/session/"+testSession+"/parameters/", req.URL.String())

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &sent))
	assert.Equal(t, 10.0, sent["carm_alpha"])
}

func TestRun_PostNeedsEndpoint(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"-post", "-session", testSession}, &out, httputil.NewMockHTTPClient())
	assert.True(t, errors.Is(err, export.ErrNoEndpoint))
}
