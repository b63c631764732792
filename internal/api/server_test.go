package api

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/carm/internal/db"
	"github.com/banshee-data/carm/internal/sampling"
)

const samplePayload = `{
  "carm_alpha": 15,
  "carm_beta_kappa": 131.97,
  "carm_push_pull_translation": 20,
  "carm_head_foot_std_dev": 5,
  "source_to_detector_distance": 1000,
  "detector_diameter": 304,
  "num_samples": 40
}`

func setupTestServer(t *testing.T) (*db.DB, http.Handler) {
	t.Helper()
	database, err := db.NewDB(cloneAPITestDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database, NewServer(database, 7).ServeMux()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, h http.Handler) db.Session {
	t.Helper()
	w := do(t, h, http.MethodPost, SessionPrefix, `{"input_scan": "pelvis.nii.gz"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var s db.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	return s
}

func TestSessionLifecycle(t *testing.T) {
	_, h := setupTestServer(t)

	s := createSession(t, h)
	assert.Equal(t, db.StatusNotStarted, s.Status)
	assert.Equal(t, "pelvis.nii.gz", s.InputScan)
	base := SessionPrefix + s.ID + "/"

	w := do(t, h, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, base+"initiate-batch-run/", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "batch run needs parameters first")

	w = do(t, h, http.MethodPost, base+"parameters/", samplePayload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var stored map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	assert.Equal(t, 15.0, stored["carm_alpha"])
	assert.Equal(t, 40.0, stored["num_samples"])
	assert.NotContains(t, stored, "carm_alpha_kappa")

	w = do(t, h, http.MethodPost, base+"parameters/", samplePayload)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodGet, base+"parameters/", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, base+"initiate-batch-run/", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var queued db.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &queued))
	assert.Equal(t, db.StatusQueued, queued.Status)
	assert.NotNil(t, queued.Started)

	w = do(t, h, http.MethodPost, base+"initiate-batch-run/", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodPost, base+"cancel-batch-run/", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cancelled db.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cancelled))
	assert.Equal(t, db.StatusCancelled, cancelled.Status)

	w = do(t, h, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListSessions(t *testing.T) {
	_, h := setupTestServer(t)

	w := do(t, h, http.MethodGet, SessionPrefix, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	createSession(t, h)
	w = do(t, h, http.MethodPost, SessionPrefix, "")
	require.Equal(t, http.StatusCreated, w.Code, "an empty body is allowed")

	w = do(t, h, http.MethodGet, SessionPrefix, "")
	var sessions []db.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sessions))
	assert.Len(t, sessions, 2)
}

func TestRequestErrors(t *testing.T) {
	_, h := setupTestServer(t)
	s := createSession(t, h)
	base := SessionPrefix + s.ID + "/"
	unknown := SessionPrefix + uuid.NewString() + "/"

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad id", http.MethodGet, SessionPrefix + "not-a-uuid/", "", http.StatusBadRequest},
		{"unknown session", http.MethodGet, unknown, "", http.StatusNotFound},
		{"unknown action", http.MethodGet, base + "launch/", "", http.StatusNotFound},
		{"collection put", http.MethodPut, SessionPrefix, "", http.StatusMethodNotAllowed},
		{"initiate via get", http.MethodGet, base + "initiate-batch-run/", "", http.StatusMethodNotAllowed},
		{"create bad json", http.MethodPost, SessionPrefix, `{"input_scan": `, http.StatusBadRequest},
		{"params missing", http.MethodGet, base + "parameters/", "", http.StatusNotFound},
		{"params empty body", http.MethodPost, base + "parameters/", "", http.StatusBadRequest},
		{"params trailing data", http.MethodPost, base + "parameters/", samplePayload + `{}`, http.StatusBadRequest},
		{"params unknown session", http.MethodPost, unknown + "parameters/", samplePayload, http.StatusNotFound},
		{"params too many samples", http.MethodPost, base + "parameters/",
			`{"carm_alpha": 0, "carm_beta": 0, "source_to_detector_distance": 1000, "num_samples": 1000000}`, http.StatusBadRequest},
		{"cancel unknown", http.MethodPost, unknown + "cancel-batch-run/", "", http.StatusNotFound},
		{"samples without params", http.MethodGet, base + "samples/", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestPostParameters_ReportsInvalidField(t *testing.T) {
	_, h := setupTestServer(t)
	s := createSession(t, h)

	w := do(t, h, http.MethodPost, SessionPrefix+s.ID+"/parameters/",
		`{"carm_alpha": 0, "source_to_detector_distance": 1000}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "carm_beta", body["field"])
}

func postParams(t *testing.T, h http.Handler) string {
	t.Helper()
	s := createSession(t, h)
	w := do(t, h, http.MethodPost, SessionPrefix+s.ID+"/parameters/", samplePayload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return SessionPrefix + s.ID + "/samples/"
}

func TestSamples(t *testing.T) {
	_, h := setupTestServer(t)
	path := postParams(t, h)

	w := do(t, h, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp SamplesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(7), resp.Seed)
	assert.Equal(t, "deg", resp.AngleUnits)
	assert.Equal(t, "mm", resp.LengthUnits)
	require.Len(t, resp.Samples, 40)
	for _, smp := range resp.Samples {
		assert.Equal(t, 15.0, smp.Alpha)
		assert.Equal(t, 20.0, smp.PushPull)
	}
	assert.Greater(t, resp.Summary["carm_head_foot_translation"].StdDev, 0.0)
	// No raise/lower fields: drawn around zero with the default spread.
	assert.Greater(t, resp.Summary["carm_raise_lower_translation"].StdDev, 0.0)

	// Same seed, same draws.
	again := do(t, h, http.MethodGet, path, "")
	assert.Equal(t, w.Body.String(), again.Body.String())

	other := do(t, h, http.MethodGet, path+"?seed=99", "")
	require.Equal(t, http.StatusOK, other.Code)
	assert.NotEqual(t, w.Body.String(), other.Body.String())
}

func TestSamples_UnitConversion(t *testing.T) {
	_, h := setupTestServer(t)
	path := postParams(t, h)

	w := do(t, h, http.MethodGet, path+"?angle_units=rad&length_units=cm", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp SamplesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rad", resp.AngleUnits)
	assert.Equal(t, "cm", resp.LengthUnits)
	assert.InDelta(t, 15*math.Pi/180, resp.Samples[0].Alpha, 1e-12)
	assert.InDelta(t, 2.0, resp.Samples[0].PushPull, 1e-12)

	for _, q := range []string{"?angle_units=grad", "?length_units=furlong", "?seed=-1"} {
		w := do(t, h, http.MethodGet, path+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestSamplesChartAndPNG(t *testing.T) {
	_, h := setupTestServer(t)
	path := postParams(t, h)

	w := do(t, h, http.MethodGet, path+"chart", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	for _, field := range sampling.Fields {
		assert.Contains(t, w.Body.String(), field)
	}

	w = do(t, h, http.MethodGet, path+"carm_head_foot_translation.png", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = do(t, h, http.MethodGet, path+"carm_gamma.png", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoggingMiddleware(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	assert.Contains(t, statusCodeColor(200), colorBoldGreen)
	assert.Contains(t, statusCodeColor(302), colorYellow)
	assert.Contains(t, statusCodeColor(404), colorBoldRed)
	assert.Contains(t, statusCodeColor(503), colorBoldRed)
	assert.Equal(t, "100", statusCodeColor(100))
}
