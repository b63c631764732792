package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/carm/internal/httputil"
	"github.com/banshee-data/carm/internal/sampling"
	"github.com/banshee-data/carm/internal/units"
)

// SamplesResponse is the body of GET /api/v1/session/{id}/samples/.
type SamplesResponse struct {
	SessionID   string                           `json:"session_id"`
	Seed        uint64                           `json:"seed"`
	AngleUnits  string                           `json:"angle_units"`
	LengthUnits string                           `json:"length_units"`
	Samples     []sampling.Sample                `json:"samples"`
	Summary     map[string]sampling.FieldSummary `json:"summary"`
}

// drawSamples samples the session's stored parameters. The seed query
// parameter overrides the server default. On failure the response has
// already been written.
func (s *Server) drawSamples(w http.ResponseWriter, r *http.Request, id string) ([]sampling.Sample, uint64, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return nil, 0, false
	}

	seed := s.seed
	if raw := r.URL.Query().Get("seed"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid seed %q", raw))
			return nil, 0, false
		}
		seed = v
	}

	params, err := s.db.GetParameters(id)
	if err != nil {
		writeStoreError(w, err)
		return nil, 0, false
	}
	return sampling.NewParameterSampler(seed).Draw(*params), seed, true
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request, id string) {
	q := r.URL.Query()
	angleUnits := q.Get("angle_units")
	if angleUnits == "" {
		angleUnits = units.Degrees
	}
	if !units.IsValidAngle(angleUnits) {
		httputil.BadRequest(w, fmt.Sprintf("invalid angle_units %q, valid options: %s", angleUnits, units.GetValidAngleUnitsString()))
		return
	}
	lengthUnits := q.Get("length_units")
	if lengthUnits == "" {
		lengthUnits = units.Millimetres
	}
	if !units.IsValidLength(lengthUnits) {
		httputil.BadRequest(w, fmt.Sprintf("invalid length_units %q, valid options: %s", lengthUnits, units.GetValidLengthUnitsString()))
		return
	}

	samples, seed, ok := s.drawSamples(w, r, id)
	if !ok {
		return
	}
	for i, smp := range samples {
		samples[i] = convertSample(smp, angleUnits, lengthUnits)
	}
	httputil.WriteJSON(w, http.StatusOK, SamplesResponse{
		SessionID:   id,
		Seed:        seed,
		AngleUnits:  angleUnits,
		LengthUnits: lengthUnits,
		Samples:     samples,
		Summary:     sampling.Summary(samples),
	})
}

func (s *Server) handleSamplesChart(w http.ResponseWriter, r *http.Request, id string) {
	samples, _, ok := s.drawSamples(w, r, id)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := sampling.WriteChartHTML(&buf, samples, "Session "+id); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleSamplesPNG(w http.ResponseWriter, r *http.Request, id, field string) {
	if _, ok := (sampling.Sample{}).Value(field); !ok {
		httputil.NotFound(w, fmt.Sprintf("unknown sample field %q", field))
		return
	}
	samples, _, ok := s.drawSamples(w, r, id)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := sampling.WriteHistogramPNG(&buf, samples, field); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func convertSample(s sampling.Sample, angleUnits, lengthUnits string) sampling.Sample {
	return sampling.Sample{
		Alpha:      units.ConvertAngle(s.Alpha, angleUnits),
		Beta:       units.ConvertAngle(s.Beta, angleUnits),
		PushPull:   units.ConvertLength(s.PushPull, lengthUnits),
		HeadFoot:   units.ConvertLength(s.HeadFoot, lengthUnits),
		RaiseLower: units.ConvertLength(s.RaiseLower, lengthUnits),
	}
}
