package api

import (
	"errors"
	"net/http"

	"github.com/banshee-data/carm/internal/carm"
	"github.com/banshee-data/carm/internal/httputil"
)

// CreateSessionRequest is the optional body of POST /api/v1/session/.
type CreateSessionRequest struct {
	InputScan string `json:"input_scan"`
}

// handleSessions handles GET and POST on the collection.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sessions, err := s.db.ListSessions()
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, sessions)

	case http.MethodPost:
		var req CreateSessionRequest
		if r.ContentLength != 0 {
			if err := httputil.DecodeJSON(w, r, &req); err != nil {
				httputil.BadRequest(w, err.Error())
				return
			}
		}
		session, err := s.db.CreateSession(req.InputScan)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, session)

	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleSession handles GET and DELETE /api/v1/session/{id}/.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		session, err := s.db.GetSession(id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, session)

	case http.MethodDelete:
		if err := s.db.DeleteSession(id); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleParameters handles POST and GET /api/v1/session/{id}/parameters/.
// A session accepts one payload.
func (s *Server) handleParameters(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		params, err := s.db.GetParameters(id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, params)

	case http.MethodPost:
		var params carm.ExportParameters
		if err := httputil.DecodeJSON(w, r, &params); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := params.Validate(); err != nil {
			var fe *carm.FieldError
			if errors.As(err, &fe) {
				httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{
					"error": fe.Reason,
					"field": fe.Field,
				})
				return
			}
			httputil.BadRequest(w, err.Error())
			return
		}
		if params.NumSamples > MaxSamples {
			httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{
				"error": "too many samples",
				"field": "num_samples",
			})
			return
		}
		if err := s.db.InsertParameters(id, params); err != nil {
			writeStoreError(w, err)
			return
		}
		stored, err := s.db.GetParameters(id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, stored)

	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleInitiateBatchRun(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	session, err := s.db.InitiateBatchRun(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (s *Server) handleCancelBatchRun(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.db.CancelBatchRun(id); err != nil {
		writeStoreError(w, err)
		return
	}
	session, err := s.db.GetSession(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}
