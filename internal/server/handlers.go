package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/MeKo-Tech/scan2sheets/internal/settings"
)

const maxJSONBody = 1 << 20

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if s.events != nil {
		response.Clients = s.events.ClientCount()
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) getSettingsHandler(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.Settings.Load(r.Context())
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if r.URL.Query().Get("reveal") != "1" {
		st = st.Masked()
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) saveSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var in settings.Settings
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	saved, err := s.app.Settings.Save(r.Context(), in)
	if err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			s.writeErrorResponse(w, verrs.Error(), http.StatusBadRequest)
			return
		}
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, saved.Masked())
}

func (s *Server) clearSettingsHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Settings.Clear(r.Context()); err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}
