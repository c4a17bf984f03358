package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MeKo-Tech/scan2sheets/internal/outbox"
	"github.com/MeKo-Tech/scan2sheets/internal/recognize"
)

// recordPayload validates a record request and builds the payload with the
// effective token.
func (s *Server) recordPayload(ctx context.Context, in RecordRequest) (outbox.Payload, string, error) {
	st, err := recognize.ParseSourceType(in.SourceType)
	if err != nil {
		return outbox.Payload{}, "", err
	}
	profile, err := s.app.Profile(ctx)
	if err != nil {
		return outbox.Payload{}, "", err
	}
	return s.app.Payload(profile.Token, st, in.Value, in.Notes), profile.Endpoint, nil
}

// sendRecordHandler performs one delivery attempt. A failed delivery is
// still recorded and answered with 502 and the pending entry.
func (s *Server) sendRecordHandler(w http.ResponseWriter, r *http.Request) {
	var in RecordRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	payload, endpoint, err := s.recordPayload(r.Context(), in)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := s.app.Outbox.AttemptSend(r.Context(), endpoint, payload)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), outboxStatus(err))
		return
	}
	if entry.Status != outbox.StatusSent {
		s.writeJSON(w, http.StatusBadGateway, EntryResponse{Success: false, Entry: entry, Error: entry.Error})
		return
	}
	s.writeJSON(w, http.StatusOK, EntryResponse{Success: true, Entry: entry})
}

func (s *Server) pendingRecordHandler(w http.ResponseWriter, r *http.Request) {
	var in RecordRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	payload, _, err := s.recordPayload(r.Context(), in)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	entry, err := s.app.Outbox.SaveAsPending(r.Context(), payload)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), outboxStatus(err))
		return
	}
	s.writeJSON(w, http.StatusCreated, EntryResponse{Success: true, Entry: entry})
}

func (s *Server) listHistoryHandler(w http.ResponseWriter, r *http.Request) {
	list := s.app.Outbox.List
	if r.URL.Query().Get("status") == string(outbox.StatusPending) {
		list = s.app.Outbox.Pending
	}
	entries, err := list(r.Context())
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := HistoryResponse{Entries: entries, Count: len(entries)}
	if resp.Entries == nil {
		resp.Entries = []outbox.Entry{}
	}
	for _, e := range entries {
		if e.Status == outbox.StatusPending {
			resp.Pending++
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getEntryHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := s.app.Outbox.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErrorResponse(w, err.Error(), outboxStatus(err))
		return
	}
	s.writeJSON(w, http.StatusOK, EntryResponse{Success: true, Entry: entry})
}

func (s *Server) retryEntryHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := s.app.Profile(r.Context())
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	entry, err := s.app.Outbox.Retry(r.Context(), profile.Endpoint, chi.URLParam(r, "id"))
	if err != nil {
		s.writeErrorResponse(w, err.Error(), outboxStatus(err))
		return
	}
	if entry.Status != outbox.StatusSent {
		s.writeJSON(w, http.StatusBadGateway, EntryResponse{Success: false, Entry: entry, Error: entry.Error})
		return
	}
	s.writeJSON(w, http.StatusOK, EntryResponse{Success: true, Entry: entry})
}

// retryAllHandler runs a full retry sweep and reports every outcome.
func (s *Server) retryAllHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := s.app.Profile(r.Context())
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	entries := []outbox.Entry{}
	sum, err := s.app.Outbox.RetryAllPending(r.Context(), profile.Endpoint, func(e outbox.Entry) {
		entries = append(entries, e)
	})
	if err != nil {
		s.writeErrorResponse(w, err.Error(), outboxStatus(err))
		return
	}
	s.writeJSON(w, http.StatusOK, RetryAllResponse{Success: sum.Pending == 0, Summary: sum, Entries: entries})
}

func (s *Server) deleteEntryHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Outbox.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Outbox.ClearAll(r.Context()); err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// outboxStatus maps outbox errors to HTTP statuses.
func outboxStatus(err error) int {
	switch {
	case errors.Is(err, outbox.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, outbox.ErrNotPending), errors.Is(err, outbox.ErrNothingPending):
		return http.StatusConflict
	case errors.Is(err, outbox.ErrMissingEndpoint),
		errors.Is(err, outbox.ErrMissingToken),
		errors.Is(err, outbox.ErrEmptyValue):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
