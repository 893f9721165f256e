package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/funnelkit/journey/persistence"
	"github.com/gorilla/mux"
)

func (s *Server) HandleGetEnrollment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	enrollment, err := s.enrollments.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "enrollment not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, enrollment)
}

func (s *Server) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	enrollment, err := s.enrollments.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "enrollment not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, enrollment.History)
}

func (s *Server) HandlePauseEnrollment(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, true)
}

func (s *Server) HandleResumeEnrollment(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, false)
}

func (s *Server) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	id := mux.Vars(r)["id"]
	if err := s.enrollments.SetPaused(r.Context(), id, paused); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "enrollment not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if paused {
		respondOK(w, "enrollment paused")
		return
	}
	respondOK(w, "enrollment resumed")
}

// HandleCancelEnrollment raises the cancel flag and tries to finalize
// inline; if the claim is lost the flag is observed at the next wake.
func (s *Server) HandleCancelEnrollment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.resumeService.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "enrollment not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, "cancel requested")
}

// HandleStaleWaiting reports enrollments that have been waiting for an
// event longer than the configured cutoff.
func (s *Server) HandleStaleWaiting(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondWithError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	cutoff := timeNow().Add(-s.staleWaitCutoff)
	stale, err := s.enrollments.FindStaleWaiting(r.Context(), cutoff, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, stale)
}
