package rest

import (
	"encoding/json"
	"net/http"

	"github.com/funnelkit/journey/logger"
	"github.com/funnelkit/journey/model"
	"go.uber.org/zap"
)

// HandleEvent ingests an external event. The same event both starts new
// enrollments through matching triggers and resumes enrollments waiting
// on its type, in that order.
func (s *Server) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var event model.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid event payload")
		return
	}
	if event.Type == "" || event.EntityId == "" {
		respondWithError(w, http.StatusBadRequest, "event type and entityId are required")
		return
	}

	enrolled, err := s.triggerEvaluator.Evaluate(r.Context(), event)
	if err != nil {
		logger.Error("error evaluating triggers", zap.String("eventType", event.Type), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.resumeService.Resume(r.Context(), event.Type, event.EntityId, event.Payload); err != nil {
		logger.Error("error resuming waiting enrollments", zap.String("eventType", event.Type), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"enrolled": enrolled,
	})
}
