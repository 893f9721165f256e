package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/funnelkit/journey/logger"
	"github.com/funnelkit/journey/model"
	"github.com/funnelkit/journey/persistence"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) HandlePublishDefinition(w http.ResponseWriter, r *http.Request) {
	var wf model.WorkflowDefinition
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid workflow definition")
		return
	}
	if err := model.Validate(&wf); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.definitions.Save(r.Context(), &wf); err != nil {
		logger.Error("error saving workflow definition", zap.String("workflow", wf.Id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.definitionCache.Invalidate(wf.Id)
	logger.Info("published workflow definition", zap.String("workflow", wf.Id), zap.Int("version", wf.Version))
	respondOK(w, "definition published")
}

func (s *Server) HandleGetDefinition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wf, err := s.definitions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "definition not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, wf)
}

func (s *Server) HandleDeleteDefinition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.definitions.Delete(r.Context(), id); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.definitionCache.Invalidate(id)
	respondOK(w, "definition deleted")
}
