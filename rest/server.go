package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/funnelkit/journey/cache"
	"github.com/funnelkit/journey/event"
	"github.com/funnelkit/journey/logger"
	"github.com/funnelkit/journey/persistence"
	"github.com/funnelkit/journey/trigger"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

var timeNow = time.Now

type Server struct {
	http.Server
	Port             int
	enrollments      persistence.EnrollmentStore
	definitions      persistence.DefinitionStore
	definitionCache  *cache.DefinitionCache
	triggerEvaluator *trigger.Evaluator
	resumeService    *event.Service
	staleWaitCutoff  time.Duration
}

func NewServer(httpPort int, enrollments persistence.EnrollmentStore, definitions persistence.DefinitionStore,
	definitionCache *cache.DefinitionCache, triggerEvaluator *trigger.Evaluator, resumeService *event.Service,
	staleWaitCutoff time.Duration) (*Server, error) {

	s := &Server{
		Server: http.Server{
			Addr: fmt.Sprintf(":%d", httpPort),
		},
		Port:             httpPort,
		enrollments:      enrollments,
		definitions:      definitions,
		definitionCache:  definitionCache,
		triggerEvaluator: triggerEvaluator,
		resumeService:    resumeService,
		staleWaitCutoff:  staleWaitCutoff,
	}

	router := mux.NewRouter()
	router.HandleFunc("/events", s.HandleEvent).Methods(http.MethodPost)
	router.HandleFunc("/definitions", s.HandlePublishDefinition).Methods(http.MethodPost)
	router.HandleFunc("/definitions/{id}", s.HandleGetDefinition).Methods(http.MethodGet)
	router.HandleFunc("/definitions/{id}", s.HandleDeleteDefinition).Methods(http.MethodDelete)
	router.HandleFunc("/enrollments/stale", s.HandleStaleWaiting).Methods(http.MethodGet)
	router.HandleFunc("/enrollments/{id}", s.HandleGetEnrollment).Methods(http.MethodGet)
	router.HandleFunc("/enrollments/{id}/history", s.HandleGetHistory).Methods(http.MethodGet)
	router.HandleFunc("/enrollments/{id}/pause", s.HandlePauseEnrollment).Methods(http.MethodPost)
	router.HandleFunc("/enrollments/{id}/resume", s.HandleResumeEnrollment).Methods(http.MethodPost)
	router.HandleFunc("/enrollments/{id}/cancel", s.HandleCancelEnrollment).Methods(http.MethodPost)
	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server")
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message string) {
	respondWithJSON(w, http.StatusOK, map[string]string{"message": message})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
