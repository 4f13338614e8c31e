package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	appQuestionnaire "github.com/resume-services/questionnaire-hub/internal/application/questionnaire"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	questionnaireSvc *appQuestionnaire.Service
	logger           zerolog.Logger
}

func NewServer(questionnaireSvc *appQuestionnaire.Service, logger zerolog.Logger) *Server {
	return &Server{
		questionnaireSvc: questionnaireSvc,
		logger:           logger.With().Str("component", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(traceRequests)

	r.Get("/healthz", s.healthz)

	r.Route("/api/questionnaire", func(r chi.Router) {
		r.Get("/{clientId}", s.getQuestionnaire)
		r.Post("/{clientId}", s.saveQuestionnaire)
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"durable": s.questionnaireSvc.Durable(),
	})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// decodeBody tolerates unknown fields and any content type: beacons arrive as
// text/plain and older clients send extra keys.
func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}
