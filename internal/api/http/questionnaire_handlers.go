package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	appQuestionnaire "github.com/resume-services/questionnaire-hub/internal/application/questionnaire"
	"github.com/resume-services/questionnaire-hub/internal/domain/questionnaire"
)

const maxBodyBytes = 1 << 20

// saveRequest is the camelCase snapshot clients push. Missing fields keep
// their zero values.
type saveRequest struct {
	QuestionnaireID string `json:"questionnaireId"`
	questionnaire.State
}

type fallbackResponse struct {
	Error    string `json:"error"`
	Fallback bool   `json:"fallback"`
}

func respondFallback(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, fallbackResponse{Error: appQuestionnaire.ErrFallback.Error(), Fallback: true})
}

func (s *Server) getQuestionnaire(w http.ResponseWriter, r *http.Request) {
	resp, err := s.questionnaireSvc.Get(r.Context(), chi.URLParam(r, "clientId"), r.URL.Query().Get("questionnaireId"))
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": resp})
}

func (s *Server) saveQuestionnaire(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	resp, err := s.questionnaireSvc.Save(r.Context(), appQuestionnaire.SaveInput{
		ClientID:        chi.URLParam(r, "clientId"),
		QuestionnaireID: req.QuestionnaireID,
		State:           req.State,
	})
	if err != nil {
		s.handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": resp, "success": true})
}

func (s *Server) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appQuestionnaire.ErrFallback):
		respondFallback(w)
	case errors.Is(err, questionnaire.ErrInvalidKey):
		respondError(w, http.StatusBadRequest, "invalid_key", err.Error())
	case errors.Is(err, questionnaire.ErrInvalidState):
		respondError(w, http.StatusBadRequest, "invalid_state", err.Error())
	default:
		s.logger.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("questionnaire request failed")
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
