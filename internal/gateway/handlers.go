package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parlancehq/parlance/pkg/backend"
)

// handleTranslate proxies the translation endpoint.
func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req backend.TranslateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Text == "" || req.Target == "" {
		s.writeError(w, http.StatusBadRequest, "text and target_language are required")
		return
	}
	res, err := s.deps.Backend.Translate(r.Context(), req)
	if err != nil {
		s.writeBackendError(w, "translate", err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleBreakdown proxies the detailed-breakdown endpoint.
func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	var req backend.BreakdownRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Text == "" || req.Language == "" {
		s.writeError(w, http.StatusBadRequest, "text and language are required")
		return
	}
	res, err := s.deps.Backend.DetailedBreakdown(r.Context(), req)
	if err != nil {
		s.writeBackendError(w, "breakdown", err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleSuggestions proxies the reply-suggestions endpoint.
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	var req backend.SuggestionsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Language == "" {
		s.writeError(w, http.StatusBadRequest, "language is required")
		return
	}
	res, err := s.deps.Backend.Suggestions(r.Context(), req)
	if err != nil {
		s.writeBackendError(w, "suggestions", err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleExplainSuggestion proxies the suggestion-explanation endpoint.
func (s *Server) handleExplainSuggestion(w http.ResponseWriter, r *http.Request) {
	var req backend.ExplainSuggestionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Suggestion == "" {
		s.writeError(w, http.StatusBadRequest, "suggestion is required")
		return
	}
	res, err := s.deps.Backend.ExplainSuggestion(r.Context(), req)
	if err != nil {
		s.writeBackendError(w, "explain suggestion", err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleDeleteConversation proxies conversation deletion.
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "conversation id is required")
		return
	}
	if err := s.deps.Backend.DeleteConversation(r.Context(), id); err != nil {
		s.writeBackendError(w, "delete conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleProgress returns the stored goal progress for a learner and
// language.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.Progress == nil {
		s.writeError(w, http.StatusNotFound, "progress tracking is not configured")
		return
	}
	userID := r.URL.Query().Get("user_id")
	language := r.URL.Query().Get("language")
	if userID == "" || language == "" {
		s.writeError(w, http.StatusBadRequest, "user_id and language are required")
		return
	}
	current, err := s.deps.Progress.Load(r.Context(), userID, language)
	if err != nil {
		s.log.Error("load progress", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "could not load progress")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"progress": current})
}

// decode reads a JSON body into dst, replying 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeBackendError maps a backend failure onto an HTTP response. Backend
// status codes pass through; transport errors become 502.
func (s *Server) writeBackendError(w http.ResponseWriter, op string, err error) {
	s.log.Warn(op+" failed", slog.String("error", err.Error()))
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		s.writeError(w, apiErr.Status, op+" rejected by backend")
		return
	}
	s.writeError(w, http.StatusBadGateway, op+" unavailable")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("write response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
