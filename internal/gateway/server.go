// Package gateway exposes the tutoring pipeline to clients: a websocket
// session endpoint carrying microphone audio up and conversation events
// down, plus REST endpoints for the text-side features (translation,
// suggestions, breakdowns, summaries).
package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parlancehq/parlance/internal/config"
	"github.com/parlancehq/parlance/internal/conversation"
	"github.com/parlancehq/parlance/internal/health"
	"github.com/parlancehq/parlance/internal/observe"
	"github.com/parlancehq/parlance/internal/orchestrator"
	"github.com/parlancehq/parlance/internal/playback"
	"github.com/parlancehq/parlance/internal/progress"
	"github.com/parlancehq/parlance/internal/vocab"
	"github.com/parlancehq/parlance/pkg/backend"
	"github.com/parlancehq/parlance/pkg/provider/stt"
	"github.com/parlancehq/parlance/pkg/provider/tts"
	"github.com/parlancehq/parlance/pkg/provider/vad"
)

// Backend is the slice of the tutor API the gateway serves directly or via
// the orchestrator. *backend.Client is the production implementation; tests
// script it.
type Backend interface {
	orchestrator.Tutor

	Translate(ctx context.Context, req backend.TranslateRequest) (*backend.TranslateResult, error)
	DetailedBreakdown(ctx context.Context, req backend.BreakdownRequest) (*backend.BreakdownResult, error)
	Suggestions(ctx context.Context, req backend.SuggestionsRequest) (*backend.SuggestionsResult, error)
	ExplainSuggestion(ctx context.Context, req backend.ExplainSuggestionRequest) (*backend.ExplainSuggestionResult, error)
	GetConversation(ctx context.Context, conversationID string) (*backend.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

var _ Backend = (*backend.Client)(nil)

// Deps are the shared subsystems a Server builds sessions from.
type Deps struct {
	// Backend is the tutor API client.
	Backend Backend

	// STT transcribes finalised clips; usually a resilience chain over the
	// backend plus configured fallbacks.
	STT stt.Provider

	// TTS synthesises reply audio.
	TTS tts.Provider

	// VAD detects end of speech for auto-captured turns. May be nil when
	// auto-speak is disabled.
	VAD vad.Engine

	// Prober verifies synthesised URLs before playback. May be nil.
	Prober playback.Prober

	// Progress persists learner goal progress. May be nil.
	Progress *progress.Store

	// Unsaved persists not-yet-saved conversation history across
	// disconnects. May be nil.
	Unsaved *conversation.UnsavedStore

	// Corrector fixes phonetic mis-transcriptions of known vocabulary. May
	// be nil.
	Corrector *vocab.Corrector

	// Metrics records pipeline and HTTP instrumentation. May be nil.
	Metrics *observe.Metrics

	// Health performs readiness checks.
	Health *health.Handler

	// Logger is the server logger. Defaults to slog.Default.
	Logger *slog.Logger
}

// Server is the HTTP surface of Parlance.
type Server struct {
	cfg  *config.Config
	deps Deps
	log  *slog.Logger
}

// NewServer creates a Server from cfg and deps.
func NewServer(cfg *config.Config, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, deps: deps, log: log}
}

// Routes builds the router with all middleware and endpoints attached.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if s.deps.Metrics != nil {
		r.Use(observe.Middleware(s.deps.Metrics))
	}
	if rl := s.cfg.Server.RateLimit; rl != nil {
		r.Use(rateLimit(rl.RequestsPerSecond, rl.Burst))
	}

	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.Healthz)
		r.Get("/readyz", s.deps.Health.Readyz)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/translate", s.handleTranslate)
		r.Post("/breakdown", s.handleBreakdown)
		r.Post("/suggestions", s.handleSuggestions)
		r.Post("/explain-suggestion", s.handleExplainSuggestion)
		r.Delete("/conversations/{id}", s.handleDeleteConversation)
		r.Get("/progress", s.handleProgress)
	})

	r.Get("/ws/session", s.handleSession)

	return r
}
