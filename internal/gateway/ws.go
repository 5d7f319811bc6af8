package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/parlancehq/parlance/internal/capture"
	"github.com/parlancehq/parlance/internal/conversation"
	"github.com/parlancehq/parlance/internal/orchestrator"
	"github.com/parlancehq/parlance/internal/playback"
	"github.com/parlancehq/parlance/pkg/audio"
	"github.com/parlancehq/parlance/pkg/provider/vad"
)

// handleSession upgrades the request and runs a tutoring session until the
// client disconnects.
//
// Session parameters come from the query string: language (required),
// feedback_language, formality, user_level, topics, goals, user_id, and
// conversation_id to resume a persisted conversation.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	language := q.Get("language")
	if language == "" {
		s.writeError(w, http.StatusBadRequest, "language is required")
		return
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer func() {
		_ = ws.Close(websocket.StatusNormalClosure, "session ended")
	}()
	// Audio frames are small but frequent; the default read cap is far too
	// low for a long recording burst.
	ws.SetReadLimit(1 << 20)

	sessCtx := conversation.Context{
		ConversationID:   q.Get("conversation_id"),
		Language:         language,
		Formality:        q.Get("formality"),
		Topics:           q["topics"],
		LearningGoals:    q["goals"],
		UserLevel:        q.Get("user_level"),
		FeedbackLanguage: q.Get("feedback_language"),
	}
	userID := q.Get("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	sess := s.newSession(&wsConn{ws: ws}, sessCtx, userID, q["vocab"])

	if sessCtx.ConversationID != "" {
		s.resumeHistory(r.Context(), sess, sessCtx.ConversationID)
	} else {
		s.restoreUnsaved(r.Context(), sess, userID, language)
	}

	if m := s.deps.Metrics; m != nil {
		m.SessionStarted(r.Context())
		defer m.SessionEnded(context.Background())
	}

	s.log.Info("session started",
		slog.String("language", language),
		slog.String("user_id", userID),
		slog.String("conversation_id", sessCtx.ConversationID))
	sess.run(r.Context())
	s.log.Info("session ended", slog.String("user_id", userID))
}

// newSession assembles the per-connection pipeline: socket-fed capture,
// conversation store, playback through the client's audio element, and the
// orchestrator on top.
func (s *Server) newSession(conn sessionConn, sessCtx conversation.Context, userID string, vocabulary []string) *Session {
	sess := &Session{
		conn:    conn,
		unsaved: s.deps.Unsaved,
		userID:  userID,
		log:     s.log.With(slog.String("user_id", userID)),
	}

	sess.source = &socketSource{}
	sess.store = conversation.NewStore(sessCtx)
	sess.player = newRemotePlayer(sess.sendEvent)

	streamCfg := audio.StreamConfig{
		SampleRate:    s.cfg.Capture.SampleRate,
		Channels:      1,
		FrameDuration: time.Duration(s.cfg.Capture.FrameSizeMs) * time.Millisecond,
	}
	sess.capture = capture.NewSession(sess.source, s.deps.VAD, streamCfg,
		capture.WithMaxAutoDuration(s.cfg.Capture.MaxAutoDuration.Std()),
		capture.WithVADConfig(vad.Config{
			SpeechThreshold:  s.cfg.Capture.SpeechThreshold,
			SilenceThreshold: s.cfg.Capture.SilenceThreshold,
			HangoverFrames:   s.cfg.Capture.HangoverFrames,
		}),
		capture.WithLogger(sess.log),
	)

	playbackOpts := []playback.Option{
		playback.WithCache(s.cfg.Playback.CacheSize, s.cfg.Playback.CacheTTL.Std()),
		playback.WithProbePolicy(s.cfg.Playback.ProbeAttempts, s.cfg.Playback.ProbeDelay.Std()),
		playback.WithLogger(sess.log),
	}
	if s.deps.Prober != nil {
		playbackOpts = append(playbackOpts, playback.WithProber(s.deps.Prober))
	}
	sess.speaker = playback.NewManager(s.deps.TTS, sess.player, playbackOpts...)

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(sess.log),
	}
	if s.deps.Metrics != nil {
		orchOpts = append(orchOpts, orchestrator.WithMetrics(s.deps.Metrics))
	}
	if s.deps.Progress != nil {
		orchOpts = append(orchOpts, orchestrator.WithProgress(s.deps.Progress, userID))
	}
	if s.deps.Corrector != nil && len(vocabulary) > 0 {
		orchOpts = append(orchOpts, orchestrator.WithCorrector(s.deps.Corrector, vocabulary))
	}
	sess.orch = orchestrator.New(sess.store, s.deps.STT, s.deps.Backend, sess.speaker, orchOpts...)

	return sess
}

// resumeHistory loads a persisted conversation into the session store.
// Failures degrade to an empty history; the conversation id stays set so new
// messages still persist.
func (s *Server) resumeHistory(ctx context.Context, sess *Session, conversationID string) {
	conv, err := s.deps.Backend.GetConversation(ctx, conversationID)
	if err != nil {
		s.log.Warn("resume conversation failed",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()))
		return
	}
	msgs := make([]conversation.Message, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		msgs = append(msgs, conversation.Message{
			Sender:    conversation.Sender(m.Sender),
			Text:      m.Text,
			Romanized: m.Romanized,
			Timestamp: m.Timestamp,
		})
	}
	sess.store.LoadHistory(msgs)
}

// restoreUnsaved loads the learner's unsaved conversation into the session
// store. Restored messages are not FromOriginal, so a later save persists
// them to the backend.
func (s *Server) restoreUnsaved(ctx context.Context, sess *Session, userID, language string) {
	if s.deps.Unsaved == nil {
		return
	}
	msgs, err := s.deps.Unsaved.Load(ctx, userID, language)
	if err != nil {
		s.log.Warn("restore unsaved history failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return
	}
	if len(msgs) > 0 {
		sess.store.RestoreHistory(msgs)
	}
}

// wsConn adapts a live websocket to the sessionConn surface.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) ReadMessage(ctx context.Context) (bool, []byte, error) {
	typ, data, err := c.ws.Read(ctx)
	if err != nil {
		return false, nil, err
	}
	return typ == websocket.MessageBinary, data, nil
}

func (c *wsConn) WriteText(ctx context.Context, data []byte) error {
	return c.ws.Write(ctx, websocket.MessageText, data)
}
