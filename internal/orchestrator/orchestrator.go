// Package orchestrator sequences one learner turn through the tutoring
// pipeline: transcription, optional short feedback, the AI reply, best-effort
// persistence, and detached speech playback.
//
// The per-turn state machine is strictly sequential and non-reentrant; a
// second Turn while one is running returns [ErrBusy]. TTS playback for the
// reply is launched in the background so the pipeline returns to idle as
// soon as the reply text is settled. The learner-visible message history is
// mutated exclusively through the conversation store's placeholder
// operations, so every turn shows up instantly and settles exactly once.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parlancehq/parlance/internal/conversation"
	"github.com/parlancehq/parlance/internal/observe"
	"github.com/parlancehq/parlance/internal/playback"
	"github.com/parlancehq/parlance/internal/progress"
	"github.com/parlancehq/parlance/internal/vocab"
	"github.com/parlancehq/parlance/pkg/audio"
	"github.com/parlancehq/parlance/pkg/backend"
	"github.com/parlancehq/parlance/pkg/provider/stt"
)

// Orchestrator errors.
var (
	// ErrBusy is returned by Turn while a previous turn is still running.
	ErrBusy = errors.New("orchestrator: turn already in progress")

	// ErrEmptyClip is returned by Turn for a clip with no audio.
	ErrEmptyClip = errors.New("orchestrator: empty audio clip")
)

// Tutor is the slice of the backend API the orchestrator drives. It is an
// interface so turn tests can script replies and observe call order.
// *backend.Client is the production implementation.
type Tutor interface {
	AIResponse(ctx context.Context, req backend.AIResponseRequest) (string, error)
	ShortFeedback(ctx context.Context, req backend.ShortFeedbackRequest) (string, error)
	ConversationSummary(ctx context.Context, req backend.SummaryRequest) (*backend.SummaryResult, error)
	CreateConversation(ctx context.Context, req backend.CreateConversationRequest) (*backend.Conversation, error)
	AddMessage(ctx context.Context, conversationID string, msg backend.ConversationMessage) error
	UpdateTitle(ctx context.Context, conversationID, title string) error
}

var _ Tutor = (*backend.Client)(nil)

// Speaker is the playback surface the orchestrator uses.
// *playback.Manager is the production implementation.
type Speaker interface {
	Play(ctx context.Context, text, language, cacheKey string) error
	Enqueue(text, language, cacheKey string)
	CachedURL(cacheKey string) (string, bool)
	Stop()
}

var _ Speaker = (*playback.Manager)(nil)

// TurnOptions are the per-turn session toggles.
type TurnOptions struct {
	// AutoSpeak routes the reply through the auto-speak queue and enables
	// short feedback.
	AutoSpeak bool

	// ShortFeedback requests a quick correction of the learner's utterance
	// before the reply. Only honoured together with AutoSpeak.
	ShortFeedback bool

	// PreferRomanized speaks the romanised rendering of the reply when the
	// backend provides one.
	PreferRomanized bool
}

// TurnResult is the outcome of one successful turn.
type TurnResult struct {
	// UserMessage is the settled learner message.
	UserMessage conversation.Message

	// AIMessage is the settled reply message.
	AIMessage conversation.Message

	// Feedback is the short-feedback text, empty when not requested or when
	// the feedback call failed.
	Feedback string

	// Corrections lists vocabulary substitutions applied to the transcript.
	Corrections []vocab.Correction
}

// SummaryOutcome is the end-of-conversation result: the summary text plus
// the learner's folded goal progress.
type SummaryOutcome struct {
	Title    string
	Summary  string
	Progress []progress.SubgoalProgress
	LevelUps []progress.LevelUpEvent
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCorrector enables phonetic transcript correction against the
// learner's vocabulary list.
func WithCorrector(c *vocab.Corrector, vocabulary []string) Option {
	return func(o *Orchestrator) {
		o.corrector = c
		o.vocabulary = vocabulary
	}
}

// WithProgress enables end-of-conversation goal tracking for userID.
func WithProgress(store *progress.Store, userID string) Option {
	return func(o *Orchestrator) {
		o.progress = store
		o.userID = userID
	}
}

// WithMetrics records pipeline metrics. Nil metrics are skipped.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the orchestrator logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// Orchestrator runs the turn pipeline for one tutoring session.
type Orchestrator struct {
	store   *conversation.Store
	stt     stt.Provider
	tutor   Tutor
	speaker Speaker

	corrector  *vocab.Corrector
	vocabulary []string
	progress   *progress.Store
	userID     string
	metrics    *observe.Metrics
	log        *slog.Logger

	busy atomic.Bool
	wg   sync.WaitGroup
	now  func() time.Time
}

// New creates an Orchestrator for the session held in store.
func New(store *conversation.Store, sttProvider stt.Provider, tutor Tutor, speaker Speaker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		stt:     sttProvider,
		tutor:   tutor,
		speaker: speaker,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Busy reports whether a turn is currently running. The capture control is
// disabled while true, which is what prevents interleaved turns.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// Wait blocks until all detached playback work launched by previous turns
// has finished. Used by tests and by session teardown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Turn runs one full learner turn from a finalised clip. The pipeline is
// strictly sequential: transcribe, optional short feedback, reply,
// best-effort persistence; playback of the reply is detached. An error from
// the reply stage settles the AI placeholder as failed and appends a system
// message, so the history never shows a forever-pending entry.
func (o *Orchestrator) Turn(ctx context.Context, clip *audio.Clip, opts TurnOptions) (*TurnResult, error) {
	if clip.Empty() {
		return nil, ErrEmptyClip
	}
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer o.busy.Store(false)

	sessCtx := o.store.Context()
	language := sessCtx.Language
	o.store.MarkStarted(o.now())
	turnStart := o.now()

	// Optimistic placeholder: the learner sees the turn before any network
	// round trip completes.
	userMsgID := o.store.AppendPlaceholder(conversation.SenderUser)

	transcript, err := o.transcribe(ctx, clip, language)
	if err != nil {
		if _, failErr := o.store.Fail(userMsgID, "transcription failed"); failErr != nil {
			o.log.Error("settle failed placeholder", slog.String("error", failErr.Error()))
		}
		o.recordTurn(ctx, language, "stt_error")
		return nil, fmt.Errorf("orchestrator: transcribe: %w", err)
	}

	text := transcript.Text
	var corrections []vocab.Correction
	if o.corrector != nil && !transcript.Fallback {
		text, corrections = o.corrector.Correct(text, o.vocabulary)
	}

	userMsg, err := o.store.Resolve(userMsgID, text, transcript.Romanized)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: settle user message: %w", err)
	}
	o.persist(ctx, userMsg)

	var feedback string
	if opts.AutoSpeak && opts.ShortFeedback && !transcript.Fallback {
		// Feedback is requested before the reply on purpose: it must reflect
		// exactly what was just said, not race the next AI turn.
		feedback = o.shortFeedback(ctx, text, sessCtx)
	}

	aiID := o.store.AppendPlaceholder(conversation.SenderAI)
	reply, err := o.aiReply(ctx, text, sessCtx)
	if err != nil {
		if _, failErr := o.store.Fail(aiID, "reply unavailable"); failErr != nil {
			o.log.Error("settle failed placeholder", slog.String("error", failErr.Error()))
		}
		o.store.Append(conversation.SenderSystem,
			"The tutor could not respond. Please try again.")
		o.recordTurn(ctx, language, "reply_error")
		return nil, fmt.Errorf("orchestrator: ai reply: %w", err)
	}

	aiMsg, err := o.store.Resolve(aiID, reply, "")
	if err != nil {
		return nil, fmt.Errorf("orchestrator: settle ai message: %w", err)
	}
	o.persist(ctx, aiMsg)

	o.speak(ctx, aiMsg, language, opts)

	if o.metrics != nil {
		o.metrics.TurnDuration.Record(ctx, o.now().Sub(turnStart).Seconds())
	}
	o.recordTurn(ctx, language, "ok")

	return &TurnResult{
		UserMessage: userMsg,
		AIMessage:   aiMsg,
		Feedback:    feedback,
		Corrections: corrections,
	}, nil
}

// transcribe runs STT with stage timing.
func (o *Orchestrator) transcribe(ctx context.Context, clip *audio.Clip, language string) (*stt.Transcript, error) {
	start := o.now()
	transcript, err := o.stt.Transcribe(ctx, clip, language)
	if o.metrics != nil {
		o.metrics.STTDuration.Record(ctx, o.now().Sub(start).Seconds())
		if err != nil {
			o.metrics.RecordProviderError(ctx, "stt", "transcribe")
		}
	}
	return transcript, err
}

// shortFeedback fetches the quick correction. Failures are contained here:
// feedback is a secondary feature, so an error degrades to no feedback
// rather than failing the turn.
func (o *Orchestrator) shortFeedback(ctx context.Context, text string, sessCtx conversation.Context) string {
	start := o.now()
	feedback, err := o.tutor.ShortFeedback(ctx, backend.ShortFeedbackRequest{
		Transcription:    text,
		Language:         sessCtx.Language,
		FeedbackLanguage: sessCtx.FeedbackLanguage,
	})
	if o.metrics != nil {
		o.metrics.FeedbackDuration.Record(ctx, o.now().Sub(start).Seconds())
	}
	if err != nil {
		o.log.Warn("short feedback unavailable", slog.String("error", err.Error()))
		return ""
	}
	return feedback
}

// aiReply fetches the tutor's reply with the full settled history.
func (o *Orchestrator) aiReply(ctx context.Context, text string, sessCtx conversation.Context) (string, error) {
	start := o.now()
	reply, err := o.tutor.AIResponse(ctx, backend.AIResponseRequest{
		Transcription:    text,
		ChatHistory:      o.history(),
		Language:         sessCtx.Language,
		UserLevel:        sessCtx.UserLevel,
		UserTopics:       sessCtx.Topics,
		UserGoals:        sessCtx.LearningGoals,
		Formality:        sessCtx.Formality,
		FeedbackLanguage: sessCtx.FeedbackLanguage,
	})
	if o.metrics != nil {
		o.metrics.ReplyDuration.Record(ctx, o.now().Sub(start).Seconds())
		if err != nil {
			o.metrics.RecordProviderError(ctx, "tutor", "reply")
		}
	}
	return reply, err
}

// speak launches reply playback without blocking the pipeline. Auto-speak
// routes through the FIFO queue; manual mode plays directly with the usual
// interrupt semantics. The spoken URL is stamped onto the message afterwards
// so replays reuse the stored audio.
func (o *Orchestrator) speak(ctx context.Context, msg conversation.Message, language string, opts TurnOptions) {
	text := msg.Text
	if opts.PreferRomanized && msg.Romanized != "" {
		text = msg.Romanized
	}
	key := ttsKey(msg.ID)

	if opts.AutoSpeak {
		o.speaker.Enqueue(text, language, key)
		return
	}

	detached := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		start := o.now()
		err := o.speaker.Play(detached, text, language, key)
		if o.metrics != nil {
			o.metrics.TTSDuration.Record(detached, o.now().Sub(start).Seconds())
		}
		if err != nil && !errors.Is(err, playback.ErrInterrupted) {
			o.log.Warn("reply playback failed",
				slog.Int64("message_id", msg.ID),
				slog.String("error", err.Error()))
			return
		}
		if url, ok := o.speaker.CachedURL(key); ok {
			o.store.SetTTSURL(msg.ID, url)
		}
	}()
}

// persist writes a settled message to the backend when the conversation has
// an id. Persistence is best-effort: failures are logged, never blocking.
func (o *Orchestrator) persist(ctx context.Context, msg conversation.Message) {
	convID := o.store.Context().ConversationID
	if convID == "" {
		return
	}
	err := o.tutor.AddMessage(ctx, convID, backend.ConversationMessage{
		Sender:    string(msg.Sender),
		Text:      msg.Text,
		Romanized: msg.Romanized,
		Timestamp: msg.Timestamp,
	})
	if err != nil {
		o.log.Warn("persist message failed",
			slog.String("conversation_id", convID),
			slog.Int64("message_id", msg.ID),
			slog.String("error", err.Error()))
	}
}

// history returns the settled user and AI messages in conversation order,
// in the wire shape the backend expects. Pending, failed and system entries
// are excluded.
func (o *Orchestrator) history() []backend.HistoryMessage {
	msgs := o.store.Messages()
	history := make([]backend.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.State != conversation.StateFinal || m.Sender == conversation.SenderSystem {
			continue
		}
		history = append(history, backend.HistoryMessage{
			Sender: string(m.Sender),
			Text:   m.Text,
		})
	}
	return history
}

// recordTurn increments the turn counter when metrics are attached.
func (o *Orchestrator) recordTurn(ctx context.Context, language, status string) {
	if o.metrics != nil {
		o.metrics.RecordTurn(ctx, language, status)
	}
}

// ttsKey derives the playback cache key for a message.
func ttsKey(messageID int64) string {
	return fmt.Sprintf("msg/%d", messageID)
}
