package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parlancehq/parlance/internal/conversation"
	"github.com/parlancehq/parlance/internal/progress"
	"github.com/parlancehq/parlance/pkg/audio"
	"github.com/parlancehq/parlance/pkg/backend"
	"github.com/parlancehq/parlance/pkg/kvstore/memory"
	"github.com/parlancehq/parlance/pkg/provider/stt"
	sttmock "github.com/parlancehq/parlance/pkg/provider/stt/mock"
)

// recorder collects cross-component events so tests can assert pipeline
// ordering.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) indexOf(e string) int {
	for i, ev := range r.list() {
		if ev == e {
			return i
		}
	}
	return -1
}

// fakeTutor scripts the backend surface of the orchestrator.
type fakeTutor struct {
	rec *recorder

	mu          sync.Mutex
	reply       string
	replyErr    error
	replyGate   chan struct{}
	feedback    string
	feedbackErr error
	summary     *backend.SummaryResult
	summaryErr  error
	conv        *backend.Conversation
	createErr   error
	addErr      error

	aiReqs  []backend.AIResponseRequest
	added   []backend.ConversationMessage
	addedTo []string
	titles  []string
}

func (f *fakeTutor) AIResponse(ctx context.Context, req backend.AIResponseRequest) (string, error) {
	f.mu.Lock()
	f.aiReqs = append(f.aiReqs, req)
	gate := f.replyGate
	f.mu.Unlock()
	f.rec.add("reply")
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.replyErr
}

func (f *fakeTutor) ShortFeedback(ctx context.Context, req backend.ShortFeedbackRequest) (string, error) {
	f.rec.add("feedback")
	return f.feedback, f.feedbackErr
}

func (f *fakeTutor) ConversationSummary(ctx context.Context, req backend.SummaryRequest) (*backend.SummaryResult, error) {
	f.rec.add("summary")
	return f.summary, f.summaryErr
}

func (f *fakeTutor) CreateConversation(ctx context.Context, req backend.CreateConversationRequest) (*backend.Conversation, error) {
	f.rec.add("create")
	return f.conv, f.createErr
}

func (f *fakeTutor) AddMessage(ctx context.Context, conversationID string, msg backend.ConversationMessage) error {
	f.mu.Lock()
	f.added = append(f.added, msg)
	f.addedTo = append(f.addedTo, conversationID)
	f.mu.Unlock()
	f.rec.add("persist:" + msg.Sender)
	return f.addErr
}

func (f *fakeTutor) UpdateTitle(ctx context.Context, conversationID, title string) error {
	f.mu.Lock()
	f.titles = append(f.titles, title)
	f.mu.Unlock()
	f.rec.add("title")
	return nil
}

// fakeSpeaker records playback requests without a real audio path.
type fakeSpeaker struct {
	rec *recorder

	mu       sync.Mutex
	playErr  error
	played   []string
	enqueued []string
}

func (s *fakeSpeaker) Play(ctx context.Context, text, language, cacheKey string) error {
	s.mu.Lock()
	s.played = append(s.played, text)
	s.mu.Unlock()
	s.rec.add("play")
	return s.playErr
}

func (s *fakeSpeaker) Enqueue(text, language, cacheKey string) {
	s.mu.Lock()
	s.enqueued = append(s.enqueued, text)
	s.mu.Unlock()
	s.rec.add("enqueue")
}

func (s *fakeSpeaker) CachedURL(cacheKey string) (string, bool) {
	return "https://cdn.test/" + cacheKey + ".mp3", true
}

func (s *fakeSpeaker) Stop() {}

func testClip() *audio.Clip {
	return &audio.Clip{Data: []byte{1, 2, 3}, MIMEType: "audio/pcm", SampleRate: 16000, Channels: 1}
}

func newTestOrchestrator(transcript string, opts ...Option) (*Orchestrator, *conversation.Store, *fakeTutor, *fakeSpeaker, *recorder) {
	rec := &recorder{}
	store := conversation.NewStore(conversation.Context{Language: "es", FeedbackLanguage: "en"})
	tutor := &fakeTutor{rec: rec, reply: "¡Muy bien!", feedback: "Watch the accent."}
	speaker := &fakeSpeaker{rec: rec}
	provider := &sttmock.Provider{Result: &stt.Transcript{Text: transcript}}
	o := New(store, provider, tutor, speaker, opts...)
	return o, store, tutor, speaker, rec
}

func TestManualTurn(t *testing.T) {
	t.Parallel()

	o, store, tutor, speaker, _ := newTestOrchestrator("Hola")
	res, err := o.Turn(context.Background(), testClip(), TurnOptions{})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	o.Wait()

	if res.UserMessage.Text != "Hola" || res.UserMessage.State != conversation.StateFinal {
		t.Errorf("user message: %+v", res.UserMessage)
	}
	if res.AIMessage.Text != "¡Muy bien!" {
		t.Errorf("ai message: %+v", res.AIMessage)
	}
	if res.Feedback != "" {
		t.Errorf("feedback in manual mode: %q", res.Feedback)
	}

	msgs := store.Messages()
	if len(msgs) != 2 {
		t.Fatalf("history: want 2 messages, got %d", len(msgs))
	}
	if msgs[0].Sender != conversation.SenderUser || msgs[1].Sender != conversation.SenderAI {
		t.Errorf("senders: %s, %s", msgs[0].Sender, msgs[1].Sender)
	}

	// Manual mode plays directly and stamps the spoken URL.
	if len(speaker.played) != 1 || speaker.played[0] != "¡Muy bien!" {
		t.Errorf("played: %v", speaker.played)
	}
	if len(speaker.enqueued) != 0 {
		t.Errorf("enqueued in manual mode: %v", speaker.enqueued)
	}
	if got := store.Messages()[1].TTSURL; got == "" {
		t.Error("spoken URL not stamped on message")
	}

	// The AI request carried the settled user message in history.
	req := tutor.aiReqs[0]
	if req.Transcription != "Hola" || req.Language != "es" {
		t.Errorf("ai request: %+v", req)
	}
	if len(req.ChatHistory) != 1 || req.ChatHistory[0].Text != "Hola" {
		t.Errorf("chat history: %+v", req.ChatHistory)
	}
}

func TestAutoSpeakOrdering(t *testing.T) {
	t.Parallel()

	o, _, _, speaker, rec := newTestOrchestrator("Bonjour")
	res, err := o.Turn(context.Background(), testClip(), TurnOptions{AutoSpeak: true, ShortFeedback: true})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	o.Wait()

	if res.Feedback != "Watch the accent." {
		t.Errorf("feedback: %q", res.Feedback)
	}

	fi, ri, ei := rec.indexOf("feedback"), rec.indexOf("reply"), rec.indexOf("enqueue")
	if fi < 0 || ri < 0 || ei < 0 {
		t.Fatalf("missing stages: %v", rec.list())
	}
	if !(fi < ri && ri < ei) {
		t.Errorf("stage order: %v", rec.list())
	}
	if len(speaker.enqueued) != 1 {
		t.Errorf("auto-speak enqueues: %v", speaker.enqueued)
	}
	if len(speaker.played) != 0 {
		t.Errorf("direct play in auto-speak mode: %v", speaker.played)
	}
}

func TestTurnNonReentrant(t *testing.T) {
	t.Parallel()

	o, _, tutor, _, _ := newTestOrchestrator("Hola")
	tutor.replyGate = make(chan struct{})

	firstErr := make(chan error, 1)
	go func() {
		_, err := o.Turn(context.Background(), testClip(), TurnOptions{})
		firstErr <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !o.Busy() && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if !o.Busy() {
		t.Fatal("first turn never started")
	}

	if _, err := o.Turn(context.Background(), testClip(), TurnOptions{}); !errors.Is(err, ErrBusy) {
		t.Errorf("second turn: want ErrBusy, got %v", err)
	}

	close(tutor.replyGate)
	if err := <-firstErr; err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if o.Busy() {
		t.Error("busy after turn completed")
	}
}

func TestTranscriptionFailureFailsPlaceholder(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	store := conversation.NewStore(conversation.Context{Language: "es"})
	tutor := &fakeTutor{rec: rec, reply: "x"}
	provider := &sttmock.Provider{Err: errors.New("stt down")}
	o := New(store, provider, tutor, &fakeSpeaker{rec: rec})

	if _, err := o.Turn(context.Background(), testClip(), TurnOptions{}); err == nil {
		t.Fatal("expected transcription error")
	}

	msgs := store.Messages()
	if len(msgs) != 1 {
		t.Fatalf("history: %d messages", len(msgs))
	}
	if msgs[0].State != conversation.StateFailed {
		t.Errorf("placeholder state: %s", msgs[0].State)
	}
	if rec.indexOf("reply") >= 0 {
		t.Error("reply requested after failed transcription")
	}
}

func TestReplyFailureAppendsSystemMessage(t *testing.T) {
	t.Parallel()

	o, store, tutor, _, _ := newTestOrchestrator("Hola")
	tutor.replyErr = errors.New("llm down")

	if _, err := o.Turn(context.Background(), testClip(), TurnOptions{}); err == nil {
		t.Fatal("expected reply error")
	}

	msgs := store.Messages()
	if len(msgs) != 3 {
		t.Fatalf("history: %d messages (%+v)", len(msgs), msgs)
	}
	if msgs[0].State != conversation.StateFinal {
		t.Errorf("user message state: %s", msgs[0].State)
	}
	if msgs[1].Sender != conversation.SenderAI || msgs[1].State != conversation.StateFailed {
		t.Errorf("ai placeholder: %+v", msgs[1])
	}
	if msgs[2].Sender != conversation.SenderSystem {
		t.Errorf("system message: %+v", msgs[2])
	}
	if o.Busy() {
		t.Error("busy after failed turn")
	}
}

func TestFallbackTranscriptSkipsFeedback(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	store := conversation.NewStore(conversation.Context{Language: "es"})
	tutor := &fakeTutor{rec: rec, reply: "ok", feedback: "should not appear"}
	provider := &sttmock.Provider{Result: &stt.Transcript{
		Text:     "I couldn't hear anything clearly.",
		Fallback: true,
	}}
	o := New(store, provider, tutor, &fakeSpeaker{rec: rec})

	res, err := o.Turn(context.Background(), testClip(), TurnOptions{AutoSpeak: true, ShortFeedback: true})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if res.Feedback != "" {
		t.Errorf("feedback on fallback sentinel: %q", res.Feedback)
	}
	if rec.indexOf("feedback") >= 0 {
		t.Error("feedback requested for fallback transcript")
	}
}

func TestFeedbackFailureDoesNotFailTurn(t *testing.T) {
	t.Parallel()

	o, _, tutor, _, _ := newTestOrchestrator("Hola")
	tutor.feedbackErr = errors.New("feedback down")

	res, err := o.Turn(context.Background(), testClip(), TurnOptions{AutoSpeak: true, ShortFeedback: true})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if res.Feedback != "" {
		t.Errorf("feedback: %q", res.Feedback)
	}
	if res.AIMessage.Text == "" {
		t.Error("reply missing")
	}
}

func TestPersistenceBestEffort(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	store := conversation.NewStore(conversation.Context{ConversationID: "conv-1", Language: "es"})
	tutor := &fakeTutor{rec: rec, reply: "ok", addErr: errors.New("persist down")}
	provider := &sttmock.Provider{Result: &stt.Transcript{Text: "Hola"}}
	o := New(store, provider, tutor, &fakeSpeaker{rec: rec})

	if _, err := o.Turn(context.Background(), testClip(), TurnOptions{}); err != nil {
		t.Fatalf("Turn failed on persistence error: %v", err)
	}
	o.Wait()

	// Both messages were attempted against the persisted conversation.
	if len(tutor.added) != 2 {
		t.Fatalf("persist attempts: %d", len(tutor.added))
	}
	for _, id := range tutor.addedTo {
		if id != "conv-1" {
			t.Errorf("persisted to: %s", id)
		}
	}
}

func TestNoPersistenceWithoutConversationID(t *testing.T) {
	t.Parallel()

	o, _, tutor, _, _ := newTestOrchestrator("Hola")
	if _, err := o.Turn(context.Background(), testClip(), TurnOptions{}); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	o.Wait()
	if len(tutor.added) != 0 {
		t.Errorf("anonymous session persisted: %+v", tutor.added)
	}
}

func TestEmptyClip(t *testing.T) {
	t.Parallel()

	o, _, _, _, _ := newTestOrchestrator("Hola")
	if _, err := o.Turn(context.Background(), nil, TurnOptions{}); !errors.Is(err, ErrEmptyClip) {
		t.Errorf("want ErrEmptyClip, got %v", err)
	}
}

func TestEnsurePersisted(t *testing.T) {
	t.Parallel()

	o, store, tutor, _, _ := newTestOrchestrator("Hola")
	tutor.conv = &backend.Conversation{ID: "conv-9", Language: "es"}

	// A turn before saving leaves the session anonymous.
	if _, err := o.Turn(context.Background(), testClip(), TurnOptions{}); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	o.Wait()

	id, err := o.EnsurePersisted(context.Background())
	if err != nil {
		t.Fatalf("EnsurePersisted: %v", err)
	}
	if id != "conv-9" {
		t.Errorf("conversation id: %s", id)
	}
	if store.Context().ConversationID != "conv-9" {
		t.Error("id not recorded on session")
	}
	// The pre-save history was backfilled.
	if len(tutor.added) != 2 {
		t.Errorf("backfilled messages: %d", len(tutor.added))
	}

	// Idempotent: no second create.
	if _, err := o.EnsurePersisted(context.Background()); err != nil {
		t.Fatalf("second EnsurePersisted: %v", err)
	}
	if got := tutor.rec.list(); countOf(got, "create") != 1 {
		t.Errorf("create calls: %v", got)
	}
}

func TestEndConversationFoldsProgress(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	store := conversation.NewStore(conversation.Context{
		ConversationID: "conv-1",
		Language:       "es",
		LearningGoals:  []string{"fluency", "vocab"},
	})
	tutor := &fakeTutor{rec: rec, reply: "ok", summary: &backend.SummaryResult{
		Title:   "Ordering food",
		Summary: "You practised restaurant phrases.",
		GoalProgress: []backend.GoalDelta{
			{GoalID: "fluency", Delta: 15},
			{GoalID: "vocab", Delta: 5},
		},
	}}

	progressStore := progress.NewStore(memory.New())
	if err := progressStore.Save(context.Background(), "u1", "es", []progress.SubgoalProgress{
		{SubgoalID: "fluency_1", Percentage: 92},
	}); err != nil {
		t.Fatalf("seed progress: %v", err)
	}

	provider := &sttmock.Provider{Result: &stt.Transcript{Text: "Hola"}}
	o := New(store, provider, tutor, &fakeSpeaker{rec: rec},
		WithProgress(progressStore, "u1"))

	outcome, err := o.EndConversation(context.Background())
	if err != nil {
		t.Fatalf("EndConversation: %v", err)
	}
	if outcome.Summary == "" || outcome.Title != "Ordering food" {
		t.Errorf("outcome: %+v", outcome)
	}
	if len(outcome.LevelUps) != 1 {
		t.Fatalf("level-ups: %+v", outcome.LevelUps)
	}
	if outcome.LevelUps[0].NewLevel != 1 {
		t.Errorf("level-up: %+v", outcome.LevelUps[0])
	}

	// Progress was persisted.
	saved, err := progressStore.Load(context.Background(), "u1", "es")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved[0].Level != 1 || saved[0].Percentage != 7 {
		t.Errorf("saved progress: %+v", saved)
	}

	// The title was stamped onto the persisted conversation.
	if len(tutor.titles) != 1 || tutor.titles[0] != "Ordering food" {
		t.Errorf("titles: %v", tutor.titles)
	}
}

func TestEndConversationDuplicateGoalFoldsOnce(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	store := conversation.NewStore(conversation.Context{
		Language:      "es",
		LearningGoals: []string{"fluency"},
	})
	// The summary repeats a goal id; the last delta wins and is applied once.
	tutor := &fakeTutor{rec: rec, reply: "ok", summary: &backend.SummaryResult{
		Summary: "You practised greetings.",
		GoalProgress: []backend.GoalDelta{
			{GoalID: "fluency", Delta: 5},
			{GoalID: "fluency", Delta: 20},
		},
	}}

	progressStore := progress.NewStore(memory.New())
	if err := progressStore.Save(context.Background(), "u1", "es", []progress.SubgoalProgress{
		{SubgoalID: "fluency_1", Percentage: 10},
	}); err != nil {
		t.Fatalf("seed progress: %v", err)
	}

	provider := &sttmock.Provider{Result: &stt.Transcript{Text: "Hola"}}
	o := New(store, provider, tutor, &fakeSpeaker{rec: rec},
		WithProgress(progressStore, "u1"))

	if _, err := o.EndConversation(context.Background()); err != nil {
		t.Fatalf("EndConversation: %v", err)
	}

	saved, err := progressStore.Load(context.Background(), "u1", "es")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved[0].Level != 0 || saved[0].Percentage != 30 {
		t.Errorf("saved progress: %+v", saved)
	}
}

func countOf(events []string, e string) int {
	n := 0
	for _, ev := range events {
		if ev == e {
			n++
		}
	}
	return n
}
