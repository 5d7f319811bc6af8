package conversation

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Store errors.
var (
	// ErrUnknownMessage is returned when a placeholder operation references
	// an id the store has never issued.
	ErrUnknownMessage = errors.New("conversation: unknown message id")

	// ErrAlreadySettled is returned when a placeholder is resolved or failed
	// a second time. Placeholders settle exactly once.
	ErrAlreadySettled = errors.New("conversation: message already settled")

	// ErrConversationIDSet is returned when the conversation id would be
	// assigned twice.
	ErrConversationIDSet = errors.New("conversation: conversation id already set")
)

// Store owns the ordered message history and session context of one active
// conversation. Safe for concurrent use; ordering is append order.
type Store struct {
	mu     sync.Mutex
	ctx    Context
	msgs   []Message
	nextID int64
}

// NewStore creates a Store for a session with the given context. A non-empty
// ConversationID means the session continues a persisted conversation.
func NewStore(sessionCtx Context) *Store {
	return &Store{ctx: sessionCtx, nextID: 1}
}

// Context returns a copy of the session context.
func (s *Store) Context() Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.ctx
	cp.Topics = append([]string(nil), s.ctx.Topics...)
	cp.LearningGoals = append([]string(nil), s.ctx.LearningGoals...)
	return cp
}

// SetConversationID records the backend-assigned id for this conversation.
// The id transitions empty→set exactly once; any later call is an error.
func (s *Store) SetConversationID(id string) error {
	if id == "" {
		return fmt.Errorf("conversation: conversation id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.ConversationID != "" {
		return ErrConversationIDSet
	}
	s.ctx.ConversationID = id
	return nil
}

// MarkStarted stamps the session start time on the first turn. Later calls
// are no-ops.
func (s *Store) MarkStarted(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.StartedAt.IsZero() {
		s.ctx.StartedAt = now
	}
}

// AppendPlaceholder inserts a pending message for sender and returns its id.
// This is the optimistic-UI path: the learner sees the turn immediately,
// before any network round trip completes.
func (s *Store) AppendPlaceholder(sender Sender) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.msgs = append(s.msgs, Message{
		ID:        id,
		Sender:    sender,
		Timestamp: time.Now().UTC(),
		State:     StatePending,
	})
	return id
}

// Resolve settles a pending placeholder with its final content. Each
// placeholder settles exactly once; resolving a settled or unknown message is
// an error. Returns a copy of the resolved message.
func (s *Store) Resolve(id int64, text, romanized string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findLocked(id)
	if m == nil {
		return Message{}, ErrUnknownMessage
	}
	if m.State != StatePending {
		return Message{}, ErrAlreadySettled
	}
	m.Text = text
	m.Romanized = romanized
	m.State = StateFinal
	return *m, nil
}

// Fail settles a pending placeholder as failed with a short reason. The
// message remains in history so the turn's loss is visible rather than
// leaving a forever-pending entry.
func (s *Store) Fail(id int64, reason string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.findLocked(id)
	if m == nil {
		return Message{}, ErrUnknownMessage
	}
	if m.State != StatePending {
		return Message{}, ErrAlreadySettled
	}
	m.State = StateFailed
	m.FailReason = reason
	return *m, nil
}

// SetTTSURL records the synthesis URL on a settled message so replays reuse
// the stored audio. Unknown ids are ignored.
func (s *Store) SetTTSURL(id int64, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.findLocked(id); m != nil {
		m.TTSURL = url
	}
}

// Append adds a final (non-placeholder) message and returns its id.
func (s *Store) Append(sender Sender, text string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.msgs = append(s.msgs, Message{
		ID:        id,
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UTC(),
		State:     StateFinal,
	})
	return id
}

// LoadHistory replaces the message list with messages from a persisted
// conversation, marking each as FromOriginal. Ids are reassigned.
func (s *Store) LoadHistory(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = s.msgs[:0]
	for _, m := range msgs {
		m.ID = s.nextID
		s.nextID++
		m.State = StateFinal
		m.FromOriginal = true
		s.msgs = append(s.msgs, m)
	}
}

// RestoreHistory replaces the message list with a previously unsaved
// session's messages. Unlike [Store.LoadHistory] the entries are not marked
// FromOriginal, so a later save still persists them. Ids are reassigned.
func (s *Store) RestoreHistory(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = s.msgs[:0]
	for _, m := range msgs {
		m.ID = s.nextID
		s.nextID++
		m.State = StateFinal
		s.msgs = append(s.msgs, m)
	}
}

// Messages returns a copy of the full history in conversation order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Message, len(s.msgs))
	copy(cp, s.msgs)
	return cp
}

// Len returns the number of messages in history.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// findLocked returns the message with the given id. Caller holds s.mu.
func (s *Store) findLocked(id int64) *Message {
	// Placeholder settles target recent messages; scan from the tail.
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if s.msgs[i].ID == id {
			return &s.msgs[i]
		}
	}
	return nil
}
