// Package conversation holds the in-memory state of one active tutoring
// conversation: the ordered message history with placeholder support, and the
// session context (language, formality, goals, persisted conversation id).
//
// The store is the single owner of message state for a live session. The
// orchestrator mutates it through placeholder operations so the learner sees
// an instant pending message for every turn, resolved or failed exactly once
// when the backend answers. Persisted copies live on the tutor backend and
// are loaded in bulk via [Store.LoadHistory].
package conversation

import "time"

// Sender identifies who produced a message.
type Sender string

const (
	// SenderUser is the learner's own utterance.
	SenderUser Sender = "user"

	// SenderAI is the tutor's reply.
	SenderAI Sender = "ai"

	// SenderSystem is an internally generated notice (pipeline errors,
	// session events). Never persisted to the backend.
	SenderSystem Sender = "system"
)

// IsValid reports whether s is a recognised sender.
func (s Sender) IsValid() bool {
	switch s {
	case SenderUser, SenderAI, SenderSystem:
		return true
	}
	return false
}

// MessageState tracks a message's lifecycle. Placeholders start Pending and
// transition exactly once to Final or Failed.
type MessageState string

const (
	// StatePending marks an optimistic placeholder awaiting backend data.
	StatePending MessageState = "pending"

	// StateFinal marks a message with settled content.
	StateFinal MessageState = "final"

	// StateFailed marks a placeholder whose backing request failed. The
	// message stays visible so the learner knows the turn was lost.
	StateFailed MessageState = "failed"
)

// Message is one entry in the conversation history.
type Message struct {
	// ID identifies the message within this store. Assigned on append.
	ID int64

	// Sender is who produced the message.
	Sender Sender

	// Text is the message content in the target language.
	Text string

	// Romanized is the Latin-script rendering for script languages.
	Romanized string

	// TTSURL is the cached synthesis URL once the message has been spoken.
	TTSURL string

	// Timestamp is when the message was appended.
	Timestamp time.Time

	// State is the lifecycle state. Non-placeholder appends are Final.
	State MessageState

	// FailReason carries a short description when State is Failed.
	FailReason string

	// FromOriginal marks messages loaded from a persisted conversation, as
	// opposed to ones produced in this session.
	FromOriginal bool
}

// Context is the immutable-ish session metadata for a conversation. The
// conversation id is the only field that changes after start, and only once.
type Context struct {
	// ConversationID is the backend's id for the persisted conversation.
	// Empty until the conversation is first persisted; set exactly once.
	ConversationID string

	// Language is the BCP-47 tag of the language being practised.
	Language string

	// Formality is the learner's register preference ("formal", "casual").
	Formality string

	// Topics are the conversation topics chosen at start.
	Topics []string

	// LearningGoals are the goal ids the learner is working on.
	LearningGoals []string

	// UserLevel is the learner's self-assessed proficiency.
	UserLevel string

	// FeedbackLanguage is the language corrections are written in.
	FeedbackLanguage string

	// StartedAt is when the session began. Zero until the first turn.
	StartedAt time.Time
}
