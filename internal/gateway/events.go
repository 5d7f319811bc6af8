package gateway

import (
	"time"

	"github.com/parlancehq/parlance/internal/conversation"
	"github.com/parlancehq/parlance/internal/progress"
	"github.com/parlancehq/parlance/internal/vocab"
)

// Command is a client-to-server control message on the session socket.
// Audio itself travels as binary frames, not commands.
type Command struct {
	// Type selects the action: "capture.start", "capture.stop", "settings",
	// "replay", "speak.stop", "save", "end", "playback.done",
	// "playback.error".
	Type string `json:"type"`

	// AutoSpeak applies to "capture.start".
	AutoSpeak bool `json:"auto_speak,omitempty"`

	// Interrupted applies to "capture.stop": true discards the recording.
	Interrupted bool `json:"interrupted,omitempty"`

	// ShortFeedback and PreferRomanized apply to "settings".
	ShortFeedback   bool `json:"short_feedback,omitempty"`
	PreferRomanized bool `json:"prefer_romanized,omitempty"`

	// MessageID applies to "replay".
	MessageID int64 `json:"message_id,omitempty"`

	// Seq and Error apply to "playback.done" / "playback.error" and echo the
	// sequence number of the playback.start event being answered.
	Seq   uint64 `json:"seq,omitempty"`
	Error string `json:"error,omitempty"`
}

// Event is a server-to-client message on the session socket.
type Event struct {
	// Type identifies the payload: "state", "turn", "playback.start",
	// "playback.stop", "saved", "summary", "error".
	Type string `json:"type"`

	// Recording and Busy accompany "state".
	Recording bool `json:"recording,omitempty"`
	Busy      bool `json:"busy,omitempty"`

	// Messages is the full history snapshot accompanying "state".
	Messages []MessageDTO `json:"messages,omitempty"`

	// Feedback and Corrections accompany "turn".
	Feedback    string             `json:"feedback,omitempty"`
	Corrections []vocab.Correction `json:"corrections,omitempty"`

	// Seq and URL accompany "playback.start".
	Seq uint64 `json:"seq,omitempty"`
	URL string `json:"url,omitempty"`

	// ConversationID accompanies "saved".
	ConversationID string `json:"conversation_id,omitempty"`

	// Summary payload.
	Title    string                     `json:"title,omitempty"`
	Summary  string                     `json:"summary,omitempty"`
	Progress []progress.SubgoalProgress `json:"progress,omitempty"`
	LevelUps []progress.LevelUpEvent    `json:"level_ups,omitempty"`

	// Error accompanies "error".
	Error string `json:"error,omitempty"`
}

// MessageDTO is the wire shape of one history entry.
type MessageDTO struct {
	ID         int64     `json:"id"`
	Sender     string    `json:"sender"`
	Text       string    `json:"text,omitempty"`
	Romanized  string    `json:"romanized_text,omitempty"`
	TTSURL     string    `json:"tts_url,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	State      string    `json:"state"`
	FailReason string    `json:"fail_reason,omitempty"`
}

// toDTO converts a store message to its wire shape.
func toDTO(m conversation.Message) MessageDTO {
	return MessageDTO{
		ID:         m.ID,
		Sender:     string(m.Sender),
		Text:       m.Text,
		Romanized:  m.Romanized,
		TTSURL:     m.TTSURL,
		Timestamp:  m.Timestamp,
		State:      string(m.State),
		FailReason: m.FailReason,
	}
}

// historyDTO converts a history snapshot to its wire shape.
func historyDTO(msgs []conversation.Message) []MessageDTO {
	out := make([]MessageDTO, len(msgs))
	for i, m := range msgs {
		out[i] = toDTO(m)
	}
	return out
}
