package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parlancehq/parlance/pkg/kvstore"
)

// UnsavedStore persists the history of conversations the learner has not
// saved to the backend, so a disconnect does not lose an in-progress chat.
// Keys follow the "unsaved/<user>/<language>" convention; one unsaved
// conversation per user and language, replaced on every write.
type UnsavedStore struct {
	kv kvstore.Store
}

// NewUnsavedStore wraps kv for unsaved-history persistence.
func NewUnsavedStore(kv kvstore.Store) *UnsavedStore {
	return &UnsavedStore{kv: kv}
}

func unsavedKey(userID, language string) string {
	return fmt.Sprintf("unsaved/%s/%s", userID, language)
}

// unsavedMessage is the stored form of a history entry. Only settled user
// and AI messages survive; system notices and failed placeholders do not.
type unsavedMessage struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Romanized string    `json:"romanized_text,omitempty"`
	TTSURL    string    `json:"tts_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Save writes the session's final user/AI messages as the user's unsaved
// conversation for that language. An empty history clears the slot instead,
// so stale chats do not resurface.
func (u *UnsavedStore) Save(ctx context.Context, userID, language string, msgs []Message) error {
	stored := make([]unsavedMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.State != StateFinal || m.Sender == SenderSystem {
			continue
		}
		stored = append(stored, unsavedMessage{
			Sender:    m.Sender,
			Text:      m.Text,
			Romanized: m.Romanized,
			TTSURL:    m.TTSURL,
			Timestamp: m.Timestamp,
		})
	}
	if len(stored) == 0 {
		return u.Clear(ctx, userID, language)
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("conversation: encode unsaved %s/%s: %w", userID, language, err)
	}
	if err := u.kv.Set(ctx, unsavedKey(userID, language), raw); err != nil {
		return fmt.Errorf("conversation: save unsaved %s/%s: %w", userID, language, err)
	}
	return nil
}

// Load returns the user's unsaved conversation for a language, ready for
// [Store.LoadHistory]. No stored conversation yields an empty slice, not an
// error.
func (u *UnsavedStore) Load(ctx context.Context, userID, language string) ([]Message, error) {
	raw, err := u.kv.Get(ctx, unsavedKey(userID, language))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: load unsaved %s/%s: %w", userID, language, err)
	}
	var stored []unsavedMessage
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("conversation: decode unsaved %s/%s: %w", userID, language, err)
	}
	msgs := make([]Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, Message{
			Sender:    m.Sender,
			Text:      m.Text,
			Romanized: m.Romanized,
			TTSURL:    m.TTSURL,
			Timestamp: m.Timestamp,
		})
	}
	return msgs, nil
}

// Clear removes the user's unsaved conversation for a language. Called once
// the conversation is persisted to the backend or explicitly discarded.
func (u *UnsavedStore) Clear(ctx context.Context, userID, language string) error {
	if err := u.kv.Delete(ctx, unsavedKey(userID, language)); err != nil {
		return fmt.Errorf("conversation: clear unsaved %s/%s: %w", userID, language, err)
	}
	return nil
}
