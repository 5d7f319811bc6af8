package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/parlancehq/parlance/pkg/kvstore"
)

// Store persists per-user, per-language subgoal state through a key-value
// store. Keys follow the "progress/<user>/<language>" convention.
type Store struct {
	kv kvstore.Store
}

// NewStore wraps kv for progress persistence.
func NewStore(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

func key(userID, language string) string {
	return fmt.Sprintf("progress/%s/%s", userID, language)
}

// Load returns the stored subgoal slice for a user and language. A learner
// with no recorded progress gets an empty slice, not an error.
func (s *Store) Load(ctx context.Context, userID, language string) ([]SubgoalProgress, error) {
	raw, err := s.kv.Get(ctx, key(userID, language))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("progress: load %s/%s: %w", userID, language, err)
	}
	var subgoals []SubgoalProgress
	if err := json.Unmarshal(raw, &subgoals); err != nil {
		return nil, fmt.Errorf("progress: decode %s/%s: %w", userID, language, err)
	}
	return subgoals, nil
}

// Save writes the subgoal slice for a user and language.
func (s *Store) Save(ctx context.Context, userID, language string, subgoals []SubgoalProgress) error {
	raw, err := json.Marshal(subgoals)
	if err != nil {
		return fmt.Errorf("progress: encode %s/%s: %w", userID, language, err)
	}
	if err := s.kv.Set(ctx, key(userID, language), raw); err != nil {
		return fmt.Errorf("progress: save %s/%s: %w", userID, language, err)
	}
	return nil
}

// ApplyAndSave loads the user's progress, folds the given deltas into it and
// persists the result, returning the updated state and any level-up events.
func (s *Store) ApplyAndSave(ctx context.Context, userID, language string, deltas map[string]int, order []string) ([]SubgoalProgress, []LevelUpEvent, error) {
	current, err := s.Load(ctx, userID, language)
	if err != nil {
		return nil, nil, err
	}
	updated, events := ApplyAll(deltas, order, current)
	if err := s.Save(ctx, userID, language, updated); err != nil {
		return nil, nil, err
	}
	return updated, events, nil
}
