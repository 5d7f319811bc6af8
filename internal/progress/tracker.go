// Package progress tracks the learner's per-subgoal advancement. The tutor
// backend reports per-goal deltas at the end of a conversation; Apply folds
// each delta into the subgoal state, clamping percentages and emitting a
// level-up event when a subgoal crosses 100%.
//
// Apply is a pure function over the supplied slice. Persistence lives in
// [Store], which serializes the subgoal array per user and language through a
// kvstore.Store.
package progress

import (
	"fmt"
	"strings"
)

// SubgoalProgress is the learner's state on one subgoal of a learning goal.
type SubgoalProgress struct {
	// SubgoalID identifies the subgoal, conventionally "<goal>_<n>".
	SubgoalID string `json:"subgoal_id"`

	// Percentage is the advancement within the current level, 0 to 100.
	Percentage int `json:"percentage"`

	// Level counts completed cycles of the subgoal. Never decreases.
	Level int `json:"level"`
}

// LevelUpEvent is emitted when a subgoal crosses the 100% threshold.
type LevelUpEvent struct {
	// SubgoalID is the subgoal that levelled up.
	SubgoalID string `json:"subgoal_id"`

	// OldLevel is the level before the delta was applied.
	OldLevel int `json:"old_level"`

	// NewLevel is always OldLevel + 1.
	NewLevel int `json:"new_level"`

	// NewDescription is the display text for the subgoal at the new level.
	NewDescription string `json:"new_description"`
}

// Apply folds a backend-reported delta for goalID into the given subgoal
// slice and returns the updated slice plus at most one level-up event.
//
// The matching subgoal is the first whose id equals goalID or starts with
// goalID followed by an underscore; if none matches, a new "<goalID>_1"
// entry is created at level zero. Negative results clamp to 0 and the
// percentage never decreases within a level. Crossing 100 increments the
// level exactly once and carries the remainder above 100 into the new
// level, so a large delta is never silently discarded.
func Apply(goalID string, delta int, current []SubgoalProgress) ([]SubgoalProgress, *LevelUpEvent) {
	updated := make([]SubgoalProgress, len(current))
	copy(updated, current)

	idx := -1
	for i, sg := range updated {
		if sg.SubgoalID == goalID || strings.HasPrefix(sg.SubgoalID, goalID+"_") {
			idx = i
			break
		}
	}
	if idx < 0 {
		updated = append(updated, SubgoalProgress{SubgoalID: goalID + "_1"})
		idx = len(updated) - 1
	}

	sg := &updated[idx]
	next := sg.Percentage + delta
	if next < sg.Percentage {
		// Monotonic within a level: negative deltas never roll progress back.
		next = sg.Percentage
	}

	var event *LevelUpEvent
	if next >= 100 {
		carry := next - 100
		if carry > 100 {
			carry = 100
		}
		event = &LevelUpEvent{
			SubgoalID:      sg.SubgoalID,
			OldLevel:       sg.Level,
			NewLevel:       sg.Level + 1,
			NewDescription: describe(sg.SubgoalID, sg.Level+1),
		}
		sg.Level++
		sg.Percentage = carry
	} else {
		sg.Percentage = next
	}
	return updated, event
}

// ApplyAll folds a set of goal deltas in order, collecting every level-up
// event. This is the end-of-conversation path: the summary endpoint reports
// one delta per goal and all resulting level-ups are shown together.
func ApplyAll(deltas map[string]int, order []string, current []SubgoalProgress) ([]SubgoalProgress, []LevelUpEvent) {
	var events []LevelUpEvent
	for _, goalID := range order {
		delta, ok := deltas[goalID]
		if !ok {
			continue
		}
		var ev *LevelUpEvent
		current, ev = Apply(goalID, delta, current)
		if ev != nil {
			events = append(events, *ev)
		}
	}
	return current, events
}

// describe renders the subgoal's display text at a level. The backend owns
// the canonical goal catalogue; this is the offline fallback.
func describe(subgoalID string, level int) string {
	base := subgoalID
	if i := strings.LastIndex(subgoalID, "_"); i > 0 {
		base = subgoalID[:i]
	}
	base = strings.ReplaceAll(base, "_", " ")
	return fmt.Sprintf("%s, level %d", base, level)
}
