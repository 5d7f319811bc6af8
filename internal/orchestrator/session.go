package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/parlancehq/parlance/pkg/backend"
)

// EnsurePersisted creates the backend conversation for this session when it
// does not exist yet, assigning the conversation id exactly once. Anonymous
// sessions stay unsaved until the learner asks to keep them; this is that
// save path.
func (o *Orchestrator) EnsurePersisted(ctx context.Context) (string, error) {
	sessCtx := o.store.Context()
	if sessCtx.ConversationID != "" {
		return sessCtx.ConversationID, nil
	}

	conv, err := o.tutor.CreateConversation(ctx, backend.CreateConversationRequest{
		Language:  sessCtx.Language,
		Formality: sessCtx.Formality,
		Topics:    sessCtx.Topics,
	})
	if err != nil {
		return "", fmt.Errorf("orchestrator: create conversation: %w", err)
	}
	if err := o.store.SetConversationID(conv.ID); err != nil {
		return "", fmt.Errorf("orchestrator: record conversation id: %w", err)
	}

	// Backfill the messages spoken before the save.
	for _, msg := range o.store.Messages() {
		if msg.FromOriginal {
			continue
		}
		o.persist(ctx, msg)
	}
	return conv.ID, nil
}

// EndConversation fetches the end-of-conversation summary, folds the
// reported goal deltas into the learner's progress, and stamps the summary
// title onto the persisted conversation. Every level-up crossed by the fold
// is collected so the caller can present them together.
func (o *Orchestrator) EndConversation(ctx context.Context) (*SummaryOutcome, error) {
	sessCtx := o.store.Context()

	summary, err := o.tutor.ConversationSummary(ctx, backend.SummaryRequest{
		ChatHistory: o.history(),
		Language:    sessCtx.Language,
		UserGoals:   sessCtx.LearningGoals,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: conversation summary: %w", err)
	}

	outcome := &SummaryOutcome{Title: summary.Title, Summary: summary.Summary}

	if o.progress != nil && len(summary.GoalProgress) > 0 {
		deltas := make(map[string]int, len(summary.GoalProgress))
		order := make([]string, 0, len(summary.GoalProgress))
		for _, gd := range summary.GoalProgress {
			// A repeated goal id keeps the last delta and folds once.
			if _, seen := deltas[gd.GoalID]; !seen {
				order = append(order, gd.GoalID)
			}
			deltas[gd.GoalID] = gd.Delta
		}

		updated, events, err := o.progress.ApplyAndSave(ctx, o.userID, sessCtx.Language, deltas, order)
		if err != nil {
			// Progress is learner state, not conversation state; a storage
			// failure must not eat the summary.
			o.log.Error("apply goal progress failed", slog.String("error", err.Error()))
		} else {
			outcome.Progress = updated
			outcome.LevelUps = events
			if o.metrics != nil {
				for range events {
					o.metrics.RecordLevelUp(ctx, sessCtx.Language)
				}
			}
		}
	}

	if convID := sessCtx.ConversationID; convID != "" && summary.Title != "" {
		if err := o.tutor.UpdateTitle(ctx, convID, summary.Title); err != nil {
			o.log.Warn("update conversation title failed",
				slog.String("conversation_id", convID),
				slog.String("error", err.Error()))
		}
	}
	return outcome, nil
}
