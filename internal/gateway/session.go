package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parlancehq/parlance/internal/capture"
	"github.com/parlancehq/parlance/internal/conversation"
	"github.com/parlancehq/parlance/internal/orchestrator"
	"github.com/parlancehq/parlance/internal/playback"
	"github.com/parlancehq/parlance/pkg/audio"
)

// sessionConn is the transport surface a Session needs from its socket.
// The production implementation wraps a websocket connection; tests supply
// an in-memory fake.
type sessionConn interface {
	// ReadMessage blocks for the next client message. binary=true means an
	// audio payload, false a JSON command.
	ReadMessage(ctx context.Context) (binary bool, data []byte, err error)

	// WriteText sends one JSON event to the client. Implementations must be
	// safe for concurrent use.
	WriteText(ctx context.Context, data []byte) error
}

// Session drives one connected learner: it routes socket traffic between
// the capture layer, the turn orchestrator and the playback manager, and
// keeps the client's view synchronised with history snapshots.
type Session struct {
	conn    sessionConn
	source  *socketSource
	capture *capture.Session
	store   *conversation.Store
	speaker *playback.Manager
	player  *remotePlayer
	orch    *orchestrator.Orchestrator
	unsaved *conversation.UnsavedStore
	userID  string
	log     *slog.Logger

	mu              sync.Mutex
	autoSpeak       bool
	shortFeedback   bool
	preferRomanized bool

	wg sync.WaitGroup
}

// run processes socket traffic until the connection ends, then tears the
// session down: the capture stream, the playback queue and any in-flight
// detached playback.
func (s *Session) run(ctx context.Context) {
	defer s.teardown()

	s.sendState(ctx)

	for {
		binary, data, err := s.conn.ReadMessage(ctx)
		if err != nil {
			s.log.Debug("session socket closed", slog.String("error", err.Error()))
			return
		}
		if binary {
			s.source.push(data)
			continue
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.sendError(ctx, fmt.Sprintf("bad command: %v", err))
			continue
		}
		s.dispatch(ctx, cmd)
	}
}

// dispatch executes one client command.
func (s *Session) dispatch(ctx context.Context, cmd Command) {
	switch cmd.Type {
	case "capture.start":
		s.startCapture(ctx, cmd.AutoSpeak)
	case "capture.stop":
		s.stopCapture(ctx, cmd.Interrupted)
	case "settings":
		s.mu.Lock()
		s.shortFeedback = cmd.ShortFeedback
		s.preferRomanized = cmd.PreferRomanized
		s.mu.Unlock()
	case "replay":
		s.replay(ctx, cmd.MessageID)
	case "speak.stop":
		s.speaker.Stop()
	case "save":
		s.save(ctx)
	case "end":
		s.end(ctx)
	case "playback.done":
		s.player.ack(cmd.Seq, "")
	case "playback.error":
		s.player.ack(cmd.Seq, cmd.Error)
	default:
		s.sendError(ctx, fmt.Sprintf("unknown command type %q", cmd.Type))
	}
}

// startCapture opens a recording and arms the stop watcher. The turn runs
// when the capture ends on a finalising path.
func (s *Session) startCapture(ctx context.Context, autoSpeak bool) {
	if s.orch.Busy() {
		s.sendError(ctx, "a turn is already in progress")
		return
	}

	language := s.store.Context().Language
	if err := s.capture.Start(ctx, language, autoSpeak); err != nil {
		s.sendError(ctx, captureErrorText(err))
		return
	}
	s.mu.Lock()
	s.autoSpeak = autoSpeak
	s.mu.Unlock()
	s.sendState(ctx)

	done := s.capture.Done()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		reason := <-done
		if reason == capture.ReasonInterrupted {
			s.sendState(ctx)
			return
		}
		s.runTurn(reason)
	}()
}

// stopCapture ends the active recording. Interrupted stops discard the clip;
// the armed watcher then skips the turn.
func (s *Session) stopCapture(ctx context.Context, interrupted bool) {
	if err := s.capture.Stop(interrupted); err != nil {
		if !errors.Is(err, capture.ErrNotRecording) {
			s.sendError(ctx, err.Error())
		}
		return
	}
}

// runTurn pushes the finalised clip through the orchestrator and streams
// history snapshots to the client around it. Detached from the socket read
// loop; context.Background keeps the turn alive if the learner navigates
// mid-turn, matching the detached playback inside the orchestrator.
func (s *Session) runTurn(reason capture.StopReason) {
	ctx := context.Background()

	clip := s.capture.Clip()
	if clip.Empty() {
		s.sendState(ctx)
		return
	}

	s.mu.Lock()
	opts := orchestrator.TurnOptions{
		AutoSpeak:       s.autoSpeak,
		ShortFeedback:   s.shortFeedback,
		PreferRomanized: s.preferRomanized,
	}
	s.mu.Unlock()

	s.log.Debug("turn starting", slog.String("stop_reason", reason.String()))
	res, err := s.orch.Turn(ctx, clip, opts)
	s.sendState(ctx)
	if err != nil {
		s.log.Warn("turn failed", slog.String("error", err.Error()))
		s.sendError(ctx, "turn failed")
		return
	}

	s.send(ctx, Event{
		Type:        "turn",
		Feedback:    res.Feedback,
		Corrections: res.Corrections,
	})

	// The spoken URL lands on the message after detached playback resolves;
	// push one more snapshot so replays have it.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.orch.Wait()
		s.sendState(ctx)
	}()
}

// replay plays a message's stored audio again, or synthesises it fresh when
// the message was never spoken.
func (s *Session) replay(ctx context.Context, messageID int64) {
	var msg *conversation.Message
	msgs := s.store.Messages()
	for i := range msgs {
		if msgs[i].ID == messageID {
			msg = &msgs[i]
			break
		}
	}
	if msg == nil || msg.State != conversation.StateFinal {
		s.sendError(ctx, "message not available for replay")
		return
	}

	language := s.store.Context().Language
	text := msg.Text
	key := fmt.Sprintf("msg/%d", msg.ID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var err error
		if msg.TTSURL != "" {
			err = s.speaker.PlayExisting(context.Background(), msg.TTSURL, key)
		} else {
			err = s.speaker.Play(context.Background(), text, language, key)
		}
		if err != nil && !errors.Is(err, playback.ErrInterrupted) {
			s.log.Warn("replay failed",
				slog.Int64("message_id", messageID),
				slog.String("error", err.Error()))
		}
	}()
}

// save persists the conversation and reports the assigned id.
func (s *Session) save(ctx context.Context) {
	id, err := s.orch.EnsurePersisted(ctx)
	if err != nil {
		s.log.Warn("save conversation failed", slog.String("error", err.Error()))
		s.sendError(ctx, "could not save conversation")
		return
	}
	s.send(ctx, Event{Type: "saved", ConversationID: id})
}

// end finishes the conversation: summary, goal folding, level-ups.
func (s *Session) end(ctx context.Context) {
	outcome, err := s.orch.EndConversation(ctx)
	if err != nil {
		s.log.Warn("end conversation failed", slog.String("error", err.Error()))
		s.sendError(ctx, "could not summarise conversation")
		return
	}
	s.send(ctx, Event{
		Type:     "summary",
		Title:    outcome.Title,
		Summary:  outcome.Summary,
		Progress: outcome.Progress,
		LevelUps: outcome.LevelUps,
	})
}

// teardown releases everything owned by the session after the socket ends.
func (s *Session) teardown() {
	if s.capture.Recording() {
		if err := s.capture.Stop(true); err != nil && !errors.Is(err, capture.ErrNotRecording) {
			s.log.Debug("teardown capture stop", slog.String("error", err.Error()))
		}
	}
	s.source.close()
	s.player.disconnect()
	s.speaker.Close()
	s.wg.Wait()
	s.orch.Wait()
	s.persistUnsaved()
}

// persistUnsaved snapshots an unsaved conversation's history so the learner
// can pick it up after reconnecting. A saved conversation clears the slot;
// its history lives on the backend.
func (s *Session) persistUnsaved() {
	if s.unsaved == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sessCtx := s.store.Context()
	var err error
	if sessCtx.ConversationID != "" {
		err = s.unsaved.Clear(ctx, s.userID, sessCtx.Language)
	} else {
		err = s.unsaved.Save(ctx, s.userID, sessCtx.Language, s.store.Messages())
	}
	if err != nil {
		s.log.Warn("persist unsaved history", slog.String("error", err.Error()))
	}
}

// sendState pushes a full history snapshot plus the live flags.
func (s *Session) sendState(ctx context.Context) {
	s.send(ctx, Event{
		Type:      "state",
		Recording: s.capture.Recording(),
		Busy:      s.orch.Busy(),
		Messages:  historyDTO(s.store.Messages()),
	})
}

// sendError pushes a user-facing error event.
func (s *Session) sendError(ctx context.Context, text string) {
	s.send(ctx, Event{Type: "error", Error: text})
}

// send serialises and writes one event. Socket write errors are logged and
// otherwise ignored; the read loop notices the dead connection.
func (s *Session) send(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("marshal event", slog.String("error", err.Error()))
		return
	}
	if err := s.conn.WriteText(ctx, data); err != nil {
		s.log.Debug("event write failed",
			slog.String("event", ev.Type),
			slog.String("error", err.Error()))
	}
}

// sendEvent is the remotePlayer's send hook; playback events bypass the
// command loop entirely.
func (s *Session) sendEvent(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.conn.WriteText(context.Background(), data)
}

// captureErrorText maps capture failures onto user-facing messages.
func captureErrorText(err error) string {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "microphone permission denied"
	case errors.Is(err, audio.ErrNoDevice):
		return "no microphone found"
	case errors.Is(err, audio.ErrUnsupported):
		return "audio capture is not supported on this client"
	case errors.Is(err, capture.ErrAlreadyRecording):
		return "already recording"
	default:
		return "could not start recording"
	}
}
