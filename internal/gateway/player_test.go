package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parlancehq/parlance/internal/playback"
)

// eventRecorder collects events sent through a remotePlayer.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *eventRecorder) send(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *eventRecorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}
	}
	return r.events[len(r.events)-1]
}

func TestRemotePlayerAck(t *testing.T) {
	t.Parallel()

	rec := &eventRecorder{}
	p := newRemotePlayer(rec.send)

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), "https://cdn.test/a.mp3") }()

	waitForEvent(t, rec, "playback.start")
	ev := rec.last()
	if ev.URL != "https://cdn.test/a.mp3" {
		t.Errorf("url: %q", ev.URL)
	}

	p.ack(ev.Seq, "")
	if err := <-done; err != nil {
		t.Errorf("Play: %v", err)
	}
}

func TestRemotePlayerClientError(t *testing.T) {
	t.Parallel()

	rec := &eventRecorder{}
	p := newRemotePlayer(rec.send)

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), "u") }()
	waitForEvent(t, rec, "playback.start")

	p.ack(rec.last().Seq, "decode failed")
	if err := <-done; err == nil {
		t.Error("client error dropped")
	}
}

func TestRemotePlayerStop(t *testing.T) {
	t.Parallel()

	rec := &eventRecorder{}
	p := newRemotePlayer(rec.send)

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), "u") }()
	waitForEvent(t, rec, "playback.start")

	p.Stop()
	if err := <-done; !errors.Is(err, playback.ErrStopped) {
		t.Errorf("want ErrStopped, got %v", err)
	}
	if rec.last().Type != "playback.stop" {
		t.Errorf("last event: %+v", rec.last())
	}
}

func TestRemotePlayerStaleAckIgnored(t *testing.T) {
	t.Parallel()

	rec := &eventRecorder{}
	p := newRemotePlayer(rec.send)

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), "u") }()
	waitForEvent(t, rec, "playback.start")
	seq := rec.last().Seq

	p.ack(seq-1, "") // ack for a play that no longer exists
	select {
	case err := <-done:
		t.Fatalf("stale ack settled play: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	p.ack(seq, "")
	if err := <-done; err != nil {
		t.Errorf("Play: %v", err)
	}
}

func TestRemotePlayerDisconnect(t *testing.T) {
	t.Parallel()

	rec := &eventRecorder{}
	p := newRemotePlayer(rec.send)

	done := make(chan error, 1)
	go func() { done <- p.Play(context.Background(), "u") }()
	waitForEvent(t, rec, "playback.start")

	p.disconnect()
	if err := <-done; err == nil {
		t.Error("disconnect did not settle play")
	}
}

func TestRemotePlayerContextCancel(t *testing.T) {
	t.Parallel()

	rec := &eventRecorder{}
	p := newRemotePlayer(rec.send)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Play(ctx, "u") }()
	waitForEvent(t, rec, "playback.start")

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}

func waitForEvent(t *testing.T, rec *eventRecorder, typ string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rec.last().Type == typ {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("event %q never sent (last: %+v)", typ, rec.last())
}
