// Package playback owns TTS audio playback for a Parlance session.
//
// The [Manager] enforces the single-playback invariant: at most one audio
// resource plays at any instant, and a new play request interrupts whatever
// is currently playing (last-request-wins). A separate auto-speak queue
// serializes utterances in FIFO order, draining one at a time when nothing
// else is playing.
//
// URL resolution goes through a TTL+LRU cache and deduplicates concurrent
// synthesis of the same utterance. Freshly synthesised URLs are probed with
// bounded HEAD retries before playback, because the backend stores generated
// audio asynchronously.
package playback

import (
	"context"
	"errors"
)

// Playback errors.
var (
	// ErrStopped is returned by Player.Play when Stop interrupted playback.
	ErrStopped = errors.New("playback: stopped")

	// ErrInterrupted is returned by Manager.Play when a later request took
	// over the playback slot.
	ErrInterrupted = errors.New("playback: interrupted by later request")

	// ErrClosed is returned after the manager has been closed.
	ErrClosed = errors.New("playback: manager closed")
)

// Player is the audio output device. Exactly one Play can be active per
// Player; the Manager guarantees it never issues a second concurrent Play.
type Player interface {
	// Play fetches url and plays it, blocking until playback finishes, ctx is
	// cancelled, or Stop is called. Returns [ErrStopped] when stopped.
	Play(ctx context.Context, url string) error

	// Stop interrupts the in-flight Play, if any. No-op when idle.
	Stop()
}

// Prober checks whether a synthesised audio URL is readable yet.
// *backend.Client satisfies this with its HEAD probe.
type Prober interface {
	ProbeURL(ctx context.Context, url string) error
}
