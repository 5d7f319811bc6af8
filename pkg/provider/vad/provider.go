// Package vad defines the Engine interface for voice-activity detection.
//
// A VAD engine classifies fixed-size PCM frames as speech or silence and is
// used by the capture layer to auto-stop recording when the learner finishes
// speaking. Detection is stateful per stream, so each audio feed gets its own
// [SessionHandle]; the handle keeps smoothing history between frames.
//
// ProcessFrame is synchronous by design so it can gate the capture loop with
// no added latency.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation documents otherwise.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the PCM frames
	// passed to ProcessFrame. Common values: 16000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds.
	// ProcessFrame returns an error if a supplied frame does not match.
	FrameSizeMs int

	// SpeechThreshold is the probability above which a frame counts as
	// speech. Range [0.0, 1.0]. Typical: 0.5.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which a frame counts as
	// silence, ending an active speech segment. Must be ≤ SpeechThreshold.
	// Typical: 0.35.
	SilenceThreshold float64

	// HangoverFrames is the number of consecutive silent frames required
	// before a speech segment is declared ended. Guards against clipping
	// mid-sentence pauses. Typical: 25 (500ms at 20ms frames).
	HangoverFrames int
}

// Event is the detection result for a single frame.
type Event struct {
	// Type is the detection state transition for this frame.
	Type EventType

	// Probability is the speech probability score (0.0–1.0).
	Probability float64
}

// EventType enumerates VAD detection states.
type EventType int

const (
	// SpeechStart indicates speech has just begun.
	SpeechStart EventType = iota

	// SpeechContinue indicates ongoing speech.
	SpeechContinue

	// SpeechEnd indicates speech has just ended.
	SpeechEnd

	// Silence indicates no speech detected.
	Silence
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "speech-start"
	case SpeechContinue:
		return "speech-continue"
	case SpeechEnd:
		return "speech-end"
	case Silence:
		return "silence"
	default:
		return "unknown"
	}
}

// SessionHandle is an active VAD session for a single audio stream.
type SessionHandle interface {
	// ProcessFrame analyses one raw little-endian PCM frame and returns the
	// detection result. Must not block; it is called inline in the capture
	// loop. Returns an error on frame-size mismatch or after Close.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears accumulated detection state without closing the session.
	// Use when a stream is interrupted and restarted.
	Reset()

	// Close releases session resources. Safe to call more than once.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a session with the given configuration. Returns an
	// error if the configuration is invalid.
	NewSession(cfg Config) (SessionHandle, error)
}
