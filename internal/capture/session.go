// Package capture assembles microphone audio into finalised clips.
//
// A [Session] owns at most one open capture stream at a time. In manual mode
// the stream runs until the caller stops it; in auto-speak mode a
// voice-activity watcher ends the capture when the learner stops talking,
// with a hard maximum duration as backstop. Every stop path, including
// discards and watcher-driven stops, releases the underlying stream.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parlancehq/parlance/pkg/audio"
	"github.com/parlancehq/parlance/pkg/provider/vad"
)

// Session errors.
var (
	// ErrAlreadyRecording is returned by Start while a capture is active.
	ErrAlreadyRecording = errors.New("capture: session already recording")

	// ErrNotRecording is returned by Stop when no capture is active.
	ErrNotRecording = errors.New("capture: session not recording")
)

// StopReason identifies which path ended a capture.
type StopReason int

const (
	// ReasonManual is an explicit caller stop that finalises the clip.
	ReasonManual StopReason = iota

	// ReasonInterrupted is an explicit caller stop that discards the clip.
	ReasonInterrupted

	// ReasonSpeechEnd is a voice-activity end-of-speech detection.
	ReasonSpeechEnd

	// ReasonMaxDuration is the auto-speak watcher's hard time cap.
	ReasonMaxDuration
)

// String returns the human-readable name of the stop reason.
func (r StopReason) String() string {
	switch r {
	case ReasonManual:
		return "manual"
	case ReasonInterrupted:
		return "interrupted"
	case ReasonSpeechEnd:
		return "speech-end"
	case ReasonMaxDuration:
		return "max-duration"
	default:
		return "unknown"
	}
}

// DefaultMaxAutoDuration caps an auto-speak capture even when the detector
// never reports end of speech.
const DefaultMaxAutoDuration = 10 * time.Second

// Option configures a Session.
type Option func(*Session)

// WithMaxAutoDuration overrides the auto-speak hard cap.
func WithMaxAutoDuration(d time.Duration) Option {
	return func(s *Session) { s.maxAuto = d }
}

// WithVADConfig overrides the detection thresholds used in auto-speak mode.
// SampleRate and FrameSizeMs are always taken from the open stream.
func WithVADConfig(cfg vad.Config) Option {
	return func(s *Session) { s.vadCfg = cfg }
}

// WithLogger sets the session logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// Session records one clip at a time from a capture source.
// Safe for concurrent use.
type Session struct {
	source audio.CaptureSource
	engine vad.Engine
	stream audio.StreamConfig

	maxAuto time.Duration
	vadCfg  vad.Config
	log     *slog.Logger

	mu        sync.Mutex
	active    audio.CaptureStream
	recording bool
	external  bool
	extReason StopReason
	clip      *audio.Clip
	done      chan StopReason
	wg        sync.WaitGroup
}

// NewSession creates a capture session reading from source with the given
// stream format. engine may be nil when auto-speak mode is never used.
func NewSession(source audio.CaptureSource, engine vad.Engine, stream audio.StreamConfig, opts ...Option) *Session {
	s := &Session{
		source:  source,
		engine:  engine,
		stream:  stream,
		maxAuto: DefaultMaxAutoDuration,
		vadCfg: vad.Config{
			SpeechThreshold:  0.5,
			SilenceThreshold: 0.35,
			HangoverFrames:   25,
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a capture stream for the given language. In auto-speak mode a
// voice-activity watcher ends the capture on detected end of speech or after
// the hard cap; in manual mode the capture runs until Stop. Any clip from a
// previous capture is discarded.
func (s *Session) Start(ctx context.Context, language string, autoSpeak bool) error {
	s.mu.Lock()
	if s.recording {
		s.mu.Unlock()
		return ErrAlreadyRecording
	}
	s.mu.Unlock()

	stream, err := s.source.Open(ctx, s.stream)
	if err != nil {
		return fmt.Errorf("capture: open stream: %w", err)
	}

	var detector vad.SessionHandle
	if autoSpeak {
		if s.engine == nil {
			stream.Close()
			return fmt.Errorf("capture: auto-speak requires a vad engine")
		}
		cfg := s.vadCfg
		cfg.SampleRate = stream.Config().SampleRate
		cfg.FrameSizeMs = int(stream.Config().FrameDuration / time.Millisecond)
		detector, err = s.engine.NewSession(cfg)
		if err != nil {
			stream.Close()
			return fmt.Errorf("capture: vad session: %w", err)
		}
	}

	s.mu.Lock()
	if s.recording {
		s.mu.Unlock()
		stream.Close()
		if detector != nil {
			detector.Close()
		}
		return ErrAlreadyRecording
	}
	s.active = stream
	s.recording = true
	s.external = false
	s.clip = nil
	s.done = make(chan StopReason, 1)
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Debug("capture started",
		slog.String("language", language),
		slog.Bool("auto_speak", autoSpeak),
		slog.Int("sample_rate", stream.Config().SampleRate))

	go s.collect(stream, detector, autoSpeak)
	return nil
}

// Stop ends the active capture. interrupted=true discards the clip (the
// learner's redo path); interrupted=false finalises it for transcription.
// Stop returns after the stream is released and the clip is settled.
func (s *Session) Stop(interrupted bool) error {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return ErrNotRecording
	}
	s.external = true
	s.extReason = ReasonManual
	if interrupted {
		s.extReason = ReasonInterrupted
	}
	stream := s.active
	s.mu.Unlock()

	stream.Close()
	s.wg.Wait()
	return nil
}

// Clip returns the finalised clip of the last capture, or nil when the
// capture was discarded or never produced audio.
func (s *Session) Clip() *audio.Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clip
}

// Recording reports whether a capture is active.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Done returns the channel that receives the stop reason when the current
// capture ends. Each Start replaces the channel; it delivers exactly one
// value per capture.
func (s *Session) Done() <-chan StopReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// collect drains the stream until it ends, the detector reports end of
// speech, or the auto-speak cap fires, then settles the clip.
func (s *Session) collect(stream audio.CaptureStream, detector vad.SessionHandle, autoSpeak bool) {
	defer s.wg.Done()

	var timerC <-chan time.Time
	if autoSpeak {
		timer := time.NewTimer(s.maxAuto)
		defer timer.Stop()
		timerC = timer.C
	}

	var buf bytes.Buffer
	var dur time.Duration
	reason := ReasonManual

loop:
	for {
		select {
		case f, ok := <-stream.Frames():
			if !ok {
				break loop
			}
			buf.Write(f.PCM)
			dur += f.Duration
			if detector == nil {
				continue
			}
			ev, err := detector.ProcessFrame(f.PCM)
			if err != nil {
				s.log.Warn("vad frame rejected", slog.String("error", err.Error()))
				continue
			}
			if ev.Type == vad.SpeechEnd {
				reason = ReasonSpeechEnd
				break loop
			}
		case <-timerC:
			reason = ReasonMaxDuration
			break loop
		}
	}

	// Stream release happens on every path, watcher stops included.
	stream.Close()
	if detector != nil {
		detector.Close()
	}

	s.mu.Lock()
	if s.external {
		reason = s.extReason
	}
	s.recording = false
	s.active = nil
	if reason != ReasonInterrupted && buf.Len() > 0 {
		cfg := stream.Config()
		s.clip = &audio.Clip{
			Data:       buf.Bytes(),
			MIMEType:   "audio/pcm",
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
			Duration:   dur,
		}
	}
	done := s.done
	s.mu.Unlock()

	s.log.Debug("capture stopped",
		slog.String("reason", reason.String()),
		slog.Duration("duration", dur))
	done <- reason
}
