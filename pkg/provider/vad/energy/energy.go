// Package energy implements a dependency-free VAD engine based on short-term
// frame energy.
//
// Each frame's RMS amplitude is normalised against the int16 range and smoothed
// with an exponential moving average to produce a pseudo-probability that is
// compared against the configured thresholds. This is deliberately simple: it
// runs inline in the capture loop with no model inference, and the capture
// layer's hard timeout bounds the damage of a missed detection.
package energy

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/parlancehq/parlance/pkg/provider/vad"
)

// smoothingFactor weights the current frame's energy against the running
// average. Higher values react faster but flicker more on plosives.
const smoothingFactor = 0.3

// Engine implements [vad.Engine] using frame-energy detection.
type Engine struct{}

var _ vad.Engine = (*Engine)(nil)

// New returns a new energy-based VAD engine.
func New() *Engine { return &Engine{} }

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy vad: sample rate %d is invalid", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy vad: frame size %dms is invalid", cfg.FrameSizeMs)
	}
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy vad: speech threshold %.2f out of range [0, 1]", cfg.SpeechThreshold)
	}
	if cfg.SilenceThreshold < 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy vad: silence threshold %.2f must be in [0, speech threshold]", cfg.SilenceThreshold)
	}
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = 0.5
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = 0.35
	}
	if cfg.HangoverFrames <= 0 {
		cfg.HangoverFrames = 25
	}

	// 16-bit mono PCM: 2 bytes per sample.
	frameBytes := cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2
	return &session{cfg: cfg, frameBytes: frameBytes}, nil
}

// session holds the per-stream detection state.
type session struct {
	cfg        vad.Config
	frameBytes int

	mu         sync.Mutex
	closed     bool
	smoothed   float64
	inSpeech   bool
	silentRun  int
}

var _ vad.SessionHandle = (*session)(nil)

// ProcessFrame implements vad.SessionHandle.
func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vad.Event{}, errors.New("energy vad: session closed")
	}
	if len(frame) != s.frameBytes {
		return vad.Event{}, fmt.Errorf("energy vad: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	p := s.frameProbability(frame)
	s.smoothed = smoothingFactor*p + (1-smoothingFactor)*s.smoothed

	ev := vad.Event{Probability: s.smoothed}
	switch {
	case !s.inSpeech && s.smoothed >= s.cfg.SpeechThreshold:
		s.inSpeech = true
		s.silentRun = 0
		ev.Type = vad.SpeechStart

	case s.inSpeech && s.smoothed <= s.cfg.SilenceThreshold:
		s.silentRun++
		if s.silentRun >= s.cfg.HangoverFrames {
			s.inSpeech = false
			s.silentRun = 0
			ev.Type = vad.SpeechEnd
		} else {
			// Inside the hangover window the segment is still considered live.
			ev.Type = vad.SpeechContinue
		}

	case s.inSpeech:
		s.silentRun = 0
		ev.Type = vad.SpeechContinue

	default:
		ev.Type = vad.Silence
	}
	return ev, nil
}

// Reset implements vad.SessionHandle.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.smoothed = 0
	s.inSpeech = false
	s.silentRun = 0
}

// Close implements vad.SessionHandle.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// frameProbability maps the RMS amplitude of a 16-bit PCM frame onto [0, 1].
// The mapping is logarithmic: -60 dBFS and below is 0, 0 dBFS is 1.
func (s *session) frameProbability(frame []byte) float64 {
	var sum float64
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	for i := 0; i+1 < len(frame); i += 2 {
		sample := int16(uint16(frame[i]) | uint16(frame[i+1])<<8)
		v := float64(sample) / math.MaxInt16
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(n))
	if rms <= 0 {
		return 0
	}
	db := 20 * math.Log10(rms)
	const floor = -60.0
	if db <= floor {
		return 0
	}
	if db >= 0 {
		return 1
	}
	return 1 - db/floor
}
