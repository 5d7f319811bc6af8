// Package mock provides a test double for the vad.Engine interface.
//
// Use Engine in unit tests to script exact detection events for each processed
// frame without depending on real signal analysis:
//
//	eng := &mock.Engine{Events: []vad.Event{
//	    {Type: vad.SpeechStart}, {Type: vad.SpeechContinue}, {Type: vad.SpeechEnd},
//	}}
package mock

import (
	"sync"

	"github.com/parlancehq/parlance/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine. Every session it creates
// replays the configured Events sequence, then keeps returning the last event
// (or Silence when Events is empty).
type Engine struct {
	mu sync.Mutex

	// Events is the scripted sequence of detection results.
	Events []vad.Event

	// NewSessionErr, if non-nil, is returned from NewSession.
	NewSessionErr error

	// Sessions records every session handed out.
	Sessions []*Session
}

var _ vad.Engine = (*Engine)(nil)

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	events := make([]vad.Event, len(e.Events))
	copy(events, e.Events)
	s := &Session{Cfg: cfg, events: events}
	e.Sessions = append(e.Sessions, s)
	return s, nil
}

// Session is the mock vad.SessionHandle created by [Engine.NewSession].
type Session struct {
	// Cfg is the configuration the session was created with.
	Cfg vad.Config

	mu     sync.Mutex
	events []vad.Event
	next   int

	// FrameCount is the number of ProcessFrame calls.
	FrameCount int

	// ResetCount is the number of Reset calls.
	ResetCount int

	// CloseCount is the number of Close calls.
	CloseCount int
}

var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame implements vad.SessionHandle by replaying the scripted events.
func (s *Session) ProcessFrame(_ []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FrameCount++
	if len(s.events) == 0 {
		return vad.Event{Type: vad.Silence}, nil
	}
	ev := s.events[s.next]
	if s.next < len(s.events)-1 {
		s.next++
	}
	return ev, nil
}

// Reset implements vad.SessionHandle.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCount++
	s.next = 0
}

// Close implements vad.SessionHandle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return nil
}
