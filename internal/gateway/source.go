package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/parlancehq/parlance/pkg/audio"
)

// errSourceClosed is returned by Open after the session socket is gone.
var errSourceClosed = errors.New("gateway: capture source closed")

// socketSource adapts the session socket's binary frames into an
// [audio.CaptureSource]. The socket read loop pushes payloads in; the capture
// layer consumes them as PCM frames. At most one stream is open at a time,
// matching the capture session's own single-stream rule.
type socketSource struct {
	mu     sync.Mutex
	open   *socketStream
	closed bool
}

// Open implements audio.CaptureSource.
func (s *socketSource) Open(ctx context.Context, cfg audio.StreamConfig) (audio.CaptureStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errSourceClosed
	}
	if s.open != nil {
		s.open.Close()
	}
	st := &socketStream{
		cfg:    cfg,
		frames: make(chan audio.Frame, 64),
	}
	s.open = st
	return st, nil
}

// push feeds one binary payload from the socket into the open stream.
// Payloads arriving with no stream open (client kept sending after a stop)
// are dropped.
func (s *socketSource) push(pcm []byte) {
	s.mu.Lock()
	st := s.open
	s.mu.Unlock()
	if st != nil {
		st.push(pcm)
	}
}

// close ends the open stream and rejects future opens. Called when the
// session socket disconnects.
func (s *socketSource) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.open != nil {
		s.open.Close()
		s.open = nil
	}
}

// socketStream is one open capture feed.
type socketStream struct {
	cfg    audio.StreamConfig
	frames chan audio.Frame

	mu     sync.Mutex
	closed bool
}

var _ audio.CaptureStream = (*socketStream)(nil)

// Frames implements audio.CaptureStream.
func (st *socketStream) Frames() <-chan audio.Frame {
	return st.frames
}

// Config implements audio.CaptureStream.
func (st *socketStream) Config() audio.StreamConfig {
	return st.cfg
}

// Close implements audio.CaptureStream.
func (st *socketStream) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.closed {
		st.closed = true
		close(st.frames)
	}
	return nil
}

// push appends one PCM payload. A slow consumer drops the oldest queued
// frame rather than stalling the socket read loop.
func (st *socketStream) push(pcm []byte) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return
	}
	f := audio.Frame{
		PCM:      append([]byte(nil), pcm...),
		Duration: pcmDuration(len(pcm), st.cfg),
	}
	select {
	case st.frames <- f:
	default:
		select {
		case <-st.frames:
		default:
		}
		st.frames <- f
	}
}

// pcmDuration computes the play time of n bytes of 16-bit PCM in cfg's
// format.
func pcmDuration(n int, cfg audio.StreamConfig) time.Duration {
	bytesPerSecond := cfg.SampleRate * cfg.Channels * 2
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bytesPerSecond)
}
