// Package mock provides test doubles for the audio.CaptureSource and
// audio.CaptureStream interfaces.
//
// Use Source in unit tests to feed controlled PCM frames into a capture
// session and to verify resource release without a live transport:
//
//	src := &mock.Source{StreamFrames: []audio.Frame{{PCM: pcm, Duration: 20 * time.Millisecond}}}
//	sess.Start(ctx, "es", false)
package mock

import (
	"context"
	"sync"

	"github.com/parlancehq/parlance/pkg/audio"
)

// OpenCall records a single invocation of Open.
type OpenCall struct {
	// Ctx is the context passed to Open.
	Ctx context.Context
	// Cfg is the stream configuration passed to Open.
	Cfg audio.StreamConfig
}

// Source is a mock implementation of audio.CaptureSource.
// Zero values cause Open to return an empty, immediately-closable stream.
// Set OpenErr to inject an open failure.
type Source struct {
	mu sync.Mutex

	// StreamFrames is the sequence of frames the opened stream emits before
	// its channel closes. The frames are delivered asynchronously.
	StreamFrames []audio.Frame

	// HoldOpen keeps the frame channel open after StreamFrames are delivered
	// until Close is called on the stream. Use this to simulate a client that
	// keeps recording until told to stop.
	HoldOpen bool

	// OpenErr, if non-nil, is returned from Open instead of a stream.
	OpenErr error

	// OpenCalls records every invocation of Open in order.
	OpenCalls []OpenCall

	// Streams records every stream handed out, for post-test inspection of
	// Close behaviour.
	Streams []*Stream
}

var _ audio.CaptureSource = (*Source)(nil)

// Open implements audio.CaptureSource.
func (s *Source) Open(ctx context.Context, cfg audio.StreamConfig) (audio.CaptureStream, error) {
	s.mu.Lock()
	s.OpenCalls = append(s.OpenCalls, OpenCall{Ctx: ctx, Cfg: cfg})
	if s.OpenErr != nil {
		s.mu.Unlock()
		return nil, s.OpenErr
	}
	st := &Stream{
		cfg:    cfg,
		frames: make(chan audio.Frame, len(s.StreamFrames)+1),
		done:   make(chan struct{}),
	}
	s.Streams = append(s.Streams, st)
	frames := make([]audio.Frame, len(s.StreamFrames))
	copy(frames, s.StreamFrames)
	holdOpen := s.HoldOpen
	s.mu.Unlock()

	go func() {
		for _, f := range frames {
			select {
			case st.frames <- f:
			case <-st.done:
				return
			}
		}
		if !holdOpen {
			st.closeFrames()
		}
	}()
	return st, nil
}

// Stream is the mock audio.CaptureStream handed out by [Source.Open].
type Stream struct {
	cfg    audio.StreamConfig
	frames chan audio.Frame
	done   chan struct{}

	mu          sync.Mutex
	frameClosed bool
	closed      bool

	// CloseCount is the number of times Close has been called.
	CloseCount int
}

var _ audio.CaptureStream = (*Stream)(nil)

// Frames implements audio.CaptureStream.
func (st *Stream) Frames() <-chan audio.Frame { return st.frames }

// Config implements audio.CaptureStream.
func (st *Stream) Config() audio.StreamConfig { return st.cfg }

// Close implements audio.CaptureStream. It closes the frame channel and
// records the call.
func (st *Stream) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.CloseCount++
	if st.closed {
		return nil
	}
	st.closed = true
	close(st.done)
	st.closeFramesLocked()
	return nil
}

// Closed reports whether Close has been called at least once.
func (st *Stream) Closed() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.closed
}

func (st *Stream) closeFrames() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.closeFramesLocked()
}

func (st *Stream) closeFramesLocked() {
	if !st.frameClosed {
		st.frameClosed = true
		close(st.frames)
	}
}
