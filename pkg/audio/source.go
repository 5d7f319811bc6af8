package audio

import "context"

// CaptureStream is an open audio capture feed. It is an interface so that test
// code can supply mock implementations without a live client connection.
//
// Callers must call Close when the stream is no longer needed. Close releases
// every acquired resource (device tracks, network buffers) regardless of how
// the capture ended; the capture layer relies on this to guarantee cleanup on
// both the finalise and the discard path.
type CaptureStream interface {
	// Frames returns a read-only channel emitting PCM frames as they arrive.
	// The channel is closed when the source ends the stream or Close is called.
	Frames() <-chan Frame

	// Config reports the format of the frames this stream emits.
	Config() StreamConfig

	// Close terminates the stream and releases all associated resources.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// CaptureSource opens capture streams. Implementations wrap a concrete
// transport (websocket feed from a client, a test fixture) and map transport
// failures onto the package's capture errors.
//
// Implementations must be safe for concurrent use; the capture layer enforces
// at most one active stream per session at a higher level.
type CaptureSource interface {
	// Open starts a new capture stream. Returns [ErrPermissionDenied],
	// [ErrNoDevice] or [ErrUnsupported] (possibly wrapped) when the client
	// cannot provide audio, or a transport error otherwise.
	Open(ctx context.Context, cfg StreamConfig) (CaptureStream, error)
}
