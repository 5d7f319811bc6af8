// Package audio defines the audio types and capture abstractions shared by the
// Parlance pipeline.
//
// The central abstraction is [CaptureSource]: a device- or transport-specific
// factory that opens a [CaptureStream] of raw PCM frames. The real source is a
// websocket feed from a connected client; tests use the mock subpackage. The
// capture session layer (internal/capture) consumes frames from a stream and
// assembles them into a finalised [Clip] that is handed to transcription.
package audio

import (
	"errors"
	"time"
)

// Capture errors. Sources must return one of these (possibly wrapped) for the
// corresponding failure class so that callers can surface a precise message
// instead of a generic capture failure.
var (
	// ErrPermissionDenied indicates the client refused or revoked microphone
	// permission.
	ErrPermissionDenied = errors.New("audio: capture permission denied")

	// ErrNoDevice indicates no usable input device was found.
	ErrNoDevice = errors.New("audio: no capture device")

	// ErrUnsupported indicates the client cannot capture audio at all
	// (missing recorder support, unsupported sample format).
	ErrUnsupported = errors.New("audio: capture not supported")
)

// Frame is a single chunk of raw little-endian PCM audio as delivered by a
// [CaptureStream]. Frames are sized by the source; the VAD layer requires a
// fixed frame duration, which sources advertise via [StreamConfig].
type Frame struct {
	// PCM holds raw 16-bit little-endian samples.
	PCM []byte

	// Duration is the play time covered by PCM at the stream's sample rate.
	Duration time.Duration
}

// Clip is a finalised audio recording produced by a capture session. It is the
// unit handed to STT providers.
type Clip struct {
	// Data is the encoded clip body. For PCM clips this is the concatenated
	// frame payload; sources may also deliver container formats (WebM, Ogg).
	Data []byte

	// MIMEType describes Data (e.g. "audio/pcm", "audio/webm").
	MIMEType string

	// SampleRate is the sample rate in Hz of the underlying audio.
	SampleRate int

	// Channels is the channel count. 1 for all capture sources shipped here.
	Channels int

	// Duration is the total recorded length.
	Duration time.Duration
}

// Empty reports whether the clip contains no audio data.
func (c *Clip) Empty() bool {
	return c == nil || len(c.Data) == 0
}

// StreamConfig describes the audio format a capture stream delivers.
type StreamConfig struct {
	// SampleRate is the PCM sample rate in Hz. Common values: 16000, 48000.
	SampleRate int

	// Channels is the channel count. Sources downmix to mono where needed.
	Channels int

	// FrameDuration is the fixed duration of each emitted [Frame].
	// Typical: 20ms or 30ms, matching VAD frame requirements.
	FrameDuration time.Duration
}
