// Package stt defines the Provider interface for speech-to-text backends.
//
// Parlance transcribes whole clips rather than live streams: the capture layer
// finalises a recording first, then hands it off as one unit. A Provider wraps
// a transcription service (the tutor backend, the OpenAI Whisper API) behind a
// uniform blocking call.
//
// Implementations must be safe for concurrent use; multiple learner sessions
// may transcribe in parallel.
package stt

import (
	"context"

	"github.com/parlancehq/parlance/pkg/audio"
)

// Transcript is the result of transcribing one clip.
type Transcript struct {
	// Text is the recognised speech in the target language's native script.
	Text string

	// Romanized is the Latin-script rendering for script languages (e.g.
	// pinyin for Mandarin, rōmaji for Japanese). Empty when the language
	// already uses Latin script or the provider cannot romanise.
	Romanized string

	// Fallback reports that the provider heard nothing intelligible and Text
	// carries its fallback sentence rather than real speech.
	Fallback bool
}

// Provider is the abstraction over any clip-transcription backend.
type Provider interface {
	// Transcribe converts a finalised clip into text. language is a BCP-47
	// tag (e.g. "es", "ja"); providers that auto-detect may ignore it.
	//
	// A non-nil Transcript with Fallback set is a successful call: the
	// service worked but heard nothing usable. Errors are reserved for
	// transport and service failures.
	Transcribe(ctx context.Context, clip *audio.Clip, language string) (*Transcript, error)
}
