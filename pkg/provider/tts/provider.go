// Package tts defines the Provider interface for text-to-speech backends.
//
// Synthesis in Parlance is URL-based rather than streamed: the provider
// generates audio, stores it, and returns a playable URL. The playback layer
// (internal/playback) owns caching, availability probing and the
// single-playback invariant; providers only synthesise.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// SynthesisRequest describes one utterance to synthesise.
type SynthesisRequest struct {
	// Text is the utterance in the target language. For script languages the
	// caller chooses whether to send native or romanised text based on the
	// learner's display preference.
	Text string

	// Language is the BCP-47 tag the voice should speak.
	Language string
}

// Provider is the abstraction over any URL-based TTS backend.
type Provider interface {
	// Synthesize generates speech for req and returns a URL from which the
	// audio can be fetched. The URL may not be immediately readable if the
	// backend stores audio asynchronously; callers tolerate this with
	// bounded availability probing.
	Synthesize(ctx context.Context, req SynthesisRequest) (string, error)
}
