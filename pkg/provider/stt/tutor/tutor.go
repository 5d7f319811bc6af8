// Package tutor provides an stt.Provider backed by the tutor backend's
// transcription endpoint. This is the primary provider: the backend applies
// language-learning specific prompting (accent tolerance, learner vocabulary)
// that generic STT services do not.
package tutor

import (
	"context"
	"fmt"

	"github.com/parlancehq/parlance/pkg/audio"
	"github.com/parlancehq/parlance/pkg/backend"
	"github.com/parlancehq/parlance/pkg/provider/stt"
)

// Provider implements stt.Provider using the tutor backend.
type Provider struct {
	client *backend.Client
}

var _ stt.Provider = (*Provider)(nil)

// New creates a Provider that transcribes through client.
func New(client *backend.Client) (*Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("tutor stt: client must not be nil")
	}
	return &Provider{client: client}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, clip *audio.Clip, language string) (*stt.Transcript, error) {
	res, err := p.client.Transcribe(ctx, clip, language)
	if err != nil {
		return nil, fmt.Errorf("tutor stt: %w", err)
	}
	return &stt.Transcript{
		Text:      res.Transcription,
		Romanized: res.Romanized,
		Fallback:  backend.IsFallbackTranscription(res.Transcription),
	}, nil
}
