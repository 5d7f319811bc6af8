// Package tutor provides a tts.Provider backed by the tutor backend's
// synthesis endpoint.
package tutor

import (
	"context"
	"fmt"

	"github.com/parlancehq/parlance/pkg/backend"
	"github.com/parlancehq/parlance/pkg/provider/tts"
)

// Provider implements tts.Provider using the tutor backend.
type Provider struct {
	client *backend.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a Provider that synthesises through client.
func New(client *backend.Client) (*Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("tutor tts: client must not be nil")
	}
	return &Provider{client: client}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.SynthesisRequest) (string, error) {
	if req.Text == "" {
		return "", fmt.Errorf("tutor tts: text must not be empty")
	}
	res, err := p.client.SynthesizeSpeech(ctx, backend.TTSRequest{
		Text:     req.Text,
		Language: req.Language,
	})
	if err != nil {
		return "", fmt.Errorf("tutor tts: %w", err)
	}
	return res.TTSURL, nil
}
