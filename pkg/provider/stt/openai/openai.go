// Package openai provides an stt.Provider backed by the OpenAI transcription
// API (Whisper). It serves as a fallback when the tutor backend's
// transcription endpoint is unavailable; it returns no romanisation, so
// script-language turns transcribed through it display native script only.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/parlancehq/parlance/pkg/audio"
	"github.com/parlancehq/parlance/pkg/provider/stt"
)

const defaultModel = oai.AudioModelWhisper1

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	model   oai.AudioModel
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL (e.g. for proxies).
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel selects the transcription model. Default: whisper-1.
func WithModel(model string) Option {
	return func(c *config) { c.model = oai.AudioModel(model) }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Provider implements stt.Provider using the OpenAI audio API.
type Provider struct {
	client oai.Client
	model  oai.AudioModel
}

var _ stt.Provider = (*Provider)(nil)

// New constructs an OpenAI transcription Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, clip *audio.Clip, language string) (*stt.Transcript, error) {
	if clip.Empty() {
		return nil, fmt.Errorf("openai stt: clip is empty")
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(clip.Data), fileName(clip.MIMEType), clip.MIMEType),
		Model: p.model,
	}
	if language != "" {
		// The transcription API wants a bare ISO 639-1 code, not a full tag.
		params.Language = oai.String(baseLanguage(language))
	}

	res, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai stt: %w", err)
	}
	return &stt.Transcript{
		Text:     strings.TrimSpace(res.Text),
		Fallback: strings.TrimSpace(res.Text) == "",
	}, nil
}

// fileName picks an upload filename whose extension matches the clip payload;
// the API rejects uploads with unrecognised extensions.
func fileName(mimeType string) string {
	switch mimeType {
	case "audio/webm":
		return "clip.webm"
	case "audio/ogg":
		return "clip.ogg"
	case "audio/wav", "audio/x-wav", "audio/pcm":
		return "clip.wav"
	default:
		return "clip.mp3"
	}
}

// baseLanguage strips any region subtag ("es-MX" → "es").
func baseLanguage(tag string) string {
	if i := strings.IndexByte(tag, '-'); i > 0 {
		return tag[:i]
	}
	return tag
}
