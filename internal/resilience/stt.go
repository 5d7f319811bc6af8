package resilience

import (
	"context"
	"log/slog"

	"github.com/parlancehq/parlance/pkg/audio"
	"github.com/parlancehq/parlance/pkg/provider/stt"
)

// STTChain implements [stt.Provider] with failover across transcription
// backends. The tutor backend is normally preferred, with the Whisper API as
// fallback; each backend sits behind its own breaker.
type STTChain struct {
	chain *Chain[stt.Provider]
}

var _ stt.Provider = (*STTChain)(nil)

// NewSTTChain creates an STT failover chain. Providers are added with
// [STTChain.Add]; the first added is preferred.
func NewSTTChain(breaker BreakerConfig, log *slog.Logger) *STTChain {
	return &STTChain{chain: NewChain[stt.Provider](breaker, log)}
}

// Add registers a transcription backend at the end of the chain.
func (c *STTChain) Add(name string, provider stt.Provider) {
	c.chain.Add(name, provider)
}

// States exposes the per-backend breaker states for readiness reporting.
func (c *STTChain) States() map[string]BreakerState {
	return c.chain.States()
}

// Transcribe implements stt.Provider against the first healthy backend.
func (c *STTChain) Transcribe(ctx context.Context, clip *audio.Clip, language string) (*stt.Transcript, error) {
	return DoWith(c.chain, func(p stt.Provider) (*stt.Transcript, error) {
		return p.Transcribe(ctx, clip, language)
	})
}
