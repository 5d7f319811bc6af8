// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider in unit tests to hand out controlled audio URLs and to verify
// what the playback layer asked to synthesise:
//
//	p := &mock.Provider{URL: "https://cdn.test/audio/1.mp3"}
package mock

import (
	"context"
	"sync"

	"github.com/parlancehq/parlance/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.SynthesisRequest
}

// Provider is a mock implementation of tts.Provider.
// Set Err to inject a failure. When URLFunc is set it takes precedence over
// URL, letting tests derive distinct URLs per request.
type Provider struct {
	mu sync.Mutex

	// URL is returned by Synthesize.
	URL string

	// URLFunc, when non-nil, computes the returned URL from the request.
	URLFunc func(req tts.SynthesisRequest) string

	// Err, if non-nil, is returned from Synthesize.
	Err error

	// Delay blocks each Synthesize call until the returned release func is
	// invoked, when set via Gate. Nil means calls return immediately.
	gate chan struct{}

	// Calls records every invocation of Synthesize in order.
	Calls []SynthesizeCall
}

var _ tts.Provider = (*Provider)(nil)

// Gate makes subsequent Synthesize calls block until Release is called.
// Useful for testing in-flight interruption.
func (p *Provider) Gate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gate = make(chan struct{})
}

// Release unblocks all gated Synthesize calls.
func (p *Provider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gate != nil {
		close(p.gate)
		p.gate = nil
	}
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.SynthesisRequest) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Ctx: ctx, Req: req})
	gate := p.gate
	urlFunc := p.URLFunc
	url := p.URL
	err := p.Err
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if urlFunc != nil {
		return urlFunc(req), nil
	}
	return url, nil
}

// CallCount returns the number of recorded Synthesize calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
