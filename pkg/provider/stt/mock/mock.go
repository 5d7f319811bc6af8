// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider in unit tests to feed controlled transcripts into the
// orchestrator and to verify the requests it makes:
//
//	p := &mock.Provider{Result: &stt.Transcript{Text: "Hola"}}
package mock

import (
	"context"
	"sync"

	"github.com/parlancehq/parlance/pkg/audio"
	"github.com/parlancehq/parlance/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Clip is the clip passed to Transcribe.
	Clip *audio.Clip
	// Language is the language tag passed to Transcribe.
	Language string
}

// Provider is a mock implementation of stt.Provider.
// Set Err to inject a failure; otherwise Result (or an empty transcript) is
// returned. Results may also be scripted per call via Queue.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Queue is empty.
	Result *stt.Transcript

	// Queue, when non-empty, yields one result per call in order. The last
	// entry is repeated once the queue is exhausted.
	Queue []*stt.Transcript

	// Err, if non-nil, is returned from Transcribe.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, clip *audio.Clip, language string) (*stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Clip: clip, Language: language})
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Queue) > 0 {
		r := p.Queue[0]
		if len(p.Queue) > 1 {
			p.Queue = p.Queue[1:]
		}
		return r, nil
	}
	if p.Result != nil {
		return p.Result, nil
	}
	return &stt.Transcript{}, nil
}
