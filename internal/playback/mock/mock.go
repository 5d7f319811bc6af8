// Package mock provides a test double for the playback.Player interface.
//
// Player records every URL played and lets tests control when each playback
// "finishes", so interruption and queue ordering can be exercised
// deterministically:
//
//	p := &mock.Player{}
//	p.Hold() // playbacks block until released or stopped
package mock

import (
	"context"
	"sync"

	"github.com/parlancehq/parlance/internal/playback"
)

// PlayCall records a single invocation of Play.
type PlayCall struct {
	// URL is the audio URL passed to Play.
	URL string
}

// Player is a mock implementation of playback.Player. By default every Play
// returns immediately; call Hold to make playbacks block until Release or
// Stop.
type Player struct {
	mu sync.Mutex

	// Err, if non-nil, is returned from Play (unless stopped first).
	Err error

	// Calls records every invocation of Play in order.
	Calls []PlayCall

	hold    bool
	release chan struct{}

	active     int
	maxActive  int
	stopSignal chan struct{}
}

var _ playback.Player = (*Player)(nil)

// Hold makes subsequent Play calls block until Release or Stop.
func (p *Player) Hold() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hold = true
	p.release = make(chan struct{})
}

// Release unblocks held Play calls; further plays return immediately.
func (p *Player) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hold = false
	if p.release != nil {
		close(p.release)
		p.release = nil
	}
}

// Play implements playback.Player.
func (p *Player) Play(ctx context.Context, url string) error {
	p.mu.Lock()
	p.Calls = append(p.Calls, PlayCall{URL: url})
	p.active++
	if p.active > p.maxActive {
		p.maxActive = p.active
	}
	stop := make(chan struct{})
	p.stopSignal = stop
	release := p.release
	hold := p.hold
	err := p.Err
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active--
		if p.stopSignal == stop {
			p.stopSignal = nil
		}
		p.mu.Unlock()
	}()

	if hold {
		select {
		case <-release:
		case <-stop:
			return playback.ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Stop implements playback.Player.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopSignal != nil {
		close(p.stopSignal)
		p.stopSignal = nil
	}
}

// MaxConcurrent reports the highest number of simultaneously active Play
// calls observed. The single-playback invariant requires this to stay at 1.
func (p *Player) MaxConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxActive
}

// PlayedURLs returns the URLs played, in order.
func (p *Player) PlayedURLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	urls := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		urls[i] = c.URL
	}
	return urls
}
