package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/parlancehq/parlance/internal/playback"
)

// remotePlayer implements [playback.Player] against the connected client.
// Audio decoding happens on the client: Play sends a playback.start event
// with the audio URL and blocks until the client acknowledges completion,
// the playback is stopped, or ctx is cancelled. Sequence numbers tie acks to
// the play they answer so a late ack for a superseded play is ignored.
type remotePlayer struct {
	send func(ev Event) error

	mu     sync.Mutex
	seq    uint64
	result chan error
}

var _ playback.Player = (*remotePlayer)(nil)

func newRemotePlayer(send func(ev Event) error) *remotePlayer {
	return &remotePlayer{send: send}
}

// Play implements playback.Player.
func (p *remotePlayer) Play(ctx context.Context, url string) error {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	result := make(chan error, 1)
	p.result = result
	p.mu.Unlock()

	if err := p.send(Event{Type: "playback.start", Seq: seq, URL: url}); err != nil {
		p.settle(seq, err)
		<-result
		return fmt.Errorf("gateway: send playback.start: %w", err)
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		p.settle(seq, ctx.Err())
		return ctx.Err()
	}
}

// Stop implements playback.Player. It tells the client to halt its audio
// element and releases the waiting Play with [playback.ErrStopped].
func (p *remotePlayer) Stop() {
	p.mu.Lock()
	seq := p.seq
	p.mu.Unlock()

	// Best effort; a dead socket settles plays via disconnect instead.
	_ = p.send(Event{Type: "playback.stop"})
	p.settle(seq, playback.ErrStopped)
}

// ack resolves the waiting Play when the client reports the audio finished
// or failed. Acks for superseded sequence numbers are dropped.
func (p *remotePlayer) ack(seq uint64, clientErr string) {
	var err error
	if clientErr != "" {
		err = fmt.Errorf("gateway: client playback: %s", clientErr)
	}
	p.settle(seq, err)
}

// disconnect releases any waiting Play when the session socket is gone.
func (p *remotePlayer) disconnect() {
	p.mu.Lock()
	seq := p.seq
	p.mu.Unlock()
	p.settle(seq, errors.New("gateway: session disconnected"))
}

// settle delivers the outcome for seq exactly once.
func (p *remotePlayer) settle(seq uint64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq != p.seq || p.result == nil {
		return
	}
	p.result <- err
	p.result = nil
}
