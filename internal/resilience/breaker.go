// Package resilience shields the tutoring pipeline from flapping speech
// providers.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open).
// [Chain] composes a preferred provider with ordered fallbacks, each behind
// its own breaker, so a dead primary STT backend degrades to the next one
// instead of failing every learner turn.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: breaker open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// Closed forwards all calls.
	Closed BreakerState = iota

	// Open rejects calls until the cooldown elapses.
	Open

	// HalfOpen lets a limited probe budget through to test recovery.
	HalfOpen
)

// String returns the human-readable name of the state.
func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels the breaker in logs.
	Name string

	// FailureLimit is the consecutive-failure count that opens the breaker.
	// Default: 5.
	FailureLimit int

	// Cooldown is how long the breaker stays open before probing. Default: 30s.
	Cooldown time.Duration

	// ProbeQuota is how many half-open calls may run before the breaker
	// decides. Default: 3.
	ProbeQuota int
}

// Breaker is a three-state circuit breaker. A consecutive run of failures
// opens it; after the cooldown a bounded set of probe calls decides whether
// it closes again. Any probe failure re-opens immediately.
type Breaker struct {
	name         string
	failureLimit int
	cooldown     time.Duration
	probeQuota   int
	log          *slog.Logger
	now          func() time.Time

	mu         sync.Mutex
	state      BreakerState
	failures   int
	openedAt   time.Time
	probes     int
	probeFails int
}

// NewBreaker creates a Breaker from cfg, applying defaults for zero fields.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureLimit <= 0 {
		cfg.FailureLimit = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeQuota <= 0 {
		cfg.ProbeQuota = 3
	}
	return &Breaker{
		name:         cfg.Name,
		failureLimit: cfg.FailureLimit,
		cooldown:     cfg.Cooldown,
		probeQuota:   cfg.ProbeQuota,
		log:          slog.Default(),
		now:          time.Now,
	}
}

// Do runs fn unless the breaker rejects it. Open breakers return [ErrOpen]
// without invoking fn.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.settle(err)
	return err
}

// admit decides whether a call may proceed, handling the open→half-open
// transition.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = HalfOpen
		b.probes = 0
		b.probeFails = 0
		b.log.Info("breaker half-open", slog.String("breaker", b.name))
	case HalfOpen:
		if b.probes >= b.probeQuota {
			return ErrOpen
		}
	}
	if b.state == HalfOpen {
		b.probes++
	}
	return nil
}

// settle applies the call outcome to the breaker state.
func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		if b.state == HalfOpen {
			b.probeFails++
			b.state = Open
			b.openedAt = b.now()
			b.failures = b.failureLimit
			b.log.Warn("breaker re-opened by failed probe", slog.String("breaker", b.name))
			return
		}
		b.failures++
		if b.failures >= b.failureLimit {
			b.state = Open
			b.openedAt = b.now()
			b.log.Warn("breaker opened",
				slog.String("breaker", b.name),
				slog.Int("consecutive_failures", b.failures))
		}
		return
	}

	if b.state == HalfOpen {
		if b.probes-b.probeFails >= b.probeQuota {
			b.state = Closed
			b.failures = 0
			b.log.Info("breaker closed after probes", slog.String("breaker", b.name))
		}
		return
	}
	b.failures = 0
}

// State reports the effective state: an open breaker past its cooldown
// reports HalfOpen even though the transition happens on the next Do.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probes = 0
	b.probeFails = 0
}
