package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/parlancehq/parlance/pkg/provider/tts"
)

// Defaults for URL availability probing and the cache bounds.
const (
	DefaultProbeAttempts = 10
	DefaultProbeDelay    = 500 * time.Millisecond
	DefaultCacheSize     = 256
	DefaultCacheTTL      = 30 * time.Minute
)

// Option configures a Manager.
type Option func(*Manager)

// WithProber sets the URL availability prober. Nil disables probing; tests
// and pre-verified URLs use that.
func WithProber(p Prober) Option {
	return func(m *Manager) { m.prober = p }
}

// WithProbePolicy overrides the bounded HEAD retry policy.
func WithProbePolicy(attempts int, delay time.Duration) Option {
	return func(m *Manager) {
		m.probeAttempts = attempts
		m.probeDelay = delay
	}
}

// WithCache overrides the URL cache bounds.
func WithCache(size int, ttl time.Duration) Option {
	return func(m *Manager) { m.cache = newURLCache(size, ttl) }
}

// WithLogger sets the manager logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// queueItem is one pending auto-speak utterance.
type queueItem struct {
	text     string
	language string
	cacheKey string
}

// handle tracks one occupation of the playback slot.
type handle struct {
	done chan struct{}
}

// Manager owns the single playback slot and the auto-speak queue.
// Safe for concurrent use. One Manager exists per session, passed explicitly
// rather than held in package state so tests can run instances side by side.
type Manager struct {
	provider tts.Provider
	player   Player
	prober   Prober
	cache    *urlCache
	sf       singleflight.Group
	log      *slog.Logger

	probeAttempts int
	probeDelay    time.Duration

	mu         sync.Mutex
	cond       *sync.Cond
	gen        uint64
	current    *handle
	generating map[string]int
	playing    map[string]bool
	queue      []queueItem
	draining   bool
	closed     bool
}

// NewManager creates a playback manager synthesising through provider and
// playing through player.
func NewManager(provider tts.Provider, player Player, opts ...Option) *Manager {
	m := &Manager{
		provider:      provider,
		player:        player,
		cache:         newURLCache(DefaultCacheSize, DefaultCacheTTL),
		log:           slog.Default(),
		probeAttempts: DefaultProbeAttempts,
		probeDelay:    DefaultProbeDelay,
		generating:    make(map[string]int),
		playing:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Play resolves audio for text and plays it, interrupting any current
// playback first. The resolved URL is cached under cacheKey; concurrent
// calls for the same key share one synthesis. Returns [ErrInterrupted] when
// a later request claimed the slot before or during this playback.
func (m *Manager) Play(ctx context.Context, text, language, cacheKey string) error {
	url, err := m.resolveURL(ctx, text, language, cacheKey)
	if err != nil {
		return err
	}
	return m.playURL(ctx, url, cacheKey)
}

// PlayExisting plays an already-synthesised URL, interrupting any current
// playback first. Used for message replays where the URL was stored on the
// message.
func (m *Manager) PlayExisting(ctx context.Context, url, cacheKey string) error {
	m.cache.put(cacheKey, url)
	return m.playURL(ctx, url, cacheKey)
}

// Stop interrupts the current playback, if any. Queued auto-speak items are
// unaffected.
func (m *Manager) Stop() {
	m.player.Stop()
}

// CachedURL returns the cached audio URL for cacheKey, when present and
// fresh. Callers use it to stamp messages with the URL of their spoken
// audio after a successful Play.
func (m *Manager) CachedURL(cacheKey string) (string, bool) {
	return m.cache.get(cacheKey)
}

// Generating reports whether a synthesis for cacheKey is in flight. Drives
// the per-message spinner.
func (m *Manager) Generating(cacheKey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generating[cacheKey] > 0
}

// Playing reports whether cacheKey currently occupies the playback slot.
func (m *Manager) Playing(cacheKey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing[cacheKey]
}

// Enqueue appends an utterance to the auto-speak queue and starts the drain
// if it is not already running. The drain plays items in FIFO order, one at
// a time, waiting for the slot to be free before each item.
func (m *Manager) Enqueue(text, language, cacheKey string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, queueItem{text: text, language: language, cacheKey: cacheKey})
	start := !m.draining
	if start {
		m.draining = true
	}
	m.mu.Unlock()

	if start {
		go m.drain()
	}
}

// QueueLen reports the number of pending auto-speak items.
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close stops playback, discards the queue and rejects further plays.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.cond.Broadcast()
	m.mu.Unlock()
	m.player.Stop()
}

// resolveURL returns a playable URL for the utterance: a fresh cache hit, or
// a new synthesis deduplicated per cache key.
func (m *Manager) resolveURL(ctx context.Context, text, language, cacheKey string) (string, error) {
	if url, ok := m.cache.get(cacheKey); ok {
		return url, nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	m.generating[cacheKey]++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.generating[cacheKey]--
		if m.generating[cacheKey] <= 0 {
			delete(m.generating, cacheKey)
		}
		m.mu.Unlock()
	}()

	v, err, _ := m.sf.Do(cacheKey, func() (any, error) {
		url, err := m.provider.Synthesize(ctx, tts.SynthesisRequest{Text: text, Language: language})
		if err != nil {
			return "", fmt.Errorf("playback: synthesize: %w", err)
		}
		if err := m.probe(ctx, url); err != nil {
			return "", err
		}
		m.cache.put(cacheKey, url)
		return url, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// probe waits for the synthesised URL to become readable, with a fixed
// number of attempts at a fixed delay.
func (m *Manager) probe(ctx context.Context, url string) error {
	if m.prober == nil {
		return nil
	}
	var lastErr error
	for attempt := 0; attempt < m.probeAttempts; attempt++ {
		if lastErr = m.prober.ProbeURL(ctx, url); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.probeDelay):
		}
	}
	return fmt.Errorf("playback: audio not readable after %d probes: %w", m.probeAttempts, lastErr)
}

// playURL claims the playback slot, interrupting the current occupant, and
// plays url. Generation numbering makes the newest claim win when several
// requests contend for the slot.
func (m *Manager) playURL(ctx context.Context, url, cacheKey string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.gen++
	gen := m.gen
	prev := m.current
	m.mu.Unlock()

	if prev != nil {
		m.player.Stop()
		<-prev.done
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.gen != gen {
		// A later Play arrived while this one waited for the slot.
		m.mu.Unlock()
		return ErrInterrupted
	}
	h := &handle{done: make(chan struct{})}
	m.current = h
	m.playing[cacheKey] = true
	m.mu.Unlock()

	err := m.player.Play(ctx, url)
	close(h.done)

	m.mu.Lock()
	if m.current == h {
		m.current = nil
	}
	delete(m.playing, cacheKey)
	m.cond.Broadcast()
	m.mu.Unlock()

	if errors.Is(err, ErrStopped) {
		return ErrInterrupted
	}
	if err != nil {
		return fmt.Errorf("playback: play %s: %w", url, err)
	}
	return nil
}

// drain plays queued items in order. It runs as the single queue processor;
// Enqueue never starts a second drain while one is active.
func (m *Manager) drain() {
	for {
		m.mu.Lock()
		// An item starts only when nothing occupies the slot.
		for m.current != nil && !m.closed {
			m.cond.Wait()
		}
		if m.closed || len(m.queue) == 0 {
			m.draining = false
			m.mu.Unlock()
			return
		}
		item := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		if err := m.Play(context.Background(), item.text, item.language, item.cacheKey); err != nil {
			// Interrupted items were superseded deliberately; anything else
			// is logged and the queue moves on.
			if !errors.Is(err, ErrInterrupted) && !errors.Is(err, ErrClosed) {
				m.log.Warn("auto-speak playback failed",
					slog.String("cache_key", item.cacheKey),
					slog.String("error", err.Error()))
			}
		}
	}
}
