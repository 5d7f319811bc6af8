package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrExhausted is returned when every provider in a [Chain] failed or was
// rejected by its breaker.
var ErrExhausted = errors.New("resilience: all providers exhausted")

// chainEntry pairs one provider with its dedicated breaker.
type chainEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain holds a preferred provider plus ordered fallbacks of the same type,
// each guarded by its own [Breaker]. Providers whose breaker is open are
// skipped without a call.
//
// Register all providers before first use; Chain is then safe for concurrent
// use.
type Chain[T any] struct {
	entries []chainEntry[T]
	breaker BreakerConfig
	log     *slog.Logger
}

// NewChain creates a chain whose per-provider breakers use breaker as their
// template. The Name field is replaced per provider.
func NewChain[T any](breaker BreakerConfig, log *slog.Logger) *Chain[T] {
	if log == nil {
		log = slog.Default()
	}
	return &Chain[T]{breaker: breaker, log: log}
}

// Add appends a provider. The first added is the preferred one; the rest are
// tried in order.
func (c *Chain[T]) Add(name string, value T) {
	cfg := c.breaker
	cfg.Name = name
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
}

// Names returns the registered provider names in try order.
func (c *Chain[T]) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.name
	}
	return names
}

// States returns each provider's breaker state, keyed by name. Used by the
// readiness probe to report degraded provider chains.
func (c *Chain[T]) States() map[string]BreakerState {
	states := make(map[string]BreakerState, len(c.entries))
	for _, e := range c.entries {
		states[e.name] = e.breaker.State()
	}
	return states
}

// Do runs fn against each provider in order until one succeeds. Returns
// [ErrExhausted] wrapping the last error when all fail.
func (c *Chain[T]) Do(fn func(T) error) error {
	_, err := DoWith(c, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// DoWith runs fn against each provider in c until one returns a result.
// A package-level function because methods cannot carry type parameters.
func DoWith[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var zero R
	if len(c.entries) == 0 {
		return zero, fmt.Errorf("%w: empty chain", ErrExhausted)
	}

	var lastErr error
	for i := range c.entries {
		entry := &c.entries[i]
		var result R
		err := entry.breaker.Do(func() error {
			var callErr error
			result, callErr = fn(entry.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			c.log.Debug("provider skipped, breaker open", slog.String("provider", entry.name))
			continue
		}
		c.log.Warn("provider failed, trying next",
			slog.String("provider", entry.name),
			slog.String("error", err.Error()))
	}
	return zero, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}
