package proxypool

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Default breaker settings.
const (
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
)

// BreakerFetcher stops calling a pool that keeps failing. After failures
// consecutive errors the breaker opens and every fetch returns
// ErrPoolUnavailable immediately until cooldown has passed; one probe is
// then let through to decide whether to close again.
//
// It never retries: a rejected fetch simply yields no proxy.
type BreakerFetcher struct {
	next Fetcher
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerFetcher wraps next with a circuit breaker.
func NewBreakerFetcher(next Fetcher, failures int, cooldown time.Duration, logger *slog.Logger) *BreakerFetcher {
	if failures <= 0 {
		failures = DefaultBreakerFailures
	}
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	if logger == nil {
		logger = slog.Default()
	}
	threshold := uint32(failures) //nolint:gosec // failures is positive and small

	settings := gobreaker.Settings{
		Name:        "proxy-pool",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// A cancelled crawl says nothing about the pool's health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("proxy pool breaker state change",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &BreakerFetcher{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

// Fetch implements Fetcher.
func (b *BreakerFetcher) Fetch(ctx context.Context) (string, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Fetch(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrPoolUnavailable
	}
	if err != nil {
		return "", err
	}
	addr, _ := v.(string)
	return addr, nil
}

// State returns the breaker state ("closed", "half-open" or "open").
func (b *BreakerFetcher) State() string {
	return b.cb.State().String()
}
