// Package ratelimit provides request spacing for the AniDB HTTP API.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config defines request spacing configuration.
type Config struct {
	// Min is the hard minimum spacing between consecutive requests.
	Min time.Duration
	// Average is the target average spacing; each grant is spaced by a
	// value drawn between Min and Average.
	Average time.Duration
	// Burst is an upper bound on the computed spacing.
	Burst time.Duration
}

// DefaultConfig returns spacing conservative enough to keep AniDB from
// banning the client.
func DefaultConfig() Config {
	return Config{
		Min:     2 * time.Second,
		Average: 4 * time.Second,
		Burst:   30 * time.Second,
	}
}

// Limiter spaces outbound requests to the provider. A single instance is
// shared by every caller that talks to the provider; it is constructed
// explicitly and passed down, never held in a package global.
type Limiter struct {
	config Config
	logger zerolog.Logger

	// gate serializes the check-and-update of lastGranted. A buffered
	// channel is used instead of a mutex so acquisition can be abandoned
	// on context cancellation.
	gate chan struct{}

	mu          sync.Mutex
	lastGranted time.Time
}

// NewLimiter creates a new request limiter.
func NewLimiter(config Config, logger zerolog.Logger) *Limiter {
	if config.Min <= 0 {
		config = DefaultConfig()
	}
	if config.Average < config.Min {
		config.Average = config.Min
	}
	if config.Burst < config.Average {
		config.Burst = config.Average
	}
	return &Limiter{
		config: config,
		logger: logger.With().Str("component", "rate-limiter").Logger(),
		gate:   make(chan struct{}, 1),
	}
}

// Wait blocks until the caller may issue one request to the provider.
// Consecutive grants are separated by at least Config.Min. Cancellation
// aborts the wait and leaves the last-granted timestamp untouched, so an
// abandoned wait never pushes later callers further out.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case l.gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.gate }()

	l.mu.Lock()
	last := l.lastGranted
	l.mu.Unlock()

	wakeAt := last.Add(l.spacing())
	if wait := time.Until(wakeAt); wait > 0 {
		l.logger.Debug().Dur("wait", wait).Msg("Delaying provider request")

		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.mu.Lock()
	l.lastGranted = time.Now()
	l.mu.Unlock()

	return nil
}

// spacing draws the delay before the next grant: at least Min, on average
// midway toward Average, never beyond Burst.
func (l *Limiter) spacing() time.Duration {
	span := l.config.Average - l.config.Min
	d := l.config.Min
	if span > 0 {
		d += time.Duration(rand.Int63n(int64(span) + 1))
	}
	if d > l.config.Burst {
		d = l.config.Burst
	}
	return d
}

// LastGranted returns the time of the most recent grant.
func (l *Limiter) LastGranted() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastGranted
}
