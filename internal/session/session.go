// Package session holds staged checkout sessions between checkout and payment
// notification. Sessions are temporary: they expire after a TTL and are never
// written to the relational store.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockguard/internal/model"

	"github.com/rs/zerolog"
)

// KeySession is the Redis key pattern for a staged session: checkout:session:{correlation_id}.
const KeySession = "checkout:session:%s"

// ErrNotFound is returned when no live session exists for a correlation id.
var ErrNotFound = errors.New("checkout session not found")

// Store is the temporary checkout session store.
type Store interface {
	// Stage stores a session under its correlation id and stamps its expiry.
	Stage(ctx context.Context, s *model.CheckoutSession) error

	// Get returns the live session for a correlation id, or ErrNotFound.
	// A session whose expiry has passed is treated as absent and removed.
	Get(ctx context.Context, correlationID string) (*model.CheckoutSession, error)

	// Discard removes a session. Discarding a missing session is not an error.
	Discard(ctx context.Context, correlationID string) error

	// Sweep removes expired sessions and reports how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// Clock returns the current time.
type Clock func() time.Time

// Option configures a store.
type Option func(*options)

type options struct {
	now Clock
}

// WithClock overrides the time source used for expiry.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.now = c
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func key(correlationID string) string {
	return fmt.Sprintf(KeySession, correlationID)
}

// stamp validates s and sets its timestamps relative to now.
func stamp(s *model.CheckoutSession, now time.Time, ttl time.Duration) error {
	if s == nil || s.CorrelationID == "" {
		return errors.New("session requires a correlation id")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.ExpiresAt = now.Add(ttl)
	return nil
}

// StartSweeper calls Sweep on s every interval until ctx is done.
func StartSweeper(ctx context.Context, s Store, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("failed to sweep checkout sessions")
				continue
			}
			if n > 0 {
				logger.Info().Int("removed", n).Msg("expired checkout sessions swept")
			}
		}
	}
}
