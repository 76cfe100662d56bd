package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stockguard/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStore keeps sessions in Redis and relies on key TTLs for expiry.
type RedisStore struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	now    Clock
	logger zerolog.Logger
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration, logger zerolog.Logger, opts ...Option) *RedisStore {
	o := buildOptions(opts)
	return &RedisStore{
		rdb:    rdb,
		ttl:    ttl,
		now:    o.now,
		logger: logger.With().Str("store", "redis_session").Logger(),
	}
}

// Stage writes the session with a TTL matching its expiry.
func (s *RedisStore) Stage(ctx context.Context, sess *model.CheckoutSession) error {
	if err := stamp(sess, s.now(), s.ttl); err != nil {
		return err
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := s.rdb.Set(ctx, key(sess.CorrelationID), payload, s.ttl).Err(); err != nil {
		s.logger.Error().Err(err).Str("correlation_id", sess.CorrelationID).Msg("failed to stage session")
		return fmt.Errorf("failed to stage session: %w", err)
	}

	s.logger.Debug().
		Str("correlation_id", sess.CorrelationID).
		Time("expires_at", sess.ExpiresAt).
		Msg("session staged")

	return nil
}

// Get reads a session. Entries that outlived their expiry are removed.
func (s *RedisStore) Get(ctx context.Context, correlationID string) (*model.CheckoutSession, error) {
	payload, err := s.rdb.Get(ctx, key(correlationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		s.logger.Error().Err(err).Str("correlation_id", correlationID).Msg("failed to read session")
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess model.CheckoutSession
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	if sess.Expired(s.now()) {
		// Discard logs its own failure. The key TTL removes it regardless.
		if err := s.Discard(ctx, correlationID); err != nil {
			s.logger.Debug().Str("correlation_id", correlationID).Msg("expired session left for TTL eviction")
		}
		return nil, ErrNotFound
	}

	return &sess, nil
}

// Discard deletes a session.
func (s *RedisStore) Discard(ctx context.Context, correlationID string) error {
	if err := s.rdb.Del(ctx, key(correlationID)).Err(); err != nil {
		s.logger.Error().Err(err).Str("correlation_id", correlationID).Msg("failed to discard session")
		return fmt.Errorf("failed to discard session: %w", err)
	}
	return nil
}

// Sweep is a no-op: Redis expires keys on its own.
func (s *RedisStore) Sweep(context.Context) (int, error) {
	return 0, nil
}
