package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"esports-aggregator/internal/config"
	"esports-aggregator/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	mirrorPrefix    = "esports:cache"
	MirrorRetention = 24 * time.Hour
)

// Mirror copies cache entries to Redis so a restarted process can serve
// stale data before its first successful fetch. A nil *Mirror is a no-op.
type Mirror struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewMirror(cfg *config.Config, logger zerolog.Logger) (*Mirror, error) {
	if cfg.RedisURL == "" {
		logger.Info().Msg("redis mirror disabled")
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	return NewMirrorWithClient(redis.NewClient(opts), logger), nil
}

func NewMirrorWithClient(client *redis.Client, logger zerolog.Logger) *Mirror {
	return &Mirror{client: client, logger: logger.With().Str("component", "redis_mirror").Logger()}
}

func mirrorKey(key Key) string {
	return fmt.Sprintf("%s:%s", mirrorPrefix, key)
}

func (m *Mirror) Enabled() bool { return m != nil }

func (m *Mirror) Close() error {
	if m == nil {
		return nil
	}
	return m.client.Close()
}

// Save writes one entry. Errors are returned for the caller to log.
func Save[T any](ctx context.Context, m *Mirror, entry Entry[T]) error {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	return m.client.Set(ctx, mirrorKey(entry.Key), data, MirrorRetention).Err()
}

// Warm restores every mirrored entry of one record kind into store.
func Warm[T any](ctx context.Context, m *Mirror, kind domain.RecordKind, store *Store[T]) (int, error) {
	if m == nil {
		return 0, nil
	}

	pattern := fmt.Sprintf("%s:%s:*", mirrorPrefix, kind)
	iter := m.client.Scan(ctx, 0, pattern, 100).Iterator()

	restored := 0
	for iter.Next(ctx) {
		data, err := m.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			m.logger.Warn().Err(err).Str("key", iter.Val()).Msg("failed to read mirrored entry")
			continue
		}
		var entry Entry[T]
		if err := json.Unmarshal(data, &entry); err != nil {
			m.logger.Warn().Err(err).Str("key", iter.Val()).Msg("skipping undecodable mirrored entry")
			continue
		}
		if store.Restore(entry) {
			restored++
		}
	}
	if err := iter.Err(); err != nil {
		return restored, fmt.Errorf("scanning mirrored entries: %w", err)
	}

	m.logger.Info().Str("kind", string(kind)).Int("restored", restored).Msg("cache warmed from redis")
	return restored, nil
}
