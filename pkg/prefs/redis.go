package prefs

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RedisKeyPrefix namespaces preference keys in Redis.
const RedisKeyPrefix = "catalog:prefs:"

// RedisStore is a Store backed by Redis, shared by every proxy instance.
type RedisStore struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		logger: log.With().Str("component", "prefs").Logger(),
	}
}

func redisKey(key string) string {
	return RedisKeyPrefix + key
}

// GetString implements Store.
func (s *RedisStore) GetString(ctx context.Context, key, def string) (string, error) {
	if key == "" {
		prefsOperationsTotal.WithLabelValues("redis", "get", "error").Inc()
		return def, ErrEmptyKey
	}

	v, err := s.redis.Get(ctx, redisKey(key)).Result()
	if err == redis.Nil {
		prefsOperationsTotal.WithLabelValues("redis", "get", "miss").Inc()
		return def, nil
	}
	if err != nil {
		prefsOperationsTotal.WithLabelValues("redis", "get", "error").Inc()
		return def, fmt.Errorf("redis get: %w", err)
	}

	prefsOperationsTotal.WithLabelValues("redis", "get", "hit").Inc()
	s.logger.Debug().Str("key", key).Str("value", v).Msg("Preference loaded")
	return v, nil
}

// PutString implements Store.
func (s *RedisStore) PutString(ctx context.Context, key, value string) error {
	if key == "" {
		prefsOperationsTotal.WithLabelValues("redis", "put", "error").Inc()
		return ErrEmptyKey
	}

	if err := s.redis.Set(ctx, redisKey(key), value, 0).Err(); err != nil {
		prefsOperationsTotal.WithLabelValues("redis", "put", "error").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	prefsOperationsTotal.WithLabelValues("redis", "put", "ok").Inc()
	s.logger.Debug().Str("key", key).Str("value", value).Msg("Preference stored")
	return nil
}
