package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stunity/identity/internal/models"
)

const redisKeyPrefix = "ssoexch:"

// RedisStore backs the exchange with Redis so codes created on one instance
// can be consumed on another. GETDEL makes take-once atomic.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. The connection is verified
// before returning.
func NewRedisStore(ctx context.Context, client *redis.Client, ttl time.Duration) (*RedisStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Create(ctx context.Context, bundle *Bundle) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("failed to marshal bundle: %w", err)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+code, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store exchange code: %w", err)
	}

	return code, nil
}

func (s *RedisStore) Consume(ctx context.Context, code string) (*Bundle, error) {
	payload, err := s.client.GetDel(ctx, redisKeyPrefix+code).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrExchangeCodeInvalid
		}
		return nil, fmt.Errorf("failed to consume exchange code: %w", err)
	}

	var bundle Bundle
	if err := json.Unmarshal(payload, &bundle); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bundle: %w", err)
	}
	return &bundle, nil
}
