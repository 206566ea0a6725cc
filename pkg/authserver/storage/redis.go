package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces authorization codes in Redis.
const keyPrefix = "casfa:authcode:"

// RedisStore implements Store on Redis. Expiry is delegated to key TTLs
// and consumption to GETDEL, which makes the one-shot guarantee hold
// across replicas of this server.
type RedisStore struct {
	client redis.UniversalClient

	// now is swapped out in tests.
	now func() time.Time
}

// NewRedisStore creates a Redis-backed code store over an injected client,
// so tests can pass a miniredis-backed one.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func redisKey(code string) string {
	return keyPrefix + code
}

// Create stores the code with a TTL matching its expiry.
func (s *RedisStore) Create(ctx context.Context, code *AuthorizationCode) error {
	ttl := time.Duration(code.ExpiresAt-s.now().UnixMilli()) * time.Millisecond
	if ttl <= 0 {
		return fmt.Errorf("authorization code is already expired")
	}

	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to encode authorization code: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(code.Code), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store authorization code: %w", err)
	}
	return nil
}

// Consume atomically retrieves and deletes the code via GETDEL.
func (s *RedisStore) Consume(ctx context.Context, code string) (*AuthorizationCode, error) {
	data, err := s.client.GetDel(ctx, redisKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	var stored AuthorizationCode
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode authorization code: %w", err)
	}
	// Key TTL normally handles expiry; re-check for clock skew.
	if stored.Used || stored.IsExpired(s.now()) {
		return nil, ErrNotFound
	}

	stored.Used = true
	return &stored, nil
}

// Compile-time interface compliance check
var _ Store = (*RedisStore)(nil)
