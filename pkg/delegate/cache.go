package delegate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/casfa/casfa/pkg/logger"
)

// DefaultCacheTTL bounds how stale a cached delegate may be when no
// mutating call evicts it first.
const DefaultCacheTTL = 30 * time.Second

// cacheKeyPrefix namespaces delegate cache entries in Redis.
const cacheKeyPrefix = "casfa:delegate:"

// CachedStore is a Redis read-through cache in front of another Store.
//
// Caching positives is safe because the delegate's invariants are
// monotonic: a revoked delegate stays revoked, and a stale pre-rotation
// entry fails the token-hash comparison and forces a re-read. Mutating
// calls (RotateTokens, Revoke) evict the entry before returning; negative
// results are never cached; a corrupt entry is treated as a miss.
type CachedStore struct {
	inner  Store
	client redis.UniversalClient
	ttl    time.Duration

	// group collapses concurrent misses for the same delegate into one
	// read against the inner store.
	group singleflight.Group
}

// NewCachedStore wraps inner with a Redis cache. A nil client disables
// caching entirely and the inner store is returned unchanged.
func NewCachedStore(inner Store, client redis.UniversalClient, ttl time.Duration) Store {
	if client == nil {
		return inner
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{inner: inner, client: client, ttl: ttl}
}

func cacheKey(id string) string {
	return cacheKeyPrefix + id
}

// Create passes through; freshly created delegates are read rarely enough
// that warming the cache here is not worth the write.
func (s *CachedStore) Create(ctx context.Context, d *Delegate) error {
	return s.inner.Create(ctx, d)
}

// Get serves from the cache when possible and falls through to the inner
// store otherwise, populating the cache on a successful read.
func (s *CachedStore) Get(ctx context.Context, id string) (*Delegate, error) {
	data, err := s.client.Get(ctx, cacheKey(id)).Bytes()
	if err == nil {
		var d Delegate
		if jsonErr := json.Unmarshal(data, &d); jsonErr == nil {
			return &d, nil
		}
		// Corrupt entry: drop it and fall through to the store.
		logger.Warnw("dropping corrupt delegate cache entry", "delegate_id", id)
		s.evict(ctx, id)
	} else if !errors.Is(err, redis.Nil) {
		// Redis being down must not take auth down with it.
		logger.Warnw("delegate cache read failed", "delegate_id", id, "error", err.Error())
	}

	v, err, _ := s.group.Do(id, func() (any, error) {
		d, err := s.inner.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if data, jsonErr := json.Marshal(d); jsonErr == nil {
			if setErr := s.client.Set(ctx, cacheKey(id), data, s.ttl).Err(); setErr != nil {
				logger.Warnw("delegate cache write failed", "delegate_id", id, "error", setErr.Error())
			}
		}
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	// Clone per caller: singleflight hands the same value to every waiter.
	return v.(*Delegate).Clone(), nil
}

// RotateTokens delegates to the inner store and evicts the cached entry
// before returning, so no reader observes the pre-rotation hashes past
// this call.
func (s *CachedStore) RotateTokens(ctx context.Context, req RotateRequest) (bool, error) {
	ok, err := s.inner.RotateTokens(ctx, req)
	s.evict(ctx, req.DelegateID)
	return ok, err
}

// Revoke delegates to the inner store and evicts the cached entry before
// returning.
func (s *CachedStore) Revoke(ctx context.Context, id, by string) (bool, error) {
	ok, err := s.inner.Revoke(ctx, id, by)
	s.evict(ctx, id)
	return ok, err
}

// ListChildren passes through; list results are not cached.
func (s *CachedStore) ListChildren(ctx context.Context, parentID string, limit int, cursor string) ([]*Delegate, string, error) {
	return s.inner.ListChildren(ctx, parentID, limit, cursor)
}

// GetOrCreateRoot passes through.
func (s *CachedStore) GetOrCreateRoot(ctx context.Context, realm string, proposed *Delegate) (*Delegate, bool, error) {
	return s.inner.GetOrCreateRoot(ctx, realm, proposed)
}

func (s *CachedStore) evict(ctx context.Context, id string) {
	if err := s.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		logger.Warnw("delegate cache eviction failed", "delegate_id", id, "error", err.Error())
	}
}

// Compile-time interface compliance check
var _ Store = (*CachedStore)(nil)
