package scope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key namespaces shared with the CAS writer.
const (
	nodeKeyPrefix = "casfa:node:"
	setKeyPrefix  = "casfa:scopeset:"
)

// RedisNodeSource reads CAS nodes from the Redis keyspace the CAS layer
// writes them into.
type RedisNodeSource struct {
	client redis.UniversalClient
}

// NewRedisNodeSource creates a node source over client.
func NewRedisNodeSource(client redis.UniversalClient) *RedisNodeSource {
	return &RedisNodeSource{client: client}
}

// GetNode returns the raw node bytes for hash, or ErrNodeNotFound.
func (s *RedisNodeSource) GetNode(ctx context.Context, hash string) ([]byte, error) {
	data, err := s.client.Get(ctx, nodeKeyPrefix+hash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read node %s: %w", hash, err)
	}
	return data, nil
}

// EmptyNodeSource holds no nodes. Deployments without a CAS backend use
// it; every path-walking scope request fails resolution while plain
// inheritance keeps working.
type EmptyNodeSource struct{}

// GetNode always reports the node as missing.
func (EmptyNodeSource) GetNode(context.Context, string) ([]byte, error) {
	return nil, ErrNodeNotFound
}

// RedisSetStore persists scope set-nodes as Redis hashes. The refCount
// lives in its own hash field so concurrent creates increment instead of
// clobbering each other.
type RedisSetStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisSetStore creates a set-node store over client.
func NewRedisSetStore(client redis.UniversalClient) *RedisSetStore {
	return &RedisSetStore{client: client, now: time.Now}
}

// CreateOrIncrement stores the set-node or bumps its refCount when the id
// already exists.
func (s *RedisSetStore) CreateOrIncrement(ctx context.Context, id string, children []string) (*SetNode, error) {
	key := setKeyPrefix + id
	data, err := json.Marshal(children)
	if err != nil {
		return nil, fmt.Errorf("failed to encode set-node children: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSetNX(ctx, key, "children", data)
	pipe.HSetNX(ctx, key, "createdAt", s.now().UnixMilli())
	refCount := pipe.HIncrBy(ctx, key, "refCount", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to store set-node %s: %w", id, err)
	}

	node, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	node.RefCount = int(refCount.Val())
	return node, nil
}

// Get returns the set-node by id, or ErrSetNodeNotFound.
func (s *RedisSetStore) Get(ctx context.Context, id string) (*SetNode, error) {
	fields, err := s.client.HGetAll(ctx, setKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read set-node %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrSetNodeNotFound
	}

	node := &SetNode{ID: id}
	if err := json.Unmarshal([]byte(fields["children"]), &node.Children); err != nil {
		return nil, fmt.Errorf("corrupt set-node %s: %w", id, err)
	}
	refCount, err := strconv.Atoi(fields["refCount"])
	if err != nil {
		return nil, fmt.Errorf("corrupt set-node %s refCount: %w", id, err)
	}
	node.RefCount = refCount
	createdAt, err := strconv.ParseInt(fields["createdAt"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt set-node %s createdAt: %w", id, err)
	}
	node.CreatedAt = createdAt
	return node, nil
}

// Compile-time interface compliance checks
var (
	_ NodeSource = (*RedisNodeSource)(nil)
	_ NodeSource = EmptyNodeSource{}
	_ SetStore   = (*RedisSetStore)(nil)
)
