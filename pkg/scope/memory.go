package scope

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemorySetStore implements SetStore with a mutex-guarded map.
type MemorySetStore struct {
	mu    sync.RWMutex
	nodes map[string]*SetNode
}

// NewMemorySetStore creates an empty in-memory set-node store.
func NewMemorySetStore() *MemorySetStore {
	return &MemorySetStore{nodes: make(map[string]*SetNode)}
}

// CreateOrIncrement stores the set-node, or bumps its refCount when the id
// already exists.
func (s *MemorySetStore) CreateOrIncrement(_ context.Context, id string, children []string) (*SetNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if node, ok := s.nodes[id]; ok {
		node.RefCount++
		return cloneSetNode(node), nil
	}

	node := &SetNode{
		ID:        id,
		Children:  slices.Clone(children),
		RefCount:  1,
		CreatedAt: time.Now().UnixMilli(),
	}
	s.nodes[id] = node
	return cloneSetNode(node), nil
}

// Get returns a copy of the set-node by id.
func (s *MemorySetStore) Get(_ context.Context, id string) (*SetNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, ErrSetNodeNotFound
	}
	return cloneSetNode(node), nil
}

func cloneSetNode(n *SetNode) *SetNode {
	out := *n
	out.Children = slices.Clone(n.Children)
	return &out
}

// Compile-time interface compliance check
var _ SetStore = (*MemorySetStore)(nil)
