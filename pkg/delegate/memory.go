package delegate

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/casfa/casfa/pkg/pagination"
)

// MemoryStore implements Store with mutex-guarded maps. It is the backing
// store for tests and single-process deployments; all values are defensively
// copied on the way in and out.
type MemoryStore struct {
	mu sync.RWMutex

	// delegates maps delegate id -> row.
	delegates map[string]*Delegate

	// children maps "PARENT#<id>" (or "PARENT#ROOT") -> child ids, the
	// in-memory equivalent of the store's secondary index.
	children map[string][]string
}

// NewMemoryStore creates an empty in-memory delegate store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		delegates: make(map[string]*Delegate),
		children:  make(map[string][]string),
	}
}

// parentIndexKey builds the secondary-index key for a parent id. Roots are
// filed under the ROOT sentinel.
func parentIndexKey(parentID string) string {
	if parentID == "" {
		return "PARENT#" + RootParentSentinel
	}
	return "PARENT#" + parentID
}

// Create stores a new delegate and indexes it under its parent.
func (s *MemoryStore) Create(_ context.Context, d *Delegate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.delegates[d.DelegateID]; exists {
		return ErrAlreadyExists
	}

	s.delegates[d.DelegateID] = d.Clone()
	key := parentIndexKey(d.ParentID)
	s.children[key] = append(s.children[key], d.DelegateID)
	return nil
}

// Get returns a copy of the delegate by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Delegate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.delegates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

// RotateTokens installs a new token generation under the compare-and-swap
// on the stored refresh-token hash. The whole read-check-write runs under
// the write lock, which is what makes the CAS linearizable here.
func (s *MemoryStore) RotateTokens(_ context.Context, req RotateRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.delegates[req.DelegateID]
	if !ok {
		return false, nil
	}
	if d.CurrentRTHash != req.ExpectedRTHash {
		return false, nil
	}

	d.CurrentRTHash = req.NewRTHash
	d.CurrentATHash = req.NewATHash
	d.ATExpiresAt = req.NewATExpiresAt
	return true, nil
}

// Revoke marks the delegate revoked if it is not already.
func (s *MemoryStore) Revoke(_ context.Context, id, by string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.delegates[id]
	if !ok {
		return false, nil
	}
	if d.IsRevoked {
		return false, nil
	}

	d.IsRevoked = true
	d.RevokedAt = time.Now().UnixMilli()
	d.RevokedBy = by
	return true, nil
}

// ListChildren pages through the direct children of parentID ordered by
// (createdAt, id).
func (s *MemoryStore) ListChildren(_ context.Context, parentID string, limit int, cursor string) ([]*Delegate, string, error) {
	cur, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	ids := s.children[parentIndexKey(parentID)]
	all := make([]*Delegate, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.delegates[id]; ok {
			all = append(all, d.Clone())
		}
	}
	s.mu.RUnlock()

	sortByCreation(all)

	var page []*Delegate
	for _, d := range all {
		if cur != nil && !afterCursor(d, cur) {
			continue
		}
		page = append(page, d)
		if len(page) > limit {
			break
		}
	}

	page, next := pagination.ComputePage(page, limit, func(d *Delegate) (int64, string) {
		return d.CreatedAt, d.DelegateID
	})
	return page, next, nil
}

// GetOrCreateRoot returns the realm's root, creating it from proposed when
// the realm has none yet.
func (s *MemoryStore) GetOrCreateRoot(_ context.Context, realm string, proposed *Delegate) (*Delegate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rootKey := parentIndexKey("")
	for _, id := range s.children[rootKey] {
		if d, ok := s.delegates[id]; ok && d.Realm == realm {
			return d.Clone(), false, nil
		}
	}

	s.delegates[proposed.DelegateID] = proposed.Clone()
	s.children[rootKey] = append(s.children[rootKey], proposed.DelegateID)
	return proposed.Clone(), true, nil
}

// sortByCreation orders by (createdAt, id), matching the cursor key.
func sortByCreation(ds []*Delegate) {
	slices.SortFunc(ds, func(a, b *Delegate) int {
		if c := cmp.Compare(a.CreatedAt, b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.DelegateID, b.DelegateID)
	})
}

func afterCursor(d *Delegate, cur *pagination.Cursor) bool {
	if d.CreatedAt != cur.CreatedAt {
		return d.CreatedAt > cur.CreatedAt
	}
	return d.DelegateID > cur.ID
}

// Compile-time interface compliance check
var _ Store = (*MemoryStore)(nil)
