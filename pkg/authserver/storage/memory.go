package storage

import (
	"context"
	"sync"
	"time"
)

// cleanupInterval is how often the background sweep drops expired codes.
const cleanupInterval = time.Minute

// MemoryStore implements Store with a mutex-guarded map and a background
// TTL sweep. Close stops the sweep.
type MemoryStore struct {
	mu    sync.RWMutex
	codes map[string]*AuthorizationCode

	stop chan struct{}
	done chan struct{}

	// now is swapped out in tests.
	now func() time.Time
}

// NewMemoryStore creates an in-memory code store and starts its cleanup
// loop.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		codes: make(map[string]*AuthorizationCode),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		now:   time.Now,
	}
	go s.cleanupLoop()
	return s
}

// Create stores the code.
func (s *MemoryStore) Create(_ context.Context, code *AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *code
	s.codes[code.Code] = &stored
	return nil
}

// Consume atomically removes and returns the code. Expired and used codes
// are reported identically to missing ones.
func (s *MemoryStore) Consume(_ context.Context, code string) (*AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.codes[code]
	if !ok || stored.Used || stored.IsExpired(s.now()) {
		return nil, ErrNotFound
	}

	delete(s.codes, code)
	out := *stored
	out.Used = true
	return &out, nil
}

// Close stops the cleanup loop and waits for it to exit.
func (s *MemoryStore) Close() {
	close(s.stop)
	<-s.done
}

func (s *MemoryStore) cleanupLoop() {
	defer close(s.done)
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

func (s *MemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for code, stored := range s.codes {
		if stored.IsExpired(now) {
			delete(s.codes, code)
		}
	}
}

// Compile-time interface compliance check
var _ Store = (*MemoryStore)(nil)
