package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/stunity/identity/internal/models"
)

type memoryEntry struct {
	bundle    *Bundle
	expiresAt time.Time
}

// MemoryStore is an in-process Store for single-instance deployments and
// tests. A janitor goroutine evicts expired codes.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a memory store and starts its janitor.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *MemoryStore) Create(ctx context.Context, bundle *Bundle) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.entries[code] = memoryEntry{
		bundle:    bundle,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	return code, nil
}

func (s *MemoryStore) Consume(ctx context.Context, code string) (*Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[code]
	if !ok {
		return nil, models.ErrExchangeCodeInvalid
	}
	delete(s.entries, code)

	if time.Now().After(entry.expiresAt) {
		return nil, models.ErrExchangeCodeInvalid
	}
	return entry.bundle, nil
}

// Stop terminates the janitor goroutine.
func (s *MemoryStore) Stop() {
	s.once.Do(func() {
		close(s.stop)
	})
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for code, entry := range s.entries {
				if now.After(entry.expiresAt) {
					delete(s.entries, code)
				}
			}
			s.mu.Unlock()
		}
	}
}
