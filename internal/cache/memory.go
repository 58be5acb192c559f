package cache

import (
	"context"
	"sync"
	"time"

	"github.com/lavapool/lavapool/internal/node"
	"github.com/lavapool/lavapool/internal/query"
)

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryStore is an in-process TTL cache with a background sweeper.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a memory cache. A zero ttl means entries live for
// 30 days.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go s.sweep()
	return s
}

func (s *MemoryStore) Get(ctx context.Context, q query.Query) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[q.CacheKey()]
	if !ok || time.Now().After(e.expiresAt) {
		return Entry{}, ErrEntryNotFound
	}
	return e.entry, nil
}

func (s *MemoryStore) Put(ctx context.Context, q query.Query, result node.LoadResult) error {
	entry, ok, err := entryFromResult(q, result)
	if err != nil || !ok {
		return err
	}

	s.mu.Lock()
	s.entries[q.CacheKey()] = &memoryEntry{
		entry:     entry,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()
	return nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stopCh) })
	return nil
}

func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}
