package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lavapool/lavapool/internal/config"
	"github.com/lavapool/lavapool/internal/logging"
	"github.com/lavapool/lavapool/internal/node"
	"github.com/lavapool/lavapool/internal/query"
)

// ErrEntryNotFound indicates a lookup miss, or a store of a result with
// nothing in it.
var ErrEntryNotFound = errors.New("cache: entry not found")

// Entry is a cached resolution: the encoded tracks a query produced.
type Entry struct {
	Name     string    `json:"name,omitempty"` // playlist name, when there is one
	Tracks   []string  `json:"tracks"`
	CachedAt time.Time `json:"cached_at"`
}

// Store caches query results so repeated lookups skip the node round trip.
type Store interface {
	// Get returns the entry for a query, or ErrEntryNotFound.
	Get(ctx context.Context, q query.Query) (Entry, error)

	// Put stores a query's load result. Queries that must not be cached
	// and empty-handed results (NO_MATCHES, LOAD_FAILED) are skipped
	// silently; a nominally successful result with zero tracks returns
	// ErrEntryNotFound.
	Put(ctx context.Context, q query.Query, result node.LoadResult) error

	Close() error
}

// New builds the configured cache backend.
func New(cfg config.CacheConfig, logger *logging.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.TTL), nil
	case "redis":
		return NewRedisStore(cfg.Redis, cfg.TTL, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}

// entryFromResult validates a result for caching. The bool reports whether
// the result is cacheable at all.
func entryFromResult(q query.Query, result node.LoadResult) (Entry, bool, error) {
	if !q.Cacheable() {
		return Entry{}, false, nil
	}

	switch result.LoadType {
	case node.LoadTypeNoMatches, node.LoadTypeLoadFailed:
		return Entry{}, false, nil
	}

	if len(result.Tracks) == 0 {
		return Entry{}, false, ErrEntryNotFound
	}

	entry := Entry{
		Name:     result.PlaylistInfo.Name,
		Tracks:   make([]string, len(result.Tracks)),
		CachedAt: time.Now(),
	}
	for i, t := range result.Tracks {
		entry.Tracks[i] = t.Encoded
	}
	return entry, true, nil
}
