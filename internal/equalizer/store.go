package equalizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lavapool/lavapool/internal/config"
)

// ErrPresetNotFound indicates no preset with the requested name exists.
var ErrPresetNotFound = errors.New("equalizer: preset not found")

// Store persists named equalizer presets.
type Store interface {
	Get(name string) (Preset, error)
	Put(p Preset) error
	Delete(name string) error
	List() ([]Preset, error)
	Close() error
}

// New builds the configured preset store seeded with the builtin presets.
func New(cfg config.EqualizerConfig) (Store, error) {
	var store Store
	switch cfg.Backend {
	case "", "memory":
		store = NewMemoryPresetStore()
	case "redis":
		s, err := NewRedisPresetStore(cfg.Redis)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown equalizer backend: %s", cfg.Backend)
	}

	if err := EnsureBuiltins(store); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// EnsureBuiltins seeds the stock presets without overwriting user edits.
func EnsureBuiltins(store Store) error {
	for _, preset := range Builtins() {
		if _, err := store.Get(preset.Name); err == nil {
			continue
		} else if !errors.Is(err, ErrPresetNotFound) {
			return err
		}

		if err := store.Put(preset); err != nil {
			return fmt.Errorf("failed to seed preset %s: %w", preset.Name, err)
		}
	}
	return nil
}

// MemoryPresetStore keeps presets in process memory.
type MemoryPresetStore struct {
	mu      sync.RWMutex
	presets map[string]Preset
}

func NewMemoryPresetStore() *MemoryPresetStore {
	return &MemoryPresetStore{presets: make(map[string]Preset)}
}

func (s *MemoryPresetStore) Get(name string) (Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.presets[name]
	if !ok {
		return Preset{}, ErrPresetNotFound
	}
	return p, nil
}

func (s *MemoryPresetStore) Put(p Preset) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.presets[p.Name] = p
	s.mu.Unlock()
	return nil
}

func (s *MemoryPresetStore) Delete(name string) error {
	s.mu.Lock()
	delete(s.presets, name)
	s.mu.Unlock()
	return nil
}

func (s *MemoryPresetStore) List() ([]Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Preset, 0, len(s.presets))
	for _, p := range s.presets {
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryPresetStore) Close() error { return nil }

const redisPresetKey = "lavapool:equalizers"

// RedisPresetStore keeps presets in a Redis hash so multiple processes
// share one preset library.
type RedisPresetStore struct {
	client *redis.Client
}

func NewRedisPresetStore(cfg config.RedisConfig) (*RedisPresetStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{
			Addr:     cfg.URL,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisPresetStore{client: client}, nil
}

func (s *RedisPresetStore) Get(name string) (Preset, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := s.client.HGet(ctx, redisPresetKey, name).Bytes()
	if err == redis.Nil {
		return Preset{}, ErrPresetNotFound
	}
	if err != nil {
		return Preset{}, fmt.Errorf("preset lookup failed: %w", err)
	}

	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return Preset{}, fmt.Errorf("failed to decode preset: %w", err)
	}
	return p, nil
}

func (s *RedisPresetStore) Put(p Preset) error {
	if err := p.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode preset: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.client.HSet(ctx, redisPresetKey, p.Name, data).Err(); err != nil {
		return fmt.Errorf("preset store failed: %w", err)
	}
	return nil
}

func (s *RedisPresetStore) Delete(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.client.HDel(ctx, redisPresetKey, name).Err()
}

func (s *RedisPresetStore) List() ([]Preset, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := s.client.HGetAll(ctx, redisPresetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("preset list failed: %w", err)
	}

	out := make([]Preset, 0, len(raw))
	for _, data := range raw {
		var p Preset
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("failed to decode preset: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *RedisPresetStore) Close() error {
	return s.client.Close()
}
