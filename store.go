package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/krisalay/kv-cache-server/api"
	"github.com/krisalay/kv-cache-server/engine"
	"github.com/krisalay/kv-cache-server/eviction"
	"github.com/krisalay/kv-cache-server/types"
	"github.com/krisalay/kv-cache-server/writepolicy"
)

var (
	// ErrPersist marks a mutation that could not be made durable. The mutation was rolled back.
	ErrPersist = errors.New("persist storage")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store is closed")
)

var _ api.Store = (*Store)(nil)

/*
Store is the facade in front of the cache and the storage.
This struct is the orchestrator that connects:
- the durable storage (source of truth)
- the cache engine (bounded subset of the storage)
- the write policy (when storage reaches the disk)
- metrics

Every read, write and delete runs inside one exclusive critical section:

	check existence → mutate storage → persist → mutate cache

so a key in the cache is always a key in the storage, at every point another
connection could observe.
*/
type Store struct {
	mu sync.Mutex

	// storage is the ground truth. Only the facade mutates it.
	storage types.Backend

	// engine holds the cached subset and its eviction bookkeeping.
	engine *engine.CacheEngine

	// writePolicy makes storage mutations durable.
	writePolicy writepolicy.WritePolicy

	logger *slog.Logger
	closed bool
}

// NewStore wires a facade from its parts. The storage should already be loaded.
func NewStore(
	storage types.Backend,
	engine *engine.CacheEngine,
	writePolicy writepolicy.WritePolicy,
	logger *slog.Logger,
) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		storage:     storage,
		engine:      engine,
		writePolicy: writePolicy,
		logger:      logger,
	}
}

/*
Read returns the value for key.

BEHAVIOR:
---------
1. Cache hit → return the cached value
2. Cache miss → query the storage; if found, admit it into the cache (read-through)
3. Not in storage → ok is false
*/
func (s *Store) Read(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", false, ErrClosed
	}

	if v, ok := s.engine.Lookup(key); ok {
		s.engine.Metrics.Hit()
		return v, true, nil
	}
	s.engine.Metrics.Miss()

	v, ok := s.storage.Get(key)
	if !ok {
		return "", false, nil
	}

	if evicted, ok := s.engine.Admit(key, v); ok {
		s.logger.Debug("cache eviction", "key", evicted, "admitted", key, "policy", s.engine.Policy())
	}
	return v, true, nil
}

/*
Write stores value under key.

An empty value is the delete convention and is handled exactly like Delete,
returning Deleted or NotFound. Otherwise the result is Created when the key
did not exist before, and Updated when it did.

If the storage cannot be persisted the mutation is rolled back, the cache is
left alone, and the error wraps ErrPersist.
*/
func (s *Store) Write(ctx context.Context, key, value string) (types.Outcome, error) {
	if value == "" {
		return s.Delete(ctx, key)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	existed := s.storage.Contains(key) || s.engine.Contains(key)
	prev, hadPrev := s.storage.Get(key)

	s.storage.Put(key, value)
	if err := s.writePolicy.OnWrite(ctx); err != nil {
		if hadPrev {
			s.storage.Put(key, prev)
		} else {
			s.storage.Delete(key)
		}
		s.engine.Metrics.PersistFailure()
		s.logger.Error("write not committed", "key", key, "error", err)
		return 0, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	if evicted, ok := s.engine.Admit(key, value); ok {
		s.logger.Debug("cache eviction", "key", evicted, "admitted", key, "policy", s.engine.Policy())
	}

	if existed {
		return types.Updated, nil
	}
	return types.Created, nil
}

/*
Delete removes key from the storage and the cache.

It returns NotFound when the key is in neither. On a persistence failure the
key is restored and the error wraps ErrPersist.
*/
func (s *Store) Delete(ctx context.Context, key string) (types.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	inCache := s.engine.Contains(key)
	prev, inStorage := s.storage.Get(key)
	if !inStorage && !inCache {
		return types.NotFound, nil
	}

	if inStorage {
		s.storage.Delete(key)
		if err := s.writePolicy.OnWrite(ctx); err != nil {
			s.storage.Put(key, prev)
			s.engine.Metrics.PersistFailure()
			s.logger.Error("delete not committed", "key", key, "error", err)
			return 0, fmt.Errorf("%w: %w", ErrPersist, err)
		}
	}

	s.engine.Evict(key)
	return types.Deleted, nil
}

// InStorage reports whether key exists in the storage.
func (s *Store) InStorage(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.Contains(key)
}

// InCache reports whether key is cached. It does not count as an access.
func (s *Store) InCache(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Contains(key)
}

// ClearCache empties the cache. The storage is untouched.
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Clear()
	s.logger.Info("cache cleared")
}

/*
ClearStorage drops every key and persists the empty storage.

The cache is cleared as well: a cached key with no storage entry would break
the subset invariant. On a persist failure nothing is changed.
*/
func (s *Store) ClearStorage(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	snapshot := s.storage.Snapshot()

	s.storage.Clear()
	if err := s.writePolicy.OnWrite(ctx); err != nil {
		for k, v := range snapshot {
			s.storage.Put(k, v)
		}
		s.engine.Metrics.PersistFailure()
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	s.engine.Clear()
	s.logger.Info("storage cleared")
	return nil
}

// CacheSize returns the configured cache capacity.
func (s *Store) CacheSize() int {
	return s.engine.Capacity()
}

// Policy returns the configured eviction policy.
func (s *Store) Policy() eviction.PolicyType {
	return s.engine.Policy()
}

// Stats reports the current number of stored and cached keys.
func (s *Store) Stats() (stored, cached int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.Len(), s.engine.Len()
}

/*
Close flushes the storage through the write policy and rejects further operations.
Close is safe to call more than once.
*/
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.writePolicy.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}
