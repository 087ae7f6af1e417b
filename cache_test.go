package cache_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	cache "github.com/krisalay/kv-cache-server"
	"github.com/krisalay/kv-cache-server/engine"
	"github.com/krisalay/kv-cache-server/eviction"
	"github.com/krisalay/kv-cache-server/storage"
	"github.com/krisalay/kv-cache-server/types"
	"github.com/krisalay/kv-cache-server/writepolicy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//
// ================= TEST BACKING STORE =================
//

// flakyStorage fails Persist while fail is set.
type flakyStorage struct {
	*storage.FileStorage
	fail atomic.Bool
}

var errDiskFull = errors.New("disk full")

func (s *flakyStorage) Persist() error {
	if s.fail.Load() {
		return errDiskFull
	}
	return s.FileStorage.Persist()
}

//
// ================= HELPER: CREATE STORE =================
//

func newTestStore(t *testing.T, capacity int, policy eviction.PolicyType) (*cache.Store, *flakyStorage, *types.Counters) {
	t.Helper()

	backend := &flakyStorage{FileStorage: storage.New(filepath.Join(t.TempDir(), "kv.txt"), nil)}
	metrics := &types.Counters{}

	eng, err := engine.NewCacheEngine(capacity, policy, metrics)
	require.NoError(t, err)

	s := cache.NewStore(backend, eng, writepolicy.NewWriteThroughPolicy(backend), nil)
	t.Cleanup(func() { _ = s.Close() })
	return s, backend, metrics
}

// assertSubset checks that every cached key is stored with the same value.
func assertSubset(t *testing.T, s *cache.Store, backend *flakyStorage, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if s.InCache(k) {
			require.True(t, s.InStorage(k), "cached key %q missing from storage", k)
		}
	}
	stored, cached := s.Stats()
	require.LessOrEqual(t, cached, stored)
	require.LessOrEqual(t, cached, s.CacheSize())
	require.Equal(t, stored, backend.Len())
}

//
// ================= BASIC OPERATIONS =================
//

func TestWriteThenRead(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, 10, eviction.LRU)

	out, err := s.Write(ctx, "key1", "value 1")
	require.NoError(t, err)
	assert.Equal(t, types.Created, out)

	v, ok, err := s.Read(ctx, "key1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value 1", v)
}

func TestCreatedThenUpdated(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, 10, eviction.FIFO)

	out, err := s.Write(ctx, "k", "1")
	require.NoError(t, err)
	assert.Equal(t, types.Created, out)

	out, err = s.Write(ctx, "k", "2")
	require.NoError(t, err)
	assert.Equal(t, types.Updated, out)

	v, _, _ := s.Read(ctx, "k")
	assert.Equal(t, "2", v)
}

func TestReadMissingKey(t *testing.T) {
	s, _, metrics := newTestStore(t, 10, eviction.LFU)

	_, ok, err := s.Read(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 1, metrics.Snapshot().Misses)
}

func TestReadThroughPopulatesCache(t *testing.T) {
	ctx := context.Background()
	s, backend, metrics := newTestStore(t, 10, eviction.LRU)

	// present in storage only, as after a restart
	backend.Put("keyX", "store-value")
	require.False(t, s.InCache("keyX"))

	v, ok, err := s.Read(ctx, "keyX")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "store-value", v)
	assert.True(t, s.InCache("keyX"))

	_, _, _ = s.Read(ctx, "keyX")
	snap := metrics.Snapshot()
	assert.EqualValues(t, 1, snap.Misses)
	assert.EqualValues(t, 1, snap.Hits)
}

//
// ================= DELETE CONVENTION =================
//

func TestEmptyValueDeletes(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, 10, eviction.LRU)

	_, err := s.Write(ctx, "k", "v")
	require.NoError(t, err)

	out, err := s.Write(ctx, "k", "")
	require.NoError(t, err)
	assert.Equal(t, types.Deleted, out)

	_, ok, err := s.Read(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.InCache("k"))
	assert.False(t, s.InStorage("k"))

	out, err = s.Delete(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, types.NotFound, out)
}

func TestDeleteMissingKey(t *testing.T) {
	s, _, _ := newTestStore(t, 10, eviction.FIFO)

	out, err := s.Write(context.Background(), "never", "")
	require.NoError(t, err)
	assert.Equal(t, types.NotFound, out)
}

func TestDeleteThenRecreate(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, 10, eviction.LFU)

	_, _ = s.Write(ctx, "k", "1")
	_, _ = s.Delete(ctx, "k")

	out, err := s.Write(ctx, "k", "2")
	require.NoError(t, err)
	assert.Equal(t, types.Created, out)
}

//
// ================= CAPACITY & EVICTION =================
//

func TestEvictedKeyIsReloadedFromStorage(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t, 2, eviction.FIFO)

	_, _ = s.Write(ctx, "A", "1")
	_, _ = s.Write(ctx, "B", "2")
	_, _ = s.Write(ctx, "C", "3") // evicts A

	assert.False(t, s.InCache("A"))
	assert.True(t, s.InStorage("A"))

	v, ok, err := s.Read(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", v)

	// and writing an evicted key is still an update
	out, err := s.Write(ctx, "B", "2b")
	require.NoError(t, err)
	assert.Equal(t, types.Updated, out)

	assertSubset(t, s, backend, "A", "B", "C")
}

func TestPolicyScenarios(t *testing.T) {
	tests := []struct {
		policy  eviction.PolicyType
		touches []string
		evicted string
	}{
		{eviction.FIFO, []string{"A"}, "A"},
		{eviction.LRU, []string{"A"}, "B"},
		{eviction.LFU, []string{"A", "A"}, "B"},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			ctx := context.Background()
			s, _, _ := newTestStore(t, 2, tt.policy)

			_, _ = s.Write(ctx, "A", "1")
			_, _ = s.Write(ctx, "B", "2")
			for _, k := range tt.touches {
				_, _, _ = s.Read(ctx, k)
			}
			_, _ = s.Write(ctx, "C", "3")

			assert.False(t, s.InCache(tt.evicted))
			assert.True(t, s.InCache("C"))
		})
	}
}

func TestCacheDisabled(t *testing.T) {
	for _, tc := range []struct {
		size   int
		policy eviction.PolicyType
	}{
		{0, eviction.LRU},
		{10, eviction.None},
	} {
		ctx := context.Background()
		s, _, metrics := newTestStore(t, tc.size, tc.policy)

		out, err := s.Write(ctx, "k", "v")
		require.NoError(t, err)
		assert.Equal(t, types.Created, out)
		assert.False(t, s.InCache("k"))

		v, ok, err := s.Read(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v", v)
		assert.False(t, s.InCache("k"))
		assert.Zero(t, metrics.Snapshot().Hits)
	}
}

//
// ================= PERSISTENCE FAULTS =================
//

func TestPersistFailureRollsBackWrite(t *testing.T) {
	ctx := context.Background()
	s, backend, metrics := newTestStore(t, 10, eviction.LRU)

	_, err := s.Write(ctx, "k", "old")
	require.NoError(t, err)

	backend.fail.Store(true)

	_, err = s.Write(ctx, "k", "new")
	require.ErrorIs(t, err, cache.ErrPersist)
	require.ErrorIs(t, err, errDiskFull)

	_, err = s.Write(ctx, "fresh", "v")
	require.ErrorIs(t, err, cache.ErrPersist)

	assert.False(t, s.InStorage("fresh"))
	assert.False(t, s.InCache("fresh"))
	assert.EqualValues(t, 2, metrics.Snapshot().PersistFailures)

	backend.fail.Store(false)

	v, ok, err := s.Read(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "old", v)
}

func TestPersistFailureRollsBackDelete(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t, 10, eviction.FIFO)

	_, err := s.Write(ctx, "k", "v")
	require.NoError(t, err)

	backend.fail.Store(true)
	_, err = s.Delete(ctx, "k")
	require.ErrorIs(t, err, cache.ErrPersist)
	backend.fail.Store(false)

	assert.True(t, s.InStorage("k"))
	assert.True(t, s.InCache("k"))
}

func TestWritesArePersisted(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t, 1, eviction.LRU)

	_, _ = s.Write(ctx, "a", "1")
	_, _ = s.Write(ctx, "b", "two, with comma")
	_, _ = s.Write(ctx, "a", "")

	reloaded := storage.New(backend.Path(), nil)
	n, err := reloaded.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, ok := reloaded.Get("b")
	require.True(t, ok)
	assert.Equal(t, "two, with comma", v)
}

//
// ================= MAINTENANCE =================
//

func TestClearCacheKeepsStorage(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, 10, eviction.LRU)

	_, _ = s.Write(ctx, "k", "v")
	s.ClearCache()

	assert.False(t, s.InCache("k"))
	v, ok, _ := s.Read(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestClearStorage(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t, 10, eviction.LRU)

	_, _ = s.Write(ctx, "a", "1")
	_, _ = s.Write(ctx, "b", "2")

	backend.fail.Store(true)
	require.ErrorIs(t, s.ClearStorage(ctx), cache.ErrPersist)
	assert.True(t, s.InStorage("a"))
	backend.fail.Store(false)

	require.NoError(t, s.ClearStorage(ctx))
	stored, cached := s.Stats()
	assert.Zero(t, stored)
	assert.Zero(t, cached)
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, 10, eviction.LRU)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Write(ctx, "k", "v")
	assert.ErrorIs(t, err, cache.ErrClosed)
	_, _, err = s.Read(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrClosed)
	_, err = s.Delete(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrClosed)
}

func TestCancelledContextDoesNotMutate(t *testing.T) {
	s, _, _ := newTestStore(t, 10, eviction.LRU)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Write(ctx, "k", "v")
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.InStorage("k"))
}

//
// ================= CONCURRENCY =================
//

func TestConcurrentWritesSameKeyConverge(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t, 2, eviction.LRU)

	const workers = 16
	written := make(map[string]bool)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		v := fmt.Sprintf("v%d", i)
		written[v] = true

		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := s.Write(ctx, "shared", v)
				assert.NoError(t, err)
				_, _ = s.Write(ctx, fmt.Sprintf("noise-%d-%d", len(v), j%3), v)

				got, ok, err := s.Read(ctx, "shared")
				assert.NoError(t, err)
				assert.True(t, ok)
				mu.Lock()
				assert.True(t, written[got], "read a value nobody wrote: %q", got)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	stored, ok := backend.Get("shared")
	require.True(t, ok)
	assert.True(t, written[stored])

	if s.InCache("shared") {
		cached, _, _ := s.Read(ctx, "shared")
		assert.Equal(t, stored, cached)
	}
	assertSubset(t, s, backend, "shared", "noise-2-0", "noise-2-1", "noise-2-2", "noise-3-0", "noise-3-1", "noise-3-2")
}

func TestConcurrentMixedOperationsKeepInvariant(t *testing.T) {
	ctx := context.Background()

	for _, p := range []eviction.PolicyType{eviction.FIFO, eviction.LRU, eviction.LFU} {
		s, backend, _ := newTestStore(t, 3, p)

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					key := fmt.Sprintf("k%d", (id+i)%6)
					switch i % 3 {
					case 0:
						_, _ = s.Write(ctx, key, fmt.Sprint(i))
					case 1:
						_, _, _ = s.Read(ctx, key)
					case 2:
						_, _ = s.Delete(ctx, key)
					}
				}
			}(w)
		}
		wg.Wait()

		assertSubset(t, s, backend, "k0", "k1", "k2", "k3", "k4", "k5")
	}
}
