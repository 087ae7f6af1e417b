package engine

import (
	"fmt"
	"sort"

	"github.com/krisalay/kv-cache-server/eviction"
	"github.com/krisalay/kv-cache-server/types"
)

/*
CacheEngine is the bounded in-memory layer in front of the storage.

It owns:
- the cached key → value map
- exactly one eviction policy and its bookkeeping
- the capacity bound

It does NOT:
- Talk to the storage
- Persist anything
- Handle locking

The store facade is the only caller and serializes every call, so the cache
contents and the policy bookkeeping always move in lockstep.
*/
type CacheEngine struct {

	// capacity is the maximum number of cached entries.
	capacity int

	// policyType is kept for reporting; policy does the actual work.
	policyType eviction.PolicyType
	policy     eviction.Policy

	// items holds the cached values.
	items map[string]string

	// Metrics receives an Eviction event for every capacity eviction.
	Metrics types.Metrics
}

/*
NewCacheEngine creates a CacheEngine.

A capacity of 0, or the None policy, produces a disabled engine: lookups always
miss and admits are dropped.
*/
func NewCacheEngine(capacity int, policyType eviction.PolicyType, metrics types.Metrics) (*CacheEngine, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("cache capacity must be >= 0, got %d", capacity)
	}

	policy, err := eviction.NewEvictionPolicy(policyType)
	if err != nil {
		return nil, err
	}

	// Ensure metrics is always non-nil
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}

	return &CacheEngine{
		capacity:   capacity,
		policyType: policyType,
		policy:     policy,
		items:      make(map[string]string),
		Metrics:    metrics,
	}, nil
}

// Enabled reports whether the engine caches anything at all.
func (e *CacheEngine) Enabled() bool {
	return e.capacity > 0 && e.policyType != eviction.None
}

/*
Lookup returns the cached value for key.

A hit counts as an access: LRU refreshes the key and LFU bumps its count.
FIFO order is not affected.
*/
func (e *CacheEngine) Lookup(key string) (string, bool) {
	v, ok := e.items[key]
	if !ok {
		return "", false
	}
	e.policy.OnGet(key)
	return v, true
}

// Contains is a pure existence check. It never touches eviction bookkeeping.
func (e *CacheEngine) Contains(key string) bool {
	_, ok := e.items[key]
	return ok
}

/*
Admit inserts or updates a key.

BEHAVIOR:
---------
1. Engine disabled → no-op
2. Key already cached → update in place and record an access
3. Key new and cache full → evict exactly one victim chosen by the policy, then insert

It returns the evicted key, if any.
*/
func (e *CacheEngine) Admit(key, value string) (evicted string, ok bool) {
	if !e.Enabled() {
		return "", false
	}

	if _, cached := e.items[key]; cached {
		e.items[key] = value
		e.policy.OnGet(key)
		return "", false
	}

	if len(e.items) >= e.capacity {
		evicted, ok = e.policy.Evict()
		if !ok {
			// Bookkeeping lost track of the cached keys; refuse to grow past capacity.
			return "", false
		}
		delete(e.items, evicted)
		e.Metrics.Eviction()
	}

	e.items[key] = value
	e.policy.OnPut(key)
	return evicted, ok
}

// Evict removes a key and its bookkeeping. It reports whether the key was cached.
func (e *CacheEngine) Evict(key string) bool {
	if _, ok := e.items[key]; !ok {
		return false
	}
	delete(e.items, key)
	e.policy.Remove(key)
	return true
}

// Clear empties the cache and all bookkeeping. Storage is untouched.
func (e *CacheEngine) Clear() {
	clear(e.items)
	e.policy.Reset()
}

// Len returns the number of cached entries.
func (e *CacheEngine) Len() int {
	return len(e.items)
}

// Capacity returns the configured maximum number of entries.
func (e *CacheEngine) Capacity() int {
	return e.capacity
}

// Policy returns the configured eviction policy.
func (e *CacheEngine) Policy() eviction.PolicyType {
	return e.policyType
}

// Keys returns the cached keys in sorted order.
func (e *CacheEngine) Keys() []string {
	out := make([]string, 0, len(e.items))
	for k := range e.items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
