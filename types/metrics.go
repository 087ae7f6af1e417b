package types

import "sync/atomic"

// This file defines how the store reports what it is doing.

/*
Metrics is an interface that defines what the store wants to measure.
Each method represents an event in the cache lifecycle. The store will call these methods whenever something happens.
*/
type Metrics interface {

	// Hit is called when a read is answered from the cache.
	Hit()

	// Miss is called when a read has to consult the storage.
	Miss()

	// Eviction is called when a key is removed because the cache is full and needs space.
	Eviction()

	// PersistFailure is called when the storage could not be written to disk.
	PersistFailure()
}

/*
NoopMetrics is a "do nothing" implementation of Metrics.

If someone does not care about metrics,
we still want the store to work without:
- nil pointer checks everywhere
- if metrics != nil conditions
*/
type NoopMetrics struct{}

func (NoopMetrics) Hit()            {}
func (NoopMetrics) Miss()           {}
func (NoopMetrics) Eviction()       {}
func (NoopMetrics) PersistFailure() {}

// Counters is a Metrics implementation backed by atomic counters.
// The zero value is ready to use.
type Counters struct {
	hits            atomic.Int64
	misses          atomic.Int64
	evictions       atomic.Int64
	persistFailures atomic.Int64
}

func (c *Counters) Hit()            { c.hits.Add(1) }
func (c *Counters) Miss()           { c.misses.Add(1) }
func (c *Counters) Eviction()       { c.evictions.Add(1) }
func (c *Counters) PersistFailure() { c.persistFailures.Add(1) }

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	Hits            int64
	Misses          int64
	Evictions       int64
	PersistFailures int64
}

// Snapshot copies the current counter values.
func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Evictions:       c.evictions.Load(),
		PersistFailures: c.persistFailures.Load(),
	}
}
