package eviction

import (
	"fmt"
	"strings"
)

/*
This file defines how the cache decides what to remove when it runs out of space.
*/

/*
Policy is the interface that all eviction strategies must follow.

The cache engine does NOT care how eviction works internally.
It only calls these methods, and it calls them while the store facade holds its lock,
so implementations are not safe for concurrent use on their own.
*/
type Policy interface {

	// OnGet is called whenever a cached key is accessed: a successful lookup,
	// or an admit of a key that is already cached.
	//
	// - LRU marks the key as most recently used
	// - LFU increments its access count
	// - FIFO ignores it
	OnGet(string)

	// OnPut is called when a NEW key is admitted into the cache.
	// Keys that are already tracked are ignored.
	OnPut(string)

	// Remove is called when a key is explicitly removed
	// from the cache (not evicted), e.g. because it was deleted from storage.
	Remove(string)

	// Evict is called when the cache is FULL and needs space.
	//
	// The policy picks exactly one victim, forgets it, and returns it.
	// ok is false when there is nothing to evict.
	Evict() (key string, ok bool)

	// Reset drops all bookkeeping.
	Reset()

	// Len returns the number of tracked keys.
	Len() int
}

// PolicyType is a simple identifier for supported eviction strategies.
type PolicyType string

const (
	// LRU (Least Recently Used): Evicts the key that has NOT been accessed for the longest time.
	LRU PolicyType = "LRU"

	// LFU (Least Frequently Used): Evicts the key that has been accessed the fewest times.
	// Ties are broken by the smallest key so eviction is deterministic.
	LFU PolicyType = "LFU"

	// FIFO (First In First Out): Evicts the oldest inserted key, regardless of access.
	FIFO PolicyType = "FIFO"

	// None disables the cache. Every read and write goes straight to storage.
	None PolicyType = "None"
)

// ParsePolicyType maps a configuration string to a PolicyType.
// Matching is case-insensitive.
func ParsePolicyType(s string) (PolicyType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LRU":
		return LRU, nil
	case "LFU":
		return LFU, nil
	case "FIFO":
		return FIFO, nil
	case "NONE":
		return None, nil
	default:
		return "", fmt.Errorf("unknown eviction policy %q", s)
	}
}

// NewEvictionPolicy is a small factory function.
// Given a PolicyType, it creates the correct eviction policy.
func NewEvictionPolicy(t PolicyType) (Policy, error) {
	switch t {
	case LRU:
		return newLRU(), nil
	case LFU:
		return newLFU(), nil
	case FIFO:
		return newFIFO(), nil
	case None:
		return disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown eviction policy %q", t)
	}
}

// disabled backs PolicyType None. It tracks nothing and never evicts.
type disabled struct{}

func (disabled) OnGet(string)          {}
func (disabled) OnPut(string)          {}
func (disabled) Remove(string)         {}
func (disabled) Evict() (string, bool) { return "", false }
func (disabled) Reset()                {}
func (disabled) Len() int              { return 0 }
