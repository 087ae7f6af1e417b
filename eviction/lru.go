// This file implements LRU eviction.

package eviction

import (
	"math"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

/*
lru tracks recency with a simplelru list.

The list is created with an effectively unbounded size: the cache engine owns
capacity and asks for a victim explicitly, so simplelru must never evict on its own.
Keys() of the list is ordered oldest → newest, i.e. most recently used last.
*/
type lru struct {
	order *simplelru.LRU[string, struct{}]
}

func newLRU() *lru {
	// NewLRU only fails for a non-positive size.
	l, err := simplelru.NewLRU[string, struct{}](math.MaxInt, nil)
	if err != nil {
		panic(err)
	}
	return &lru{order: l}
}

// OnGet moves an accessed key to the most recently used position.
// Get on a missing key does not insert it.
func (l *lru) OnGet(k string) {
	l.order.Get(k)
}

// OnPut adds a new key as the most recently used one.
// A key that is already tracked is left to OnGet.
func (l *lru) OnPut(k string) {
	if l.order.Contains(k) {
		return
	}
	l.order.Add(k, struct{}{})
}

// Evict removes the least recently used key.
func (l *lru) Evict() (string, bool) {
	k, _, ok := l.order.RemoveOldest()
	return k, ok
}

func (l *lru) Remove(k string) {
	l.order.Remove(k)
}

func (l *lru) Reset() {
	l.order.Purge()
}

func (l *lru) Len() int {
	return l.order.Len()
}

// keys returns tracked keys from least to most recently used.
func (l *lru) keys() []string {
	return l.order.Keys()
}
