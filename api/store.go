package api

import (
	"context"

	"github.com/krisalay/kv-cache-server/types"
)

/*
Store defines the operations a connection handler may call.
This is a contract that guarantees certain behaviors, without exposing internals.
Caching, eviction, persistence and locking are all hidden behind this interface.
*/
type Store interface {

	/*
		Read retrieves the value associated with the given key.

		BEHAVIOR:
		-------------------
		1. If the key is cached:
		   - Return the value immediately (cache hit)

		2. If the key is NOT cached:
		   - Load the value from the storage
		   - Admit it into the cache
		   - Return the value (cache miss)

		ok is false when the key exists nowhere.
	*/
	Read(ctx context.Context, key string) (value string, ok bool, err error)

	/*
		Write stores a key-value pair.

		BEHAVIOR:
		---------
		- Updates the storage and persists it before acknowledging
		- Admits the key into the cache, evicting one entry if the cache is full
		- Returns Created for a new key, Updated for an existing one

		An empty value deletes the key and returns Deleted or NotFound.
	*/
	Write(ctx context.Context, key, value string) (types.Outcome, error)

	/*
		Delete removes a key from the storage and the cache.

		Returns NotFound if the key did not exist.
	*/
	Delete(ctx context.Context, key string) (types.Outcome, error)
}
