package types

// Backend is the contract between the store facade and the durable storage.
type Backend interface {

	/*
		Get is called when the cache misses. The key was not found in memory, so the
		facade asks the backend for the ground truth.
		1. Facade checks cache → key not found
		2. Facade calls Get(key)
		3. Facade admits the result into the cache (read-through)
		4. Facade returns the value
	*/
	Get(key string) (string, bool)

	// Contains reports whether the key exists without returning the value.
	Contains(key string) bool

	/*
		Put upserts a key in the in-memory map of the backend.

		This does NOT make the write durable. Durability is the job of the
		write policy, which calls Persist.
	*/
	Put(key, value string)

	// Delete removes a key. Removing a missing key is a no-op.
	Delete(key string)

	// Len returns the number of stored keys.
	Len() int

	// Clear drops every key from the in-memory map.
	Clear()

	// Snapshot returns a copy of the whole map.
	Snapshot() map[string]string

	Persister
}

// Persister writes the full key/value map to durable form.
type Persister interface {
	Persist() error
}
