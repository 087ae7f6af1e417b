package writepolicy

import (
	"context"

	"github.com/krisalay/kv-cache-server/types"
)

/*
This file implements the "write-through" policy.

Whenever the storage map changes, the full map is immediately rewritten to disk.

So the flow is: storage write → file rewrite (synchronous) → acknowledge
*/

// WriteThroughPolicy persists on every write.
type WriteThroughPolicy struct {

	// store is persisted on every write.
	store types.Persister
}

/*
NewWriteThroughPolicy creates a new write-through policy.
*/
func NewWriteThroughPolicy(store types.Persister) *WriteThroughPolicy {
	return &WriteThroughPolicy{store: store}
}

/*
OnWrite rewrites the storage file.
  - This call is synchronous
  - The write is not considered committed
    until the file rewrite finishes
  - The error goes back to the facade, which rolls the mutation back
*/
func (w *WriteThroughPolicy) OnWrite(ctx context.Context) error {
	return w.store.Persist()
}

// Close performs one final persist so shutdown always leaves a current file.
func (w *WriteThroughPolicy) Close() error {
	return w.store.Persist()
}
