package writepolicy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/krisalay/kv-cache-server/types"
)

/*
This file defines what a "write policy" is.

Every mutation of the storage map has to reach the disk at some point.
The write policy decides WHEN:
- write-through: before the mutation is acknowledged
- write-back: shortly after, on a background worker, and once more at shutdown
*/

/*
WritePolicy is the contract that all write policies must follow.
The store facade does not care which policy is used. It simply calls these methods.
*/
type WritePolicy interface {

	/*
		OnWrite is called after every storage mutation, while the facade still holds its lock.
		A non-nil error means the mutation is NOT durable and must be rolled back.
	*/
	OnWrite(ctx context.Context) error

	/*
		Close is called when the store is shutting down.
		It must leave the storage file in sync with the in-memory map.
	*/
	Close() error
}

// Mode names a write policy in configuration.
type Mode string

const (
	WriteThrough Mode = "write-through"
	WriteBack    Mode = "write-back"
)

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case WriteThrough, "":
		return WriteThrough, nil
	case WriteBack:
		return WriteBack, nil
	default:
		return "", fmt.Errorf("unknown write mode %q", s)
	}
}

// New builds the write policy for mode.
func New(mode Mode, store types.Persister, metrics types.Metrics, logger *slog.Logger) (WritePolicy, error) {
	switch mode {
	case WriteThrough, "":
		return NewWriteThroughPolicy(store), nil
	case WriteBack:
		return NewWriteBackPolicy(store, metrics, logger), nil
	default:
		return nil, fmt.Errorf("unknown write mode %q", mode)
	}
}
