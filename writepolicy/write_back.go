package writepolicy

import (
	"context"
	"log/slog"
	"sync"

	"github.com/krisalay/kv-cache-server/types"
)

// This file implements the "write-back" policy.

/*
WriteBackPolicy persists asynchronously.

OnWrite never blocks on disk I/O: it only signals a single background worker.
The signal channel has a buffer of one, so any number of writes that land while
the worker is busy collapse into one more persist of the latest state.
*/
type WriteBackPolicy struct {

	// store is the backing store whose map is written to disk.
	store types.Persister

	metrics types.Metrics
	logger  *slog.Logger

	// dirty carries "something changed" signals to the worker.
	dirty chan struct{}

	// wg is used to wait for the worker to finish
	// during shutdown.
	wg sync.WaitGroup

	closeOnce sync.Once
}

// NewWriteBackPolicy creates a new write-back policy and starts its worker.
func NewWriteBackPolicy(store types.Persister, metrics types.Metrics, logger *slog.Logger) *WriteBackPolicy {
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &WriteBackPolicy{
		store:   store,
		metrics: metrics,
		logger:  logger,
		dirty:   make(chan struct{}, 1),
	}

	w.wg.Add(1)
	go w.worker()

	return w
}

// OnWrite schedules a persist. It never fails: errors surface in the worker's log.
func (w *WriteBackPolicy) OnWrite(ctx context.Context) error {
	select {
	case w.dirty <- struct{}{}:
	default:
		// a persist is already pending and will pick this write up
	}
	return nil
}

func (w *WriteBackPolicy) worker() {
	defer w.wg.Done()

	for range w.dirty {
		if err := w.store.Persist(); err != nil {
			w.metrics.PersistFailure()
			w.logger.Error("write-back persist failed", "error", err)
		}
	}
}

/*
Close shuts down the write-back policy gracefully.
------------------
1. Close the channel (no more writes accepted)
2. Wait for the worker to drain
3. Persist one last time so the file matches memory

Close must not be called concurrently with OnWrite; the facade guarantees that.
*/
func (w *WriteBackPolicy) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.dirty)
		w.wg.Wait()
		err = w.store.Persist()
	})
	return err
}
