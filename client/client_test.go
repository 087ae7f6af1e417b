package client_test

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	cache "github.com/krisalay/kv-cache-server"
	"github.com/krisalay/kv-cache-server/client"
	"github.com/krisalay/kv-cache-server/engine"
	"github.com/krisalay/kv-cache-server/eviction"
	"github.com/krisalay/kv-cache-server/protocol"
	"github.com/krisalay/kv-cache-server/server"
	"github.com/krisalay/kv-cache-server/storage"
	"github.com/krisalay/kv-cache-server/types"
	"github.com/krisalay/kv-cache-server/writepolicy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) string {
	t.Helper()

	backend := storage.New(filepath.Join(t.TempDir(), "kv.txt"), nil)
	eng, err := engine.NewCacheEngine(10, eviction.FIFO, nil)
	require.NoError(t, err)
	store := cache.NewStore(backend, eng, writepolicy.NewWriteThroughPolicy(backend), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.New(store, server.Config{}, nil).Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		<-done
		_ = store.Close()
	})
	return ln.Addr().String()
}

// silentServer accepts connections and never answers.
func silentServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var conns []net.Conn
		for {
			conn, err := ln.Accept()
			if err != nil {
				break
			}
			conns = append(conns, conn)
		}
		for _, c := range conns {
			c.Close()
		}
	}()

	t.Cleanup(func() {
		ln.Close()
		<-done
	})
	return ln.Addr().String()
}

func dial(t *testing.T, addr string) *client.Client {
	t.Helper()
	c, err := client.Dial(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	c := dial(t, startServer(t))

	out, err := c.Put(ctx, "k", "hello world")
	require.NoError(t, err)
	assert.Equal(t, types.Created, out)

	out, err = c.Put(ctx, "k", "again")
	require.NoError(t, err)
	assert.Equal(t, types.Updated, out)

	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "again", v)

	out, err = c.Delete(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, types.Deleted, out)

	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	out, err = c.Delete(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, types.NotFound, out)
}

func TestPutEmptyValueDeletes(t *testing.T) {
	ctx := context.Background()
	c := dial(t, startServer(t))

	_, err := c.Put(ctx, "k", "v")
	require.NoError(t, err)

	out, err := c.Put(ctx, "k", "")
	require.NoError(t, err)
	assert.Equal(t, types.Deleted, out)
}

func TestSharedAcrossClients(t *testing.T) {
	ctx := context.Background()
	addr := startServer(t)
	a, b := dial(t, addr), dial(t, addr)

	_, err := a.Put(ctx, "k", "from a")
	require.NoError(t, err)

	v, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from a", v)
}

func TestInvalidRequestsNeverReachTheServer(t *testing.T) {
	ctx := context.Background()
	c := dial(t, startServer(t))

	for _, key := range []string{"", "has space", "has,comma", "line\nbreak"} {
		_, err := c.Put(ctx, key, "v")
		assert.ErrorIs(t, err, protocol.ErrMalformedRequest, "key %q", key)
	}

	_, err := c.Put(ctx, "k", "two\nlines")
	assert.ErrorIs(t, err, protocol.ErrMalformedRequest)

	// the connection is still usable
	_, err = c.Put(ctx, "k", "v")
	assert.NoError(t, err)
}

func TestContextDeadline(t *testing.T) {
	c := dial(t, silentServer(t))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, _, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestContextCancel(t *testing.T) {
	c := dial(t, silentServer(t))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, _, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClose(t *testing.T) {
	c := dial(t, startServer(t))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, _, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, client.ErrClosed)
}

func TestDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = client.Dial(context.Background(), addr)
	assert.Error(t, err)
}
