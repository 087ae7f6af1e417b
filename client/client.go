/*
Package client is a small Go client for the key-value server.

A Client owns one TCP connection and sends one request at a time; it is safe
for concurrent use, but calls are serialized.
*/
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/krisalay/kv-cache-server/protocol"
	"github.com/krisalay/kv-cache-server/types"
)

var (
	// ErrRejected is returned when the server answers PUT_ERROR.
	ErrRejected = errors.New("request rejected by server")

	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("client is closed")
)

// Client is a connection to a server.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	r      *bufio.Reader
	closed bool
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

/*
Put stores value under key and reports whether the key was created or updated.
An empty value deletes the key, like Delete.
*/
func (c *Client) Put(ctx context.Context, key, value string) (types.Outcome, error) {
	if value == "" {
		return c.Delete(ctx, key)
	}

	resp, err := c.Do(ctx, protocol.Request{Command: protocol.Put, Key: key, Value: value})
	if err != nil {
		return 0, err
	}

	switch resp.Status {
	case protocol.PutSuccess:
		return types.Created, nil
	case protocol.PutUpdate:
		return types.Updated, nil
	case protocol.PutError:
		return 0, fmt.Errorf("put %q: %w", key, ErrRejected)
	default:
		return 0, fmt.Errorf("put %q: unexpected status %s", key, resp.Status)
	}
}

// Get returns the value stored under key. ok is false when the key is absent.
func (c *Client) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	resp, err := c.Do(ctx, protocol.Request{Command: protocol.Get, Key: key})
	if err != nil {
		return "", false, err
	}

	switch resp.Status {
	case protocol.GetSuccess:
		return resp.Value, true, nil
	case protocol.GetError:
		return "", false, nil
	case protocol.PutError:
		return "", false, fmt.Errorf("get %q: %w", key, ErrRejected)
	default:
		return "", false, fmt.Errorf("get %q: unexpected status %s", key, resp.Status)
	}
}

/*
Delete removes key. It returns Deleted, or NotFound when the server reports
DELETE_ERROR; the protocol does not tell a missing key from a failed delete.
*/
func (c *Client) Delete(ctx context.Context, key string) (types.Outcome, error) {
	resp, err := c.Do(ctx, protocol.Request{Command: protocol.Put, Key: key})
	if err != nil {
		return 0, err
	}

	switch resp.Status {
	case protocol.DeleteSuccess:
		return types.Deleted, nil
	case protocol.DeleteError:
		return types.NotFound, nil
	case protocol.PutError:
		return 0, fmt.Errorf("delete %q: %w", key, ErrRejected)
	default:
		return 0, fmt.Errorf("delete %q: unexpected status %s", key, resp.Status)
	}
}

/*
Do sends one request and waits for its response.

The ctx deadline becomes the socket deadline, and cancelling ctx aborts the
exchange. After a transport error the connection is in an unknown state and
should be closed.
*/
func (c *Client) Do(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	if err := validate(req); err != nil {
		return protocol.Response{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return protocol.Response{}, ErrClosed
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return protocol.Response{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := c.conn.Write([]byte(protocol.EncodeRequest(req))); err != nil {
		return protocol.Response{}, c.ioError(ctx, err)
	}

	line, err := c.r.ReadString('\n')
	if err != nil {
		return protocol.Response{}, c.ioError(ctx, err)
	}
	return protocol.DecodeResponse(line)
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *Client) ioError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	// the socket deadline can fire just before the context notices
	if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
		return context.DeadlineExceeded
	}
	return err
}

// validate rejects requests the line protocol cannot carry.
func validate(req protocol.Request) error {
	if req.Key == "" {
		return fmt.Errorf("%w: empty key", protocol.ErrMalformedRequest)
	}
	if strings.ContainsAny(req.Key, " ,\r\n") {
		return fmt.Errorf("%w: key %q contains a separator", protocol.ErrMalformedRequest, req.Key)
	}
	if strings.ContainsAny(req.Value, "\r\n") {
		return fmt.Errorf("%w: value contains a line break", protocol.ErrMalformedRequest)
	}
	return nil
}
