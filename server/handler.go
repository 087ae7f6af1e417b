package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/google/uuid"
	"github.com/krisalay/kv-cache-server/protocol"
	"github.com/krisalay/kv-cache-server/types"
)

/*
handle serves one connection until the peer goes away, an I/O error occurs,
or the server shuts down.

Each line is decoded, executed against the store and answered before the next
line is read. A malformed line gets an error response; the connection stays
open.
*/
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	logger := s.logger.With(
		"conn_id", uuid.NewString(),
		"remote", conn.RemoteAddr().String(),
	)
	logger.Debug("connection opened")

	// A request already read is finished even when shutdown begins.
	opCtx := context.WithoutCancel(ctx)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, min(4096, s.cfg.MaxLineBytes)), s.cfg.MaxLineBytes)
	w := bufio.NewWriter(conn)

	for scanner.Scan() {
		resp := s.execute(opCtx, logger, scanner.Text())

		if _, err := w.WriteString(protocol.Encode(resp)); err != nil {
			logger.Warn("write response", "error", err)
			return
		}
		if err := w.Flush(); err != nil {
			logger.Warn("write response", "error", err)
			return
		}
	}

	switch err := scanner.Err(); {
	case err == nil, errors.Is(err, io.EOF):
		logger.Debug("connection closed by peer")
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, net.ErrClosed):
		logger.Debug("connection closed by server")
	case errors.Is(err, bufio.ErrTooLong):
		logger.Warn("request line too long, closing connection", "limit", s.cfg.MaxLineBytes)
	default:
		logger.Warn("connection read failed", "error", err)
	}
}

/*
execute runs one request line and builds its response.

	GET k        → GET_SUCCESS k v | GET_ERROR k
	PUT k        → DELETE_SUCCESS k | DELETE_ERROR k
	PUT k v      → PUT_SUCCESS k | PUT_UPDATE k | PUT_ERROR k
	(malformed)  → PUT_ERROR k
*/
func (s *Server) execute(ctx context.Context, logger *slog.Logger, line string) protocol.Response {
	req, err := protocol.Decode(line)
	if err != nil {
		logger.Debug("malformed request", "error", err)
		return protocol.Response{Status: protocol.PutError, Key: req.Key}
	}

	switch {
	case req.Command == protocol.Get:
		v, ok, err := s.store.Read(ctx, req.Key)
		if err != nil {
			logger.Error("read failed", "key", req.Key, "error", err)
			return protocol.Response{Status: protocol.GetError, Key: req.Key}
		}
		if !ok {
			return protocol.Response{Status: protocol.GetError, Key: req.Key}
		}
		return protocol.Response{Status: protocol.GetSuccess, Key: req.Key, Value: v}

	case req.IsDelete():
		out, err := s.store.Delete(ctx, req.Key)
		if err != nil {
			logger.Error("delete failed", "key", req.Key, "error", err)
			return protocol.Response{Status: protocol.DeleteError, Key: req.Key}
		}
		if out == types.NotFound {
			return protocol.Response{Status: protocol.DeleteError, Key: req.Key}
		}
		return protocol.Response{Status: protocol.DeleteSuccess, Key: req.Key}

	default:
		out, err := s.store.Write(ctx, req.Key, req.Value)
		if err != nil {
			logger.Error("write failed", "key", req.Key, "error", err)
			return protocol.Response{Status: protocol.PutError, Key: req.Key}
		}
		if out == types.Updated {
			return protocol.Response{Status: protocol.PutUpdate, Key: req.Key}
		}
		return protocol.Response{Status: protocol.PutSuccess, Key: req.Key}
	}
}
