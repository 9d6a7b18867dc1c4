package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/BrettMayson/arma-bench/internal/logging"
	"github.com/BrettMayson/arma-bench/internal/worker"
	"github.com/BrettMayson/arma-bench/protocol"
)

// connection is the per-client state: handshake first, then strictly
// alternating request and response.
type connection struct {
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	cfg    protocol.ServerConfig
	limit  int64
	logger logging.Logger
}

func (s *Server) handleConnection(id uint64, conn net.Conn) {
	defer s.untrack(id)
	defer conn.Close()

	c := &connection{
		conn:   conn,
		r:      bufio.NewReader(conn),
		w:      bufio.NewWriter(conn),
		limit:  s.maxMessageSize,
		logger: s.logger.With("conn", id, "remote", conn.RemoteAddr().String()),
	}
	c.logger.Info("connection accepted")

	if err := c.handshake(s.handshakeTimeout); err != nil {
		c.logger.Warn("handshake failed", "error", err)
		return
	}
	c.logger.Info("handshake complete", "binary", c.cfg.Binary, "branch", c.cfg.Branch)

	err := c.serve(s.ctx, s.submitter)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		c.logger.Info("connection closed")
	case errors.Is(err, context.Canceled), errors.Is(err, worker.ErrClosed):
		c.logger.Info("connection closed by shutdown")
	default:
		c.logger.Warn("connection closed", "error", err)
	}
}

func (c *connection) handshake(timeout time.Duration) error {
	if err := c.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}

	if err := protocol.WriteHeader(c.w); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("flush header: %w", err)
	}
	if err := protocol.ReadHeader(c.r); err != nil {
		return err
	}

	var cfg protocol.ServerConfig
	if err := protocol.ReadMessage(c.r, &cfg, c.limit); err != nil {
		return fmt.Errorf("read server config: %w", err)
	}
	c.cfg = cfg.WithDefaults()

	if err := c.w.WriteByte(protocol.AckReady); err != nil {
		return fmt.Errorf("write ack: %w", err)
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("flush ack: %w", err)
	}
	return c.conn.SetDeadline(time.Time{})
}

// serve answers requests until the stream ends or ctx is cancelled.
func (c *connection) serve(ctx context.Context, sub Submitter) error {
	for {
		var req protocol.Request
		if err := protocol.ReadMessageContext(ctx, c.conn, c.r, &req, c.limit); err != nil {
			return err
		}

		resp, err := c.dispatch(ctx, sub, req)
		if err != nil {
			return err
		}

		if err := protocol.WriteMessage(c.w, resp); err != nil {
			return err
		}
		if err := c.w.Flush(); err != nil {
			return fmt.Errorf("flush response: %w", err)
		}
	}
}

func (c *connection) dispatch(ctx context.Context, sub Submitter, req protocol.Request) (protocol.Response, error) {
	if err := req.Validate(); err != nil {
		c.logger.Warn("rejecting request", "error", err)
		return protocol.NewErrorResponse(err.Error()), nil
	}

	job := worker.NewJob(c.cfg, req)
	c.logger.Info("request received", "job_id", job.ID, "kind", req.Kind, "items", len(req.Items))

	if err := sub.Submit(ctx, job); err != nil {
		return protocol.Response{}, fmt.Errorf("submit: %w", err)
	}

	select {
	case resp := <-job.Reply():
		return resp, nil
	case <-ctx.Done():
		return protocol.Response{}, ctx.Err()
	}
}
