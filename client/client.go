// Package client talks to an arma-bench server.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/BrettMayson/arma-bench/protocol"
)

var ErrUnexpectedResponse = errors.New("unexpected response variant")

// ServerError is an error reported by the server for a request.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server: " + e.Message
}

// Client is one established connection. Requests on the same client are
// serialized. A request that fails mid-read closes the connection.
type Client struct {
	mu    sync.Mutex
	conn  net.Conn
	r     *bufio.Reader
	w     *bufio.Writer
	limit int64
}

// Connect dials host on the default port.
func Connect(host string, cfg protocol.ServerConfig) (*Client, error) {
	return ConnectWithPort(host, protocol.DefaultPort, cfg)
}

func ConnectWithPort(host string, port int, cfg protocol.ServerConfig) (*Client, error) {
	return Dial(context.Background(), net.JoinHostPort(host, strconv.Itoa(port)), cfg)
}

// Dial connects to addr and performs the handshake. ctx bounds both.
func Dial(ctx context.Context, addr string, cfg protocol.ServerConfig) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	c := &Client{
		conn:  conn,
		r:     bufio.NewReader(conn),
		w:     bufio.NewWriter(conn),
		limit: protocol.DefaultMaxMessageSize,
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	if err := c.handshake(cfg); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetDeadline(time.Time{})
	return c, nil
}

func (c *Client) handshake(cfg protocol.ServerConfig) error {
	if err := protocol.ReadHeader(c.r); err != nil {
		return err
	}
	if err := protocol.WriteHeader(c.w); err != nil {
		return err
	}
	if err := protocol.WriteMessage(c.w, cfg); err != nil {
		return fmt.Errorf("write server config: %w", err)
	}
	if err := c.w.Flush(); err != nil {
		return err
	}
	return protocol.ReadAck(c.r)
}

// Execute benchmarks a single script.
func (c *Client) Execute(ctx context.Context, script string) (*protocol.ExecuteResult, error) {
	resp, err := c.roundTrip(ctx, protocol.NewExecuteRequest(script))
	if err != nil {
		return nil, err
	}
	if resp.Kind != protocol.ResponseExecute {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, resp.Kind)
	}
	if resp.Err != "" {
		return nil, &ServerError{Message: resp.Err}
	}
	if resp.Execute == nil {
		return nil, fmt.Errorf("%w: empty execute result", ErrUnexpectedResponse)
	}
	return resp.Execute, nil
}

// Compare benchmarks several scripts in one runtime instance.
func (c *Client) Compare(ctx context.Context, items []protocol.CompareRequest) ([]protocol.CompareResult, error) {
	resp, err := c.roundTrip(ctx, protocol.NewCompareRequest(items...))
	if err != nil {
		return nil, err
	}
	if resp.Kind != protocol.ResponseCompare {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, resp.Kind)
	}
	if resp.Err != "" {
		return nil, &ServerError{Message: resp.Err}
	}
	return resp.Compare, nil
}

func (c *Client) roundTrip(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := protocol.WriteMessage(c.w, req); err != nil {
		return nil, err
	}
	if err := c.w.Flush(); err != nil {
		return nil, err
	}

	var resp protocol.Response
	if err := protocol.ReadMessageContext(ctx, c.conn, c.r, &resp, c.limit); err != nil {
		// The reply may still arrive; the stream can no longer be trusted.
		c.conn.Close()
		return nil, err
	}
	if resp.Kind == protocol.ResponseError {
		return nil, &ServerError{Message: resp.Err}
	}
	return &resp, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
