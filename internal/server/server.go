// Package server accepts benchmark clients over TCP and feeds their
// requests to the job worker.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/BrettMayson/arma-bench/internal/logging"
	"github.com/BrettMayson/arma-bench/internal/worker"
	"github.com/BrettMayson/arma-bench/protocol"
)

const (
	DefaultHandshakeTimeout = 30 * time.Second
	acceptRetryDelay        = 100 * time.Millisecond
)

// Submitter queues a job for processing.
type Submitter interface {
	Submit(ctx context.Context, job *worker.Job) error
}

type Server struct {
	address          string
	handshakeTimeout time.Duration
	maxMessageSize   int64
	submitter        Submitter
	logger           logging.Logger

	listener net.Listener
	stopCh   chan struct{}
	stopOnce sync.Once

	// ctx is cancelled on Stop and bounds every connection.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	conns  map[uint64]net.Conn
	nextID uint64
	wg     sync.WaitGroup
}

type Option func(*Server)

// WithAddress sets the listen address.
func WithAddress(address string) Option {
	return func(s *Server) {
		s.address = address
	}
}

// WithHandshakeTimeout bounds the handshake of each connection.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}

// WithMaxMessageSize limits the size of a single incoming message.
func WithMaxMessageSize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxMessageSize = n
		}
	}
}

func New(sub Submitter, logger logging.Logger, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		address:          fmt.Sprintf(":%d", protocol.DefaultPort),
		handshakeTimeout: DefaultHandshakeTimeout,
		maxMessageSize:   protocol.DefaultMaxMessageSize,
		submitter:        sub,
		logger:           logger,
		stopCh:           make(chan struct{}),
		ctx:              ctx,
		cancel:           cancel,
		conns:            make(map[uint64]net.Conn),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start listens on the configured address and accepts connections in the
// background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}
	s.listener = ln

	s.logger.Info("TCP server listening", "address", ln.Addr().String())

	go s.acceptConnections()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open connection, then waits for the
// connection handlers to return or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.cancel()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				s.logger.Error("failed to close listener", "error", err)
			}
		}
		s.closeAllConnections()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("TCP server stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) closeAllConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, conn := range s.conns {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Error("failed to close connection", "conn", id, "error", err)
		}
	}
}

func (s *Server) acceptConnections() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.logger.Error("failed to accept connection", "error", err)
				time.Sleep(acceptRetryDelay)
				continue
			}
		}

		id, ok := s.track(conn)
		if !ok {
			conn.Close()
			return
		}
		go s.handleConnection(id, conn)
	}
}

// track registers conn; it refuses once Stop has begun.
func (s *Server) track(conn net.Conn) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.stopCh:
		return 0, false
	default:
	}

	s.nextID++
	s.conns[s.nextID] = conn
	s.wg.Add(1)
	return s.nextID, true
}

func (s *Server) untrack(id uint64) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
	s.wg.Done()
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
