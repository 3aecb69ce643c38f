package control

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	// DefaultPrefix is prepended to the random socket name suffix.
	DefaultPrefix = "ao-notifier-"
	// DefaultBindAttempts bounds the address-in-use retry loop.
	DefaultBindAttempts = 10
	// DefaultReconnectGrace is how long a new connection waits for the
	// previous peer's connection to finish closing.
	DefaultReconnectGrace = 250 * time.Millisecond

	suffixDigits = 12
	readSize     = 4096
)

// Config configures the control socket server.
type Config struct {
	// Dir is the directory holding the socket. Empty means the working directory.
	Dir string
	// Prefix is the socket file name prefix.
	Prefix string
	// BindAttempts is the total number of bind attempts on address-in-use.
	BindAttempts int
	// ReconnectGrace bounds the wait for a closing peer when a new
	// connection arrives. A peer still open after it is concurrent.
	ReconnectGrace time.Duration
}

// Server is the single-peer control-plane socket server.
type Server struct {
	cfg    Config
	logger *zap.Logger
	suffix func() string

	mu          sync.Mutex
	status      ServerStatus
	listener    net.Listener
	path        string
	client      net.Conn
	clientID    string
	clientDone  chan struct{}
	subscribers []func(Message)

	closing  atomic.Bool
	accepted atomic.Uint64
	conns    sync.WaitGroup
}

// NewServer creates a server. Missing settings take their defaults.
func NewServer(cfg Config, logger *zap.Logger) *Server {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.BindAttempts <= 0 {
		cfg.BindAttempts = DefaultBindAttempts
	}
	if cfg.ReconnectGrace <= 0 {
		cfg.ReconnectGrace = DefaultReconnectGrace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		suffix: randomSuffix,
		status: ServerInitial,
	}
}

// Subscribe registers fn to receive every message in arrival order.
// Subscribers run on the connection goroutine and must not block for long.
func (s *Server) Subscribe(fn func(Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Listen binds the socket, retrying with a fresh name while the address is in use.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != ServerInitial {
		return ErrAlreadyListening
	}
	s.status = ServerCreated
	s.closing.Store(false)

	for attempt := 1; attempt <= s.cfg.BindAttempts; attempt++ {
		path := filepath.Join(s.cfg.Dir, s.cfg.Prefix+s.suffix())
		ln, err := net.Listen("unix", path)
		if err == nil {
			s.listener = ln
			s.path = path
			s.status = ServerListening
			s.logger.Info("Control socket listening",
				zap.String("path", path),
				zap.Int("attempt", attempt),
			)
			return nil
		}
		if !errors.Is(err, unix.EADDRINUSE) {
			s.status = ServerInitial
			return fmt.Errorf("control: listen %s: %w", path, err)
		}
		s.logger.Debug("Control socket path in use, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt),
		)
	}

	s.status = ServerInitial
	return fmt.Errorf("%w (%d attempts)", ErrBindExhausted, s.cfg.BindAttempts)
}

// Serve accepts the peer connection and blocks until the listener closes.
// A peer that reconnects after closing is accepted once its old connection
// finishes. A second concurrent connection is fatal: the server is torn
// down and ErrConcurrentClient is returned.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("control: accept: %w", err)
		}

		id, done, err := s.claim(conn)
		switch {
		case errors.Is(err, errClosing):
			_ = conn.Close()
			return nil
		case err != nil:
			s.logger.Error("Rejecting second control client", zap.String("active_client", id))
			_ = conn.Close()
			if err := s.Shutdown(context.Background()); err != nil {
				return multierr.Append(ErrConcurrentClient, err)
			}
			return ErrConcurrentClient
		}
		s.accepted.Add(1)

		s.logger.Info("Control client connected", zap.String("client", id))
		go s.handle(conn, id, done)
	}
}

var errClosing = errors.New("control: server is closing")

// claim installs conn as the peer. A previous peer that disconnected but
// whose connection goroutine has not finished yet is waited for up to
// ReconnectGrace; one still open after that is a concurrent client, and
// the active client's id is returned with ErrConcurrentClient.
func (s *Server) claim(conn net.Conn) (string, chan struct{}, error) {
	s.mu.Lock()
	if s.client != nil {
		active, prev := s.clientID, s.clientDone
		s.mu.Unlock()

		timer := time.NewTimer(s.cfg.ReconnectGrace)
		defer timer.Stop()
		select {
		case <-prev:
		case <-timer.C:
			return active, nil, ErrConcurrentClient
		}

		s.mu.Lock()
		if s.client != nil {
			active = s.clientID
			s.mu.Unlock()
			return active, nil, ErrConcurrentClient
		}
	}
	if s.closing.Load() {
		s.mu.Unlock()
		return "", nil, errClosing
	}

	id := uuid.NewString()
	done := make(chan struct{})
	s.client = conn
	s.clientID = id
	s.clientDone = done
	s.conns.Add(1)
	s.mu.Unlock()
	return id, done, nil
}

// handle reads the peer until it disconnects.
func (s *Server) handle(conn net.Conn, id string, done chan struct{}) {
	defer s.conns.Done()

	f := newFramer(s.publish)
	buf := make([]byte, readSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			f.feed(buf[:n])
		}
		if err != nil {
			break
		}
	}
	_ = conn.Close()

	s.mu.Lock()
	if s.client == conn {
		s.client = nil
		s.clientID = ""
		s.clientDone = nil
	}
	s.mu.Unlock()
	close(done)

	s.logger.Info("Control client disconnected", zap.String("client", id))
}

func (s *Server) publish(msg Message) {
	s.mu.Lock()
	subs := make([]func(Message), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}
}

// Shutdown drops the active client, closes the listener and waits for the
// connection goroutine. The server returns to the initial status.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.status == ServerInitial && s.listener == nil {
		s.mu.Unlock()
		return nil
	}
	s.closing.Store(true)

	var err error
	if s.client != nil {
		err = multierr.Append(err, s.client.Close())
	}
	if s.listener != nil {
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return multierr.Append(err, ctx.Err())
	}

	s.mu.Lock()
	s.listener = nil
	s.path = ""
	s.status = ServerInitial
	s.mu.Unlock()

	s.logger.Info("Control socket closed")
	return err
}

// Path returns the bound socket path, or "" when not listening.
func (s *Server) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Status returns the server lifecycle status.
func (s *Server) Status() ServerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Connected reports whether a peer is attached.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// Accepted returns the number of peer connections accepted so far.
func (s *Server) Accepted() uint64 {
	return s.accepted.Load()
}

func randomSuffix() string {
	return fmt.Sprintf("%0*d", suffixDigits, rand.Int64N(1_000_000_000_000))
}
