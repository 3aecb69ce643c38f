package control

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is the delay between stop status polls.
	DefaultPollInterval = 5 * time.Second
	// DefaultMaxPolls bounds the stop polling loop.
	DefaultMaxPolls = 10
)

// Engine is the lifecycle surface of the native reporting engine.
type Engine interface {
	Start(path string) Status
	Stop() Status
	Status() Status
}

// NotifierConfig configures stop polling.
type NotifierConfig struct {
	PollInterval time.Duration
	MaxPolls     int
}

// Notifier drives the native notifier lifecycle against a bound server.
type Notifier struct {
	engine Engine
	server *Server
	cfg    NotifierConfig
	logger *zap.Logger
}

// NewNotifier creates a notifier. Missing settings take their defaults.
func NewNotifier(engine Engine, server *Server, cfg NotifierConfig, logger *zap.Logger) *Notifier {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultMaxPolls
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		engine: engine,
		server: server,
		cfg:    cfg,
		logger: logger,
	}
}

// Start asks the engine to connect its notifier to the bound socket and
// returns the immediate status. It does not wait for the connection.
func (n *Notifier) Start() (Status, error) {
	path := n.server.Path()
	if path == "" {
		return StatusDisabled, ErrNotListening
	}
	status := n.engine.Start(path)
	n.logger.Info("Notifier start requested",
		zap.String("path", path),
		zap.Stringer("status", status),
	)
	return status, nil
}

// Stop asks the engine to stop its notifier and waits until it reports
// disabled, polling every PollInterval for at most MaxPolls polls.
func (n *Notifier) Stop(ctx context.Context) error {
	status := n.engine.Stop()
	switch status.Kind() {
	case KindDisabled:
		return nil
	case KindShuttingDown:
	default:
		return &StatusError{Op: "stop", Status: status}
	}

	ticker := time.NewTicker(n.cfg.PollInterval)
	defer ticker.Stop()

	polls := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		status = n.engine.Status()
		if status.Kind() == KindDisabled {
			n.logger.Info("Notifier stopped", zap.Int("polls", polls+1))
			return nil
		}
		polls++
		if polls > n.cfg.MaxPolls {
			return fmt.Errorf("%w: %d polls, last status %s", ErrStopTimeout, polls, status)
		}
	}
}

// Status returns the engine's raw notifier status.
func (n *Notifier) Status() Status {
	return n.engine.Status()
}
