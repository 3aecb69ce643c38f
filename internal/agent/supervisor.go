package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/apm-agent/internal/control"
	"github.com/GriffinCanCode/apm-agent/internal/infrastructure/resilience"
)

// Restart outcomes passed to Recorder.RecordRestart.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// Lifecycle is the part of control.Notifier the supervisor drives.
type Lifecycle interface {
	Start() (control.Status, error)
	Status() control.Status
}

// Recorder receives supervision observations.
type Recorder interface {
	SetNotifierStatus(status control.Status)
	RecordRestart(outcome string)
}

// Config configures supervision.
type Config struct {
	Interval time.Duration
	Breaker  resilience.Settings
}

// Supervisor restarts a notifier that reports a transport failure.
type Supervisor struct {
	notifier Lifecycle
	cfg      Config
	recorder Recorder
	logger   *zap.Logger
	breaker  *resilience.Breaker

	halted atomic.Bool
}

type nopRecorder struct{}

func (nopRecorder) SetNotifierStatus(control.Status) {}
func (nopRecorder) RecordRestart(string)             {}

// New creates a supervisor. A nil recorder discards observations.
func New(notifier Lifecycle, cfg Config, recorder Recorder, logger *zap.Logger) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	onChange := cfg.Breaker.OnStateChange
	cfg.Breaker.OnStateChange = func(name string, from, to resilience.State) {
		logger.Warn("Restart breaker state changed",
			zap.String("breaker", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
		if onChange != nil {
			onChange(name, from, to)
		}
	}

	return &Supervisor{
		notifier: notifier,
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
		breaker:  resilience.New("notifier-restart", cfg.Breaker),
	}
}

// Run checks the notifier every interval until ctx is done or Halt is called.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.halted.Load() {
				return nil
			}
			s.Check()
		}
	}
}

// Check observes the notifier once and restarts it on a transport failure.
// It returns the status observed before any restart.
func (s *Supervisor) Check() control.Status {
	status := s.notifier.Status()
	s.recorder.SetNotifierStatus(status)

	if s.halted.Load() || !status.IsTransportFailure() {
		return status
	}

	s.logger.Warn("Notifier transport failure", zap.Stringer("status", status))
	err := s.breaker.Do(s.restart)
	switch {
	case err == nil:
		s.recorder.RecordRestart(OutcomeOK)
	case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, resilience.ErrProbeInFlight):
		s.recorder.RecordRestart(OutcomeRejected)
		s.logger.Debug("Notifier restart suppressed", zap.Error(err))
	default:
		s.recorder.RecordRestart(OutcomeFailed)
		s.logger.Error("Notifier restart failed", zap.Error(err))
	}
	return status
}

func (s *Supervisor) restart() error {
	status, err := s.notifier.Start()
	if err != nil {
		return err
	}
	s.recorder.SetNotifierStatus(status)
	if status.IsTransportFailure() {
		return &control.StatusError{Op: "start", Status: status}
	}
	s.logger.Info("Notifier restarted", zap.Stringer("status", status))
	return nil
}

// Halt stops all further restarts.
func (s *Supervisor) Halt() {
	if s.halted.CompareAndSwap(false, true) {
		s.logger.Info("Notifier supervision halted")
	}
}

// Halted reports whether Halt was called.
func (s *Supervisor) Halted() bool {
	return s.halted.Load()
}

// BreakerState returns the restart breaker state.
func (s *Supervisor) BreakerState() resilience.State {
	return s.breaker.State()
}
