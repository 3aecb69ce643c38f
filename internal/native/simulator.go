package native

import (
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/apm-agent/internal/control"
)

var errNotRunning = errors.New("native: simulator notifier is not running")

// SimulatorConfig configures the development engine.
type SimulatorConfig struct {
	KeepAlive   time.Duration
	Hostname    string
	Port        int
	DialTimeout time.Duration
}

// DefaultSimulatorConfig returns the settings used by the agent binary.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		KeepAlive:   10 * time.Second,
		Hostname:    "collector.local",
		Port:        443,
		DialTimeout: time.Second,
	}
}

// Simulator stands in for the native engine during development. Its notifier
// connects to the control socket, announces a config and sends keep-alives.
type Simulator struct {
	cfg    SimulatorConfig
	logger *zap.Logger

	mu     sync.Mutex
	status control.Status
	conn   net.Conn
	seq    int64
	stop   chan struct{}

	writeMu sync.Mutex
}

// NewSimulator creates a simulator whose notifier starts disabled.
func NewSimulator(cfg SimulatorConfig, logger *zap.Logger) *Simulator {
	def := DefaultSimulatorConfig()
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = def.KeepAlive
	}
	if cfg.Hostname == "" {
		cfg.Hostname = def.Hostname
	}
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{cfg: cfg, logger: logger, status: control.StatusDisabled}
}

// Start connects the notifier to path.
func (s *Simulator) Start(path string) control.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != control.StatusDisabled && !s.status.IsTransportFailure() {
		return s.status
	}

	conn, err := net.DialTimeout("unix", path, s.cfg.DialTimeout)
	if err != nil {
		s.logger.Warn("Simulator notifier connect failed", zap.String("path", path), zap.Error(err))
		s.status = control.StatusSocketConnect
		return s.status
	}

	s.conn = conn
	s.seq = 0
	s.stop = make(chan struct{})
	s.status = control.StatusInitializing
	go s.run(conn, s.stop)
	return s.status
}

// Stop begins notifier shutdown; Status reports disabled once it completes.
func (s *Simulator) Stop() control.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.status == control.StatusDisabled:
		return s.status
	case s.status == control.StatusShuttingDown:
		return s.status
	case s.stop == nil:
		s.status = control.StatusDisabled
		return s.status
	}
	close(s.stop)
	s.stop = nil
	s.status = control.StatusShuttingDown
	return s.status
}

// Status returns the notifier status.
func (s *Simulator) Status() control.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Emit writes msg to the control socket with the next sequence number.
// Sequence numbers reach the socket in the order they are assigned.
func (s *Simulator) Emit(msg control.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	conn := s.conn
	if conn == nil || s.stop == nil {
		s.mu.Unlock()
		return errNotRunning
	}
	msg.SeqNo = s.seq
	s.seq++
	s.mu.Unlock()

	line, err := msg.Encode()
	if err != nil {
		return err
	}
	_, err = conn.Write(append(line, '\n'))
	return err
}

func (s *Simulator) run(conn net.Conn, stop <-chan struct{}) {
	defer s.finish(conn)

	err := s.Emit(control.Message{
		Source:   control.SourceEngine,
		Type:     control.TypeConfig,
		Hostname: s.cfg.Hostname,
		Port:     s.cfg.Port,
	})
	if err != nil {
		s.fail(err)
		return
	}
	s.setStatus(control.StatusOK)

	ticker := time.NewTicker(s.cfg.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.Emit(control.Message{Source: control.SourceEngine, Type: control.TypeKeepAlive}); err != nil {
				if !errors.Is(err, errNotRunning) {
					s.fail(err)
				}
				return
			}
		}
	}
}

func (s *Simulator) finish(conn net.Conn) {
	s.writeMu.Lock()
	_ = conn.Close()
	s.writeMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
	if s.status == control.StatusShuttingDown {
		s.status = control.StatusDisabled
	}
}

func (s *Simulator) fail(err error) {
	s.logger.Warn("Simulator notifier write failed", zap.Error(err))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != control.StatusShuttingDown {
		s.status = control.StatusWriteError
		s.stop = nil
	}
}

func (s *Simulator) setStatus(status control.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == control.StatusInitializing {
		s.status = status
	}
}
