package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/apm-agent/internal/agent"
	apihttp "github.com/GriffinCanCode/apm-agent/internal/api/http"
	"github.com/GriffinCanCode/apm-agent/internal/api/middleware"
	"github.com/GriffinCanCode/apm-agent/internal/api/ws"
	"github.com/GriffinCanCode/apm-agent/internal/control"
	"github.com/GriffinCanCode/apm-agent/internal/entropy"
	"github.com/GriffinCanCode/apm-agent/internal/infrastructure/config"
	"github.com/GriffinCanCode/apm-agent/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apm-agent/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/apm-agent/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/apm-agent/internal/native"
	"github.com/GriffinCanCode/apm-agent/internal/notify"
	"github.com/GriffinCanCode/apm-agent/internal/shared/id"
)

// disableStopTimeout bounds the background stop after the agent is disabled.
const disableStopTimeout = 2 * time.Minute

// Agent owns every long-lived component of the process.
type Agent struct {
	cfg    *config.Config
	logger *zap.Logger

	pool       *entropy.Pool
	ids        *id.Generator
	engine     control.Engine
	control    *control.Server
	notifier   *control.Notifier
	router     *notify.Router
	supervisor *agent.Supervisor
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer
	hub        *ws.Hub

	httpServer   *http.Server
	httpListener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	errs   chan error

	// mu guards closing; wg.Add only happens while closing is false.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup

	disableOnce sync.Once
}

// New builds the agent from cfg. Nothing is bound until Start.
func New(cfg *config.Config, logger *zap.Logger) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool := entropy.New(
		entropy.WithBufferCount(cfg.Entropy.BufferCount),
		entropy.WithBufferSize(cfg.Entropy.BufferSize),
		entropy.WithFatalHandler(func(err error) {
			logger.Fatal("Entropy source failed", zap.Error(err))
		}),
	)

	engine, err := native.New(
		native.Mode(cfg.Engine.Mode),
		native.SimulatorConfig{KeepAlive: cfg.Engine.KeepAlive},
		logging.Named(logger, logging.SubsystemEngine),
	)
	if err != nil {
		return nil, err
	}

	ctl := control.NewServer(control.Config{
		Dir:          cfg.Notifier.SocketDir,
		Prefix:       cfg.Notifier.SocketPrefix,
		BindAttempts: cfg.Notifier.BindAttempts,
	}, logging.Named(logger, logging.SubsystemControl))

	notifier := control.NewNotifier(engine, ctl, control.NotifierConfig{
		PollInterval: cfg.Notifier.StopPollInterval,
		MaxPolls:     cfg.Notifier.StopMaxPolls,
	}, logging.Named(logger, logging.SubsystemControl))

	metrics := monitoring.NewMetrics()
	metrics.WatchPool(pool)
	metrics.WatchServer(ctl)

	ids := id.NewGeneratorWithEntropy(pool)
	hub := ws.NewHub(ids, metrics, logging.Named(logger, logging.SubsystemAPI))

	router := notify.NewRouter(logging.Named(logger, logging.SubsystemNotify).Sugar())
	router.Observe(metrics.RecordMessage)
	router.Observe(hub.Publish)
	ctl.Subscribe(func(msg control.Message) { router.Route(msg) })

	supervisor := agent.New(notifier, agent.Config{Interval: cfg.Supervisor.Interval}, metrics,
		logging.Named(logger, logging.SubsystemSupervisor))

	a := &Agent{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		ids:        ids,
		engine:     engine,
		control:    ctl,
		notifier:   notifier,
		router:     router,
		supervisor: supervisor,
		metrics:    metrics,
		tracer:     tracing.New(pool, logging.Named(logger, logging.SubsystemAPI)),
		hub:        hub,
		errs:       make(chan error, 2),
	}
	router.OnAgentDisabled(a.agentDisabled)

	if cfg.Server.DiagEnabled {
		a.httpServer = &http.Server{
			Handler:           a.diagnosticsRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return a, nil
}

func (a *Agent) diagnosticsRouter() *gin.Engine {
	if !a.cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(a.tracer))
	router.Use(middleware.RequestLogger(logging.Named(a.logger, logging.SubsystemAPI)))
	router.Use(monitoring.Middleware(a.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if a.cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: a.cfg.RateLimit.RequestsPerSecond,
			Burst:             a.cfg.RateLimit.Burst,
		}))
	}

	apihttp.NewHandlers(apihttp.Deps{
		Control:    a.control,
		Notifier:   a.notifier,
		Pool:       a.pool,
		Supervisor: a.supervisor,
		Metrics:    a.metrics,
	}).Register(router)
	router.GET("/notifications", a.hub.Handle)

	return router
}

// Start binds the control socket, starts the notifier, supervision and the
// diagnostics API, and returns without blocking.
func (a *Agent) Start() error {
	if err := a.control.Listen(); err != nil {
		return fmt.Errorf("bind control socket: %w", err)
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.goSafe(func() {
		if err := a.control.Serve(); err != nil {
			a.fail(err)
		}
	})

	if a.httpServer != nil {
		ln, err := net.Listen("tcp", a.cfg.Server.Addr())
		if err != nil {
			a.cancel()
			return multierr.Append(fmt.Errorf("listen diagnostics: %w", err), a.control.Shutdown(context.Background()))
		}
		a.httpListener = ln
		a.goSafe(func() {
			if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.fail(fmt.Errorf("diagnostics server: %w", err))
			}
		})
		a.logger.Info("Diagnostics API listening", zap.String("addr", ln.Addr().String()))
	}

	span, _ := a.tracer.StartSpan(a.ctx, "notifier.start")
	timer := monitoring.NewTimer(a.metrics, "start")
	status, err := a.notifier.Start()
	if err != nil {
		timer.Stop("error")
		span.SetError(err)
		a.tracer.Finish(span)
		return err
	}
	timer.Stop(outcome(status))
	span.SetTag("status", status.String())
	a.tracer.Finish(span)
	a.metrics.SetNotifierStatus(status)

	a.goSafe(func() { _ = a.supervisor.Run(a.ctx) })

	a.logger.Info("Agent started",
		zap.Stringer("trace_id", span.TraceID),
		zap.String("socket", a.control.Path()),
		zap.Stringer("notifier", status),
		zap.String("engine", a.cfg.Engine.Mode),
	)
	return nil
}

// Run starts the agent and blocks until ctx is done or a fatal error
// occurs, then shuts down.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-a.errs:
		a.logger.Error("Agent failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownBudget())
	defer cancel()
	return multierr.Append(runErr, a.Shutdown(shutdownCtx))
}

// Err delivers fatal runtime errors, such as a second control client.
func (a *Agent) Err() <-chan error {
	return a.errs
}

// Shutdown stops supervision and the notifier, then closes every listener.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down agent...")
	a.mu.Lock()
	a.closing = true
	a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}

	var err error
	span, _ := a.tracer.StartSpan(ctx, "notifier.stop")
	timer := monitoring.NewTimer(a.metrics, "stop")
	if stopErr := a.notifier.Stop(ctx); stopErr != nil {
		timer.Stop("error")
		span.SetError(stopErr)
		a.logger.Error("Notifier did not stop cleanly", zap.Error(stopErr))
		err = multierr.Append(err, stopErr)
	} else {
		timer.Stop("ok")
	}
	a.tracer.Finish(span)

	if a.httpServer != nil && a.httpListener != nil {
		err = multierr.Append(err, a.httpServer.Shutdown(ctx))
	}
	a.hub.Close()
	err = multierr.Append(err, a.control.Shutdown(ctx))

	a.wg.Wait()
	a.tracer.Close()
	a.pool.Wait()

	a.logger.Info("Agent stopped")
	_ = a.logger.Sync()
	return err
}

// Addr returns the diagnostics API address, or nil when disabled.
func (a *Agent) Addr() net.Addr {
	if a.httpListener == nil {
		return nil
	}
	return a.httpListener.Addr()
}

// SocketPath returns the bound control socket path.
func (a *Agent) SocketPath() string {
	return a.control.Path()
}

// NotifierStatus returns the engine's notifier status.
func (a *Agent) NotifierStatus() control.Status {
	return a.notifier.Status()
}

// Engine returns the native engine the agent drives.
func (a *Agent) Engine() control.Engine {
	return a.engine
}

// Metrics returns the agent's metrics.
func (a *Agent) Metrics() *monitoring.Metrics {
	return a.metrics
}

// SupervisionHalted reports whether the agent was disabled.
func (a *Agent) SupervisionHalted() bool {
	return a.supervisor.Halted()
}

// agentDisabled runs on the control connection goroutine, so the stop
// polling happens elsewhere.
func (a *Agent) agentDisabled(e notify.Entry) {
	a.disableOnce.Do(func() {
		a.supervisor.Halt()
		spawned := a.goSafe(func() {
			ctx, cancel := context.WithTimeout(a.ctx, disableStopTimeout)
			defer cancel()
			if err := a.notifier.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("Failed to stop disabled notifier", zap.Error(err))
				return
			}
			a.metrics.SetNotifierStatus(a.notifier.Status())
			a.logger.Warn("Notifier stopped after credential rejection", zap.String("reason", e.Text))
		})
		if !spawned {
			a.logger.Debug("Agent shutting down, leaving notifier stop to shutdown", zap.String("reason", e.Text))
		}
	})
}

// goSafe runs fn on a tracked goroutine unless shutdown has begun.
func (a *Agent) goSafe(fn func()) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closing {
		return false
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
	return true
}

func (a *Agent) fail(err error) {
	select {
	case a.errs <- err:
	default:
	}
}

// shutdownBudget covers a full stop poll plus listener teardown.
func (a *Agent) shutdownBudget() time.Duration {
	polls := time.Duration(a.cfg.Notifier.StopMaxPolls + 1)
	return polls*a.cfg.Notifier.StopPollInterval + 5*time.Second
}

func outcome(status control.Status) string {
	if status.IsTransportFailure() {
		return "failed"
	}
	return "ok"
}
