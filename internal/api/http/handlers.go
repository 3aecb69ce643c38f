package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/apm-agent/internal/control"
	"github.com/GriffinCanCode/apm-agent/internal/entropy"
	"github.com/GriffinCanCode/apm-agent/internal/infrastructure/monitoring"
)

// ControlState is the control server view the handlers report.
type ControlState interface {
	Status() control.ServerStatus
	Path() string
	Connected() bool
	Accepted() uint64
}

// NotifierState reports the engine's notifier status.
type NotifierState interface {
	Status() control.Status
}

// PoolStats reports entropy pool state.
type PoolStats interface {
	Stats() entropy.Stats
}

// SupervisorState reports whether notifier supervision is still active.
type SupervisorState interface {
	Halted() bool
}

// Deps are the components the handlers read from. Metrics and Supervisor
// may be nil.
type Deps struct {
	Control    ControlState
	Notifier   NotifierState
	Pool       PoolStats
	Supervisor SupervisorState
	Metrics    *monitoring.Metrics
}

// Handlers contains all diagnostics HTTP handlers
type Handlers struct {
	deps    Deps
	started time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps, started: time.Now()}
}

// Register mounts the diagnostics routes on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/status", h.Status)
	r.GET("/entropy", h.Entropy)
	r.GET("/metrics", h.Metrics())
}

// Health handles liveness checks
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"connected": h.deps.Control.Connected(),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
	})
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Server       string               `json:"server"`
	SocketPath   string               `json:"socketPath"`
	Connected    bool                 `json:"connected"`
	Connections  uint64               `json:"connections"`
	Notifier     string               `json:"notifier"`
	NotifierCode int                  `json:"notifierCode"`
	Supervised   bool                 `json:"supervised"`
	Totals       *monitoring.Snapshot `json:"totals,omitempty"`
}

// Status reports control channel and notifier state
func (h *Handlers) Status(c *gin.Context) {
	status := h.deps.Notifier.Status()
	resp := StatusResponse{
		Server:       h.deps.Control.Status().String(),
		SocketPath:   h.deps.Control.Path(),
		Connected:    h.deps.Control.Connected(),
		Connections:  h.deps.Control.Accepted(),
		Notifier:     status.String(),
		NotifierCode: int(status),
		Supervised:   h.deps.Supervisor != nil && !h.deps.Supervisor.Halted(),
	}
	if h.deps.Metrics != nil {
		snap := h.deps.Metrics.Snapshot()
		resp.Totals = &snap
	}
	c.JSON(http.StatusOK, resp)
}

// Entropy reports pool counters
func (h *Handlers) Entropy(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Pool.Stats())
}

// Metrics serves the Prometheus registry, or 404 without metrics.
func (h *Handlers) Metrics() gin.HandlerFunc {
	if h.deps.Metrics == nil {
		return func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{"error": "metrics disabled"})
		}
	}
	var gatherer prometheus.Gatherer = h.deps.Metrics.Registry()
	return gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
