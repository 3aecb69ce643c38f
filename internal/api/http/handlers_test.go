package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/apm-agent/internal/control"
	"github.com/GriffinCanCode/apm-agent/internal/entropy"
	"github.com/GriffinCanCode/apm-agent/internal/infrastructure/monitoring"
)

type fakeControl struct {
	status    control.ServerStatus
	path      string
	connected bool
	accepted  uint64
}

func (f fakeControl) Status() control.ServerStatus { return f.status }
func (f fakeControl) Path() string                 { return f.path }
func (f fakeControl) Connected() bool              { return f.connected }
func (f fakeControl) Accepted() uint64             { return f.accepted }

type fakeNotifier control.Status

func (f fakeNotifier) Status() control.Status { return control.Status(f) }

type fakePool entropy.Stats

func (f fakePool) Stats() entropy.Stats { return entropy.Stats(f) }

type fakeSupervisor bool

func (f fakeSupervisor) Halted() bool { return bool(f) }

func setupRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandlers(deps).Register(router)
	return router
}

func defaultDeps() Deps {
	return Deps{
		Control:  fakeControl{status: control.ServerListening, path: "/tmp/ao-notifier-000000000001", connected: true, accepted: 3},
		Notifier: fakeNotifier(control.StatusOK),
		Pool: fakePool{
			BufferCount: 2,
			BufferSize:  1024,
			SyncFills:   1,
			AsyncFills:  2,
			Buffers:     []entropy.BufferStats{{Remaining: 1000}, {Remaining: 0, Pending: true}},
		},
		Supervisor: fakeSupervisor(false),
	}
}

func serve(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	w := serve(setupRouter(defaultDeps()), "/health")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["connected"])
}

func TestStatus(t *testing.T) {
	deps := defaultDeps()
	deps.Metrics = monitoring.NewMetricsWith(prometheus.NewRegistry())
	deps.Metrics.RecordRestart("ok")

	w := serve(setupRouter(deps), "/status")

	require.Equal(t, http.StatusOK, w.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "listening", resp.Server)
	assert.Equal(t, "/tmp/ao-notifier-000000000001", resp.SocketPath)
	assert.True(t, resp.Connected)
	assert.Equal(t, uint64(3), resp.Connections)
	assert.Equal(t, control.StatusOK.String(), resp.Notifier)
	assert.Equal(t, 0, resp.NotifierCode)
	assert.True(t, resp.Supervised)
	require.NotNil(t, resp.Totals)
	assert.Equal(t, int64(1), resp.Totals.Restarts)
}

func TestStatusWithoutMetricsOrSupervisor(t *testing.T) {
	deps := defaultDeps()
	deps.Supervisor = nil
	deps.Notifier = fakeNotifier(control.StatusSocketConnect)

	w := serve(setupRouter(deps), "/status")

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Supervised)
	assert.Nil(t, resp.Totals)
	assert.Equal(t, 3, resp.NotifierCode)
}

func TestEntropy(t *testing.T) {
	w := serve(setupRouter(defaultDeps()), "/entropy")

	require.Equal(t, http.StatusOK, w.Code)
	var stats entropy.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, entropy.Stats(defaultDeps().Pool.(fakePool)), stats)
}

func TestMetrics(t *testing.T) {
	deps := defaultDeps()
	deps.Metrics = monitoring.NewMetricsWith(prometheus.NewRegistry())
	deps.Metrics.SetNotifierStatus(control.StatusWriteError)

	w := serve(setupRouter(deps), "/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "agent_notifier_status 5"))
}

func TestMetricsDisabled(t *testing.T) {
	w := serve(setupRouter(defaultDeps()), "/metrics")

	assert.Equal(t, http.StatusNotFound, w.Code)
}
