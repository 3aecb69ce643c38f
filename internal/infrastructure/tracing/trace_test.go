package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/apm-agent/internal/entropy"
	"github.com/GriffinCanCode/apm-agent/internal/shared/id"
)

func newTracer(t *testing.T) (*Tracer, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	pool := entropy.New()
	tracer := New(pool, zap.New(core))
	t.Cleanup(func() {
		tracer.Close()
		pool.Wait()
	})
	return tracer, logs
}

func TestStartSpanMintsIdentifiers(t *testing.T) {
	tracer, _ := newTracer(t)

	span, ctx := tracer.StartSpan(context.Background(), "root")

	assert.Len(t, span.TraceID.String(), 2*id.TaskIDSize)
	assert.Len(t, span.SpanID.String(), 2*id.OpIDSize)
	assert.Empty(t, span.ParentID)
	assert.Equal(t, span.TraceID, TraceIDFrom(ctx))
	assert.Equal(t, span.SpanID, SpanIDFrom(ctx))
}

func TestChildSpanContinuesTrace(t *testing.T) {
	tracer, _ := newTracer(t)

	root, ctx := tracer.StartSpan(context.Background(), "root")
	child, _ := tracer.StartSpan(ctx, "child")

	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.NotEqual(t, root.SpanID, child.SpanID)
}

func TestFinishLogsSpan(t *testing.T) {
	tracer, logs := newTracer(t)

	ok, _ := tracer.StartSpan(context.Background(), "notifier.start")
	ok.SetTag("status", "ok")
	tracer.Finish(ok)
	failed, _ := tracer.StartSpan(context.Background(), "notifier.stop")
	failed.SetError(errors.New("timed out"))
	tracer.Finish(failed)

	require.Eventually(t, func() bool { return logs.Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	all := logs.All()
	assert.Equal(t, zapcore.DebugLevel, all[0].Level)
	assert.Equal(t, "notifier.start", all[0].ContextMap()["operation"])
	assert.Equal(t, "ok", all[0].ContextMap()["status"])
	assert.Equal(t, zapcore.WarnLevel, all[1].Level)
}

func TestFinishAfterCloseIsDropped(t *testing.T) {
	tracer, logs := newTracer(t)
	tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "late")
	assert.NotPanics(t, func() { tracer.Finish(span) })
	assert.Zero(t, logs.Len())
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, _ := newTracer(t)

	var seen id.TaskID
	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/status", func(c *gin.Context) {
		seen = TraceIDFrom(c.Request.Context())
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name      string
		trace     string
		span      string
		continued bool
	}{
		{"no headers", "", "", false},
		{"valid headers", strings.Repeat("ab", id.TaskIDSize), strings.Repeat("cd", id.OpIDSize), true},
		{"malformed trace", "not-hex", strings.Repeat("cd", id.OpIDSize), false},
		{"short trace", "abcd", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tt.trace != "" {
				req.Header.Set(HeaderTraceID, tt.trace)
			}
			if tt.span != "" {
				req.Header.Set(HeaderSpanID, tt.span)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, string(seen), w.Header().Get(HeaderTraceID))
			assert.Len(t, w.Header().Get(HeaderSpanID), 2*id.OpIDSize)
			if tt.continued {
				assert.Equal(t, tt.trace, string(seen))
			} else {
				assert.NotEqual(t, tt.trace, string(seen))
				_, err := seen.Bytes()
				assert.NoError(t, err)
			}
		})
	}
}
