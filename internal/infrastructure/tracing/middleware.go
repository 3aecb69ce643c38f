package tracing

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/apm-agent/internal/shared/id"
)

// Propagation headers.
const (
	HeaderTraceID = "X-Trace-Id"
	HeaderSpanID  = "X-Span-Id"
)

// HTTPMiddleware traces each request. Well-formed incoming trace headers
// are continued; malformed ones are ignored.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := extract(c.Request.Context(), c.GetHeader(HeaderTraceID), c.GetHeader(HeaderSpanID))

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		c.Request = c.Request.WithContext(ctx)

		c.Header(HeaderTraceID, span.TraceID.String())
		c.Header(HeaderSpanID, span.SpanID.String())

		c.Next()

		status := c.Writer.Status()
		span.SetTag("http.status", strconv.Itoa(status))
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}
		tracer.Finish(span)
	}
}

func extract(ctx context.Context, traceHeader, spanHeader string) context.Context {
	traceID := id.TaskID(traceHeader)
	if _, err := traceID.Bytes(); err != nil {
		return ctx
	}
	spanID := id.OpID(spanHeader)
	if _, err := spanID.Bytes(); err != nil {
		spanID = ""
	}
	return WithSpanContext(ctx, traceID, spanID)
}
