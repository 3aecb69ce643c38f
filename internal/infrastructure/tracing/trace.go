package tracing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/apm-agent/internal/shared/id"
)

// Span represents a single operation in a trace
type Span struct {
	TraceID   id.TaskID
	SpanID    id.OpID
	ParentID  id.OpID
	Name      string
	StartTime time.Time
	Duration  time.Duration
	Tags      map[string]string
	Error     error
}

// Tracer mints spans and logs them once finished.
type Tracer struct {
	ids    id.Allocator
	logger *zap.Logger
	spans  chan *Span

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// New creates a tracer drawing identifiers from ids.
func New(ids id.Allocator, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		ids:     ids,
		logger:  logger,
		spans:   make(chan *Span, 256),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go t.collectSpans()
	return t
}

// StartSpan creates a span, continuing the trace carried by ctx if any.
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID := TraceIDFrom(ctx)
	if traceID == "" {
		traceID = id.NewTaskID(t.ids)
	}

	span := &Span{
		TraceID:   traceID,
		SpanID:    id.NewOpID(t.ids),
		ParentID:  SpanIDFrom(ctx),
		Name:      name,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
	}
	return span, WithSpanContext(ctx, traceID, span.SpanID)
}

// SetTag adds a tag to the span
func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// SetError records an error in the span
func (s *Span) SetError(err error) {
	s.Error = err
}

// Finish records the duration and hands the span to the collector.
// A full buffer drops the span.
func (t *Tracer) Finish(span *Span) {
	span.Duration = time.Since(span.StartTime)
	select {
	case <-t.done:
		return
	default:
	}
	select {
	case t.spans <- span:
	default:
		t.logger.Warn("Span buffer full, dropping span",
			zap.Stringer("trace_id", span.TraceID),
			zap.Stringer("span_id", span.SpanID),
		)
	}
}

// Close drains queued spans and waits for the collector to exit.
func (t *Tracer) Close() {
	t.closeOnce.Do(func() { close(t.done) })
	<-t.stopped
}

func (t *Tracer) collectSpans() {
	defer close(t.stopped)
	for {
		select {
		case span := <-t.spans:
			t.processSpan(span)
		case <-t.done:
			for {
				select {
				case span := <-t.spans:
					t.processSpan(span)
				default:
					return
				}
			}
		}
	}
}

func (t *Tracer) processSpan(span *Span) {
	fields := []zap.Field{
		zap.Stringer("trace_id", span.TraceID),
		zap.Stringer("span_id", span.SpanID),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.Stringer("parent_id", span.ParentID))
	}
	for k, v := range span.Tags {
		fields = append(fields, zap.String(k, v))
	}

	if span.Error != nil {
		fields = append(fields, zap.Error(span.Error))
		t.logger.Warn("Span completed with error", fields...)
		return
	}
	t.logger.Debug("Span completed", fields...)
}

type contextKey int

const (
	traceIDKey contextKey = iota
	spanIDKey
)

// WithSpanContext returns ctx carrying traceID and spanID.
func WithSpanContext(ctx context.Context, traceID id.TaskID, spanID id.OpID) context.Context {
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	return context.WithValue(ctx, spanIDKey, spanID)
}

// TraceIDFrom retrieves the trace ID from context
func TraceIDFrom(ctx context.Context) id.TaskID {
	traceID, _ := ctx.Value(traceIDKey).(id.TaskID)
	return traceID
}

// SpanIDFrom retrieves the span ID from context
func SpanIDFrom(ctx context.Context) id.OpID {
	spanID, _ := ctx.Value(spanIDKey).(id.OpID)
	return spanID
}
