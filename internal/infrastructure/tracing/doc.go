// Package tracing records spans for the agent's own operations.
//
// Trace identifiers are 20-byte TaskIDs and span identifiers 8-byte OpIDs,
// both drawn from the entropy pool, so the agent exercises the pool the way
// instrumentation does. Finished spans are logged asynchronously at debug
// level; failed spans at warn.
//
// Example Usage:
//
//	tracer := tracing.New(pool, logger)
//	span, ctx := tracer.StartSpan(ctx, "notifier.start")
//	defer tracer.Finish(span)
//
// The HTTP middleware continues traces from X-Trace-Id / X-Span-Id request
// headers and echoes the request's own identifiers on the response.
package tracing
