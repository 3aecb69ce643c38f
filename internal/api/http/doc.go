// Package http serves the agent's read-only diagnostics endpoints.
//
// Routes:
//   - GET /health: liveness plus whether a notifier is attached
//   - GET /status: control server state, socket path and notifier status
//   - GET /entropy: entropy pool counters and per-buffer fill state
//   - GET /metrics: Prometheus exposition of the agent registry
package http
