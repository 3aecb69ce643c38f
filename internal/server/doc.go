// Package server wires the agent process together.
//
// Startup order:
//  1. Build the entropy pool, plus the identifier generator and the tracer
//     that read from it
//  2. Bind the control socket (bounded retry on address-in-use) and serve it
//  3. Route every control message through the notification router, the
//     metrics recorder and the websocket hub, in that order
//  4. Ask the native engine to start its notifier on the bound path
//  5. Start notifier supervision and, when enabled, the diagnostics API
//
// Shutdown runs in reverse: supervision ends, the notifier is stopped with
// bounded polling, then the API, websocket clients and control socket close.
// The notifier start and stop and every diagnostics request are traced.
//
// An invalid-credential warning from the collector halts supervision and
// stops the notifier in the background. A second concurrent control client
// is fatal and surfaces on Err.
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	a, err := server.New(cfg, logging.NewDefault())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := a.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
