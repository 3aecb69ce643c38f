// Package agent supervises the native engine's notifier.
//
// The Supervisor polls the notifier status on a fixed interval and records
// it. When the engine reports a transport failure (path too long, socket
// create/connect, write full/error, shutdown timeout) the notifier is
// restarted through a circuit breaker, so an engine that keeps failing is
// retried only after the breaker cools down. Halt ends supervision for good,
// which is how the agent stays down after the collector rejects its key.
package agent
