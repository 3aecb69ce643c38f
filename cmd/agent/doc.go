// Package main is the entry point for the tracing agent support process.
//
// The process binds the control socket the native engine reports on, keeps
// the engine's notifier running, routes its messages to the agent log and
// serves local diagnostics.
//
// Configuration comes from the environment (see internal/infrastructure/config),
// optionally overlaid by a YAML file. Command-line flags override both:
//
//	agent -config /etc/agent.yaml -engine simulator -log-level debug -dev
//
// SIGINT or SIGTERM triggers a graceful shutdown that waits for the notifier
// to reach disabled before the socket is removed.
package main
