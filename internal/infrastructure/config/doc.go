// Package config loads agent configuration from the environment.
//
// Every setting has a default, so an agent started with an empty environment
// listens for its notifier in the OS temp directory and serves diagnostics on
// loopback. Command-line flags in cmd/agent are applied on top of the loaded
// values and re-checked with Validate.
package config
