// Package logging builds the agent's zap loggers.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a *zap.Logger named after their subsystem and log with
// typed fields. The notification router consumes the sugared form of the
// same logger, so engine-originated text lands in the same stream.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	ctl := logging.Named(logger, logging.SubsystemControl)
//	ctl.Info("Control socket listening", zap.String("path", path))
package logging
