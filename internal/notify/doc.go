// Package notify classifies control-plane messages into log calls.
//
// Classify is a pure function from a control.Message to zero or more
// entries. The Router applies them to a Sink, normally a zap sugared
// logger, and triggers side effects such as disabling the agent when the
// collector rejects its credentials.
//
// Classification:
//   - oboe/keep-alive: dropped
//   - oboe/logging: engine level mapped onto error, warn or info
//   - oboe/config: endpoint at debug, full payload at info
//   - collector/remote-config: reserved, dropped
//   - collector/remote-warning: error plus agent-disabled effect for
//     rejected credentials, warn otherwise
//   - notifier/error and notifier/warn: the embedded error text
//   - anything else: one debug entry
package notify
