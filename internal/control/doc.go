// Package control implements the local control-plane channel to the native engine.
//
// The native reporting engine connects to a filesystem-path-addressed unix
// socket owned by this package and writes newline-terminated JSON messages:
//
//	{"seqNo":0,"source":"oboe","type":"config","hostname":"collector","port":443}
//
// Components:
//   - Server: binds the socket with bounded address-in-use retries, accepts
//     exactly one peer and publishes decoded messages to subscribers
//   - framer: reassembles fragmented lines and checks seqNo continuity
//   - Notifier: start/stop/status calls into the engine with bounded stop polling
//
// Anomalies:
//
// Decode failures and sequence gaps never stop the stream. They are published
// as synthesized notifier/error messages through the same subscriber list, so
// downstream logging sees them alongside regular notifications. A second
// concurrent peer is fatal and tears the server down.
package control
