// Package ws streams routed notifications to websocket clients.
//
// Every entry the notification router produces becomes one JSON event
// {id, level, text, source, type, seqNo}, where id is a prefixed ULID.
// Clients are read-only: anything they send is discarded. A client that
// cannot keep up with the stream is disconnected rather than allowed to
// stall the control channel.
package ws
