// Package entropy provides a pooled source of cryptographically strong random bytes.
//
// Identifier minting on the hot path would otherwise issue a read against the
// system randomness source for every trace and op id. The Pool keeps a small
// rotating set of pre-filled buffers and hands out copies of their bytes:
//   - Allocation scans buffers in order and takes the first one that can
//     satisfy the whole request
//   - Buffers that are too short are refilled in the background
//   - When nothing can satisfy a request the target is filled synchronously
//
// A request is never split across buffers, and callers never receive a
// reference into pool storage.
//
// Failure Policy:
//
// A refill that cannot read from the entropy source is fatal. The default
// fatal handler panics, which aborts the process. Handing out weak or
// partial randomness for identifiers is never an option.
//
// Example Usage:
//
//	pool := entropy.New()
//	taskID := make([]byte, 20)
//	pool.Allocate(taskID, 0, len(taskID))
package entropy
