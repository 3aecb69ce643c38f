package control

import (
	"errors"
	"fmt"
)

var (
	ErrBindExhausted    = errors.New("control: no free socket path after bind retries")
	ErrConcurrentClient = errors.New("control: second concurrent client connection")
	ErrNotListening     = errors.New("control: server is not listening")
	ErrAlreadyListening = errors.New("control: server is already listening")
	ErrStopTimeout      = errors.New("control: notifier did not reach disabled before poll limit")
)

// StatusError reports an engine status that does not permit the operation.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("control: notifier %s returned status %s (%d)", e.Op, e.Status, int(e.Status))
}
