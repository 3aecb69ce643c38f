package control

import "fmt"

// Status is a notifier status code reported by the native engine.
type Status int

const (
	StatusShuttingDown     Status = -3
	StatusInitializing     Status = -2
	StatusDisabled         Status = -1
	StatusOK               Status = 0
	StatusPathTooLong      Status = 1
	StatusSocketCreate     Status = 2
	StatusSocketConnect    Status = 3
	StatusWriteFull        Status = 4
	StatusWriteError       Status = 5
	StatusShutdownTimedOut Status = 6
)

// StatusKind is the lifecycle interpretation of a Status.
type StatusKind int

const (
	// KindOpaque covers every code the lifecycle passes through untouched.
	KindOpaque StatusKind = iota
	KindDisabled
	KindShuttingDown
)

// Kind classifies the status for lifecycle decisions.
func (s Status) Kind() StatusKind {
	switch s {
	case StatusDisabled:
		return KindDisabled
	case StatusShuttingDown:
		return KindShuttingDown
	default:
		return KindOpaque
	}
}

// IsTransportFailure reports whether the code denotes a local transport error.
func (s Status) IsTransportFailure() bool {
	return s >= StatusPathTooLong && s <= StatusShutdownTimedOut
}

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusShuttingDown:
		return "shutting-down"
	case StatusInitializing:
		return "initializing"
	case StatusDisabled:
		return "disabled"
	case StatusOK:
		return "ok"
	case StatusPathTooLong:
		return "path-too-long"
	case StatusSocketCreate:
		return "socket-create"
	case StatusSocketConnect:
		return "socket-connect"
	case StatusWriteFull:
		return "write-full"
	case StatusWriteError:
		return "write-error"
	case StatusShutdownTimedOut:
		return "shutdown-timed-out"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ServerStatus is the lifecycle state of the control socket server.
type ServerStatus int

const (
	ServerInitial ServerStatus = iota
	ServerCreated
	ServerListening
)

// String returns the string representation of the server status
func (s ServerStatus) String() string {
	switch s {
	case ServerInitial:
		return "initial"
	case ServerCreated:
		return "created"
	case ServerListening:
		return "listening"
	default:
		return "unknown"
	}
}
