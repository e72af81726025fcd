package chatkit

// ConnectionState represents the current state of the session's connection.
type ConnectionState int

const (
	// StateDisconnected means the session is not connected.
	StateDisconnected ConnectionState = iota

	// StateConnecting means the session is establishing a connection.
	StateConnecting

	// StateConnected means the session is connected and ready.
	StateConnected

	// StateReconnecting means a reconnect attempt is scheduled or running.
	StateReconnecting

	// StateError means the reconnect budget is exhausted; no further
	// automatic recovery happens.
	StateError
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StateEvent represents a connection state change.
type StateEvent struct {
	OldState ConnectionState
	NewState ConnectionState
}
