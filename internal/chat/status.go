package chat

// Status is the outcome of one reactor Update call. Timeouts and closed
// connections are normal outcomes, so they are reported here rather than
// as errors.
type Status int

const (
	// StatusOK means at least one readiness event was dispatched.
	StatusOK Status = iota
	// StatusTimeout means the deadline passed with no events.
	StatusTimeout
	// StatusClosed means the connection is gone, either closed by the
	// remote side during this call or earlier.
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// State is a connection's position in its lifecycle. Closed is terminal.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
