package chat

import "errors"

var (
	// ErrSystem matches every *SystemError via errors.Is.
	ErrSystem = errors.New("system error")

	// ErrNotStarted is returned by operations that need a listening or
	// connected socket when there is none.
	ErrNotStarted = errors.New("not started")

	// ErrAlreadyStarted is returned by Listen or Connect on an instance that
	// already owns a socket.
	ErrAlreadyStarted = errors.New("already started")

	// ErrPortBusy is returned when bind fails because the address is in use.
	ErrPortBusy = errors.New("port is busy")

	// ErrNotImplemented is returned by optional operations a backend does
	// not support.
	ErrNotImplemented = errors.New("not implemented")
)

// SystemError is an OS-level failure of a socket or multiplexer call.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	return "failed to " + e.Op + ": " + e.Err.Error()
}

// Unwrap exposes both ErrSystem and the OS cause.
func (e *SystemError) Unwrap() []error {
	return []error{ErrSystem, e.Err}
}

// NewSystemError wraps err for op. It returns nil if err is nil.
func NewSystemError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &SystemError{Op: op, Err: err}
}
