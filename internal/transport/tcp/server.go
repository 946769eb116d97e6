package tcp

import (
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/omochice/line-relay/internal/chat"
)

// DefaultBacklog is the accept queue length passed to listen(2).
const DefaultBacklog = 128

// Listener is a non-blocking listening socket bound to all IPv4 addresses.
type Listener struct {
	fd     int
	port   uint16
	closed bool
}

// Listen binds port on all IPv4 addresses. Port 0 picks an ephemeral port.
// A bind failing with address-in-use is reported as chat.ErrPortBusy.
func Listen(port uint16, backlog int) (*Listener, error) {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}

	fd, err := socket(unix.AF_INET)
	if err != nil {
		return nil, err
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, chat.NewSystemError("set SO_REUSEADDR", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: int(port)}); err != nil {
		_ = unix.Close(fd)
		sysErr := chat.NewSystemError("bind port "+strconv.Itoa(int(port)), err)
		if errors.Is(err, unix.EADDRINUSE) {
			return nil, fmt.Errorf("%w: %w", chat.ErrPortBusy, sysErr)
		}
		return nil, sysErr
	}

	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, chat.NewSystemError("listen", err)
	}

	sa, err := unix.Getsockname(fd)
	if err != nil {
		_ = unix.Close(fd)
		return nil, chat.NewSystemError("get socket name", err)
	}
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		port = uint16(in4.Port)
	}

	return &Listener{fd: fd, port: port}, nil
}

// Accept takes one pending connection off the queue and makes it
// non-blocking. It returns ErrWouldBlock when the queue is empty.
func (l *Listener) Accept() (*Conn, error) {
	fd, sa, err := unix.Accept(l.fd)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR || err == unix.ECONNABORTED:
		return nil, ErrWouldBlock
	case err != nil:
		return nil, chat.NewSystemError("accept", err)
	}

	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, chat.NewSystemError("set non-blocking", err)
	}
	return newConn(fd, sa), nil
}

// Fd returns the listening descriptor.
func (l *Listener) Fd() int {
	return l.fd
}

// Port returns the bound port.
func (l *Listener) Port() uint16 {
	return l.port
}

// Addr returns the listening address.
func (l *Listener) Addr() string {
	return "0.0.0.0:" + strconv.Itoa(int(l.port))
}

// Close releases the descriptor. Only the first call has an effect.
func (l *Listener) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return chat.NewSystemError("close listener", unix.Close(l.fd))
}
