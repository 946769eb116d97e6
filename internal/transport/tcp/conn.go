// Package tcp provides non-blocking TCP sockets over raw descriptors, for use
// with a readiness multiplexer instead of the runtime network poller.
package tcp

import (
	"errors"
	"io"
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/omochice/line-relay/internal/chat"
)

// ErrWouldBlock is returned when a non-blocking read or accept has nothing
// to deliver yet.
var ErrWouldBlock = errors.New("operation would block")

// Conn is a connected non-blocking stream socket. It implements chat.Conn.
type Conn struct {
	fd     int
	remote string
	closed bool
}

func newConn(fd int, sa unix.Sockaddr) *Conn {
	return &Conn{fd: fd, remote: sockaddrString(sa)}
}

// Read implements chat.Conn.
func (c *Conn) Read(p []byte) (int, error) {
	n, err := unix.Read(c.fd, p)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return 0, ErrWouldBlock
	case err != nil:
		return 0, chat.NewSystemError("read", err)
	case n == 0 && len(p) > 0:
		return 0, io.EOF
	}
	return n, nil
}

// Write implements chat.Conn. A socket whose send buffer is full accepts
// zero bytes without an error.
func (c *Conn) Write(p []byte) (int, error) {
	n, err := unix.Write(c.fd, p)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return 0, nil
	case err != nil:
		return 0, chat.NewSystemError("write", err)
	}
	return n, nil
}

// SocketError returns the pending error of an asynchronous connect, if any.
func (c *Conn) SocketError() error {
	errno, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return chat.NewSystemError("get socket error", err)
	}
	if errno != 0 {
		return chat.NewSystemError("connect", unix.Errno(errno))
	}
	return nil
}

// Close implements chat.Conn. Only the first call releases the descriptor.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return chat.NewSystemError("close", unix.Close(c.fd))
}

// Fd implements chat.Conn.
func (c *Conn) Fd() int {
	return c.fd
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remote
}

// socket creates a non-blocking, close-on-exec stream socket.
func socket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, chat.NewSystemError("create socket", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, chat.NewSystemError("set non-blocking", err)
	}
	return fd, nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)).String()
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port)).String()
	default:
		return ""
	}
}
