package tcp

import (
	"context"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/omochice/line-relay/internal/chat"
)

// Dial resolves host and starts a non-blocking connect to host:port.
// IPv4 addresses are preferred. A connect still in progress is not an
// error: connected reports whether it already completed, otherwise the
// outcome shows up as readiness on the socket and through SocketError.
func Dial(ctx context.Context, host string, port uint16) (conn *Conn, connected bool, err error) {
	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, false, chat.NewSystemError("resolve "+host, err)
	}
	if len(ips) == 0 {
		return nil, false, chat.NewSystemError("resolve "+host, unix.EADDRNOTAVAIL)
	}

	ip := ips[0]
	for _, candidate := range ips {
		if candidate.Unmap().Is4() {
			ip = candidate
			break
		}
	}

	family, sa := sockaddr(ip, port)
	fd, err := socket(family)
	if err != nil {
		return nil, false, err
	}

	err = unix.Connect(fd, sa)
	switch {
	case err == nil:
		connected = true
	case err == unix.EINPROGRESS || err == unix.EINTR:
	default:
		_ = unix.Close(fd)
		return nil, false, chat.NewSystemError("connect", err)
	}

	return newConn(fd, sa), connected, nil
}

func sockaddr(ip netip.Addr, port uint16) (int, unix.Sockaddr) {
	ip = ip.Unmap()
	if ip.Is4() {
		return unix.AF_INET, &unix.SockaddrInet4{Port: int(port), Addr: ip.As4()}
	}
	return unix.AF_INET6, &unix.SockaddrInet6{Port: int(port), Addr: ip.As16()}
}
