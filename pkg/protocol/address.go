package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAddress is returned for addresses not of the form "host:port".
var ErrInvalidAddress = errors.New("invalid address")

// ParseAddress splits "host:port" at the last colon. The host must be
// non-empty and the port must be a decimal number in 1..65535. Bracketed
// IPv6 literals such as "[::1]:9000" are unwrapped.
func ParseAddress(addr string) (host string, port uint16, err error) {
	i := strings.LastIndexByte(addr, ':')
	if i <= 0 || i == len(addr)-1 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}

	host = addr[:i]
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	if host == "" {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}

	n, err := strconv.ParseUint(addr[i+1:], 10, 16)
	if err != nil || n == 0 {
		return "", 0, fmt.Errorf("%w: bad port in %q", ErrInvalidAddress, addr)
	}

	return host, uint16(n), nil
}
