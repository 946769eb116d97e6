package chat_test

import (
	"io"

	"github.com/omochice/line-relay/internal/chat"
)

// mockConn is an in-memory chat.Conn for testing.
type mockConn struct {
	fd         int
	input      []byte
	eof        bool
	readErr    error
	written    []byte
	writeLimit int
	writeErr   error
	closed     int
	remoteAddr string
}

func newMockConn(fd int) *mockConn {
	return &mockConn{fd: fd, remoteAddr: "127.0.0.1:1234"}
}

func (m *mockConn) Read(p []byte) (int, error) {
	if m.readErr != nil {
		return 0, m.readErr
	}
	if len(m.input) == 0 && m.eof {
		return 0, io.EOF
	}
	n := copy(p, m.input)
	m.input = m.input[n:]
	return n, nil
}

// Write accepts at most writeLimit bytes per call when writeLimit > 0.
func (m *mockConn) Write(p []byte) (int, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	n := len(p)
	if m.writeLimit > 0 && n > m.writeLimit {
		n = m.writeLimit
	}
	m.written = append(m.written, p[:n]...)
	return n, nil
}

func (m *mockConn) Close() error {
	m.closed++
	return nil
}

func (m *mockConn) Fd() int {
	return m.fd
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

// Compile-time check that mockConn implements chat.Conn
var _ chat.Conn = (*mockConn)(nil)
