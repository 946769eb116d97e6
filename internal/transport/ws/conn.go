// Package ws bridges WebSocket clients onto the line relay. Each browser
// session owns a relay client; text frames become lines and relayed lines
// become text frames.
package ws

import (
	"bytes"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/omochice/line-relay/internal/client"
)

// session is one upgraded WebSocket connection and its relay client.
// Reads happen on a single goroutine. Every frame, control replies
// included, goes out in one locked write.
type session struct {
	id     string
	conn   net.Conn
	relay  *client.Client
	reader *wsutil.Reader
	wmu    sync.Mutex
}

func newSession(conn net.Conn, relay *client.Client) *session {
	s := &session{
		id:    uuid.NewString(),
		conn:  conn,
		relay: relay,
	}
	s.reader = &wsutil.Reader{
		Source:         conn,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		OnIntermediate: s.handleControl,
	}
	return s
}

// readData returns the next text or binary message, answering pings
// along the way. A close frame is answered and reported as
// wsutil.ClosedError.
func (s *session) readData() ([]byte, error) {
	for {
		hdr, err := s.reader.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := s.handleControl(hdr, s.reader); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := s.reader.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(s.reader)
	}
}

func (s *session) handleControl(hdr ws.Header, r io.Reader) error {
	var out bytes.Buffer
	err := wsutil.ControlHandler{
		Src:                 r,
		Dst:                 &out,
		State:               ws.StateServerSide,
		DisableSrcCiphering: true,
	}.Handle(hdr)
	if out.Len() > 0 {
		if _, werr := s.write(out.Bytes()); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func (s *session) writeText(data []byte) error {
	frame, err := ws.CompileFrame(ws.NewTextFrame(data))
	if err != nil {
		return err
	}
	_, err = s.write(frame)
	return err
}

// closeWith sends a close frame carrying code and reason. Errors are
// ignored; the connection is torn down right after.
func (s *session) closeWith(code ws.StatusCode, reason string) {
	frame, err := ws.CompileFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(code, reason)))
	if err != nil {
		return
	}
	_, _ = s.write(frame)
}

func (s *session) write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.Write(p)
}

func (s *session) remoteAddr() string {
	return s.conn.RemoteAddr().String()
}
