package ws

import (
	"net"
	"testing"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeSession(t *testing.T) (*session, net.Conn) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() {
		_ = serverSide.Close()
		_ = clientSide.Close()
	})
	return newSession(serverSide, nil), clientSide
}

type readResult struct {
	data []byte
	err  error
}

func readAsync(s *session) <-chan readResult {
	out := make(chan readResult, 1)
	go func() {
		data, err := s.readData()
		out <- readResult{data, err}
	}()
	return out
}

func TestSession_ReadText(t *testing.T) {
	s, peer := pipeSession(t)
	result := readAsync(s)

	require.NoError(t, wsutil.WriteClientText(peer, []byte("hello")))

	got := <-result
	require.NoError(t, got.err)
	assert.Equal(t, "hello", string(got.data))
	assert.NotEmpty(t, s.id)
}

func TestSession_ReadBinary(t *testing.T) {
	s, peer := pipeSession(t)
	result := readAsync(s)

	require.NoError(t, wsutil.WriteClientBinary(peer, []byte{0x01, 0x02}))

	got := <-result
	require.NoError(t, got.err)
	assert.Equal(t, []byte{0x01, 0x02}, got.data)
}

func TestSession_AnswersPing(t *testing.T) {
	s, peer := pipeSession(t)
	result := readAsync(s)

	require.NoError(t, wsutil.WriteClientMessage(peer, ws.OpPing, []byte("are you there")))

	pong, err := ws.ReadFrame(peer)
	require.NoError(t, err)
	assert.Equal(t, ws.OpPong, pong.Header.OpCode)
	assert.Equal(t, "are you there", string(pong.Payload))

	require.NoError(t, wsutil.WriteClientText(peer, []byte("after ping")))
	got := <-result
	require.NoError(t, got.err)
	assert.Equal(t, "after ping", string(got.data))
}

func TestSession_Close(t *testing.T) {
	s, peer := pipeSession(t)
	result := readAsync(s)

	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "bye")
	require.NoError(t, wsutil.WriteClientMessage(peer, ws.OpClose, body))

	reply, err := ws.ReadFrame(peer)
	require.NoError(t, err)
	assert.Equal(t, ws.OpClose, reply.Header.OpCode)

	got := <-result
	var closed wsutil.ClosedError
	assert.ErrorAs(t, got.err, &closed)
	assert.Equal(t, ws.StatusNormalClosure, closed.Code)
}

func TestSession_WriteText(t *testing.T) {
	s, peer := pipeSession(t)

	go func() { _ = s.writeText([]byte("relayed")) }()

	data, op, err := wsutil.ReadServerData(peer)
	require.NoError(t, err)
	assert.Equal(t, ws.OpText, op)
	assert.Equal(t, "relayed", string(data))
}

func TestSession_CloseWith(t *testing.T) {
	s, peer := pipeSession(t)

	go s.closeWith(ws.StatusGoingAway, "relay closed")

	frame, err := ws.ReadFrame(peer)
	require.NoError(t, err)
	require.Equal(t, ws.OpClose, frame.Header.OpCode)

	code, reason := ws.ParseCloseFrameData(frame.Payload)
	assert.Equal(t, ws.StatusGoingAway, code)
	assert.Equal(t, "relay closed", reason)
}
