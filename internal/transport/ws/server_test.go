package ws_test

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/line-relay/internal/server"
	"github.com/omochice/line-relay/internal/transport/ws"
)

// startRelay runs a relay server on an ephemeral port until the test ends.
func startRelay(t *testing.T) string {
	t.Helper()
	srv := server.New(server.Config{})
	require.NoError(t, srv.Listen(0))
	addr := "127.0.0.1:" + strconv.Itoa(int(srv.Port()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx, 5*time.Millisecond, nil)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = srv.Close()
	})
	return addr
}

func startGateway(t *testing.T, relayAddr string) *ws.Gateway {
	t.Helper()
	gw := ws.New(relayAddr, ws.Config{})

	go func() {
		_ = gw.Start("127.0.0.1:0")
	}()
	t.Cleanup(gw.Stop)

	require.Eventually(t, func() bool { return gw.Addr() != "" }, time.Second, 10*time.Millisecond)
	return gw
}

func dial(t *testing.T, gw *ws.Gateway) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+gw.Addr()+"/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, messageType)
	return string(data)
}

func TestGateway_Start(t *testing.T) {
	gw := startGateway(t, startRelay(t))

	addr := gw.Addr()
	assert.True(t, strings.HasPrefix(addr, "127.0.0.1:"), "Addr() = %q", addr)

	dial(t, gw)
	assert.Eventually(t, func() bool { return gw.SessionCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestGateway_Relay(t *testing.T) {
	gw := startGateway(t, startRelay(t))
	a := dial(t, gw)
	b := dial(t, gw)
	require.Eventually(t, func() bool { return gw.SessionCount() == 2 }, time.Second, 10*time.Millisecond)

	// Give both relay clients time to finish connecting.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("hello")))
	assert.Equal(t, "hello", readText(t, b))

	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte("hi back")))
	assert.Equal(t, "hi back", readText(t, a))
}

func TestGateway_RelaysFromTCPPeers(t *testing.T) {
	relayAddr := startRelay(t)
	gw := startGateway(t, relayAddr)
	browser := dial(t, gw)
	require.Eventually(t, func() bool { return gw.SessionCount() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	peer, err := net.Dial("tcp", relayAddr)
	require.NoError(t, err)
	defer peer.Close()

	time.Sleep(100 * time.Millisecond)

	_, err = peer.Write([]byte("from tcp\n"))
	require.NoError(t, err)
	assert.Equal(t, "from tcp", readText(t, browser))
}

func TestGateway_DropsFramesWithDelimiter(t *testing.T) {
	gw := startGateway(t, startRelay(t))
	a := dial(t, gw)
	b := dial(t, gw)
	require.Eventually(t, func() bool { return gw.SessionCount() == 2 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("two\nlines")))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("one line")))

	assert.Equal(t, "one line", readText(t, b))
}

func TestGateway_RelayUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	relayAddr := ln.Addr().String()
	require.NoError(t, ln.Close())

	gw := startGateway(t, relayAddr)
	conn := dial(t, gw)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Contains(t, []int{websocket.CloseGoingAway, websocket.CloseInternalServerErr}, closeErr.Code)

	assert.Eventually(t, func() bool { return gw.SessionCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestGateway_Stop(t *testing.T) {
	gw := ws.New(startRelay(t), ws.Config{})

	errChan := make(chan error, 1)
	go func() {
		errChan <- gw.Start("127.0.0.1:0")
	}()
	require.Eventually(t, func() bool { return gw.Addr() != "" }, time.Second, 10*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+gw.Addr()+"/", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return gw.SessionCount() == 1 }, time.Second, 10*time.Millisecond)

	gw.Stop()

	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Gateway did not stop in time")
	}
	assert.Zero(t, gw.SessionCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)

	_, _, err = websocket.DefaultDialer.Dial("ws://"+gw.Addr()+"/", nil)
	assert.Error(t, err, "expected error after stop")
}
