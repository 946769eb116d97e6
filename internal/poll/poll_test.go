package poll_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/omochice/line-relay/internal/chat"
	"github.com/omochice/line-relay/internal/poll"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func newPoller(t *testing.T) *poll.Poller {
	t.Helper()
	p, err := poll.New(0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPoller_WaitTimeout(t *testing.T) {
	p := newPoller(t)
	a, _ := socketPair(t)
	require.NoError(t, p.Register(a, poll.Read, 7))

	start := time.Now()
	events, err := p.Wait(50 * time.Millisecond)

	require.NoError(t, err)
	assert.Empty(t, events)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPoller_Readable(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)
	require.NoError(t, p.Register(a, poll.Read, 7))

	_, err := unix.Write(b, []byte("x"))
	require.NoError(t, err)

	events, err := p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, poll.Event{Fd: a, Tag: 7, Readable: true}, events[0])

	// Level-triggered: still reported until the byte is read.
	events, err = p.Wait(0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestPoller_WriteInterestArmDisarm(t *testing.T) {
	p := newPoller(t)
	a, _ := socketPair(t)
	require.NoError(t, p.Register(a, poll.Read, 1))

	events, err := p.Wait(0)
	require.NoError(t, err)
	assert.Empty(t, events, "an idle socket is not reported without write interest")

	require.NoError(t, p.Modify(a, poll.Read|poll.Write))
	events, err = p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Writable)
	assert.False(t, events[0].Readable)

	require.NoError(t, p.Modify(a, poll.Read))
	events, err = p.Wait(0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPoller_HangupIsReadable(t *testing.T) {
	p := newPoller(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])

	require.NoError(t, p.Register(fds[0], poll.Read, 3))
	require.NoError(t, unix.Close(fds[1]))

	events, err := p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Readable)

	n, err := unix.Read(fds[0], make([]byte, 1))
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestPoller_Unregister(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)
	require.NoError(t, p.Register(a, poll.Read, 1))
	require.NoError(t, p.Register(b, poll.Read, 2))

	_, err := unix.Write(b, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, p.Unregister(a))

	events, err := p.Wait(0)
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.ErrorIs(t, p.Unregister(a), chat.ErrSystem)
}

func TestPoller_TagsFollowDescriptors(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)
	c, d := socketPair(t)
	require.NoError(t, p.Register(a, poll.Read, 10))
	require.NoError(t, p.Register(c, poll.Read, 20))
	require.NoError(t, p.Unregister(a))

	_, err := unix.Write(d, []byte("x"))
	require.NoError(t, err)
	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)

	events, err := p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, c, events[0].Fd)
	assert.Equal(t, uint64(20), events[0].Tag)
}

func TestPoller_RegisterTwice(t *testing.T) {
	p := newPoller(t)
	a, _ := socketPair(t)
	require.NoError(t, p.Register(a, poll.Read, 1))

	assert.ErrorIs(t, p.Register(a, poll.Read, 1), chat.ErrSystem)
}

func TestPoller_Close(t *testing.T) {
	p, err := poll.New(4)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.NoError(t, p.Close(), "Close is idempotent")

	_, err = p.Wait(0)
	assert.ErrorIs(t, err, chat.ErrSystem)
}

func TestPoller_Fd(t *testing.T) {
	p := newPoller(t)

	fd, err := p.Fd()
	if runtime.GOOS == "linux" {
		require.NoError(t, err)
		assert.GreaterOrEqual(t, fd, 0)
		return
	}
	assert.ErrorIs(t, err, chat.ErrNotImplemented)
}

func TestInterest_String(t *testing.T) {
	assert.Equal(t, "NONE", poll.Interest(0).String())
	assert.Equal(t, "READ", poll.Read.String())
	assert.Equal(t, "WRITE", poll.Write.String())
	assert.Equal(t, "READ|WRITE", (poll.Read | poll.Write).String())
}
