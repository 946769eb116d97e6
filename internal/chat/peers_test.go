package chat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/line-relay/internal/chat"
)

func TestPeerTable_Add(t *testing.T) {
	table := chat.NewPeerTable()

	a := table.Add(newMockConn(5))
	b := table.Add(newMockConn(6))

	assert.Equal(t, 2, table.Len())
	assert.NotZero(t, a.Tag)
	assert.NotEqual(t, a.Tag, b.Tag)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 5, a.Fd())

	got, ok := table.Lookup(b.Tag)
	require.True(t, ok)
	assert.Same(t, b, got)
}

func TestPeerTable_Remove_SwapsWithLast(t *testing.T) {
	table := chat.NewPeerTable()
	a := table.Add(newMockConn(5))
	b := table.Add(newMockConn(6))
	c := table.Add(newMockConn(7))

	require.True(t, table.Remove(a))

	assert.Equal(t, 2, table.Len())
	_, ok := table.Lookup(a.Tag)
	assert.False(t, ok)

	// c moved into a's slot; both survivors must still resolve.
	for _, p := range []*chat.Peer{b, c} {
		got, ok := table.Lookup(p.Tag)
		require.True(t, ok)
		assert.Same(t, p, got)
	}
	assert.Equal(t, []*chat.Peer{c, b}, table.Snapshot())
}

func TestPeerTable_Remove_Once(t *testing.T) {
	table := chat.NewPeerTable()
	a := table.Add(newMockConn(5))

	assert.True(t, table.Remove(a))
	assert.False(t, table.Remove(a))
	assert.Zero(t, table.Len())
}

func TestPeerTable_TagsAreNotReused(t *testing.T) {
	table := chat.NewPeerTable()
	a := table.Add(newMockConn(5))
	table.Remove(a)

	// Same descriptor number, new registration.
	b := table.Add(newMockConn(5))

	assert.NotEqual(t, a.Tag, b.Tag)
	_, ok := table.Lookup(a.Tag)
	assert.False(t, ok, "stale tag must not resolve to the new peer")
}

func TestPeerTable_Each(t *testing.T) {
	table := chat.NewPeerTable()
	for fd := 10; fd < 13; fd++ {
		table.Add(newMockConn(fd))
	}

	seen := map[int]bool{}
	table.Each(func(p *chat.Peer) {
		seen[p.Fd()] = true
	})

	assert.Equal(t, map[int]bool{10: true, 11: true, 12: true}, seen)
}

func TestPeer_MarkClosed(t *testing.T) {
	table := chat.NewPeerTable()
	p := table.Add(newMockConn(5))

	assert.False(t, p.Closed())
	assert.True(t, p.MarkClosed())
	assert.False(t, p.MarkClosed())
	assert.True(t, p.Closed())
}
