package chat

import "github.com/google/uuid"

// Peer is the server-side state of one connected client.
type Peer struct {
	// ID identifies the session in logs. Descriptors are reused by the OS,
	// so they are not enough for that.
	ID string

	// Tag is the multiplexer tag this peer was registered with. It is unique
	// for the table's lifetime and never zero.
	Tag uint64

	Conn   Conn
	Buffer Buffer

	closed bool
}

// Fd returns the peer's socket descriptor.
func (p *Peer) Fd() int {
	return p.Conn.Fd()
}

// MarkClosed records the transition to closed. It returns false if the peer
// was already closed, so teardown runs exactly once.
func (p *Peer) MarkClosed() bool {
	if p.closed {
		return false
	}
	p.closed = true
	return true
}

// Closed reports whether MarkClosed has been called.
func (p *Peer) Closed() bool {
	return p.closed
}

// PeerTable holds the live peers of a server.
//
// Removal swaps the last peer into the freed slot, so iteration order is
// not insertion order and carries no guarantee.
type PeerTable struct {
	peers []*Peer
	index map[uint64]int
	next  uint64
}

// NewPeerTable creates an empty table.
func NewPeerTable() *PeerTable {
	return &PeerTable{
		index: make(map[uint64]int),
	}
}

// Add creates a peer for conn and appends it to the table.
func (t *PeerTable) Add(conn Conn) *Peer {
	t.next++
	p := &Peer{
		ID:   uuid.New().String(),
		Tag:  t.next,
		Conn: conn,
	}
	t.index[p.Tag] = len(t.peers)
	t.peers = append(t.peers, p)
	return p
}

// Lookup finds a live peer by tag.
func (t *PeerTable) Lookup(tag uint64) (*Peer, bool) {
	i, ok := t.index[tag]
	if !ok {
		return nil, false
	}
	return t.peers[i], true
}

// Remove deletes p from the table. It returns false if p is not present.
func (t *PeerTable) Remove(p *Peer) bool {
	i, ok := t.index[p.Tag]
	if !ok {
		return false
	}
	last := len(t.peers) - 1
	if i != last {
		t.peers[i] = t.peers[last]
		t.index[t.peers[i].Tag] = i
	}
	t.peers[last] = nil
	t.peers = t.peers[:last]
	delete(t.index, p.Tag)
	return true
}

// Len returns the number of live peers.
func (t *PeerTable) Len() int {
	return len(t.peers)
}

// Each calls fn for every live peer. fn must not add or remove peers.
func (t *PeerTable) Each(fn func(*Peer)) {
	for _, p := range t.peers {
		fn(p)
	}
}

// Snapshot returns a copy of the live peers, safe to iterate while removing.
func (t *PeerTable) Snapshot() []*Peer {
	return append([]*Peer(nil), t.peers...)
}
