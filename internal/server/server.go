// Package server implements the relay server: a single-threaded reactor that
// accepts connections, frames incoming lines and rebroadcasts each one to
// every other connected peer.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pion/logging"
	"go.uber.org/multierr"

	"github.com/omochice/line-relay/internal/chat"
	"github.com/omochice/line-relay/internal/metrics"
	"github.com/omochice/line-relay/internal/poll"
	"github.com/omochice/line-relay/internal/transport/tcp"
	"github.com/omochice/line-relay/pkg/protocol"
)

// DefaultReadSize is the most bytes taken from a peer per read event.
const DefaultReadSize = 4096

// listenerTag marks the listening socket. Peer tags start at 1.
const listenerTag uint64 = 0

// Config configures a Server. The zero value is usable.
type Config struct {
	LoggerFactory logging.LoggerFactory
	Metrics       *metrics.Relay
	ReadSize      int
	MaxEvents     int
	Backlog       int
}

// Server is a relay server. All I/O happens inside Update; a Server must not
// be used from more than one goroutine at a time.
type Server struct {
	cfg      Config
	log      logging.LeveledLogger
	listener *tcp.Listener
	poller   *poll.Poller
	peers    *chat.PeerTable
	inbox    chat.Inbox
	local    chat.Buffer
}

// New creates a Server instance
func New(cfg Config) *Server {
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = DefaultReadSize
	}
	return &Server{
		cfg:   cfg,
		log:   cfg.LoggerFactory.NewLogger("relay-server"),
		peers: chat.NewPeerTable(),
	}
}

// Listen binds port on all IPv4 addresses and starts watching for
// connections. Port 0 picks an ephemeral port, see Port.
func (s *Server) Listen(port uint16) error {
	if s.listener != nil {
		return chat.ErrAlreadyStarted
	}

	ln, err := tcp.Listen(port, s.cfg.Backlog)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	poller, err := poll.New(s.cfg.MaxEvents)
	if err != nil {
		return multierr.Append(fmt.Errorf("failed to start server: %w", err), ln.Close())
	}

	if err := poller.Register(ln.Fd(), poll.Read, listenerTag); err != nil {
		return multierr.Combine(fmt.Errorf("failed to start server: %w", err), ln.Close(), poller.Close())
	}

	s.listener = ln
	s.poller = poller
	s.log.Infof("Server started on %s", ln.Addr())
	return nil
}

// Update waits up to timeout for readiness and dispatches every event:
// accepting one connection per listener event, reading and relaying frames
// from readable peers, and draining output to writable ones.
//
// It returns chat.StatusTimeout when nothing happened. Errors scoped to a
// single peer remove that peer and are not returned; the error result is
// reserved for multiplexer and listener failures. When the error is
// non-nil the status only describes events that were still dispatched.
func (s *Server) Update(timeout time.Duration) (chat.Status, error) {
	if s.listener == nil {
		return chat.StatusTimeout, chat.ErrNotStarted
	}

	events, err := s.poller.Wait(timeout)
	if err != nil {
		return chat.StatusTimeout, fmt.Errorf("failed to wait for events: %w", err)
	}
	if len(events) == 0 {
		return chat.StatusTimeout, nil
	}

	var errs error
	for _, ev := range events {
		if ev.Tag == listenerTag {
			errs = multierr.Append(errs, s.accept())
			continue
		}

		// A peer removed earlier in this batch no longer resolves, even if
		// its descriptor number was already reused.
		peer, ok := s.peers.Lookup(ev.Tag)
		if !ok {
			continue
		}
		if ev.Readable {
			s.readPeer(peer)
		}
		if ev.Writable && !peer.Closed() {
			s.writePeer(peer)
		}
	}

	return chat.StatusOK, errs
}

// PopNext removes and returns the oldest message received from any peer.
func (s *Server) PopNext() (protocol.Message, bool) {
	return s.inbox.Pop()
}

// Feed queues server-authored bytes. Every complete line is sent to all
// peers; the server's own inbox does not receive it.
func (s *Server) Feed(data []byte) error {
	if s.listener == nil {
		return chat.ErrNotStarted
	}
	s.local.Append(data)
	for _, msg := range s.local.Frames() {
		s.broadcast(msg, nil)
	}
	return nil
}

// Run calls Update until ctx is done, handing every popped message to
// deliver. Update errors are logged; Run only returns early if the server
// is closed underneath it.
func (s *Server) Run(ctx context.Context, tick time.Duration, deliver func(protocol.Message)) error {
	for ctx.Err() == nil {
		if _, err := s.Update(tick); err != nil {
			if errors.Is(err, chat.ErrNotStarted) {
				return err
			}
			s.log.Errorf("Update failed: %v", err)
		}
		for {
			msg, ok := s.PopNext()
			if !ok {
				break
			}
			if deliver != nil {
				deliver(msg)
			}
		}
	}
	return nil
}

// Events returns the interest the server currently needs: read while
// listening, plus write when any peer has output pending.
func (s *Server) Events() poll.Interest {
	if s.listener == nil {
		return 0
	}
	interest := poll.Read
	s.peers.Each(func(p *chat.Peer) {
		if p.Buffer.Pending() > 0 {
			interest |= poll.Write
		}
	})
	return interest
}

// Descriptor returns the multiplexer descriptor, which becomes readable
// whenever Update has work to do.
func (s *Server) Descriptor() (int, error) {
	if s.poller == nil {
		return -1, chat.ErrNotStarted
	}
	return s.poller.Fd()
}

// Port returns the bound port, or 0 before Listen.
func (s *Server) Port() uint16 {
	if s.listener == nil {
		return 0
	}
	return s.listener.Port()
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr()
}

// PeerCount returns the number of connected peers.
func (s *Server) PeerCount() int {
	return s.peers.Len()
}

// Close disconnects every peer and releases the listener and the
// multiplexer. Messages already received stay available to PopNext.
// The server may Listen again afterwards.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}

	var err error
	for _, p := range s.peers.Snapshot() {
		err = multierr.Append(err, s.removePeer(p))
	}
	err = multierr.Combine(err, s.listener.Close(), s.poller.Close())

	s.listener = nil
	s.poller = nil
	s.local.Release()
	s.log.Info("Server stopped")
	return err
}

func (s *Server) accept() error {
	conn, err := s.listener.Accept()
	if err == tcp.ErrWouldBlock {
		return nil
	}
	if err != nil {
		s.log.Errorf("Failed to accept connection: %v", err)
		return fmt.Errorf("failed to accept connection: %w", err)
	}

	peer := s.peers.Add(conn)
	if err := s.poller.Register(conn.Fd(), poll.Read, peer.Tag); err != nil {
		s.peers.Remove(peer)
		return multierr.Append(fmt.Errorf("failed to register connection: %w", err), conn.Close())
	}

	s.cfg.Metrics.PeerAccepted(s.peers.Len())
	s.log.Infof("Peer %s connected from %s", peer.ID, conn.RemoteAddr())
	return nil
}

func (s *Server) readPeer(p *chat.Peer) {
	n, err := p.Buffer.Fill(p.Conn, s.cfg.ReadSize)
	if err == tcp.ErrWouldBlock {
		return
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.log.Infof("Peer %s disconnected", p.ID)
		} else {
			s.log.Warnf("Error reading from peer %s: %v", p.ID, err)
		}
		s.closePeer(p)
		return
	}

	msgs := p.Buffer.Frames()
	s.cfg.Metrics.Read(n, len(msgs))
	for _, msg := range msgs {
		s.log.Debugf("Message from peer %s: %d bytes", p.ID, msg.Len())
		s.inbox.Push(msg)
		s.broadcast(msg, p)
	}
}

func (s *Server) writePeer(p *chat.Peer) {
	n, err := p.Buffer.Flush(p.Conn)
	s.cfg.Metrics.Written(n)
	if err != nil {
		s.log.Warnf("Failed to send to peer %s: %v", p.ID, err)
		s.closePeer(p)
		return
	}
	if p.Buffer.Pending() == 0 {
		if err := s.poller.Modify(p.Fd(), poll.Read); err != nil {
			s.log.Warnf("Failed to disarm write interest for peer %s: %v", p.ID, err)
			s.closePeer(p)
		}
	}
}

// broadcast queues msg to every peer except sender, arming write interest
// on peers whose output was empty. sender may be nil.
func (s *Server) broadcast(msg protocol.Message, sender *chat.Peer) {
	var failed []*chat.Peer
	copies := 0

	s.peers.Each(func(p *chat.Peer) {
		if p == sender {
			return
		}
		copies++
		if !p.Buffer.Feed(msg) {
			return
		}
		if err := s.poller.Modify(p.Fd(), poll.Read|poll.Write); err != nil {
			s.log.Warnf("Failed to arm write interest for peer %s: %v", p.ID, err)
			failed = append(failed, p)
		}
	})

	s.cfg.Metrics.Relayed(copies)
	for _, p := range failed {
		s.closePeer(p)
	}
}

func (s *Server) closePeer(p *chat.Peer) {
	if err := s.removePeer(p); err != nil {
		s.log.Debugf("Error releasing peer %s: %v", p.ID, err)
	}
}

// removePeer deregisters, closes and forgets p. Only the first call for a
// peer does anything.
func (s *Server) removePeer(p *chat.Peer) error {
	if !p.MarkClosed() {
		return nil
	}
	err := multierr.Combine(s.poller.Unregister(p.Fd()), p.Conn.Close())
	p.Buffer.Release()
	s.peers.Remove(p)
	s.cfg.Metrics.PeerRemoved(s.peers.Len())
	return err
}
