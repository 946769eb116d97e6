package ws

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/pion/logging"

	"github.com/omochice/line-relay/internal/chat"
	"github.com/omochice/line-relay/internal/client"
	"github.com/omochice/line-relay/pkg/protocol"
)

// DefaultTick bounds how long a session waits on its relay client before
// checking for new browser frames.
const DefaultTick = 10 * time.Millisecond

// Config configures a Gateway. The zero value is usable.
type Config struct {
	LoggerFactory logging.LoggerFactory
	Tick          time.Duration
}

// Gateway accepts WebSocket connections and relays them onto a line relay
// server at relayAddr.
type Gateway struct {
	relayAddr string
	cfg       Config
	log       logging.LeveledLogger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	sessions map[*session]struct{}
	quit     chan struct{}
	stopped  bool
	wg       sync.WaitGroup
}

// New creates a Gateway relaying to relayAddr, given as "host:port".
func New(relayAddr string, cfg Config) *Gateway {
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	return &Gateway{
		relayAddr: relayAddr,
		cfg:       cfg,
		log:       cfg.LoggerFactory.NewLogger("ws-gateway"),
		sessions:  make(map[*session]struct{}),
		quit:      make(chan struct{}),
	}
}

// Start listens on address and serves until Stop is called.
func (g *Gateway) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}
	return g.Serve(listener)
}

// Serve accepts WebSocket upgrades on listener until Stop is called.
func (g *Gateway) Serve(listener net.Listener) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", g.handleWebSocket)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return listener.Close()
	}
	g.listener = listener
	g.server = srv
	g.mu.Unlock()

	g.log.Infof("WebSocket gateway started on %s, relaying to %s", listener.Addr(), g.relayAddr)

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop closes the listener, ends every session and waits for them.
func (g *Gateway) Stop() {
	g.mu.Lock()
	if !g.stopped {
		g.stopped = true
		close(g.quit)
	}
	srv := g.server
	g.mu.Unlock()

	if srv != nil {
		_ = srv.Close()
	}
	g.wg.Wait()
}

// Addr returns the listening address
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener != nil {
		return g.listener.Addr().String()
	}
	return ""
}

// SessionCount returns the number of live WebSocket sessions.
func (g *Gateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		g.log.Warnf("Failed to upgrade connection: %v", err)
		return
	}

	relay := client.New(client.Config{LoggerFactory: g.cfg.LoggerFactory})
	sess := newSession(conn, relay)

	if err := relay.Connect(g.relayAddr); err != nil {
		g.log.Errorf("Session %s: failed to reach relay: %v", sess.id, err)
		sess.closeWith(ws.StatusInternalServerError, "relay unavailable")
		_ = conn.Close()
		return
	}

	if !g.add(sess) {
		sess.closeWith(ws.StatusGoingAway, "gateway stopping")
		_ = relay.Close()
		_ = conn.Close()
		return
	}
	defer g.remove(sess)

	g.log.Infof("Session %s opened from %s", sess.id, sess.remoteAddr())
	g.pump(sess)
	g.log.Infof("Session %s closed", sess.id)
}

func (g *Gateway) add(sess *session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	g.sessions[sess] = struct{}{}
	g.wg.Add(1)
	return true
}

func (g *Gateway) remove(sess *session) {
	g.mu.Lock()
	delete(g.sessions, sess)
	g.mu.Unlock()
	g.wg.Done()
}

// pump runs a session until the browser or the relay goes away. Browser
// frames arrive from a reader goroutine; the relay client is driven here.
func (g *Gateway) pump(sess *session) {
	frames := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})

	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			data, err := sess.readData()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- data:
			case <-done:
				return
			}
		}
	}()

	defer func() {
		close(done)
		_ = sess.relay.Close()
		_ = sess.conn.Close()
		readers.Wait()
	}()

	for {
		select {
		case <-g.quit:
			sess.closeWith(ws.StatusGoingAway, "gateway stopping")
			return
		case err := <-readErr:
			g.log.Debugf("Session %s: read ended: %v", sess.id, err)
			return
		case data := <-frames:
			g.forward(sess, data)
		default:
		}

		status, err := sess.relay.Update(g.cfg.Tick)
		if err != nil {
			g.log.Warnf("Session %s: relay error: %v", sess.id, err)
		}
		if status == chat.StatusClosed {
			sess.closeWith(ws.StatusGoingAway, "relay closed")
			return
		}

		for {
			msg, ok := sess.relay.PopNext()
			if !ok {
				break
			}
			if err := sess.writeText(msg.Payload); err != nil {
				g.log.Debugf("Session %s: write failed: %v", sess.id, err)
				return
			}
		}
	}
}

// forward sends one browser frame to the relay as a single line.
func (g *Gateway) forward(sess *session, data []byte) {
	if len(data) == 0 {
		return
	}
	if err := protocol.Validate(data); err != nil {
		g.log.Warnf("Session %s: dropping frame: %v", sess.id, err)
		return
	}
	if err := sess.relay.Feed(protocol.Frame(data)); err != nil {
		g.log.Warnf("Session %s: failed to queue frame: %v", sess.id, err)
	}
}
