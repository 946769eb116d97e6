// Package client implements the relay client: a single-connection reactor
// that sends raw bytes to the server and frames the lines it receives.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pion/logging"
	"go.uber.org/multierr"

	"github.com/omochice/line-relay/internal/chat"
	"github.com/omochice/line-relay/internal/poll"
	"github.com/omochice/line-relay/internal/transport/tcp"
	"github.com/omochice/line-relay/pkg/protocol"
)

// DefaultReadSize is the most bytes taken from the server per read event.
const DefaultReadSize = 4096

const connTag uint64 = 1

// Config configures a Client. The zero value is usable.
type Config struct {
	LoggerFactory logging.LoggerFactory
	ReadSize      int
}

// Client is a relay client. All I/O happens inside Update; a Client must
// not be used from more than one goroutine at a time.
type Client struct {
	cfg    Config
	log    logging.LeveledLogger
	conn   *tcp.Conn
	poller *poll.Poller
	buf    chat.Buffer
	inbox  chat.Inbox
	state  chat.State
}

// New creates a new Client instance
func New(cfg Config) *Client {
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = DefaultReadSize
	}
	return &Client{
		cfg: cfg,
		log: cfg.LoggerFactory.NewLogger("relay-client"),
	}
}

// Connect starts connecting to address, given as "host:port".
func (c *Client) Connect(address string) error {
	return c.ConnectContext(context.Background(), address)
}

// ConnectContext is Connect with a context bounding name resolution.
// The connect itself does not block: the client stays Connecting until
// Update observes the first readiness event on the socket.
func (c *Client) ConnectContext(ctx context.Context, address string) error {
	if c.state != chat.StateDisconnected {
		return chat.ErrAlreadyStarted
	}

	host, port, err := protocol.ParseAddress(address)
	if err != nil {
		return chat.NewSystemError("parse address", err)
	}

	conn, connected, err := tcp.Dial(ctx, host, port)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	poller, err := poll.New(4)
	if err != nil {
		return multierr.Append(fmt.Errorf("failed to connect to server: %w", err), conn.Close())
	}

	// Write readiness reports completion of a pending connect.
	interest := poll.Read | poll.Write
	if connected {
		interest = poll.Read
	}
	if err := poller.Register(conn.Fd(), interest, connTag); err != nil {
		return multierr.Combine(fmt.Errorf("failed to connect to server: %w", err), poller.Close(), conn.Close())
	}

	c.conn = conn
	c.poller = poller
	c.state = chat.StateConnecting
	if connected {
		c.state = chat.StateConnected
	}
	c.log.Infof("Connecting to %s", conn.RemoteAddr())
	return nil
}

// Feed queues data for the server unchanged; callers supply their own
// delimiters. Empty input is a no-op.
func (c *Client) Feed(data []byte) error {
	if !c.live() {
		return chat.ErrNotStarted
	}
	if len(data) == 0 {
		return nil
	}
	if c.buf.Write(data) && c.state == chat.StateConnected {
		if err := c.poller.Modify(c.conn.Fd(), poll.Read|poll.Write); err != nil {
			return fmt.Errorf("failed to arm write interest: %w", err)
		}
	}
	return nil
}

// Update waits up to timeout for readiness on the connection, reading
// complete lines into the inbox and draining queued output.
//
// StatusClosed means the server closed the connection or an I/O error
// ended it; the error, if any, says which. Once closed, Update keeps
// returning StatusClosed with a nil error.
func (c *Client) Update(timeout time.Duration) (chat.Status, error) {
	switch c.state {
	case chat.StateDisconnected:
		return chat.StatusTimeout, chat.ErrNotStarted
	case chat.StateClosed:
		return chat.StatusClosed, nil
	}

	events, err := c.poller.Wait(timeout)
	if err != nil {
		return chat.StatusTimeout, fmt.Errorf("failed to wait for events: %w", err)
	}
	if len(events) == 0 {
		return chat.StatusTimeout, nil
	}

	for _, ev := range events {
		if c.state == chat.StateConnecting {
			if err := c.finishConnect(); err != nil {
				return chat.StatusClosed, multierr.Append(err, c.shutdown())
			}
		}
		if ev.Readable {
			if status, err := c.read(); status == chat.StatusClosed {
				return status, err
			}
		}
		if ev.Writable {
			if status, err := c.write(); status == chat.StatusClosed {
				return status, err
			}
		}
	}
	return chat.StatusOK, nil
}

// PopNext removes and returns the oldest message received from the server.
func (c *Client) PopNext() (protocol.Message, bool) {
	return c.inbox.Pop()
}

// Events returns the interest the client currently needs.
func (c *Client) Events() poll.Interest {
	switch c.state {
	case chat.StateConnecting:
		return poll.Read | poll.Write
	case chat.StateConnected:
		if c.buf.Pending() > 0 {
			return poll.Read | poll.Write
		}
		return poll.Read
	}
	return 0
}

// Descriptor returns the socket descriptor, or -1 without a connection.
func (c *Client) Descriptor() int {
	if c.conn == nil {
		return -1
	}
	return c.conn.Fd()
}

// State returns the connection state.
func (c *Client) State() chat.State {
	return c.state
}

// Close releases the connection. Messages already received stay
// available to PopNext.
func (c *Client) Close() error {
	if !c.live() {
		return nil
	}
	c.log.Info("Disconnecting")
	return c.shutdown()
}

func (c *Client) live() bool {
	return c.state == chat.StateConnecting || c.state == chat.StateConnected
}

func (c *Client) finishConnect() error {
	if err := c.conn.SocketError(); err != nil {
		c.log.Warnf("Failed to connect to %s: %v", c.conn.RemoteAddr(), err)
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	c.state = chat.StateConnected
	c.log.Infof("Connected to %s", c.conn.RemoteAddr())

	if c.buf.Pending() == 0 {
		if err := c.poller.Modify(c.conn.Fd(), poll.Read); err != nil {
			return fmt.Errorf("failed to disarm write interest: %w", err)
		}
	}
	return nil
}

func (c *Client) read() (chat.Status, error) {
	_, err := c.buf.Fill(c.conn, c.cfg.ReadSize)
	if err == tcp.ErrWouldBlock {
		return chat.StatusOK, nil
	}
	if errors.Is(err, io.EOF) {
		c.log.Info("Server closed the connection")
		return chat.StatusClosed, c.shutdown()
	}
	if err != nil {
		c.log.Warnf("Error reading from server: %v", err)
		return chat.StatusClosed, multierr.Append(err, c.shutdown())
	}

	c.inbox.Push(c.buf.Frames()...)
	return chat.StatusOK, nil
}

func (c *Client) write() (chat.Status, error) {
	if _, err := c.buf.Flush(c.conn); err != nil {
		c.log.Warnf("Failed to send to server: %v", err)
		return chat.StatusClosed, multierr.Append(err, c.shutdown())
	}
	if c.buf.Pending() == 0 {
		if err := c.poller.Modify(c.conn.Fd(), poll.Read); err != nil {
			return chat.StatusClosed, multierr.Append(err, c.shutdown())
		}
	}
	return chat.StatusOK, nil
}

// shutdown releases the connection and the poller and makes the client
// Closed. It runs once per connection.
func (c *Client) shutdown() error {
	err := multierr.Combine(c.poller.Close(), c.conn.Close())
	c.poller = nil
	c.conn = nil
	c.buf.Release()
	c.state = chat.StateClosed
	return err
}
