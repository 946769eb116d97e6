// Package ws provides a WebSocket client for the relay gateway.
package ws

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"

	"github.com/omochice/line-relay/internal/chat"
	"github.com/omochice/line-relay/pkg/protocol"
)

// Client represents a WebSocket relay client. Each text frame it sends
// becomes one line on the relay.
type Client struct {
	address  string
	log      logging.LeveledLogger
	conn     *websocket.Conn
	started  bool
	messages chan string
	mu       sync.RWMutex
	wmu      sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new Client instance
func New(address string) *Client {
	return NewWithLogger(address, logging.NewDefaultLoggerFactory())
}

// NewWithLogger creates a Client that logs through factory.
func NewWithLogger(address string, factory logging.LoggerFactory) *Client {
	return &Client{
		address:  address,
		log:      factory.NewLogger("ws-client"),
		messages: make(chan string, 10),
		done:     make(chan struct{}),
	}
}

// Connect establishes a WebSocket connection to the gateway. A Client
// connects at most once.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return chat.ErrAlreadyStarted
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.address, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	c.conn = conn
	c.started = true

	c.wg.Add(1)
	go c.receiveMessages(conn)

	return nil
}

// Disconnect closes the connection and waits for the receive loop to end
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.doneOnce.Do(func() {
		close(c.done)
	})

	if conn != nil {
		c.wmu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.wmu.Unlock()
		_ = conn.Close()
	}
	c.wg.Wait()
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Send sends text as one line. Text containing a newline is rejected.
func (c *Client) Send(text string) error {
	if err := protocol.Validate([]byte(text)); err != nil {
		return err
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected to server: %w", chat.ErrNotStarted)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Messages returns the channel of received lines. It is closed when the
// connection ends.
func (c *Client) Messages() <-chan string {
	return c.messages
}

func (c *Client) receiveMessages(conn *websocket.Conn) {
	defer c.wg.Done()
	defer close(c.messages)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				select {
				case <-c.done:
				default:
					c.log.Warnf("WebSocket error: %v", err)
				}
			}
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
				_ = conn.Close()
			}
			c.mu.Unlock()
			return
		}

		select {
		case c.messages <- string(data):
		case <-c.done:
			return
		}
	}
}
