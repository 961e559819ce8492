// Package wsconn provides a WebSocket client with reconnection, used by the reserve feed.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sugawarayuuta/sonnet"

	"github.com/fd1az/cfmm-arb/internal/logger"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

var (
	ErrClosed       = errors.New("wsconn: client closed")
	ErrNotConnected = errors.New("wsconn: not connected")
)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	Logger         logger.LoggerInterface
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

// MessageHandler receives every inbound message.
type MessageHandler func(ctx context.Context, msg []byte)

// StateHandler is notified on every state transition.
type StateHandler func(state State, err error)

// Client is a WebSocket client that reconnects with exponential backoff after read failures.
type Client struct {
	config Config
	log    logger.LoggerInterface

	mu        sync.RWMutex
	conn      *websocket.Conn
	state     State
	onMessage MessageHandler
	onState   StateHandler

	writeMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a new WebSocket client.
func New(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("wsconn: url is required")
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config: config,
		log:    log.With("component", "wsconn", "name", config.Name),
		state:  StateDisconnected,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// OnMessage sets the inbound message handler. Set it before Connect.
func (c *Client) OnMessage(h MessageHandler) {
	c.mu.Lock()
	c.onMessage = h
	c.mu.Unlock()
}

// OnStateChange sets the state transition handler. Set it before Connect.
func (c *Client) OnStateChange(h StateHandler) {
	c.mu.Lock()
	c.onState = h
	c.mu.Unlock()
}

// Connect dials the server and starts the read loop. A failed initial dial is returned
// to the caller and does not trigger reconnection.
func (c *Client) Connect(ctx context.Context) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	if err := c.dial(ctx); err != nil {
		return err
	}
	c.startLoops()
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	c.setState(StateConnecting, nil)

	conn, _, err := websocket.Dial(ctx, c.config.URL, nil)
	if err != nil {
		err = fmt.Errorf("wsconn: dial %s: %w", c.config.URL, err)
		c.setState(StateDisconnected, err)
		return err
	}
	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateConnected, nil)
	return nil
}

func (c *Client) startLoops() {
	c.wg.Add(1)
	go c.readLoop()
	if c.config.PingInterval > 0 {
		c.wg.Add(1)
		go c.pingLoop()
	}
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		conn := c.currentConn()
		if conn == nil {
			return
		}
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Warn(c.ctx, "read failed", "error", err)
			_ = conn.CloseNow()
			if !c.reconnect(err) {
				return
			}
			continue
		}

		c.mu.RLock()
		h := c.onMessage
		c.mu.RUnlock()
		if h != nil {
			h(c.ctx, data)
		}
	}
}

// reconnect retries with exponential backoff. It returns false when the client is closed
// or MaxReconnects is exhausted.
func (c *Client) reconnect(cause error) bool {
	c.setState(StateReconnecting, cause)

	backoff := c.config.InitialBackoff
	for attempt := 1; c.config.MaxReconnects == 0 || attempt <= c.config.MaxReconnects; attempt++ {
		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(backoff):
		}

		err := c.dial(c.ctx)
		if err == nil {
			c.log.Info(c.ctx, "reconnected", "attempt", attempt)
			return true
		}
		c.log.Warn(c.ctx, "reconnect failed", "attempt", attempt, "error", err)

		backoff *= 2
		if backoff > c.config.MaxBackoff {
			backoff = c.config.MaxBackoff
		}
		c.setState(StateReconnecting, cause)
	}

	c.setState(StateDisconnected, cause)
	return false
}

func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			conn := c.currentConn()
			if conn == nil || !c.IsConnected() {
				continue
			}
			timeout := c.config.PongTimeout
			if timeout <= 0 {
				timeout = c.config.PingInterval
			}
			ctx, cancel := context.WithTimeout(c.ctx, timeout)
			if err := conn.Ping(ctx); err != nil && c.ctx.Err() == nil {
				c.log.Warn(c.ctx, "ping failed", "error", err)
				_ = conn.CloseNow()
			}
			cancel()
		}
	}
}

// Send writes a text message. Concurrent callers are serialized.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	conn := c.currentConn()
	if conn == nil || !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.WriteTimeout)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("wsconn: write: %w", err)
	}
	return nil
}

// SendJSON marshals v and sends it as a text message.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	data, err := sonnet.Marshal(v)
	if err != nil {
		return fmt.Errorf("wsconn: marshal: %w", err)
	}
	return c.Send(ctx, data)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the client is currently connected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Close stops the loops and closes the connection. It is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()

		if conn := c.currentConn(); conn != nil {
			if cerr := conn.Close(websocket.StatusNormalClosure, "closing"); cerr != nil {
				// Peer may already be gone; a forced close is enough.
				_ = conn.CloseNow()
			}
		}
		c.wg.Wait()
		c.setState(StateClosed, nil)
	})
	return nil
}

func (c *Client) currentConn() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Client) setState(state State, err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = state
	h := c.onState
	c.mu.Unlock()

	if h != nil {
		h(state, err)
	}
}
