package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Connection lifecycle. Transitions are strictly forward:
// Connecting -> Authenticated -> Active -> Closed, with Closed reachable
// from any state.
const (
	StateConnecting int32 = iota
	StateAuthenticated
	StateActive
	StateClosed
)

const (
	defaultWriteBufferSize = 100
	defaultWriteTimeout    = 5 * time.Second
)

// Config tunes per-connection write behavior. Zero values fall back to the
// package defaults.
type Config struct {
	WriteTimeout time.Duration
	BufferSize   int
}

// Connection wraps a websocket with a single writer goroutine. All outbound
// frames go through writeCh so concurrent senders never touch the socket
// directly. Identity fields are written once during authentication and read
// under the mutex afterwards.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration

	state atomic.Int32

	userID   string
	username string
	userType string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.RWMutex
}

// NewConnection wraps an upgraded websocket and starts its writer goroutine.
// A nil cfg uses the package defaults.
func NewConnection(conn *websocket.Conn, cfg *Config) *Connection {
	bufferSize := defaultWriteBufferSize
	writeTimeout := defaultWriteTimeout
	if cfg != nil {
		if cfg.BufferSize > 0 {
			bufferSize = cfg.BufferSize
		}
		if cfg.WriteTimeout > 0 {
			writeTimeout = cfg.WriteTimeout
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	c.state.Store(StateConnecting)

	go c.writeLoop()

	return c
}

// writeLoop is the only goroutine allowed to write to the socket.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON marshals v and queues it for the writer goroutine. Fails fast on
// a closed connection and times out when the buffer stays full.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// ReadMessage blocks on the next inbound frame.
func (c *Connection) ReadMessage() (int, []byte, error) {
	return c.conn.ReadMessage()
}

// Authenticate attaches the resolved identity and moves the connection to
// the authenticated state. Valid only once, from the connecting state.
func (c *Connection) Authenticate(userID, username, userType string) error {
	if !c.state.CompareAndSwap(StateConnecting, StateAuthenticated) {
		return ErrBadTransition
	}

	c.mu.Lock()
	c.userID = userID
	c.username = username
	c.userType = userType
	c.mu.Unlock()
	return nil
}

// Activate marks the connection ready for message traffic.
func (c *Connection) Activate() error {
	if !c.state.CompareAndSwap(StateAuthenticated, StateActive) {
		return ErrBadTransition
	}
	return nil
}

// State returns the current lifecycle state.
func (c *Connection) State() int32 {
	return c.state.Load()
}

// IsActive reports whether the connection accepts message traffic.
func (c *Connection) IsActive() bool {
	return c.state.Load() == StateActive
}

// Close shuts the connection down exactly once. Safe to call from any
// goroutine and any state.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(StateClosed)
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// Done is closed when the connection shuts down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Connection) UserType() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userType
}

// SetReadDeadline forwards to the underlying socket for keepalive handling.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetPongHandler forwards to the underlying socket.
func (c *Connection) SetPongHandler(h func(string) error) {
	c.conn.SetPongHandler(h)
}

// Ping sends a ping control frame. WriteControl is safe to call
// concurrently with the writer goroutine.
func (c *Connection) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}
