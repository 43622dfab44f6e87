package gateway

import (
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
)

const (
	// maxMessageSize is the maximum size in bytes of a single inbound WebSocket message.
	maxMessageSize = 4096

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// sendBufferSize is the per-client outbound frame buffer. Frames beyond this
	// are dropped rather than buffered without bound.
	sendBufferSize = 256
)

// Conn is the subset of the WebSocket connection used by the gateway.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// State is the per-connection record held in the registry. A client acquires a
// State on its first successful auth; timestamps are milliseconds since epoch.
type State struct {
	UUID            string
	Name            string
	AccountType     string
	Roles           []string
	ConnectedAt     int64
	LastSeen        int64
	LastKeepaliveAt int64
	IsAlive         bool
	IP              string
}

// Client is a single WebSocket connection. Each client runs two goroutines
// (readPump and writePump) and communicates with the Hub through its send
// channel and the registry.
type Client struct {
	hub  *Hub
	conn Conn
	log  zerolog.Logger
	ip   string

	// send carries serialised frames to the write pump. sendMu guards the
	// closed flag so no frame is enqueued after the channel is closed.
	send   chan []byte
	sendMu sync.RWMutex
	closed bool

	// state is nil until the first successful auth. Guarded by mu.
	mu    sync.RWMutex
	state *State
}

func newClient(hub *Hub, conn Conn, ip string, logger zerolog.Logger) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		log:  logger,
		ip:   ip,
		send: make(chan []byte, sendBufferSize),
	}
}

// State returns a copy of the connection state and whether the client has authed.
func (c *Client) State() (State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == nil {
		return State{}, false
	}
	return *c.state, true
}

// Authed returns whether the client has completed auth at least once.
func (c *Client) Authed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state != nil
}

func (c *Client) setState(s *State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// touch refreshes the liveness markers after a successfully handled frame.
func (c *Client) touch(nowMS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return
	}
	if nowMS > c.state.LastSeen {
		c.state.LastSeen = nowMS
	}
	c.state.IsAlive = true
}

func (c *Client) setRoles(roles []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return
	}
	c.state.Roles = roles
}

func (c *Client) setKeepalive(nowMS int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return
	}
	c.state.LastKeepaliveAt = nowMS
}

func (c *Client) markNotAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return
	}
	c.state.IsAlive = false
}

// IsOpen reports whether frames can still be enqueued for this client.
func (c *Client) IsOpen() bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	return !c.closed
}

// enqueue hands a serialised frame to the write pump. It returns false when the
// client is closed; a full buffer drops the frame rather than blocking.
func (c *Client) enqueue(msg []byte) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.log.Warn().Msg("Send buffer full, dropping frame")
		return false
	}
}

// closeSend marks the client closed and releases the write pump. Safe to call
// from multiple goroutines; only the first call closes the channel.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// closeWithCode sends a WebSocket close frame with the given code and reason,
// then closes the underlying connection.
func (c *Client) closeWithCode(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.log.Debug().Err(err).Int("code", code).Msg("Failed to send close frame")
	}
	c.closeSend()
	_ = c.conn.Close()
}

// readPump reads frames from the connection and dispatches them sequentially. It
// runs in its own goroutine and owns connection teardown when the peer goes away.
func (c *Client) readPump() {
	defer func() {
		c.closeSend()
		c.hub.handleDisconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
		c.hub.dispatch(c, message)
	}
}

// writePump writes frames from the send channel to the connection. It exits when
// the send channel is closed or a write fails.
func (c *Client) writePump() {
	defer func() {
		c.closeSend()
		_ = c.conn.Close()
	}()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}
}
