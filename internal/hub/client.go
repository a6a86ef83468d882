package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JulienCr/obs-live-suite-sub002/internal/config"
	"github.com/JulienCr/obs-live-suite-sub002/pkg/log"
)

// ErrSendBufferFull is returned when a client's outbound queue is saturated.
// The frame is dropped for that client only.
var ErrSendBufferFull = errors.New("client send buffer full")

// Client is the hub's handle on one connected peer. It is created on connect
// and owned exclusively by the hub until close or termination.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	ping chan struct{}

	mu           sync.RWMutex
	alive        bool
	closed       bool
	channels     map[string]struct{}
	lastActivity time.Time

	closeOnce sync.Once
	cfg       config.WebSocketConfig
}

func NewClient(id string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	buf := cfg.SendBuffer
	if buf <= 0 {
		buf = 256
	}
	return &Client{
		ID:           id,
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, buf),
		ping:         make(chan struct{}, 1),
		alive:        true,
		channels:     make(map[string]struct{}),
		lastActivity: time.Now(),
		cfg:          cfg,
	}
}

// ReadPump consumes inbound frames until the connection dies. A pong restores
// the liveness flag cleared by the heartbeat sweep.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.hub.Unregister(c)
		c.Terminate()
	}()

	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	}
	c.conn.SetPongHandler(func(string) error {
		c.setAlive(true)
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Str(log.FieldClientID, c.ID).Err(err).Msg("websocket read failed")
			}
			break
		}

		c.Touch()
		handler(c, message)
	}
}

// WritePump owns all writes on the connection. Liveness probes arrive on the
// ping channel from the hub's heartbeat sweep.
func (c *Client) WritePump() {
	defer c.Terminate()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.ping:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendBytes queues a pre-marshalled frame. It never blocks: a full buffer
// drops the frame for this client and reports the failure.
func (c *Client) SendBytes(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("client closed")
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// closeSend shuts the outbound queue exactly once; the write pump drains and
// sends a close frame.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// SendMessage marshals and queues an outbound frame.
func (c *Client) SendMessage(message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return c.SendBytes(data)
}

// Terminate closes the underlying connection. Safe to call more than once;
// the blocked read pump unblocks and drives deregistration.
func (c *Client) Terminate() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) requestPing() {
	select {
	case c.ping <- struct{}{}:
	default:
	}
}

func (c *Client) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alive
}

func (c *Client) setAlive(v bool) {
	c.mu.Lock()
	c.alive = v
	c.mu.Unlock()
}

// Touch refreshes the last-activity timestamp.
func (c *Client) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Client) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

func (c *Client) subscribe(channel string) {
	c.mu.Lock()
	c.channels[channel] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) unsubscribe(channel string) {
	c.mu.Lock()
	delete(c.channels, channel)
	c.mu.Unlock()
}

// Subscribed reports whether the client's subscription set contains channel.
func (c *Client) Subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

// Channels returns a snapshot of the subscription set.
func (c *Client) Channels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}
