package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// outboundMsg tags a queued frame with whether it is droppable under
// backpressure. connected/subscribed/unsubscribed/error frames are
// never dropped; live update frames are.
type outboundMsg struct {
	payload  []byte
	droppable bool
}

const (
	defaultQueueCapacity = 256
	overflowWindow       = 5 * time.Second
	overflowThreshold    = 256
)

// Client owns one accepted websocket session. Its outbound queue is a
// mutex-protected slice rather than a buffered channel, since the
// drop-oldest-non-snapshot policy of spec §4.E requires scanning and
// evicting a specific element, not just refusing a send.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	logger zerolog.Logger

	mu       sync.Mutex
	rooms    map[string]bool
	queue    []outboundMsg
	capacity int
	notify   chan struct{}
	closed   bool

	overflowCount int
	overflowSince time.Time
}

func newClient(id string, hub *Hub, conn *websocket.Conn, logger zerolog.Logger) *Client {
	return &Client{
		id:       id,
		hub:      hub,
		conn:     conn,
		logger:   logger.With().Str("client_id", id).Logger(),
		rooms:    map[string]bool{},
		capacity: defaultQueueCapacity,
		notify:   make(chan struct{}, 1),
	}
}

// enqueue appends payload to the outbound queue, applying the
// drop-oldest-non-snapshot overflow policy. It returns false if the
// session should be closed for sustained overflow.
func (c *Client) enqueue(payload []byte, droppable bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}

	if len(c.queue) >= c.capacity {
		evicted := false
		for i, m := range c.queue {
			if m.droppable {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			// Queue saturated entirely with non-droppable frames: the
			// session cannot keep up even with protocol frames.
			return false
		}
		if now := time.Now(); now.Sub(c.overflowSince) < overflowWindow {
			c.overflowCount++
		} else {
			c.overflowSince = now
			c.overflowCount = 1
		}
		if c.overflowCount >= overflowThreshold {
			return false
		}
	}

	c.queue = append(c.queue, outboundMsg{payload: payload, droppable: droppable})
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

func (c *Client) send(frame ServerFrame, droppable bool) bool {
	payload, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal outbound frame")
		return true
	}
	return c.enqueue(payload, droppable)
}

func (c *Client) pop() (outboundMsg, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return outboundMsg{}, false
	}
	m := c.queue[0]
	c.queue = c.queue[1:]
	return m, true
}

func (c *Client) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// writePump drains the outbound queue to the websocket connection.
func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		m, ok := c.pop()
		if !ok {
			select {
			case <-c.notify:
				continue
			case <-time.After(30 * time.Second):
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
				continue
			}
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, m.payload); err != nil {
			return
		}
	}
}

// readPump drains inbound frames, dispatching subscribe/unsubscribe
// requests, until the peer disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send(errorFrame("malformed request"), false)
			continue
		}
		c.hub.handleClientMessage(c, msg)
	}
}
