package api

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds how long a single websocket write may block.
	writeWait = 10 * time.Second

	// sendQueueSize is the per-client outbound buffer. A client that falls
	// this far behind the broadcast stream is dropped rather than allowed
	// to stall everyone else.
	sendQueueSize = 256
)

// Client is one registered websocket connection. Its ID doubles as the
// player id in the session registry.
type Client struct {
	ID string

	conn *websocket.Conn
	send chan []byte
	ip   string

	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn, ip string) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		ip:   ip,
	}
}

// writePump drains the send queue onto the wire. One goroutine per client;
// gorilla/websocket allows at most one concurrent writer.
func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// close shuts the send queue, which ends the write pump and closes the
// underlying connection.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// enqueue queues a frame for delivery. Full queue means a slow consumer;
// the frame is dropped (never block the dispatch path on one client).
func (c *Client) enqueue(msg []byte) bool {
	if msg == nil {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Hub tracks all registered clients and fans events out to them. It only
// moves frames; game semantics live in the session, and who-receives-what
// decisions live in the dispatcher.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	connLimiter *ConnLimiter
	maxTotal    int
}

// NewHub creates a hub with the given connection caps.
func NewHub(maxTotal, maxPerIP int) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		connLimiter: NewConnLimiter(maxPerIP),
		maxTotal:    maxTotal,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("📱 Client connected from %s (%d total)", c.ip, count)
	UpdateWSConnections(count)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		h.connLimiter.Release(c.ip)
		c.close()
	}
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("📱 Client disconnected (%d remaining)", count)
	UpdateWSConnections(count)
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every registered client.
func (h *Hub) Broadcast(event string, data interface{}) {
	h.BroadcastExcept("", event, data)
}

// BroadcastExcept sends an event to every client except the named one.
// Used for events the originator already knows about (its own movement,
// its own departure).
func (h *Hub) BroadcastExcept(exceptID, event string, data interface{}) {
	msg := encodeEvent(event, data)
	if msg == nil {
		return
	}

	h.mu.RLock()
	for id, c := range h.clients {
		if id == exceptID {
			continue
		}
		c.enqueue(msg)
	}
	h.mu.RUnlock()

	IncrementWSMessages()
}

// SendTo sends an event to a single client. Unknown ids are a no-op: the
// target may have disconnected between mutation and delivery.
func (h *Hub) SendTo(id, event string, data interface{}) {
	msg := encodeEvent(event, data)
	if msg == nil {
		return
	}

	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()

	if ok {
		c.enqueue(msg)
		IncrementWSMessages()
	}
}
