package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps a WebSocket connection with a buffered outbound queue so that
// a slow reader never blocks the hub's emit path.
type Conn struct {
	ws           *websocket.Conn
	send         chan []byte
	writeTimeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewConn wraps an upgraded WebSocket connection.
func NewConn(ws *websocket.Conn, sendBuffer int, writeTimeout time.Duration) *Conn {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &Conn{
		ws:           ws,
		send:         make(chan []byte, sendBuffer),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// Send queues a frame for delivery. Returns false when the connection is
// closed or its buffer is full; the frame is dropped either way.
func (c *Conn) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// WritePump drains the send queue onto the socket until Close or a write
// error. Must run in its own goroutine, one per connection.
func (c *Conn) WritePump() {
	defer func() { _ = c.ws.Close() }()
	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// ReadMessage reads the next inbound frame.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// Close shuts the connection down. Safe to call multiple times.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

var _ Sender = (*Conn)(nil)
