// Package transport carries frames between clients and the server. The
// session layer only assumes an ordered, reliable, bidirectional message
// channel; this package provides the websocket implementation of it.
package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write to the peer.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before the read
	// side gives up. Pings go out early enough to keep healthy peers
	// inside the window.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512 * 1024
	sendBufferSize = 256
)

var (
	// ErrClosed is returned by Send after the channel has been closed.
	ErrClosed = errors.New("channel closed")
	// ErrBufferFull is returned when the peer cannot keep up with the
	// outbound stream.
	ErrBufferFull = errors.New("send buffer full")
)

// WSChannel adapts one websocket connection to the channel contract the
// session layer expects. Writes are serialized through a single pump
// goroutine; reads happen on the caller's goroutine via Receive.
type WSChannel struct {
	id   string
	conn *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSChannel wraps an upgraded connection and starts its write pump.
func NewWSChannel(conn *websocket.Conn) *WSChannel {
	c := &WSChannel{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.writePump()
	return c
}

// ID returns the connection's unique id.
func (c *WSChannel) ID() string { return c.id }

// Receive blocks until the next frame arrives from the peer. Any error,
// including the read deadline firing, means the connection is gone.
func (c *WSChannel) Receive() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Send queues a frame for delivery. It never blocks: a full buffer means
// the peer is too slow and the caller should drop the connection.
func (c *WSChannel) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close flushes queued frames, sends a close frame and tears the
// connection down. Safe to call more than once.
func (c *WSChannel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *WSChannel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			// Drain what was queued before the close, then say goodbye.
			for {
				select {
				case data := <-c.send:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}
