package signal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/S4tyendra/public-vc/internal/application/constant"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP offers fit comfortably.
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

// Conn is one member's outbound signaling handle. Send must never block on a
// slow socket; implementations queue and fail fast instead.
type Conn interface {
	Send(env Envelope) error
	Close()
}

// WSConn adapts a gorilla websocket connection to Conn. All writes go through
// a single write pump goroutine.
type WSConn struct {
	conn *websocket.Conn

	send      chan Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{
		conn: conn,
		send: make(chan Envelope, sendBufferSize),
		done: make(chan struct{}),
	}
}

// Send queues an envelope for the write pump. A full buffer means the
// consumer is stalled; the caller is expected to drop the connection.
func (c *WSConn) Send(env Envelope) error {
	select {
	case <-c.done:
		return ErrConnClosed
	case c.send <- env:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close shuts the handle down. Safe to call more than once; the read loop on
// the underlying socket fails afterwards, which unwinds the membership.
func (c *WSConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// WritePump serializes all writes to the websocket, including keepalive
// pings. Runs in its own goroutine, one per connection.
func (c *WSConn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				slog.Debug("websocket write failed", slog.Any(constant.Error, err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
