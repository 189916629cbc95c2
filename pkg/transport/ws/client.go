package ws

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// client owns the write side of one websocket connection. All outbound
// frames pass through a single pump goroutine so ordering on the wire
// matches enqueue order. It doubles as the session's event sink, so it
// must tolerate calls after the connection is gone.
type client struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
	closed atomic.Bool
	logger *slog.Logger
}

func newClient(conn *websocket.Conn, buffer int, logger *slog.Logger) *client {
	if buffer <= 0 {
		buffer = 256
	}
	c := &client{
		conn:   conn,
		sendCh: make(chan []byte, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go c.pump()
	return c
}

// writeWait bounds every wire write so a dead peer cannot wedge the pump.
const writeWait = 10 * time.Second

func (c *client) pump() {
	for {
		select {
		case msg := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				_ = c.conn.Close()
				return
			}
		case <-c.done:
			c.drain()
			_ = c.conn.Close()
			return
		}
	}
}

// drain flushes frames enqueued before close, so a final error frame
// still reaches the wire. Bounded by a short write deadline; a stalled
// peer is not worth waiting for during teardown.
func (c *client) drain() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	for {
		select {
		case msg := <-c.sendCh:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// enqueue blocks until the pump takes the frame or the client is gone.
// A stalled reader therefore stalls the session pipeline behind it
// instead of dropping transcript or completion frames.
func (c *client) enqueue(frame OutboundFrame) {
	b, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.sendCh <- b:
	case <-c.done:
	}
}

// tryEnqueue drops the frame when the send queue is full. Status and
// interim frames are advisory and must never block the vendor pipeline.
func (c *client) tryEnqueue(frame OutboundFrame) {
	b, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.sendCh <- b:
	case <-c.done:
	default:
		c.logger.Warn("outbound_frame_dropped", slog.String("type", frame.Type))
	}
}

// close signals shutdown; the pump drains pending frames and closes the
// connection, so a frame enqueued just before close is not abandoned.
func (c *client) close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
	}
}

// session.EventSink implementation.

func (c *client) Status(message string) {
	c.tryEnqueue(OutboundFrame{Type: outboundStatus, Message: message})
}

func (c *client) Partial(text string) {
	c.tryEnqueue(OutboundFrame{Type: outboundPartial, Text: text})
}

func (c *client) Final(text string, confidence float64) {
	c.enqueue(OutboundFrame{Type: outboundFinal, Text: text, Confidence: confidence})
}

func (c *client) Content(text string) {
	c.enqueue(OutboundFrame{Type: outboundContent, Text: text})
}

func (c *client) Complete() {
	c.enqueue(OutboundFrame{Type: outboundDone})
}

func (c *client) Error(code, message string) {
	c.enqueue(OutboundFrame{Type: outboundError, Code: code, Message: message})
}
