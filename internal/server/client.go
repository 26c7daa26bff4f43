// Package server manages individual WebSocket clients, handling read/write
// pumps and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second

	sendBufferSize = 256
)

// Client is one live WebSocket connection. The registry references it by its
// generated id rather than by pointer, and the hub pushes outbound events
// into its buffered send channel.
type Client struct {
	id   uuid.UUID
	conn *websocket.Conn
	hub  *Hub
	addr string
	log  zerolog.Logger

	send chan []byte

	// mu guards closed so nothing writes to send after it is closed.
	mu     sync.Mutex
	closed bool

	maxMsg int64
}

// NewClient wraps an upgraded WebSocket connection. The send channel is
// buffered so fan-out to this client never blocks the broadcasting room.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, logger zerolog.Logger, maxMessageSize int64) *Client {
	id := uuid.New()
	if conn != nil && maxMessageSize > 0 {
		conn.SetReadLimit(maxMessageSize)
	}
	return &Client{
		id:     id,
		conn:   conn,
		hub:    hub,
		addr:   addr,
		log:    logger.With().Stringer("conn", id).Str("addr", addr).Logger(),
		send:   make(chan []byte, sendBufferSize),
		maxMsg: maxMessageSize,
	}
}

// ID returns the stable identity assigned to this connection.
func (c *Client) ID() uuid.UUID { return c.id }

// trySend queues one outbound payload without blocking. It reports false when
// the client's buffer is full or its send channel is already closed; the hub
// treats either as a send failure.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once, terminating the write pump.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// closeConn closes the underlying connection, unblocking the read pump.
func (c *Client) closeConn() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug().Err(err).Msg("error closing connection")
	}
}

func (c *Client) setupReadDeadlines() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// logReadError records why the read loop is ending, one level per cause.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.maxMsg).Msg("message exceeded size limit")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("websocket read error")
	}
}

// readPump receives inbound frames and hands them to the hub until the
// connection closes. Every exit path, error or not, routes through
// HandleDisconnect so cleanup happens exactly once.
func (c *Client) readPump() {
	defer func() {
		c.hub.HandleDisconnect(c)
		c.closeConn()
	}()

	c.setupReadDeadlines()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if err := c.hub.HandleChat(c, raw); err != nil {
			if errors.Is(err, ErrMalformedPayload) {
				// Bad frame, not a bad connection. Drop it and keep reading.
				c.log.Warn().Err(err).Msg("discarding malformed payload")
				continue
			}
			// Persistence failed; the event was dropped. Only this
			// connection learns about it.
			c.log.Error().Err(err).Msg("message not delivered")
		}
	}
}

// writePump drains the send channel to the peer and keeps the connection
// alive with periodic pings. It exits when the send channel closes or a
// write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !c.writeOutbound(payload, ok) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeOutbound writes one event per frame, reporting false when the pump
// should stop. Events are never batched into a shared frame; each frame
// carries exactly one JSON document.
func (c *Client) writeOutbound(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Debug().Err(err).Msg("error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Debug().Err(err).Msg("error writing message")
		}
		return false
	}
	return true
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	return c.conn.WriteMessage(websocket.PingMessage, nil) == nil
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
