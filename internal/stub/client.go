/*
Package stub is the in-process backing service: the REST and realtime surface
the client core talks to, kept entirely in memory.

This file defines the client struct, one per accepted websocket connection.
It runs the read/write pump pair and forwards decoded frames to the Hub; the
uid field is written only from the Hub's Run loop.
*/
package stub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatlink/internal/pkg/logx"
)

const (
	// timeout for writes to the websocket.
	writeWait = 10 * time.Second

	// maximum time to wait for a pong before declaring the connection dead.
	pongWait = 60 * time.Second

	// frequency of outbound pings.
	pingPeriod = (pongWait * 9) / 10

	// maximum inbound frame size in bytes.
	maxFrameSize = 65536

	sendBufferSize = 256
)

// client represents one accepted websocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	uid  string

	send      chan []byte
	closeOnce sync.Once
	logger    zerolog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn) *client {
	return &client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: logx.Component("HubClient"),
	}
}

// queue enqueues a frame for the write pump, dropping it when the client is
// too slow to drain its buffer.
func (c *client) queue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.logger.Warn().Str("client_id", c.uid).Msg("Client send queue full, dropping frame.")
	}
}

func (c *client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// readPump consumes inbound frames and hands them to the hub until the
// connection fails, then unregisters.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline.")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Client read failed.")
			}
			return
		}

		var f wireFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid JSON frame.")
			continue
		}

		select {
		case c.hub.inbound <- inbound{from: c, frame: f}:
		default:
			c.logger.Warn().Msg("Hub inbound channel full, dropping frame.")
		}
	}
}

// writePump drains the send queue and keeps the heartbeat alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error().Err(err).Msg("Client write failed.")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
