/*
Package realtime manages the single live bidirectional connection to the
backing service.

This file defines the Conn struct. Exactly one underlying websocket exists per
Conn regardless of how many callers ask for it; room membership evolves as a
set independent of the connection state. On connection loss nothing is
replayed — the subscriber resyncs via REST and re-issues joins.
*/
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatlink/internal/app/identity"
	"chatlink/internal/app/session"
	"chatlink/internal/pkg/errs"
	"chatlink/internal/pkg/logx"
	"chatlink/internal/pkg/randx"
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

	// handshake timeout for dialing.
	dialTimeout = 10 * time.Second

	sendBufferSize  = 256
	eventBufferSize = 256
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// Conn is the connection manager. It is created once by the composition root
// and shared by every room the identity joins.
type Conn struct {
	mu      sync.Mutex
	state   State
	ws      *websocket.Conn
	send    chan []byte
	stop    chan struct{}
	joined  map[string]struct{}
	session *session.Store

	socketURL string
	presence  *PresenceSet
	events    chan Event
	logger    zerolog.Logger
}

// NewConn constructs a disconnected Conn for the websocket endpoint at socketURL.
func NewConn(socketURL string, sess *session.Store) *Conn {
	return &Conn{
		state:     StateDisconnected,
		joined:    make(map[string]struct{}),
		session:   sess,
		socketURL: socketURL,
		presence:  NewPresenceSet(),
		events:    make(chan Event, eventBufferSize),
		logger:    logx.Component("RealtimeConnection"),
	}
}

// Events returns the channel inbound events are delivered on. The reconciler
// subscribes once; the channel lives for the whole Conn, across reconnects.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Presence returns the connection-scoped presence set.
func (c *Conn) Presence() *PresenceSet {
	return c.presence
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// JoinedRooms returns the ids of the rooms the connection is currently joined to.
func (c *Conn) JoinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.joined))
	for id := range c.joined {
		ids = append(ids, id)
	}
	return ids
}

// EnsureConnected is idempotent: an established or in-flight connection is
// reused, otherwise a new one is dialed. After connecting, the current
// identity's presence is announced online.
func (c *Conn) EnsureConnected(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateDisconnected {
		return nil
	}
	c.state = StateConnecting

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	ws, _, err := dialer.DialContext(ctx, c.socketURL, nil)
	if err != nil {
		c.state = StateDisconnected
		c.logger.Error().Err(err).Str("url", c.socketURL).Msg("Failed to establish connection.")
		return errs.New(errs.ErrTransport, err.Error())
	}

	connID := randx.ConnectionID()
	c.ws = ws
	c.send = make(chan []byte, sendBufferSize)
	c.stop = make(chan struct{})
	c.state = StateConnected

	if cur, ok := c.session.Current(); ok {
		c.presence.SetSelf(cur.UID)
	}

	go c.readPump(ws, c.stop)
	go c.writePump(ws, c.send, c.stop)

	c.logger.Info().Str("connection_id", connID).Msg("Connection established.")

	c.emitLocked(frame{Event: eventOnline, UserID: c.presence.selfID()})

	return nil
}

// JoinRoom emits a join notification and adds roomID to the joined set.
// Calling it again for the same room keeps the set cardinality at one; the
// duplicate transport-level join is tolerated by the backing service.
func (c *Conn) JoinRoom(roomID string, user identity.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		return errs.New(errs.ErrNotConnected)
	}

	c.joined[roomID] = struct{}{}

	return c.emitLocked(frame{Event: eventJoinRoom, Room: roomID, User: &user})
}

// LeaveRoom emits a leave notification and removes roomID from the joined set.
// Leaving a room the connection was never joined to is a no-op, not an error.
func (c *Conn) LeaveRoom(roomID string, user identity.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, member := c.joined[roomID]; !member {
		return nil
	}
	delete(c.joined, roomID)

	if c.state != StateConnected {
		return nil
	}

	err := c.emitLocked(frame{Event: eventLeaveRoom, Room: roomID, User: &user})

	// Last room left: the identity is no longer reachable anywhere.
	if len(c.joined) == 0 {
		c.emitLocked(frame{Event: eventOffline, UserID: c.presence.selfID()})
	}

	return err
}

// AnnouncePresence broadcasts the current identity's presence state.
func (c *Conn) AnnouncePresence(online bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		return errs.New(errs.ErrNotConnected)
	}

	event := eventOffline
	if online {
		event = eventOnline
	}

	return c.emitLocked(frame{Event: event, UserID: c.presence.selfID()})
}

// BroadcastMessage emits a server-confirmed message to the other participants
// of a room. The sender's own view is updated from the send response, never
// from this broadcast.
func (c *Conn) BroadcastMessage(roomID string, message json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		return errs.New(errs.ErrNotConnected)
	}

	return c.emitLocked(frame{Event: eventChatMessage, Room: roomID, Message: message})
}

// Close announces offline, sends a close frame, and tears the connection down.
// The offline frame is queued before the stop signal; the write pump drains the
// queue before the close frame so the announcement reaches the wire.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		return
	}

	c.emitLocked(frame{Event: eventOffline, UserID: c.presence.selfID()})
	c.teardownLocked(false)
}

// emitLocked queues a frame for the write pump. Emissions are fire-and-forget;
// a full queue drops the frame with a warning. Callers hold c.mu.
func (c *Conn) emitLocked(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		c.logger.Error().Err(err).Str("event", f.Event).Msg("Failed to encode outbound frame.")
		return errs.New(errs.ErrUnknown)
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn().Str("event", f.Event).Msg("Send queue full, dropping frame.")
		return errs.New(errs.ErrTransport, "send queue full")
	}
}

// readPump consumes inbound frames until the connection fails, then triggers teardown.
func (c *Conn) readPump(ws *websocket.Conn, stop chan struct{}) {
	defer c.handleConnectionLoss(ws)

	ws.SetReadLimit(maxFrameSize)
	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline.")
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Connection read failed.")
			}
			return
		}

		c.dispatchInbound(data)
	}
}

// dispatchInbound routes one inbound frame: presence frames mutate the
// presence set, chat messages go to the subscriber.
func (c *Conn) dispatchInbound(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Warn().Err(err).Msg("Discarding undecodable inbound frame.")
		return
	}

	switch f.Event {
	case eventChatMessage:
		c.deliver(Event{Type: EventChatMessage, Room: f.Room, Message: f.Message})

	case eventUserOnline:
		c.presence.MarkOnline(f.UserID)
		if !c.isSelf(f.UserID) {
			c.deliver(Event{Type: EventUserOnline, UserID: f.UserID})
		}

	case eventUserOffline:
		c.presence.MarkOffline(f.UserID)
		if !c.isSelf(f.UserID) {
			c.deliver(Event{Type: EventUserOffline, UserID: f.UserID})
		}

	default:
		c.logger.Warn().Str("event", f.Event).Msg("Discarding frame with unsupported event.")
	}
}

// deliver hands an event to the subscriber without blocking the read pump.
func (c *Conn) deliver(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn().Str("type", string(ev.Type)).Msg("Event queue full, dropping event.")
	}
}

// writePump drains the send queue and keeps the heartbeat alive.
func (c *Conn) writePump(ws *websocket.Conn, send chan []byte, stop chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error().Err(err).Msg("Connection write failed.")
				ws.Close()
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error().Err(err).Msg("Heartbeat write failed.")
				ws.Close()
				return
			}

		case <-stop:
			c.flushAndClose(ws, send)
			return
		}
	}
}

// flushAndClose writes any frames still queued, then the close frame, then
// closes the socket. Frames queued before the stop signal (such as the offline
// announcement on Close) must reach the wire before the socket goes down.
func (c *Conn) flushAndClose(ws *websocket.Conn, send chan []byte) {
	defer ws.Close()

	for {
		select {
		case data := <-send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleConnectionLoss transitions to Disconnected after a read failure and
// notifies the subscriber. Join state and presence do not survive the drop.
func (c *Conn) handleConnectionLoss(ws *websocket.Conn) {
	c.mu.Lock()

	// A reconnect may already have replaced the socket; only the current one
	// may tear the state down.
	if c.ws != ws || c.state != StateConnected {
		c.mu.Unlock()
		ws.Close()
		return
	}

	c.teardownLocked(true)
	c.mu.Unlock()

	c.deliver(Event{Type: EventDisconnected})
}

// teardownLocked resets connection state. Callers hold c.mu. On a graceful
// close the socket stays open for the write pump's final flush; on loss it is
// already dead and closed here.
func (c *Conn) teardownLocked(lost bool) {
	close(c.stop)
	if lost {
		c.ws.Close()
	}
	c.ws = nil
	c.state = StateDisconnected
	c.joined = make(map[string]struct{})
	c.presence.Reset()

	if lost {
		c.logger.Warn().Msg("Connection lost. Join state and presence cleared.")
	} else {
		c.logger.Info().Msg("Connection closed.")
	}
}

func (c *Conn) isSelf(uid string) bool {
	return uid != "" && uid == c.presence.selfID()
}
