/*
Package stub is the in-process backing service: the REST and realtime surface
the client core talks to, kept entirely in memory.

This file defines the Hub, the central relay for all websocket connections.
It owns client registration, per-room membership, presence relaying, and
message broadcasting. All state is touched only from the Run loop.
*/
package stub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"chatlink/internal/app/identity"
	"chatlink/internal/pkg/logx"
)

const inboundChannelBuffer = 1024

// Wire event names, mirroring what connected clients emit and expect.
const (
	wireOnline      = "online"
	wireOffline     = "offline"
	wireJoinRoom    = "join-room"
	wireLeaveRoom   = "leave-room"
	wireChatMessage = "chat-message"
	wireUserOnline  = "user-online"
	wireUserOffline = "user-offline"
)

// wireFrame is the JSON envelope every realtime frame travels in.
type wireFrame struct {
	Event   string            `json:"event"`
	Room    string            `json:"room,omitempty"`
	UserID  string            `json:"userId,omitempty"`
	User    *identity.Summary `json:"user,omitempty"`
	Message json.RawMessage   `json:"message,omitempty"`
}

// inbound pairs a frame with the client it arrived from.
type inbound struct {
	from  *client
	frame wireFrame
}

// Hub relays realtime frames between connected clients.
type Hub struct {
	clients map[*client]struct{}
	rooms   map[string]map[*client]struct{}

	register   chan *client
	unregister chan *client
	inbound    chan inbound
	stop       chan struct{}

	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewHub constructs a Hub and starts its Run loop.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[*client]struct{}),
		rooms:      make(map[string]map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		inbound:    make(chan inbound, inboundChannelBuffer),
		stop:       make(chan struct{}),
		logger:     logx.Component("Hub"),
	}

	h.wg.Add(1)
	go h.run()

	return h
}

// Shutdown stops the Run loop and closes every connected client.
func (h *Hub) Shutdown() {
	close(h.stop)
	h.wg.Wait()
}

// run is the single goroutine that owns all hub state.
func (h *Hub) run() {
	defer h.wg.Done()

	h.logger.Info().Msg("Hub relay loop started.")

	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Info().Int("total_clients", len(h.clients)).Msg("Client connected.")

		case c := <-h.unregister:
			h.dropClient(c)

		case in := <-h.inbound:
			h.dispatch(in.from, in.frame)

		case <-h.stop:
			h.logger.Info().Msg("Hub relay loop stopping.")
			for c := range h.clients {
				c.closeSend()
			}
			return
		}
	}
}

// dropClient removes a client from every room and the client set, announcing
// its identity offline to the remaining clients. Mirrors what happens when a
// browser tab closes without a clean leave.
func (h *Hub) dropClient(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	delete(h.clients, c)
	for roomID, members := range h.rooms {
		if _, member := members[c]; member {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	c.closeSend()

	if c.uid != "" {
		h.relayToAll(c, wireFrame{Event: wireUserOffline, UserID: c.uid})
	}

	h.logger.Info().Str("client_id", c.uid).Int("total_clients", len(h.clients)).Msg("Client disconnected.")
}

// dispatch routes one inbound frame from a connected client.
func (h *Hub) dispatch(c *client, f wireFrame) {
	switch f.Event {
	case wireOnline:
		if f.UserID != "" {
			c.uid = f.UserID
		}
		h.relayToAll(c, wireFrame{Event: wireUserOnline, UserID: c.uid})

	case wireOffline:
		h.relayToAll(c, wireFrame{Event: wireUserOffline, UserID: c.uid})

	case wireJoinRoom:
		if f.Room == "" {
			return
		}
		if f.User != nil && f.User.UID != "" {
			c.uid = f.User.UID
		}
		members, ok := h.rooms[f.Room]
		if !ok {
			members = make(map[*client]struct{})
			h.rooms[f.Room] = members
		}
		members[c] = struct{}{}
		h.relayToRoom(f.Room, c, wireFrame{Event: wireUserOnline, Room: f.Room, UserID: c.uid})

	case wireLeaveRoom:
		members, ok := h.rooms[f.Room]
		if !ok {
			return
		}
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, f.Room)
		}
		h.relayToRoom(f.Room, c, wireFrame{Event: wireUserOffline, Room: f.Room, UserID: c.uid})

	case wireChatMessage:
		if f.Room == "" || len(f.Message) == 0 {
			return
		}
		h.relayToRoom(f.Room, c, wireFrame{Event: wireChatMessage, Room: f.Room, Message: f.Message})

	default:
		h.logger.Warn().Str("event", f.Event).Msg("Client sent unsupported event.")
	}
}

// relayToRoom sends a frame to every room member except the sender. The sender
// already holds its own view; echoing back would double it.
func (h *Hub) relayToRoom(roomID string, sender *client, f wireFrame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Error().Err(err).Str("event", f.Event).Msg("Failed to encode relay frame.")
		return
	}

	for member := range h.rooms[roomID] {
		if member == sender {
			continue
		}
		member.queue(data)
	}
}

// relayToAll sends a frame to every connected client except the sender.
func (h *Hub) relayToAll(sender *client, f wireFrame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Error().Err(err).Str("event", f.Event).Msg("Failed to encode relay frame.")
		return
	}

	for c := range h.clients {
		if c == sender {
			continue
		}
		c.queue(data)
	}
}
