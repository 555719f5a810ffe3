/*
Package realtime manages the single live bidirectional connection to the
backing service.

This file defines the wire frames exchanged over the connection and the Event
struct delivered to the subscriber. Message payloads stay raw at this layer;
the reconciler owns their decoding.
*/
package realtime

import (
	"encoding/json"

	"chatlink/internal/app/identity"
)

// Wire event names, outbound and inbound.
const (
	eventOnline      = "online"
	eventOffline     = "offline"
	eventJoinRoom    = "join-room"
	eventLeaveRoom   = "leave-room"
	eventChatMessage = "chat-message"
	eventUserOnline  = "user-online"
	eventUserOffline = "user-offline"
)

// frame is the JSON envelope every realtime message travels in.
type frame struct {
	Event   string            `json:"event"`
	Room    string            `json:"room,omitempty"`
	UserID  string            `json:"userId,omitempty"`
	User    *identity.Summary `json:"user,omitempty"`
	Message json.RawMessage   `json:"message,omitempty"`
}

// EventType classifies events delivered to the subscriber.
type EventType string

const (
	// EventChatMessage carries a raw message payload for a room.
	EventChatMessage EventType = "chat-message"

	// EventUserOnline and EventUserOffline report presence changes of other identities.
	EventUserOnline  EventType = "user-online"
	EventUserOffline EventType = "user-offline"

	// EventDisconnected is synthesized locally when the connection is lost.
	// Join state and presence are not persisted across it; the subscriber is
	// expected to reconnect, re-fetch its snapshot, and re-issue joins.
	EventDisconnected EventType = "disconnected"
)

// Event is what the connection delivers to its subscriber.
type Event struct {
	Type    EventType
	Room    string
	UserID  string
	Message json.RawMessage
}
