/*
Package chat contains the room and message model and the reconciler that merges
REST snapshots with the realtime event stream into one consistent view.

This file defines the data structures as they travel over the wire. Field
names match the backing service's JSON exactly.
*/
package chat

import (
	"time"

	"chatlink/internal/app/identity"
)

// Timestamp is the backing store's native timestamp shape
// ({_seconds, _nanoseconds}), server-assigned and monotonic per room.
type Timestamp struct {
	Seconds int64 `json:"_seconds"`
	Nanos   int64 `json:"_nanoseconds"`
}

// At converts a time.Time into the wire shape.
func At(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int64(t.Nanosecond())}
}

// Time converts the wire shape into a time.Time.
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, t.Nanos)
}

// Attachment is a file reference carried by a message.
type Attachment struct {
	Name     string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"fileSize"`
	URL      string `json:"url"`
}

// Message is immutable once created. It is appended to a room's sequence
// either by a successful send or by a received realtime event.
type Message struct {
	ID          string           `json:"id"`
	RoomID      string           `json:"roomId,omitempty"`
	Sender      identity.Summary `json:"sender"`
	Text        string           `json:"text,omitempty"`
	Attachments []Attachment     `json:"attachments,omitempty"`
	Timestamp   Timestamp        `json:"timestamp"`
}

// LastMessage is the denormalized summary a room carries for list display.
type LastMessage struct {
	Text      string    `json:"text"`
	Timestamp Timestamp `json:"timestamp"`
}

// Room is a named chat channel, public or password-protected.
type Room struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsPrivate   bool   `json:"isPrivate"`

	// Password is the room secret, present only for private rooms and compared
	// verbatim on entry.
	Password string `json:"password,omitempty"`

	Participants []identity.Summary `json:"participants"`
	CreatedBy    string             `json:"createdBy"`
	LastMessage  *LastMessage       `json:"lastMessage,omitempty"`
	UnreadCount  int                `json:"unreadCount"`
}

// CreateRoomRequest carries the fields of a room-creation request.
type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsPrivate   bool   `json:"isPrivate"`
	Password    string `json:"password,omitempty"`
	CreatedBy   string `json:"createdBy"`
}

// FileUpload is one attachment of an outgoing message. The content is held in
// memory so a credential-refresh retry can rebuild the request body.
type FileUpload struct {
	Name     string
	MimeType string
	Data     []byte
}

// SendMessageRequest carries the fields of a message send.
type SendMessageRequest struct {
	Text   string
	Sender identity.Summary
	Files  []FileUpload
}

// HasParticipant reports whether uid is among the room's participants.
func (r Room) HasParticipant(uid string) bool {
	for _, p := range r.Participants {
		if p.UID == uid {
			return true
		}
	}
	return false
}
