/*
Package stub is the in-process backing service: the REST and realtime surface
the client core talks to, kept entirely in memory. It exists for local
development and for end-to-end tests over loopback.

This file defines the Store, the mutex-guarded in-memory state behind the REST
handlers. The store is authoritative: ids and timestamps are assigned here,
never by callers.
*/
package stub

import (
	"sort"
	"sync"
	"time"

	"chatlink/internal/app/chat"
	"chatlink/internal/app/identity"
	"chatlink/internal/pkg/errs"
	"chatlink/internal/pkg/randx"
)

// Store holds all rooms, messages, and known identities.
type Store struct {
	mu       sync.RWMutex
	users    map[string]identity.Summary
	rooms    map[string]*chat.Room
	messages map[string][]chat.Message
	refresh  map[string]string // refresh token -> uid
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]identity.Summary),
		rooms:    make(map[string]*chat.Room),
		messages: make(map[string][]chat.Message),
		refresh:  make(map[string]string),
	}
}

// UpsertUser records or refreshes a known identity.
func (s *Store) UpsertUser(u identity.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UID] = u
}

// User looks up a known identity by id.
func (s *Store) User(uid string) (identity.Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[uid]
	return u, ok
}

// RememberRefresh binds a refresh token to its identity.
func (s *Store) RememberRefresh(token, uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[token] = uid
}

// RefreshOwner resolves a refresh token to the identity it was issued for.
func (s *Store) RefreshOwner(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uid, ok := s.refresh[token]
	return uid, ok
}

// ListRooms returns all rooms, ordered by id for a stable wire shape.
func (s *Store) ListRooms() []chat.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]chat.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, *room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })

	return rooms
}

// GetRoom returns a copy of the room, or false when it does not exist.
func (s *Store) GetRoom(roomID string) (chat.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return chat.Room{}, false
	}
	return *room, true
}

// CreateRoom materializes a room from the request, id assigned here. The
// creator becomes the first participant.
func (s *Store) CreateRoom(req chat.CreateRoomRequest) (chat.Room, error) {
	if req.Name == "" {
		return chat.Room{}, errs.New(errs.ErrRoomNameRequired)
	}

	roomID, err := randx.RoomID()
	if err != nil {
		return chat.Room{}, errs.New(errs.ErrUnknown)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room := &chat.Room{
		ID:          roomID,
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
		Password:    req.Password,
		CreatedBy:   req.CreatedBy,
	}

	if creator, ok := s.users[req.CreatedBy]; ok {
		room.Participants = []identity.Summary{creator}
	} else {
		room.Participants = []identity.Summary{{UID: req.CreatedBy}}
	}

	s.rooms[room.ID] = room

	return *room, nil
}

// DeleteRoom removes a room and its messages. Only the creator may delete.
func (s *Store) DeleteRoom(roomID, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return errs.New(errs.ErrRoomNotFound, roomID)
	}
	if room.CreatedBy != uid {
		return errs.New(errs.ErrNotRoomCreator)
	}

	delete(s.rooms, roomID)
	delete(s.messages, roomID)

	return nil
}

// UpdateParticipants adds or removes uid on the room's participant set.
// Adding an existing participant or removing an absent one is a no-op.
func (s *Store) UpdateParticipants(roomID, uid, action string) (chat.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return chat.Room{}, errs.New(errs.ErrRoomNotFound, roomID)
	}

	switch action {
	case "add":
		if !room.HasParticipant(uid) {
			summary, known := s.users[uid]
			if !known {
				summary = identity.Summary{UID: uid}
			}
			room.Participants = append(room.Participants, summary)
		}

	case "remove":
		kept := room.Participants[:0]
		for _, p := range room.Participants {
			if p.UID != uid {
				kept = append(kept, p)
			}
		}
		room.Participants = kept

	default:
		return chat.Room{}, errs.New(errs.ErrInvalidParams, "action must be add or remove")
	}

	return *room, nil
}

// AppendMessage assigns id and timestamp, appends the message to the room's
// sequence in arrival order, and refreshes the room's last-message summary.
func (s *Store) AppendMessage(roomID string, msg chat.Message) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return chat.Message{}, errs.New(errs.ErrRoomNotFound, roomID)
	}

	msg.ID = randx.MessageID()
	msg.RoomID = roomID
	msg.Timestamp = chat.At(time.Now())

	s.messages[roomID] = append(s.messages[roomID], msg)
	room.LastMessage = &chat.LastMessage{Text: msg.Text, Timestamp: msg.Timestamp}

	return msg, nil
}

// Messages returns up to limit of the room's newest messages, oldest first.
func (s *Store) Messages(roomID string, limit int) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq := s.messages[roomID]
	if limit > 0 && len(seq) > limit {
		seq = seq[len(seq)-limit:]
	}

	out := make([]chat.Message, len(seq))
	copy(out, seq)
	return out
}
