/*
Package chat contains the room and message model and the reconciler that merges
REST snapshots with the realtime event stream into one consistent view.

This file defines the Reconciler struct. It owns the room collection and the
open room's message sequence; presentation code reads them through snapshot
accessors and never mutates them.
*/
package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatlink/internal/app/identity"
	"chatlink/internal/app/realtime"
	"chatlink/internal/app/session"
	"chatlink/internal/pkg/errs"
	"chatlink/internal/pkg/logx"
)

// HistoryLimit is how many messages are fetched when a room is opened.
const HistoryLimit = 50

// resyncBaseDelay and resyncMaxDelay bound the reconnect backoff after a drop.
const (
	resyncBaseDelay = time.Second
	resyncMaxDelay  = 30 * time.Second
)

// Backend is the slice of the API gateway the reconciler pulls snapshots through.
type Backend interface {
	ListRooms(ctx context.Context) ([]Room, error)
	GetRoom(ctx context.Context, roomID string) (Room, error)
	CreateRoom(ctx context.Context, req CreateRoomRequest) (Room, error)
	DeleteRoom(ctx context.Context, roomID, userID string) error
	UpdateParticipants(ctx context.Context, roomID, userID, action string) error
	ListMessages(ctx context.Context, roomID string, limit int) ([]Message, error)
	SendMessage(ctx context.Context, roomID string, req SendMessageRequest) (Message, error)
}

// Transport is the slice of the realtime connection the reconciler pushes
// through and subscribes to.
type Transport interface {
	EnsureConnected(ctx context.Context) error
	JoinRoom(roomID string, user identity.Summary) error
	LeaveRoom(roomID string, user identity.Summary) error
	BroadcastMessage(roomID string, message json.RawMessage) error
	Events() <-chan realtime.Event
}

// Reconciler produces the consistent view of all rooms visible to the current
// identity and the message history of the currently open room.
type Reconciler struct {
	mu         sync.Mutex
	rooms      []Room
	openRoomID string
	messages   []Message

	backend   Backend
	transport Transport
	session   *session.Store
	logger    zerolog.Logger
}

// NewReconciler constructs a Reconciler over the given collaborators.
func NewReconciler(backend Backend, transport Transport, sess *session.Store) *Reconciler {
	return &Reconciler{
		backend:   backend,
		transport: transport,
		session:   sess,
		logger:    logx.Component("RoomReconciler"),
	}
}

// LoadRoomList fetches all rooms and replaces the local collection wholesale.
// The server is authoritative for the full list; last fetch wins.
func (r *Reconciler) LoadRoomList(ctx context.Context) ([]Room, error) {
	rooms, err := r.backend.ListRooms(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.rooms = rooms
	r.mu.Unlock()

	r.logger.Debug().Int("count", len(rooms)).Msg("Room list replaced.")

	return r.Rooms(), nil
}

// OpenRoom opens a room for the current identity. The room is always
// re-fetched, never served from the stale list, because membership may have
// changed since the list was loaded.
//
// A non-participant receives ErrJoinRequired: joining needs explicit consent
// (ConfirmJoin), never happens automatically. A private room demands the
// password: empty yields ErrPasswordRequired, a wrong one ErrPasswordMismatch —
// both distinguishable from transport failures by their codes.
func (r *Reconciler) OpenRoom(ctx context.Context, roomID, password string) (Room, error) {
	cur, ok := r.session.Current()
	if !ok {
		return Room{}, errs.New(errs.ErrNotAuthenticated)
	}

	room, err := r.backend.GetRoom(ctx, roomID)
	if err != nil {
		return Room{}, err
	}

	if !room.HasParticipant(cur.UID) {
		return Room{}, errs.New(errs.ErrJoinRequired)
	}

	if room.IsPrivate {
		if password == "" {
			return Room{}, errs.New(errs.ErrPasswordRequired)
		}
		if password != room.Password {
			return Room{}, errs.New(errs.ErrPasswordMismatch)
		}
	}

	messages, err := r.backend.ListMessages(ctx, roomID, HistoryLimit)
	if err != nil {
		return Room{}, err
	}

	if err := r.transport.EnsureConnected(ctx); err != nil {
		return Room{}, err
	}
	if err := r.transport.JoinRoom(roomID, cur.Summary); err != nil {
		return Room{}, err
	}

	room.UnreadCount = 0

	r.mu.Lock()
	r.openRoomID = roomID
	r.messages = messages
	r.replaceRoomLocked(room)
	r.mu.Unlock()

	r.logger.Info().Str("room_id", roomID).Int("history", len(messages)).Msg("Room opened.")

	return room, nil
}

// ConfirmJoin records the user's explicit consent to join a room: it validates
// the password first for private rooms, adds the identity to the participant
// set, and then opens the room.
func (r *Reconciler) ConfirmJoin(ctx context.Context, roomID, password string) (Room, error) {
	cur, ok := r.session.Current()
	if !ok {
		return Room{}, errs.New(errs.ErrNotAuthenticated)
	}

	room, err := r.backend.GetRoom(ctx, roomID)
	if err != nil {
		return Room{}, err
	}

	if room.IsPrivate {
		if password == "" {
			return Room{}, errs.New(errs.ErrPasswordRequired)
		}
		if password != room.Password {
			return Room{}, errs.New(errs.ErrPasswordMismatch)
		}
	}

	if err := r.backend.UpdateParticipants(ctx, roomID, cur.UID, "add"); err != nil {
		return Room{}, err
	}

	return r.OpenRoom(ctx, roomID, password)
}

// LeaveRoom leaves the currently open room and clears the open view.
func (r *Reconciler) LeaveRoom(ctx context.Context) error {
	cur, ok := r.session.Current()
	if !ok {
		return errs.New(errs.ErrNotAuthenticated)
	}

	r.mu.Lock()
	roomID := r.openRoomID
	r.openRoomID = ""
	r.messages = nil
	r.mu.Unlock()

	if roomID == "" {
		return nil
	}

	return r.transport.LeaveRoom(roomID, cur.Summary)
}

// CreateRoom validates and creates a room, appending it to the local list.
func (r *Reconciler) CreateRoom(ctx context.Context, name, description string, isPrivate bool, password string) (Room, error) {
	cur, ok := r.session.Current()
	if !ok {
		return Room{}, errs.New(errs.ErrNotAuthenticated)
	}

	if name == "" {
		return Room{}, errs.New(errs.ErrRoomNameRequired)
	}
	if isPrivate && password == "" {
		return Room{}, errs.New(errs.ErrInvalidParams, "private room needs a password")
	}

	room, err := r.backend.CreateRoom(ctx, CreateRoomRequest{
		Name:        name,
		Description: description,
		IsPrivate:   isPrivate,
		Password:    password,
		CreatedBy:   cur.UID,
	})
	if err != nil {
		return Room{}, err
	}

	r.mu.Lock()
	r.rooms = append(r.rooms, room)
	r.mu.Unlock()

	return room, nil
}

// DeleteRoom removes a room. Only its creator may delete it; the check runs
// before any network call.
func (r *Reconciler) DeleteRoom(ctx context.Context, roomID string) error {
	cur, ok := r.session.Current()
	if !ok {
		return errs.New(errs.ErrNotAuthenticated)
	}

	r.mu.Lock()
	var createdBy string
	for _, room := range r.rooms {
		if room.ID == roomID {
			createdBy = room.CreatedBy
			break
		}
	}
	r.mu.Unlock()

	if createdBy != "" && createdBy != cur.UID {
		return errs.New(errs.ErrNotRoomCreator)
	}

	if err := r.backend.DeleteRoom(ctx, roomID, cur.UID); err != nil {
		return err
	}

	r.mu.Lock()
	kept := r.rooms[:0]
	for _, room := range r.rooms {
		if room.ID != roomID {
			kept = append(kept, room)
		}
	}
	r.rooms = kept
	if r.openRoomID == roomID {
		r.openRoomID = ""
		r.messages = nil
	}
	r.mu.Unlock()

	return nil
}

// SendMessage submits a message, updates the sender's own view from the send
// response, and broadcasts the server-confirmed record so other participants
// receive it. The sender never relies on receiving its own broadcast back.
func (r *Reconciler) SendMessage(ctx context.Context, roomID, text string, files []FileUpload) (Message, error) {
	cur, ok := r.session.Current()
	if !ok {
		return Message{}, errs.New(errs.ErrNotAuthenticated)
	}

	if text == "" && len(files) == 0 {
		return Message{}, errs.New(errs.ErrEmptyMessage)
	}

	msg, err := r.backend.SendMessage(ctx, roomID, SendMessageRequest{
		Text:   text,
		Sender: cur.Summary,
		Files:  files,
	})
	if err != nil {
		return Message{}, err
	}

	r.mu.Lock()
	if r.openRoomID == roomID {
		r.messages = append(r.messages, msg)
	}
	r.touchLastMessageLocked(roomID, msg, false)
	r.mu.Unlock()

	raw, err := json.Marshal(msg)
	if err == nil {
		if err := r.transport.BroadcastMessage(roomID, raw); err != nil {
			r.logger.Warn().Err(err).Str("room_id", roomID).Msg("Broadcast of sent message failed.")
		}
	}

	return msg, nil
}

// AppendIncoming merges one realtime-delivered message: appended to the open
// room's sequence in arrival order (timestamps are for display only, never for
// reordering), or reflected on the room list as an unread bump otherwise.
func (r *Reconciler) AppendIncoming(roomID string, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if roomID != "" && roomID == r.openRoomID {
		r.messages = append(r.messages, msg)
		return
	}

	r.touchLastMessageLocked(roomID, msg, true)
}

// Run consumes the realtime event stream until ctx is done. It is the single
// subscriber to the transport's events; chat messages flow into the view and a
// connection loss triggers a full resync.
func (r *Reconciler) Run(ctx context.Context) {
	events := r.transport.Events()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}

			switch ev.Type {
			case realtime.EventChatMessage:
				var msg Message
				if err := json.Unmarshal(ev.Message, &msg); err != nil {
					r.logger.Warn().Err(err).Msg("Discarding undecodable incoming message.")
					continue
				}
				roomID := ev.Room
				if roomID == "" {
					roomID = msg.RoomID
				}
				r.AppendIncoming(roomID, msg)

			case realtime.EventDisconnected:
				r.resync(ctx)
			}
		}
	}
}

// resync restores state after a dropped connection: reconnect with backoff,
// reload the authoritative room list, and re-open the room the user was in
// (snapshot wins over anything missed while offline).
func (r *Reconciler) resync(ctx context.Context) {
	cur, ok := r.session.Current()
	if !ok {
		return
	}

	delay := resyncBaseDelay
	for {
		if err := r.transport.EnsureConnected(ctx); err == nil {
			break
		}

		r.logger.Warn().Dur("retry_in", delay).Msg("Reconnect failed, backing off.")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if delay *= 2; delay > resyncMaxDelay {
			delay = resyncMaxDelay
		}
	}

	if _, err := r.LoadRoomList(ctx); err != nil {
		r.logger.Error().Err(err).Msg("Room list reload failed during resync.")
	}

	r.mu.Lock()
	roomID := r.openRoomID
	r.mu.Unlock()

	if roomID == "" {
		return
	}

	messages, err := r.backend.ListMessages(ctx, roomID, HistoryLimit)
	if err != nil {
		r.logger.Error().Err(err).Str("room_id", roomID).Msg("History reload failed during resync.")
		return
	}

	if err := r.transport.JoinRoom(roomID, cur.Summary); err != nil {
		r.logger.Error().Err(err).Str("room_id", roomID).Msg("Rejoin failed during resync.")
		return
	}

	r.mu.Lock()
	if r.openRoomID == roomID {
		r.messages = messages
	}
	r.mu.Unlock()

	r.logger.Info().Str("room_id", roomID).Msg("Resync complete.")
}

// Rooms returns a snapshot of the room collection.
func (r *Reconciler) Rooms() []Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Room, len(r.rooms))
	copy(out, r.rooms)
	return out
}

// Messages returns a snapshot of the open room's message sequence.
func (r *Reconciler) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// OpenRoomID returns the id of the currently open room, empty when none.
func (r *Reconciler) OpenRoomID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openRoomID
}

// replaceRoomLocked swaps the list entry matching room.ID, appending when the
// room was not listed yet. Callers hold r.mu.
func (r *Reconciler) replaceRoomLocked(room Room) {
	for i := range r.rooms {
		if r.rooms[i].ID == room.ID {
			r.rooms[i] = room
			return
		}
	}
	r.rooms = append(r.rooms, room)
}

// touchLastMessageLocked refreshes a listed room's denormalized last-message
// summary, bumping the unread counter when the room is not open. Callers hold r.mu.
func (r *Reconciler) touchLastMessageLocked(roomID string, msg Message, unread bool) {
	for i := range r.rooms {
		if r.rooms[i].ID != roomID {
			continue
		}
		r.rooms[i].LastMessage = &LastMessage{Text: msg.Text, Timestamp: msg.Timestamp}
		if unread {
			r.rooms[i].UnreadCount++
		}
		return
	}
}
