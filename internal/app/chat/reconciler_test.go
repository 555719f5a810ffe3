package chat

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"chatlink/internal/app/identity"
	"chatlink/internal/app/realtime"
	"chatlink/internal/app/session"
	"chatlink/internal/pkg/errs"
)

// fakeBackend is a hand-rolled Backend with per-method canned state and call
// counters.
type fakeBackend struct {
	rooms    map[string]Room
	messages map[string][]Message

	getRoomCalls      int
	participantCalls  []string // "roomID/uid/action"
	sentMessages      []SendMessageRequest
	deleteCalls       int
	listMessagesCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		rooms:    make(map[string]Room),
		messages: make(map[string][]Message),
	}
}

func (b *fakeBackend) ListRooms(ctx context.Context) ([]Room, error) {
	out := make([]Room, 0, len(b.rooms))
	for _, room := range b.rooms {
		out = append(out, room)
	}
	return out, nil
}

func (b *fakeBackend) GetRoom(ctx context.Context, roomID string) (Room, error) {
	b.getRoomCalls++
	room, ok := b.rooms[roomID]
	if !ok {
		return Room{}, errs.New(errs.ErrRoomNotFound, roomID)
	}
	return room, nil
}

func (b *fakeBackend) CreateRoom(ctx context.Context, req CreateRoomRequest) (Room, error) {
	room := Room{
		ID:           "r-new",
		Name:         req.Name,
		Description:  req.Description,
		IsPrivate:    req.IsPrivate,
		Password:     req.Password,
		CreatedBy:    req.CreatedBy,
		Participants: []identity.Summary{{UID: req.CreatedBy}},
	}
	b.rooms[room.ID] = room
	return room, nil
}

func (b *fakeBackend) DeleteRoom(ctx context.Context, roomID, userID string) error {
	b.deleteCalls++
	delete(b.rooms, roomID)
	return nil
}

func (b *fakeBackend) UpdateParticipants(ctx context.Context, roomID, userID, action string) error {
	b.participantCalls = append(b.participantCalls, roomID+"/"+userID+"/"+action)

	room := b.rooms[roomID]
	if action == "add" {
		room.Participants = append(room.Participants, identity.Summary{UID: userID})
		b.rooms[roomID] = room
	}
	return nil
}

func (b *fakeBackend) ListMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	b.listMessagesCalls++
	return b.messages[roomID], nil
}

func (b *fakeBackend) SendMessage(ctx context.Context, roomID string, req SendMessageRequest) (Message, error) {
	b.sentMessages = append(b.sentMessages, req)
	msg := Message{
		ID:        "m-sent",
		RoomID:    roomID,
		Sender:    req.Sender,
		Text:      req.Text,
		Timestamp: At(time.Now()),
	}
	b.messages[roomID] = append(b.messages[roomID], msg)
	return msg, nil
}

// fakeTransport records joins, leaves, and broadcasts.
type fakeTransport struct {
	connectCalls int
	joins        []string
	leaves       []string
	broadcasts   []string // room ids
	events       chan realtime.Event
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan realtime.Event, 16)}
}

func (t *fakeTransport) EnsureConnected(ctx context.Context) error {
	t.connectCalls++
	return nil
}

func (t *fakeTransport) JoinRoom(roomID string, user identity.Summary) error {
	t.joins = append(t.joins, roomID)
	return nil
}

func (t *fakeTransport) LeaveRoom(roomID string, user identity.Summary) error {
	t.leaves = append(t.leaves, roomID)
	return nil
}

func (t *fakeTransport) BroadcastMessage(roomID string, message json.RawMessage) error {
	t.broadcasts = append(t.broadcasts, roomID)
	return nil
}

func (t *fakeTransport) Events() <-chan realtime.Event {
	return t.events
}

func loggedInStore(t *testing.T, uid string) *session.Store {
	t.Helper()

	store := session.NewStore(session.NewFileSlot(filepath.Join(t.TempDir(), "session.json")))
	store.Login(identity.Identity{
		Summary:      identity.Summary{UID: uid, DisplayName: "Tester"},
		AccessToken:  "access",
		RefreshToken: "refresh",
	})
	return store
}

func TestOpenRoom(t *testing.T) {
	newFixture := func(t *testing.T) (*fakeBackend, *fakeTransport, *Reconciler) {
		backend := newFakeBackend()
		transport := newFakeTransport()
		rec := NewReconciler(backend, transport, loggedInStore(t, "u-1"))
		return backend, transport, rec
	}

	t.Run("non-participant needs explicit consent", func(t *testing.T) {
		backend, transport, rec := newFixture(t)
		backend.rooms["r-1"] = Room{ID: "r-1", Participants: []identity.Summary{{UID: "someone-else"}}}

		_, err := rec.OpenRoom(context.Background(), "r-1", "")
		if !errs.HasCode(err, errs.ErrJoinRequired) {
			t.Fatalf("expected ErrJoinRequired, got %v", err)
		}
		if len(transport.joins) != 0 {
			t.Error("must not join before consent")
		}
	})

	t.Run("private room demands the password", func(t *testing.T) {
		backend, transport, rec := newFixture(t)
		backend.rooms["r-1"] = Room{
			ID:           "r-1",
			IsPrivate:    true,
			Password:     "hunter2",
			Participants: []identity.Summary{{UID: "u-1"}},
		}

		_, err := rec.OpenRoom(context.Background(), "r-1", "")
		if !errs.HasCode(err, errs.ErrPasswordRequired) {
			t.Fatalf("expected ErrPasswordRequired, got %v", err)
		}

		_, err = rec.OpenRoom(context.Background(), "r-1", "wrong")
		if !errs.HasCode(err, errs.ErrPasswordMismatch) {
			t.Fatalf("expected ErrPasswordMismatch, got %v", err)
		}

		if len(transport.joins) != 0 {
			t.Error("must not join on password failure")
		}
	})

	t.Run("success loads history, joins, and resets unread", func(t *testing.T) {
		backend, transport, rec := newFixture(t)
		backend.rooms["r-1"] = Room{
			ID:           "r-1",
			Name:         "general",
			UnreadCount:  7,
			Participants: []identity.Summary{{UID: "u-1"}},
		}
		backend.messages["r-1"] = []Message{{ID: "m-1", Text: "hi"}}

		room, err := rec.OpenRoom(context.Background(), "r-1", "")
		if err != nil {
			t.Fatalf("open: %v", err)
		}

		if room.UnreadCount != 0 {
			t.Errorf("expected unread reset, got %d", room.UnreadCount)
		}
		if transport.connectCalls != 1 || len(transport.joins) != 1 || transport.joins[0] != "r-1" {
			t.Errorf("expected connect and join, got %d/%v", transport.connectCalls, transport.joins)
		}
		if msgs := rec.Messages(); len(msgs) != 1 || msgs[0].ID != "m-1" {
			t.Errorf("unexpected history: %+v", msgs)
		}
	})

	t.Run("opening always re-fetches the room", func(t *testing.T) {
		backend, _, rec := newFixture(t)
		backend.rooms["r-1"] = Room{ID: "r-1", Participants: []identity.Summary{{UID: "u-1"}}}

		rec.OpenRoom(context.Background(), "r-1", "")
		rec.OpenRoom(context.Background(), "r-1", "")

		if backend.getRoomCalls != 2 {
			t.Errorf("expected a fetch per open, got %d", backend.getRoomCalls)
		}
	})
}

func TestConfirmJoin(t *testing.T) {
	t.Run("validates the password before mutating the participant set", func(t *testing.T) {
		backend := newFakeBackend()
		transport := newFakeTransport()
		rec := NewReconciler(backend, transport, loggedInStore(t, "u-1"))

		backend.rooms["r-1"] = Room{ID: "r-1", IsPrivate: true, Password: "hunter2"}

		_, err := rec.ConfirmJoin(context.Background(), "r-1", "wrong")
		if !errs.HasCode(err, errs.ErrPasswordMismatch) {
			t.Fatalf("expected ErrPasswordMismatch, got %v", err)
		}
		if len(backend.participantCalls) != 0 {
			t.Error("must not touch the participant set on password failure")
		}

		room, err := rec.ConfirmJoin(context.Background(), "r-1", "hunter2")
		if err != nil {
			t.Fatalf("confirm join: %v", err)
		}
		if len(backend.participantCalls) != 1 || backend.participantCalls[0] != "r-1/u-1/add" {
			t.Errorf("unexpected participant calls: %v", backend.participantCalls)
		}
		if !room.HasParticipant("u-1") {
			t.Error("expected the identity among participants after join")
		}
	})
}

func TestAppendIncoming(t *testing.T) {
	setup := func(t *testing.T) (*fakeBackend, *Reconciler) {
		backend := newFakeBackend()
		rec := NewReconciler(backend, newFakeTransport(), loggedInStore(t, "u-1"))
		backend.rooms["r-1"] = Room{ID: "r-1", Participants: []identity.Summary{{UID: "u-1"}}}
		backend.rooms["r-2"] = Room{ID: "r-2", Participants: []identity.Summary{{UID: "u-1"}}}
		if _, err := rec.LoadRoomList(context.Background()); err != nil {
			t.Fatal(err)
		}
		if _, err := rec.OpenRoom(context.Background(), "r-1", ""); err != nil {
			t.Fatal(err)
		}
		return backend, rec
	}

	t.Run("open room messages append in arrival order", func(t *testing.T) {
		_, rec := setup(t)

		// Deliberately decreasing timestamps: arrival order must win.
		rec.AppendIncoming("r-1", Message{ID: "m-1", Timestamp: Timestamp{Seconds: 200}})
		rec.AppendIncoming("r-1", Message{ID: "m-2", Timestamp: Timestamp{Seconds: 100}})

		msgs := rec.Messages()
		if len(msgs) != 2 || msgs[0].ID != "m-1" || msgs[1].ID != "m-2" {
			t.Errorf("expected arrival order m-1,m-2, got %+v", msgs)
		}
	})

	t.Run("other rooms get an unread bump and last message", func(t *testing.T) {
		_, rec := setup(t)

		rec.AppendIncoming("r-2", Message{ID: "m-3", Text: "psst"})
		rec.AppendIncoming("r-2", Message{ID: "m-4", Text: "hey"})

		for _, room := range rec.Rooms() {
			if room.ID != "r-2" {
				continue
			}
			if room.UnreadCount != 2 {
				t.Errorf("expected unread 2, got %d", room.UnreadCount)
			}
			if room.LastMessage == nil || room.LastMessage.Text != "hey" {
				t.Errorf("expected last message hey, got %+v", room.LastMessage)
			}
		}

		if len(rec.Messages()) != 0 {
			t.Error("open room sequence must not receive other rooms' messages")
		}
	})
}

func TestSendMessage(t *testing.T) {
	setup := func(t *testing.T) (*fakeBackend, *fakeTransport, *Reconciler) {
		backend := newFakeBackend()
		transport := newFakeTransport()
		rec := NewReconciler(backend, transport, loggedInStore(t, "u-1"))
		backend.rooms["r-1"] = Room{ID: "r-1", Participants: []identity.Summary{{UID: "u-1"}}}
		if _, err := rec.OpenRoom(context.Background(), "r-1", ""); err != nil {
			t.Fatal(err)
		}
		return backend, transport, rec
	}

	t.Run("empty message never reaches the backend", func(t *testing.T) {
		backend, _, rec := setup(t)

		_, err := rec.SendMessage(context.Background(), "r-1", "", nil)
		if !errs.HasCode(err, errs.ErrEmptyMessage) {
			t.Fatalf("expected ErrEmptyMessage, got %v", err)
		}
		if len(backend.sentMessages) != 0 {
			t.Error("backend must not be called for an empty message")
		}
	})

	t.Run("success appends once and broadcasts once", func(t *testing.T) {
		_, transport, rec := setup(t)

		msg, err := rec.SendMessage(context.Background(), "r-1", "hello", nil)
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		if msg.ID != "m-sent" {
			t.Errorf("expected the server-confirmed record, got %+v", msg)
		}

		msgs := rec.Messages()
		if len(msgs) != 1 || msgs[0].ID != "m-sent" {
			t.Errorf("expected exactly one appended entry, got %+v", msgs)
		}
		if len(transport.broadcasts) != 1 || transport.broadcasts[0] != "r-1" {
			t.Errorf("expected exactly one broadcast, got %v", transport.broadcasts)
		}
	})
}

func TestDeleteRoom(t *testing.T) {
	t.Run("only the creator may delete", func(t *testing.T) {
		backend := newFakeBackend()
		rec := NewReconciler(backend, newFakeTransport(), loggedInStore(t, "u-1"))
		backend.rooms["r-1"] = Room{ID: "r-1", CreatedBy: "someone-else"}
		if _, err := rec.LoadRoomList(context.Background()); err != nil {
			t.Fatal(err)
		}

		err := rec.DeleteRoom(context.Background(), "r-1")
		if !errs.HasCode(err, errs.ErrNotRoomCreator) {
			t.Fatalf("expected ErrNotRoomCreator, got %v", err)
		}
		if backend.deleteCalls != 0 {
			t.Error("backend must not be called when the check fails")
		}
	})

	t.Run("creator delete removes the room locally", func(t *testing.T) {
		backend := newFakeBackend()
		rec := NewReconciler(backend, newFakeTransport(), loggedInStore(t, "u-1"))
		backend.rooms["r-1"] = Room{ID: "r-1", CreatedBy: "u-1"}
		if _, err := rec.LoadRoomList(context.Background()); err != nil {
			t.Fatal(err)
		}

		if err := rec.DeleteRoom(context.Background(), "r-1"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if len(rec.Rooms()) != 0 {
			t.Errorf("expected empty room list, got %+v", rec.Rooms())
		}
	})
}

func TestRunDeliversMessages(t *testing.T) {
	t.Run("chat-message events flow into the open room", func(t *testing.T) {
		backend := newFakeBackend()
		transport := newFakeTransport()
		rec := NewReconciler(backend, transport, loggedInStore(t, "u-1"))
		backend.rooms["r-1"] = Room{ID: "r-1", Participants: []identity.Summary{{UID: "u-1"}}}
		if _, err := rec.OpenRoom(context.Background(), "r-1", ""); err != nil {
			t.Fatal(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			rec.Run(ctx)
			close(done)
		}()

		raw, _ := json.Marshal(Message{ID: "m-in", Text: "hi there"})
		transport.events <- realtime.Event{Type: realtime.EventChatMessage, Room: "r-1", Message: raw}

		deadline := time.After(2 * time.Second)
		for {
			if msgs := rec.Messages(); len(msgs) == 1 && msgs[0].ID == "m-in" {
				break
			}
			select {
			case <-deadline:
				t.Fatalf("message never delivered: %+v", rec.Messages())
			case <-time.After(10 * time.Millisecond):
			}
		}

		cancel()
		<-done
	})
}

func TestGroupByDate(t *testing.T) {
	day := func(y int, m time.Month, d int) Timestamp {
		return At(time.Date(y, m, d, 12, 0, 0, 0, time.Local))
	}

	t.Run("groups keep first-seen order", func(t *testing.T) {
		msgs := []Message{
			{ID: "a", Timestamp: day(2026, time.March, 2)},
			{ID: "b", Timestamp: day(2026, time.March, 1)},
			{ID: "c", Timestamp: day(2026, time.March, 2)},
		}

		groups := GroupByDate(msgs)
		if len(groups) != 2 {
			t.Fatalf("expected 2 groups, got %d", len(groups))
		}
		if groups[0].Date != "02/03/2026" || groups[1].Date != "01/03/2026" {
			t.Errorf("expected first-seen group order, got %s then %s", groups[0].Date, groups[1].Date)
		}
		if len(groups[0].Messages) != 2 || groups[0].Messages[0].ID != "a" || groups[0].Messages[1].ID != "c" {
			t.Errorf("messages must keep sequence order within a group: %+v", groups[0].Messages)
		}
	})

	t.Run("empty input yields no groups", func(t *testing.T) {
		if groups := GroupByDate(nil); len(groups) != 0 {
			t.Errorf("expected no groups, got %+v", groups)
		}
	})
}
