package stub

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chatlink/internal/app/api"
	"chatlink/internal/app/chat"
	"chatlink/internal/app/identity"
	"chatlink/internal/app/realtime"
	"chatlink/internal/app/session"
	"chatlink/internal/configs"
	"chatlink/internal/pkg/auth/jwt"
	"chatlink/internal/pkg/errs"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	cfg := &configs.AppConfig{
		Environment: "development",
		JWTSecret:   testSecret,
	}

	srv := NewServer(cfg)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown()
	})

	return srv, ts
}

// loginClient builds a gateway bound to a fresh session store and logs it in
// through the verify endpoint.
func loginClient(t *testing.T, baseURL, idToken string) (*api.Gateway, *session.Store) {
	t.Helper()

	store := session.NewStore(session.NewFileSlot(filepath.Join(t.TempDir(), "session.json")))
	gateway := api.NewGateway(baseURL, store)

	id, err := gateway.VerifyExternalToken(context.Background(), idToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	store.Login(id)

	return gateway, store
}

func TestAuthEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	t.Run("verify mints a usable credential pair", func(t *testing.T) {
		gateway, store := loginClient(t, ts.URL, "alice:Alice")

		cur, ok := store.Current()
		if !ok || cur.UID != "alice" || cur.DisplayName != "Alice" {
			t.Fatalf("unexpected identity: %+v", cur)
		}
		if cur.AccessToken == "" || cur.RefreshToken == "" {
			t.Fatal("expected a full credential pair")
		}

		// The minted access token must open the protected surface.
		if _, err := gateway.ListRooms(context.Background()); err != nil {
			t.Fatalf("authenticated list: %v", err)
		}
	})

	t.Run("garbage external token is rejected", func(t *testing.T) {
		gateway := api.NewGateway(ts.URL, session.NewStore(session.NewFileSlot(filepath.Join(t.TempDir(), "s.json"))))

		if _, err := gateway.VerifyExternalToken(context.Background(), "no-separator"); err == nil {
			t.Fatal("expected rejection of an unverifiable token")
		}
	})

	t.Run("protected routes demand a credential", func(t *testing.T) {
		store := session.NewStore(session.NewFileSlot(filepath.Join(t.TempDir(), "s.json")))
		gateway := api.NewGateway(ts.URL, store)

		_, err := gateway.ListRooms(context.Background())
		if !errs.HasCode(err, errs.ErrCredentialExpired) {
			t.Fatalf("expected credential failure, got %v", err)
		}
	})

	t.Run("expired access credential is refreshed transparently", func(t *testing.T) {
		gateway, store := loginClient(t, ts.URL, "carol:Carol")

		// Swap in an already-expired access token; the refresh credential stays valid.
		expired, err := jwt.Generate("carol", jwt.UseAccess, testSecret, -time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		store.RotateAccessCredential(expired)

		if _, err := gateway.ListRooms(context.Background()); err != nil {
			t.Fatalf("expected transparent recovery, got %v", err)
		}

		cur, _ := store.Current()
		if cur.AccessToken == expired {
			t.Error("expected a rotated access credential")
		}
	})
}

func TestRoomAndMessageFlow(t *testing.T) {
	_, ts := newTestServer(t)
	gateway, _ := loginClient(t, ts.URL, "alice:Alice")
	ctx := context.Background()

	room, err := gateway.CreateRoom(ctx, chat.CreateRoomRequest{Name: "general", CreatedBy: "alice"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if room.ID == "" || !room.HasParticipant("alice") {
		t.Fatalf("unexpected room: %+v", room)
	}

	t.Run("rooms are listed and fetched", func(t *testing.T) {
		rooms, err := gateway.ListRooms(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(rooms) != 1 || rooms[0].ID != room.ID {
			t.Fatalf("unexpected list: %+v", rooms)
		}

		fetched, err := gateway.GetRoom(ctx, room.ID)
		if err != nil {
			t.Fatal(err)
		}
		if fetched.Name != "general" {
			t.Errorf("unexpected room: %+v", fetched)
		}
	})

	t.Run("missing room maps to ErrRoomNotFound", func(t *testing.T) {
		_, err := gateway.GetRoom(ctx, "nope")
		if !errs.HasCode(err, errs.ErrRoomNotFound) {
			t.Fatalf("expected ErrRoomNotFound, got %v", err)
		}
	})

	t.Run("participants can be added and removed", func(t *testing.T) {
		if err := gateway.UpdateParticipants(ctx, room.ID, "bob", api.ParticipantAdd); err != nil {
			t.Fatal(err)
		}
		fetched, _ := gateway.GetRoom(ctx, room.ID)
		if !fetched.HasParticipant("bob") {
			t.Error("expected bob among participants")
		}

		if err := gateway.UpdateParticipants(ctx, room.ID, "bob", api.ParticipantRemove); err != nil {
			t.Fatal(err)
		}
		fetched, _ = gateway.GetRoom(ctx, room.ID)
		if fetched.HasParticipant("bob") {
			t.Error("expected bob removed")
		}
	})

	t.Run("messages get server-assigned id and timestamp", func(t *testing.T) {
		sent, err := gateway.SendMessage(ctx, room.ID, chat.SendMessageRequest{
			Text:   "hello",
			Sender: identity.Summary{UID: "alice", DisplayName: "Alice"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if sent.ID == "" || sent.Timestamp.Seconds == 0 {
			t.Errorf("expected assigned id and timestamp, got %+v", sent)
		}

		history, err := gateway.ListMessages(ctx, room.ID, 50)
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 1 || history[0].ID != sent.ID {
			t.Errorf("unexpected history: %+v", history)
		}

		fetched, _ := gateway.GetRoom(ctx, room.ID)
		if fetched.LastMessage == nil || fetched.LastMessage.Text != "hello" {
			t.Errorf("expected last message summary, got %+v", fetched.LastMessage)
		}
	})

	t.Run("attachment send carries file metadata", func(t *testing.T) {
		sent, err := gateway.SendMessage(ctx, room.ID, chat.SendMessageRequest{
			Text:   "with file",
			Sender: identity.Summary{UID: "alice"},
			Files: []chat.FileUpload{
				{Name: "notes.txt", MimeType: "text/plain", Data: []byte("hello world")},
			},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(sent.Attachments) != 1 {
			t.Fatalf("expected one attachment, got %+v", sent.Attachments)
		}
		a := sent.Attachments[0]
		if a.Name != "notes.txt" || a.MimeType != "text/plain" || a.Size != int64(len("hello world")) {
			t.Errorf("unexpected attachment: %+v", a)
		}
		if a.URL == "" {
			t.Error("expected a reference URL")
		}
	})

	t.Run("only the creator may delete", func(t *testing.T) {
		mallory, _ := loginClient(t, ts.URL, "mallory:Mallory")

		err := mallory.DeleteRoom(ctx, room.ID, "mallory")
		if !errs.HasCode(err, errs.ErrBackendStatus) {
			t.Fatalf("expected a rejected delete, got %v", err)
		}

		if err := gateway.DeleteRoom(ctx, room.ID, "alice"); err != nil {
			t.Fatalf("creator delete: %v", err)
		}
		if _, err := gateway.GetRoom(ctx, room.ID); !errs.HasCode(err, errs.ErrRoomNotFound) {
			t.Fatalf("expected the room gone, got %v", err)
		}
	})
}

func TestRealtimeRelay(t *testing.T) {
	_, ts := newTestServer(t)
	ctx := context.Background()

	gateway, _ := loginClient(t, ts.URL, "alice:Alice")
	room, err := gateway.CreateRoom(ctx, chat.CreateRoomRequest{Name: "general", CreatedBy: "alice"})
	if err != nil {
		t.Fatal(err)
	}

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	connect := func(t *testing.T, uid string) *realtime.Conn {
		store := session.NewStore(session.NewFileSlot(filepath.Join(t.TempDir(), uid+".json")))
		store.Login(identity.Identity{Summary: identity.Summary{UID: uid}, AccessToken: "a"})

		conn := realtime.NewConn(wsURL, store)
		if err := conn.EnsureConnected(ctx); err != nil {
			t.Fatalf("connect %s: %v", uid, err)
		}
		t.Cleanup(conn.Close)
		return conn
	}

	alice := connect(t, "alice")
	bob := connect(t, "bob")

	if err := alice.JoinRoom(room.ID, identity.Summary{UID: "alice"}); err != nil {
		t.Fatal(err)
	}
	if err := bob.JoinRoom(room.ID, identity.Summary{UID: "bob"}); err != nil {
		t.Fatal(err)
	}

	// Bob's join reaches alice as a presence event.
	select {
	case ev := <-alice.Events():
		if ev.Type != realtime.EventUserOnline || ev.UserID != "bob" {
			t.Fatalf("expected bob online, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("presence never relayed")
	}

	raw, _ := json.Marshal(chat.Message{ID: "m-1", RoomID: room.ID, Text: "hi bob"})
	if err := alice.BroadcastMessage(room.ID, raw); err != nil {
		t.Fatal(err)
	}

	t.Run("room members receive the broadcast", func(t *testing.T) {
		select {
		case ev := <-bob.Events():
			if ev.Type != realtime.EventChatMessage || ev.Room != room.ID {
				t.Fatalf("unexpected event: %+v", ev)
			}
			var msg chat.Message
			if err := json.Unmarshal(ev.Message, &msg); err != nil || msg.Text != "hi bob" {
				t.Fatalf("unexpected payload: %s", ev.Message)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("broadcast never relayed")
		}
	})

	t.Run("the sender is not echoed its own broadcast", func(t *testing.T) {
		select {
		case ev := <-alice.Events():
			if ev.Type == realtime.EventChatMessage {
				t.Fatalf("sender received its own broadcast: %+v", ev)
			}
		case <-time.After(300 * time.Millisecond):
		}
	})
}
