/*
Package main is a line-oriented terminal client for the chatlink backend.

It wires the session store, the API gateway, the realtime connection, and the
room reconciler together, and drives them from stdin commands. Intended for
exercising a running backend (the stub or a real one) by hand.
*/
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"chatlink/internal/app/api"
	"chatlink/internal/app/chat"
	"chatlink/internal/app/realtime"
	"chatlink/internal/app/session"
	"chatlink/internal/configs"
	"chatlink/internal/pkg/logx"
)

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.Environment == "development")

	store := session.NewStore(session.NewFileSlot(cfg.SessionFile))
	gateway := api.NewGateway(cfg.APIBaseURL, store)
	conn := realtime.NewConn(cfg.SocketURL(), store)
	reconciler := chat.NewReconciler(gateway, conn, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reconciler.Run(ctx)

	if cur, ok := store.Current(); ok {
		fmt.Printf("Restored session for %s (%s)\n", cur.DisplayName, cur.UID)
	}

	repl(ctx, store, gateway, conn, reconciler)

	conn.Close()
}

func repl(ctx context.Context, store *session.Store, gateway *api.Gateway, conn *realtime.Conn, reconciler *chat.Reconciler) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Commands: /login <token>, /logout, /rooms, /create <name>, /open <id> [password], /join <id> [password], /send <text>, /history, /who, /leave, /delete <id>, /quit")

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch cmd {
		case "/quit":
			return

		case "/login":
			id, err := gateway.VerifyExternalToken(ctx, rest)
			if err != nil {
				fmt.Println("login failed:", err)
				continue
			}
			store.Login(id)
			fmt.Printf("Logged in as %s (%s)\n", id.DisplayName, id.UID)

		case "/logout":
			store.Logout()

		case "/rooms":
			rooms, err := reconciler.LoadRoomList(ctx)
			if err != nil {
				fmt.Println("list failed:", err)
				continue
			}
			for _, room := range rooms {
				marker := " "
				if room.IsPrivate {
					marker = "*"
				}
				fmt.Printf("%s %s  %s (unread %d)\n", marker, room.ID, room.Name, room.UnreadCount)
			}

		case "/create":
			room, err := reconciler.CreateRoom(ctx, rest, "", false, "")
			if err != nil {
				fmt.Println("create failed:", err)
				continue
			}
			fmt.Println("created room", room.ID)

		case "/open", "/join":
			roomID, password, _ := strings.Cut(rest, " ")
			open := reconciler.OpenRoom
			if cmd == "/join" {
				open = reconciler.ConfirmJoin
			}
			room, err := open(ctx, roomID, strings.TrimSpace(password))
			if err != nil {
				fmt.Println("open failed:", err)
				continue
			}
			fmt.Printf("Opened %s (%d participants)\n", room.Name, len(room.Participants))
			printHistory(reconciler)

		case "/send":
			roomID := reconciler.OpenRoomID()
			if roomID == "" {
				fmt.Println("no open room")
				continue
			}
			if _, err := reconciler.SendMessage(ctx, roomID, rest, nil); err != nil {
				fmt.Println("send failed:", err)
			}

		case "/history":
			printHistory(reconciler)

		case "/who":
			for _, uid := range conn.Presence().Online() {
				fmt.Println(uid)
			}

		case "/leave":
			if err := reconciler.LeaveRoom(ctx); err != nil {
				fmt.Println("leave failed:", err)
			}

		case "/delete":
			if err := reconciler.DeleteRoom(ctx, rest); err != nil {
				fmt.Println("delete failed:", err)
			}

		default:
			fmt.Println("unknown command:", cmd)
		}
	}
}

func printHistory(reconciler *chat.Reconciler) {
	for _, group := range chat.GroupByDate(reconciler.Messages()) {
		fmt.Println("--", group.Date, "--")
		for _, msg := range group.Messages {
			fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Time().Format("15:04"), msg.Sender.DisplayName, msg.Text)
			for _, a := range msg.Attachments {
				fmt.Printf("    attachment: %s (%s)\n", a.Name, a.URL)
			}
		}
	}
}
