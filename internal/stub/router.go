/*
Package stub is the in-process backing service: the REST and realtime surface
the client core talks to, kept entirely in memory.

This file defines the Router, applying CORS, request logging, and IP-based rate
limiting before delegating to the REST handlers and the websocket upgrade.
*/
package stub

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"chatlink/internal/configs"
	"chatlink/internal/pkg/limiter"
	"chatlink/internal/pkg/logx"
)

const (
	// verify and create are the abuse-prone endpoints; both get their own bucket.
	VerifyRate  = 0.2
	VerifyBurst = 5
	CreateRate  = 0.05
	CreateBurst = 2
)

// Server bundles the stub's state with its HTTP surface.
type Server struct {
	Store *Store
	Hub   *Hub

	handler http.Handler
}

// NewServer assembles the store, the hub, and the routing table.
func NewServer(cfg *configs.AppConfig) *Server {
	s := &Server{
		Store: NewStore(),
		Hub:   NewHub(),
	}
	s.handler = s.router(cfg)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Shutdown stops the hub and disconnects every realtime client.
func (s *Server) Shutdown() {
	s.Hub.Shutdown()
}

func (s *Server) router(cfg *configs.AppConfig) http.Handler {
	verifyLimiter := limiter.NewIPRateLimiter(rate.Limit(VerifyRate), VerifyBurst)
	createLimiter := limiter.NewIPRateLimiter(rate.Limit(CreateRate), CreateBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range cfg.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if cfg.Environment == "development" {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("Websocket connection rejected: origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if cfg.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(cfg.AllowedOrigins) > 0 {
		corsAllowedOrigins = cfg.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "chatlink stub"})
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/auth", func(auth chi.Router) {
			auth.With(verifyLimiter.Middleware).Post("/verify-firebase-token", HandleVerifyToken(s.Store, cfg.JWTSecret))
			auth.Post("/refresh-token", HandleRefreshToken(s.Store, cfg.JWTSecret))
		})

		api.Group(func(private chi.Router) {
			private.Use(RequireAccess(cfg.JWTSecret))

			private.Route("/room", func(room chi.Router) {
				room.Get("/", HandleListRooms(s.Store))
				room.With(createLimiter.Middleware).Post("/create", HandleCreateRoom(s.Store))
				room.Get("/{id}", HandleGetRoom(s.Store))
				room.Delete("/{id}", HandleDeleteRoom(s.Store))
				room.Put("/{id}/participants", HandleUpdateParticipants(s.Store))
			})

			private.Route("/message", func(message chi.Router) {
				message.Get("/{roomId}", HandleListMessages(s.Store))
				message.Post("/{roomId}", HandleSendMessage(s.Store))
			})
		})
	})

	r.Get("/ws", s.handleWebsocket(upgrader))

	return r
}

// handleWebsocket upgrades the connection and starts the client pumps.
func (s *Server) handleWebsocket(upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to websocket")
			return
		}

		c := newClient(s.Hub, conn)
		s.Hub.register <- c

		go c.writePump()
		c.readPump()
	}
}
