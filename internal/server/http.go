package server

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	myMiddleware "go-chat-broker/internal/middleware"
	"go-chat-broker/internal/user"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Online int    `json:"online"`
}

type MembersResponse struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
}

type HistoryEntry struct {
	Sender  string    `json:"sender"`
	Target  string    `json:"target"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// Router builds the admin HTTP API and the WebSocket transport. WebSocket
// sessions outlive their upgrade request, so they run under ctx.
func (s *Server) Router(ctx context.Context) http.Handler {
	userHandler := user.NewHandler(s.users)
	authMiddleware := myMiddleware.NewAuthMiddleware(s.users, s.logger)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public Routes
	r.Get("/health", s.health)
	r.Post("/login", userHandler.Login)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.ServeWs(ctx, w, r)
	})

	// Protected Routes (Require JWT)
	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/users/online", s.onlineUsers)
		r.Get("/rooms/{id}/members", s.roomMembers)
		r.Get("/rooms/{id}/history", s.roomHistory)
		r.Get("/groups/{id}/members", s.groupMembers)
		r.Get("/groups/{id}/history", s.groupHistory)
	})

	return r
}

// ServeWs upgrades the request and runs the chat handshake over it. The
// first text message must be a login frame, exactly as on TCP.
func (s *Server) ServeWs(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	s.serve(ctx, newWSConn(c, s.cfg.MaxFrameSize))
}

// checkOrigin admits non-browser clients and the configured CORS origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(s.cfg.CorsOrigins, "*") || slices.Contains(s.cfg.CorsOrigins, origin)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Online: len(s.engine.Registry().AllUsernames()),
	})
}

func (s *Server) onlineUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Registry().AllUsernames())
}

func (s *Server) roomMembers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, MembersResponse{ID: id, Members: s.engine.Registry().RoomMembers(id)})
}

func (s *Server) groupMembers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.engine.Registry().GroupExists(id) {
		http.Error(w, "group not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, MembersResponse{ID: id, Members: s.engine.Registry().GroupMembers(id)})
}

func (s *Server) groupHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exists, err := s.store.CheckGroupID(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "group not found", http.StatusNotFound)
		return
	}

	msgs, err := s.store.GetGroupHistory(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	entries := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, HistoryEntry{Sender: m.Sender, Target: m.GroupID, Content: m.Content, Time: m.Time})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) roomHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msgs, err := s.store.GetRoomHistory(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	entries := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, HistoryEntry{Sender: m.Sender, Target: m.RoomID, Content: m.Content, Time: m.Time})
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
