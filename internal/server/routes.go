// Package server wires HTTP handlers into a ServeMux for the chat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/yapperchat/yapper/internal/metrics"
)

// Routes configures the full HTTP surface: health check, websocket endpoint,
// message history, room and user management, Prometheus metrics, and the
// built-in test page. REST responses pass through CORS middleware built from
// the configured origin allowlist.
func (s *Service) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.HealthHandler)
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /test", s.TestPageHandler)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /ws/{room_id}", s.WebSocketHandler)
	mux.HandleFunc("GET /ws/{room_id}/messages", s.RoomMessagesHandler)

	mux.HandleFunc("GET /rooms", s.ListRoomsHandler)
	mux.HandleFunc("POST /rooms", s.CreateRoomHandler)
	mux.HandleFunc("DELETE /rooms/{room_id}", s.DeleteRoomHandler)
	mux.HandleFunc("PATCH /rooms/{room_id}/name", s.RenameRoomHandler)
	mux.HandleFunc("GET /rooms/{room_id}/messages", s.RoomMessagesHandler)

	mux.HandleFunc("POST /users", s.CreateUserHandler)
	mux.HandleFunc("GET /users/{user_id}", s.GetUserHandler)
	mux.HandleFunc("DELETE /users/{user_id}", s.DeleteUserHandler)

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins.allowedList(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}
