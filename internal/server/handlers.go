// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yapperchat/yapper/internal/store"
)

// Service bundles the hub, store, and configuration behind the HTTP surface.
// Everything is threaded through the constructor; there is no package-level
// state.
type Service struct {
	cfg      Config
	log      zerolog.Logger
	hub      *Hub
	db       *store.DB
	origins  *originPolicy
	upgrader websocket.Upgrader
}

// NewService wires the HTTP layer to its collaborators.
func NewService(cfg Config, logger zerolog.Logger, hub *Hub, db *store.DB) *Service {
	s := &Service{
		cfg:     cfg,
		log:     logger.With().Str("component", "http").Logger(),
		hub:     hub,
		db:      db,
		origins: newOriginPolicy(cfg.AllowedOrigins, logger),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	return s
}

// WebSocketHandler upgrades the connection and joins it to the room named in
// the path. user_id and username are required query parameters; missing or
// invalid ones fail the request before any upgrade happens. An upgrade
// failure means the connection was never registered and nothing is cleaned
// up.
func (s *Service) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	roomID, err := strconv.ParseInt(r.PathValue("room_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		http.Error(w, "user_id query parameter is required", http.StatusBadRequest)
		return
	}
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "username query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error; the handshake was rejected
		// and no registry state exists for this connection.
		s.log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.log, s.cfg.MaxMessageSize)
	s.hub.StartClient(client)

	if err := s.hub.HandleJoin(client, roomID, userID, username); err != nil {
		s.log.Error().Err(err).Int64("room", roomID).Msg("join failed")
		client.closeSend()
		client.closeConn()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func (s *Service) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Yapper server is running!")
}

// TestPageHandler serves a small HTML page for exercising the websocket
// endpoint by hand: pick a room, a user id, and a username, then chat.
func (s *Service) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPageHTML)
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Yapper WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; max-width: 800px; margin: 40px auto; padding: 20px; }
        #messages { border: 1px solid #ccc; height: 360px; padding: 10px; overflow-y: auto; margin: 10px 0; background: #f9f9f9; }
        .system { color: #666; font-style: italic; }
        .chat b { color: #1976d2; }
        input { padding: 6px; margin-right: 6px; }
        button { padding: 6px 14px; }
    </style>
</head>
<body>
    <h1>Yapper Test Client</h1>
    <div>
        <label>Room <input id="roomId" type="number" value="1" style="width:70px"></label>
        <label>User ID <input id="userId" type="number" value="1" style="width:70px"></label>
        <label>Username <input id="username" value="alice"></label>
        <button id="connectBtn" onclick="toggle()">Connect</button>
    </div>
    <div id="messages"></div>
    <div>
        <input id="messageInput" placeholder="Type a message..." style="width:70%" disabled>
        <button id="sendBtn" onclick="send()" disabled>Send</button>
    </div>
    <script>
        let ws = null;
        const messages = document.getElementById('messages');
        const input = document.getElementById('messageInput');

        function add(text, cls) {
            const div = document.createElement('div');
            div.className = cls || '';
            div.textContent = text;
            messages.appendChild(div);
            messages.scrollTop = messages.scrollHeight;
        }

        function toggle() {
            if (ws) { ws.close(); return; }
            const room = document.getElementById('roomId').value;
            const uid = document.getElementById('userId').value;
            const name = document.getElementById('username').value;
            ws = new WebSocket('ws://' + location.host + '/ws/' + room + '?user_id=' + uid + '&username=' + encodeURIComponent(name));
            ws.onopen = () => {
                document.getElementById('connectBtn').textContent = 'Disconnect';
                input.disabled = false;
                document.getElementById('sendBtn').disabled = false;
            };
            ws.onmessage = (e) => {
                const ev = JSON.parse(e.data);
                if (ev.type === 'message') {
                    const div = document.createElement('div');
                    div.className = 'chat';
                    const who = document.createElement('b');
                    who.textContent = ev.username + ': ';
                    div.appendChild(who);
                    div.appendChild(document.createTextNode(ev.content));
                    messages.appendChild(div);
                    messages.scrollTop = messages.scrollHeight;
                } else {
                    add(ev.message, 'system');
                }
            };
            ws.onclose = () => {
                add('Connection closed', 'system');
                document.getElementById('connectBtn').textContent = 'Connect';
                input.disabled = true;
                document.getElementById('sendBtn').disabled = true;
                ws = null;
            };
        }

        function send() {
            if (ws && ws.readyState === WebSocket.OPEN && input.value.trim()) {
                ws.send(JSON.stringify({content: input.value}));
                input.value = '';
            }
        }

        input.addEventListener('keypress', (e) => { if (e.key === 'Enter') send(); });
    </script>
</body>
</html>`
