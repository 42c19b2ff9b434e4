// Package server exposes HTTP handlers, including the WebSocket upgrade
// endpoint and the health check, via the Server type.
package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// Server ties one hub instance to its HTTP surface. It owns the upgrader,
// the sanitized configuration, and the normalized origin allow-list.
type Server struct {
	cfg             Config
	hub             *Hub
	upgrader        websocket.Upgrader
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
}

// NewServer creates a Server for the given hub. The configuration is
// sanitized on entry; invalid values fall back to defaults.
func NewServer(cfg Config, hub *Hub) *Server {
	s := &Server{
		cfg: cfg.sanitized(),
		hub: hub,
	}
	s.allowedOrigins, s.allowAllOrigins = normalizeOrigins(s.cfg.AllowedOrigins)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Hub returns the hub instance this server fronts, for shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Config returns a copy of the sanitized configuration in effect.
func (s *Server) Config() Config {
	cfg := s.cfg
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// StartHub starts the hub's event loop in a separate goroutine.
// This should be called before starting the HTTP server.
func (s *Server) StartHub() {
	go s.hub.Run()
	log.Println("Hub started and ready to manage WebSocket connections")
}

// WebSocketHandler handles WebSocket upgrade requests. Requests that do not
// ask for a websocket upgrade are rejected with 426 Upgrade Required; a valid
// handshake completes with 101, attaches a new Client to the hub, and the hub
// sends that client its init snapshot before any other traffic.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	if !headerContainsToken(r.Header, "Upgrade", "websocket") {
		w.Header().Set("Upgrade", "websocket")
		http.Error(w, "This endpoint requires a WebSocket upgrade.", http.StatusUpgradeRequired)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg)

	// Register the client with the hub; the hub launches the pump goroutines
	// and queues the init message.
	s.hub.register <- client
}

// HealthHandler provides a simple health check endpoint that returns server status.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "soundmesh server is running!")
}

// headerContainsToken reports whether the named header lists the token in a
// comma-separated, case-insensitive value, per RFC 7230 field parsing.
func headerContainsToken(h http.Header, name, token string) bool {
	for _, value := range h.Values(name) {
		for _, part := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
