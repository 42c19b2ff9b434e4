// Package server wires HTTP handlers into a router for the soundmesh
// application via routing helpers.
package server

import "github.com/gorilla/mux"

// SetupRoutes configures and returns a router with the hub's own routes:
// health check and the WebSocket upgrade endpoint. Collaborator surfaces
// (login, presence) register themselves on the returned router.
func (s *Server) SetupRoutes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.HealthHandler).Methods("GET")
	r.HandleFunc("/ws", s.WebSocketHandler)
	return r
}
