package presence

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Tyrowin/soundmesh/internal/auth"
)

// Recorder is the store surface the handler needs; *Store satisfies it.
type Recorder interface {
	Touch(ctx context.Context, sessionName, userID string, seen time.Time) error
	Remove(ctx context.Context, sessionName, userID string) error
}

// Handler exposes the presence heartbeat REST endpoints.
type Handler struct {
	store Recorder
	now   func() time.Time
}

// NewHandler creates a Handler over the given presence store.
func NewHandler(store Recorder) *Handler {
	return &Handler{store: store, now: time.Now}
}

// Register wires the presence routes onto the router behind the given
// authentication middleware.
func (h *Handler) Register(r *mux.Router, authn func(http.Handler) http.Handler) {
	r.Handle("/sessions/{session}/presence", authn(http.HandlerFunc(h.TouchHandler))).Methods("POST")
	r.Handle("/sessions/{session}/presence", authn(http.HandlerFunc(h.RemoveHandler))).Methods("DELETE")
}

// TouchHandler upserts the authenticated user's last-seen timestamp for the
// session named in the path. Responds 404 if the session record is missing.
func (h *Handler) TouchHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "Authentication required.", http.StatusUnauthorized)
		return
	}
	sessionName := mux.Vars(r)["session"]

	err := h.store.Touch(r.Context(), sessionName, userID, h.now().UTC())
	if errors.Is(err, ErrSessionNotFound) {
		http.Error(w, "Session not found.", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Presence touch failed for %q in %q: %v", userID, sessionName, err)
		http.Error(w, "Presence update failed.", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveHandler deletes the authenticated user's presence record for the
// session named in the path.
func (h *Handler) RemoveHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "Authentication required.", http.StatusUnauthorized)
		return
	}
	sessionName := mux.Vars(r)["session"]

	if err := h.store.Remove(r.Context(), sessionName, userID); err != nil {
		log.Printf("Presence removal failed for %q in %q: %v", userID, sessionName, err)
		http.Error(w, "Presence removal failed.", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
