package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Users resolves username/password pairs to user ids and creates accounts.
type Users interface {
	Authenticate(ctx context.Context, username, password string) (string, error)
	CreateUser(ctx context.Context, id, username, password string) error
}

// Tokens issues, resolves, and revokes session tokens.
type Tokens interface {
	Issue(ctx context.Context, userID string) (string, error)
	Lookup(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

type contextKey struct{}

// UserID returns the authenticated user id stored by Middleware, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok
}

// Handler exposes the account and session endpoints plus the bearer-token
// middleware.
type Handler struct {
	users  Users
	tokens Tokens
}

// NewHandler creates a Handler over the given credential and token stores.
func NewHandler(users Users, tokens Tokens) *Handler {
	return &Handler{users: users, tokens: tokens}
}

// Register wires the account and session routes onto the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/users", h.CreateUserHandler).Methods("POST")
	r.HandleFunc("/login", h.LoginHandler).Methods("POST")
	r.HandleFunc("/logout", h.LogoutHandler).Methods("POST")
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginHandler checks credentials and responds with a fresh session token.
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Malformed login request.", http.StatusBadRequest)
		return
	}

	userID, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if errors.Is(err, ErrBadCredentials) {
		http.Error(w, "Invalid username or password.", http.StatusUnauthorized)
		return
	}
	if err != nil {
		log.Printf("Login failed for %q: %v", req.Username, err)
		http.Error(w, "Login failed.", http.StatusInternalServerError)
		return
	}

	token, err := h.tokens.Issue(r.Context(), userID)
	if err != nil {
		log.Printf("Issuing token for %q failed: %v", req.Username, err)
		http.Error(w, "Login failed.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(loginResponse{Token: token}); err != nil {
		log.Printf("Error writing login response: %v", err)
	}
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createUserResponse struct {
	ID string `json:"id"`
}

// CreateUserHandler creates an account and responds with its generated id.
func (h *Handler) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Malformed account request.", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required.", http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	if err := h.users.CreateUser(r.Context(), id, req.Username, req.Password); err != nil {
		log.Printf("Creating user %q failed: %v", req.Username, err)
		http.Error(w, "Account creation failed.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(createUserResponse{ID: id}); err != nil {
		log.Printf("Error writing account response: %v", err)
	}
}

// LogoutHandler revokes the bearer token on the request. The token does not
// have to resolve to a user; revoking an already-dead token is still a 204.
func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "Authentication required.", http.StatusUnauthorized)
		return
	}

	if err := h.tokens.Revoke(r.Context(), token); err != nil {
		log.Printf("Token revocation failed: %v", err)
		http.Error(w, "Logout failed.", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Middleware resolves the bearer token on each request to a user identity and
// stores it on the request context. Requests without a valid token get 401.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "Authentication required.", http.StatusUnauthorized)
			return
		}

		userID, err := h.tokens.Lookup(r.Context(), token)
		if errors.Is(err, ErrInvalidToken) {
			http.Error(w, "Invalid or expired session token.", http.StatusUnauthorized)
			return
		}
		if err != nil {
			log.Printf("Token lookup failed: %v", err)
			http.Error(w, "Authentication failed.", http.StatusInternalServerError)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, userID)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
