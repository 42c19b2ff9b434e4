package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeUsers struct {
	id      string
	err     error
	created map[string]string
}

func (f *fakeUsers) Authenticate(_ context.Context, _, _ string) (string, error) {
	return f.id, f.err
}

func (f *fakeUsers) CreateUser(_ context.Context, id, username, _ string) error {
	if f.err != nil {
		return f.err
	}
	if f.created == nil {
		f.created = make(map[string]string)
	}
	f.created[username] = id
	return nil
}

type fakeTokens struct {
	issued string
	users  map[string]string
}

func (f *fakeTokens) Issue(_ context.Context, userID string) (string, error) {
	if f.users == nil {
		f.users = make(map[string]string)
	}
	f.users[f.issued] = userID
	return f.issued, nil
}

func (f *fakeTokens) Lookup(_ context.Context, token string) (string, error) {
	userID, ok := f.users[token]
	if !ok {
		return "", ErrInvalidToken
	}
	return userID, nil
}

func (f *fakeTokens) Revoke(_ context.Context, token string) error {
	delete(f.users, token)
	return nil
}

// TestLoginHandler verifies the credential check and token issuance flow.
func TestLoginHandler(t *testing.T) {
	t.Run("Valid credentials yield a token", func(t *testing.T) {
		handler := NewHandler(&fakeUsers{id: "user-1"}, &fakeTokens{issued: "tok-123"})
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"ada","password":"hunter2"}`))
		rec := httptest.NewRecorder()

		handler.LoginHandler(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rec.Code)
		}
		var resp struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Token != "tok-123" {
			t.Errorf("Expected token tok-123, got %q", resp.Token)
		}
	})

	t.Run("Bad credentials yield 401", func(t *testing.T) {
		handler := NewHandler(&fakeUsers{err: ErrBadCredentials}, &fakeTokens{issued: "tok-123"})
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"ada","password":"wrong"}`))
		rec := httptest.NewRecorder()

		handler.LoginHandler(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected status 401, got %d", rec.Code)
		}
	})

	t.Run("Malformed body yields 400", func(t *testing.T) {
		handler := NewHandler(&fakeUsers{id: "user-1"}, &fakeTokens{issued: "tok-123"})
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{nope`))
		rec := httptest.NewRecorder()

		handler.LoginHandler(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", rec.Code)
		}
	})
}

// TestCreateUserHandler verifies the account creation endpoint.
func TestCreateUserHandler(t *testing.T) {
	t.Run("Valid request creates the account", func(t *testing.T) {
		users := &fakeUsers{}
		handler := NewHandler(users, &fakeTokens{})
		req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{"username":"ada","password":"hunter2"}`))
		rec := httptest.NewRecorder()

		handler.CreateUserHandler(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d", rec.Code)
		}
		var resp struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.ID == "" {
			t.Error("Expected a generated user id in the response")
		}
		if users.created["ada"] != resp.ID {
			t.Errorf("Created id %q does not match response id %q", users.created["ada"], resp.ID)
		}
	})

	t.Run("Empty credentials yield 400", func(t *testing.T) {
		users := &fakeUsers{}
		handler := NewHandler(users, &fakeTokens{})
		req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{"username":"","password":""}`))
		rec := httptest.NewRecorder()

		handler.CreateUserHandler(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", rec.Code)
		}
		if len(users.created) != 0 {
			t.Errorf("Account created despite empty credentials: %v", users.created)
		}
	})

	t.Run("Malformed body yields 400", func(t *testing.T) {
		handler := NewHandler(&fakeUsers{}, &fakeTokens{})
		req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{nope`))
		rec := httptest.NewRecorder()

		handler.CreateUserHandler(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", rec.Code)
		}
	})
}

// TestLogoutHandler verifies token revocation.
func TestLogoutHandler(t *testing.T) {
	t.Run("Logout invalidates the token", func(t *testing.T) {
		tokens := &fakeTokens{users: map[string]string{"tok-abc": "user-7"}}
		handler := NewHandler(&fakeUsers{}, tokens)

		req := httptest.NewRequest(http.MethodPost, "/logout", http.NoBody)
		req.Header.Set("Authorization", "Bearer tok-abc")
		rec := httptest.NewRecorder()

		handler.LogoutHandler(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("Expected status 204, got %d", rec.Code)
		}
		if _, err := tokens.Lookup(context.Background(), "tok-abc"); err == nil {
			t.Error("Token still resolves after logout")
		}
	})

	t.Run("Missing token yields 401", func(t *testing.T) {
		handler := NewHandler(&fakeUsers{}, &fakeTokens{})
		req := httptest.NewRequest(http.MethodPost, "/logout", http.NoBody)
		rec := httptest.NewRecorder()

		handler.LogoutHandler(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected status 401, got %d", rec.Code)
		}
	})
}

// TestMiddleware verifies bearer-token resolution to a user identity.
func TestMiddleware(t *testing.T) {
	tokens := &fakeTokens{issued: "tok-abc", users: map[string]string{"tok-abc": "user-7"}}
	handler := NewHandler(&fakeUsers{}, tokens)

	var sawUser string
	protected := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawUser, _ = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("Valid token resolves the user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/protected", http.NoBody)
		req.Header.Set("Authorization", "Bearer tok-abc")
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("Expected status 204, got %d", rec.Code)
		}
		if sawUser != "user-7" {
			t.Errorf("Expected user-7 on context, got %q", sawUser)
		}
	})

	t.Run("Missing token yields 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/protected", http.NoBody)
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected status 401, got %d", rec.Code)
		}
	})

	t.Run("Unknown token yields 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/protected", http.NoBody)
		req.Header.Set("Authorization", "Bearer tok-expired")
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("Expected status 401, got %d", rec.Code)
		}
	})
}
