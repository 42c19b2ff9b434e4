// Package testhelpers provides common utilities and helper functions for
// testing the soundmesh server.
//
// This package contains reusable test utilities that are shared across unit
// and integration tests: spinning up a complete hub instance behind an
// httptest server, dialing WebSocket clients against it, and asserting on
// frames and HTTP responses.
package testhelpers

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/soundmesh/internal/protocol"
	"github.com/Tyrowin/soundmesh/internal/server"
	"github.com/Tyrowin/soundmesh/internal/state"
)

// StartHubServer creates a fresh hub instance with default state behind an
// httptest server and returns both. The hub and HTTP server are torn down
// when the test finishes. Every call creates an isolated instance.
func StartHubServer(t *testing.T, customize func(cfg *server.Config)) (*server.Server, *httptest.Server) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	if customize != nil {
		customize(cfg)
	}

	hub := server.NewHub(state.NewStore())
	srv := server.NewServer(*cfg, hub)
	srv.StartHub()

	testServer := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(func() {
		testServer.Close()
		if err := hub.Shutdown(5 * time.Second); err != nil {
			t.Logf("Hub shutdown error: %v", err)
		}
	})

	return srv, testServer
}

// WebSocketURL rewrites an httptest server URL into the ws:// upgrade URL.
func WebSocketURL(baseURL string) string {
	return "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It fails the test if the handshake does not complete.
func ConnectWebSocket(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// ReadEnvelope reads one frame from the connection and decodes it, failing
// the test on timeout or decode error.
func ReadEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration) protocol.Envelope {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	env, err := protocol.Decode(frame)
	if err != nil {
		t.Fatalf("Received undecodable frame: %v", err)
	}
	return env
}

// ExpectNoMessage asserts that no frame arrives on the connection within the
// timeout. A clean close also counts as "no message".
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, frame, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no message, but received: %s", frame)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of message: %v", err)
}

// SendUpdate transmits an update message carrying the given patch.
func SendUpdate(t *testing.T, conn *websocket.Conn, patch string) {
	t.Helper()

	frame, err := protocol.EncodeUpdate([]byte(patch))
	if err != nil {
		t.Fatalf("Failed to encode update: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("Failed to send update: %v", err)
	}
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
