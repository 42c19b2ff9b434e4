// Package server defines the event and message types that flow through the
// hub loop, plus utility helpers reused across client and hub logic.
package server

import "strings"

// frameEvent is one inbound text frame from a connected client, delivered to
// the hub loop for parsing and dispatch.
type frameEvent struct {
	client *Client
	data   []byte
}

// BroadcastMessage encapsulates a message being fanned out by the hub,
// including the originating client so it can be excluded from delivery.
type BroadcastMessage struct {
	Sender  *Client
	Payload []byte
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
