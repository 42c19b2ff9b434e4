// Package protocol defines the JSON wire messages exchanged between the hub
// and its clients. The three type strings and the field names are part of the
// wire contract and must not change.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Message type discriminators.
const (
	// TypeInit is sent by the hub to one newly connected client and carries
	// the full state snapshot.
	TypeInit = "init"

	// TypeUpdate is sent by a client to the hub and carries a partial patch.
	TypeUpdate = "update"

	// TypeStateUpdate is sent by the hub to every client except the
	// originator after a merge and carries the full post-merge snapshot.
	TypeStateUpdate = "state-update"
)

// Envelope is the tagged wire message. Exactly one of State or Payload is
// populated depending on Type.
type Envelope struct {
	Type    string          `json:"type"`
	State   json.RawMessage `json:"state,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeInit builds the init frame sent to a single newly connected client.
func EncodeInit(snapshot []byte) ([]byte, error) {
	return encode(Envelope{Type: TypeInit, State: snapshot})
}

// EncodeStateUpdate builds the post-merge broadcast frame.
func EncodeStateUpdate(snapshot []byte) ([]byte, error) {
	return encode(Envelope{Type: TypeStateUpdate, State: snapshot})
}

// EncodeUpdate builds the client-to-hub patch frame.
func EncodeUpdate(patch []byte) ([]byte, error) {
	return encode(Envelope{Type: TypeUpdate, Payload: patch})
}

func encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", env.Type, err)
	}
	return data, nil
}

// Decode parses an inbound text frame. A frame that is not valid JSON is an
// error the caller recovers from locally; an unrecognized Type is not an
// error here so unknown messages stay a forward-compatible no-op.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode message: %w", err)
	}
	return env, nil
}
