// Package v1 defines the jobmarket session event protocol v1.
//
// It is the wire contract between the session agent and any front end that
// subscribes to session state changes. Payloads never carry the token.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is the websocket subprotocol negotiated for this contract.
const Subprotocol = "jobmarket.session.v1"

// Type constants (wire-stable).
const (
	// TypeHello starts a subscription handshake (client -> agent).
	TypeHello = "hello"
	// TypeHelloAck acknowledges the handshake (agent -> client).
	TypeHelloAck = "hello_ack"

	// TypeSessionState carries a session state snapshot (agent -> client).
	TypeSessionState = "session.state"

	// TypeError is a generic error envelope (agent -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello, TypeHelloAck, TypeSessionState, TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// NewEnvelope marshals payload into a v1 envelope.
func NewEnvelope(typ, id string, ts time.Time, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{V: Version, Type: typ, ID: id, TS: ts, Payload: raw}, nil
}

// ---- Payloads ----

// HelloPayload is sent by the client to start receiving session events.
type HelloPayload struct{}

// HelloAckPayload carries the subscriber id assigned by the agent.
type HelloAckPayload struct {
	SubscriberID string `json:"subscriber_id"`
}

// ProfilePayload is the wire form of the cached profile.
type ProfilePayload struct {
	SubjectID   string `json:"subject_id"`
	Role        string `json:"role"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Verified    bool   `json:"verified"`
}

// SessionStatePayload is pushed after every observable session change.
type SessionStatePayload struct {
	Phase         string          `json:"phase"`
	Authenticated bool            `json:"authenticated"`
	Loading       bool            `json:"loading"`
	SessionID     string          `json:"session_id,omitempty"`
	Epoch         uint64          `json:"epoch"`
	Profile       *ProfilePayload `json:"profile,omitempty"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
