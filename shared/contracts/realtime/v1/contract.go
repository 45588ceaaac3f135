// Package v1 defines the fleetdash push-channel contract, version 1.
//
// The server pushes small JSON frames. A frame is either a heartbeat
// ({"type":"ping"}, answered with {"type":"pong"}) or a domain event
// ({"type":"<event>","payload":<opaque>}). Payloads are opaque to the
// client: events only tell it which cached resources went stale.
//
// This package is dependency-light so both the client and test servers can share it.
package v1

import (
	"encoding/json"
	"errors"
	"strings"
)

// Heartbeat types (wire-stable).
const (
	// TypePing is a server heartbeat request.
	TypePing = "ping"
	// TypePong is the client heartbeat response.
	TypePong = "pong"
)

// Domain event types (server -> client).
const (
	TypeNodeStatus    = "node_status"
	TypeNodeUpdate    = "node_update"
	TypeUserUpdate    = "user_update"
	TypeUserCreated   = "user_created"
	TypeUserDeleted   = "user_deleted"
	TypeUserTraffic   = "user_traffic"
	TypeAuditEvent    = "audit_event"
	TypeScriptUpdate  = "script_update"
	TypeBillingUpdate = "billing_update"
	TypeMailEvent     = "mail_event"
	TypeSystemStats   = "system_stats"
)

// Frame is the canonical wire wrapper.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs structural validation. Unknown types are valid:
// receivers decide whether they care.
func (f Frame) Validate() error {
	if strings.TrimSpace(f.Type) == "" {
		return errors.New("missing field: type")
	}
	return nil
}

// IsHeartbeat reports whether the frame is a ping or pong.
func (f Frame) IsHeartbeat() bool {
	return f.Type == TypePing || f.Type == TypePong
}

// Decode parses and validates a single frame.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Encode serializes a frame.
func Encode(f Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(f)
}

// Pong returns the heartbeat response frame.
func Pong() Frame { return Frame{Type: TypePong} }
