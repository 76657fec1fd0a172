// Package protocol defines the WebSocket message types and structures used
// for communication between chat clients and the gateway. All messages are
// serialized as JSON and follow a consistent envelope format with a type
// discriminator. Event names and payload field names are stable: the web and
// mobile clients of the collaboration platform depend on them.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeAuthenticate      = "authenticate"
	TypeJoinConversation  = "join-conversation"
	TypeSendMessage       = "send-message"
	TypeLeaveConversation = "leave-conversation"
)

// Server -> Client message types.
const (
	TypeAuthenticated      = "authenticated"
	TypeJoinedConversation = "joined-conversation"
	TypeNewMessage         = "new-message"
	TypeError              = "error"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// AuthenticateMsg carries the bearer token for the one-shot connection
// authentication gate. The token is the same JWT issued by the REST API's
// login endpoint.
type AuthenticateMsg struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// JoinConversationMsg asks to join a conversation room. ConversationID is a
// pair key of the form "<idA>-<idB>": two user identifiers joined by a
// hyphen, in either order.
type JoinConversationMsg struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

// SendMessageMsg carries a chat message addressed to a conversation pair.
// Timestamp is client-supplied and advisory only; the server assigns the
// authoritative timestamp at persistence time. It is kept as raw JSON so
// that clients sending either strings or epoch numbers are accepted.
type SendMessageMsg struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversationId"`
	Message        string          `json:"message"`
	Timestamp      json.RawMessage `json:"timestamp,omitempty"`
}

// LeaveConversationMsg asks to leave a conversation room. Same pair-key
// format as JoinConversationMsg.
type LeaveConversationMsg struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// AuthenticatedMsg reports the outcome of the authenticate event. On failure
// the server closes the connection right after sending it.
type AuthenticatedMsg struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	UserID  int64  `json:"userId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JoinedConversationMsg confirms a successful room join. RoomName is the
// canonical (sorted) pair key actually used as the room; ConversationID
// echoes the key the client asked for.
type JoinedConversationMsg struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	RoomName       string `json:"roomName"`
}

// NewMessageMsg is the authoritative message broadcast to every socket in a
// conversation room, sender included. ID is the database-assigned message
// identifier and Timestamp the server-assigned ISO-8601 send time.
type NewMessageMsg struct {
	Type           string `json:"type"`
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	UserID         int64  `json:"userId"`
	Timestamp      string `json:"timestamp"`
}

// ErrorMsg is the generic channel for any rejected operation. The connection
// stays open unless the error was an authentication failure.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeAuthenticate:
		var m AuthenticateMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeJoinConversation:
		var m JoinConversationMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeaveConversation:
		var m LeaveConversationMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
