package handshake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Message kinds exchanged between host and embedded frame.
const (
	// KindAuth carries the credential from host to frame.
	KindAuth = "auth"

	// KindAuthRequest asks the host to (re)send the credential.
	KindAuthRequest = "auth-request"

	// KindToggleSidebar asks the host to collapse or expand its sidebar.
	KindToggleSidebar = "toggle-sidebar"
)

// Message is the typed form of every cross-frame message.
// Only auth messages populate AccessToken and BackendURL.
type Message struct {
	Type        string `json:"type"`
	AccessToken string `json:"accessToken,omitempty"`
	BackendURL  string `json:"backendUrl,omitempty"`
}

// Credential returns the credential carried by an auth message.
func (m Message) Credential() Credential {
	return Credential{AccessToken: m.AccessToken, BackendURL: m.BackendURL}
}

// AuthMessage builds the auth message for c.
func AuthMessage(c Credential) Message {
	return Message{Type: KindAuth, AccessToken: c.AccessToken, BackendURL: c.BackendURL}
}

// wireMessage defers decoding the auth fields so a wrongly typed field does
// not hide the message type.
type wireMessage struct {
	Type        string          `json:"type"`
	AccessToken json.RawMessage `json:"accessToken"`
	BackendURL  json.RawMessage `json:"backendUrl"`
}

// ParseMessage decodes raw bytes into a Message.
//
// It is the only place incoming bytes are interpreted. Anything that is not
// a JSON object with a known string type yields ErrMalformedMessage. Auth
// fields that are missing or not strings are left empty; callers validate
// the credential, so such a message is rejected as an invalid credential.
func ParseMessage(data []byte) (Message, error) {
	var wire wireMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&wire); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch wire.Type {
	case KindAuth:
		return Message{
			Type:        KindAuth,
			AccessToken: stringField(wire.AccessToken),
			BackendURL:  stringField(wire.BackendURL),
		}, nil
	case KindAuthRequest, KindToggleSidebar:
		return Message{Type: wire.Type}, nil
	case "":
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, wire.Type)
	}
}

// stringField returns raw as a string, or "" when it is absent or not a
// JSON string.
func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// Post encodes msg and posts it to port.
func Post(ctx context.Context, port Port, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", msg.Type, err)
	}
	if err := port.PostMessage(ctx, data); err != nil {
		return fmt.Errorf("posting %s message: %w", msg.Type, err)
	}
	return nil
}
