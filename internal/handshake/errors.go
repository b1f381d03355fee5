package handshake

import "errors"

// Domain errors for the handshake package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, handshake.ErrHandshakeTimeout) {
//	    // host never answered
//	}
var (
	// ErrNotEmbedded is returned when the panel has no parent port to talk to.
	ErrNotEmbedded = errors.New("handshake: not embedded in a host")

	// ErrHandshakeTimeout is returned when no auth message arrives in time.
	ErrHandshakeTimeout = errors.New("handshake: timed out waiting for credential")

	// ErrInvalidCredential is returned when an auth message lacks a token or backend URL.
	ErrInvalidCredential = errors.New("handshake: invalid credential")

	// ErrMalformedMessage is returned by ParseMessage for bytes that are not a known message.
	ErrMalformedMessage = errors.New("handshake: malformed message")

	// ErrPortClosed is returned when posting to a closed port.
	ErrPortClosed = errors.New("handshake: port closed")
)
