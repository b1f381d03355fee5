package hass

import (
	"errors"
	"fmt"
)

// Domain errors for the hass package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, hass.ErrAuthInvalid) {
//	    // token rejected by the backend
//	}
var (
	// ErrNotConnected is returned when an operation needs a live connection.
	ErrNotConnected = errors.New("hass: not connected")

	// ErrConnectInProgress is returned when a connect is already pending.
	ErrConnectInProgress = errors.New("hass: connect already in progress")

	// ErrConnectionFailed is returned when the backend cannot be reached
	// or the connection drops mid-request.
	ErrConnectionFailed = errors.New("hass: connection failed")

	// ErrAuthInvalid is returned when the backend rejects the access token.
	ErrAuthInvalid = errors.New("hass: authentication rejected")

	// ErrRPC is matched by every *RPCError.
	ErrRPC = errors.New("hass: rpc failed")

	// ErrNoValue is returned by GetUserData when the key holds no value.
	ErrNoValue = errors.New("hass: no value stored")

	// ErrInteractiveUnavailable is returned by ConnectInteractive when the
	// manager has no interactive authenticator.
	ErrInteractiveUnavailable = errors.New("hass: interactive login not configured")

	// ErrAuthorizationFailed is returned when the interactive login is denied
	// or its callback does not match the request.
	ErrAuthorizationFailed = errors.New("hass: authorization failed")
)

// RPCError is an unsuccessful command result reported by the backend.
type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("hass: rpc error %s: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is(err, ErrRPC) match.
func (e *RPCError) Unwrap() error {
	return ErrRPC
}
