package handshake

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the pair needed to open a backend connection.
// It is held in memory only and never persisted.
type Credential struct {
	AccessToken string `json:"accessToken"`
	BackendURL  string `json:"backendUrl"`
}

// Validate reports ErrInvalidCredential when either field is empty.
func (c Credential) Validate() error {
	if c.AccessToken == "" {
		return fmt.Errorf("%w: missing access token", ErrInvalidCredential)
	}
	if c.BackendURL == "" {
		return fmt.Errorf("%w: missing backend url", ErrInvalidCredential)
	}
	return nil
}

// ExpiresAt decodes the exp claim of the access token.
//
// The signature is not verified: the backend owns the key, and the result
// is only used for logging and health reporting. ok is false when the token
// is not a JWT or carries no expiry (long-lived tokens).
func (c Credential) ExpiresAt() (expiry time.Time, ok bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(c.AccessToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
