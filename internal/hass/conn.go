package hass

import (
	"context"

	"github.com/nerrad567/loxhome-core/internal/handshake"
)

// Conn is a live, authenticated backend session.
type Conn interface {
	// Command sends a command of msgType with the fields of payload and
	// waits for its result. A non-nil result is decoded from the result
	// body. A backend-reported failure is returned as *RPCError.
	Command(ctx context.Context, msgType string, payload map[string]any, result any) error

	// SubscribeEntities streams the full entity state map, calling fn once
	// per backend push. fn runs on the connection's read goroutine.
	SubscribeEntities(ctx context.Context, fn func(States)) (unsubscribe func(), err error)

	// Done is closed when the session ends for any reason.
	Done() <-chan struct{}

	Close() error
}

// Dialer opens backend sessions.
type Dialer interface {
	// Dial connects and authenticates. Rejected tokens yield ErrAuthInvalid;
	// transport failures yield ErrConnectionFailed.
	Dial(ctx context.Context, cred handshake.Credential) (Conn, error)
}

// InteractiveAuth obtains a credential by asking the user to log in.
type InteractiveAuth interface {
	Authenticate(ctx context.Context, backendURL string) (handshake.Credential, error)
}
