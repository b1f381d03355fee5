package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nerrad567/loxhome-core/internal/discovery"
	"github.com/nerrad567/loxhome-core/internal/hass"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/config"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/logging"
)

// Session is a connected backend as the commands use it.
type Session interface {
	Discover(ctx context.Context) (discovery.Result, error)

	// States returns the entity states once the first push arrived, or
	// whatever is known when ctx ends.
	States(ctx context.Context) hass.States

	Toggle(ctx context.Context, entityID string)
	Call(ctx context.Context, domain, service string, data map[string]any, target *hass.Target)
	GetUserData(ctx context.Context, key string) (json.RawMessage, error)
	SetUserData(ctx context.Context, key string, value any) error
	Close()
}

// DialFunc opens a session with an access token.
type DialFunc func(ctx context.Context, url, token string, stderr io.Writer) (Session, error)

// DialManager connects a hass.Manager. Service call failures, which the
// manager only logs, are written to stderr.
func DialManager(ctx context.Context, url, token string, stderr io.Writer) (Session, error) {
	logger := logging.NewWithWriter(stderr, config.LoggingConfig{Level: "warn", Format: "text"}, "loxctl")

	dialer := hass.NewWSDialer()
	dialer.SetLogger(logger)
	manager := hass.NewManager(dialer)
	manager.SetLogger(logger)

	if err := manager.ConnectWithCredential(ctx, url, token); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}
	return managerSession{manager}, nil
}

type managerSession struct {
	*hass.Manager
}

func (s managerSession) States(ctx context.Context) hass.States {
	arrived := make(chan hass.States, 1)
	deliveries := 0
	unsubscribe := s.Manager.States().Subscribe(func(states hass.States) {
		deliveries++
		// The first delivery is the current value; it only counts when a
		// push already filled it.
		if len(states) == 0 && deliveries == 1 {
			return
		}
		select {
		case arrived <- states:
		default:
		}
	})
	defer unsubscribe()

	select {
	case states := <-arrived:
		return states
	case <-ctx.Done():
		return s.Manager.States().Get()
	}
}

func (s managerSession) Close() {
	s.Disconnect()
}
