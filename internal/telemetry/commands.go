package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/loxhome-core/internal/hass"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/mqtt"
)

// commandTimeout bounds a service call triggered by an MQTT command.
const commandTimeout = 10 * time.Second

// ErrUnknownCommand is returned for command payloads other than
// toggle, on and off.
var ErrUnknownCommand = errors.New("telemetry: unknown command")

// Subscriber subscribes to MQTT topics. Satisfied by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Commander runs service calls. Satisfied by *hass.Manager.
type Commander interface {
	Toggle(ctx context.Context, entityID string)
	Call(ctx context.Context, domain, service string, data map[string]any, target *hass.Target)
}

// ListenCommands routes loxhome/command/<entity_id> messages to commander.
//
// Payloads:
//   - "toggle": domain-aware toggle
//   - "on" / "off": <domain>.turn_on / <domain>.turn_off
func ListenCommands(sub Subscriber, commander Commander, qos byte) error {
	handler := func(topic string, payload []byte) error {
		entityID, ok := mqtt.EntityFromCommandTopic(topic)
		if !ok {
			return fmt.Errorf("%w: topic %q", ErrUnknownCommand, topic)
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		switch strings.ToLower(strings.TrimSpace(string(payload))) {
		case "toggle":
			commander.Toggle(ctx, entityID)
		case "on":
			commander.Call(ctx, hass.Domain(entityID), "turn_on", nil, hass.EntityTarget(entityID))
		case "off":
			commander.Call(ctx, hass.Domain(entityID), "turn_off", nil, hass.EntityTarget(entityID))
		default:
			return fmt.Errorf("%w: %q for %s", ErrUnknownCommand, payload, entityID)
		}
		return nil
	}

	if err := sub.Subscribe(mqtt.Topics{}.AllEntityCommands(), qos, handler); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	return nil
}
