package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the LoxHome mirror.
const (
	// TopicPrefix is the root of every LoxHome topic.
	TopicPrefix = "loxhome"

	// TopicPrefixState is the base for mirrored entity states.
	TopicPrefixState = TopicPrefix + "/state"

	// TopicPrefixCommand is the base for inbound entity commands.
	TopicPrefixCommand = TopicPrefix + "/command"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics provides builders for LoxHome MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.EntityState("light.kitchen")
//	// Returns: "loxhome/state/light.kitchen"
type Topics struct{}

// EntityState returns the retained state topic for an entity.
//
// Example: loxhome/state/light.kitchen
func (Topics) EntityState(entityID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixState, entityID)
}

// EntityCommand returns the command topic for an entity.
//
// Example: loxhome/command/light.kitchen
func (Topics) EntityCommand(entityID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixCommand, entityID)
}

// AllEntityCommands returns the wildcard matching every entity command topic.
func (Topics) AllEntityCommands() string {
	return TopicPrefixCommand + "/+"
}

// SystemStatus returns the topic carrying online/offline status and the LWT.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// EntityFromCommandTopic extracts the entity id from a command topic.
// Returns false when topic is not a single-level command topic.
func EntityFromCommandTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixCommand+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
