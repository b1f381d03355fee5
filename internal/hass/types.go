package hass

import (
	"encoding/json"
	"strings"
)

// EntityState is the live state of one entity.
type EntityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged string         `json:"last_changed"`
	LastUpdated string         `json:"last_updated"`
}

// States maps entity id to its state. A new map is published on every push;
// published maps and their attribute maps are never mutated afterwards.
type States map[string]EntityState

// Domain returns the part of an entity id before the first dot.
func Domain(entityID string) string {
	domain, _, _ := strings.Cut(entityID, ".")
	return domain
}

// Target selects the entities a service call acts on.
type Target struct {
	EntityID []string
}

// EntityTarget targets a single entity.
func EntityTarget(entityID string) *Target {
	return &Target{EntityID: []string{entityID}}
}

// MarshalJSON encodes a single entity id as a string and several as a list,
// the way the backend's service targets are written.
func (t Target) MarshalJSON() ([]byte, error) {
	switch len(t.EntityID) {
	case 0:
		return []byte("{}"), nil
	case 1:
		return json.Marshal(map[string]string{"entity_id": t.EntityID[0]})
	default:
		return json.Marshal(map[string][]string{"entity_id": t.EntityID})
	}
}

// toggleDomains have a native toggle service. Every other domain goes
// through homeassistant.toggle.
var toggleDomains = map[string]bool{
	"light":         true,
	"switch":        true,
	"fan":           true,
	"input_boolean": true,
	"automation":    true,
}

// ToggleService returns the domain whose toggle service handles entityID.
func ToggleService(entityID string) string {
	if domain := Domain(entityID); toggleDomains[domain] {
		return domain
	}
	return "homeassistant"
}
