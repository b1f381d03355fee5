package hass

import (
	"encoding/json"
	"testing"
)

func decodeEvent(t *testing.T, raw string) entitiesEvent {
	t.Helper()
	var ev entitiesEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	return ev
}

func TestEntitiesEvent_Apply(t *testing.T) {
	initial := decodeEvent(t, `{"a":{
		"light.a":{"s":"off","a":{"brightness":0,"friendly_name":"A"},"c":"ctx1","lc":1700000000.5},
		"sensor.t":{"s":"21.5","a":{"unit_of_measurement":"°C"},"c":"ctx2","lc":1700000000,"lu":1700000100}
	}}`).apply(States{})

	if len(initial) != 2 {
		t.Fatalf("len = %d, want 2", len(initial))
	}
	a := initial["light.a"]
	if a.State != "off" || a.EntityID != "light.a" {
		t.Errorf("light.a = %+v", a)
	}
	if a.LastChanged != "2023-11-14T22:13:20.5Z" || a.LastUpdated != a.LastChanged {
		t.Errorf("light.a timestamps = %q / %q", a.LastChanged, a.LastUpdated)
	}
	if got := initial["sensor.t"].LastUpdated; got != "2023-11-14T22:15:00Z" {
		t.Errorf("sensor.t last_updated = %q", got)
	}

	changed := decodeEvent(t, `{"c":{
		"light.a":{"+":{"s":"on","a":{"brightness":255},"lc":1700000200}},
		"sensor.t":{"+":{"lu":1700000300},"-":{"a":["unit_of_measurement"]}},
		"light.unknown":{"+":{"s":"on"}}
	}}`).apply(initial)

	a = changed["light.a"]
	if a.State != "on" {
		t.Errorf("light.a state = %q, want on", a.State)
	}
	if a.Attributes["brightness"] != float64(255) || a.Attributes["friendly_name"] != "A" {
		t.Errorf("light.a attributes = %v", a.Attributes)
	}
	if a.LastChanged != "2023-11-14T22:16:40Z" || a.LastUpdated != a.LastChanged {
		t.Errorf("light.a timestamps = %q / %q", a.LastChanged, a.LastUpdated)
	}

	s := changed["sensor.t"]
	if s.State != "21.5" || s.LastChanged != "2023-11-14T22:13:20Z" || s.LastUpdated != "2023-11-14T22:18:20Z" {
		t.Errorf("sensor.t = %+v", s)
	}
	if _, ok := s.Attributes["unit_of_measurement"]; ok {
		t.Error("removed attribute still present")
	}
	if _, ok := changed["light.unknown"]; ok {
		t.Error("change for unknown entity created an entry")
	}

	// Earlier snapshots are not modified.
	if initial["light.a"].State != "off" || initial["light.a"].Attributes["brightness"] != float64(0) {
		t.Errorf("previous snapshot mutated: %+v", initial["light.a"])
	}
	if _, ok := initial["sensor.t"].Attributes["unit_of_measurement"]; !ok {
		t.Error("previous snapshot lost an attribute")
	}

	removed := decodeEvent(t, `{"r":["sensor.t"]}`).apply(changed)
	if _, ok := removed["sensor.t"]; ok {
		t.Error("removed entity still present")
	}
	if len(removed) != 1 {
		t.Errorf("len after removal = %d, want 1", len(removed))
	}
}
