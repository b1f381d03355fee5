package hass

import (
	"maps"
	"math"
	"time"
)

// compressedState is a full entity entry in a subscribe_entities event.
type compressedState struct {
	State       *string        `json:"s"`
	Attributes  map[string]any `json:"a"`
	LastChanged *float64       `json:"lc"`
	LastUpdated *float64       `json:"lu"`
}

type compressedRemoval struct {
	Attributes []string `json:"a"`
}

// compressedDiff is a partial update: "+" adds or replaces, "-" removes.
type compressedDiff struct {
	Add    *compressedState   `json:"+"`
	Remove *compressedRemoval `json:"-,"`
}

// entitiesEvent is the payload of a subscribe_entities event.
type entitiesEvent struct {
	Added   map[string]compressedState `json:"a"`
	Changed map[string]compressedDiff  `json:"c"`
	Removed []string                   `json:"r"`
}

// apply folds ev into current and returns the resulting map. current is not
// modified; entries that change get fresh attribute maps.
func (ev entitiesEvent) apply(current States) States {
	next := make(States, len(current)+len(ev.Added))
	for id, st := range current {
		next[id] = st
	}

	for id, cs := range ev.Added {
		st := EntityState{
			EntityID:   id,
			Attributes: maps.Clone(cs.Attributes),
		}
		if st.Attributes == nil {
			st.Attributes = map[string]any{}
		}
		if cs.State != nil {
			st.State = *cs.State
		}
		if cs.LastChanged != nil {
			st.LastChanged = formatTimestamp(*cs.LastChanged)
			st.LastUpdated = st.LastChanged
		}
		if cs.LastUpdated != nil {
			st.LastUpdated = formatTimestamp(*cs.LastUpdated)
		}
		next[id] = st
	}

	for id, diff := range ev.Changed {
		st, ok := next[id]
		if !ok {
			continue
		}
		st.Attributes = maps.Clone(st.Attributes)
		if st.Attributes == nil {
			st.Attributes = map[string]any{}
		}

		if add := diff.Add; add != nil {
			if add.State != nil {
				st.State = *add.State
			}
			for k, v := range add.Attributes {
				st.Attributes[k] = v
			}
			if add.LastChanged != nil {
				st.LastChanged = formatTimestamp(*add.LastChanged)
				st.LastUpdated = st.LastChanged
			} else if add.LastUpdated != nil {
				st.LastUpdated = formatTimestamp(*add.LastUpdated)
			}
		}
		if rm := diff.Remove; rm != nil {
			for _, k := range rm.Attributes {
				delete(st.Attributes, k)
			}
		}
		next[id] = st
	}

	for _, id := range ev.Removed {
		delete(next, id)
	}
	return next
}

// formatTimestamp converts backend float seconds to RFC 3339.
func formatTimestamp(seconds float64) string {
	sec, frac := math.Modf(seconds)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*1e3).UTC().Format(time.RFC3339Nano)
}
