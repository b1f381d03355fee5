package influxdb

import (
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by the recorder.
const (
	// MeasurementEntityState holds numeric entity state history, tagged by
	// entity_id and domain.
	MeasurementEntityState = "entity_state"

	// MeasurementBackendConnection holds one point per connect or drop of
	// the backend connection.
	MeasurementBackendConnection = "backend_connection"
)

// RecordState queues a numeric entity state. Boolean-like states are
// converted to 0/1 by the caller. A zero at means now.
//
// Example:
//
//	rec.RecordState("sensor.living_temperature", 21.5, changedAt)
func (r *Recorder) RecordState(entityID string, value float64, at time.Time) {
	domain, _, _ := strings.Cut(entityID, ".")
	r.enqueue(write.NewPoint(
		MeasurementEntityState,
		map[string]string{"entity_id": entityID, "domain": domain},
		map[string]any{"value": value},
		orNow(at),
	))
}

// RecordConnection queues a backend connectivity change.
func (r *Recorder) RecordConnection(connected bool, at time.Time) {
	r.enqueue(write.NewPoint(
		MeasurementBackendConnection,
		nil,
		map[string]any{"connected": connected},
		orNow(at),
	))
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
