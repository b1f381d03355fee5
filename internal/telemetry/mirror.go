package telemetry

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/loxhome-core/internal/hass"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/loxhome-core/internal/state"
)

// StatePublisher publishes retained messages. Satisfied by *mqtt.Client.
type StatePublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// HistoryWriter records entity state and connectivity history. Satisfied by
// *influxdb.Recorder.
type HistoryWriter interface {
	RecordState(entityID string, value float64, at time.Time)
	RecordConnection(connected bool, at time.Time)
}

// Logger defines the logging interface used by the mirror.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// binaryValues maps boolean-like states to the numbers stored as history.
var binaryValues = map[string]float64{
	"on":       1,
	"off":      0,
	"open":     1,
	"closed":   0,
	"home":     1,
	"not_home": 0,
	"true":     1,
	"false":    0,
}

// Mirror copies entity state changes to MQTT and InfluxDB.
//
// Snapshots from the state store are coalesced: if several arrive while a
// previous one is still being written, only the newest is processed. Each
// processed snapshot is diffed against the last one so sinks only see
// changed entities.
//
// Thread Safety:
//   - Run must be called once; other methods are safe for concurrent use.
type Mirror struct {
	publisher StatePublisher
	history   HistoryWriter
	logger    Logger

	mu      sync.Mutex
	pending hass.States
	hasNew  bool
	notify  chan struct{}

	// last is only touched by the Run goroutine.
	last hass.States
}

// NewMirror creates a mirror. Either sink may be nil to disable it.
func NewMirror(publisher StatePublisher, history HistoryWriter) *Mirror {
	return &Mirror{
		publisher: publisher,
		history:   history,
		logger:    noopLogger{},
		notify:    make(chan struct{}, 1),
		last:      hass.States{},
	}
}

// SetLogger sets the logger for the mirror.
func (m *Mirror) SetLogger(logger Logger) {
	m.logger = logger
}

// Run subscribes to states and mirrors every change until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context, states *state.Store[hass.States]) {
	unsubscribe := states.Subscribe(m.offer)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.notify:
			m.mu.Lock()
			snapshot, ok := m.pending, m.hasNew
			m.pending, m.hasNew = nil, false
			m.mu.Unlock()

			if ok {
				m.apply(snapshot)
			}
		}
	}
}

// TrackConnection records every connect and drop of the backend until the
// returned function is called. Repeated values are recorded once.
func (m *Mirror) TrackConnection(connected *state.Store[bool]) (stop func()) {
	if m.history == nil {
		return func() {}
	}

	var (
		mu   sync.Mutex
		seen bool
		last bool
	)
	return connected.Subscribe(func(up bool) {
		mu.Lock()
		defer mu.Unlock()
		if seen && up == last {
			return
		}
		seen, last = true, up
		m.history.RecordConnection(up, time.Now())
	})
}

// offer is the store callback; it never blocks the publisher.
func (m *Mirror) offer(s hass.States) {
	m.mu.Lock()
	m.pending, m.hasNew = s, true
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// apply pushes the difference between the last snapshot and s to the sinks.
func (m *Mirror) apply(s hass.States) {
	if s == nil {
		s = hass.States{}
	}

	changed := 0
	for id, entity := range s {
		prev, seen := m.last[id]
		if seen && prev.State == entity.State && prev.LastUpdated == entity.LastUpdated {
			continue
		}
		changed++
		m.publish(id, entity)
		if !seen || prev.State != entity.State {
			m.record(entity)
		}
	}

	for id := range m.last {
		if _, ok := s[id]; !ok {
			changed++
			m.clear(id)
		}
	}

	m.last = s
	if changed > 0 {
		m.logger.Debug("mirrored entity states", "changed", changed, "total", len(s))
	}
}

func (m *Mirror) publish(entityID string, entity hass.EntityState) {
	if m.publisher == nil {
		return
	}

	payload, err := json.Marshal(entity)
	if err != nil {
		m.logger.Warn("encoding entity state", "entity_id", entityID, "error", err)
		return
	}
	if err := m.publisher.PublishRetained(mqtt.Topics{}.EntityState(entityID), payload); err != nil {
		m.logger.Warn("publishing entity state", "entity_id", entityID, "error", err)
	}
}

// clear removes the retained message of an entity that disappeared.
func (m *Mirror) clear(entityID string) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.PublishRetained(mqtt.Topics{}.EntityState(entityID), nil); err != nil {
		m.logger.Warn("clearing entity state", "entity_id", entityID, "error", err)
	}
}

func (m *Mirror) record(entity hass.EntityState) {
	if m.history == nil {
		return
	}

	value, ok := NumericValue(entity.State)
	if !ok {
		return
	}

	at, err := time.Parse(time.RFC3339Nano, entity.LastChanged)
	if err != nil {
		at = time.Now()
	}
	m.history.RecordState(entity.EntityID, value, at)
}

// NumericValue converts a state to a number for history. Numeric states parse
// directly; boolean-like states map to 0 or 1. Everything else, including
// "unavailable" and "unknown", reports false.
func NumericValue(s string) (float64, bool) {
	if v, ok := binaryValues[s]; ok {
		return v, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
