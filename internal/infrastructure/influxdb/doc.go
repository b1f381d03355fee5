// Package influxdb records LoxHome history in InfluxDB v2.
//
// A Recorder keeps two measurements: entity_state, the numeric value of
// every mirrored entity over time, and backend_connection, a point per
// connect or drop of the Home Assistant connection. Writes are batched by
// influxdb-client-go; Stats counts what was queued and what failed.
//
//	rec, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history disabled
//	}
//	defer rec.Close()
//
//	rec.RecordState("sensor.living_temperature", 21.5, changedAt)
package influxdb
