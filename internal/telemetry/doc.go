// Package telemetry mirrors live entity states to external sinks.
//
// A Mirror follows the connection manager's state store and writes changed
// entities as retained MQTT messages on loxhome/state/<entity_id> and, for
// numeric or boolean-like states, as InfluxDB points in the entity_state
// measurement. ListenCommands closes the loop by turning messages on
// loxhome/command/<entity_id> into service calls.
//
// Both sinks are optional; LoxHome runs unchanged with neither configured.
package telemetry
