// Package mqtt provides MQTT client connectivity for LoxHome Core.
//
// This package manages:
//   - Connection to an MQTT broker with auto-reconnect
//   - Retained publishing of mirrored entity states
//   - Command topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
//	loxhome/state/<entity_id>     retained JSON entity state
//	loxhome/command/<entity_id>   inbound commands ("toggle")
//	loxhome/system/status         online/offline status and LWT
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Broker credentials should come from LOXHOME_MQTT_* environment variables
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishRetained(mqtt.Topics{}.EntityState("light.kitchen"), payload)
package mqtt
