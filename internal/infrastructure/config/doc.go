// Package config handles loading and validating LoxHome Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (LOXHOME_*)
//   - Validation of required fields per backend mode
//   - Default value handling
//
// Security Considerations:
//   - The backend access token and MQTT/InfluxDB secrets should be set via
//     environment variables, not written into the config file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Backend.Mode)
package config
