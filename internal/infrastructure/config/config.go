package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend connection modes.
const (
	// BackendModeToken connects directly with a long-lived access token.
	BackendModeToken = "token"

	// BackendModePanel waits for a host frame to relay credentials.
	BackendModePanel = "panel"

	// BackendModeInteractive runs the OAuth2 login flow against the backend.
	BackendModeInteractive = "interactive"
)

// Config is the root configuration structure for LoxHome Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Panel     PanelConfig     `yaml:"panel"`
}

// BackendConfig contains Home Assistant connection settings.
type BackendConfig struct {
	// Mode selects how credentials are obtained: "token", "panel" or "interactive".
	Mode string `yaml:"mode"`

	// URL is the backend base URL (e.g., "http://homeassistant.local:8123").
	URL string `yaml:"url"`

	// Token is a long-lived access token. Only used in token mode.
	// Prefer LOXHOME_BACKEND_TOKEN over writing it into the file.
	Token string `yaml:"token"`

	// HostFrameURL is the WebSocket URL of the host frame endpoint.
	// Only used in panel mode (e.g., "ws://host:8090/frame").
	HostFrameURL string `yaml:"host_frame_url"`

	// HandshakeTimeout bounds the wait for credentials from the host frame.
	// Default: 5s
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// OAuth configures the interactive login flow.
	OAuth OAuthConfig `yaml:"oauth"`
}

// OAuthConfig contains settings for the interactive login flow.
type OAuthConfig struct {
	// ClientID identifies this application to the backend. The backend
	// expects the client's base URL here.
	ClientID string `yaml:"client_id"`

	// RedirectURL is the loopback callback the backend redirects to.
	RedirectURL string `yaml:"redirect_url"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the dashboard push WebSocket.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// PanelConfig contains settings for serving the dashboard frontend build.
type PanelConfig struct {
	// StaticDir is the directory holding the built frontend (index.html etc.).
	// Empty disables static serving.
	StaticDir string `yaml:"static_dir"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LOXHOME_SECTION_KEY
// For example: LOXHOME_BACKEND_TOKEN, LOXHOME_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Mode:             BackendModeToken,
			URL:              "http://homeassistant.local:8123",
			HandshakeTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/loxhome.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "loxhome-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LOXHOME_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Backend
	if v := os.Getenv("LOXHOME_BACKEND_MODE"); v != "" {
		cfg.Backend.Mode = v
	}
	if v := os.Getenv("LOXHOME_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("LOXHOME_BACKEND_TOKEN"); v != "" {
		cfg.Backend.Token = v
	}
	if v := os.Getenv("LOXHOME_BACKEND_HOST_FRAME_URL"); v != "" {
		cfg.Backend.HostFrameURL = v
	}

	// Database
	if v := os.Getenv("LOXHOME_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LOXHOME_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LOXHOME_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LOXHOME_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("LOXHOME_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("LOXHOME_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("LOXHOME_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	switch c.Backend.Mode {
	case BackendModeToken:
		if c.Backend.URL == "" {
			errs = append(errs, "backend.url is required in token mode")
		}
		if c.Backend.Token == "" {
			errs = append(errs, "backend.token is required in token mode (set LOXHOME_BACKEND_TOKEN environment variable)")
		}
	case BackendModePanel:
		if c.Backend.HostFrameURL == "" {
			errs = append(errs, "backend.host_frame_url is required in panel mode")
		}
	case BackendModeInteractive:
		if c.Backend.URL == "" {
			errs = append(errs, "backend.url is required in interactive mode")
		}
		if c.Backend.OAuth.ClientID == "" || c.Backend.OAuth.RedirectURL == "" {
			errs = append(errs, "backend.oauth.client_id and backend.oauth.redirect_url are required in interactive mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("backend.mode must be %q, %q or %q", BackendModeToken, BackendModePanel, BackendModeInteractive))
	}

	if c.Backend.HandshakeTimeout < 0 {
		errs = append(errs, "backend.handshake_timeout must not be negative")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
