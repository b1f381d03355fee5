package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
backend:
  mode: "token"
  url: "http://ha.local:8123"
  token: "abc"
  handshake_timeout: 2s
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8090
panel:
  static_dir: "/srv/loxhome"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.URL != "http://ha.local:8123" {
		t.Errorf("Backend.URL = %q, want %q", cfg.Backend.URL, "http://ha.local:8123")
	}

	if cfg.Backend.HandshakeTimeout != 2*time.Second {
		t.Errorf("Backend.HandshakeTimeout = %v, want 2s", cfg.Backend.HandshakeTimeout)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if !cfg.MQTT.Enabled || cfg.MQTT.Broker.ClientID != "test-client" {
		t.Errorf("MQTT = %+v, want enabled with client_id test-client", cfg.MQTT)
	}

	if cfg.Panel.StaticDir != "/srv/loxhome" {
		t.Errorf("Panel.StaticDir = %q, want %q", cfg.Panel.StaticDir, "/srv/loxhome")
	}
}

func TestLoad_TokenFromEnvironment(t *testing.T) {
	configPath := writeConfig(t, `
backend:
  mode: "token"
  url: "http://ha.local:8123"
`)
	t.Setenv("LOXHOME_BACKEND_TOKEN", "env-token")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.Token != "env-token" {
		t.Errorf("Backend.Token = %q, want %q", cfg.Backend.Token, "env-token")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
backend:
  mode: "token"
  url: "http://ha.local:8123"
  token: ""
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for missing token, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Backend.Token = "token"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid token config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name: "token mode without url",
			mutate: func(c *Config) {
				c.Backend.URL = ""
			},
			wantErr: true,
		},
		{
			name: "panel mode with host frame url",
			mutate: func(c *Config) {
				c.Backend.Mode = BackendModePanel
				c.Backend.Token = ""
				c.Backend.HostFrameURL = "ws://127.0.0.1:8090/frame"
			},
			wantErr: false,
		},
		{
			name: "panel mode without host frame url",
			mutate: func(c *Config) {
				c.Backend.Mode = BackendModePanel
			},
			wantErr: true,
		},
		{
			name: "interactive mode with oauth",
			mutate: func(c *Config) {
				c.Backend.Mode = BackendModeInteractive
				c.Backend.OAuth = OAuthConfig{
					ClientID:    "http://127.0.0.1:8765/",
					RedirectURL: "http://127.0.0.1:8765/auth/callback",
				}
			},
			wantErr: false,
		},
		{
			name: "interactive mode without oauth",
			mutate: func(c *Config) {
				c.Backend.Mode = BackendModeInteractive
			},
			wantErr: true,
		},
		{
			name: "unknown mode",
			mutate: func(c *Config) {
				c.Backend.Mode = "magic"
			},
			wantErr: true,
		},
		{
			name: "negative handshake timeout",
			mutate: func(c *Config) {
				c.Backend.HandshakeTimeout = -time.Second
			},
			wantErr: true,
		},
		{
			name: "missing database path",
			mutate: func(c *Config) {
				c.Database.Path = ""
			},
			wantErr: true,
		},
		{
			name: "invalid QoS",
			mutate: func(c *Config) {
				c.MQTT.QoS = 3
			},
			wantErr: true,
		},
		{
			name: "invalid port low",
			mutate: func(c *Config) {
				c.API.Port = 0
			},
			wantErr: true,
		},
		{
			name: "invalid port high",
			mutate: func(c *Config) {
				c.API.Port = 70000
			},
			wantErr: true,
		},
		{
			name: "influxdb enabled without bucket",
			mutate: func(c *Config) {
				c.InfluxDB = InfluxDBConfig{Enabled: true, URL: "http://localhost:8086"}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("LOXHOME_BACKEND_MODE", "panel")
	t.Setenv("LOXHOME_BACKEND_URL", "http://10.0.0.2:8123")
	t.Setenv("LOXHOME_BACKEND_HOST_FRAME_URL", "ws://10.0.0.3:8090/frame")
	t.Setenv("LOXHOME_DATABASE_PATH", "/custom/path.db")
	t.Setenv("LOXHOME_MQTT_HOST", "mqtt.example.com")
	t.Setenv("LOXHOME_MQTT_USERNAME", "testuser")
	t.Setenv("LOXHOME_MQTT_PASSWORD", "testpass")
	t.Setenv("LOXHOME_API_HOST", "192.168.1.1")
	t.Setenv("LOXHOME_API_PORT", "9000")
	t.Setenv("LOXHOME_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Backend.Mode != BackendModePanel {
		t.Errorf("Backend.Mode = %q, want %q", cfg.Backend.Mode, BackendModePanel)
	}

	if cfg.Backend.URL != "http://10.0.0.2:8123" {
		t.Errorf("Backend.URL = %q, want %q", cfg.Backend.URL, "http://10.0.0.2:8123")
	}

	if cfg.Backend.HostFrameURL != "ws://10.0.0.3:8090/frame" {
		t.Errorf("Backend.HostFrameURL = %q", cfg.Backend.HostFrameURL)
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" || cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth = %+v, want testuser/testpass", cfg.MQTT.Auth)
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}

	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_InvalidPortIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("LOXHOME_API_PORT", "not-a-port")

	applyEnvOverrides(cfg)

	if cfg.API.Port != 8090 {
		t.Errorf("API.Port = %d, want default 8090", cfg.API.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Backend.Mode != BackendModeToken {
		t.Errorf("defaultConfig Backend.Mode = %q, want %q", cfg.Backend.Mode, BackendModeToken)
	}

	if cfg.Backend.HandshakeTimeout != 5*time.Second {
		t.Errorf("defaultConfig Backend.HandshakeTimeout = %v, want 5s", cfg.Backend.HandshakeTimeout)
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.API.Port != 8090 {
		t.Errorf("defaultConfig API.Port = %d, want 8090", cfg.API.Port)
	}
}
