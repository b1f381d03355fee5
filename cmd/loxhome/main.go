// LoxHome Core - dashboard backend for Home Assistant.
//
// This is the main entry point for the LoxHome Core service. It connects to
// the backend, keeps entity states and the dashboard configuration in
// observable stores, and serves them to the dashboard frontend over HTTP and
// WebSocket. Optionally it mirrors entity states to MQTT and InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nerrad567/loxhome-core/internal/api"
	"github.com/nerrad567/loxhome-core/internal/dashboard"
	"github.com/nerrad567/loxhome-core/internal/hass"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/config"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/database"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/logging"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/loxhome-core/internal/localstore"
	"github.com/nerrad567/loxhome-core/internal/telemetry"
	"github.com/nerrad567/loxhome-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// healthCheckTimeout bounds the startup health check.
const healthCheckTimeout = 5 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting LoxHome Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// A .env file is optional; it only seeds LOXHOME_* variables.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("ignoring unreadable .env file", "error", err)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database (local storage tier)
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Background goroutines started below are stopped before their
	// deferred waits, including on early error returns.
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)

	// Connection manager
	manager := hass.NewManager(hass.NewWSDialer())
	manager.SetLogger(log.With("component", "hass"))
	manager.SetHandshakeTimeout(cfg.Backend.HandshakeTimeout)
	defer func() {
		log.Info("disconnecting from backend")
		manager.Disconnect()
	}()

	// Dashboard config store. The first load can only reach the local tier;
	// the supervisor reloads once the backend is connected.
	dashboards := dashboard.NewStore(manager, localstore.NewSQLiteStorage(db.DB))
	dashboards.SetLogger(log.With("component", "dashboard"))
	dashboards.Load(ctx)

	connect, closeConnect := backendConnector(cfg.Backend, manager, log)
	defer closeConnect()

	supervisor := newSupervisor(manager.Connected(), connect, log.With("component", "supervisor"))
	supervisor.onConnect = func(ctx context.Context) {
		dashboards.Load(ctx)
	}
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		supervisor.Run(ctx)
	}()
	defer func() {
		stop()
		<-supervisorDone
	}()

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		if err := telemetry.ListenCommands(mqttClient, manager, byte(cfg.MQTT.QoS)); err != nil { // #nosec G115 -- qos validated 0-2
			return fmt.Errorf("subscribing to MQTT commands: %w", err)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Mirror entity states to whichever sinks are enabled
	if mirror := newMirror(mqttClient, influxClient); mirror != nil {
		mirror.SetLogger(log.With("component", "telemetry"))
		defer mirror.TrackConnection(manager.Connected())()
		mirrorDone := make(chan struct{})
		go func() {
			defer close(mirrorDone)
			mirror.Run(ctx, manager.States())
		}()
		defer func() {
			stop()
			<-mirrorDone
		}()
	}

	// Start API server
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Panel:     cfg.Panel,
		Logger:    log,
		Backend:   manager,
		Dashboard: dashboards,
		Version:   version,
		History:   historyOf(influxClient),
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := healthCheck(checkCtx, db, mqttClient, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, telemetry mirror,
	// InfluxDB, MQTT, supervisor, backend connection, database.

	log.Info("LoxHome Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LOXHOME_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LOXHOME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newMirror returns a mirror over the enabled sinks, or nil when neither
// MQTT nor InfluxDB is enabled.
func newMirror(mqttClient *mqtt.Client, influxClient *influxdb.Recorder) *telemetry.Mirror {
	// Typed nil pointers must not reach the interface fields.
	var publisher telemetry.StatePublisher
	if mqttClient != nil {
		publisher = mqttClient
	}
	var history telemetry.HistoryWriter
	if influxClient != nil {
		history = influxClient
	}
	if publisher == nil && history == nil {
		return nil
	}
	return telemetry.NewMirror(publisher, history)
}

// historyOf keeps a disabled recorder out of the API dependencies.
func historyOf(r *influxdb.Recorder) api.History {
	if r == nil {
		return nil
	}
	return r
}

// healthCheck verifies all infrastructure connections are healthy.
//
// The backend connection is not checked here; the supervisor brings it up
// after startup.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - server: API server to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Recorder, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
