// HavenSync Core - Smart Switch Connectivity Platform
//
// This is the main entry point for the HavenSync Core application.
// HavenSync Core is the connectivity layer for HexaHaven smart switch
// units:
//   - BLE provisioning of factory-fresh units onto the home Wi-Fi
//   - MQTT transport bridge between app commands and device firmware
//   - Realtime push channel for mobile and web clients
//   - Cloud sync client with offline command queueing
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hexahaven/havensync-core/internal/api"
	"github.com/hexahaven/havensync-core/internal/audit"
	"github.com/hexahaven/havensync-core/internal/bridge"
	"github.com/hexahaven/havensync-core/internal/devices"
	"github.com/hexahaven/havensync-core/internal/infrastructure/config"
	"github.com/hexahaven/havensync-core/internal/infrastructure/database"
	"github.com/hexahaven/havensync-core/internal/infrastructure/logging"
	"github.com/hexahaven/havensync-core/internal/infrastructure/mqtt"
	"github.com/hexahaven/havensync-core/internal/infrastructure/telemetry"
	"github.com/hexahaven/havensync-core/internal/provisioning"
	"github.com/hexahaven/havensync-core/internal/state"
	"github.com/hexahaven/havensync-core/internal/syncclient"
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

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting HavenSync Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
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

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	deviceRepo := devices.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Seed the state cache from registered devices
	cache := state.NewCache()
	cache.SetLogger(log)
	records, err := deviceRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading registered devices: %w", err)
	}
	for _, rec := range records {
		if _, regErr := cache.Register(rec.ID, rec.DeviceID, rec.UserID, rec.Name); regErr != nil {
			log.Warn("skipping device record", "device_id", rec.DeviceID, "error", regErr)
		}
	}
	log.Info("state cache seeded", "devices", len(records))

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to telemetry store (optional)
	var recorder *telemetry.Recorder
	if cfg.Telemetry.Enabled {
		recorder, err = telemetry.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting to telemetry store: %w", err)
		}
		defer func() {
			log.Info("closing telemetry connection")
			if closeErr := recorder.Close(); closeErr != nil {
				log.Error("error closing telemetry", "error", closeErr)
			}
		}()
		recorder.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		log.Info("telemetry connected", "url", cfg.Telemetry.URL, "bucket", cfg.Telemetry.Bucket)
	} else {
		log.Info("telemetry disabled")
	}

	// Transport bridge: app commands out, device status in
	publisher := bridge.NewMQTTPublisher(mqttClient)
	br := bridge.New(publisher, auditRepo, cache, byte(cfg.MQTT.QoS))
	br.SetLogger(log)
	if recorder != nil {
		br.SetTelemetry(recorder)
	}
	if subErr := br.SubscribeStatus(mqttClient, byte(cfg.MQTT.QoS)); subErr != nil {
		return fmt.Errorf("subscribing to device status: %w", subErr)
	}
	log.Info("transport bridge started")

	// Broker management API publish path (optional)
	var management bridge.Publisher
	if cfg.MQTT.Management.BaseURL != "" {
		management = bridge.NewManagementPublisher(cfg.MQTT.Management)
		log.Info("broker management API configured", "base_url", cfg.MQTT.Management.BaseURL)
	}

	// Provisioning engine over the platform BLE adapter
	engine := provisioning.NewEngine(provisioning.NewBluetoothCentral(), cfg.BLE)
	engine.SetLogger(log)
	engine.SetOnProgress(func(st provisioning.SessionState, detail string) {
		log.Info("provisioning progress", "state", st.String(), "detail", detail)
	})

	// HTTP API and push channel
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Broker:      mqttClient,
		Management:  management,
		Executor:    br,
		Provisioner: engine,
		Cache:       cache,
		DeviceRepo:  deviceRepo,
		AuditRepo:   auditRepo,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}
	br.SetBroadcaster(server.Hub())
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting api server: %w", startErr)
	}
	defer func() {
		log.Info("stopping api server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing api server", "error", closeErr)
		}
	}()
	log.Info("api server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Cloud sync client (optional)
	if cfg.Sync.URL != "" {
		sc := syncclient.New(cfg.Sync.URL, cfg.Sync, cache)
		sc.SetLogger(log)
		sc.SetOnPersistentDisconnect(func() {
			log.Error("cloud sync down after exhausting reconnect attempts")
		})
		if connErr := sc.Connect(ctx); connErr != nil {
			// The local control plane works without the cloud link.
			log.Warn("cloud sync connect failed", "error", connErr)
		} else {
			defer func() {
				log.Info("closing cloud sync")
				if closeErr := sc.Close(); closeErr != nil {
					log.Error("error closing cloud sync", "error", closeErr)
				}
			}()
			for _, userID := range distinctUsers(records) {
				if subErr := sc.SubscribeUserDevices(userID); subErr != nil {
					log.Warn("cloud sync subscription failed", "user_id", userID, "error", subErr)
				}
			}
			log.Info("cloud sync connected", "url", cfg.Sync.URL)
		}
	} else {
		log.Info("cloud sync disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, recorder); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("HavenSync Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HAVENSYNC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HAVENSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// distinctUsers returns the unique user IDs across device records.
func distinctUsers(records []devices.Record) []string {
	seen := make(map[string]struct{}, len(records))
	var out []string
	for _, rec := range records {
		if _, ok := seen[rec.UserID]; ok {
			continue
		}
		seen[rec.UserID] = struct{}{}
		out = append(out, rec.UserID)
	}
	return out
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - recorder: Telemetry client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, recorder *telemetry.Recorder) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if recorder != nil {
		if err := recorder.HealthCheck(ctx); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}

	return nil
}
