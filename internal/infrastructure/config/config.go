package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for HavenSync Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	BLE       BLEConfig       `yaml:"ble"`
	Sync      SyncConfig      `yaml:"sync"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker     MQTTBrokerConfig     `yaml:"broker"`
	Auth       MQTTAuthConfig       `yaml:"auth"`
	QoS        int                  `yaml:"qos"`
	Reconnect  MQTTReconnectConfig  `yaml:"reconnect"`
	Management MQTTManagementConfig `yaml:"management"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// MQTTManagementConfig contains the broker's HTTP management API settings.
// This is the second publish path, for callers without direct broker access
// (EMQX-style /api/v5/mqtt/publish endpoint).
type MQTTManagementConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Timeout int    `yaml:"timeout"` // seconds
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains push-channel server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// BLEConfig contains provisioning radio settings.
type BLEConfig struct {
	// ScanTimeout is the scan window in seconds. A target unit not
	// advertising within this window fails the session.
	ScanTimeout int `yaml:"scan_timeout"`

	// ConnectTimeout bounds connection plus service discovery (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// RebootGrace is the window (seconds) after the credential write
	// during which a write failure or disconnect is treated as the unit
	// rebooting into network-client mode rather than as an error.
	RebootGrace int `yaml:"reboot_grace"`
}

// SyncConfig contains realtime sync client settings.
type SyncConfig struct {
	// URL is the cloud sync websocket endpoint. Empty disables the
	// sync client.
	URL string `yaml:"url"`

	// BackoffBase is the first reconnect delay in milliseconds.
	// Subsequent attempts double it: base, 2x, 4x, 8x, 16x.
	BackoffBase int `yaml:"backoff_base"`

	// MaxAttempts caps automatic reconnects. Once exhausted the client
	// stays down until the caller reconnects manually.
	MaxAttempts int `yaml:"max_attempts"`

	// QueueSize bounds the outbound command queue. When full, the oldest
	// queued command is dropped to admit the new one.
	QueueSize int `yaml:"queue_size"`
}

// TelemetryConfig contains InfluxDB connection settings for device telemetry.
type TelemetryConfig struct {
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings for the push channel.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HAVENSYNC_SECTION_KEY
// For example: HAVENSYNC_MQTT_HOST, HAVENSYNC_JWT_SECRET
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
		Database: DatabaseConfig{
			Path:        "./data/havensync.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "havensync-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Management: MQTTManagementConfig{
				Timeout: 10,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		BLE: BLEConfig{
			ScanTimeout:    20,
			ConnectTimeout: 10,
			RebootGrace:    2,
		},
		Sync: SyncConfig{
			BackoffBase: 1000,
			MaxAttempts: 5,
			QueueSize:   128,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HAVENSYNC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("HAVENSYNC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("HAVENSYNC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HAVENSYNC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HAVENSYNC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("HAVENSYNC_MQTT_API_TOKEN"); v != "" {
		cfg.MQTT.Management.Token = v
	}

	// API
	if v := os.Getenv("HAVENSYNC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Telemetry
	if v := os.Getenv("HAVENSYNC_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}

	// Cloud sync endpoint
	if v := os.Getenv("HAVENSYNC_SYNC_URL"); v != "" {
		cfg.Sync.URL = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("HAVENSYNC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.BLE.ScanTimeout <= 0 {
		errs = append(errs, "ble.scan_timeout must be positive")
	}
	if c.BLE.RebootGrace <= 0 {
		errs = append(errs, "ble.reboot_grace must be positive")
	}

	if c.Sync.MaxAttempts < 1 {
		errs = append(errs, "sync.max_attempts must be at least 1")
	}
	if c.Sync.QueueSize < 1 {
		errs = append(errs, "sync.queue_size must be at least 1")
	}

	// JWT secret is required: the push channel carries live control of
	// mains switchgear, so forged tokens are a physical-safety issue.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set HAVENSYNC_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
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

// ScanWindow returns the BLE scan window as a Duration.
func (c *BLEConfig) ScanWindow() time.Duration {
	return time.Duration(c.ScanTimeout) * time.Second
}

// ConnectWindow returns the BLE connect/discovery timeout as a Duration.
func (c *BLEConfig) ConnectWindow() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// RebootGraceWindow returns the post-write grace window as a Duration.
func (c *BLEConfig) RebootGraceWindow() time.Duration {
	return time.Duration(c.RebootGrace) * time.Second
}

// BackoffBaseDelay returns the first reconnect delay as a Duration.
func (c *SyncConfig) BackoffBaseDelay() time.Duration {
	return time.Duration(c.BackoffBase) * time.Millisecond
}
