package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hexahaven/havensync-core/internal/devices"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("HAVENSYNC_CONFIG")
	defer os.Setenv("HAVENSYNC_CONFIG", originalEnv)

	os.Setenv("HAVENSYNC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
database:
  path: ""
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"
    tls: false
  qos: 1

logging:
  level: info
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: 8080
  timeouts:
    read: 30
    write: 60
    idle: 120

security:
  jwt:
    secret: "test-secret-0123456789abcdef0123456789"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("HAVENSYNC_CONFIG")
	defer os.Setenv("HAVENSYNC_CONFIG", originalEnv)
	os.Setenv("HAVENSYNC_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("HAVENSYNC_CONFIG")
	defer os.Setenv("HAVENSYNC_CONFIG", originalEnv)

	os.Unsetenv("HAVENSYNC_CONFIG")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("HAVENSYNC_CONFIG")
	defer os.Setenv("HAVENSYNC_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("HAVENSYNC_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestDistinctUsers verifies duplicate user IDs collapse in order.
func TestDistinctUsers(t *testing.T) {
	got := distinctUsers(testRecords("u1", "u2", "u1", "u3", "u2"))
	want := []string{"u1", "u2", "u3"}
	if len(got) != len(want) {
		t.Fatalf("distinctUsers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("distinctUsers()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestRun_ContextCancelledDuringStartup verifies cancellation during startup.
// Requires no MQTT broker at the configured port; run should return once
// the context deadline breaks the connect attempt.
func TestRun_ContextCancelledDuringStartup(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	configContent := `
database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "test-client"
    tls: false
  qos: 1

logging:
  level: info
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: 8080
  timeouts:
    read: 30
    write: 60
    idle: 120

security:
  jwt:
    secret: "test-secret-0123456789abcdef0123456789"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("HAVENSYNC_CONFIG")
	defer os.Setenv("HAVENSYNC_CONFIG", originalEnv)
	os.Setenv("HAVENSYNC_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Logf("run() returned error (expected without broker): %v", err)
	}
}

// testRecords builds device records with the given owners.
func testRecords(userIDs ...string) []devices.Record {
	out := make([]devices.Record, len(userIDs))
	for i, uid := range userIDs {
		out[i] = devices.Record{
			ID:       "dev-" + uid,
			DeviceID: "hexa3chn-" + uid,
			UserID:   uid,
		}
	}
	return out
}
