package provisioning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hexahaven/havensync-core/internal/infrastructure/config"
)

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Engine drives provisioning sessions over a Central.
//
// One session runs at a time; Provision returns ErrSessionActive when
// called concurrently.
type Engine struct {
	central Central
	cfg     config.BLEConfig
	logger  Logger

	// active guards the single-flight invariant.
	mu     sync.Mutex
	active bool

	// session holds the latest session for status queries.
	sessionMu sync.RWMutex
	session   Session

	// onProgress reports state transitions; onDiscovered reports every
	// advertisement seen during a scan. Both are optional.
	onProgress   func(state SessionState, detail string)
	onDiscovered func(p Peripheral)
}

// NewEngine creates a provisioning engine.
func NewEngine(central Central, cfg config.BLEConfig) *Engine {
	return &Engine{
		central: central,
		cfg:     cfg,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetOnProgress sets a callback invoked on every session state change.
func (e *Engine) SetOnProgress(fn func(state SessionState, detail string)) {
	e.onProgress = fn
}

// SetOnDiscovered sets a callback invoked for every peripheral seen
// while scanning, matching or not.
func (e *Engine) SetOnDiscovered(fn func(p Peripheral)) {
	e.onDiscovered = fn
}

// Session returns a snapshot of the latest provisioning session.
func (e *Engine) Session() Session {
	e.sessionMu.RLock()
	defer e.sessionMu.RUnlock()
	return e.session
}

// setSession replaces the stored session snapshot.
func (e *Engine) setSession(s Session) {
	e.sessionMu.Lock()
	e.session = s
	e.sessionMu.Unlock()
}

// Provision runs a full provisioning session: scan for the target,
// connect, deliver credentials, classify the outcome.
//
// Cancellation via ctx is observed at scan callbacks and between
// connect steps; teardown completes within one timeout window.
//
// Parameters:
//   - ctx: Cancellation context
//   - creds: Wi-Fi credentials and identity to deliver; creds.DeviceID
//     is also the scan target
//
// Returns:
//   - *Result: Outcome with delivery classification
//   - error: Sentinel from this package, or ctx.Err()
func (e *Engine) Provision(ctx context.Context, creds Credentials) (*Result, error) {
	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		return nil, ErrSessionActive
	}
	e.active = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.active = false
		e.mu.Unlock()
	}()

	started := time.Now()
	e.setSession(Session{TargetDeviceID: creds.DeviceID, State: StateIdle, StartedAt: started})

	peripheral, err := e.ScanForDevice(ctx, creds.DeviceID)
	if err != nil {
		return nil, e.fail(err)
	}

	conn, err := e.Connect(ctx, peripheral)
	if err != nil {
		return nil, e.fail(err)
	}
	defer func() {
		if derr := conn.Disconnect(); derr != nil {
			// Expected after a device reboot; the link is already gone.
			e.logger.Debug("disconnect after session", "error", derr)
		}
	}()

	if err := e.SendCredentials(ctx, conn, creds); err != nil {
		return nil, e.fail(err)
	}

	e.transition(StateDone, "credentials delivered")
	e.logger.Info("provisioning complete",
		"device_id", creds.DeviceID, "peripheral", peripheral.Name,
		"duration", time.Since(started))

	return &Result{
		CredentialsDelivered: true,
		Peripheral:           peripheral,
		Duration:             time.Since(started),
	}, nil
}

// ScanForDevice sweeps for a peripheral whose advertised name contains
// the target device ID (case-insensitive).
//
// The scan is unfiltered: every advertisement is reported through the
// OnDiscovered callback so the UI can show activity, and the first
// matching name wins.
//
// Returns:
//   - Peripheral: The matched peripheral
//   - error: ErrRadioUnavailable, ErrScanTimeout, or ctx.Err()
func (e *Engine) ScanForDevice(ctx context.Context, target string) (Peripheral, error) {
	if err := e.central.Enable(); err != nil {
		return Peripheral{}, fmt.Errorf("%w: %w", ErrRadioUnavailable, err)
	}

	e.transition(StateScanning, "scanning for "+target)

	scanCtx, cancel := context.WithTimeout(ctx, e.cfg.ScanWindow())
	defer cancel()

	want := strings.ToLower(target)
	found := make(chan Peripheral, 1)
	scanErr := make(chan error, 1)

	go func() {
		scanErr <- e.central.Scan(scanCtx, func(p Peripheral) {
			if e.onDiscovered != nil {
				e.onDiscovered(p)
			}
			if p.Name == "" {
				return
			}
			if strings.Contains(strings.ToLower(p.Name), want) {
				select {
				case found <- p:
				default:
				}
			}
		})
	}()

	select {
	case p := <-found:
		if err := e.central.StopScan(); err != nil {
			e.logger.Warn("stop scan", "error", err)
		}
		e.sessionMu.Lock()
		e.session.Peripheral = p
		e.sessionMu.Unlock()
		e.transition(StateFound, p.Name)
		return p, nil

	case err := <-scanErr:
		if err != nil {
			return Peripheral{}, fmt.Errorf("%w: %w", ErrRadioUnavailable, err)
		}
		// Scan ended without a match: timeout or cancellation.
		if ctx.Err() != nil {
			return Peripheral{}, ctx.Err()
		}
		return Peripheral{}, fmt.Errorf("%w: %s not seen in %s", ErrScanTimeout, target, e.cfg.ScanWindow())

	case <-scanCtx.Done():
		if err := e.central.StopScan(); err != nil {
			e.logger.Warn("stop scan", "error", err)
		}
		if ctx.Err() != nil {
			return Peripheral{}, ctx.Err()
		}
		return Peripheral{}, fmt.Errorf("%w: %s not seen in %s", ErrScanTimeout, target, e.cfg.ScanWindow())
	}
}

// Connect establishes a connection to a discovered peripheral, bounded
// by the configured connect window.
func (e *Engine) Connect(ctx context.Context, p Peripheral) (Conn, error) {
	connCtx, cancel := context.WithTimeout(ctx, e.cfg.ConnectWindow())
	defer cancel()

	conn, err := e.central.Connect(connCtx, p)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectFailed, p.Name, err)
	}

	e.transition(StateConnected, p.Name)
	return conn, nil
}

// SendCredentials locates the provisioning characteristic and writes
// the encoded credential payload.
//
// Outcome classification is by phase and timing, never by error text:
//   - discovery failure (before the write attempt) is fatal
//   - a write error inside the post-write grace window means the device
//     accepted the payload and rebooted onto Wi-Fi mid-exchange, and is
//     treated as delivery
//   - a write error outside the window is ErrCredentialWriteFailed
func (e *Engine) SendCredentials(ctx context.Context, conn Conn, creds Credentials) error {
	char, err := conn.Characteristic(ServiceUUID, CharacteristicUUID)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := encodeCredentials(creds)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrCredentialWriteFailed, err)
	}

	writeStarted := time.Now()
	e.transition(StateCredentialsSent, "writing credentials")

	writeErr := char.Write(payload)

	e.transition(StateAwaitingReboot, "waiting for device reboot")

	if writeErr != nil {
		if time.Since(writeStarted) <= e.cfg.RebootGraceWindow() {
			e.logger.Info("link dropped inside grace window, treating as delivered",
				"device_id", creds.DeviceID, "elapsed", time.Since(writeStarted))
			return nil
		}
		return fmt.Errorf("%w: %w", ErrCredentialWriteFailed, writeErr)
	}

	return nil
}

// encodeCredentials marshals the payload the firmware expects:
// JSON, then base64.
func encodeCredentials(creds Credentials) ([]byte, error) {
	raw, err := json.Marshal(creds)
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	return []byte(encoded), nil
}

// fail records a failed session and passes the error through.
func (e *Engine) fail(err error) error {
	e.sessionMu.Lock()
	e.session.State = StateFailed
	e.session.Err = err
	e.session.FinishedAt = time.Now()
	e.sessionMu.Unlock()

	if e.onProgress != nil {
		e.onProgress(StateFailed, err.Error())
	}
	e.logger.Error("provisioning failed", "error", err)
	return err
}

// transition advances the session state and notifies the progress
// callback.
func (e *Engine) transition(state SessionState, detail string) {
	e.sessionMu.Lock()
	e.session.State = state
	if state == StateDone {
		e.session.FinishedAt = time.Now()
	}
	e.sessionMu.Unlock()

	if e.onProgress != nil {
		e.onProgress(state, detail)
	}
	e.logger.Debug("session state", "state", state.String(), "detail", detail)
}
