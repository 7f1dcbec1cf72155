package provisioning

import "time"

// Fixed GATT identifiers for the provisioning service. Every device
// model exposes the same service and characteristic.
const (
	ServiceUUID        = "12345678-1234-1234-1234-123456789abc"
	CharacteristicUUID = "abcd1234-ab12-cd34-ef56-1234567890ab"
)

// SessionState tracks provisioning progress.
type SessionState int

const (
	StateIdle SessionState = iota
	StateScanning
	StateFound
	StateConnected
	StateCredentialsSent
	StateAwaitingReboot
	StateDone
	StateFailed
)

// String returns a human-readable state name for logging and progress
// reporting.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateFound:
		return "found"
	case StateConnected:
		return "connected"
	case StateCredentialsSent:
		return "credentials_sent"
	case StateAwaitingReboot:
		return "awaiting_reboot"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Credentials is the payload delivered to the device.
type Credentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`
	UserID   string `json:"userId"`
}

// Peripheral identifies a discovered BLE device.
type Peripheral struct {
	// Name is the advertised local name.
	Name string
	// Address is the platform-specific peripheral address.
	Address string
}

// Session records one provisioning attempt.
type Session struct {
	TargetDeviceID string
	Peripheral     Peripheral
	State          SessionState
	StartedAt      time.Time
	FinishedAt     time.Time
	Err            error
}

// Result is the outcome of a completed provisioning run.
type Result struct {
	// CredentialsDelivered is true when the payload reached the device,
	// including the case where the device dropped the link inside the
	// post-write grace window.
	CredentialsDelivered bool

	Peripheral Peripheral

	// Duration covers scan start through classification.
	Duration time.Duration
}
