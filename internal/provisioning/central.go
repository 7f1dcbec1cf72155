package provisioning

import "context"

// Central abstracts the BLE radio in central role.
//
// The production implementation wraps tinygo.org/x/bluetooth (see
// bluetooth.go); tests substitute a fake.
type Central interface {
	// Enable powers on the radio. Returns an error wrapping
	// ErrRadioUnavailable semantics when the adapter cannot be used.
	Enable() error

	// Scan runs a discovery sweep, invoking onDiscovered for every
	// advertisement seen. It blocks until StopScan is called or ctx is
	// done. An unfiltered scan is deliberate: discovery progress feeds
	// the UI even for non-matching devices.
	Scan(ctx context.Context, onDiscovered func(Peripheral)) error

	// StopScan ends an in-progress scan.
	StopScan() error

	// Connect establishes a connection to a discovered peripheral.
	Connect(ctx context.Context, p Peripheral) (Conn, error)
}

// Conn is an established BLE connection.
type Conn interface {
	// Characteristic performs service and characteristic discovery and
	// returns a handle for the given UUIDs. Errors here happen before
	// any write attempt and are always fatal.
	Characteristic(serviceUUID, charUUID string) (Characteristic, error)

	// Disconnect tears down the connection. Safe to call after the
	// remote side has already dropped the link.
	Disconnect() error
}

// Characteristic is a writable GATT characteristic.
type Characteristic interface {
	// Write delivers the full payload to the characteristic. The
	// transport is a without-response GATT write, so there is no
	// ATT-layer confirmation; the engine treats a link drop inside
	// the reboot grace window as successful delivery.
	Write(data []byte) error
}
