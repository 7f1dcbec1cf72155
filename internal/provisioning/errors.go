package provisioning

import "errors"

// Sentinel errors for provisioning operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, provisioning.ErrScanTimeout) {
//	    // Prompt the user to power-cycle the device
//	}
var (
	// ErrRadioUnavailable indicates the BLE adapter could not be powered on.
	ErrRadioUnavailable = errors.New("provisioning: bluetooth radio unavailable")

	// ErrScanTimeout indicates the target device was not discovered
	// within the scan window.
	ErrScanTimeout = errors.New("provisioning: scan timeout")

	// ErrConnectFailed indicates the BLE connection to the discovered
	// peripheral could not be established.
	ErrConnectFailed = errors.New("provisioning: connect failed")

	// ErrServiceNotFound indicates the peripheral does not expose the
	// provisioning service.
	ErrServiceNotFound = errors.New("provisioning: service not found")

	// ErrCharacteristicNotFound indicates the provisioning service does
	// not carry the credential characteristic.
	ErrCharacteristicNotFound = errors.New("provisioning: characteristic not found")

	// ErrCredentialWriteFailed indicates the credential write failed
	// outside the post-write grace window.
	ErrCredentialWriteFailed = errors.New("provisioning: credential write failed")

	// ErrSessionActive indicates another provisioning session is running.
	ErrSessionActive = errors.New("provisioning: session already active")
)
