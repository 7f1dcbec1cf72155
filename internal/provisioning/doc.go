// Package provisioning onboards factory-fresh devices over Bluetooth LE.
//
// A new device advertises its device ID over BLE until it receives Wi-Fi
// credentials. The engine scans for the target, connects, locates the
// fixed provisioning service and characteristic, and writes the
// credential payload (JSON, base64-encoded). The device then reboots
// onto Wi-Fi.
//
// The reboot makes the final handshake inherently ambiguous: a device
// that accepted credentials drops the BLE link mid-write or immediately
// after, which surfaces as a write error. The engine therefore
// classifies outcomes by phase and timing, never by error text — a
// failure within the post-write grace window counts as delivered, while
// any failure before the write attempt is fatal.
//
// The engine runs a single provisioning session at a time. BLE hardware
// access is abstracted behind the Central interface; the production
// implementation sits in bluetooth.go and tests substitute a fake.
package provisioning
