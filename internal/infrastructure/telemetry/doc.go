// Package telemetry records device status events and metrics in InfluxDB.
//
// The bridge feeds every inbound device status report into this package so
// operators can chart connectivity, signal strength, and channel activity
// over time. Writes are batched and non-blocking; a failed write never
// delays status processing.
//
// Telemetry is optional. When disabled in configuration, Connect returns
// ErrDisabled and callers run without a recorder.
package telemetry
