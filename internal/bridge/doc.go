// Package bridge moves commands and status between users and devices
// over MQTT.
//
// Outbound, a semantic action (TurnOn, SetBrightness, ...) is translated
// to the firmware's wire vocabulary and published to the device's
// command topic. Two publish paths exist: a direct broker connection and
// the broker's HTTP management API, selectable per call site. Every
// command attempt is audit-logged with its outcome.
//
// Inbound, the bridge subscribes to the status topic wildcard and turns
// each device report into a state cache update, a telemetry record, and
// a push broadcast to websocket subscribers.
package bridge
