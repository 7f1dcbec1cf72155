package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the HavenSync broker hierarchy.
//
// Commands go to a per-device topic that each unit's firmware subscribes
// to on boot; status flows back under the havensync prefix so the core
// can watch the whole fleet with one wildcard subscription.
const (
	// TopicPrefixDevices is the base for unit-facing command topics.
	TopicPrefixDevices = "devices"

	// TopicPrefixStatus is the base for unit status topics.
	TopicPrefixStatus = "havensync"

	// TopicPrefixSystem is the base for core system topics.
	TopicPrefixSystem = "havensync/system"
)

// Topics provides builders for HavenSync MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// DeviceCommands returns the command topic for a unit.
//
// Example: devices/hexa5chn-01/commands
func (Topics) DeviceCommands(deviceID string) string {
	return fmt.Sprintf("%s/%s/commands", TopicPrefixDevices, deviceID)
}

// DeviceStatus returns the status topic for a unit.
//
// Example: havensync/hexa5chn-01/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixStatus, deviceID)
}

// AllDeviceStatuses returns a pattern matching every unit's status topic.
//
// Pattern: havensync/+/status
func (Topics) AllDeviceStatuses() string {
	return fmt.Sprintf("%s/+/status", TopicPrefixStatus)
}

// SystemStatus returns the core online/offline status topic.
//
// Example: havensync/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// DeviceIDFromStatusTopic extracts the device ID from a status topic.
// Returns "" if the topic does not match the havensync/{deviceId}/status scheme.
func DeviceIDFromStatusTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefixStatus || parts[2] != "status" || parts[1] == "" {
		return ""
	}
	return parts[1]
}
