package devicetype

import "strings"

// Profile describes the hardware capabilities of a device model family.
type Profile struct {
	// Name is the model family prefix this profile was resolved from,
	// or "default" for unrecognised devices.
	Name string

	// ChannelCount is the number of switchable channels on the device.
	ChannelCount int

	// SpeedControlIndices lists the channel numbers (1-based) that carry
	// a speed regulator, in regulator array order. Nil when the device
	// has no speed control.
	SpeedControlIndices []int
}

// profiles maps model family prefixes to their capability profiles.
// Matching is case-insensitive and longest-prefix-wins, so a future
// "hexa5chnpro" entry would shadow "hexa5chn" for matching IDs.
var profiles = map[string]Profile{
	"hexa3chn": {Name: "hexa3chn", ChannelCount: 3, SpeedControlIndices: []int{2}},
	"hexa4chn": {Name: "hexa4chn", ChannelCount: 4, SpeedControlIndices: []int{3}},
	"hexa5chn": {Name: "hexa5chn", ChannelCount: 5, SpeedControlIndices: []int{3, 4}},
	"hexa6chn": {Name: "hexa6chn", ChannelCount: 6, SpeedControlIndices: []int{4, 5}},
	"hexa8chn": {Name: "hexa8chn", ChannelCount: 8, SpeedControlIndices: []int{5, 6, 7}},
}

// defaultProfile is used for device IDs that match no known prefix.
// A single basic switch channel keeps unknown hardware usable.
var defaultProfile = Profile{Name: "default", ChannelCount: 1}

// Resolve returns the capability profile for a device ID.
//
// The device ID is matched case-insensitively against known model
// family prefixes; the longest matching prefix wins. Unrecognised IDs
// (including the empty string) resolve to a single-channel default.
//
// Parameters:
//   - deviceID: Full device identifier (e.g., "hexa5chn-a1b2c3")
//
// Returns:
//   - Profile: The resolved capability profile (never zero-valued)
func Resolve(deviceID string) Profile {
	id := strings.ToLower(deviceID)

	best := defaultProfile
	bestLen := 0
	for prefix, profile := range profiles {
		if len(prefix) > bestLen && strings.HasPrefix(id, prefix) {
			best = profile
			bestLen = len(prefix)
		}
	}

	return best
}

// HasSpeedControl reports whether the given channel (1-based) carries
// a speed regulator.
func (p Profile) HasSpeedControl(channel int) bool {
	for _, idx := range p.SpeedControlIndices {
		if idx == channel {
			return true
		}
	}
	return false
}

// RegulatorIndex maps a channel number to its position in the device's
// regulator array.
//
// Parameters:
//   - channel: Channel number (1-based)
//
// Returns:
//   - int: Zero-based index into the regulator array
//   - bool: false if the channel has no speed regulator
func (p Profile) RegulatorIndex(channel int) (int, bool) {
	for i, idx := range p.SpeedControlIndices {
		if idx == channel {
			return i, true
		}
	}
	return 0, false
}

// ChannelForRegulator is the inverse of RegulatorIndex: it maps a
// position in the regulator array back to its channel number.
//
// Returns:
//   - int: Channel number (1-based)
//   - bool: false if the regulator index is out of range
func (p Profile) ChannelForRegulator(regIndex int) (int, bool) {
	if regIndex < 0 || regIndex >= len(p.SpeedControlIndices) {
		return 0, false
	}
	return p.SpeedControlIndices[regIndex], true
}

// RegulatorCount returns the number of speed regulators on the device.
func (p Profile) RegulatorCount() int {
	return len(p.SpeedControlIndices)
}
