package state

import (
	"time"

	"github.com/hexahaven/havensync-core/internal/devicetype"
)

// ScheduleEntry is a per-channel on/off schedule.
//
// Times are "HH:MM" strings in the device's local timezone; Days holds
// weekday numbers 0 (Sunday) through 6. Entries are stored and synced
// but not evaluated here; the device firmware runs them.
type ScheduleEntry struct {
	ID      string `json:"id"`
	On      string `json:"on"`
	Off     string `json:"off"`
	Days    []int  `json:"days,omitempty"`
	Enabled bool   `json:"enabled"`
}

// Channel is one switchable output on a device.
type Channel struct {
	// ID is the 1-based channel number as printed on the hardware.
	ID   int    `json:"id"`
	Name string `json:"name"`

	// Status is the primary on/off state.
	Status bool `json:"status"`

	// SpeedPercent mirrors the device regulator value for
	// speed-controlled channels; nil for plain switch channels.
	SpeedPercent *int `json:"speed_percent,omitempty"`

	// SecondaryStatus carries the auxiliary flag some channel types
	// expose, set by PIR motion reports from the device.
	SecondaryStatus bool `json:"secondary_status"`

	Schedules []ScheduleEntry `json:"schedules,omitempty"`
}

// MasterTimer is the device-wide countdown switch-off.
type MasterTimer struct {
	Enabled bool `json:"enabled"`
	// Minutes until all channels switch off; meaningful when Enabled.
	Minutes int `json:"minutes,omitempty"`
}

// Device is the cached state of one registered device.
//
// Invariants maintained by the cache:
//   - len(Channels) == Profile.ChannelCount
//   - len(Regulators) <= Profile.RegulatorCount()
//   - Channels[i].SpeedPercent mirrors Regulators at the channel's
//     regulator index for speed-controlled channels
type Device struct {
	// ID is the internal record identifier.
	ID string `json:"id"`

	// DeviceID is the hardware identifier (model prefix + unit suffix).
	DeviceID string `json:"device_id"`

	// UserID is the owning user.
	UserID string `json:"user_id"`

	Name string `json:"name"`

	IsConnected bool `json:"is_connected"`

	// Signal is the last reported Wi-Fi signal strength in dBm.
	Signal int `json:"signal,omitempty"`

	Channels []Channel `json:"channels"`

	// Regulators holds speed values (0-100) in regulator array order,
	// matching the device's wire format.
	Regulators []int `json:"regulators,omitempty"`

	MasterTimer MasterTimer `json:"master_timer"`

	LastSeen time.Time `json:"last_seen"`

	Profile devicetype.Profile `json:"-"`
}

// DeepCopy creates a complete independent copy of the Device.
// All slice fields are cloned so modifications to the copy do not
// affect the original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d

	if d.Channels != nil {
		cpy.Channels = make([]Channel, len(d.Channels))
		for i, ch := range d.Channels {
			cpy.Channels[i] = ch
			if ch.SpeedPercent != nil {
				v := *ch.SpeedPercent
				cpy.Channels[i].SpeedPercent = &v
			}
			if ch.Schedules != nil {
				cpy.Channels[i].Schedules = make([]ScheduleEntry, len(ch.Schedules))
				for j, s := range ch.Schedules {
					cpy.Channels[i].Schedules[j] = s
					if s.Days != nil {
						cpy.Channels[i].Schedules[j].Days = append([]int(nil), s.Days...)
					}
				}
			}
		}
	}

	if d.Regulators != nil {
		cpy.Regulators = append([]int(nil), d.Regulators...)
	}

	if d.Profile.SpeedControlIndices != nil {
		cpy.Profile.SpeedControlIndices = append([]int(nil), d.Profile.SpeedControlIndices...)
	}

	return &cpy
}
