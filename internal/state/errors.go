package state

import "errors"

// Sentinel errors for state cache operations.
var (
	// ErrDeviceNotFound indicates the device is not registered in the cache.
	ErrDeviceNotFound = errors.New("state: device not found")

	// ErrDeviceExists indicates a device with the same ID is already registered.
	ErrDeviceExists = errors.New("state: device already registered")

	// ErrChannelOutOfRange indicates the channel number is not valid for
	// the device's profile.
	ErrChannelOutOfRange = errors.New("state: channel out of range")

	// ErrNoSpeedControl indicates the channel has no speed regulator.
	ErrNoSpeedControl = errors.New("state: channel has no speed control")

	// ErrScheduleNotFound indicates no schedule entry with the given ID
	// exists on the channel.
	ErrScheduleNotFound = errors.New("state: schedule not found")
)
