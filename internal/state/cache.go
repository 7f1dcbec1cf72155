package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hexahaven/havensync-core/internal/devicetype"
)

// defaultSeedSpeed is the regulator value seeded when a speed-controlled
// channel is switched on while its regulator sits at zero. A fan turned
// on at speed 0 would not spin.
const defaultSeedSpeed = 50

// Logger defines the logging interface used by the Cache.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Cache is the in-memory device state store.
//
// All public methods are thread-safe. Mutations go through the canonical
// transition functions; reads return deep copies.
type Cache struct {
	mu      sync.RWMutex
	devices map[string]*Device // keyed by DeviceID
	logger  Logger
}

// NewCache creates an empty state cache.
func NewCache() *Cache {
	return &Cache{
		devices: make(map[string]*Device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the cache.
func (c *Cache) SetLogger(logger Logger) {
	c.logger = logger
}

// Register adds a device to the cache, resolving its capability profile
// from the device ID and allocating channel slots accordingly.
//
// Parameters:
//   - id: Internal record identifier
//   - deviceID: Hardware identifier (e.g., "hexa5chn-a1b2c3")
//   - userID: Owning user
//   - name: Display name
//
// Returns:
//   - *Device: Deep copy of the registered device
//   - error: ErrDeviceExists if the deviceID is already registered
func (c *Cache) Register(id, deviceID, userID, name string) (*Device, error) {
	profile := devicetype.Resolve(deviceID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.devices[deviceID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceExists, deviceID)
	}

	d := &Device{
		ID:         id,
		DeviceID:   deviceID,
		UserID:     userID,
		Name:       name,
		Channels:   make([]Channel, profile.ChannelCount),
		Regulators: make([]int, profile.RegulatorCount()),
		Profile:    profile,
	}
	for i := range d.Channels {
		d.Channels[i].ID = i + 1
		d.Channels[i].Name = fmt.Sprintf("Switch %d", i+1)
		if profile.HasSpeedControl(i + 1) {
			zero := 0
			d.Channels[i].SpeedPercent = &zero
		}
	}

	c.devices[deviceID] = d
	c.logger.Info("device registered",
		"device_id", deviceID, "profile", profile.Name, "channels", profile.ChannelCount)

	return d.DeepCopy(), nil
}

// Remove deletes a device from the cache.
func (c *Cache) Remove(deviceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.devices[deviceID]; !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	delete(c.devices, deviceID)
	return nil
}

// Get retrieves a device by its hardware identifier.
// The returned device is a deep copy; callers can safely modify it.
func (c *Cache) Get(deviceID string) (*Device, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return d.DeepCopy(), nil
}

// List retrieves all cached devices as deep copies.
func (c *Cache) List() []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()

	devices := make([]Device, 0, len(c.devices))
	for _, d := range c.devices {
		devices = append(devices, *d.DeepCopy())
	}
	return devices
}

// ListByUser retrieves all cached devices owned by a user.
func (c *Cache) ListByUser(userID string) []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var devices []Device
	for _, d := range c.devices {
		if d.UserID == userID {
			devices = append(devices, *d.DeepCopy())
		}
	}
	return devices
}

// ToggleChannel flips a channel's on/off status.
//
// This is the canonical status/regulator coupling point: switching a
// speed-controlled channel on seeds its regulator with defaultSeedSpeed
// when it is at zero; switching it off always resets the regulator to
// zero. No other code path adjusts a regulator on toggle.
//
// Parameters:
//   - deviceID: Hardware identifier
//   - channel: Channel number (1-based)
//
// Returns:
//   - *Device: Deep copy of the device after the transition
//   - error: ErrDeviceNotFound or ErrChannelOutOfRange
func (c *Cache) ToggleChannel(deviceID string, channel int) (*Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ch, err := c.channelLocked(deviceID, channel)
	if err != nil {
		return nil, err
	}

	ch.Status = !ch.Status

	if regIdx, ok := d.Profile.RegulatorIndex(channel); ok {
		if ch.Status {
			if c.regulatorLocked(d, regIdx) == 0 {
				c.setRegulatorLocked(d, ch, regIdx, defaultSeedSpeed)
			}
		} else {
			c.setRegulatorLocked(d, ch, regIdx, 0)
		}
	}

	return d.DeepCopy(), nil
}

// SetChannelSpeed sets the regulator value for a speed-controlled channel.
// Values outside 0-100 are clamped.
//
// Returns:
//   - *Device: Deep copy of the device after the transition
//   - error: ErrDeviceNotFound, ErrChannelOutOfRange, or ErrNoSpeedControl
func (c *Cache) SetChannelSpeed(deviceID string, channel, percent int) (*Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ch, err := c.channelLocked(deviceID, channel)
	if err != nil {
		return nil, err
	}

	regIdx, ok := d.Profile.RegulatorIndex(channel)
	if !ok {
		return nil, fmt.Errorf("%w: channel %d on %s", ErrNoSpeedControl, channel, deviceID)
	}

	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	c.setRegulatorLocked(d, ch, regIdx, percent)

	return d.DeepCopy(), nil
}

// ApplyStateUpdate replaces a device's channel statuses and regulator
// values with a full snapshot from the device (sync path).
//
// Extra entries beyond the profile's capacity are ignored; missing
// entries leave existing values untouched.
func (c *Cache) ApplyStateUpdate(deviceID string, statuses []bool, regulators []int) (*Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	for i := range d.Channels {
		if i < len(statuses) {
			d.Channels[i].Status = statuses[i]
		}
	}
	for regIdx, value := range regulators {
		channel, ok := d.Profile.ChannelForRegulator(regIdx)
		if !ok {
			c.logger.Warn("state update carries extra regulator value",
				"device_id", deviceID, "index", regIdx)
			continue
		}
		if value < 0 {
			value = 0
		}
		if value > 100 {
			value = 100
		}
		c.setRegulatorLocked(d, &d.Channels[channel-1], regIdx, value)
	}

	d.LastSeen = time.Now()

	return d.DeepCopy(), nil
}

// SetConnectivity records a device's online/offline transition.
func (c *Cache) SetConnectivity(deviceID string, connected bool, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	d.IsConnected = connected
	if connected {
		d.LastSeen = at
	}
	return nil
}

// SetSignal records the last reported Wi-Fi signal strength in dBm.
func (c *Cache) SetSignal(deviceID string, dbm int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	d.Signal = dbm
	return nil
}

// SetSecondaryStatus records a channel's auxiliary flag, reported by
// the device on motion events.
//
// Parameters:
//   - deviceID: Target device
//   - channel: Channel number (1-based)
//   - on: New auxiliary state
//
// Returns:
//   - *Device: Deep copy of the updated device
//   - error: ErrDeviceNotFound or ErrChannelOutOfRange
func (c *Cache) SetSecondaryStatus(deviceID string, channel int, on bool) (*Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ch, err := c.channelLocked(deviceID, channel)
	if err != nil {
		return nil, err
	}

	ch.SecondaryStatus = on
	d.LastSeen = time.Now()

	return d.DeepCopy(), nil
}

// RenameChannel sets a channel's display name.
func (c *Cache) RenameChannel(deviceID string, channel int, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ch, err := c.channelLocked(deviceID, channel)
	if err != nil {
		return err
	}
	ch.Name = name
	return nil
}

// SetMasterTimer sets the device-wide countdown timer.
func (c *Cache) SetMasterTimer(deviceID string, timer MasterTimer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	d.MasterTimer = timer
	return nil
}

// AddSchedule attaches a schedule entry to a channel. A missing entry ID
// is generated.
//
// Returns:
//   - string: The entry ID
//   - error: ErrDeviceNotFound or ErrChannelOutOfRange
func (c *Cache) AddSchedule(deviceID string, channel int, entry ScheduleEntry) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ch, err := c.channelLocked(deviceID, channel)
	if err != nil {
		return "", err
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	ch.Schedules = append(ch.Schedules, entry)
	return entry.ID, nil
}

// RemoveSchedule deletes a schedule entry from a channel.
func (c *Cache) RemoveSchedule(deviceID string, channel int, scheduleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ch, err := c.channelLocked(deviceID, channel)
	if err != nil {
		return err
	}

	for i, s := range ch.Schedules {
		if s.ID == scheduleID {
			ch.Schedules = append(ch.Schedules[:i], ch.Schedules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrScheduleNotFound, scheduleID)
}

// channelLocked resolves a device and channel. Caller must hold c.mu.
func (c *Cache) channelLocked(deviceID string, channel int) (*Device, *Channel, error) {
	d, ok := c.devices[deviceID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	if channel < 1 || channel > len(d.Channels) {
		return nil, nil, fmt.Errorf("%w: channel %d on %s", ErrChannelOutOfRange, channel, deviceID)
	}
	return d, &d.Channels[channel-1], nil
}

// regulatorLocked reads a regulator value, treating a short slice as zero.
// Caller must hold c.mu.
func (c *Cache) regulatorLocked(d *Device, regIdx int) int {
	if regIdx >= len(d.Regulators) {
		return 0
	}
	return d.Regulators[regIdx]
}

// setRegulatorLocked writes a regulator value, growing the slice as
// needed, and mirrors it onto the channel. Caller must hold c.mu.
func (c *Cache) setRegulatorLocked(d *Device, ch *Channel, regIdx, value int) {
	for len(d.Regulators) <= regIdx {
		d.Regulators = append(d.Regulators, 0)
	}
	d.Regulators[regIdx] = value
	v := value
	ch.SpeedPercent = &v
}
