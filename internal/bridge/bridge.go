package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hexahaven/havensync-core/internal/audit"
	"github.com/hexahaven/havensync-core/internal/infrastructure/mqtt"
	"github.com/hexahaven/havensync-core/internal/state"
)

// Logger defines the logging interface used by the Bridge.
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

// StateStore is the slice of the state cache the bridge mutates on
// inbound status reports.
type StateStore interface {
	ApplyStateUpdate(deviceID string, statuses []bool, regulators []int) (*state.Device, error)
	SetConnectivity(deviceID string, connected bool, at time.Time) error
	SetSignal(deviceID string, dbm int) error
	SetSecondaryStatus(deviceID string, channel int, on bool) (*state.Device, error)
}

// Telemetry records inbound status events. Optional.
type Telemetry interface {
	WriteDeviceStatus(deviceID string, online bool, signal int)
}

// Broadcaster pushes device events to realtime subscribers. Optional.
type Broadcaster interface {
	BroadcastDeviceEvent(deviceID string, eventType string, payload any)
}

// Bridge translates commands outbound and status reports inbound.
type Bridge struct {
	publisher   Publisher
	auditor     audit.Repository
	cache       StateStore
	telemetry   Telemetry
	broadcaster Broadcaster
	logger      Logger
	topics      mqtt.Topics
	commandQoS  byte
}

// New creates a bridge over the given publish path.
//
// Telemetry and broadcaster are optional; pass nil to disable.
func New(publisher Publisher, auditor audit.Repository, cache StateStore, commandQoS byte) *Bridge {
	return &Bridge{
		publisher:  publisher,
		auditor:    auditor,
		cache:      cache,
		logger:     noopLogger{},
		commandQoS: commandQoS,
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// SetTelemetry attaches a telemetry recorder for inbound status events.
func (b *Bridge) SetTelemetry(t Telemetry) {
	b.telemetry = t
}

// SetBroadcaster attaches a realtime broadcaster for inbound events.
func (b *Bridge) SetBroadcaster(br Broadcaster) {
	b.broadcaster = br
}

// ExecuteCommand translates and publishes a command to a device, and
// writes exactly one audit entry regardless of outcome.
//
// Parameters:
//   - ctx: Used for the audit write
//   - userID: Issuing user
//   - deviceID: Target device
//   - action: Semantic action (TurnOn, SetBrightness, ...)
//   - value: Optional parameter for value-carrying actions
//
// Returns:
//   - error: Publish failure; the audit entry is written either way
func (b *Bridge) ExecuteCommand(ctx context.Context, userID, deviceID, action string, value *int) error {
	cmd, known := TranslateAction(action, value)
	if !known {
		b.logger.Warn("unrecognised action forwarded as unknown",
			"action", action, "device_id", deviceID, "user_id", userID)
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		// Command is a flat struct; marshal cannot realistically fail,
		// but the audit trail still gets the attempt.
		b.writeAudit(ctx, userID, deviceID, cmd, err)
		return err
	}

	topic := b.topics.DeviceCommands(deviceID)
	pubErr := b.publisher.Publish(topic, payload, b.commandQoS)

	b.writeAudit(ctx, userID, deviceID, cmd, pubErr)

	if pubErr != nil {
		b.logger.Error("command publish failed",
			"device_id", deviceID, "action", cmd.Action, "error", pubErr)
		return pubErr
	}

	b.logger.Info("command published",
		"device_id", deviceID, "action", cmd.Action, "user_id", userID)
	return nil
}

// writeAudit records one command attempt. Audit failures are logged,
// never propagated; losing a trail entry must not fail the command.
func (b *Bridge) writeAudit(ctx context.Context, userID, deviceID string, cmd Command, outcome error) {
	status := audit.StatusSuccess
	detail := map[string]any{}
	if cmd.Value != nil {
		detail["value"] = *cmd.Value
	}
	if cmd.Original != "" {
		detail["original"] = cmd.Original
	}
	if outcome != nil {
		status = audit.StatusFailed
		detail["error"] = outcome.Error()
	}
	if len(detail) == 0 {
		detail = nil
	}

	entry := &audit.Entry{
		UserID:   userID,
		DeviceID: deviceID,
		Action:   cmd.Action,
		Status:   status,
		Detail:   detail,
	}
	if err := b.auditor.Create(ctx, entry); err != nil {
		b.logger.Error("audit write failed", "device_id", deviceID, "error", err)
	}
}

// StatusMessage is the payload devices publish on their status topic.
type StatusMessage struct {
	Online     *bool         `json:"online,omitempty"`
	Signal     int           `json:"signal,omitempty"`
	Switches   []bool        `json:"switches,omitempty"`
	Regulators []int         `json:"regulators,omitempty"`
	Motion     *MotionReport `json:"motion,omitempty"`
}

// MotionReport is the PIR event a sensor-equipped unit attaches to its
// status message. Channel 0 means the device's first channel.
type MotionReport struct {
	Channel  int  `json:"channel,omitempty"`
	Detected bool `json:"detected"`
}

// Subscriber is the slice of the MQTT client used for the inbound path.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// SubscribeStatus attaches the inbound status handler to the wildcard
// status topic.
func (b *Bridge) SubscribeStatus(client Subscriber, qos byte) error {
	return client.Subscribe(b.topics.AllDeviceStatuses(), qos, func(topic string, payload []byte) error {
		b.HandleStatus(topic, payload)
		return nil
	})
}

// HandleStatus processes one inbound device status report: state cache
// update, telemetry record, push broadcast.
//
// Reports for unregistered devices are logged and dropped.
func (b *Bridge) HandleStatus(topic string, payload []byte) {
	deviceID := mqtt.DeviceIDFromStatusTopic(topic)
	if deviceID == "" {
		b.logger.Warn("status on unexpected topic", "topic", topic)
		return
	}

	var msg StatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warn("malformed status payload", "device_id", deviceID, "error", err)
		return
	}

	if msg.Online != nil {
		if err := b.cache.SetConnectivity(deviceID, *msg.Online, time.Now()); err != nil {
			b.logger.Warn("status for unknown device", "device_id", deviceID)
			return
		}
	}
	if msg.Signal != 0 {
		if err := b.cache.SetSignal(deviceID, msg.Signal); err != nil {
			b.logger.Warn("signal update failed", "device_id", deviceID, "error", err)
		}
	}

	var device *state.Device
	if msg.Switches != nil || msg.Regulators != nil {
		var err error
		device, err = b.cache.ApplyStateUpdate(deviceID, msg.Switches, msg.Regulators)
		if err != nil {
			b.logger.Warn("state update failed", "device_id", deviceID, "error", err)
			return
		}
	}

	if msg.Motion != nil {
		channel := msg.Motion.Channel
		if channel == 0 {
			channel = 1
		}
		updated, err := b.cache.SetSecondaryStatus(deviceID, channel, msg.Motion.Detected)
		if err != nil {
			b.logger.Warn("motion update failed", "device_id", deviceID, "error", err)
		} else {
			device = updated
			if b.broadcaster != nil {
				b.broadcaster.BroadcastDeviceEvent(deviceID, "pir_motion", msg.Motion)
			}
		}
	}

	if b.telemetry != nil {
		online := msg.Online != nil && *msg.Online
		b.telemetry.WriteDeviceStatus(deviceID, online, msg.Signal)
	}

	if b.broadcaster != nil {
		if msg.Online != nil {
			event := "device_disconnected"
			if *msg.Online {
				event = "device_connected"
			}
			b.broadcaster.BroadcastDeviceEvent(deviceID, event, nil)
		}
		if device != nil {
			b.broadcaster.BroadcastDeviceEvent(deviceID, "device_status", device)
		}
	}

	b.logger.Debug("status processed", "device_id", deviceID)
}
