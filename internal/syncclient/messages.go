package syncclient

import "time"

// Client-to-server message types.
const (
	TypeSubscribeUserDevices = "subscribe_user_devices"
	TypeSubscribeDevice      = "subscribe_device"
	TypeUnsubscribeDevice    = "unsubscribe_device"
	TypeDeviceCommand        = "device_command"
)

// Server-to-client message types.
const (
	TypeDeviceStatus       = "device_status"
	TypeDeviceStateUpdate  = "device_state_update"
	TypeDeviceConnected    = "device_connected"
	TypeDeviceDisconnected = "device_disconnected"
	TypeDeviceMotion       = "pir_motion"
	TypeError              = "error"
)

// OutboundCommand is a queued or in-flight device command.
type OutboundCommand struct {
	DeviceID string `json:"deviceId"`
	Channel  int    `json:"channel,omitempty"`
	Action   string `json:"action"`
	Value    *int   `json:"value,omitempty"`

	// EnqueuedAt is set when the command enters the offline queue.
	EnqueuedAt time.Time `json:"-"`
}

// clientMessage is the client-to-server envelope.
type clientMessage struct {
	Type     string           `json:"type"`
	DeviceID string           `json:"deviceId,omitempty"`
	UserID   string           `json:"userId,omitempty"`
	Command  *OutboundCommand `json:"command,omitempty"`
}

// serverMessage is the server-to-client envelope.
type serverMessage struct {
	Type       string `json:"type"`
	DeviceID   string `json:"deviceId,omitempty"`
	Online     *bool  `json:"online,omitempty"`
	Signal     int    `json:"signal,omitempty"`
	Switches   []bool `json:"switches,omitempty"`
	Regulators []int  `json:"regulators,omitempty"`
	Message    string `json:"message,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`

	// Motion fields accompany TypeDeviceMotion. Channel 0 means the
	// device's first channel.
	Channel        int   `json:"channel,omitempty"`
	MotionDetected *bool `json:"motionDetected,omitempty"`
}
