package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hexahaven/havensync-core/internal/infrastructure/config"
	"github.com/hexahaven/havensync-core/internal/state"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Logger defines the logging interface used by the Client.
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

// Conn is the slice of *websocket.Conn the client uses. Tests
// substitute a fake.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens a websocket connection to the given URL.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// defaultDial uses the gorilla default dialer.
func defaultDial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// StateStore is the slice of the state cache the client mutates on
// inbound messages.
type StateStore interface {
	ApplyStateUpdate(deviceID string, statuses []bool, regulators []int) (*state.Device, error)
	SetConnectivity(deviceID string, connected bool, at time.Time) error
	SetSignal(deviceID string, dbm int) error
	SetSecondaryStatus(deviceID string, channel int, on bool) (*state.Device, error)
}

// Client maintains the realtime websocket link.
//
// All public methods are thread-safe. Inbound dispatch runs on a single
// goroutine per connection.
type Client struct {
	url    string
	cfg    config.SyncConfig
	cache  StateStore
	dial   DialFunc
	logger Logger

	mu           sync.Mutex
	st           State
	conn         Conn
	manual       bool
	queue        *commandQueue
	subs         map[string]struct{}
	userSub      string
	reconnecting bool

	// onPersistentDisconnect fires once when the reconnect budget is
	// exhausted; a manual Connect re-arms it.
	onPersistentDisconnect func()
	onStateChange          func(State)
}

// New creates a sync client for the given websocket URL.
func New(url string, cfg config.SyncConfig, cache StateStore) *Client {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 128
	}
	return &Client{
		url:    url,
		cfg:    cfg,
		cache:  cache,
		dial:   defaultDial,
		logger: noopLogger{},
		st:     StateDisconnected,
		queue:  newCommandQueue(queueSize),
		subs:   make(map[string]struct{}),
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// SetDialFunc replaces the websocket dialer. Used by tests.
func (c *Client) SetDialFunc(dial DialFunc) {
	c.dial = dial
}

// SetOnPersistentDisconnect sets the callback fired once when automatic
// reconnection gives up.
func (c *Client) SetOnPersistentDisconnect(fn func()) {
	c.onPersistentDisconnect = fn
}

// SetOnStateChange sets a callback invoked on every state transition.
func (c *Client) SetOnStateChange(fn func(State)) {
	c.onStateChange = fn
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// QueuedCommands returns the number of commands waiting for a
// connection.
func (c *Client) QueuedCommands() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.len()
}

// Connect establishes the websocket link.
//
// A successful manual Connect resets the reconnect budget and re-arms
// the persistent-disconnect notification. On connection the offline
// queue is flushed in FIFO order, then active subscriptions are
// re-sent.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.st != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("syncclient: connect in state %s", c.st)
	}
	c.manual = false
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	conn, err := c.dial(ctx, c.url)
	if err != nil {
		c.mu.Lock()
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return fmt.Errorf("syncclient: dial: %w", err)
	}

	c.start(conn)
	return nil
}

// start installs a new connection, replays the queue, re-subscribes,
// and launches the read loop.
func (c *Client) start(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.setStateLocked(StateConnected)

	for _, cmd := range c.queue.drain() {
		if err := c.writeLocked(clientMessage{Type: TypeDeviceCommand, DeviceID: cmd.DeviceID, Command: &cmd}); err != nil {
			c.logger.Error("queued command replay failed", "device_id", cmd.DeviceID, "error", err)
		}
	}

	if c.userSub != "" {
		if err := c.writeLocked(clientMessage{Type: TypeSubscribeUserDevices, UserID: c.userSub}); err != nil {
			c.logger.Error("user subscription replay failed", "error", err)
		}
	}
	for deviceID := range c.subs {
		if err := c.writeLocked(clientMessage{Type: TypeSubscribeDevice, DeviceID: deviceID}); err != nil {
			c.logger.Error("subscription replay failed", "device_id", deviceID, "error", err)
		}
	}
	c.mu.Unlock()

	go c.readLoop(conn)
}

// Close shuts the link down deliberately. A normal-closure frame tells
// the server this is not a drop; no reconnection follows.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.manual = true
	if c.conn == nil {
		c.setStateLocked(StateDisconnected)
		return nil
	}

	frame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, frame); err != nil {
		c.logger.Debug("close frame write failed", "error", err)
	}
	err := c.conn.Close()
	c.conn = nil
	c.setStateLocked(StateDisconnected)
	return err
}

// SendCommand delivers a command immediately when connected, otherwise
// queues it for replay.
func (c *Client) SendCommand(cmd OutboundCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.st == StateConnected {
		return c.writeLocked(clientMessage{Type: TypeDeviceCommand, DeviceID: cmd.DeviceID, Command: &cmd})
	}

	cmd.EnqueuedAt = time.Now()
	if evicted, dropped := c.queue.push(cmd); dropped {
		c.logger.Warn("offline queue full, dropped oldest command",
			"device_id", evicted.DeviceID, "action", evicted.Action,
			"enqueued_at", evicted.EnqueuedAt)
	}
	return nil
}

// SubscribeUserDevices subscribes to status for every device the user
// owns.
func (c *Client) SubscribeUserDevices(userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.userSub = userID
	if c.st == StateConnected {
		return c.writeLocked(clientMessage{Type: TypeSubscribeUserDevices, UserID: userID})
	}
	return nil
}

// SubscribeDevice subscribes to one device's events. Idempotent: a
// device already subscribed produces no second wire message.
func (c *Client) SubscribeDevice(deviceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[deviceID]; ok {
		return nil
	}
	c.subs[deviceID] = struct{}{}

	if c.st == StateConnected {
		return c.writeLocked(clientMessage{Type: TypeSubscribeDevice, DeviceID: deviceID})
	}
	return nil
}

// UnsubscribeDevice removes a device subscription.
func (c *Client) UnsubscribeDevice(deviceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[deviceID]; !ok {
		return nil
	}
	delete(c.subs, deviceID)

	if c.st == StateConnected {
		return c.writeLocked(clientMessage{Type: TypeUnsubscribeDevice, DeviceID: deviceID})
	}
	return nil
}

// writeLocked marshals and sends one message. Caller must hold c.mu.
func (c *Client) writeLocked(msg clientMessage) error {
	if c.conn == nil {
		return fmt.Errorf("syncclient: no connection")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("syncclient: encoding message: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop is the single inbound-dispatch goroutine for a connection.
func (c *Client) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(conn, err)
			return
		}
		c.dispatch(data)
	}
}

// handleReadError classifies the end of a connection: a deliberate
// Close never reconnects, everything else enters the backoff loop.
func (c *Client) handleReadError(conn Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A newer connection already replaced this one.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	manual := c.manual || websocket.IsCloseError(err, websocket.CloseNormalClosure)
	c.setStateLocked(StateDisconnected)
	alreadyReconnecting := c.reconnecting
	if !manual {
		c.reconnecting = true
	}
	c.mu.Unlock()

	if manual {
		c.logger.Info("connection closed")
		return
	}

	c.logger.Warn("connection dropped", "error", err)
	if !alreadyReconnecting {
		go c.reconnectLoop()
	}
}

// reconnectLoop retries the dial with exponential backoff until it
// succeeds or the attempt budget runs out.
func (c *Client) reconnectLoop() {
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	maxAttempts := c.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	base := c.cfg.BackoffBaseDelay()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		time.Sleep(backoffDelay(base, attempt))

		c.mu.Lock()
		if c.manual {
			c.mu.Unlock()
			return
		}
		c.setStateLocked(StateConnecting)
		c.mu.Unlock()

		conn, err := c.dial(context.Background(), c.url)
		if err != nil {
			c.logger.Warn("reconnect attempt failed",
				"attempt", attempt, "max", maxAttempts, "error", err)
			c.mu.Lock()
			c.setStateLocked(StateDisconnected)
			c.mu.Unlock()
			continue
		}

		c.logger.Info("reconnected", "attempt", attempt)
		c.start(conn)
		return
	}

	c.logger.Error("reconnect budget exhausted", "attempts", maxAttempts)
	if c.onPersistentDisconnect != nil {
		c.onPersistentDisconnect()
	}
}

// backoffDelay returns base * 2^(attempt-1).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// dispatch routes one inbound message into the state cache.
func (c *Client) dispatch(data []byte) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("malformed server message", "error", err)
		return
	}

	switch msg.Type {
	case TypeDeviceStatus:
		if msg.Online != nil {
			if err := c.cache.SetConnectivity(msg.DeviceID, *msg.Online, time.Now()); err != nil {
				c.logger.Warn("status for unknown device", "device_id", msg.DeviceID)
				return
			}
		}
		if msg.Signal != 0 {
			if err := c.cache.SetSignal(msg.DeviceID, msg.Signal); err != nil {
				c.logger.Warn("signal update failed", "device_id", msg.DeviceID, "error", err)
			}
		}
		if msg.Switches != nil || msg.Regulators != nil {
			if _, err := c.cache.ApplyStateUpdate(msg.DeviceID, msg.Switches, msg.Regulators); err != nil {
				c.logger.Warn("state update failed", "device_id", msg.DeviceID, "error", err)
			}
		}

	case TypeDeviceStateUpdate:
		if _, err := c.cache.ApplyStateUpdate(msg.DeviceID, msg.Switches, msg.Regulators); err != nil {
			c.logger.Warn("state update failed", "device_id", msg.DeviceID, "error", err)
		}

	case TypeDeviceConnected:
		if err := c.cache.SetConnectivity(msg.DeviceID, true, time.Now()); err != nil {
			c.logger.Warn("connect event for unknown device", "device_id", msg.DeviceID)
		}

	case TypeDeviceDisconnected:
		if err := c.cache.SetConnectivity(msg.DeviceID, false, time.Now()); err != nil {
			c.logger.Warn("disconnect event for unknown device", "device_id", msg.DeviceID)
		}

	case TypeDeviceMotion:
		if msg.MotionDetected == nil {
			c.logger.Warn("motion event without detected flag", "device_id", msg.DeviceID)
			return
		}
		channel := msg.Channel
		if channel == 0 {
			channel = 1
		}
		if _, err := c.cache.SetSecondaryStatus(msg.DeviceID, channel, *msg.MotionDetected); err != nil {
			c.logger.Warn("motion update failed", "device_id", msg.DeviceID, "error", err)
		}

	case TypeError:
		c.logger.Error("server error message", "message", msg.Message)

	default:
		c.logger.Warn("unknown message type dropped", "type", msg.Type)
	}
}

// setStateLocked updates the state and fires the change callback.
// Caller must hold c.mu.
func (c *Client) setStateLocked(st State) {
	if c.st == st {
		return
	}
	c.st = st
	if c.onStateChange != nil {
		// Callback without the lock would race state reads; keep it
		// short in callers.
		go c.onStateChange(st)
	}
}
