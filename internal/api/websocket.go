package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hexahaven/havensync-core/internal/infrastructure/config"
	"github.com/hexahaven/havensync-core/internal/infrastructure/logging"
)

// Push channel message types understood from clients.
const (
	wsTypeSubscribeUserDevices = "subscribe_user_devices"
	wsTypeSubscribeDevice      = "subscribe_device"
	wsTypeUnsubscribeDevice    = "unsubscribe_device"
	wsTypeDeviceCommand        = "device_command"
)

// wsSendBuffer is the per-client outbound queue depth. A client that
// falls this far behind is disconnected rather than blocking the hub.
const wsSendBuffer = 256

// wsCommandTimeout bounds command execution triggered over the push
// channel.
const wsCommandTimeout = 10 * time.Second

// wsEvent is the envelope for all server-to-client push messages.
type wsEvent struct {
	Type      string `json:"type"`
	DeviceID  string `json:"deviceId,omitempty"`
	Payload   any    `json:"payload,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// wsClientMessage is the envelope for all client-to-server messages.
type wsClientMessage struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId,omitempty"`
	Channel  int    `json:"channel,omitempty"`
	Action   string `json:"action,omitempty"`
	Value    *int   `json:"value,omitempty"`
}

// Hub manages the set of connected push-channel clients and routes
// device events to the subscribers entitled to see them.
//
// Thread Safety: All methods are safe for concurrent use.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	ownerOf func(deviceID string) (string, bool)

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewHub creates a websocket hub.
//
// Parameters:
//   - cfg: Push channel settings (ping interval, pong timeout, limits)
//   - logger: Structured logger
//   - ownerOf: Resolves the owning user of a device, for routing
//     user-scope subscriptions and authorising device subscriptions
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, ownerOf func(deviceID string) (string, bool)) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger.With("component", "ws-hub"),
		ownerOf: ownerOf,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes all client
// connections.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws client connected", "user_id", c.userID, "clients", count)
}

// Unregister removes a client from the hub and closes its send
// channel. Safe to call more than once for the same client.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws client disconnected", "user_id", c.userID, "clients", count)
}

// BroadcastDeviceEvent pushes a device event to every client
// subscribed to the device, either directly or through a user-scope
// subscription on the device's owner.
//
// Implements the transport bridge's broadcaster contract.
func (h *Hub) BroadcastDeviceEvent(deviceID string, eventType string, payload any) {
	event := wsEvent{
		Type:      eventType,
		DeviceID:  deviceID,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("ws event marshal failed", "type", eventType, "error", err)
		return
	}

	ownerID, hasOwner := h.ownerOf(deviceID)

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		if c.wantsDevice(deviceID, ownerID, hasOwner) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.trySend(data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects every client.
func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		//nolint:errcheck // Best-effort close during shutdown
		c.conn.Close()
	}
	h.mu.Unlock()
}

// pingInterval returns the configured ping interval with a sane
// default.
func (h *Hub) pingInterval() time.Duration {
	if h.cfg.PingInterval <= 0 {
		return 30 * time.Second
	}
	return time.Duration(h.cfg.PingInterval) * time.Second
}

// pongTimeout returns the configured pong wait with a sane default.
func (h *Hub) pongTimeout() time.Duration {
	if h.cfg.PongTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(h.cfg.PongTimeout) * time.Second
}

// maxMessageSize returns the configured inbound message limit with a
// sane default.
func (h *Hub) maxMessageSize() int64 {
	if h.cfg.MaxMessageSize <= 0 {
		return 8192
	}
	return int64(h.cfg.MaxMessageSize)
}

// WSClient represents a single connected push-channel client.
type WSClient struct {
	hub      *Hub
	conn     *websocket.Conn
	logger   *logging.Logger
	executor CommandExecutor
	userID   string

	send chan []byte

	mu             sync.Mutex
	subscriptions  map[string]struct{}
	allUserDevices bool
}

// newWSClient creates a client for an upgraded connection.
func newWSClient(hub *Hub, conn *websocket.Conn, executor CommandExecutor, userID string) *WSClient {
	return &WSClient{
		hub:           hub,
		conn:          conn,
		logger:        hub.logger.With("user_id", userID),
		executor:      executor,
		userID:        userID,
		send:          make(chan []byte, wsSendBuffer),
		subscriptions: make(map[string]struct{}),
	}
}

// wantsDevice reports whether this client should receive events for
// the given device.
func (c *WSClient) wantsDevice(deviceID, ownerID string, hasOwner bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subscriptions[deviceID]; ok {
		return true
	}
	return c.allUserDevices && hasOwner && ownerID == c.userID
}

// trySend queues a message for delivery without blocking. Messages to
// clients with a full send queue are dropped.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		// The hub may have closed the send channel concurrently.
		_ = recover()
	}()
	select {
	case c.send <- data:
	default:
		c.logger.Warn("ws send queue full, dropping event")
	}
}

// sendEvent marshals and queues an event for this client only.
func (c *WSClient) sendEvent(event wsEvent) {
	event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("ws event marshal failed", "type", event.Type, "error", err)
		return
	}
	c.trySend(data)
}

// sendError pushes an error message to this client.
func (c *WSClient) sendError(message string) {
	c.sendEvent(wsEvent{Type: "error", Message: message})
}

// readPump reads client messages until the connection drops.
//
// Runs as a goroutine per connection. Unregisters the client on exit.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		//nolint:errcheck // Connection teardown
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.maxMessageSize())
	wait := c.hub.pingInterval() + c.hub.pongTimeout()
	//nolint:errcheck // Deadline setup on fresh connection
	c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("ws read error", "error", err)
			}
			return
		}
		c.handleMessage(data)
	}
}

// writePump delivers queued messages and keepalive pings.
//
// Runs as a goroutine per connection. Exits when the send channel is
// closed by the hub.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval())
	defer func() {
		ticker.Stop()
		//nolint:errcheck // Connection teardown
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches a single inbound client message.
func (c *WSClient) handleMessage(data []byte) {
	var msg wsClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("invalid message format")
		return
	}

	switch msg.Type {
	case wsTypeSubscribeUserDevices:
		c.mu.Lock()
		c.allUserDevices = true
		c.mu.Unlock()
		c.logger.Debug("ws subscribed to user devices")

	case wsTypeSubscribeDevice:
		c.handleSubscribeDevice(msg.DeviceID)

	case wsTypeUnsubscribeDevice:
		c.mu.Lock()
		delete(c.subscriptions, msg.DeviceID)
		c.mu.Unlock()

	case wsTypeDeviceCommand:
		c.handleDeviceCommand(msg)

	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

// handleSubscribeDevice adds a per-device subscription after checking
// the device belongs to this client's user.
func (c *WSClient) handleSubscribeDevice(deviceID string) {
	if deviceID == "" {
		c.sendError("deviceId is required")
		return
	}
	ownerID, ok := c.hub.ownerOf(deviceID)
	if !ok {
		c.sendError("unknown device: " + deviceID)
		return
	}
	if ownerID != c.userID {
		c.sendError("not authorised for device: " + deviceID)
		return
	}

	c.mu.Lock()
	c.subscriptions[deviceID] = struct{}{}
	c.mu.Unlock()
	c.logger.Debug("ws subscribed to device", "device_id", deviceID)
}

// handleDeviceCommand forwards a device command to the executor.
func (c *WSClient) handleDeviceCommand(msg wsClientMessage) {
	if c.executor == nil {
		c.sendError("command execution unavailable")
		return
	}
	if msg.DeviceID == "" || msg.Action == "" {
		c.sendError("deviceId and action are required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsCommandTimeout)
	defer cancel()

	if err := c.executor.ExecuteCommand(ctx, c.userID, msg.DeviceID, msg.Action, msg.Value); err != nil {
		c.logger.Warn("ws device command failed",
			"device_id", msg.DeviceID,
			"action", msg.Action,
			"error", err,
		)
		c.sendError("command failed: " + err.Error())
		return
	}

	c.sendEvent(wsEvent{
		Type:     "command_accepted",
		DeviceID: msg.DeviceID,
	})
}

// wsUpgrader upgrades HTTP connections to websocket. Origin checks are
// delegated to token authentication.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWS authenticates and upgrades a push-channel connection.
//
// Clients pass their JWT in the token query parameter, alongside the
// userId the token must be issued for:
//
//	GET /ws?token=<jwt>&userId=<user>
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticateWS(r)
	if err != nil {
		s.logger.Warn("ws auth failed", "error", err, "remote", r.RemoteAddr)
		writeUnauthorized(w, "invalid or missing token")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.Hub(), conn, s.executor, userID)
	s.Hub().Register(client)

	go client.writePump()
	go client.readPump()
}
