package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hexahaven/havensync-core/internal/audit"
	"github.com/hexahaven/havensync-core/internal/bridge"
	"github.com/hexahaven/havensync-core/internal/devices"
	"github.com/hexahaven/havensync-core/internal/provisioning"
	"github.com/hexahaven/havensync-core/internal/state"
)

// healthResponse is the payload for GET /api/v1/health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// handleHealth reports service liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: s.version,
	})
}

// publishRequest is the payload for both MQTT publish endpoints.
type publishRequest struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	QoS     *byte  `json:"qos,omitempty"`
}

// publishResponse confirms a successful publish and names the path
// that carried it.
type publishResponse struct {
	Message string `json:"message"`
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	Method  string `json:"method"`
}

// defaultPublishQoS is used when the request does not specify one.
const defaultPublishQoS byte = 1

// handleMQTTPublish publishes over the direct broker connection.
func (s *Server) handleMQTTPublish(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePublishRequest(w, r)
	if !ok {
		return
	}

	if s.broker == nil || !s.broker.IsConnected() {
		writeUnavailable(w, "broker connection unavailable")
		return
	}

	qos := defaultPublishQoS
	if req.QoS != nil {
		qos = *req.QoS
	}

	if err := s.broker.Publish(req.Topic, []byte(req.Payload), qos, false); err != nil {
		s.logger.Error("direct publish failed", "topic", req.Topic, "error", err)
		writeInternalError(w, "publish failed")
		return
	}

	writeJSON(w, http.StatusOK, publishResponse{
		Message: "published",
		Topic:   req.Topic,
		Payload: req.Payload,
		Method:  "direct",
	})
}

// handleMQTTPublishAPI publishes through the broker management API.
func (s *Server) handleMQTTPublishAPI(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePublishRequest(w, r)
	if !ok {
		return
	}

	if s.management == nil {
		writeUnavailable(w, "broker management API not configured")
		return
	}

	qos := defaultPublishQoS
	if req.QoS != nil {
		qos = *req.QoS
	}

	if err := s.management.Publish(req.Topic, []byte(req.Payload), qos); err != nil {
		s.logger.Error("management publish failed", "topic", req.Topic, "error", err)
		switch {
		case errors.Is(err, bridge.ErrBrokerAuthFailed):
			writeError(w, http.StatusBadGateway, "broker_auth_failed", "broker rejected management credentials")
		case errors.Is(err, bridge.ErrBrokerUnreachable):
			writeError(w, http.StatusBadGateway, "broker_unreachable", "broker management API unreachable")
		default:
			writeInternalError(w, "publish failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, publishResponse{
		Message: "published",
		Topic:   req.Topic,
		Payload: req.Payload,
		Method:  "management-api",
	})
}

// decodePublishRequest parses and validates a publish request body.
func decodePublishRequest(w http.ResponseWriter, r *http.Request) (publishRequest, bool) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return req, false
	}
	if req.Topic == "" {
		writeBadRequest(w, "topic is required")
		return req, false
	}
	if req.QoS != nil && *req.QoS > 2 {
		writeBadRequest(w, "qos must be 0, 1 or 2")
		return req, false
	}
	return req, true
}

// subscribeRequest is the payload for POST /api/v1/mqtt/subscribe.
type subscribeRequest struct {
	Topic string `json:"topic"`
	QoS   *byte  `json:"qos,omitempty"`
}

// handleMQTTSubscribe adds a broker subscription that logs received
// messages. Intended for diagnostics.
func (s *Server) handleMQTTSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Topic == "" {
		writeBadRequest(w, "topic is required")
		return
	}

	if s.broker == nil || !s.broker.IsConnected() {
		writeUnavailable(w, "broker connection unavailable")
		return
	}

	qos := defaultPublishQoS
	if req.QoS != nil {
		qos = *req.QoS
	}

	topic := req.Topic
	err := s.broker.Subscribe(topic, qos, func(t string, payload []byte) error {
		s.logger.Info("diagnostic subscription message",
			"topic", t,
			"payload_bytes", len(payload),
		)
		return nil
	})
	if err != nil {
		s.logger.Error("subscribe failed", "topic", topic, "error", err)
		writeInternalError(w, "subscribe failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "subscribed",
		"topic":   topic,
	})
}

// mqttStatusResponse is the payload for GET /api/v1/mqtt/status.
type mqttStatusResponse struct {
	Connected     bool `json:"connected"`
	Subscriptions int  `json:"subscriptions"`
	PushClients   int  `json:"pushClients"`
}

// handleMQTTStatus reports broker connectivity and push-channel load.
func (s *Server) handleMQTTStatus(w http.ResponseWriter, r *http.Request) {
	resp := mqttStatusResponse{}
	if s.broker != nil {
		resp.Connected = s.broker.IsConnected()
		resp.Subscriptions = s.broker.SubscriptionCount()
	}
	resp.PushClients = s.Hub().ClientCount()
	writeJSON(w, http.StatusOK, resp)
}

// handleDeviceList returns cached device state, optionally scoped to a
// user.
func (s *Server) handleDeviceList(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	var list []state.Device
	if userID != "" {
		list = s.cache.ListByUser(userID)
	} else {
		list = s.cache.List()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": list,
		"count":   len(list),
	})
}

// handleDeviceGet returns the cached state of a single device.
func (s *Server) handleDeviceGet(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	device, err := s.cache.Get(deviceID)
	if err != nil {
		if errors.Is(err, state.ErrDeviceNotFound) {
			writeNotFound(w, "device not found: "+deviceID)
			return
		}
		writeInternalError(w, "device lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, device)
}

// controlRequest is the payload for POST /api/v1/devices/{id}/control.
type controlRequest struct {
	UserID string `json:"userId"`
	Action string `json:"action"`
	Value  *int   `json:"value,omitempty"`
}

// handleDeviceControl issues a semantic command to a device through
// the transport bridge.
func (s *Server) handleDeviceControl(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Action == "" {
		writeBadRequest(w, "action is required")
		return
	}
	if req.UserID == "" {
		writeBadRequest(w, "userId is required")
		return
	}

	if s.executor == nil {
		writeUnavailable(w, "command execution unavailable")
		return
	}

	if _, err := s.cache.Get(deviceID); err != nil {
		writeNotFound(w, "device not found: "+deviceID)
		return
	}

	if err := s.executor.ExecuteCommand(r.Context(), req.UserID, deviceID, req.Action, req.Value); err != nil {
		s.logger.Error("device command failed",
			"device_id", deviceID,
			"action", req.Action,
			"error", err,
		)
		writeInternalError(w, "command failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message":  "command accepted",
		"deviceId": deviceID,
		"action":   req.Action,
	})
}

// handleAuditList returns audit entries matching the query filters.
func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeUnavailable(w, "audit log unavailable")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		UserID:   q.Get("userId"),
		DeviceID: q.Get("deviceId"),
		Action:   q.Get("action"),
		Status:   q.Get("status"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("audit list failed", "error", err)
		writeInternalError(w, "audit query failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// registerRequest is the payload for POST /api/v1/devices.
type registerRequest struct {
	DeviceID string `json:"deviceId"`
	UserID   string `json:"userId"`
	Name     string `json:"name"`
}

// handleDeviceRegister persists a device record and seeds its live
// state in the cache.
func (s *Server) handleDeviceRegister(w http.ResponseWriter, r *http.Request) {
	if s.deviceRepo == nil {
		writeUnavailable(w, "device registry unavailable")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.DeviceID == "" || req.UserID == "" {
		writeBadRequest(w, "deviceId and userId are required")
		return
	}
	if req.Name == "" {
		req.Name = req.DeviceID
	}

	rec := &devices.Record{
		DeviceID: req.DeviceID,
		UserID:   req.UserID,
		Name:     req.Name,
	}
	if err := s.deviceRepo.Create(r.Context(), rec); err != nil {
		if errors.Is(err, devices.ErrDuplicate) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "device already registered: "+req.DeviceID)
			return
		}
		s.logger.Error("device registration failed", "device_id", req.DeviceID, "error", err)
		writeInternalError(w, "registration failed")
		return
	}

	device, err := s.cache.Register(rec.ID, rec.DeviceID, rec.UserID, rec.Name)
	if err != nil {
		s.logger.Error("cache seed failed after registration", "device_id", req.DeviceID, "error", err)
		writeInternalError(w, "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, device)
}

// renameRequest is the payload for PATCH /api/v1/devices/{id}.
type renameRequest struct {
	Name string `json:"name"`
}

// handleDeviceRename updates a device's display name.
func (s *Server) handleDeviceRename(w http.ResponseWriter, r *http.Request) {
	if s.deviceRepo == nil {
		writeUnavailable(w, "device registry unavailable")
		return
	}
	deviceID := chi.URLParam(r, "deviceID")

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	if err := s.deviceRepo.Rename(r.Context(), deviceID, req.Name); err != nil {
		if errors.Is(err, devices.ErrNotFound) {
			writeNotFound(w, "device not found: "+deviceID)
			return
		}
		s.logger.Error("device rename failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "rename failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "renamed",
		"deviceId": deviceID,
		"name":     req.Name,
	})
}

// handleDeviceDelete removes a device record and its cached state.
func (s *Server) handleDeviceDelete(w http.ResponseWriter, r *http.Request) {
	if s.deviceRepo == nil {
		writeUnavailable(w, "device registry unavailable")
		return
	}
	deviceID := chi.URLParam(r, "deviceID")

	if err := s.deviceRepo.Delete(r.Context(), deviceID); err != nil {
		if errors.Is(err, devices.ErrNotFound) {
			writeNotFound(w, "device not found: "+deviceID)
			return
		}
		s.logger.Error("device delete failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "delete failed")
		return
	}

	// Removing the record wins even if the cache never held the device.
	if err := s.cache.Remove(deviceID); err != nil && !errors.Is(err, state.ErrDeviceNotFound) {
		s.logger.Warn("cache removal failed after delete", "device_id", deviceID, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "deleted",
		"deviceId": deviceID,
	})
}

// provisionRequest is the payload for POST /api/v1/provision.
type provisionRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`
	UserID   string `json:"userId"`
}

// provisionResponse reports the outcome of a provisioning session.
type provisionResponse struct {
	Delivered  bool   `json:"delivered"`
	Peripheral string `json:"peripheral"`
	DurationMS int64  `json:"durationMs"`
}

// handleProvision runs a BLE provisioning session for a new device.
//
// The request blocks until the session completes or fails; sessions are
// bounded by the scan and connect windows, so the worst case stays
// within the HTTP write timeout.
func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	if s.provisioner == nil {
		writeUnavailable(w, "provisioning unavailable")
		return
	}

	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.SSID == "" || req.DeviceID == "" || req.UserID == "" {
		writeBadRequest(w, "ssid, deviceId and userId are required")
		return
	}

	result, err := s.provisioner.Provision(r.Context(), provisioning.Credentials{
		SSID:     req.SSID,
		Password: req.Password,
		DeviceID: req.DeviceID,
		UserID:   req.UserID,
	})
	if err != nil {
		s.logger.Warn("provisioning failed", "device_id", req.DeviceID, "error", err)
		switch {
		case errors.Is(err, provisioning.ErrSessionActive):
			writeError(w, http.StatusConflict, ErrCodeConflict, "a provisioning session is already running")
		case errors.Is(err, provisioning.ErrScanTimeout):
			writeNotFound(w, "device not advertising: "+req.DeviceID)
		default:
			writeError(w, http.StatusBadGateway, "provisioning_failed", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, provisionResponse{
		Delivered:  result.CredentialsDelivered,
		Peripheral: result.Peripheral.Name,
		DurationMS: result.Duration.Milliseconds(),
	})
}
