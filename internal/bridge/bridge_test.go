package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hexahaven/havensync-core/internal/audit"
	"github.com/hexahaven/havensync-core/internal/state"
)

// fakePublisher records published messages.
type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return f.err
}

// fakeAuditor records audit entries in memory.
type fakeAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (f *fakeAuditor) Create(_ context.Context, entry *audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return f.err
}

func (f *fakeAuditor) List(context.Context, audit.Filter) (*audit.ListResult, error) {
	return nil, errors.New("not implemented")
}

// fakeTelemetry records status writes.
type fakeTelemetry struct {
	deviceIDs []string
	online    []bool
	signals   []int
}

func (f *fakeTelemetry) WriteDeviceStatus(deviceID string, online bool, signal int) {
	f.deviceIDs = append(f.deviceIDs, deviceID)
	f.online = append(f.online, online)
	f.signals = append(f.signals, signal)
}

// fakeBroadcaster records broadcast events.
type fakeBroadcaster struct {
	events []string
}

func (f *fakeBroadcaster) BroadcastDeviceEvent(deviceID, eventType string, payload any) {
	f.events = append(f.events, eventType)
}

func newTestBridge(t *testing.T) (*Bridge, *fakePublisher, *fakeAuditor, *state.Cache) {
	t.Helper()

	publisher := &fakePublisher{}
	auditor := &fakeAuditor{}
	cache := state.NewCache()
	if _, err := cache.Register("rec-1", "hexa5chn-a1b2c3", "user-1", "Living Room"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	b := New(publisher, auditor, cache, 1)
	return b, publisher, auditor, cache
}

func TestExecuteCommand_Translation(t *testing.T) {
	tests := []struct {
		name       string
		action     string
		value      *int
		wantAction string
		wantValue  *int
		wantOrig   string
	}{
		{"turn on", "TurnOn", nil, "turn_on", nil, ""},
		{"turn off", "TurnOff", nil, "turn_off", nil, ""},
		{"brightness", "SetBrightness", intPtr(80), "set_brightness", intPtr(80), ""},
		{"temperature", "SetTemperature", intPtr(22), "set_temperature", intPtr(22), ""},
		{"unknown forwarded", "DoBackflip", nil, "unknown", nil, "DoBackflip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, publisher, _, _ := newTestBridge(t)

			if err := b.ExecuteCommand(context.Background(), "user-1", "hexa5chn-a1b2c3", tt.action, tt.value); err != nil {
				t.Fatalf("ExecuteCommand() error = %v", err)
			}

			if got := publisher.topics[0]; got != "devices/hexa5chn-a1b2c3/commands" {
				t.Errorf("published to %q, want devices/hexa5chn-a1b2c3/commands", got)
			}

			var cmd Command
			if err := json.Unmarshal(publisher.payloads[0], &cmd); err != nil {
				t.Fatalf("payload is not JSON: %v", err)
			}
			if cmd.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", cmd.Action, tt.wantAction)
			}
			if tt.wantValue != nil && (cmd.Value == nil || *cmd.Value != *tt.wantValue) {
				t.Errorf("Value = %v, want %d", cmd.Value, *tt.wantValue)
			}
			if cmd.Original != tt.wantOrig {
				t.Errorf("Original = %q, want %q", cmd.Original, tt.wantOrig)
			}
		})
	}
}

func TestExecuteCommand_AuditOnSuccess(t *testing.T) {
	b, _, auditor, _ := newTestBridge(t)

	if err := b.ExecuteCommand(context.Background(), "user-1", "hexa5chn-a1b2c3", "SetBrightness", intPtr(80)); err != nil {
		t.Fatalf("ExecuteCommand() error = %v", err)
	}

	if len(auditor.entries) != 1 {
		t.Fatalf("audit entries = %d, want exactly 1", len(auditor.entries))
	}
	entry := auditor.entries[0]
	if entry.UserID != "user-1" || entry.DeviceID != "hexa5chn-a1b2c3" {
		t.Errorf("entry identity = %s/%s", entry.UserID, entry.DeviceID)
	}
	if entry.Action != "set_brightness" || entry.Status != audit.StatusSuccess {
		t.Errorf("entry outcome = %s/%s, want set_brightness/success", entry.Action, entry.Status)
	}
	if entry.Detail["value"] != 80 {
		t.Errorf("Detail[value] = %v, want 80", entry.Detail["value"])
	}
}

func TestExecuteCommand_AuditOnFailure(t *testing.T) {
	b, publisher, auditor, _ := newTestBridge(t)
	publisher.err = ErrBrokerUnreachable

	err := b.ExecuteCommand(context.Background(), "user-1", "hexa5chn-a1b2c3", "TurnOn", nil)
	if !errors.Is(err, ErrBrokerUnreachable) {
		t.Fatalf("ExecuteCommand() error = %v, want ErrBrokerUnreachable", err)
	}

	if len(auditor.entries) != 1 {
		t.Fatalf("audit entries = %d, want exactly 1 regardless of outcome", len(auditor.entries))
	}
	if auditor.entries[0].Status != audit.StatusFailed {
		t.Errorf("entry status = %s, want failed", auditor.entries[0].Status)
	}
}

func TestExecuteCommand_AuditFailureDoesNotFailCommand(t *testing.T) {
	b, _, auditor, _ := newTestBridge(t)
	auditor.err = errors.New("disk full")

	if err := b.ExecuteCommand(context.Background(), "user-1", "hexa5chn-a1b2c3", "TurnOn", nil); err != nil {
		t.Errorf("ExecuteCommand() error = %v, want nil despite audit failure", err)
	}
}

func TestHandleStatus_FullUpdate(t *testing.T) {
	b, _, _, cache := newTestBridge(t)

	telemetry := &fakeTelemetry{}
	broadcaster := &fakeBroadcaster{}
	b.SetTelemetry(telemetry)
	b.SetBroadcaster(broadcaster)

	online := true
	payload, _ := json.Marshal(StatusMessage{
		Online:     &online,
		Signal:     -48,
		Switches:   []bool{true, false, true, false, false},
		Regulators: []int{60, 0},
	})

	b.HandleStatus("havensync/hexa5chn-a1b2c3/status", payload)

	d, err := cache.Get("hexa5chn-a1b2c3")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !d.IsConnected {
		t.Error("device should be connected")
	}
	if d.Signal != -48 {
		t.Errorf("Signal = %d, want -48", d.Signal)
	}
	if !d.Channels[0].Status || !d.Channels[2].Status {
		t.Error("switch statuses not applied")
	}
	if d.Regulators[0] != 60 {
		t.Errorf("Regulators[0] = %d, want 60", d.Regulators[0])
	}

	if len(telemetry.deviceIDs) != 1 || telemetry.deviceIDs[0] != "hexa5chn-a1b2c3" {
		t.Errorf("telemetry writes = %v, want one for hexa5chn-a1b2c3", telemetry.deviceIDs)
	}
	if !telemetry.online[0] || telemetry.signals[0] != -48 {
		t.Errorf("telemetry record = online=%v signal=%d", telemetry.online[0], telemetry.signals[0])
	}

	wantEvents := []string{"device_connected", "device_status"}
	if len(broadcaster.events) != 2 || broadcaster.events[0] != wantEvents[0] || broadcaster.events[1] != wantEvents[1] {
		t.Errorf("broadcast events = %v, want %v", broadcaster.events, wantEvents)
	}
}

func TestHandleStatus_OfflineOnly(t *testing.T) {
	b, _, _, cache := newTestBridge(t)

	broadcaster := &fakeBroadcaster{}
	b.SetBroadcaster(broadcaster)

	if err := cache.SetConnectivity("hexa5chn-a1b2c3", true, time.Now()); err != nil {
		t.Fatalf("SetConnectivity() error = %v", err)
	}

	offline := false
	payload, _ := json.Marshal(StatusMessage{Online: &offline})
	b.HandleStatus("havensync/hexa5chn-a1b2c3/status", payload)

	d, _ := cache.Get("hexa5chn-a1b2c3")
	if d.IsConnected {
		t.Error("device should be offline")
	}
	if len(broadcaster.events) != 1 || broadcaster.events[0] != "device_disconnected" {
		t.Errorf("broadcast events = %v, want [device_disconnected]", broadcaster.events)
	}
}

func TestHandleStatus_Motion(t *testing.T) {
	b, _, _, cache := newTestBridge(t)

	broadcaster := &fakeBroadcaster{}
	b.SetBroadcaster(broadcaster)

	payload, _ := json.Marshal(StatusMessage{
		Motion: &MotionReport{Channel: 2, Detected: true},
	})
	b.HandleStatus("havensync/hexa5chn-a1b2c3/status", payload)

	d, err := cache.Get("hexa5chn-a1b2c3")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !d.Channels[1].SecondaryStatus {
		t.Error("Channels[1].SecondaryStatus = false, want true")
	}

	wantEvents := []string{"pir_motion", "device_status"}
	if len(broadcaster.events) != 2 || broadcaster.events[0] != wantEvents[0] || broadcaster.events[1] != wantEvents[1] {
		t.Errorf("broadcast events = %v, want %v", broadcaster.events, wantEvents)
	}
}

func TestHandleStatus_MotionDefaultChannel(t *testing.T) {
	b, _, _, cache := newTestBridge(t)

	payload, _ := json.Marshal(StatusMessage{
		Motion: &MotionReport{Detected: true},
	})
	b.HandleStatus("havensync/hexa5chn-a1b2c3/status", payload)

	d, _ := cache.Get("hexa5chn-a1b2c3")
	if !d.Channels[0].SecondaryStatus {
		t.Error("omitted channel should target channel 1")
	}
}

func TestHandleStatus_BadInput(t *testing.T) {
	b, _, _, _ := newTestBridge(t)

	// None of these should panic or mutate anything.
	b.HandleStatus("havensync/hexa5chn-a1b2c3/status", []byte("{not json"))
	b.HandleStatus("wrong/topic/shape/extra", []byte("{}"))
	online := true
	payload, _ := json.Marshal(StatusMessage{Online: &online})
	b.HandleStatus("havensync/unregistered-device/status", payload)
}

func intPtr(v int) *int { return &v }
