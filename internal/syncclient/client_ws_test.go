package syncclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hexahaven/havensync-core/internal/state"
)

// echoServer upgrades connections and forwards received envelopes to a
// channel, pushing one state update back after the first subscription.
func echoServer(t *testing.T, received chan<- clientMessage) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Errorf("server got malformed message: %v", err)
				continue
			}
			received <- msg

			if msg.Type == TypeSubscribeDevice {
				reply, _ := json.Marshal(serverMessage{
					Type:     TypeDeviceStateUpdate,
					DeviceID: msg.DeviceID,
					Switches: []bool{true, false, false, false, false},
				})
				if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
					return
				}
			}
		}
	}))
}

func TestClient_AgainstRealServer(t *testing.T) {
	received := make(chan clientMessage, 16)
	server := echoServer(t, received)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	cache := state.NewCache()
	if _, err := cache.Register("rec-1", "hexa5chn-a1b2c3", "user-1", "Living Room"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	client := New(wsURL, testSyncConfig(), cache)

	// Queue a command before connecting; it must replay first.
	if err := client.SendCommand(OutboundCommand{DeviceID: "hexa5chn-a1b2c3", Channel: 1, Action: "turn_on"}); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	if err := client.SubscribeDevice("hexa5chn-a1b2c3"); err != nil {
		t.Fatalf("SubscribeDevice() error = %v", err)
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	waitFor := func(wantType string) clientMessage {
		select {
		case msg := <-received:
			if msg.Type != wantType {
				t.Fatalf("server received %q, want %q", msg.Type, wantType)
			}
			return msg
		case <-time.After(2 * time.Second):
			t.Fatalf("server never received %q", wantType)
			return clientMessage{}
		}
	}

	// Queued command replays before the subscription.
	cmd := waitFor(TypeDeviceCommand)
	if cmd.Command == nil || cmd.Command.Action != "turn_on" {
		t.Errorf("replayed command = %+v", cmd.Command)
	}
	waitFor(TypeSubscribeDevice)

	// The server's state update lands in the cache.
	deadline := time.After(2 * time.Second)
	for {
		d, err := cache.Get("hexa5chn-a1b2c3")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if d.Channels[0].Status {
			break
		}
		select {
		case <-deadline:
			t.Fatal("state update never applied")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Live send while connected goes straight to the wire.
	if err := client.SendCommand(OutboundCommand{DeviceID: "hexa5chn-a1b2c3", Channel: 2, Action: "turn_off"}); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	live := waitFor(TypeDeviceCommand)
	if live.Command.Channel != 2 {
		t.Errorf("live command channel = %d, want 2", live.Command.Channel)
	}
	if client.QueuedCommands() != 0 {
		t.Errorf("queued = %d, want 0 while connected", client.QueuedCommands())
	}
}
