package bridge

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hexahaven/havensync-core/internal/infrastructure/config"
)

func TestManagementPublisher_Success(t *testing.T) {
	var gotAuth string
	var gotBody managementRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v5/mqtt/publish" {
			t.Errorf("request = %s %s, want POST /api/v5/mqtt/publish", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewManagementPublisher(config.MQTTManagementConfig{
		BaseURL: server.URL,
		Token:   "secret-token",
		Timeout: 10,
	})

	if err := p.Publish("devices/hexa5chn-x/commands", []byte(`{"action":"turn_on"}`), 1); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q, want Bearer secret-token", gotAuth)
	}
	if gotBody.Topic != "devices/hexa5chn-x/commands" {
		t.Errorf("body topic = %q", gotBody.Topic)
	}
	if gotBody.Payload != `{"action":"turn_on"}` {
		t.Errorf("body payload = %q", gotBody.Payload)
	}
	if gotBody.QoS != 1 {
		t.Errorf("body qos = %d, want 1", gotBody.QoS)
	}
}

func TestManagementPublisher_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrBrokerAuthFailed},
		{"forbidden", http.StatusForbidden, ErrBrokerAuthFailed},
		{"server error", http.StatusInternalServerError, ErrBrokerUnreachable},
		{"bad gateway", http.StatusBadGateway, ErrBrokerUnreachable},
		{"bad request", http.StatusBadRequest, ErrBrokerUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			p := NewManagementPublisher(config.MQTTManagementConfig{BaseURL: server.URL, Token: "t"})

			err := p.Publish("t", []byte("x"), 0)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestManagementPublisher_BrokerDown(t *testing.T) {
	// Closed server: transport error, retryable classification.
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	p := NewManagementPublisher(config.MQTTManagementConfig{BaseURL: server.URL, Token: "t"})

	err := p.Publish("t", []byte("x"), 0)
	if !errors.Is(err, ErrBrokerUnreachable) {
		t.Errorf("Publish() error = %v, want ErrBrokerUnreachable", err)
	}
}
