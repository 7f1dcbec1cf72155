package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hexahaven/havensync-core/internal/infrastructure/config"
)

// defaultManagementTimeout bounds each management API request.
const defaultManagementTimeout = 10 * time.Second

// publishEndpoint is the EMQX v5 management publish route.
const publishEndpoint = "/api/v5/mqtt/publish"

// ManagementPublisher publishes through the broker's HTTP management
// API instead of a broker connection. Useful when the core should stay
// stateless towards the broker, or the direct connection is down.
type ManagementPublisher struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewManagementPublisher creates a management API publisher.
func NewManagementPublisher(cfg config.MQTTManagementConfig) *ManagementPublisher {
	timeout := defaultManagementTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &ManagementPublisher{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
	}
}

// managementRequest is the EMQX publish request body.
type managementRequest struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	QoS     byte   `json:"qos"`
}

// Publish POSTs the payload to the broker's publish endpoint.
//
// Error classification drives retry behaviour upstream:
//   - 401/403 → ErrBrokerAuthFailed (not retryable)
//   - transport errors and any other non-2xx → ErrBrokerUnreachable
//     (retryable)
func (p *ManagementPublisher) Publish(topic string, payload []byte, qos byte) error {
	body, err := json.Marshal(managementRequest{
		Topic:   topic,
		Payload: string(payload),
		QoS:     qos,
	})
	if err != nil {
		return fmt.Errorf("encoding publish request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, p.baseURL+publishEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBrokerUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrBrokerAuthFailed, resp.StatusCode)
	default:
		// Include a slice of the body for operator context.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: status %d: %s", ErrBrokerUnreachable, resp.StatusCode, string(snippet))
	}
}
