package bridge

import (
	"fmt"

	"github.com/hexahaven/havensync-core/internal/infrastructure/mqtt"
)

// Publisher delivers a payload to an MQTT topic. Two implementations
// exist: MQTTPublisher over a direct broker connection, and
// ManagementPublisher over the broker's HTTP management API.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte) error
}

// brokerClient is the slice of the MQTT client the publisher needs.
type brokerClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// MQTTPublisher publishes over the direct broker connection.
type MQTTPublisher struct {
	client brokerClient
}

// NewMQTTPublisher wraps a connected broker client.
func NewMQTTPublisher(client *mqtt.Client) *MQTTPublisher {
	return &MQTTPublisher{client: client}
}

// newMQTTPublisherWith allows tests to substitute the broker client.
func newMQTTPublisherWith(client brokerClient) *MQTTPublisher {
	return &MQTTPublisher{client: client}
}

// Publish delivers the payload, waiting for broker acknowledgement at
// the configured QoS.
func (p *MQTTPublisher) Publish(topic string, payload []byte, qos byte) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("%w: not connected", ErrBrokerUnreachable)
	}
	if err := p.client.Publish(topic, payload, qos, false); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}
