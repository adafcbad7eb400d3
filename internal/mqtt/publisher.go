package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned when a publish is attempted while the broker
// is unreachable. The cycle's payload is dropped; telemetry is a live feed,
// not an audit log, so there is no replay queue.
var ErrNotConnected = errors.New("not connected to MQTT broker")

const telemetryQoS = 1

// Publisher marshals payloads to JSON and publishes them.
type Publisher struct {
	client *Client
	logger *logrus.Logger
}

// NewPublisher creates a publisher on an established connection.
func NewPublisher(client *Client, logger *logrus.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger,
	}
}

// Publish sends one JSON payload at QoS 1, not retained.
func (p *Publisher) Publish(topic string, payload interface{}) error {
	return p.publish(topic, payload, false)
}

// PublishRetained sends one JSON payload at QoS 1 with the retain flag,
// used for discovery configs and switch state.
func (p *Publisher) PublishRetained(topic string, payload interface{}) error {
	return p.publish(topic, payload, true)
}

// PublishRaw sends a pre-encoded payload, used for plain-text state values.
func (p *Publisher) PublishRaw(topic string, payload []byte, retained bool) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}
	token := p.client.client.Publish(topic, telemetryQoS, retained, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}
	p.logger.WithField("topic", topic).Trace("Published")
	return nil
}

func (p *Publisher) publish(topic string, payload interface{}, retained bool) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}
	return p.PublishRaw(topic, data, retained)
}
