package mqtt

import (
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// SpeakerController switches the detector's click speaker.
type SpeakerController interface {
	SetSpeaker(on bool) error
}

// SpeakerHandler bridges the home-automation switch to the device: it
// subscribes to the command topic and republishes the resulting state,
// retained, so the platform shows the current position after restarts.
type SpeakerHandler struct {
	client     *Client
	publisher  *Publisher
	device     SpeakerController
	stateTopic string
	logger     *logrus.Logger
}

// NewSpeakerHandler wires a speaker controller to its MQTT topics.
func NewSpeakerHandler(client *Client, publisher *Publisher, device SpeakerController, stateTopic string, logger *logrus.Logger) *SpeakerHandler {
	return &SpeakerHandler{
		client:     client,
		publisher:  publisher,
		device:     device,
		stateTopic: stateTopic,
		logger:     logger,
	}
}

// Subscribe starts handling commands on the given topic. Payloads are
// "on" or "off", case-insensitive; anything else is logged and ignored.
func (h *SpeakerHandler) Subscribe(commandTopic string) error {
	token := h.client.client.Subscribe(commandTopic, telemetryQoS, h.handleCommand)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", commandTopic, token.Error())
	}
	h.logger.WithField("topic", commandTopic).Info("Subscribed to speaker command topic")
	return nil
}

// InitializeState drives the speaker to a known position at startup and
// publishes it retained, so the platform shows a defined state right
// after registration instead of unknown until the first command.
func (h *SpeakerHandler) InitializeState(on bool) error {
	if err := h.device.SetSpeaker(on); err != nil {
		return fmt.Errorf("failed to set initial speaker state: %w", err)
	}
	return h.PublishState(on)
}

// PublishState publishes the retained switch state (ON/OFF).
func (h *SpeakerHandler) PublishState(on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	return h.publisher.PublishRaw(h.stateTopic, []byte(state), true)
}

func (h *SpeakerHandler) handleCommand(client mqtt.Client, msg mqtt.Message) {
	var on bool
	switch strings.ToLower(strings.TrimSpace(string(msg.Payload()))) {
	case "on":
		on = true
	case "off":
		on = false
	default:
		h.logger.WithFields(logrus.Fields{
			"topic":   msg.Topic(),
			"payload": string(msg.Payload()),
		}).Warn("Ignoring unknown speaker command")
		return
	}

	if err := h.device.SetSpeaker(on); err != nil {
		h.logger.WithError(err).Error("Failed to switch speaker")
		return
	}

	if err := h.PublishState(on); err != nil {
		h.logger.WithError(err).Warn("Failed to publish speaker state")
	}
}
