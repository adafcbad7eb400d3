// Package mqtt wraps the paho client: connection management, telemetry
// publishing and the speaker command subscription.
package mqtt

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ClientConfig holds broker connection settings.
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Client manages the broker connection. Reconnects are handled by paho in
// the background; the bridge only issues publish calls and checks
// connectivity.
type Client struct {
	client mqtt.Client
	logger *logrus.Logger
}

// NewClient connects to the broker. The configured client id gets a random
// suffix so restarts and parallel instances never steal each other's
// broker session.
func NewClient(config ClientConfig, logger *logrus.Logger) (*Client, error) {
	clientID := fmt.Sprintf("%s-%s", config.ClientID, uuid.NewString()[:8])

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.WithField("broker", config.Broker).Info("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost, reconnecting")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Client{
		client: client,
		logger: logger,
	}, nil
}

// IsConnected reports current broker connectivity.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close disconnects from the broker, allowing in-flight messages to drain.
func (c *Client) Close() {
	c.client.Disconnect(250)
	c.logger.Info("Disconnected from MQTT broker")
}
