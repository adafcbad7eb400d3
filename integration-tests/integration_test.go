//go:build integration
// +build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radwatch/gmcbridge/internal/bridge"
	"github.com/radwatch/gmcbridge/internal/detector"
	"github.com/radwatch/gmcbridge/internal/discovery"
	"github.com/radwatch/gmcbridge/internal/metrics"
	"github.com/radwatch/gmcbridge/internal/models"
	"github.com/radwatch/gmcbridge/internal/mqtt"
)

const brokerPort = 18831

// fakeDetector stands in for the serial device: it replays a scripted
// sequence of decoded CPM readings.
type fakeDetector struct {
	mu       sync.Mutex
	readings []int
	calls    int
	speaker  bool
}

func (f *fakeDetector) ReadCPM() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.readings) {
		return 0, fmt.Errorf("no more readings")
	}
	v := f.readings[f.calls]
	f.calls++
	return v, nil
}

func (f *fakeDetector) SetSpeaker(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speaker = on
	return nil
}

func (f *fakeDetector) speakerState() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speaker
}

func startBroker(t *testing.T) {
	t.Helper()

	server := mochi.New(nil)
	err := server.AddHook(new(auth.AllowHook), nil)
	require.NoError(t, err)

	tcp := listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		Address: fmt.Sprintf("localhost:%d", brokerPort),
	})
	require.NoError(t, server.AddListener(tcp))
	require.NoError(t, server.Serve())

	t.Cleanup(func() { server.Close() })
}

func newBridgeClient(t *testing.T, id string) *mqtt.Client {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	client, err := mqtt.NewClient(mqtt.ClientConfig{
		Broker:   fmt.Sprintf("tcp://localhost:%d", brokerPort),
		ClientID: id,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

// newObserver returns a raw paho client subscribed to the given topics,
// feeding received payloads into the returned channel.
func newObserver(t *testing.T, topics ...string) <-chan [2]string {
	t.Helper()

	received := make(chan [2]string, 64)

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://localhost:%d", brokerPort))
	opts.SetClientID("integration-observer")
	observer := pahomqtt.NewClient(opts)
	token := observer.Connect()
	require.True(t, token.Wait())
	require.NoError(t, token.Error())
	t.Cleanup(func() { observer.Disconnect(100) })

	for _, topic := range topics {
		token := observer.Subscribe(topic, 1, func(c pahomqtt.Client, msg pahomqtt.Message) {
			received <- [2]string{msg.Topic(), string(msg.Payload())}
		})
		require.True(t, token.Wait())
		require.NoError(t, token.Error())
	}

	return received
}

func collect(t *testing.T, ch <-chan [2]string, n int) map[string][]string {
	t.Helper()

	out := make(map[string][]string)
	for i := 0; i < n; i++ {
		select {
		case msg := <-ch:
			out[msg[0]] = append(out[msg[0]], msg[1])
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for message %d of %d", i+1, n)
		}
	}
	return out
}

func TestBridgePublishesAggregates(t *testing.T) {
	startBroker(t)

	received := newObserver(t, "geiger/cpm", "geiger/usvh")

	client := newBridgeClient(t, "integration-bridge")
	publisher := mqtt.NewPublisher(client, logrus.New())

	state, err := detector.NewState(3, 1000, 5.0, 153.0)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	device := &fakeDetector{readings: []int{20, 22, 19, 5000, 21}}
	b := bridge.New(device, publisher, state, bridge.Topics{
		CPM:      "geiger/cpm",
		DoseRate: "geiger/usvh",
	}, logger, metrics.New())

	for i := 0; i < 5; i++ {
		_ = b.RunCycle(context.Background())
	}

	// 4 accepted cycles, one payload per topic each; the spike cycle
	// publishes nothing.
	messages := collect(t, received, 8)
	require.Len(t, messages["geiger/cpm"], 4)
	require.Len(t, messages["geiger/usvh"], 4)

	var agg models.CPMAggregate
	require.NoError(t, json.Unmarshal([]byte(messages["geiger/cpm"][3]), &agg))
	assert.Equal(t, 21, agg.Value)
	assert.Equal(t, 19, agg.Min)
	assert.Equal(t, 22, agg.Max)
	assert.InDelta(t, 20.67, agg.Avg, 1e-9)
}

func TestDiscoveryConfigsAreRetained(t *testing.T) {
	startBroker(t)

	client := newBridgeClient(t, "integration-discovery")
	publisher := mqtt.NewPublisher(client, logrus.New())

	opts := discovery.Options{
		Prefix: "homeassistant",
		Device: models.DeviceInfo{
			ID:           "geiger-detector",
			Name:         "Geiger Detector",
			Manufacturer: "GQ Electronics",
			Model:        "GMC",
		},
		TopicCPM:          "geiger/cpm",
		TopicDoseRate:     "geiger/usvh",
		TopicSpeakerState: "geiger/speaker/state",
		TopicSpeakerSet:   "geiger/speaker/set",
	}
	require.NoError(t, discovery.Publish(publisher, opts))

	// Subscribing after the publish only sees the configs if the broker
	// retained them.
	received := newObserver(t, "homeassistant/#")
	messages := collect(t, received, 3)

	assert.Contains(t, messages, "homeassistant/sensor/geiger-detector-cpm/config")
	assert.Contains(t, messages, "homeassistant/sensor/geiger-detector-dose_rate/config")
	assert.Contains(t, messages, "homeassistant/switch/geiger-detector-speaker/config")
}

func TestSpeakerCommandRoundTrip(t *testing.T) {
	startBroker(t)

	client := newBridgeClient(t, "integration-speaker")

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	publisher := mqtt.NewPublisher(client, logger)

	device := &fakeDetector{speaker: true}
	handler := mqtt.NewSpeakerHandler(client, publisher, device, "geiger/speaker/state", logger)
	require.NoError(t, handler.Subscribe("geiger/speaker/set"))
	require.NoError(t, handler.InitializeState(false))
	assert.False(t, device.speakerState())

	// Subscribing after InitializeState only sees the state if the broker
	// retained it; without it the switch shows unknown after registration.
	received := newObserver(t, "geiger/speaker/state")
	messages := collect(t, received, 1)
	require.Len(t, messages["geiger/speaker/state"], 1)
	assert.Equal(t, "OFF", messages["geiger/speaker/state"][0])

	commander := newBridgeClient(t, "integration-commander")
	cmdPublisher := mqtt.NewPublisher(commander, logger)
	require.NoError(t, cmdPublisher.PublishRaw("geiger/speaker/set", []byte("on"), false))

	messages = collect(t, received, 1)
	require.Len(t, messages["geiger/speaker/state"], 1)
	assert.Equal(t, "ON", messages["geiger/speaker/state"][0])
	assert.True(t, device.speakerState())
}
