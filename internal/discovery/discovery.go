// Package discovery builds the retained configuration payloads that let
// Home Assistant auto-register the detector's entities. They are published
// once at startup; none of this runs in the per-cycle path.
package discovery

import (
	"fmt"

	"github.com/radwatch/gmcbridge/internal/models"
)

// Options collects everything the discovery payloads are derived from.
type Options struct {
	Prefix            string
	Device            models.DeviceInfo
	TopicCPM          string
	TopicDoseRate     string
	TopicSpeakerState string
	TopicSpeakerSet   string
}

// RetainedPublisher publishes a retained JSON payload.
type RetainedPublisher interface {
	PublishRetained(topic string, payload interface{}) error
}

// deviceBlock is the shared device registry entry embedded in every entity.
type deviceBlock struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	HWVersion    string   `json:"hw_version"`
	SWVersion    string   `json:"sw_version"`
}

// SensorConfig is a Home Assistant MQTT sensor discovery payload.
type SensorConfig struct {
	UniqueID               string      `json:"unique_id"`
	Icon                   string      `json:"icon"`
	Name                   string      `json:"name"`
	StateTopic             string      `json:"state_topic"`
	UnitOfMeasurement      string      `json:"unit_of_measurement"`
	StateClass             string      `json:"state_class"`
	ValueTemplate          string      `json:"value_template"`
	JSONAttributesTopic    string      `json:"json_attributes_topic"`
	JSONAttributesTemplate string      `json:"json_attributes_template"`
	Device                 deviceBlock `json:"device"`
	Platform               string      `json:"platform"`
}

// SwitchConfig is a Home Assistant MQTT switch discovery payload.
type SwitchConfig struct {
	UniqueID       string      `json:"unique_id"`
	Icon           string      `json:"icon"`
	Name           string      `json:"name"`
	StateTopic     string      `json:"state_topic"`
	CommandTopic   string      `json:"command_topic"`
	StateOn        string      `json:"state_on"`
	StateOff       string      `json:"state_off"`
	PayloadOn      string      `json:"payload_on"`
	PayloadOff     string      `json:"payload_off"`
	EntityCategory string      `json:"entity_category"`
	Device         deviceBlock `json:"device"`
	Platform       string      `json:"platform"`
}

func newDeviceBlock(d models.DeviceInfo) deviceBlock {
	return deviceBlock{
		Identifiers:  []string{d.ID},
		Name:         d.Name,
		Manufacturer: d.Manufacturer,
		Model:        d.Model,
		HWVersion:    "1.0",
		SWVersion:    "1.0",
	}
}

// CPMSensor builds the discovery payload and topic for the raw count sensor.
func CPMSensor(opts Options) (topic string, cfg SensorConfig) {
	topic = fmt.Sprintf("%s/sensor/%s-cpm/config", opts.Prefix, opts.Device.ID)
	cfg = SensorConfig{
		UniqueID:               fmt.Sprintf("%s_cpm", opts.Device.ID),
		Icon:                   "mdi:radioactive",
		Name:                   "CPM",
		StateTopic:             opts.TopicCPM,
		UnitOfMeasurement:      "CPM",
		StateClass:             "measurement",
		ValueTemplate:          "{{ value_json.value | int }}",
		JSONAttributesTopic:    opts.TopicCPM,
		JSONAttributesTemplate: "{{ value_json | tojson }}",
		Device:                 newDeviceBlock(opts.Device),
		Platform:               "mqtt",
	}
	return topic, cfg
}

// DoseRateSensor builds the discovery payload and topic for the dose-rate
// sensor.
func DoseRateSensor(opts Options) (topic string, cfg SensorConfig) {
	topic = fmt.Sprintf("%s/sensor/%s-dose_rate/config", opts.Prefix, opts.Device.ID)
	cfg = SensorConfig{
		UniqueID:               fmt.Sprintf("%s_dose_rate", opts.Device.ID),
		Icon:                   "mdi:nuke",
		Name:                   "Dose Rate",
		StateTopic:             opts.TopicDoseRate,
		UnitOfMeasurement:      "uSv/h",
		StateClass:             "measurement",
		ValueTemplate:          "{{ value_json.value | float }}",
		JSONAttributesTopic:    opts.TopicDoseRate,
		JSONAttributesTemplate: "{{ value_json | tojson }}",
		Device:                 newDeviceBlock(opts.Device),
		Platform:               "mqtt",
	}
	return topic, cfg
}

// SpeakerSwitch builds the discovery payload and topic for the click
// speaker switch.
func SpeakerSwitch(opts Options) (topic string, cfg SwitchConfig) {
	topic = fmt.Sprintf("%s/switch/%s-speaker/config", opts.Prefix, opts.Device.ID)
	cfg = SwitchConfig{
		UniqueID:       fmt.Sprintf("%s_speaker", opts.Device.ID),
		Icon:           "mdi:volume-high",
		Name:           "Speaker",
		StateTopic:     opts.TopicSpeakerState,
		CommandTopic:   opts.TopicSpeakerSet,
		StateOn:        "ON",
		StateOff:       "OFF",
		PayloadOn:      "on",
		PayloadOff:     "off",
		EntityCategory: "config",
		Device:         newDeviceBlock(opts.Device),
		Platform:       "mqtt",
	}
	return topic, cfg
}

// Publish emits all retained discovery configs.
func Publish(pub RetainedPublisher, opts Options) error {
	cpmTopic, cpmCfg := CPMSensor(opts)
	if err := pub.PublishRetained(cpmTopic, cpmCfg); err != nil {
		return fmt.Errorf("failed to publish CPM discovery: %w", err)
	}

	doseTopic, doseCfg := DoseRateSensor(opts)
	if err := pub.PublishRetained(doseTopic, doseCfg); err != nil {
		return fmt.Errorf("failed to publish dose-rate discovery: %w", err)
	}

	speakerTopic, speakerCfg := SpeakerSwitch(opts)
	if err := pub.PublishRetained(speakerTopic, speakerCfg); err != nil {
		return fmt.Errorf("failed to publish speaker discovery: %w", err)
	}

	return nil
}
