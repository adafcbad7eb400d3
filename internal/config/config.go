package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/radwatch/gmcbridge/internal/models"
)

// Config holds all configuration for our application
type Config struct {
	Serial    SerialConfig    `mapstructure:"serial"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type DetectorConfig struct {
	// CPMToUSVH is the tube calibration factor: µSv/h = CPM / CPMToUSVH.
	CPMToUSVH  float64 `mapstructure:"cpm_to_usvh"`
	WindowSize int     `mapstructure:"window_size"`
	MaxCPM     int     `mapstructure:"max_cpm"`
	MaxCPMJump float64 `mapstructure:"max_cpm_jump"`
}

type MQTTConfig struct {
	Broker            string `mapstructure:"broker"`
	ClientID          string `mapstructure:"client_id"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	TopicCPM          string `mapstructure:"topic_cpm"`
	TopicDoseRate     string `mapstructure:"topic_dose_rate"`
	TopicSpeakerState string `mapstructure:"topic_speaker_state"`
	TopicSpeakerSet   string `mapstructure:"topic_speaker_set"`
}

type DiscoveryConfig struct {
	Prefix             string `mapstructure:"prefix"`
	DeviceID           string `mapstructure:"device_id"`
	DeviceName         string `mapstructure:"device_name"`
	DeviceManufacturer string `mapstructure:"device_manufacturer"`
	DeviceModel        string `mapstructure:"device_model"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	// ListenAddr is the address for the Prometheus /metrics endpoint.
	// Empty disables the endpoint.
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load reads configuration from an optional yaml file and environment
// variables. Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	bindEnvAliases(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			// A missing config file is fine; everything has env defaults.
			if !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return nil, fmt.Errorf("failed to read config file: %w", err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// DeviceInfo assembles the device identity block used by discovery.
func (c *Config) DeviceInfo() models.DeviceInfo {
	return models.DeviceInfo{
		ID:           c.Discovery.DeviceID,
		Name:         c.Discovery.DeviceName,
		Manufacturer: c.Discovery.DeviceManufacturer,
		Model:        c.Discovery.DeviceModel,
	}
}

// Validate enforces the numeric invariants the detector pipeline depends on.
// A config that fails here must prevent the process from starting.
func (c *Config) Validate() error {
	if c.Serial.Port == "" {
		return fmt.Errorf("serial port must not be empty")
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial baud rate must be positive, got %d", c.Serial.BaudRate)
	}
	if c.Serial.ReadTimeout <= 0 {
		return fmt.Errorf("serial read timeout must be positive, got %s", c.Serial.ReadTimeout)
	}
	if c.Detector.CPMToUSVH <= 0 {
		return fmt.Errorf("cpm_to_usvh conversion factor must be positive, got %g", c.Detector.CPMToUSVH)
	}
	if c.Detector.WindowSize < 1 {
		return fmt.Errorf("window_size must be at least 1, got %d", c.Detector.WindowSize)
	}
	if c.Detector.MaxCPM < 0 {
		return fmt.Errorf("max_cpm must not be negative, got %d", c.Detector.MaxCPM)
	}
	if c.Detector.MaxCPMJump <= 0 {
		return fmt.Errorf("max_cpm_jump must be positive, got %g", c.Detector.MaxCPMJump)
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker must not be empty")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "/dev/ttyUSB1")
	v.SetDefault("serial.baud_rate", 115200)
	v.SetDefault("serial.read_timeout", "1s")

	// GQ calibration constant for the SBM-20 tube
	v.SetDefault("detector.cpm_to_usvh", 153.0)
	v.SetDefault("detector.window_size", 10)
	v.SetDefault("detector.max_cpm", 100000)
	v.SetDefault("detector.max_cpm_jump", 5.0)

	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "geiger-detector")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_cpm", "geiger/cpm")
	v.SetDefault("mqtt.topic_dose_rate", "geiger/usvh")
	v.SetDefault("mqtt.topic_speaker_state", "geiger/speaker/state")
	v.SetDefault("mqtt.topic_speaker_set", "geiger/speaker/set")

	v.SetDefault("discovery.prefix", "homeassistant")
	v.SetDefault("discovery.device_id", "geiger-detector")
	v.SetDefault("discovery.device_name", "Geiger Detector")
	v.SetDefault("discovery.device_manufacturer", "GQ Electronics")
	v.SetDefault("discovery.device_model", "GMC")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.listen_addr", "")
}

// bindEnvAliases maps the short environment variable names used by existing
// deployments onto their config keys, in addition to the automatic
// SECTION_KEY form.
func bindEnvAliases(v *viper.Viper) {
	aliases := map[string]string{
		"serial.port":                   "SERIAL_PORT",
		"serial.baud_rate":              "SERIAL_BAUDRATE",
		"detector.cpm_to_usvh":          "CPM_TO_USVH",
		"detector.window_size":          "WINDOW_SIZE",
		"detector.max_cpm":              "MAX_CPM",
		"detector.max_cpm_jump":         "MAX_CPM_JUMP",
		"mqtt.broker":                   "MQTT_BROKER",
		"mqtt.client_id":                "MQTT_CLIENT_ID",
		"mqtt.username":                 "MQTT_USER",
		"mqtt.password":                 "MQTT_PASSWORD",
		"discovery.prefix":              "HA_DISCOVERY_PREFIX",
		"discovery.device_id":           "DEVICE_ID",
		"discovery.device_name":         "DEVICE_NAME",
		"discovery.device_manufacturer": "DEVICE_MANUFACTURER",
		"discovery.device_model":        "DEVICE_MODEL",
	}
	for key, env := range aliases {
		_ = v.BindEnv(key, env)
	}
}
