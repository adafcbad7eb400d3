package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/radwatch/gmcbridge/internal/bridge"
	"github.com/radwatch/gmcbridge/internal/config"
	"github.com/radwatch/gmcbridge/internal/detector"
	"github.com/radwatch/gmcbridge/internal/discovery"
	"github.com/radwatch/gmcbridge/internal/gmc"
	"github.com/radwatch/gmcbridge/internal/metrics"
	"github.com/radwatch/gmcbridge/internal/mqtt"
	"github.com/radwatch/gmcbridge/internal/scheduler"
)

// Command gmcbridge bridges a serial-connected GQ GMC Geiger counter to an
// MQTT broker.
//
// The service:
//   - Polls the detector once per second for a CPM reading
//   - Validates readings against absolute and rate-of-change bounds
//   - Maintains rolling min/avg/max windows for CPM and µSv/h
//   - Publishes one aggregate payload per topic per accepted reading
//   - Registers the detector with Home Assistant via MQTT discovery
//
// Usage:
//
//	gmcbridge [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (default "config.yaml")
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Load configuration; a bad numeric option must refuse to start.
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	logger := setupLogger(cfg.Logging)

	logger.WithFields(logrus.Fields{
		"port":   cfg.Serial.Port,
		"broker": cfg.MQTT.Broker,
	}).Info("Starting gmcbridge")

	// Open the detector; startup transport failure is fatal.
	device, err := gmc.Open(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.ReadTimeout)
	if err != nil {
		logger.Fatalf("Failed to open detector: %v", err)
	}

	if err := device.DisableHeartbeat(); err != nil {
		logger.Fatalf("Failed to disable device heartbeat: %v", err)
	}
	logDeviceInfo(device, logger)

	// Connect to the broker; startup broker failure is fatal.
	client, err := mqtt.NewClient(mqtt.ClientConfig{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to MQTT broker: %v", err)
	}
	publisher := mqtt.NewPublisher(client, logger)

	// One-time discovery emission so the home-automation platform
	// registers the sensors before telemetry starts flowing.
	discoveryOpts := discovery.Options{
		Prefix: cfg.Discovery.Prefix,
		Device: cfg.DeviceInfo(),

		TopicCPM:          cfg.MQTT.TopicCPM,
		TopicDoseRate:     cfg.MQTT.TopicDoseRate,
		TopicSpeakerState: cfg.MQTT.TopicSpeakerState,
		TopicSpeakerSet:   cfg.MQTT.TopicSpeakerSet,
	}
	if err := discovery.Publish(publisher, discoveryOpts); err != nil {
		logger.Fatalf("Failed to publish discovery configs: %v", err)
	}

	speaker := mqtt.NewSpeakerHandler(client, publisher, device, cfg.MQTT.TopicSpeakerState, logger)
	if err := speaker.Subscribe(cfg.MQTT.TopicSpeakerSet); err != nil {
		logger.Fatalf("Failed to subscribe to speaker commands: %v", err)
	}
	if err := speaker.InitializeState(false); err != nil {
		logger.Fatalf("Failed to publish initial speaker state: %v", err)
	}

	// Initialize detector state and the cycle driver
	state, err := detector.NewState(
		cfg.Detector.WindowSize,
		cfg.Detector.MaxCPM,
		cfg.Detector.MaxCPMJump,
		cfg.Detector.CPMToUSVH,
	)
	if err != nil {
		logger.Fatalf("Failed to initialize detector state: %v", err)
	}

	m := metrics.New()
	topics := bridge.Topics{
		CPM:      cfg.MQTT.TopicCPM,
		DoseRate: cfg.MQTT.TopicDoseRate,
	}
	b := bridge.New(device, publisher, state, topics, logger, m)

	// Create a context that will be canceled on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)

	if cfg.Metrics.ListenAddr != "" {
		go func() {
			logger.WithField("addr", cfg.Metrics.ListenAddr).Info("Serving metrics")
			if err := m.Serve(cfg.Metrics.ListenAddr); err != nil {
				errChan <- err
			}
		}()
	}

	sched := scheduler.NewScheduler(ctx, b, logger)
	if err := sched.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}
	logger.Info("Publish cycle running")

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Printf("Received signal %v, initiating shutdown", sig)
	case err := <-errChan:
		logger.Errorf("Service error: %v", err)
	}

	sched.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Failed to stop metrics listener: %v", err)
	}

	client.Close()
	if err := device.Close(); err != nil {
		logger.Warnf("Failed to close serial port: %v", err)
	}
	logger.Info("Shutdown complete")
}

// setupLogger builds the process logger from the logging config. Unknown
// levels keep the logrus default rather than failing startup.
func setupLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

// logDeviceInfo probes the detector's identity at startup. Failures are
// logged and ignored: not every firmware answers every query.
func logDeviceInfo(device *gmc.Device, logger *logrus.Logger) {
	if version, err := device.Version(); err == nil {
		logger.WithField("version", version).Info("Detector firmware")
	} else {
		logger.WithError(err).Debug("Version query failed")
	}

	if voltage, err := device.Voltage(); err == nil {
		logger.WithField("voltage", voltage).Info("Detector battery")
	} else {
		logger.WithError(err).Debug("Voltage query failed")
	}

	if serialNum, err := device.SerialNumber(); err == nil {
		logger.WithField("serial", serialNum).Info("Detector serial number")
	} else {
		logger.WithError(err).Debug("Serial number query failed")
	}

	if deviceTime, err := device.DateTime(); err == nil {
		logger.WithField("device_time", deviceTime.Format("2006-01-02 15:04:05")).Info("Detector clock")
	} else {
		logger.WithError(err).Debug("Clock query failed")
	}
}
