// Package gmcbridge bridges a GQ GMC Geiger counter on a serial port to an
// MQTT broker, with Home Assistant auto-discovery.
//
// # Architecture
//
// The service is structured into several key packages:
//   - gmc: serial transport and RFC1801 device protocol
//   - detector: reading validation, dose conversion and rolling windows
//   - bridge: the per-second poll/validate/aggregate/publish cycle
//   - scheduler: cycle scheduling at a fixed one-second cadence
//   - mqtt: broker client, telemetry publisher, speaker command handler
//   - discovery: Home Assistant discovery payloads
//   - config: configuration loading and validation
//   - metrics: Prometheus instrumentation
//
// Key Behaviors
//
//   - Validation:
//     Readings outside [0, MAX_CPM] or spiking above the last accepted
//     reading times MAX_CPM_JUMP are discarded. Rejected readings never
//     touch the rolling windows and never produce a publish.
//
//   - Aggregation:
//     Two fixed-size windows (CPM and µSv/h) hold the most recent
//     accepted samples; each publish carries value/min/avg/max.
//
//   - Delivery:
//     Telemetry is a live feed. Payloads that cannot be delivered while
//     the broker is down are dropped, not queued.
//
// For more information about specific packages, see their respective
// documentation.
package gmcbridge
