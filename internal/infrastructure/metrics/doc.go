// Package metrics exposes bridge activity as Prometheus metrics.
//
// A Collector owns its own prometheus.Registry with the Go runtime and
// process collectors plus the bridge metrics below. It plugs into the rest
// of the bridge through the narrow interfaces those packages declare:
//
//   - router.Metrics: dispatched and dropped messages, request latency
//   - accessory.Observer: reconciliation outcomes per property
//   - accessory.Notifier: last accepted value per property
//
// Connection state of the broker is set by the caller from the MQTT
// client's connect/disconnect callbacks.
//
// The registry is served by Handler, mounted by the API at metrics.path
// (default /metrics).
package metrics
