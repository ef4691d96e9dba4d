// Package router multiplexes one broker connection across many logical
// subscribers and correlates requests with their responses.
//
// # Dispatch model
//
// The broker client hands every inbound message to Deliver, which only
// enqueues it. A single goroutine running Run dispatches messages in arrival
// order and runs each handler to completion before the next message. Handlers
// may call Publish, Subscribe and Unsubscribe synchronously. Handlers must
// not call Request: the response would queue behind the handler waiting for it.
//
// # Topic patterns
//
// A pattern holds at most one wildcard marker ('+' or '#'). A pattern without
// a marker matches its exact topic. A pattern with a marker matches any topic
// that contains the literal prefix before the marker. This is prefix
// containment, not MQTT segment matching: "tele/+/SENSOR" matches
// "tele/bridge/STATE" as well. Existing device configurations depend on it,
// so MatchTopic keeps it.
//
// # Reference counting
//
// The broker sees one subscription per distinct pattern. It is issued when
// the first handler for a pattern registers and withdrawn when the last one
// goes.
//
// # Device routing
//
// ListenDevices subscribes to a Zigbee bridge's telemetry and routes each
// SENSOR payload to the DeviceRoutes whose address matches the device object
// found inside it. Devices are matched on their permanent address first and
// on the short network address learned from earlier messages second.
package router
