// Package api implements the HTTP REST API and WebSocket server of the bridge.
//
// It stands in for the home-automation hub: the hub reads and writes
// accessory properties over HTTP and receives accepted value changes over
// a WebSocket.
//
// This package provides:
//   - Accessory listing, property reads and writes
//   - Value history from the SQLite audit trail
//   - WebSocket hub pushing accessory.value_changed events
//   - Health and Prometheus endpoints
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Routes
//
//	GET /api/v1/health
//	GET /api/v1/accessories
//	GET /api/v1/accessories/{id}
//	GET /api/v1/accessories/{id}/history?kind=&limit=
//	GET /api/v1/accessories/{id}/{kind}
//	PUT /api/v1/accessories/{id}/{kind}   {"value": N}
//	GET /api/v1/ws
//	GET /metrics
//
// WebSocket clients send {"type":"subscribe","payload":{"channels":[...],
// "accessories":[...]}} to receive value changes, optionally for some
// accessories only, and {"type":"snapshot"} for the cached values.
//
// A read of a property whose last write went unconfirmed queries the
// device; if it does not answer in time the response is 503 with code
// "unavailable".
//
// Lifecycle:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
