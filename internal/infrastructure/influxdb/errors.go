package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// Callers treat it as "export off", not as a failure.
	ErrDisabled = errors.New("influxdb: value export disabled")

	// ErrConnectionFailed means the server did not answer the startup ping.
	ErrConnectionFailed = errors.New("influxdb: server unreachable")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: client closed")
)
