// Package influxdb exports accepted accessory values to InfluxDB v2.
//
// Every value the bridge pushes to the hub is also written as a point in the
// accessory_values measurement, so brightness, colour and power history can
// be graphed next to other home telemetry.
//
// # Architecture
//
// Client implements accessory.Notifier. Writes go through the library's
// non-blocking WriteAPI, which batches points and flushes on size or
// interval; the router's dispatch goroutine never waits on the network.
//
// # Configuration
//
//	influxdb:
//	  enabled: true
//	  url: "http://localhost:8086"
//	  token: ""          # ZBBRIDGE_INFLUXDB_TOKEN
//	  org: "home"
//	  bucket: "zbbridge"
//	  batch_size: 100
//	  flush_interval: 10 # seconds
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // export switched off
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { log.Warn("influx write failed", "error", err) })
package influxdb
