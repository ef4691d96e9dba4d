package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/accessory"
)

// MeasurementAccessoryValues holds one point per accepted property value.
const MeasurementAccessoryValues = "accessory_values"

// WriteValue records an accepted property value.
//
// The point is tagged with accessory_id, kind and source and carries the
// value as an integer field. The change time is used when set.
//
//	accessory_values,accessory_id=kitchen,kind=brightness,source=telemetry value=80i
func (c *Client) WriteValue(change accessory.Change) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(valuePoint(change))
}

// ValueChanged implements accessory.Notifier.
func (c *Client) ValueChanged(change accessory.Change) {
	c.WriteValue(change)
}

func valuePoint(change accessory.Change) *write.Point {
	at := change.At
	if at.IsZero() {
		at = time.Now()
	}
	source := change.Source
	if source == "" {
		source = accessory.SourceTelemetry
	}

	return write.NewPoint(
		MeasurementAccessoryValues,
		map[string]string{
			"accessory_id": change.AccessoryID,
			"kind":         string(change.Kind),
			"source":       source,
		},
		map[string]interface{}{
			"value": int64(change.Value),
		},
		at,
	)
}
