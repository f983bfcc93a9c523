package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/crowdsense/sensorcloud-core/internal/registry"
)

// WriteRegistration records a registration outcome as a location point.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Tags are kept low-cardinality (device, space, outcome); the position
// and version go into fields. The point is timestamped with the record's
// Modified time so replayed or delayed reports land at the right spot in
// the series.
func (c *Client) WriteRegistration(rec registry.DeviceRecord, kind registry.OutcomeKind) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_location",
		map[string]string{
			"device":  rec.Device,
			"space":   rec.Space,
			"outcome": string(kind),
		},
		map[string]interface{}{
			"lat":     rec.Lat,
			"long":    rec.Long,
			"version": rec.Version,
		},
		time.UnixMilli(rec.Modified).UTC(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordRegistration implements registry.Recorder.
func (c *Client) RecordRegistration(rec registry.DeviceRecord, kind registry.OutcomeKind) {
	c.WriteRegistration(rec, kind)
}

// WritePoint writes a custom point with full control over tags and fields.
// Use for measurements that don't fit the registration helper.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
