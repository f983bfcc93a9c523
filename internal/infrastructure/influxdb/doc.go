// Package influxdb records registration outcomes as time-series location
// points, wrapping the InfluxDB v2 Go client.
//
// Each successful reconciliation produces one point in the
// device_location measurement, tagged by device, space and outcome, so
// a device's movement can be graphed without replaying the relational
// version history. Writes are batched and asynchronous; failures are
// reported through the SetOnError callback and never block or fail a
// registration.
//
// The Client satisfies registry.Recorder and is wired into the
// reconciler when the integration is enabled in config.
package influxdb
