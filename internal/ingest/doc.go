// Package ingest consumes device registration reports from the MQTT
// broker, the field-side alternative to the HTTP register endpoint.
//
// Both transports share the registry package's validator and reconciler;
// this package only adapts broker messages to reports and outcomes to
// result messages. Each report gets a correlation ID so devices can match
// results to reports on the shared result topic pattern.
package ingest
