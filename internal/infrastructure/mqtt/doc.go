// Package mqtt provides the MQTT transport for SensorCloud's report
// ingest path, wrapping paho.mqtt.golang.
//
// Devices publish registration reports to sensorcloud/report/{device};
// reconciliation outcomes are published back to
// sensorcloud/report/{device}/result. The service announces itself on
// sensorcloud/system/status with a retained online message and a Last
// Will and Testament for crash detection.
//
// The Client handles connection lifecycle, automatic reconnection with
// exponential backoff, and subscription restoration after reconnect.
// Topic construction goes through the Topics helpers so topic naming
// stays consistent across publishers and subscribers.
package mqtt
