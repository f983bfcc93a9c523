package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the SensorCloud MQTT namespace.
//
// Report topics use the flat scheme: sensorcloud/report/{device}, with
// per-device results published one level below at .../{device}/result.
const (
	// TopicPrefix is the base for all SensorCloud topics.
	TopicPrefix = "sensorcloud"

	// TopicPrefixReport is the base for device registration reports.
	TopicPrefixReport = "sensorcloud/report"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "sensorcloud/system"
)

// Topics provides builders for SensorCloud MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	topics.Report("sensor-001")       // sensorcloud/report/sensor-001
//	topics.ReportResult("sensor-001") // sensorcloud/report/sensor-001/result
type Topics struct{}

// Report returns the topic a device publishes its registration reports on.
func (Topics) Report(device string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixReport, device)
}

// ReportResult returns the topic registration outcomes are published on.
func (Topics) ReportResult(device string) string {
	return fmt.Sprintf("%s/%s/result", TopicPrefixReport, device)
}

// AllReports returns a pattern matching every device's report topic.
//
// Pattern: sensorcloud/report/+
func (Topics) AllReports() string {
	return TopicPrefixReport + "/+"
}

// SystemStatus returns the service status topic, used for the online
// announcement and the LWT offline message.
//
// Example: sensorcloud/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// DeviceFromReportTopic extracts the device identifier from a report topic.
// Returns false for topics outside the report namespace and for the
// result sub-topics, which share the prefix but carry outcomes, not reports.
func DeviceFromReportTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixReport+"/")
	if !ok || rest == "" {
		return "", false
	}
	if strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
