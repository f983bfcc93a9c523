package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/crowdsense/sensorcloud-core/internal/infrastructure/mqtt"
	"github.com/crowdsense/sensorcloud-core/internal/registry"
)

// fakeBroker records subscriptions and published messages.
type fakeBroker struct {
	subscribed map[string]mqtt.MessageHandler
	published  []publishedMessage
}

type publishedMessage struct {
	topic   string
	payload []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subscribed: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.subscribed[topic] = handler
	return nil
}

func (b *fakeBroker) PublishJSON(topic string, payload []byte) error {
	b.published = append(b.published, publishedMessage{topic: topic, payload: payload})
	return nil
}

// deliver simulates a broker message arriving on a topic.
func (b *fakeBroker) deliver(t *testing.T, topic string, payload string) {
	t.Helper()
	handler, ok := b.subscribed[mqtt.Topics{}.AllReports()]
	if !ok {
		t.Fatal("ingestor has no report subscription")
	}
	if err := handler(topic, []byte(payload)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
}

// lastResult decodes the most recently published result message.
func (b *fakeBroker) lastResult(t *testing.T) (string, Result) {
	t.Helper()
	if len(b.published) == 0 {
		t.Fatal("no result published")
	}
	msg := b.published[len(b.published)-1]
	var result Result
	if err := json.Unmarshal(msg.payload, &result); err != nil {
		t.Fatalf("unmarshaling result: %v", err)
	}
	return msg.topic, result
}

// fixedReconciler returns a canned outcome or error.
type fixedReconciler struct {
	outcome registry.Outcome
	err     error

	lastReport registry.Report
	calls      int
}

func (r *fixedReconciler) Reconcile(_ context.Context, report registry.Report) (registry.Outcome, error) {
	r.calls++
	r.lastReport = report
	return r.outcome, r.err
}

func setupIngestor(t *testing.T, rec Reconciler) (*Ingestor, *fakeBroker) {
	t.Helper()
	broker := newFakeBroker()
	ing := New(broker, rec)
	if err := ing.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return ing, broker
}

func TestIngestor_SuccessfulReport(t *testing.T) {
	rec := &fixedReconciler{outcome: registry.Outcome{Kind: registry.OutcomeCreated}}
	_, broker := setupIngestor(t, rec)

	broker.deliver(t, "sensorcloud/report/sensor-001",
		`{"lat": 37.5665, "long": 126.978, "pin": "4321"}`)

	topic, result := broker.lastResult(t)
	if topic != "sensorcloud/report/sensor-001/result" {
		t.Errorf("topic = %q, want result topic", topic)
	}
	if result.Status != "success" {
		t.Errorf("Status = %q, want %q", result.Status, "success")
	}
	if result.ID == "" {
		t.Error("result missing correlation ID")
	}
	if result.Message != "device registered" {
		t.Errorf("Message = %q, want %q", result.Message, "device registered")
	}

	// Device identity filled from topic when the body omits it.
	if rec.lastReport.DeviceID() != "sensor-001" {
		t.Errorf("DeviceID = %q, want %q", rec.lastReport.DeviceID(), "sensor-001")
	}
}

func TestIngestor_UpdatedOutcomeMessage(t *testing.T) {
	rec := &fixedReconciler{outcome: registry.Outcome{Kind: registry.OutcomeUpdated}}
	_, broker := setupIngestor(t, rec)

	broker.deliver(t, "sensorcloud/report/sensor-001",
		`{"lat": 37.5665, "long": 126.978, "pin": "4321"}`)

	_, result := broker.lastResult(t)
	if result.Message != "device updated" {
		t.Errorf("Message = %q, want %q", result.Message, "device updated")
	}
}

func TestIngestor_MalformedPayload(t *testing.T) {
	rec := &fixedReconciler{}
	_, broker := setupIngestor(t, rec)

	broker.deliver(t, "sensorcloud/report/sensor-001", `{not json`)

	_, result := broker.lastResult(t)
	if result.Status != "error" {
		t.Errorf("Status = %q, want %q", result.Status, "error")
	}
	if _, ok := result.Errors["body"]; !ok {
		t.Errorf("Errors = %v, want body violation", result.Errors)
	}
	if rec.calls != 0 {
		t.Errorf("reconciler called %d times, want 0", rec.calls)
	}
}

func TestIngestor_ValidationFailure(t *testing.T) {
	rec := &fixedReconciler{}
	_, broker := setupIngestor(t, rec)

	// Missing lat, long and pin; device comes from the topic.
	broker.deliver(t, "sensorcloud/report/sensor-001", `{}`)

	_, result := broker.lastResult(t)
	if result.Status != "error" {
		t.Errorf("Status = %q, want %q", result.Status, "error")
	}
	for _, field := range []string{"lat", "long", "pin"} {
		if _, ok := result.Errors[field]; !ok {
			t.Errorf("Errors missing %q: %v", field, result.Errors)
		}
	}
	if rec.calls != 0 {
		t.Errorf("reconciler called %d times, want 0", rec.calls)
	}
}

func TestIngestor_CountTooLarge(t *testing.T) {
	rec := &fixedReconciler{}
	_, broker := setupIngestor(t, rec)

	broker.deliver(t, "sensorcloud/report/sensor-001",
		`{"lat": 37.5665, "long": 126.978, "pin": "4321", "count": 5000}`)

	_, result := broker.lastResult(t)
	if result.Status != "error" {
		t.Errorf("Status = %q, want %q", result.Status, "error")
	}
	msgs, ok := result.Errors["count"]
	if !ok || len(msgs) == 0 || !strings.Contains(msgs[0], "5000") {
		t.Errorf("Errors = %v, want count violation naming 5000", result.Errors)
	}
	if rec.calls != 0 {
		t.Errorf("reconciler called %d times, want 0", rec.calls)
	}
}

func TestIngestor_PinMismatch(t *testing.T) {
	rec := &fixedReconciler{err: registry.ErrPinMismatch}
	_, broker := setupIngestor(t, rec)

	broker.deliver(t, "sensorcloud/report/sensor-001",
		`{"lat": 37.5665, "long": 126.978, "pin": "9999"}`)

	_, result := broker.lastResult(t)
	if result.Status != "error" {
		t.Errorf("Status = %q, want %q", result.Status, "error")
	}
	if !strings.Contains(result.Message, "pin") {
		t.Errorf("Message = %q, want pin mismatch description", result.Message)
	}
}

func TestIngestor_StorageFailure(t *testing.T) {
	rec := &fixedReconciler{err: &registry.StorageError{Op: "lookup", Err: context.DeadlineExceeded}}
	_, broker := setupIngestor(t, rec)

	broker.deliver(t, "sensorcloud/report/sensor-001",
		`{"lat": 37.5665, "long": 126.978, "pin": "4321"}`)

	_, result := broker.lastResult(t)
	if result.Status != "error" {
		t.Errorf("Status = %q, want %q", result.Status, "error")
	}
	// Internal detail must not leak to the device.
	if strings.Contains(result.Message, "deadline") {
		t.Errorf("Message = %q leaks internal error detail", result.Message)
	}
}

func TestIngestor_IgnoresResultTopics(t *testing.T) {
	rec := &fixedReconciler{}
	_, broker := setupIngestor(t, rec)

	handler := broker.subscribed[mqtt.Topics{}.AllReports()]
	if err := handler("sensorcloud/report/sensor-001/result", []byte(`{}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if len(broker.published) != 0 {
		t.Errorf("published %d messages for a result topic, want 0", len(broker.published))
	}
	if rec.calls != 0 {
		t.Errorf("reconciler called %d times, want 0", rec.calls)
	}
}
