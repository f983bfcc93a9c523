package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crowdsense/sensorcloud-core/internal/infrastructure/mqtt"
	"github.com/crowdsense/sensorcloud-core/internal/registry"
)

// defaultReconcileTimeout bounds one reconciliation when no timeout is configured.
const defaultReconcileTimeout = 10 * time.Second

// reportQoS is the subscription QoS for report topics. At-least-once is
// safe because reconciliation is idempotent for unchanged reports.
const reportQoS = 1

// Broker is the narrow slice of the MQTT client the ingestor needs.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	PublishJSON(topic string, payload []byte) error
}

// Reconciler is the registration decision procedure the ingestor feeds.
type Reconciler interface {
	Reconcile(ctx context.Context, report registry.Report) (registry.Outcome, error)
}

// Logger defines the logging interface used by the Ingestor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result is the outcome message published to the device's result topic.
//
// ID is a per-report correlation identifier so a device awaiting its
// result can match it to the report it sent. Exactly one of Message or
// Errors is populated depending on Status.
type Result struct {
	ID      string              `json:"id"`
	Device  string              `json:"device,omitempty"`
	Status  string              `json:"status"`
	Message string              `json:"message,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// Ingestor consumes device registration reports from the broker and runs
// them through the same validation and reconciliation as the HTTP path.
//
// Reports arrive on sensorcloud/report/{device}; the result of each is
// published to sensorcloud/report/{device}/result. Malformed JSON and
// validation failures are reported back as error results; only broker
// failures are terminal.
type Ingestor struct {
	broker     Broker
	reconciler Reconciler
	maxCount   int
	timeout    time.Duration
	logger     Logger
}

// New creates an ingestor over the given broker and reconciler.
func New(broker Broker, reconciler Reconciler) *Ingestor {
	return &Ingestor{
		broker:     broker,
		reconciler: reconciler,
		maxCount:   registry.MaxCount,
		timeout:    defaultReconcileTimeout,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the ingestor.
func (i *Ingestor) SetLogger(logger Logger) {
	i.logger = logger
}

// SetMaxCount overrides the count ceiling applied during validation.
func (i *Ingestor) SetMaxCount(n int) {
	if n > 0 {
		i.maxCount = n
	}
}

// SetReconcileTimeout overrides the per-report reconciliation timeout.
func (i *Ingestor) SetReconcileTimeout(d time.Duration) {
	if d > 0 {
		i.timeout = d
	}
}

// Start subscribes to the report topic pattern. Message handling runs on
// the broker client's goroutines from here on.
func (i *Ingestor) Start() error {
	if err := i.broker.Subscribe(mqtt.Topics{}.AllReports(), reportQoS, i.handleReport); err != nil {
		return fmt.Errorf("subscribing to reports: %w", err)
	}
	i.logger.Info("report ingest started", "topic", mqtt.Topics{}.AllReports())
	return nil
}

// handleReport processes one report message end to end.
func (i *Ingestor) handleReport(topic string, payload []byte) error {
	device, ok := mqtt.DeviceFromReportTopic(topic)
	if !ok {
		// Result sub-topics match the wildcard too; ignore them.
		return nil
	}

	id := uuid.NewString()

	var report registry.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		i.logger.Warn("malformed report payload", "device", device, "id", id, "error", err)
		return i.publishResult(device, Result{
			ID:     id,
			Device: device,
			Status: "error",
			Errors: map[string][]string{"body": {"malformed JSON payload"}},
		})
	}

	// The topic names the device; the body may omit it.
	if report.DeviceID() == "" {
		report.Device = device
	}

	if err := registry.ValidateReport(report, i.maxCount); err != nil {
		return i.publishResult(device, i.validationResult(id, device, err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	outcome, err := i.reconciler.Reconcile(ctx, report)
	if err != nil {
		return i.publishResult(device, i.reconcileResult(id, device, err))
	}

	message := "device registered"
	if outcome.Kind == registry.OutcomeUpdated {
		message = "device updated"
	}
	i.logger.Info("report reconciled", "device", device, "id", id, "outcome", string(outcome.Kind))

	return i.publishResult(device, Result{
		ID:      id,
		Device:  device,
		Status:  "success",
		Message: message,
	})
}

// validationResult maps a validation error to a result message.
func (i *Ingestor) validationResult(id, device string, err error) Result {
	var fieldErrs registry.FieldErrors
	if errors.As(err, &fieldErrs) {
		return Result{
			ID:     id,
			Device: device,
			Status: "error",
			Errors: fieldErrs,
		}
	}
	return Result{
		ID:     id,
		Device: device,
		Status: "error",
		Errors: map[string][]string{"count": {err.Error()}},
	}
}

// reconcileResult maps a reconciliation error to a result message.
// Storage failures are additionally logged; the device cannot act on them.
func (i *Ingestor) reconcileResult(id, device string, err error) Result {
	if errors.Is(err, registry.ErrPinMismatch) {
		return Result{
			ID:      id,
			Device:  device,
			Status:  "error",
			Message: "pin does not match registered device",
		}
	}

	i.logger.Error("reconciliation failed", "device", device, "id", id, "error", err)
	return Result{
		ID:      id,
		Device:  device,
		Status:  "error",
		Message: "registration failed",
	}
}

// publishResult sends a result to the device's result topic.
func (i *Ingestor) publishResult(device string, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	topic := mqtt.Topics{}.ReportResult(device)
	if err := i.broker.PublishJSON(topic, payload); err != nil {
		return fmt.Errorf("publishing result: %w", err)
	}
	return nil
}
