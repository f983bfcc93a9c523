package registry

import (
	"context"
	"errors"
	"time"
)

// defaultConflictRetries is the number of full lookup-decide-write retries
// performed when a conditional write loses a race.
const defaultConflictRetries = 1

// Logger defines the logging interface used by the Reconciler.
// This allows different logging implementations to be used.
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

// Recorder receives successful registration outcomes for history recording.
// Implementations must not block; failures are the recorder's own concern
// and never affect the reconciliation result.
type Recorder interface {
	RecordRegistration(rec DeviceRecord, kind OutcomeKind)
}

// Reconciler decides, for each inbound report, whether to create a new
// device record, reject the report on a pin mismatch, update the latest
// version in place, or insert a new version.
//
// Reconciliation is stateless between invocations: the store is the only
// shared resource, and concurrent reconciliations (possibly in different
// processes) synchronise exclusively through the store's conditional
// writes. When a write loses a race the whole lookup-decide-write
// sequence is retried a bounded number of times.
//
// Per attempt the reconciler performs exactly one store read and at most
// one store write.
type Reconciler struct {
	store    Store
	clock    func() time.Time
	retries  int
	logger   Logger
	recorder Recorder
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{
		store:   store,
		clock:   time.Now,
		retries: defaultConflictRetries,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the reconciler.
func (r *Reconciler) SetLogger(logger Logger) {
	r.logger = logger
}

// SetRecorder sets an optional recorder notified of each successful outcome.
func (r *Reconciler) SetRecorder(recorder Recorder) {
	r.recorder = recorder
}

// SetConflictRetries overrides the number of retries on version conflict.
// Negative values are treated as zero.
func (r *Reconciler) SetConflictRetries(n int) {
	if n < 0 {
		n = 0
	}
	r.retries = n
}

// SetClock overrides the time source. Intended for tests.
func (r *Reconciler) SetClock(clock func() time.Time) {
	r.clock = clock
}

// Reconcile applies a validated report against the store and returns the
// registration outcome.
//
// Returned errors:
//   - ErrPinMismatch: the report's pin does not match the stored pin;
//     nothing was written.
//   - *StorageError: a store lookup or write failed, or every retry of a
//     conditional write lost its race (cause ErrVersionConflict).
//
// The caller is expected to bound the invocation with a context timeout;
// a deadline expiry inside a store call surfaces as a StorageError.
func (r *Reconciler) Reconcile(ctx context.Context, report Report) (Outcome, error) {
	var lastConflict error

	for attempt := 0; attempt <= r.retries; attempt++ {
		outcome, err := r.reconcileOnce(ctx, report)
		if err == nil {
			if r.recorder != nil {
				r.recorder.RecordRegistration(outcome.Record, outcome.Kind)
			}
			return outcome, nil
		}

		if errors.Is(err, ErrVersionConflict) {
			lastConflict = err
			r.logger.Debug("reconcile lost write race, retrying",
				"device", report.DeviceID(),
				"attempt", attempt+1,
			)
			continue
		}

		return Outcome{}, err
	}

	r.logger.Warn("reconcile exhausted conflict retries", "device", report.DeviceID())
	return Outcome{}, &StorageError{Op: "write", Err: lastConflict}
}

// reconcileOnce runs a single lookup-decide-write pass.
// ErrVersionConflict from either write path is returned unwrapped so the
// retry loop in Reconcile can recognise it.
func (r *Reconciler) reconcileOnce(ctx context.Context, report Report) (Outcome, error) {
	device := report.DeviceID()

	existing, err := r.store.LatestVersion(ctx, device)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return Outcome{}, &StorageError{Op: "lookup", Err: err}
	}

	now := r.clock().UTC().UnixMilli()

	// No prior registration: insert the first version.
	if existing == nil {
		rec := recordFromReport(report, now, now)
		if err := r.store.Insert(ctx, &rec); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				return Outcome{}, err
			}
			return Outcome{}, &StorageError{Op: "insert", Err: err}
		}
		r.logger.Info("device registered", "device", device, "version", rec.Version)
		return Outcome{Kind: OutcomeCreated, Record: rec}, nil
	}

	// Only the holder of the current pin may mutate or supersede the entry.
	if existing.Pin != string(report.Pin) {
		return Outcome{}, ErrPinMismatch
	}

	// Position and space unchanged: refresh the latest version in place.
	// The version is not changed; pin rotation happens here.
	if existing.Lat == *report.Lat && existing.Long == *report.Long && existing.Space == report.SpaceOrDefault() {
		fields := FieldUpdate{
			Pin:      report.EffectivePin(),
			Address:  report.AddressOrDefault(),
			Manager:  report.ManagerOrDefault(),
			Modified: now,
		}
		if err := r.store.UpdateFields(ctx, device, existing.Version, fields); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				return Outcome{}, err
			}
			return Outcome{}, &StorageError{Op: "update", Err: err}
		}

		rec := *existing
		rec.Pin = fields.Pin
		rec.Address = fields.Address
		rec.Manager = fields.Manager
		rec.Modified = fields.Modified
		r.logger.Info("device refreshed", "device", device, "version", rec.Version)
		return Outcome{Kind: OutcomeUpdated, Record: rec}, nil
	}

	// Position or space changed: insert a new version, leaving the prior
	// one as immutable history. Versions must stay strictly monotonic even
	// when the clock has not advanced past the latest version.
	version := now
	if version <= existing.Version {
		version = existing.Version + 1
	}
	rec := recordFromReport(report, version, now)
	if err := r.store.Insert(ctx, &rec); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return Outcome{}, err
		}
		return Outcome{}, &StorageError{Op: "insert", Err: err}
	}
	r.logger.Info("device relocated", "device", device, "version", rec.Version, "previous", existing.Version)
	return Outcome{Kind: OutcomeCreated, Record: rec}, nil
}

// recordFromReport builds the record a report registers, with defaults applied.
func recordFromReport(report Report, version, modified int64) DeviceRecord {
	return DeviceRecord{
		Device:   report.DeviceID(),
		Version:  version,
		Lat:      *report.Lat,
		Long:     *report.Long,
		Pin:      report.EffectivePin(),
		Address:  report.AddressOrDefault(),
		Manager:  report.ManagerOrDefault(),
		Space:    report.SpaceOrDefault(),
		Modified: modified,
	}
}
