package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// FieldUpdate carries the fields an in-place update is allowed to touch.
// The key (device, version) and the positional fields (lat/long/space) are
// deliberately absent: a position or space change is a new version, never
// a mutation.
type FieldUpdate struct {
	Pin      string
	Address  string
	Manager  string
	Modified int64
}

// Store defines the interface for versioned device record persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Store interface {
	// LatestVersion retrieves the highest-version record for a device.
	// It must be a sort-order query (descending by version, limit 1),
	// never a scan of the device's full history.
	// Returns ErrRecordNotFound if the device has never registered.
	LatestVersion(ctx context.Context, device string) (*DeviceRecord, error)

	// GetVersion retrieves one specific version of a device's record.
	// Returns ErrRecordNotFound if that version does not exist.
	GetVersion(ctx context.Context, device string, version int64) (*DeviceRecord, error)

	// Insert stores a new record version.
	// Returns ErrVersionConflict if (device, version) already exists.
	Insert(ctx context.Context, rec *DeviceRecord) error

	// UpdateFields updates only pin, address, manager and modified on an
	// existing version. The write is conditional on the version still
	// existing; returns ErrVersionConflict if it does not.
	UpdateFields(ctx context.Context, device string, version int64, fields FieldUpdate) error
}

// SQLiteStore implements Store using SQLite.
//
// Records live in the device_records table keyed by (device, version).
// Both Insert and UpdateFields are conditional writes: Insert fails on a
// duplicate key and UpdateFields on a vanished predicate row, which is how
// the reconciler detects lost read-then-write races without any in-process
// locking.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
// The db parameter should be an open SQLite connection.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// LatestVersion retrieves the highest-version record for a device.
func (s *SQLiteStore) LatestVersion(ctx context.Context, device string) (*DeviceRecord, error) {
	query := `
		SELECT device, version, lat, long, pin, address, manager, space, modified
		FROM device_records
		WHERE device = ?
		ORDER BY version DESC
		LIMIT 1`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, device))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying latest version: %w", err)
	}
	return rec, nil
}

// GetVersion retrieves one specific version of a device's record.
func (s *SQLiteStore) GetVersion(ctx context.Context, device string, version int64) (*DeviceRecord, error) {
	query := `
		SELECT device, version, lat, long, pin, address, manager, space, modified
		FROM device_records
		WHERE device = ? AND version = ?`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, device, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying version: %w", err)
	}
	return rec, nil
}

// History retrieves all versions of a device, newest first.
// Not part of the Store contract; used by tooling and tests to inspect
// the immutable version history.
func (s *SQLiteStore) History(ctx context.Context, device string) ([]DeviceRecord, error) {
	query := `
		SELECT device, version, lat, long, pin, address, manager, space, modified
		FROM device_records
		WHERE device = ?
		ORDER BY version DESC`

	rows, err := s.db.QueryContext(ctx, query, device)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var records []DeviceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return records, nil
}

// Insert stores a new record version.
func (s *SQLiteStore) Insert(ctx context.Context, rec *DeviceRecord) error {
	query := `
		INSERT INTO device_records (device, version, lat, long, pin, address, manager, space, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.Device,
		rec.Version,
		rec.Lat,
		rec.Long,
		rec.Pin,
		rec.Address,
		rec.Manager,
		rec.Space,
		rec.Modified,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: version %d already exists for %s", ErrVersionConflict, rec.Version, rec.Device)
		}
		return fmt.Errorf("inserting record: %w", err)
	}

	return nil
}

// UpdateFields updates only the mutable fields of an existing version.
// The version predicate makes this a compare-and-swap: if the row was
// superseded or removed between lookup and write, zero rows match and
// ErrVersionConflict is returned.
func (s *SQLiteStore) UpdateFields(ctx context.Context, device string, version int64, fields FieldUpdate) error {
	query := `
		UPDATE device_records
		SET pin = ?, address = ?, manager = ?, modified = ?
		WHERE device = ? AND version = ?`

	result, err := s.db.ExecContext(ctx, query,
		fields.Pin,
		fields.Address,
		fields.Manager,
		fields.Modified,
		device,
		version,
	)
	if err != nil {
		return fmt.Errorf("updating record fields: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: version %d no longer present for %s", ErrVersionConflict, version, device)
	}

	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans a row or rows result into a DeviceRecord.
func scanRecord(scanner rowScanner) (*DeviceRecord, error) {
	var rec DeviceRecord
	err := scanner.Scan(
		&rec.Device,
		&rec.Version,
		&rec.Lat,
		&rec.Long,
		&rec.Pin,
		&rec.Address,
		&rec.Manager,
		&rec.Space,
		&rec.Modified,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
