// Package registry implements the versioned device-location registry.
//
// Devices report their identity, position and a pin credential. The
// registry keeps one authoritative latest record per device plus an
// immutable history of prior versions, keyed by (device, version) with
// version being the epoch-millisecond timestamp assigned at write time.
//
// The Reconciler is the package's core: for each validated Report it
// looks up the device's latest version and either inserts the first
// record, rejects the report on a pin mismatch, refreshes the mutable
// fields of the latest version in place, or inserts a new version when
// the position or space changed. Write races between concurrent
// reconciliations are resolved through the Store's conditional writes
// and a bounded retry, never through in-process locking.
//
// Storage is abstracted behind the Store interface; SQLiteStore is the
// production implementation.
package registry
