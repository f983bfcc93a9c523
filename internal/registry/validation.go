package registry

import (
	"fmt"
)

// MaxCount is the hard ceiling for the count parameter when no configured
// limit is supplied.
const MaxCount = 1000

// ValidateReport checks an inbound report before reconciliation runs.
//
// Required fields (device or name, lat, long, pin) are checked together:
// every violation is accumulated into a single FieldErrors value rather
// than failing on the first, so the reporter can fix all of them in one
// round trip. The sw/ne bounding-box parameters are format-checked when
// both are present.
//
// The count ceiling is checked after field presence, mirroring the wire
// contract: a too-large count is a distinct ErrCountTooLarge, not a field
// violation.
//
// maxCount <= 0 falls back to MaxCount.
func ValidateReport(r Report, maxCount int) error {
	if maxCount <= 0 {
		maxCount = MaxCount
	}

	errs := make(FieldErrors)

	if r.DeviceID() == "" {
		errs.Add("name", "device identifier is required (name or device)")
	}
	if r.Lat == nil {
		errs.Add("lat", "latitude (lat) is required")
	}
	if r.Long == nil {
		errs.Add("long", "longitude (long) is required")
	}
	if r.Pin == "" {
		errs.Add("pin", "pin code (pin) is required")
	}

	if r.SW != "" && r.NE != "" {
		if _, err := ParseBounds(r.SW, r.NE); err != nil {
			errs.Add("bounds", fmt.Sprintf("invalid bounding box: %v", err))
		}
	}

	if len(errs) > 0 {
		return errs
	}

	if r.CountOrDefault() > maxCount {
		return fmt.Errorf("%w: %d exceeds maximum %d", ErrCountTooLarge, r.CountOrDefault(), maxCount)
	}

	return nil
}
