package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Field defaults applied when a report omits optional metadata.
const (
	// DefaultAddress is stored when a report carries no address.
	DefaultAddress = "-"

	// DefaultManager is stored when a report carries no manager.
	DefaultManager = "-"

	// DefaultSpace is the logical grouping assigned to unzoned devices.
	DefaultSpace = "UNKNOWN"

	// DefaultCount is assumed when a report omits the count parameter.
	DefaultCount = 1000
)

// DeviceRecord is one version of a device's known state.
//
// A device's history is the set of records sharing its identifier; the
// record with the highest Version is the latest. Version and Modified are
// epoch milliseconds. Older versions are immutable history: creating a new
// version never touches them, and an in-place update only ever changes
// Pin, Address, Manager and Modified.
type DeviceRecord struct {
	Device   string  `json:"device"`
	Version  int64   `json:"version"`
	Lat      float64 `json:"lat"`
	Long     float64 `json:"long"`
	Pin      string  `json:"pin"`
	Address  string  `json:"address"`
	Manager  string  `json:"manager"`
	Space    string  `json:"space"`
	Modified int64   `json:"modified"`
}

// PIN is an opaque shared-secret credential authorizing mutation of a
// device's registry entry. Reporters send it as either a JSON string or a
// bare number; both decode to the same canonical string form.
type PIN string

// UnmarshalJSON accepts both string and numeric encodings of a pin.
func (p *PIN) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decoding pin: %w", err)
	}

	switch val := v.(type) {
	case string:
		*p = PIN(val)
	case json.Number:
		*p = PIN(val.String())
	case nil:
		*p = ""
	default:
		return fmt.Errorf("pin must be a string or number, got %T", v)
	}
	return nil
}

// Report is an inbound device registration report.
//
// Lat and Long are pointers so that an absent field can be distinguished
// from a zero coordinate; validation treats only absence as a violation.
// Count, SW and NE belong to a listing capability outside this service's
// scope: they are validated but never consulted by reconciliation.
type Report struct {
	Device  string   `json:"device"`
	Name    string   `json:"name"`
	Lat     *float64 `json:"lat"`
	Long    *float64 `json:"long"`
	Pin     PIN      `json:"pin"`
	NewPin  PIN      `json:"newPin"`
	Address string   `json:"address"`
	Manager string   `json:"manager"`
	Space   string   `json:"space"`
	Count   int      `json:"count"`
	SW      string   `json:"sw"`
	NE      string   `json:"ne"`
}

// DeviceID returns the device identifier, preferring the device field and
// falling back to name.
func (r Report) DeviceID() string {
	if r.Device != "" {
		return r.Device
	}
	return r.Name
}

// EffectivePin returns the pin to store: the rotation pin if supplied,
// otherwise the authorizing pin.
func (r Report) EffectivePin() string {
	if r.NewPin != "" {
		return string(r.NewPin)
	}
	return string(r.Pin)
}

// AddressOrDefault returns the reported address or the default placeholder.
func (r Report) AddressOrDefault() string {
	if r.Address != "" {
		return r.Address
	}
	return DefaultAddress
}

// ManagerOrDefault returns the reported manager or the default placeholder.
func (r Report) ManagerOrDefault() string {
	if r.Manager != "" {
		return r.Manager
	}
	return DefaultManager
}

// SpaceOrDefault returns the reported space or the default grouping.
func (r Report) SpaceOrDefault() string {
	if r.Space != "" {
		return r.Space
	}
	return DefaultSpace
}

// CountOrDefault returns the count parameter, applying the default when absent.
func (r Report) CountOrDefault() int {
	if r.Count == 0 {
		return DefaultCount
	}
	return r.Count
}

// OutcomeKind classifies the result of a successful reconciliation.
type OutcomeKind string

const (
	// OutcomeCreated indicates a record was inserted: either the device's
	// first registration or a new version after a position/space change.
	OutcomeCreated OutcomeKind = "created"

	// OutcomeUpdated indicates the existing latest version was updated
	// in place (pin/address/manager/modified only).
	OutcomeUpdated OutcomeKind = "updated"
)

// Outcome is the result of a successful reconciliation.
type Outcome struct {
	Kind OutcomeKind

	// Record is the device record as written: the inserted record for
	// OutcomeCreated, or the existing version with its refreshed fields
	// for OutcomeUpdated.
	Record DeviceRecord
}

// Bounds is a geographic bounding box parsed from the sw/ne request
// parameters. It is accepted and validated for forward compatibility with
// area queries and is not consulted by reconciliation.
type Bounds struct {
	NELat  float64
	NELong float64
	SWLat  float64
	SWLong float64
}

// ParseBounds parses the sw and ne parameters, each a "lat,long" pair.
func ParseBounds(sw, ne string) (Bounds, error) {
	swLat, swLong, err := parseCoordinatePair(sw)
	if err != nil {
		return Bounds{}, fmt.Errorf("parsing sw: %w", err)
	}
	neLat, neLong, err := parseCoordinatePair(ne)
	if err != nil {
		return Bounds{}, fmt.Errorf("parsing ne: %w", err)
	}
	return Bounds{
		NELat:  neLat,
		NELong: neLong,
		SWLat:  swLat,
		SWLong: swLong,
	}, nil
}

// parseCoordinatePair parses a "lat,long" string into its two coordinates.
func parseCoordinatePair(s string) (lat, long float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected \"lat,long\", got %q", s)
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q", parts[0])
	}
	long, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q", parts[1])
	}
	return lat, long, nil
}
