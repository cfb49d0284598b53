package homepulse

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Domain identifies the kind of entity an identifier belongs to. It is the
// segment before the first "." in an entity ID (e.g. "light.kitchen").
type Domain string

const (
	DomainLight       Domain = "light"
	DomainSwitch      Domain = "switch"
	DomainSensor      Domain = "sensor"
	DomainClimate     Domain = "climate"
	DomainFan         Domain = "fan"
	DomainCover       Domain = "cover"
	DomainLock        Domain = "lock"
	DomainMediaPlayer Domain = "media_player"
	DomainAutomation  Domain = "automation"
	DomainOther       Domain = "other"
)

// DomainOf extracts the domain from an entity ID. Unrecognized or malformed
// IDs map to DomainOther.
func DomainOf(entityID string) Domain {
	idx := strings.IndexByte(entityID, '.')
	if idx <= 0 {
		return DomainOther
	}
	switch d := Domain(entityID[:idx]); d {
	case DomainLight, DomainSwitch, DomainSensor, DomainClimate, DomainFan,
		DomainCover, DomainLock, DomainMediaPlayer, DomainAutomation:
		return d
	default:
		return DomainOther
	}
}

// EntitySnapshot is the current state of one entity as seen in the registry.
// It is a read-only value; the engine never mutates registry state.
type EntitySnapshot struct {
	// EntityID is the unique identifier, "<domain>.<object_id>".
	EntityID string
	// Domain is the entity's kind, derived from the ID.
	Domain Domain
	// Name is the human-readable label, if the host provides one.
	Name string
	// State is the raw state string ("on", "21.5", "playing", ...).
	State string
	// DeviceClass is the host's semantic class ("temperature", "energy", ...).
	// Empty when the host does not classify the entity.
	DeviceClass string
	// Unit is the unit of measurement, if any ("°C", "kWh", ...).
	Unit string
	// LastUpdated is when the state last changed.
	LastUpdated time.Time
}

// nonNumericClasses are semantic classes whose numeric-looking states are not
// meaningful as a continuous series.
var nonNumericClasses = map[string]struct{}{
	"enum":      {},
	"timestamp": {},
	"date":      {},
	"duration":  {},
	"data_rate": {},
	"data_size": {},
	"frequency": {},
}

// activeStates are state values treated as "device is on" when integrating
// usage time.
var activeStates = map[string]struct{}{
	"on":       {},
	"open":     {},
	"opening":  {},
	"playing":  {},
	"heat":     {},
	"cool":     {},
	"heating":  {},
	"cooling":  {},
	"drying":   {},
	"fan":      {},
	"unlocked": {},
}

// NumericState parses the snapshot's state as a finite float.
func (s EntitySnapshot) NumericState() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s.State), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// SupportsHistory reports whether the entity's history is usable as a
// numeric time series: the current state parses as a finite number and the
// semantic class is not in the exclusion set.
func (s EntitySnapshot) SupportsHistory() bool {
	if _, ok := s.NumericState(); !ok {
		return false
	}
	_, excluded := nonNumericClasses[s.DeviceClass]
	return !excluded
}

// IsActive reports whether the snapshot's state counts as "on" for usage
// integration.
func (s EntitySnapshot) IsActive() bool {
	_, ok := activeStates[strings.ToLower(s.State)]
	return ok
}

// isActiveState reports whether a raw state string counts as "on".
func isActiveState(state string) bool {
	_, ok := activeStates[strings.ToLower(strings.TrimSpace(state))]
	return ok
}

// Label returns the human-readable name, falling back to the entity ID.
func (s EntitySnapshot) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.EntityID
}
