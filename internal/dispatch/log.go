package dispatch

import (
	"sync"
	"time"
)

// AlertKindExternal marks alerts submitted directly by a device, bypassing
// the in-process fatigue monitor.
const AlertKindExternal = "external"

// Alert is one recorded fatigue incident. Immutable once appended.
type Alert struct {
	ID                int64          `json:"id"`
	DriverID          string         `json:"driver_id"`
	Lat               *float64       `json:"lat"`
	Lon               *float64       `json:"lon"`
	Timestamp         time.Time      `json:"ts"`
	Kind              string         `json:"kind"`
	NearestFacilityID *int64         `json:"nearest_facility_id"`
	DistanceKm        *float64       `json:"distance_km"`
	Details           map[string]any `json:"details,omitempty"`
}

// Log is the append-only in-memory alert log. IDs are assigned at append
// time under the log lock, so they are unique and strictly increasing in
// log order even under concurrent dispatch. Entries are never reordered or
// deleted for the lifetime of the process.
type Log struct {
	mu     sync.RWMutex
	alerts []Alert
	lastID int64
}

// NewLog constructs an empty alert log.
func NewLog() *Log {
	return &Log{}
}

// Append assigns the next id to the alert, appends it, and returns the
// stored value.
func (l *Log) Append(a Alert) Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastID++
	a.ID = l.lastID
	l.alerts = append(l.alerts, a)
	return a
}

// All returns a copy of the log in append order.
func (l *Log) All() []Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Alert, len(l.alerts))
	copy(out, l.alerts)
	return out
}

// ByFacility returns the newest alerts resolved to the given facility,
// most recent first, capped at limit.
func (l *Log) ByFacility(facilityID int64, limit int) []Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Alert, 0, limit)
	for i := len(l.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		a := l.alerts[i]
		if a.NearestFacilityID != nil && *a.NearestFacilityID == facilityID {
			out = append(out, a)
		}
	}
	return out
}

// Recent returns the newest alerts regardless of facility, most recent
// first, capped at limit.
func (l *Log) Recent(limit int) []Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Alert, 0, limit)
	for i := len(l.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.alerts[i])
	}
	return out
}

// Len reports the number of recorded alerts.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.alerts)
}
