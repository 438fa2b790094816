package location

import (
	"sync"
	"time"
)

// Location is the last reported position of a driver.
type Location struct {
	DriverID  string    `json:"driver_id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store keeps at most one location per driver. Writes are unconditional
// last-write-wins: a stale update arriving after a fresher one overwrites
// it, matching the upstream reporting contract. Safe for many concurrent
// readers and writers.
type Store struct {
	mu      sync.RWMutex
	drivers map[string]Location
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source used when a report carries none.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore constructs an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		drivers: make(map[string]Location),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put records the driver's position, replacing any previous entry. A zero
// ts is stamped with the store clock. The stored entry is returned.
func (s *Store) Put(driverID string, lat, lon float64, accuracy *float64, ts time.Time) Location {
	if ts.IsZero() {
		ts = s.now()
	}
	loc := Location{
		DriverID:  driverID,
		Lat:       lat,
		Lon:       lon,
		Accuracy:  accuracy,
		Timestamp: ts,
	}

	s.mu.Lock()
	s.drivers[driverID] = loc
	s.mu.Unlock()

	return loc
}

// Get returns the last known location for a driver, if any was reported.
func (s *Store) Get(driverID string) (Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.drivers[driverID]
	return loc, ok
}

// Snapshot returns a copy of every tracked driver location.
func (s *Store) Snapshot() []Location {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Location, 0, len(s.drivers))
	for _, loc := range s.drivers {
		out = append(out, loc)
	}
	return out
}

// Len reports the number of drivers with a known location.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drivers)
}
