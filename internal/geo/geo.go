package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
)

// earthRadiusKm is the mean Earth radius used by the spherical approximation.
const earthRadiusKm = 6371.0

// ErrEmptyIndex is returned by Nearest when no facilities are loaded.
var ErrEmptyIndex = errors.New("geo: no facilities loaded")

// Facility is a named checkpoint with a fixed position. Facilities are
// immutable once loaded; identity is the ID.
type Facility struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Index answers nearest-facility queries over a small, reloadable facility
// set. Load replaces the contents atomically: concurrent readers observe
// either the previous set or the new one, never a mix. The set is expected
// to stay in the tens-to-hundreds range, so Nearest is a linear scan.
type Index struct {
	mu         sync.RWMutex
	facilities []Facility
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{}
}

// Load replaces the index contents with the given facilities.
func (i *Index) Load(facilities []Facility) {
	replacement := make([]Facility, len(facilities))
	copy(replacement, facilities)

	i.mu.Lock()
	i.facilities = replacement
	i.mu.Unlock()
}

// LoadFile reads a JSON array of facilities from path and loads it.
func (i *Index) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read facilities file: %w", err)
	}

	var facilities []Facility
	if err := json.Unmarshal(data, &facilities); err != nil {
		return fmt.Errorf("parse facilities file %s: %w", path, err)
	}

	i.Load(facilities)
	return nil
}

// Facilities returns a copy of the current facility set in load order.
func (i *Index) Facilities() []Facility {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]Facility, len(i.facilities))
	copy(out, i.facilities)
	return out
}

// Len reports the number of loaded facilities.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.facilities)
}

// Nearest returns the facility closest to the given coordinates and the
// great-circle distance to it in kilometers. Ties keep the facility that
// was loaded first. Returns ErrEmptyIndex when the index holds nothing.
func (i *Index) Nearest(lat, lon float64) (Facility, float64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.facilities) == 0 {
		return Facility{}, 0, ErrEmptyIndex
	}

	best := i.facilities[0]
	bestDist := Haversine(lat, lon, best.Lat, best.Lon)
	for _, f := range i.facilities[1:] {
		if d := Haversine(lat, lon, f.Lat, f.Lon); d < bestDist {
			best = f
			bestDist = d
		}
	}
	return best, bestDist, nil
}

// Haversine computes the great-circle distance in kilometers between two
// points given in decimal degrees, assuming a spherical Earth. The atan2
// form is used for numerical stability near antipodal points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
