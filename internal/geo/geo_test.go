package geo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Checkpoint coordinates used across the project test fixtures.
var testFacilities = []Facility{
	{ID: 1, Name: "Ahmedabad Toll Plaza", Lat: 23.0396, Lon: 72.5660},
	{ID: 2, Name: "Vadodara Toll Plaza", Lat: 22.3072, Lon: 73.1812},
	{ID: 3, Name: "Surat Toll Plaza", Lat: 21.1702, Lon: 72.8311},
}

func TestHaversine(t *testing.T) {
	t.Run("zero distance for identical points", func(t *testing.T) {
		assert.Zero(t, Haversine(23.0396, 72.5660, 23.0396, 72.5660))
	})

	t.Run("symmetric", func(t *testing.T) {
		d1 := Haversine(23.0396, 72.5660, 21.1702, 72.8311)
		d2 := Haversine(21.1702, 72.8311, 23.0396, 72.5660)
		assert.InDelta(t, d1, d2, 1e-9)
	})

	t.Run("short hop is in the expected range", func(t *testing.T) {
		// ~0.6 km between a driver position and a nearby checkpoint.
		d := Haversine(28.705, 77.103, 28.70, 77.10)
		assert.Greater(t, d, 0.5)
		assert.Less(t, d, 0.7)
	})

	t.Run("ahmedabad to surat is roughly 210 km", func(t *testing.T) {
		d := Haversine(23.0396, 72.5660, 21.1702, 72.8311)
		assert.InDelta(t, 210.0, d, 10.0)
	})
}

func TestIndexNearest(t *testing.T) {
	idx := NewIndex()

	t.Run("empty index", func(t *testing.T) {
		_, _, err := idx.Nearest(23.0, 72.5)
		require.ErrorIs(t, err, ErrEmptyIndex)
	})

	idx.Load(testFacilities)

	t.Run("picks the minimal haversine distance", func(t *testing.T) {
		f, dist, err := idx.Nearest(23.04, 72.57)
		require.NoError(t, err)
		assert.Equal(t, int64(1), f.ID)
		assert.Equal(t, "Ahmedabad Toll Plaza", f.Name)
		assert.Less(t, dist, 1.0)
	})

	t.Run("southern query resolves to surat", func(t *testing.T) {
		f, _, err := idx.Nearest(21.2, 72.83)
		require.NoError(t, err)
		assert.Equal(t, int64(3), f.ID)
	})

	t.Run("tie keeps the first loaded facility", func(t *testing.T) {
		tied := NewIndex()
		tied.Load([]Facility{
			{ID: 10, Name: "First", Lat: 20.0, Lon: 70.0},
			{ID: 11, Name: "Second", Lat: 20.0, Lon: 70.0},
		})
		f, _, err := tied.Nearest(20.5, 70.5)
		require.NoError(t, err)
		assert.Equal(t, int64(10), f.ID)
	})
}

func TestIndexLoad(t *testing.T) {
	t.Run("replaces contents entirely", func(t *testing.T) {
		idx := NewIndex()
		idx.Load(testFacilities)
		require.Equal(t, 3, idx.Len())

		idx.Load([]Facility{{ID: 9, Name: "Only", Lat: 10, Lon: 10}})
		f, _, err := idx.Nearest(23.04, 72.57)
		require.NoError(t, err)
		assert.Equal(t, int64(9), f.ID)
		assert.Equal(t, 1, idx.Len())
	})

	t.Run("caller mutations do not leak in", func(t *testing.T) {
		idx := NewIndex()
		src := []Facility{{ID: 1, Name: "A", Lat: 1, Lon: 1}}
		idx.Load(src)
		src[0].Name = "mutated"
		assert.Equal(t, "A", idx.Facilities()[0].Name)
	})
}

func TestIndexLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "facilities.json")

	data, err := json.Marshal(testFacilities)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	idx := NewIndex()
	require.NoError(t, idx.LoadFile(path))
	assert.Equal(t, testFacilities, idx.Facilities())

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, NewIndex().LoadFile(filepath.Join(dir, "absent.json")))
	})

	t.Run("malformed file", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
		assert.Error(t, NewIndex().LoadFile(bad))
	})
}
