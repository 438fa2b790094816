package location

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type StoreSuite struct {
	suite.Suite
	store *Store
	now   time.Time
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewStore(WithClock(func() time.Time { return s.now }))
}

func (s *StoreSuite) TestGetUnknownDriver() {
	_, ok := s.store.Get("ghost")
	s.False(ok)
}

func (s *StoreSuite) TestPutAndGet() {
	ts := s.now.Add(-time.Minute)
	s.store.Put("D1", 28.705, 77.103, nil, ts)

	loc, ok := s.store.Get("D1")
	s.Require().True(ok)
	s.Equal("D1", loc.DriverID)
	s.Equal(28.705, loc.Lat)
	s.Equal(77.103, loc.Lon)
	s.Nil(loc.Accuracy)
	s.Equal(ts, loc.Timestamp)
}

func (s *StoreSuite) TestZeroTimestampIsStamped() {
	loc := s.store.Put("D1", 1, 2, nil, time.Time{})
	s.Equal(s.now, loc.Timestamp)
}

func (s *StoreSuite) TestAccuracyPassthrough() {
	acc := 12.5
	loc := s.store.Put("D1", 1, 2, &acc, s.now)
	s.Require().NotNil(loc.Accuracy)
	s.Equal(12.5, *loc.Accuracy)
}

func (s *StoreSuite) TestLastWriteWins() {
	s.store.Put("D1", 1, 1, nil, s.now)
	// An older timestamp still replaces the entry; the store makes no
	// ordering judgment about late network delivery.
	s.store.Put("D1", 2, 2, nil, s.now.Add(-time.Hour))

	loc, ok := s.store.Get("D1")
	s.Require().True(ok)
	s.Equal(2.0, loc.Lat)
	s.Equal(s.now.Add(-time.Hour), loc.Timestamp)
	s.Equal(1, s.store.Len())
}

func (s *StoreSuite) TestConcurrentWriters() {
	const drivers = 8
	const writes = 200

	var wg sync.WaitGroup
	for d := 0; d < drivers; d++ {
		wg.Add(1)
		go func(d int) {
			defer wg.Done()
			id := fmt.Sprintf("D%d", d)
			for i := 0; i < writes; i++ {
				s.store.Put(id, float64(d), float64(i), nil, s.now)
			}
		}(d)
	}
	wg.Wait()

	s.Equal(drivers, s.store.Len())
	for d := 0; d < drivers; d++ {
		loc, ok := s.store.Get(fmt.Sprintf("D%d", d))
		s.Require().True(ok)
		s.Equal(float64(d), loc.Lat)
		s.Equal(float64(writes-1), loc.Lon)
	}
}

func (s *StoreSuite) TestSnapshot() {
	s.store.Put("D1", 1, 1, nil, s.now)
	s.store.Put("D2", 2, 2, nil, s.now)
	s.Len(s.store.Snapshot(), 2)
}
