package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink collects events behind a channel so tests can wait on them.
type captureSink struct {
	mu     sync.Mutex
	events []FatigueEvent
	ch     chan FatigueEvent
}

func newCaptureSink() *captureSink {
	return &captureSink{ch: make(chan FatigueEvent, 16)}
}

func (c *captureSink) OnFatigueEvent(_ context.Context, event FatigueEvent) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	c.ch <- event
}

func (c *captureSink) wait(t *testing.T) FatigueEvent {
	t.Helper()
	select {
	case event := <-c.ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fatigue event")
		return FatigueEvent{}
	}
}

func submitClosedRun(t *testing.T, m *Manager, driverID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, m.Submit(driverID, Sample{EAR: 0.2, MouthOpenness: 5}))
	}
}

func TestManagerStart(t *testing.T) {
	sink := newCaptureSink()
	m := NewManager(sink)
	defer m.StopAll()

	require.NoError(t, m.Start(context.Background(), "D1"))
	assert.True(t, m.IsMonitoring("D1"))
	assert.Equal(t, 1, m.ActiveCount())

	t.Run("second start for the same driver fails", func(t *testing.T) {
		err := m.Start(context.Background(), "D1")
		require.ErrorIs(t, err, ErrAlreadyMonitoring)
	})

	t.Run("other drivers are independent", func(t *testing.T) {
		require.NoError(t, m.Start(context.Background(), "D2"))
		assert.Equal(t, 2, m.ActiveCount())
	})
}

func TestManagerEmitsThroughSink(t *testing.T) {
	sink := newCaptureSink()
	m := NewManager(sink, WithSampleBuffer(EyeARConsecFrames*2))
	defer m.StopAll()

	require.NoError(t, m.Start(context.Background(), "D1"))
	submitClosedRun(t, m, "D1", EyeARConsecFrames)

	event := sink.wait(t)
	assert.Equal(t, "D1", event.DriverID)
	assert.Equal(t, EventEyeClosure, event.Kind)
}

func TestManagerSubmitUnknownDriver(t *testing.T) {
	m := NewManager(newCaptureSink())
	err := m.Submit("ghost", Sample{EAR: 0.2})
	require.ErrorIs(t, err, ErrNotMonitored)
}

func TestManagerStop(t *testing.T) {
	sink := newCaptureSink()
	m := NewManager(sink)

	require.NoError(t, m.Start(context.Background(), "D1"))
	m.Stop("D1")
	assert.False(t, m.IsMonitoring("D1"))

	t.Run("stop is idempotent", func(t *testing.T) {
		m.Stop("D1")
		m.Stop("never-started")
	})

	t.Run("samples after stop are dropped", func(t *testing.T) {
		err := m.Submit("D1", Sample{EAR: 0.2})
		require.ErrorIs(t, err, ErrNotMonitored)
	})

	t.Run("driver can be restarted after stop", func(t *testing.T) {
		require.NoError(t, m.Start(context.Background(), "D1"))
		m.Stop("D1")
	})
}

func TestManagerStopAll(t *testing.T) {
	m := NewManager(newCaptureSink())
	for _, id := range []string{"D1", "D2", "D3"} {
		require.NoError(t, m.Start(context.Background(), id))
	}

	m.StopAll()
	assert.Equal(t, 0, m.ActiveCount())
}

func TestManagerContextCancelStopsMonitor(t *testing.T) {
	m := NewManager(newCaptureSink())
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, m.Start(ctx, "D1"))
	cancel()

	// The session stays registered until Stop, but the loop has exited;
	// Stop completes immediately without tripping the grace period.
	done := make(chan struct{})
	go func() {
		m.Stop("D1")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}

func TestManagerSamplesProcessedInOrder(t *testing.T) {
	sink := newCaptureSink()
	m := NewManager(sink, WithSampleBuffer(256))
	defer m.StopAll()

	require.NoError(t, m.Start(context.Background(), "D1"))

	// A run that is interrupted one frame short must not trip; ordering
	// would break this if samples were processed out of arrival order.
	submitClosedRun(t, m, "D1", EyeARConsecFrames-1)
	require.NoError(t, m.Submit("D1", Sample{EAR: 0.35}))
	submitClosedRun(t, m, "D1", EyeARConsecFrames)

	event := sink.wait(t)
	assert.Equal(t, EventEyeClosure, event.Kind)

	sink.mu.Lock()
	count := len(sink.events)
	sink.mu.Unlock()
	assert.Equal(t, 1, count)
}
