package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrAlreadyMonitoring is returned when a driver already has an
	// active monitor. The caller should stop the existing one first.
	ErrAlreadyMonitoring = errors.New("monitor: driver is already being monitored")

	// ErrNotMonitored is returned when a sample arrives for a driver with
	// no active monitor. Samples in this state are dropped, not queued.
	ErrNotMonitored = errors.New("monitor: driver is not being monitored")
)

// EventSink receives debounced fatigue events as they trip.
type EventSink interface {
	OnFatigueEvent(ctx context.Context, event FatigueEvent)
}

const (
	defaultSampleBuffer = 64
	defaultStopGrace    = 3 * time.Second
)

// session is one driver's monitoring run. The goroutine spawned in Start
// holds the only reference to the detector state.
type session struct {
	driverID string
	samples  chan Sample
	cancel   context.CancelFunc
	done     chan struct{}
	dropped  atomic.Uint64
}

// Manager runs one fatigue monitor per driver. Each monitor consumes its
// sample stream strictly in arrival order; streams for different drivers
// are fully independent.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session

	sink         EventSink
	logger       *slog.Logger
	sampleBuffer int
	stopGrace    time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithSampleBuffer sets the per-driver sample queue depth.
func WithSampleBuffer(n int) Option {
	return func(m *Manager) {
		m.sampleBuffer = n
	}
}

// WithStopGrace bounds how long Stop waits for a monitor to acknowledge
// cancellation before reporting it as slow.
func WithStopGrace(d time.Duration) Option {
	return func(m *Manager) {
		m.stopGrace = d
	}
}

// NewManager constructs a Manager delivering events to sink.
func NewManager(sink EventSink, opts ...Option) *Manager {
	m := &Manager{
		sessions:     make(map[string]*session),
		sink:         sink,
		logger:       slog.Default(),
		sampleBuffer: defaultSampleBuffer,
		stopGrace:    defaultStopGrace,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins monitoring a driver. At most one monitor may run per driver;
// a second Start returns ErrAlreadyMonitoring. The monitor stops when Stop
// is called for the driver or ctx is cancelled.
func (m *Manager) Start(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[driverID]; exists {
		return ErrAlreadyMonitoring
	}

	runCtx, cancel := context.WithCancel(ctx)
	sess := &session{
		driverID: driverID,
		samples:  make(chan Sample, m.sampleBuffer),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	m.sessions[driverID] = sess

	go m.run(runCtx, sess)

	m.logger.Info("monitoring started", "driver_id", driverID)
	return nil
}

// run is the per-driver loop. It owns the detector state exclusively and
// checks cancellation at each iteration boundary.
func (m *Manager) run(ctx context.Context, sess *session) {
	defer close(sess.done)

	state := &detectorState{}
	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-sess.samples:
			for _, event := range state.process(sess.driverID, sample) {
				m.logger.Info("fatigue event",
					"driver_id", event.DriverID,
					"kind", string(event.Kind),
				)
				m.sink.OnFatigueEvent(ctx, event)
			}
		}
	}
}

// Submit routes a sample to the driver's monitor. Samples for unmonitored
// drivers are dropped with ErrNotMonitored; samples that do not fit the
// queue are dropped silently rather than blocking the producer.
func (m *Manager) Submit(driverID string, sample Sample) error {
	m.mu.RLock()
	sess, ok := m.sessions[driverID]
	m.mu.RUnlock()

	if !ok {
		return ErrNotMonitored
	}

	select {
	case sess.samples <- sample:
	default:
		sess.dropped.Add(1)
		m.logger.Warn("sample queue full, dropping sample", "driver_id", driverID)
	}
	return nil
}

// Stop ends monitoring for a driver and discards its state. Stopping a
// driver that is not monitored is a no-op. Stop waits up to the configured
// grace period for the monitor goroutine to exit; a slow exit is logged,
// never forced.
func (m *Manager) Stop(driverID string) {
	m.mu.Lock()
	sess, ok := m.sessions[driverID]
	if ok {
		delete(m.sessions, driverID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	sess.cancel()
	select {
	case <-sess.done:
		m.logger.Info("monitoring stopped", "driver_id", driverID, "samples_dropped", sess.dropped.Load())
	case <-time.After(m.stopGrace):
		m.logger.Warn("monitor did not stop promptly", "driver_id", driverID)
	}
}

// StopAll stops every active monitor concurrently and returns once all
// have acknowledged (or exceeded the grace period).
func (m *Manager) StopAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			m.Stop(id)
			return nil
		})
	}
	_ = g.Wait()
}

// IsMonitoring reports whether a driver has an active monitor.
func (m *Manager) IsMonitoring(driverID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[driverID]
	return ok
}

// ActiveCount reports the number of running monitors.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
