package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"drivewatch/internal/broadcast"
	"drivewatch/internal/dispatch"
	"drivewatch/internal/geo"
	"drivewatch/internal/location"
	"drivewatch/internal/monitor"
	"drivewatch/internal/platform/metrics"
)

// EventTypeLocationUpdate is the broadcast event type for driver position
// changes.
const EventTypeLocationUpdate = "location_update"

// LocationMirror replicates location updates to an external store.
type LocationMirror interface {
	MirrorLocation(ctx context.Context, loc location.Location) error
}

// Service is the core-facing facade: it routes signal samples, location
// reports, and device alerts into the detection-to-dispatch pipeline and
// hands out event subscriptions. The surrounding HTTP layer delegates here
// without embedding business logic.
type Service struct {
	logger      *slog.Logger
	metrics     *metrics.Metrics
	index       *geo.Index
	locations   *location.Store
	monitors    *monitor.Manager
	dispatcher  *dispatch.Dispatcher
	broadcaster *broadcast.Broadcaster
	mirror      LocationMirror
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLocationMirror attaches an external location mirror.
func WithLocationMirror(m LocationMirror) Option {
	return func(s *Service) {
		s.mirror = m
	}
}

// New constructs a Service. The fatigue monitor manager is created here
// with the service as its event sink so every debounced event flows
// through one instrumented path into the dispatcher.
func New(
	index *geo.Index,
	locations *location.Store,
	dispatcher *dispatch.Dispatcher,
	broadcaster *broadcast.Broadcaster,
	monitorOpts []monitor.Option,
	opts ...Option,
) *Service {
	s := &Service{
		logger:      slog.Default(),
		index:       index,
		locations:   locations,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.monitors = monitor.NewManager(s, monitorOpts...)
	return s
}

// OnFatigueEvent implements monitor.EventSink.
func (s *Service) OnFatigueEvent(ctx context.Context, event monitor.FatigueEvent) {
	if s.metrics != nil {
		s.metrics.FatigueEvents.WithLabelValues(string(event.Kind)).Inc()
		s.metrics.AlertsDispatched.WithLabelValues(string(event.Kind)).Inc()
	}
	s.dispatcher.OnFatigueEvent(ctx, event)
}

// SubmitSignal routes one frame's derived signals into the driver's
// monitor. Samples for drivers without an active monitor are dropped with
// a log line only.
func (s *Service) SubmitSignal(driverID string, ear, mouthOpenness float64, ts time.Time) {
	err := s.monitors.Submit(driverID, monitor.Sample{
		EAR:           ear,
		MouthOpenness: mouthOpenness,
		Timestamp:     ts,
	})
	if err != nil {
		if errors.Is(err, monitor.ErrNotMonitored) {
			s.logger.Debug("signal sample for unmonitored driver dropped", "driver_id", driverID)
			if s.metrics != nil {
				s.metrics.SamplesDropped.Inc()
			}
		}
		return
	}
	if s.metrics != nil {
		s.metrics.SamplesSubmitted.Inc()
	}
}

// SubmitLocation records the driver's position and publishes a
// location_update event.
func (s *Service) SubmitLocation(ctx context.Context, driverID string, lat, lon float64, accuracy *float64, ts time.Time) location.Location {
	loc := s.locations.Put(driverID, lat, lon, accuracy, ts)

	s.broadcaster.Publish(broadcast.Event{
		Type:    EventTypeLocationUpdate,
		Payload: loc,
	})

	if s.mirror != nil {
		if err := s.mirror.MirrorLocation(ctx, loc); err != nil {
			s.logger.Warn("location mirror failed", "driver_id", driverID, "error", err.Error())
		}
	}
	if s.metrics != nil {
		s.metrics.LocationUpdates.Inc()
	}
	return loc
}

// SubmitExternalAlert dispatches an alert reported directly by a device.
func (s *Service) SubmitExternalAlert(ctx context.Context, driverID string, lat, lon *float64, ts time.Time, details map[string]any) dispatch.Alert {
	if s.metrics != nil {
		s.metrics.AlertsDispatched.WithLabelValues(dispatch.AlertKindExternal).Inc()
	}
	return s.dispatcher.OnExternalAlert(ctx, driverID, lat, lon, ts, details)
}

// StartMonitoring begins fatigue monitoring for a driver.
func (s *Service) StartMonitoring(ctx context.Context, driverID string) error {
	if err := s.monitors.Start(ctx, driverID); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ActiveMonitors.Set(float64(s.monitors.ActiveCount()))
	}
	return nil
}

// StopMonitoring ends fatigue monitoring for a driver. Idempotent.
func (s *Service) StopMonitoring(driverID string) {
	s.monitors.Stop(driverID)
	if s.metrics != nil {
		s.metrics.ActiveMonitors.Set(float64(s.monitors.ActiveCount()))
	}
}

// StopAllMonitors stops every running monitor, used at shutdown.
func (s *Service) StopAllMonitors() {
	s.monitors.StopAll()
	if s.metrics != nil {
		s.metrics.ActiveMonitors.Set(0)
	}
}

// IsMonitoring reports whether a driver has an active monitor.
func (s *Service) IsMonitoring(driverID string) bool {
	return s.monitors.IsMonitoring(driverID)
}

// QueryNearest resolves the closest facility to the given coordinates.
func (s *Service) QueryNearest(lat, lon float64) (geo.Facility, float64, error) {
	return s.index.Nearest(lat, lon)
}

// Facilities lists the loaded facility set.
func (s *Service) Facilities() []geo.Facility {
	return s.index.Facilities()
}

// RecentAlerts returns the newest recorded alerts, optionally scoped to a
// facility. facilityID <= 0 means unscoped.
func (s *Service) RecentAlerts(facilityID int64, limit int) []dispatch.Alert {
	if facilityID > 0 {
		return s.dispatcher.Log().ByFacility(facilityID, limit)
	}
	return s.dispatcher.Log().Recent(limit)
}

// OpenStream registers a global event stream subscription.
func (s *Service) OpenStream() *broadcast.Subscriber {
	sub := s.broadcaster.Subscribe()
	if s.metrics != nil {
		s.metrics.ActiveSubscribers.Set(float64(s.broadcaster.SubscriberCount()))
	}
	return sub
}

// JoinFacilityRoom registers a subscription scoped to one facility's
// operators.
func (s *Service) JoinFacilityRoom(facilityID int64) *broadcast.Subscriber {
	sub := s.broadcaster.JoinRoom(dispatch.FacilityRoom(facilityID))
	if s.metrics != nil {
		s.metrics.ActiveSubscribers.Set(float64(s.broadcaster.SubscriberCount()))
	}
	return sub
}

// CloseSubscription removes a subscription and releases its queue.
func (s *Service) CloseSubscription(sub *broadcast.Subscriber) {
	s.broadcaster.Unsubscribe(sub)
	if s.metrics != nil {
		s.metrics.ActiveSubscribers.Set(float64(s.broadcaster.SubscriberCount()))
	}
}
