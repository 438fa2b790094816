package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"drivewatch/internal/broadcast"
	"drivewatch/internal/geo"
	"drivewatch/internal/location"
	"drivewatch/internal/monitor"
)

// EventTypeAlert is the broadcast event type carrying alert payloads.
const EventTypeAlert = "alert"

// FacilityRoom names the broadcast room for one facility's operators.
func FacilityRoom(facilityID int64) string {
	return fmt.Sprintf("facility_%d", facilityID)
}

// Notification is the human-readable projection of an alert delivered to
// checkpoint operators.
type Notification struct {
	FacilityID   *int64    `json:"facility_id"`
	FacilityName string    `json:"facility_name,omitempty"`
	DriverID     string    `json:"driver_id"`
	Lat          *float64  `json:"lat"`
	Lon          *float64  `json:"lon"`
	Timestamp    time.Time `json:"ts"`
	Message      string    `json:"message"`
}

// AlertEvent is the payload published for every dispatched alert.
type AlertEvent struct {
	Alert        Alert        `json:"alert"`
	Notification Notification `json:"notification"`
}

// Publisher fans dispatched alerts out to live subscribers.
type Publisher interface {
	Publish(event broadcast.Event)
	PublishRoom(room string, event broadcast.Event)
}

// Mirror replicates dispatched alerts to an external channel (e.g. Redis
// pub/sub). Mirror failures are logged and never fail the dispatch.
type Mirror interface {
	MirrorAlert(ctx context.Context, facilityID *int64, event AlertEvent) error
}

// Dispatcher converts fatigue events and device-submitted alerts into
// recorded, published alerts. Dispatch is synchronous and in-memory; the
// only internal failure mode is an empty facility index, which degrades to
// an alert without facility fields instead of erroring.
type Dispatcher struct {
	log       *Log
	index     *geo.Index
	locations *location.Store
	publisher Publisher

	logger *slog.Logger
	mirror Mirror
	now    func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMirror attaches an external alert mirror.
func WithMirror(m Mirror) Option {
	return func(d *Dispatcher) {
		d.mirror = m
	}
}

// WithClock overrides the timestamp source for alerts without one.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// New constructs a Dispatcher.
func New(log *Log, index *geo.Index, locations *location.Store, publisher Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:       log,
		index:     index,
		locations: locations,
		publisher: publisher,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Log exposes the append-only alert log.
func (d *Dispatcher) Log() *Log {
	return d.log
}

// OnFatigueEvent dispatches an alert for a debounced in-process fatigue
// event. The driver's position comes from the location store.
func (d *Dispatcher) OnFatigueEvent(ctx context.Context, event monitor.FatigueEvent) Alert {
	return d.dispatch(ctx, event.DriverID, string(event.Kind), nil, nil, event.Timestamp, nil)
}

// OnExternalAlert dispatches an alert submitted directly by a device.
// Explicit coordinates take precedence over the location store.
func (d *Dispatcher) OnExternalAlert(ctx context.Context, driverID string, lat, lon *float64, ts time.Time, details map[string]any) Alert {
	return d.dispatch(ctx, driverID, AlertKindExternal, lat, lon, ts, details)
}

func (d *Dispatcher) dispatch(ctx context.Context, driverID, kind string, lat, lon *float64, ts time.Time, details map[string]any) Alert {
	if ts.IsZero() {
		ts = d.now()
	}

	// Explicit coordinates win; otherwise fall back to the last known
	// location. Both may be absent: location-unknown alerts are a
	// supported path, not an error.
	if lat == nil || lon == nil {
		if loc, ok := d.locations.Get(driverID); ok {
			lat, lon = &loc.Lat, &loc.Lon
		}
	}

	alert := Alert{
		DriverID:  driverID,
		Lat:       lat,
		Lon:       lon,
		Timestamp: ts,
		Kind:      kind,
		Details:   details,
	}

	var facilityName string
	if lat != nil && lon != nil {
		facility, distKm, err := d.index.Nearest(*lat, *lon)
		switch {
		case err == nil:
			alert.NearestFacilityID = &facility.ID
			alert.DistanceKm = &distKm
			facilityName = facility.Name
		case errors.Is(err, geo.ErrEmptyIndex):
			d.logger.Warn("no facilities loaded, dispatching without facility", "driver_id", driverID)
		}
	}

	alert = d.log.Append(alert)

	notification := d.buildNotification(alert, facilityName)
	event := broadcast.Event{
		Type:    EventTypeAlert,
		Payload: AlertEvent{Alert: alert, Notification: notification},
	}

	if alert.NearestFacilityID != nil {
		d.publisher.PublishRoom(FacilityRoom(*alert.NearestFacilityID), event)
	} else {
		d.publisher.Publish(event)
	}

	if d.mirror != nil {
		if err := d.mirror.MirrorAlert(ctx, alert.NearestFacilityID, AlertEvent{Alert: alert, Notification: notification}); err != nil {
			d.logger.Warn("alert mirror failed", "alert_id", alert.ID, "error", err.Error())
		}
	}

	d.logger.Info("alert dispatched",
		"alert_id", alert.ID,
		"driver_id", driverID,
		"kind", kind,
		"facility", facilityName,
	)
	return alert
}

func (d *Dispatcher) buildNotification(alert Alert, facilityName string) Notification {
	n := Notification{
		FacilityID:   alert.NearestFacilityID,
		FacilityName: facilityName,
		DriverID:     alert.DriverID,
		Lat:          alert.Lat,
		Lon:          alert.Lon,
		Timestamp:    alert.Timestamp,
	}
	switch {
	case alert.NearestFacilityID != nil && alert.DistanceKm != nil:
		n.Message = fmt.Sprintf("Drowsiness detected for Driver %s, %.2f km away from Checkpoint %s",
			alert.DriverID, *alert.DistanceKm, facilityName)
	case alert.Lat != nil && alert.Lon != nil:
		n.Message = fmt.Sprintf("Drowsiness detected for Driver %s, nearest checkpoint unknown", alert.DriverID)
	default:
		n.Message = fmt.Sprintf("Drowsiness detected for Driver %s, location unknown", alert.DriverID)
	}
	return n
}
