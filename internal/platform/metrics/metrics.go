package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	SamplesSubmitted  prometheus.Counter
	SamplesDropped    prometheus.Counter
	FatigueEvents     *prometheus.CounterVec
	AlertsDispatched  *prometheus.CounterVec
	LocationUpdates   prometheus.Counter
	BroadcastDrops    prometheus.Counter
	ActiveMonitors    prometheus.Gauge
	ActiveSubscribers prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SamplesSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drivewatch_samples_submitted_total",
			Help: "Total number of signal samples accepted for processing",
		}),
		SamplesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drivewatch_samples_dropped_total",
			Help: "Total number of signal samples dropped because no monitor was running",
		}),
		FatigueEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "drivewatch_fatigue_events_total",
			Help: "Total number of debounced fatigue events by kind",
		}, []string{"kind"}),
		AlertsDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "drivewatch_alerts_dispatched_total",
			Help: "Total number of alerts dispatched by kind",
		}, []string{"kind"}),
		LocationUpdates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drivewatch_location_updates_total",
			Help: "Total number of driver location updates recorded",
		}),
		BroadcastDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "drivewatch_broadcast_drops_total",
			Help: "Total number of events dropped on full subscriber queues",
		}),
		ActiveMonitors: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "drivewatch_active_monitors",
			Help: "Current number of running driver monitors",
		}),
		ActiveSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "drivewatch_active_subscribers",
			Help: "Current number of registered event subscribers",
		}),
	}
}
