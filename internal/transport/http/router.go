package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires all public endpoints. The streaming endpoints sit
// outside the timeout middleware because they hold connections open.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(chimiddleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(30 * time.Second))

		r.Post("/driver/location", h.handleSubmitLocation)
		r.Post("/driver/signal", h.handleSubmitSignal)
		r.Post("/alert", h.handleSubmitAlert)
		r.Post("/detection/start", h.handleStartDetection)
		r.Post("/detection/stop", h.handleStopDetection)

		r.Get("/facilities", h.handleFacilities)
		r.Get("/facilities/nearest", h.handleNearestFacility)
		r.Get("/alerts/recent", h.handleRecentAlerts)
		r.Get("/health", h.handleHealth)
	})

	r.Get("/alerts/stream", h.handleAlertStream)
	r.Get("/ws", h.handleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
