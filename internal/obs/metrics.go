package obs

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ComplaintsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "complaints_submitted_total",
		Help: "Complaints created.",
	})

	StatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaint_status_transitions_total",
			Help: "Complaint status changes by source and target status.",
		},
		[]string{"from", "to"},
	)

	MediaRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_uploads_rejected_total",
			Help: "Uploaded images rejected by reason.",
		},
		[]string{"reason"},
	)

	GeocodeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocode_requests_total",
			Help: "Geocoding lookups by kind and result.",
		},
		[]string{"kind", "result"},
	)

	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Status notifications by result.",
		},
		[]string{"result"},
	)
)

var initOnce sync.Once

// Init registers all collectors with the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPInFlight, HTTPRequestsTotal, HTTPRequestDuration,
			ComplaintsSubmitted, StatusTransitions, MediaRejected,
			GeocodeRequests, NotificationsSent,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
