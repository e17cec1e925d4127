package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_ws_connections",
		Help: "Current number of registered websocket connections",
	})
	WsRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pulse_ws_rooms",
		Help: "Current number of rooms with at least one local subscriber",
	})
	WsInboundEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_ws_inbound_events_total",
		Help: "Inbound websocket events by type",
	}, []string{"type"})
	WsDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulse_ws_deliveries_total",
		Help: "Outbound frames queued to local connections",
	})
	WsRemoteBroadcasts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulse_ws_remote_broadcasts_total",
		Help: "Room broadcasts received from other nodes",
	})
	WsDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulse_ws_slow_consumer_drops_total",
		Help: "Connections closed because their send buffer was full",
	})
	WsRateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulse_ws_rate_limited_total",
		Help: "Inbound events rejected by the per-connection rate limiter",
	})
	PresenceTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_presence_transitions_total",
		Help: "Presence status changes by resulting status",
	}, []string{"status"})
	EditConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulse_message_edit_conflicts_total",
		Help: "Message edits rejected by optimistic concurrency",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections, WsRooms, WsInboundEvents, WsDeliveries, WsRemoteBroadcasts, WsDrops, WsRateLimited,
		PresenceTransitions, EditConflicts,
		HttpRequestsTotal, HttpRequestDuration,
	)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency. The path label is the
// matched ServeMux pattern so ids do not blow up label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": r.Method, "path": path, "status": strconv.Itoa(rec.status)}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}
