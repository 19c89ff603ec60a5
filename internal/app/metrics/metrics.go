package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "satsjar",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "satsjar",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "satsjar",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	depositsInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "satsjar",
			Subsystem: "payments",
			Name:      "deposits_initiated_total",
			Help:      "Total number of deposit initiations.",
		},
		[]string{"rail"},
	)

	depositsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "satsjar",
			Subsystem: "payments",
			Name:      "deposits_settled_total",
			Help:      "Total number of deposits reaching a terminal status.",
		},
		[]string{"rail", "status"},
	)

	satsCredited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "satsjar",
			Subsystem: "payments",
			Name:      "sats_credited_total",
			Help:      "Total satoshis credited to jars.",
		},
		[]string{"rail"},
	)

	achievementsUnlocked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "satsjar",
			Subsystem: "achievements",
			Name:      "unlocked_total",
			Help:      "Total achievements unlocked across all accounts.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		depositsInitiated,
		depositsSettled,
		satsCredited,
		achievementsUnlocked,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordDepositInitiated counts a deposit initiation on the given rail.
func RecordDepositInitiated(rail string) {
	depositsInitiated.WithLabelValues(rail).Inc()
}

// RecordDepositSettled counts a deposit reaching a terminal status.
func RecordDepositSettled(rail, status string) {
	depositsSettled.WithLabelValues(rail, status).Inc()
}

// RecordSatsCredited counts sats credited to a jar.
func RecordSatsCredited(rail string, amountSats int64) {
	if amountSats <= 0 {
		return
	}
	satsCredited.WithLabelValues(rail).Add(float64(amountSats))
}

// RecordAchievementUnlocked counts one achievement unlock.
func RecordAchievementUnlocked() {
	achievementsUnlocked.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource ids so metric labels stay bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "api" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/api"
	}
	// /api/<area>/<op>/<id...> -> /api/<area>/<op>
	if len(parts) >= 3 {
		return "/" + strings.Join(parts[:3], "/")
	}
	return "/" + strings.Join(parts, "/")
}
