package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "opd_scribe"

// HTTP metrics (counter/histogram — incremented by middleware).
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})
)

// Consultation workflow metrics (fed by the transcribe client hooks).
var (
	ConsultationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consultations_total",
		Help:      "Consultation runs by outcome (succeeded or the failure kind).",
	}, []string{"outcome"})

	PhaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "phase_duration_seconds",
		Help:      "Time spent in each workflow phase.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"phase"})

	PollChecks = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "poll_checks",
		Help:      "Readiness checks needed before an uploaded asset was ready or the poll gave up.",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
	})

	RejectedSubmissionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rejected_submissions_total",
		Help:      "Submissions refused because the session already had one in flight.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ConsultationsTotal,
		PhaseDuration,
		PollChecks,
		RejectedSubmissionsTotal,
	)
}

// ObservePhase records the time spent in a phase that just ended, and the
// run outcome once a terminal phase is reached.
func ObservePhase(from, to string, elapsed time.Duration, kind string) {
	if from != "idle" {
		PhaseDuration.WithLabelValues(from).Observe(elapsed.Seconds())
	}
	switch to {
	case "succeeded":
		ConsultationsTotal.WithLabelValues("succeeded").Inc()
	case "failed":
		if kind == "" {
			kind = "unknown"
		}
		ConsultationsTotal.WithLabelValues(kind).Inc()
	}
}

// ObservePoll records how many readiness checks a run needed.
func ObservePoll(checks int) {
	PollChecks.Observe(float64(checks))
}

// InstrumentHandler returns middleware that records HTTP request metrics.
// It uses chi's route pattern as the path label to avoid cardinality explosion.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)

		pattern := "unknown"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			pattern = rc.RoutePattern()
		}
		method := r.Method
		status := strconv.Itoa(sw.status)

		HTTPRequestsTotal.WithLabelValues(method, pattern, status).Inc()
		HTTPRequestDuration.WithLabelValues(method, pattern).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap supports http.ResponseController and middleware that check for
// wrapped writers.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
