package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"kind"},
	)
	JobsProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_processing",
			Help: "Number of jobs currently processing",
		},
		[]string{"kind"},
	)
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs completed",
		},
		[]string{"kind"},
	)
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs terminally failed",
		},
		[]string{"kind", "error_kind"},
	)
	JobsDeadLetteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_dead_lettered_total",
			Help: "Total number of messages moved to the dead-letter topic",
		},
		[]string{"kind"},
	)

	// GenerationInFlight observes the backend concurrency ceiling; it must
	// never exceed BACKEND_MAX_CONCURRENCY.
	GenerationInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "generation_in_flight",
			Help: "Number of concurrent generation backend calls",
		},
	)
	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_duration_seconds",
			Help:    "Generation backend call duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"kind", "outcome"},
	)

	QuotaRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_rejections_total",
			Help: "Total number of submissions rejected at admission for quota",
		},
		[]string{"kind"},
	)
	PromptTokens = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompt_tokens",
			Help:    "Distribution of prompt token counts at intake",
			Buckets: []float64{8, 16, 32, 64, 128, 256, 512, 1024},
		},
		[]string{"kind"},
	)
)

// InitMetrics registers all collectors; call once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(JobsEnqueuedTotal)
	prometheus.MustRegister(JobsProcessing)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(JobsDeadLetteredTotal)
	prometheus.MustRegister(GenerationInFlight)
	prometheus.MustRegister(GenerationDuration)
	prometheus.MustRegister(QuotaRejectionsTotal)
	prometheus.MustRegister(PromptTokens)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// EnqueueJob records a successful enqueue.
func EnqueueJob(kind string) { JobsEnqueuedTotal.WithLabelValues(kind).Inc() }

// StartProcessingJob marks a job as in-flight.
func StartProcessingJob(kind string) { JobsProcessing.WithLabelValues(kind).Inc() }

// CompleteJob marks a job completed.
func CompleteJob(kind string) {
	JobsProcessing.WithLabelValues(kind).Dec()
	JobsCompletedTotal.WithLabelValues(kind).Inc()
}

// FailJob marks a job terminally failed with its error kind.
func FailJob(kind, errorKind string) {
	JobsProcessing.WithLabelValues(kind).Dec()
	JobsFailedTotal.WithLabelValues(kind, errorKind).Inc()
}

// ReleaseJob undoes StartProcessingJob for a redelivery (non-terminal exit).
func ReleaseJob(kind string) { JobsProcessing.WithLabelValues(kind).Dec() }

// DeadLetterJob records a message moved to the dead-letter topic.
func DeadLetterJob(kind string) { JobsDeadLetteredTotal.WithLabelValues(kind).Inc() }

// ObserveGeneration records one backend call.
func ObserveGeneration(kind, outcome string, d time.Duration) {
	GenerationDuration.WithLabelValues(kind, outcome).Observe(d.Seconds())
}

// QuotaRejected records an admission rejection.
func QuotaRejected(kind string) { QuotaRejectionsTotal.WithLabelValues(kind).Inc() }

// ObservePromptTokens records the token count of an admitted prompt.
func ObservePromptTokens(kind string, tokens int) {
	PromptTokens.WithLabelValues(kind).Observe(float64(tokens))
}
