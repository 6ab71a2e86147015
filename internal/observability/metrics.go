package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	submissionCounter     *prometheus.CounterVec
	outcomeCounter        *prometheus.CounterVec
	pollAttemptsHistogram prometheus.Histogram
	pendingGauge          prometheus.Gauge
	workerRunCounter      *prometheus.CounterVec
	idempotencyCounter    *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		submissionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfer_submissions_total",
			Help: "Transfer submission results",
		}, []string{"result"})

		outcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfer_outcomes_total",
			Help: "Terminal attempt outcomes by classified kind",
		}, []string{"kind"})

		pollAttemptsHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transfer_poll_attempts",
			Help:    "Status poll attempts consumed per transfer attempt",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		})

		pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transfer_pending_settlement",
			Help: "Instructions awaiting out-of-band settlement",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Confirmation idempotency boundary events",
		}, []string{"event"})

		prometheus.MustRegister(
			httpDurationHistogram,
			submissionCounter,
			outcomeCounter,
			pollAttemptsHistogram,
			pendingGauge,
			workerRunCounter,
			idempotencyCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementSubmission(result string) {
	if submissionCounter == nil {
		return
	}
	submissionCounter.WithLabelValues(result).Inc()
}

func IncrementOutcome(kind string) {
	if outcomeCounter == nil {
		return
	}
	outcomeCounter.WithLabelValues(kind).Inc()
}

func ObservePollAttempts(attempts int) {
	if pollAttemptsHistogram == nil {
		return
	}
	pollAttemptsHistogram.Observe(float64(attempts))
}

func SetPendingSettlement(count int) {
	if pendingGauge == nil {
		return
	}
	pendingGauge.Set(float64(count))
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func IncrementIdempotencyEvent(event string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(event).Inc()
}
