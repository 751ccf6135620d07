package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Swap metrics
	SwapsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rime_swaps_started_total",
			Help: "Total number of swap requests submitted by intention",
		},
		[]string{"intention"},
	)

	SwapsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rime_swaps_finished_total",
			Help: "Total number of swap requests finished by intention",
		},
		[]string{"intention"},
	)

	SwapsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rime_swaps_failed_total",
			Help: "Total number of swap requests that terminated with an error, by intention and error kind",
		},
		[]string{"intention", "kind"},
	)

	SwapExecDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rime_swap_exec_duration_seconds",
			Help:    "Time taken to execute a swap request on a worker in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"intention"},
	)

	SwapInBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rime_swap_in_bytes_total",
			Help: "Total bytes brought into memory by swap-in requests",
		},
	)

	SwapOutBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rime_swap_out_bytes_total",
			Help: "Total bytes written to the cold store by swap-out requests",
		},
	)

	// RIO metrics
	RIOTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rime_rio_total",
			Help: "Total number of store operations by action",
		},
		[]string{"action"},
	)

	RIOErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rime_rio_errors_total",
			Help: "Total number of failed store operations by action",
		},
		[]string{"action"},
	)

	RIODuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rime_rio_duration_seconds",
			Help:    "Store operation latency in seconds by action",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	RIOBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rime_rio_batch_size",
			Help:    "Number of entries per atomic write batch",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
		},
	)

	// Analyzer metrics
	KeyRequestsAnalyzed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rime_key_requests_analyzed_total",
			Help: "Total number of key requests produced by command analysis by level",
		},
		[]string{"level"},
	)

	// Store metrics
	StoreDiskUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rime_store_disk_used_bytes",
			Help: "Total size of SST files in the current store epoch",
		},
	)

	StoreDiskError = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rime_store_disk_error",
			Help: "Whether the store data directory failed its last health probe (1 = failed)",
		},
	)

	StoreEpoch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rime_store_epoch",
			Help: "Current store epoch",
		},
	)

	CompactionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rime_compactions_total",
			Help: "Total number of full-range compactions triggered",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(SwapsStarted)
	prometheus.MustRegister(SwapsFinished)
	prometheus.MustRegister(SwapsFailed)
	prometheus.MustRegister(SwapExecDuration)
	prometheus.MustRegister(SwapInBytes)
	prometheus.MustRegister(SwapOutBytes)
	prometheus.MustRegister(RIOTotal)
	prometheus.MustRegister(RIOErrors)
	prometheus.MustRegister(RIODuration)
	prometheus.MustRegister(RIOBatchSize)
	prometheus.MustRegister(KeyRequestsAnalyzed)
	prometheus.MustRegister(StoreDiskUsed)
	prometheus.MustRegister(StoreDiskError)
	prometheus.MustRegister(StoreEpoch)
	prometheus.MustRegister(CompactionsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
