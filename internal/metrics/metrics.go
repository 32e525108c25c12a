package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// defaultRegistry is the default Prometheus registry
	defaultRegistry = prometheus.DefaultRegisterer
)

// Metrics holds all engine metrics.
type Metrics struct {
	storageOperationsTotal *prometheus.CounterVec
	storageOperationErrors *prometheus.CounterVec
	encryptionOperations   *prometheus.CounterVec
	encryptionDuration     *prometheus.HistogramVec
	encryptionErrors       *prometheus.CounterVec
	encryptionBytes        *prometheus.CounterVec
	keyUpdatesTotal        *prometheus.CounterVec
	decryptAllFilesTotal   *prometheus.CounterVec
	decryptAllDuration     prometheus.Histogram
	goroutines             prometheus.Gauge
	memoryAllocBytes       prometheus.Gauge
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(defaultRegistry)
}

// NewMetricsWithRegistry creates a new metrics instance with a custom registry (for testing).
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		storageOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation"},
		),
		storageOperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_operation_errors_total",
				Help: "Total number of storage operation errors",
			},
			[]string{"operation"},
		),
		encryptionOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "encryption_operations_total",
				Help: "Total number of encryption/decryption operations",
			},
			[]string{"operation"}, // "encrypt" or "decrypt"
		),
		encryptionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "encryption_duration_seconds",
				Help:    "Encryption/decryption operation duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation"},
		),
		encryptionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "encryption_errors_total",
				Help: "Total number of encryption/decryption errors",
			},
			[]string{"operation", "error_type"},
		),
		encryptionBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "encryption_bytes_total",
				Help: "Total bytes encrypted/decrypted",
			},
			[]string{"operation"},
		),
		keyUpdatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "key_updates_total",
				Help: "Total number of per-file key updates after share changes",
			},
			[]string{"result"}, // "ok" or "error"
		),
		decryptAllFilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decrypt_all_files_total",
				Help: "Total number of files seen by bulk decryption runs",
			},
			[]string{"result"}, // "decrypted", "skipped" or "failed"
		),
		decryptAllDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "decrypt_all_duration_seconds",
				Help:    "Duration of bulk decryption runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
			},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
	}
}

// RecordStorageOperation records a storage operation metric.
func (m *Metrics) RecordStorageOperation(operation string) {
	m.storageOperationsTotal.WithLabelValues(operation).Inc()
}

// RecordStorageError records a storage operation error.
func (m *Metrics) RecordStorageError(operation string) {
	m.storageOperationErrors.WithLabelValues(operation).Inc()
}

// RecordEncryptionOperation records an encryption operation metric.
func (m *Metrics) RecordEncryptionOperation(operation string, duration time.Duration, bytes int64) {
	m.encryptionOperations.WithLabelValues(operation).Inc()
	m.encryptionDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.encryptionBytes.WithLabelValues(operation).Add(float64(bytes))
}

// RecordEncryptionError records an encryption operation error.
func (m *Metrics) RecordEncryptionError(operation, errorType string) {
	m.encryptionErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordKeyUpdate records the outcome of one per-file key update.
func (m *Metrics) RecordKeyUpdate(result string) {
	m.keyUpdatesTotal.WithLabelValues(result).Inc()
}

// RecordDecryptAllFile records the outcome of one file in a bulk run.
func (m *Metrics) RecordDecryptAllFile(result string) {
	m.decryptAllFilesTotal.WithLabelValues(result).Inc()
}

// RecordDecryptAllDuration records the duration of a bulk run.
func (m *Metrics) RecordDecryptAllDuration(duration time.Duration) {
	m.decryptAllDuration.Observe(duration.Seconds())
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
}

// StartSystemMetricsCollector starts a goroutine that periodically updates system metrics.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
