package monitor

import (
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Metrics represents all the application metrics
type Metrics struct {
	// Platform metrics
	PlatformRequests *prometheus.CounterVec
	PlatformErrors   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec

	// Resolution metrics
	Resolutions         *prometheus.CounterVec
	ResolutionDuration  *prometheus.HistogramVec
	NegotiationAttempts *prometheus.CounterVec
	SkippedTiers        *prometheus.CounterVec
	CatalogPages        *prometheus.CounterVec

	// API server metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// System metrics
	Goroutines  prometheus.Gauge
	MemoryUsage prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PlatformRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "afreeca_dl_platform_requests_total",
				Help: "Total requests to platform APIs",
			},
			[]string{"platform", "endpoint"},
		),

		PlatformErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "afreeca_dl_platform_errors_total",
				Help: "Total errors from platform APIs",
			},
			[]string{"platform", "endpoint", "error_type"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "afreeca_dl_platform_request_duration_seconds",
				Help:    "Time spent waiting for platform APIs",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"platform", "endpoint"},
		),

		Resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "afreeca_dl_resolutions_total",
				Help: "Total resolutions by extractor and outcome",
			},
			[]string{"extractor", "outcome"},
		),

		ResolutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "afreeca_dl_resolution_duration_seconds",
				Help:    "Time spent resolving a URL",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"extractor"},
		),

		NegotiationAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "afreeca_dl_vod_negotiation_attempts_total",
				Help: "VOD view-info attempts by returned content rating flag",
			},
			[]string{"flag"},
		),

		SkippedTiers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "afreeca_dl_live_skipped_tiers_total",
				Help: "Live quality tiers skipped during stream assignment",
			},
			[]string{"quality", "reason"},
		),

		CatalogPages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "afreeca_dl_catalog_pages_total",
				Help: "Catalog pages fetched by category",
			},
			[]string{"category"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "afreeca_dl_http_requests_total",
				Help: "Total API server requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "afreeca_dl_http_request_duration_seconds",
				Help:    "API server request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		Goroutines: factory.NewGauge(prometheus.GaugeOpts{
			Name: "afreeca_dl_goroutines",
			Help: "Number of goroutines",
		}),

		MemoryUsage: factory.NewGauge(prometheus.GaugeOpts{
			Name: "afreeca_dl_memory_usage_bytes",
			Help: "Memory usage in bytes",
		}),
	}
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns the process wide metrics registered with the default
// Prometheus registerer
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// RecordPlatformRequest records a platform API request
func (m *Metrics) RecordPlatformRequest(platform, endpoint string, duration time.Duration) {
	m.PlatformRequests.WithLabelValues(platform, endpoint).Inc()
	m.RequestDuration.WithLabelValues(platform, endpoint).Observe(duration.Seconds())
}

// RecordPlatformError records a platform API error
func (m *Metrics) RecordPlatformError(platform, endpoint, errorType string) {
	m.PlatformErrors.WithLabelValues(platform, endpoint, errorType).Inc()
}

// RecordResolution records the outcome of one extractor call
func (m *Metrics) RecordResolution(extractor, outcome string, duration time.Duration) {
	m.Resolutions.WithLabelValues(extractor, outcome).Inc()
	m.ResolutionDuration.WithLabelValues(extractor).Observe(duration.Seconds())
}

// RecordNegotiationAttempt records one VOD view-info attempt
func (m *Metrics) RecordNegotiationAttempt(flag string) {
	m.NegotiationAttempts.WithLabelValues(flag).Inc()
}

// RecordSkippedTier records a live quality tier that produced no source
func (m *Metrics) RecordSkippedTier(quality, reason string) {
	m.SkippedTiers.WithLabelValues(quality, reason).Inc()
}

// RecordCatalogPage records one fetched catalog page
func (m *Metrics) RecordCatalogPage(category string) {
	m.CatalogPages.WithLabelValues(category).Inc()
}

// Monitor represents the monitoring system
type Monitor struct {
	metrics  *Metrics
	logger   zerolog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	interval time.Duration
}

// NewMonitor creates a new monitor instance
func NewMonitor(metrics *Metrics, logger zerolog.Logger) *Monitor {
	return &Monitor{
		metrics:  metrics,
		logger:   logger.With().Str("component", "monitor").Logger(),
		stopChan: make(chan struct{}),
		interval: 10 * time.Second,
	}
}

// Start starts the monitoring system
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.collectSystemMetrics()

	m.logger.Info().Msg("Monitoring system started")
}

// Stop stops the monitoring system. Calls after the first are no-ops.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
		m.wg.Wait()

		m.logger.Info().Msg("Monitoring system stopped")
	})
}

// collectSystemMetrics collects system metrics periodically
func (m *Monitor) collectSystemMetrics() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			m.metrics.MemoryUsage.Set(float64(memStats.Alloc))

		case <-m.stopChan:
			return
		}
	}
}

// GetMetrics returns all metrics
func (m *Monitor) GetMetrics() *Metrics {
	return m.metrics
}

// HealthCheck performs a health check
func (m *Monitor) HealthCheck() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hostname, _ := os.Hostname()

	return map[string]interface{}{
		"hostname":     hostname,
		"goroutines":   runtime.NumGoroutine(),
		"memory_usage": memStats.Alloc,
		"memory_sys":   memStats.Sys,
		"gc_cycles":    memStats.NumGC,
	}
}

// Middleware records API server requests
func (m *Monitor) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.metrics.HTTPRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.metrics.HTTPDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
