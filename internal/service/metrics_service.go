package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSnapshot is a compact view of the counters for the admin summary endpoint.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	IncidentsCreated         uint64    `json:"incidents_created"`
	Registrations            uint64    `json:"registrations"`
	NotificationsSent        uint64    `json:"notifications_sent"`
	NotificationsFailed      uint64    `json:"notifications_failed"`
	AttachmentStorageBytes   int64     `json:"attachment_storage_bytes"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation for the portal.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	logins           *prometheus.CounterVec
	registrations    prometheus.Counter
	approvals        *prometheus.CounterVec
	incidentsCreated *prometheus.CounterVec
	statusChanges    *prometheus.CounterVec
	notesAdded       prometheus.Counter
	importRows       *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	attachmentBytes  *prometheus.CounterVec
	capacityRejects  prometheus.Counter
	attachmentUsage  prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	incidentCount        uint64
	registrationCount    uint64
	notifySentCount      uint64
	notifyFailedCount    uint64
	attachmentUsageBytes int64
}

// NewMetricsService registers the Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"result"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_registrations_total",
			Help: "Self-service registrations awaiting approval",
		}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_user_reviews_total",
			Help: "Pending account reviews by decision",
		}, []string{"decision"}),
		incidentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_incidents_created_total",
			Help: "Incidents created by source",
		}, []string{"source"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_incident_status_changes_total",
			Help: "Incident status transitions by target status",
		}, []string{"status"}),
		notesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_incident_notes_total",
			Help: "Notes appended to incidents",
		}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_import_rows_total",
			Help: "Bulk import rows by outcome",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_notifications_total",
			Help: "Outbound notifications by kind and result",
		}, []string{"kind", "result"}),
		attachmentBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_attachment_bytes_total",
			Help: "Bytes of attachments stored by type",
		}, []string{"type"}),
		capacityRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_attachment_capacity_rejections_total",
			Help: "Attachment writes refused because storage is full",
		}),
		attachmentUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_attachment_storage_bytes",
			Help: "Bytes currently held by the attachment store",
		}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal, m.cacheLatency, m.cacheWrite,
		m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.logins, m.registrations, m.approvals, m.incidentsCreated, m.statusChanges, m.notesAdded,
		m.importRows, m.notifications, m.attachmentBytes, m.capacityRejects,
		m.attachmentUsage, goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordLogin counts a login attempt; result is "success" or an error code.
func (m *MetricsService) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// RecordRegistration counts a self-service registration.
func (m *MetricsService) RecordRegistration() {
	if m == nil {
		return
	}
	m.registrations.Inc()
	atomic.AddUint64(&m.registrationCount, 1)
}

// RecordReview counts an approval decision.
func (m *MetricsService) RecordReview(accepted bool) {
	if m == nil {
		return
	}
	decision := "rejected"
	if accepted {
		decision = "approved"
	}
	m.approvals.WithLabelValues(decision).Inc()
}

// RecordIncidentCreated counts a new incident; source is "form" or "import".
func (m *MetricsService) RecordIncidentCreated(source string) {
	if m == nil {
		return
	}
	m.incidentsCreated.WithLabelValues(source).Inc()
	atomic.AddUint64(&m.incidentCount, 1)
}

// RecordStatusChange counts a status update.
func (m *MetricsService) RecordStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

// RecordNote counts an appended note.
func (m *MetricsService) RecordNote() {
	if m == nil {
		return
	}
	m.notesAdded.Inc()
}

// RecordImport counts imported and skipped rows.
func (m *MetricsService) RecordImport(imported, skipped int) {
	if m == nil {
		return
	}
	m.importRows.WithLabelValues("imported").Add(float64(imported))
	m.importRows.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordNotification counts the final outcome of a notification job.
func (m *MetricsService) RecordNotification(kind string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
		atomic.AddUint64(&m.notifyFailedCount, 1)
	} else {
		atomic.AddUint64(&m.notifySentCount, 1)
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

// RecordAttachment counts stored attachment bytes.
func (m *MetricsService) RecordAttachment(kind string, size int64) {
	if m == nil {
		return
	}
	m.attachmentBytes.WithLabelValues(kind).Add(float64(size))
}

// RecordCapacityRejection counts writes refused for lack of space.
func (m *MetricsService) RecordCapacityRejection() {
	if m == nil {
		return
	}
	m.capacityRejects.Inc()
}

// SetAttachmentStorage records the bytes currently on disk.
func (m *MetricsService) SetAttachmentStorage(bytes int64) {
	if m == nil {
		return
	}
	atomic.StoreInt64(&m.attachmentUsageBytes, bytes)
	m.attachmentUsage.Set(float64(bytes))
}

// Snapshot returns aggregated metrics for the admin summary endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if hits+misses > 0 {
		cacheRatio = float64(hits) / float64(hits+misses)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            cacheRatio,
		IncidentsCreated:         atomic.LoadUint64(&m.incidentCount),
		Registrations:            atomic.LoadUint64(&m.registrationCount),
		NotificationsSent:        atomic.LoadUint64(&m.notifySentCount),
		NotificationsFailed:      atomic.LoadUint64(&m.notifyFailedCount),
		AttachmentStorageBytes:   atomic.LoadInt64(&m.attachmentUsageBytes),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
