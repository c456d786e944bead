package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MediaMetrics counts filesystem effects of the product media lifecycle.
type MediaMetrics struct {
	ingested   *prometheus.CounterVec
	converted  prometheus.Counter
	deleted    prometheus.Counter
	failures   *prometheus.CounterVec
	traversals prometheus.Counter
	orphans    *prometheus.CounterVec
	migrated   *prometheus.CounterVec
	lockWait   prometheus.Histogram
}

// NewMediaMetrics registers the media metrics on the provided registerer.
func NewMediaMetrics(reg prometheus.Registerer) *MediaMetrics {
	if reg == nil {
		return &MediaMetrics{}
	}
	m := &MediaMetrics{
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_ingested_total",
			Help: "Uploaded images stored, by declared source format.",
		}, []string{"format"}),
		converted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "media_converted_total",
			Help: "Uploads re-encoded to the canonical format.",
		}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "media_deleted_total",
			Help: "Media files removed from storage.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_cleanup_failures_total",
			Help: "File deletions that failed, by operation.",
		}, []string{"operation"}),
		traversals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "media_traversal_rejections_total",
			Help: "Media references rejected for resolving outside the storage root.",
		}),
		orphans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_orphans_recorded_total",
			Help: "Undeletable files written to the orphan ledger, by reason.",
		}, []string{"reason"}),
		migrated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "media_migrated_total",
			Help: "Legacy media migration outcomes.",
		}, []string{"outcome"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "media_lock_wait_seconds",
			Help:    "Time spent waiting for a per-product lock.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.ingested, m.converted, m.deleted, m.failures, m.traversals, m.orphans, m.migrated, m.lockWait)
	return m
}

func (m *MediaMetrics) IncIngested(format string) {
	if m == nil || m.ingested == nil {
		return
	}
	m.ingested.WithLabelValues(normalizeLabel(format)).Inc()
}

func (m *MediaMetrics) IncConverted() {
	if m == nil || m.converted == nil {
		return
	}
	m.converted.Inc()
}

func (m *MediaMetrics) IncDeleted() {
	if m == nil || m.deleted == nil {
		return
	}
	m.deleted.Inc()
}

func (m *MediaMetrics) IncCleanupFailure(operation string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *MediaMetrics) IncTraversal() {
	if m == nil || m.traversals == nil {
		return
	}
	m.traversals.Inc()
}

func (m *MediaMetrics) IncOrphan(reason string) {
	if m == nil || m.orphans == nil {
		return
	}
	m.orphans.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *MediaMetrics) IncMigrated(outcome string) {
	if m == nil || m.migrated == nil {
		return
	}
	m.migrated.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *MediaMetrics) ObserveLockWait(d time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}
