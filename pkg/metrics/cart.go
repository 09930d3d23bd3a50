package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics records sync and merge activity for the cart engine.
type CartMetrics struct {
	syncDuration *prometheus.HistogramVec
	syncSuccess  *prometheus.CounterVec
	syncFailure  *prometheus.CounterVec
	merges       *prometheus.CounterVec
	feedStale    prometheus.Counter
	feedIgnored  prometheus.Counter
	mismatches   prometheus.Counter
	sessions     prometheus.Gauge
}

// NewCartMetrics registers the cart engine metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	syncDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_sync_duration_seconds",
		Help:    "Duration of cart sync flushes in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"trigger"})
	syncSuccess := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_sync_success",
		Help: "Successful cart sync flushes.",
	}, []string{"trigger"})
	syncFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_sync_failure",
		Help: "Cart sync flushes that exhausted their retries.",
	}, []string{"trigger"})
	merges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_merges",
		Help: "Cart merges by source.",
	}, []string{"source"})
	feedStale := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_feed_stale_events",
		Help: "Change feed events discarded because the session already saw them.",
	})
	feedIgnored := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_feed_ignored_events",
		Help: "Change feed events for users with no live session on this instance.",
	})
	mismatches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_verification_mismatches",
		Help: "Post-sync verification reads that diverged from local state.",
	})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_active_sessions",
		Help: "Device sessions currently held in memory.",
	})
	reg.MustRegister(syncDuration, syncSuccess, syncFailure, merges, feedStale, feedIgnored, mismatches, sessions)
	return &CartMetrics{
		syncDuration: syncDuration,
		syncSuccess:  syncSuccess,
		syncFailure:  syncFailure,
		merges:       merges,
		feedStale:    feedStale,
		feedIgnored:  feedIgnored,
		mismatches:   mismatches,
		sessions:     sessions,
	}
}

// ObserveSyncDuration records how long a flush to the cart service took.
func (c *CartMetrics) ObserveSyncDuration(trigger string, duration time.Duration) {
	if c == nil || c.syncDuration == nil {
		return
	}
	c.syncDuration.WithLabelValues(normalizeLabel(trigger)).Observe(duration.Seconds())
}

// IncSyncSuccess increments the success counter for the given trigger.
func (c *CartMetrics) IncSyncSuccess(trigger string) {
	if c == nil || c.syncSuccess == nil {
		return
	}
	c.syncSuccess.WithLabelValues(normalizeLabel(trigger)).Inc()
}

// IncSyncFailure increments the failure counter for the given trigger.
func (c *CartMetrics) IncSyncFailure(trigger string) {
	if c == nil || c.syncFailure == nil {
		return
	}
	c.syncFailure.WithLabelValues(normalizeLabel(trigger)).Inc()
}

// IncMerge increments the merge counter for the given source.
func (c *CartMetrics) IncMerge(source string) {
	if c == nil || c.merges == nil {
		return
	}
	c.merges.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncFeedStale counts a change feed event dropped as already seen.
func (c *CartMetrics) IncFeedStale() {
	if c == nil || c.feedStale == nil {
		return
	}
	c.feedStale.Inc()
}

// IncFeedIgnored counts a change feed event with no session to deliver to.
func (c *CartMetrics) IncFeedIgnored() {
	if c == nil || c.feedIgnored == nil {
		return
	}
	c.feedIgnored.Inc()
}

// IncVerificationMismatch counts a divergence caught by the delayed read-back.
func (c *CartMetrics) IncVerificationMismatch() {
	if c == nil || c.mismatches == nil {
		return
	}
	c.mismatches.Inc()
}

// IncActiveSessions bumps the live session gauge.
func (c *CartMetrics) IncActiveSessions() {
	if c == nil || c.sessions == nil {
		return
	}
	c.sessions.Inc()
}

// DecActiveSessions lowers the live session gauge.
func (c *CartMetrics) DecActiveSessions() {
	if c == nil || c.sessions == nil {
		return
	}
	c.sessions.Dec()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
