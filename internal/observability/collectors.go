package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valter-silva-au/leadline/pkg/models"
)

// Collectors holds the Prometheus metrics for consolidation runs. It is
// registered on its own registry so several instances can coexist in tests.
type Collectors struct {
	registry *prometheus.Registry

	consolidations *prometheus.CounterVec
	fetchFailures  *prometheus.CounterVec
	duration       prometheus.Histogram
	timelineEvents *prometheus.GaugeVec
	cleanups       prometheus.Counter
}

// NewCollectors creates and registers the leadline metrics.
func NewCollectors() *Collectors {
	c := &Collectors{registry: prometheus.NewRegistry()}

	c.consolidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadline",
		Name:      "consolidations_total",
		Help:      "Consolidation runs by final status",
	}, []string{"status"})
	c.fetchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "leadline",
		Name:      "channel_fetch_failures_total",
		Help:      "Raw-record fetches that failed, by channel",
	}, []string{"channel"})
	c.duration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "leadline",
		Name:      "consolidation_duration_seconds",
		Help:      "Time spent in one consolidation run",
		Buckets:   prometheus.DefBuckets,
	})
	c.timelineEvents = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "leadline",
		Name:      "timeline_events",
		Help:      "Events by type in the most recently consolidated timeline",
	}, []string{"type"})
	c.cleanups = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "leadline",
		Name:      "storage_cleanups_total",
		Help:      "Retention cleanup passes run",
	})

	c.registry.MustRegister(
		c.consolidations, c.fetchFailures, c.duration, c.timelineEvents, c.cleanups,
	)
	return c
}

// ObserveConsolidation records one finished run.
func (c *Collectors) ObserveConsolidation(status models.ConsolidationStatus, elapsed time.Duration, counts models.TimelineCounts) {
	c.consolidations.WithLabelValues(string(status)).Inc()
	c.duration.Observe(elapsed.Seconds())
	if status != models.StatusProcessed {
		return
	}
	c.timelineEvents.WithLabelValues(string(models.EventMessagePack)).Set(float64(counts.MessagePacks))
	c.timelineEvents.WithLabelValues(string(models.EventCall)).Set(float64(counts.Calls))
	c.timelineEvents.WithLabelValues(string(models.EventEmail)).Set(float64(counts.Emails))
	c.timelineEvents.WithLabelValues(string(models.EventSubjectRecord)).Set(float64(counts.SubjectRecords))
}

// ChannelFetchFailed counts one failed fetch for channel.
func (c *Collectors) ChannelFetchFailed(channel models.Channel) {
	c.fetchFailures.WithLabelValues(string(channel)).Inc()
}

// CleanupRan counts one retention pass.
func (c *Collectors) CleanupRan() {
	c.cleanups.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}
