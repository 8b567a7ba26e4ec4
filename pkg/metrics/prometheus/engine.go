package prometheus

import (
	"time"

	"github.com/nexusd/nexusd/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterEngineMetricsConstructor(func() metrics.EngineMetrics {
		return newEngineMetrics()
	})
}

// engineMetrics is the Prometheus implementation of metrics.EngineMetrics.
type engineMetrics struct {
	ioTotal          *prometheus.CounterVec
	ioFailedTotal    *prometheus.CounterVec
	ioBytesTotal     *prometheus.CounterVec
	ioDuration       *prometheus.HistogramVec
	childState       *prometheus.GaugeVec
	faultsTotal      *prometheus.CounterVec
	openChildren     *prometheus.GaugeVec
	rebuildProgress  *prometheus.GaugeVec
	rebuildOutcomes  *prometheus.CounterVec
}

func newEngineMetrics() *engineMetrics {
	reg := metrics.GetRegistry()

	return &engineMetrics{
		ioTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexusd_child_io_total",
				Help: "Total number of I/O operations fanned out to a child.",
			},
			[]string{"nexus", "child", "op"},
		),
		ioFailedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexusd_child_io_failed_total",
				Help: "Total number of failed I/O operations on a child.",
			},
			[]string{"nexus", "child", "op"},
		),
		ioBytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexusd_child_io_bytes_total",
				Help: "Total bytes transferred to/from a child.",
			},
			[]string{"nexus", "child", "op"},
		),
		ioDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexusd_child_io_duration_seconds",
				Help:    "Latency of child I/O operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"nexus", "child", "op"},
		),
		childState: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nexusd_child_state",
				Help: "Current state of a child (1 for the active state, 0 otherwise).",
			},
			[]string{"nexus", "child", "state"},
		),
		faultsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexusd_child_faults_total",
				Help: "Total number of times a child was marked Faulted, by reason.",
			},
			[]string{"nexus", "child", "reason"},
		),
		openChildren: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nexusd_nexus_open_children",
				Help: "Current count of Open children for a nexus.",
			},
			[]string{"nexus"},
		),
		rebuildProgress: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nexusd_rebuild_progress_ratio",
				Help: "Fraction of blocks copied by the active rebuild job for a destination child.",
			},
			[]string{"nexus", "dest_child"},
		),
		rebuildOutcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexusd_rebuild_outcomes_total",
				Help: "Total number of rebuild jobs reaching a terminal outcome.",
			},
			[]string{"nexus", "dest_child", "outcome"},
		),
	}
}

func (m *engineMetrics) RecordIO(nexusName, childName, op string, bytes int64, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.ioTotal.WithLabelValues(nexusName, childName, op).Inc()
	m.ioBytesTotal.WithLabelValues(nexusName, childName, op).Add(float64(bytes))
	m.ioDuration.WithLabelValues(nexusName, childName, op).Observe(duration.Seconds())
	if failed {
		m.ioFailedTotal.WithLabelValues(nexusName, childName, op).Inc()
	}
}

func (m *engineMetrics) RecordChildState(nexusName, childName, state string) {
	if m == nil {
		return
	}
	m.childState.WithLabelValues(nexusName, childName, state).Set(1)
}

func (m *engineMetrics) RecordFault(nexusName, childName, reason string) {
	if m == nil {
		return
	}
	m.faultsTotal.WithLabelValues(nexusName, childName, reason).Inc()
}

func (m *engineMetrics) SetOpenChildren(nexusName string, count int) {
	if m == nil {
		return
	}
	m.openChildren.WithLabelValues(nexusName).Set(float64(count))
}

func (m *engineMetrics) RecordRebuildProgress(nexusName, destChild string, fraction float64) {
	if m == nil {
		return
	}
	m.rebuildProgress.WithLabelValues(nexusName, destChild).Set(fraction)
}

func (m *engineMetrics) RecordRebuildOutcome(nexusName, destChild, outcome string) {
	if m == nil {
		return
	}
	m.rebuildOutcomes.WithLabelValues(nexusName, destChild, outcome).Inc()
}
