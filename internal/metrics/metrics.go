// Package metrics exposes Prometheus instruments for the reconciliation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "swipe"

// Metrics holds every instrument. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Sync metrics
	SyncResults   *prometheus.CounterVec
	SyncDuration  *prometheus.HistogramVec
	PositionReads *prometheus.CounterVec
	DriftDetected *prometheus.CounterVec

	// Contract reads
	RPCCallLatency *prometheus.HistogramVec

	// Tasks and stats
	TaskConfirmations *prometheus.CounterVec
	ClaimsRecorded    prometheus.Counter
	RecountMismatches *prometheus.CounterVec

	// Feed and stream
	FeedEvents        *prometheus.CounterVec
	PriceAppends      prometheus.Counter
	StreamSubscribers prometheus.Gauge
}

// New registers all instruments on reg (prometheus.DefaultRegisterer in binaries).
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SyncResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "results_total",
			Help:      "Single-prediction sync outcomes by status and contract version",
		}, []string{"status", "version"}),
		SyncDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of single-prediction syncs",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"version"}),
		PositionReads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "position_reads_total",
			Help:      "Participant position reads by outcome",
		}, []string{"outcome"}),
		DriftDetected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "drift_checks_total",
			Help:      "Scheduled drift checks by result",
		}, []string{"result"}),
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "call_duration_seconds",
			Help:      "Contract read latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		TaskConfirmations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "confirmations_total",
			Help:      "Task confirmations by kind and whether they were duplicates",
		}, []string{"kind", "duplicate"}),
		ClaimsRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "claims_recorded_total",
			Help:      "Reward claims recorded into the aggregates",
		}),
		RecountMismatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "recount_mismatches_total",
			Help:      "Achievement recounts that found counter or set drift",
		}, []string{"task_type"}),
		FeedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_total",
			Help:      "Stake feed events by type",
		}, []string{"type"}),
		PriceAppends: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prices",
			Name:      "appends_total",
			Help:      "Price history points appended",
		}),
		StreamSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "prices",
			Name:      "stream_subscribers",
			Help:      "Connected price stream clients",
		}),
	}
}

func (m *Metrics) ObserveSync(status, version string, seconds float64) {
	if m == nil {
		return
	}
	m.SyncResults.WithLabelValues(status, version).Inc()
	m.SyncDuration.WithLabelValues(version).Observe(seconds)
}

func (m *Metrics) PositionRead(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.PositionReads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DriftCheck(result string) {
	if m == nil {
		return
	}
	m.DriftDetected.WithLabelValues(result).Inc()
}

func (m *Metrics) RPCCall(method string, seconds float64) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

func (m *Metrics) TaskConfirmed(kind string, duplicate bool) {
	if m == nil {
		return
	}
	dup := "false"
	if duplicate {
		dup = "true"
	}
	m.TaskConfirmations.WithLabelValues(kind, dup).Inc()
}

func (m *Metrics) ClaimRecorded() {
	if m == nil {
		return
	}
	m.ClaimsRecorded.Inc()
}

func (m *Metrics) RecountMismatch(taskType string) {
	if m == nil {
		return
	}
	m.RecountMismatches.WithLabelValues(taskType).Inc()
}

func (m *Metrics) FeedEvent(eventType string) {
	if m == nil {
		return
	}
	m.FeedEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) PriceAppended() {
	if m == nil {
		return
	}
	m.PriceAppends.Inc()
}

func (m *Metrics) StreamSubscribed(delta float64) {
	if m == nil {
		return
	}
	m.StreamSubscribers.Add(delta)
}
