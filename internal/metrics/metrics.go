// Package metrics holds the Prometheus collectors shared by the services.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fraud_ledger"

// Metrics is the set of collectors for one process.
type Metrics struct {
	transactions       *prometheus.CounterVec
	stageFailures      *prometheus.CounterVec
	submissionDuration prometheus.Histogram
	ledgerReads        prometheus.Counter
	ledgerReadFailures prometheus.Counter
	reconcileDuration  prometheus.Histogram
	ingestMessages     *prometheus.CounterVec
	scoring            *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
	registry           prometheus.Registerer
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_recorded_total",
			Help:      "transactions through the write path by outcome",
		}, []string{"outcome"}),
		stageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_stage_failures_total",
			Help:      "write path failures by stage",
		}, []string{"stage"}),
		submissionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_submission_duration_seconds",
			Help:      "time a submission held the serialization point",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		ledgerReads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_entries_read_total",
			Help:      "ledger entries fetched during reconciliation",
		}),
		ledgerReadFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_read_failures_total",
			Help:      "reconciliations aborted by a failed read",
		}),
		reconcileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "full ledger replay time",
			Buckets:   prometheus.DefBuckets,
		}),
		ingestMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_messages_total",
			Help:      "inbound transaction messages by result",
		}, []string{"result"}),
		scoring: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_requests_total",
			Help:      "scoring oracle calls by result",
		}, []string{"result"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_cache_lookups_total",
			Help:      "aggregate cache lookups by result",
		}, []string{"result"}),
	}
}

// RegisterQueueDepth exposes the submission backlog as a gauge.
func (m *Metrics) RegisterQueueDepth(depth func() int) {
	if m == nil {
		return
	}
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "submission_queue_depth",
		Help:      "submissions waiting for the serialization point",
	}, func() float64 { return float64(depth()) })
}

func (m *Metrics) TransactionRecorded(outcome string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveSubmission(d time.Duration) {
	if m == nil {
		return
	}
	m.submissionDuration.Observe(d.Seconds())
}

func (m *Metrics) LedgerEntryRead() {
	if m == nil {
		return
	}
	m.ledgerReads.Inc()
}

func (m *Metrics) LedgerReadFailed() {
	if m == nil {
		return
	}
	m.ledgerReadFailures.Inc()
}

func (m *Metrics) ObserveReconcile(d time.Duration) {
	if m == nil {
		return
	}
	m.reconcileDuration.Observe(d.Seconds())
}

func (m *Metrics) IngestMessage(result string) {
	if m == nil {
		return
	}
	m.ingestMessages.WithLabelValues(result).Inc()
}

func (m *Metrics) ScoringRequest(result string) {
	if m == nil {
		return
	}
	m.scoring.WithLabelValues(result).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
