package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TransactionRecorded("success")
	m.TransactionRecorded("success")
	m.StageFailed("persist")
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.ObserveSubmission(20 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transactions.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageFailures.WithLabelValues("persist")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))

	depth := 3
	m.RegisterQueueDepth(func() int { return depth })

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "fraud_ledger_submission_queue_depth" {
			found = true
			assert.Equal(t, 3.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TransactionRecorded("success")
		m.StageFailed("hash")
		m.ObserveSubmission(time.Second)
		m.LedgerEntryRead()
		m.LedgerReadFailed()
		m.ObserveReconcile(time.Second)
		m.IngestMessage("acked")
		m.ScoringRequest("ok")
		m.CacheLookup(true)
		m.RegisterQueueDepth(func() int { return 0 })
	})
}
