package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/jobs"
	"github.com/dvloznov/fraud-ledger/internal/metrics"
	"github.com/dvloznov/fraud-ledger/internal/pipeline"
)

// MockGate is a mock implementation of pipeline.SubmissionGate for testing.
type MockGate struct {
	AcquireFunc func(ctx context.Context) (func(context.Context) error, error)
}

func (m *MockGate) Acquire(ctx context.Context) (func(context.Context) error, error) {
	return m.AcquireFunc(ctx)
}

func testJob(t *testing.T, fraud bool) *jobs.SubmissionJob {
	t.Helper()
	var hash domain.Fingerprint
	hash[0] = 0xab
	var id [32]byte
	copy(id[:], "ACME")
	return jobs.NewSubmissionJob("rec-1", "ACME", hash, id, fraud)
}

func TestSubmissionHandler_PassesPayload(t *testing.T) {
	var gotHash, gotID [32]byte
	var gotFraud bool
	sub := &MockSubmitter{
		SubmitFunc: func(ctx context.Context, dataHash [32]byte, isFraudulent bool, companyID [32]byte) (domain.LedgerReceipt, error) {
			gotHash, gotFraud, gotID = dataHash, isFraudulent, companyID
			return domain.LedgerReceipt{ConfirmationID: "0x2", Success: true, LedgerIndex: 7}, nil
		},
	}

	reg := prometheus.NewRegistry()
	handler := pipeline.NewSubmissionHandler(sub, nil, metrics.New(reg), zerolog.Nop())
	receipt, err := handler(context.Background(), testJob(t, true))
	require.NoError(t, err)

	assert.Equal(t, uint64(7), receipt.LedgerIndex)
	assert.Equal(t, byte(0xab), gotHash[0])
	assert.True(t, gotFraud)
	assert.Equal(t, []byte("ACME"), gotID[:4])
}

func TestSubmissionHandler_HoldsGate(t *testing.T) {
	var events []string
	gate := &MockGate{
		AcquireFunc: func(ctx context.Context) (func(context.Context) error, error) {
			events = append(events, "acquire")
			return func(context.Context) error {
				events = append(events, "release")
				return nil
			}, nil
		},
	}
	sub := &MockSubmitter{
		SubmitFunc: func(ctx context.Context, dataHash [32]byte, isFraudulent bool, companyID [32]byte) (domain.LedgerReceipt, error) {
			events = append(events, "submit")
			return domain.LedgerReceipt{Success: true}, nil
		},
	}

	_, err := pipeline.NewSubmissionHandler(sub, gate, nil, zerolog.Nop())(context.Background(), testJob(t, false))
	require.NoError(t, err)
	assert.Equal(t, []string{"acquire", "submit", "release"}, events)
}

func TestSubmissionHandler_GateFailureSkipsSubmit(t *testing.T) {
	gate := &MockGate{
		AcquireFunc: func(ctx context.Context) (func(context.Context) error, error) {
			return nil, errors.New("lock not obtained")
		},
	}
	sub := &MockSubmitter{
		SubmitFunc: func(ctx context.Context, dataHash [32]byte, isFraudulent bool, companyID [32]byte) (domain.LedgerReceipt, error) {
			t.Fatal("submit must not run without the gate")
			return domain.LedgerReceipt{}, nil
		},
	}

	_, err := pipeline.NewSubmissionHandler(sub, gate, nil, zerolog.Nop())(context.Background(), testJob(t, false))
	assert.ErrorContains(t, err, "lock not obtained")
}

func TestSubmissionHandler_BadPayload(t *testing.T) {
	sub := &MockSubmitter{
		SubmitFunc: func(ctx context.Context, dataHash [32]byte, isFraudulent bool, companyID [32]byte) (domain.LedgerReceipt, error) {
			t.Fatal("submit must not run for a corrupt job")
			return domain.LedgerReceipt{}, nil
		},
	}
	job := testJob(t, false)
	job.DataHash = "0xnothex"

	_, err := pipeline.NewSubmissionHandler(sub, nil, nil, zerolog.Nop())(context.Background(), job)
	assert.Error(t, err)
}
