package badger

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/fraud-ledger/internal/ledger"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedger_AppendAndRead(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	count, err := l.EntryCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	var hash, company [32]byte
	hash[0] = 0xaa
	copy(company[:], "ACME")

	r1, err := l.Submit(ctx, hash, true, company)
	require.NoError(t, err)
	assert.True(t, r1.Success)
	assert.Equal(t, uint64(1), r1.LedgerIndex)
	assert.Len(t, r1.ConfirmationID, 66)

	hash[0] = 0xbb
	r2, err := l.Submit(ctx, hash, false, company)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r2.LedgerIndex)
	assert.NotEqual(t, r1.ConfirmationID, r2.ConfirmationID)

	count, err = l.EntryCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	e1, err := l.Entry(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e1.ID)
	assert.Equal(t, byte(0xaa), e1.DataHash[0])
	assert.True(t, e1.IsFraudulent)
	assert.Equal(t, company, e1.CompanyID)

	e2, err := l.Entry(ctx, 2)
	require.NoError(t, err)
	assert.False(t, e2.IsFraudulent)
}

func TestLedger_OutOfRange(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	_, err := l.Entry(ctx, 0)
	assert.ErrorIs(t, err, ledger.ErrIndexOutOfRange)
	_, err = l.Entry(ctx, 1)
	assert.ErrorIs(t, err, ledger.ErrIndexOutOfRange)
}

func TestLedger_ConcurrentSubmitsAreGapFree(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	seen := make(chan uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var h [32]byte
			h[0] = byte(i)
			r, err := l.Submit(ctx, h, false, [32]byte{'X'})
			if assert.NoError(t, err) {
				seen <- r.LedgerIndex
			}
		}(i)
	}
	wg.Wait()
	close(seen)

	indexes := map[uint64]bool{}
	for idx := range seen {
		indexes[idx] = true
	}
	for i := uint64(1); i <= n; i++ {
		assert.True(t, indexes[i], "missing index %d", i)
	}
}

func TestLedger_SubmitHonoursCancelledContext(t *testing.T) {
	l := openTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Submit(ctx, [32]byte{}, false, [32]byte{'X'})
	assert.ErrorIs(t, err, context.Canceled)

	count, err := l.EntryCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
