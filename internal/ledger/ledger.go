// Package ledger defines the external append-only ledger the write path
// submits to and the reconciler replays.
package ledger

import (
	"context"
	"fmt"

	"github.com/dvloznov/fraud-ledger/internal/domain"
)

// ErrIndexOutOfRange is returned by Entry for indexes outside 1..EntryCount.
var ErrIndexOutOfRange = fmt.Errorf("ledger index out of range: %w", domain.ErrNotFound)

// Submitter appends one compact entry and blocks until the ledger resolves it.
type Submitter interface {
	Submit(ctx context.Context, dataHash [32]byte, isFraudulent bool, companyID [32]byte) (domain.LedgerReceipt, error)
}

// Reader reads the ledger. Entries are 1-indexed and immutable.
type Reader interface {
	EntryCount(ctx context.Context) (uint64, error)
	Entry(ctx context.Context, index uint64) (domain.LedgerEntry, error)
}

// Ledger is the full external ledger contract.
type Ledger interface {
	Submitter
	Reader
	Close() error
}
