// Package badger is a local append-only ledger backed by Badger. It stands in
// for the external network in development and tests and keeps the same
// 1-based, gap-free indexing.
package badger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/ledger"
)

var (
	countKey    = []byte("meta/count")
	entryPrefix = []byte("entry/")
)

const entryValueLen = 32 + 1 + 32

// Ledger is an embedded append-only ledger.
type Ledger struct {
	db  *badger.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// Open opens the ledger in dataDir, or in memory when dataDir is empty.
func Open(dataDir string, log zerolog.Logger) (*Ledger, error) {
	log = log.With().Str("component", "badger_ledger").Logger()

	var opts badger.Options
	if dataDir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
			return nil, fmt.Errorf("Open: creating data dir: %w", err)
		}
		opts = badger.DefaultOptions(dataDir)
	}
	opts = opts.WithLogger(&badgerLogger{log: log}).WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("Open: opening badger: %w", err)
	}
	return &Ledger{db: db, log: log}, nil
}

// Submit appends the entry and returns once it is committed.
func (l *Ledger) Submit(ctx context.Context, dataHash [32]byte, isFraudulent bool, companyID [32]byte) (domain.LedgerReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerReceipt{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	value := encodeEntry(dataHash, isFraudulent, companyID)
	var index uint64
	err := l.db.Update(func(txn *badger.Txn) error {
		count, err := readCount(txn)
		if err != nil {
			return err
		}
		index = count + 1
		if err := txn.Set(entryKey(index), value); err != nil {
			return err
		}
		return txn.Set(countKey, uint64Bytes(index))
	})
	if err != nil {
		return domain.LedgerReceipt{}, fmt.Errorf("Submit: %w", err)
	}

	sum := sha256.Sum256(append(uint64Bytes(index), value...))
	return domain.LedgerReceipt{
		ConfirmationID: "0x" + hex.EncodeToString(sum[:]),
		Success:        true,
		LedgerIndex:    index,
	}, nil
}

// EntryCount returns the number of committed entries.
func (l *Ledger) EntryCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		count, err = readCount(txn)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("EntryCount: %w", err)
	}
	return count, nil
}

// Entry returns the entry at index (1-based).
func (l *Ledger) Entry(ctx context.Context, index uint64) (domain.LedgerEntry, error) {
	if index == 0 {
		return domain.LedgerEntry{}, fmt.Errorf("Entry %d: %w", index, ledger.ErrIndexOutOfRange)
	}
	var entry domain.LedgerEntry
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(index))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ledger.ErrIndexOutOfRange
			}
			return err
		}
		return item.Value(func(val []byte) error {
			entry, err = decodeEntry(index, val)
			return err
		})
	})
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("Entry %d: %w", index, err)
	}
	return entry, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func readCount(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get(countKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var count uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt entry count (%d bytes)", len(val))
		}
		count = binary.BigEndian.Uint64(val)
		return nil
	})
	return count, err
}

func entryKey(index uint64) []byte {
	return append(append([]byte{}, entryPrefix...), uint64Bytes(index)...)
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func encodeEntry(dataHash [32]byte, isFraudulent bool, companyID [32]byte) []byte {
	out := make([]byte, 0, entryValueLen)
	out = append(out, dataHash[:]...)
	if isFraudulent {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return append(out, companyID[:]...)
}

func decodeEntry(index uint64, val []byte) (domain.LedgerEntry, error) {
	if len(val) != entryValueLen {
		return domain.LedgerEntry{}, fmt.Errorf("corrupt entry (%d bytes)", len(val))
	}
	entry := domain.LedgerEntry{ID: index, IsFraudulent: val[32] == 1}
	copy(entry.DataHash[:], val[:32])
	copy(entry.CompanyID[:], val[33:])
	return entry, nil
}

var _ ledger.Ledger = (*Ledger)(nil)
