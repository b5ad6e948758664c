// Package reconcile replays the ledger into a human-readable view.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/fraud-ledger/internal/directory"
	"github.com/dvloznov/fraud-ledger/internal/domain"
	"github.com/dvloznov/fraud-ledger/internal/idcodec"
	"github.com/dvloznov/fraud-ledger/internal/ledger"
	"github.com/dvloznov/fraud-ledger/internal/metrics"
)

const (
	// DefaultConcurrency bounds parallel entry fetches.
	DefaultConcurrency = 8
	// DefaultMaxEntries bounds the entry count a replay will allocate for.
	DefaultMaxEntries uint64 = 1 << 20
)

// Reconciler joins ledger entries against the address directory.
type Reconciler struct {
	reader      ledger.Reader
	dir         *directory.Directory
	concurrency int
	maxEntries  uint64
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithConcurrency sets how many entries are fetched at once.
func WithConcurrency(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithMaxEntries sets the largest entry count ReadLedger accepts.
func WithMaxEntries(n uint64) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.maxEntries = n
		}
	}
}

// WithMetrics records read counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// New creates a Reconciler. A nil directory resolves every sender to "N/A".
func New(reader ledger.Reader, dir *directory.Directory, log zerolog.Logger, opts ...Option) *Reconciler {
	if dir == nil {
		dir = directory.Empty()
	}
	r := &Reconciler{
		reader:      reader,
		dir:         dir,
		concurrency: DefaultConcurrency,
		maxEntries:  DefaultMaxEntries,
		log:         log.With().Str("component", "reconciler").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadLedger fetches entries 1..N, where N is the entry count at call time,
// and returns them ascending by id. Any failed fetch aborts the whole read
// with domain.ErrLedgerRead. Undecodable company ids become the
// InvalidCompanyID sentinel instead.
func (r *Reconciler) ReadLedger(ctx context.Context) ([]domain.ReconciledEntry, error) {
	start := time.Now()

	count, err := r.reader.EntryCount(ctx)
	if err != nil {
		r.metrics.LedgerReadFailed()
		return nil, fmt.Errorf("%w: entry count: %v", domain.ErrLedgerRead, err)
	}
	if count > r.maxEntries {
		r.metrics.LedgerReadFailed()
		return nil, fmt.Errorf("%w: entry count %d exceeds limit %d", domain.ErrLedgerRead, count, r.maxEntries)
	}

	entries := make([]domain.ReconciledEntry, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i := uint64(1); i <= count; i++ {
		index := i
		g.Go(func() error {
			entry, err := r.fetch(gctx, index)
			if err != nil {
				return err
			}
			entries[index-1] = entry
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.metrics.LedgerReadFailed()
		r.log.Error().Err(err).Uint64("entry_count", count).Msg("Ledger replay aborted")
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	entries = Dedupe(entries)

	r.metrics.ObserveReconcile(time.Since(start))
	r.log.Debug().Int("entries", len(entries)).Dur("elapsed", time.Since(start)).Msg("Ledger replayed")
	return entries, nil
}

// ReadEntry reconciles a single entry.
func (r *Reconciler) ReadEntry(ctx context.Context, index uint64) (domain.ReconciledEntry, error) {
	return r.fetch(ctx, index)
}

func (r *Reconciler) fetch(ctx context.Context, index uint64) (domain.ReconciledEntry, error) {
	raw, err := r.reader.Entry(ctx, index)
	if err != nil {
		return domain.ReconciledEntry{}, fmt.Errorf("%w: entry %d: %w", domain.ErrLedgerRead, index, err)
	}
	if raw.ID != index {
		return domain.ReconciledEntry{}, fmt.Errorf("%w: entry %d reported id %d", domain.ErrLedgerRead, index, raw.ID)
	}
	r.metrics.LedgerEntryRead()

	companyID := idcodec.DecodeOrSentinel(raw.CompanyID, r.log.With().Uint64("ledger_index", index).Logger())
	return domain.ReconciledEntry{
		ID:            raw.ID,
		DataHash:      raw.DataHash.Hex(),
		IsFraudulent:  raw.IsFraudulent,
		CompanyID:     companyID,
		SenderAddress: r.dir.Lookup(companyID),
	}, nil
}

// Dedupe drops entries whose id was already seen, keeping the first. It is
// idempotent and preserves order.
func Dedupe(entries []domain.ReconciledEntry) []domain.ReconciledEntry {
	seen := make(map[uint64]struct{}, len(entries))
	out := make([]domain.ReconciledEntry, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}
