// Package app assembles the write and read paths from configuration. The
// binaries under cmd/ share it so the wiring lives in one place.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dvloznov/fraud-ledger/internal/config"
	"github.com/dvloznov/fraud-ledger/internal/directory"
	"github.com/dvloznov/fraud-ledger/internal/domain"
	infraBQ "github.com/dvloznov/fraud-ledger/internal/infra/bigquery"
	infraRedis "github.com/dvloznov/fraud-ledger/internal/infra/redis"
	"github.com/dvloznov/fraud-ledger/internal/infra/sqlite"
	"github.com/dvloznov/fraud-ledger/internal/jobs"
	"github.com/dvloznov/fraud-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/fraud-ledger/internal/ledger"
	badgerledger "github.com/dvloznov/fraud-ledger/internal/ledger/badger"
	"github.com/dvloznov/fraud-ledger/internal/ledger/ethereum"
	"github.com/dvloznov/fraud-ledger/internal/metrics"
	"github.com/dvloznov/fraud-ledger/internal/pipeline"
	"github.com/dvloznov/fraud-ledger/internal/reconcile"
	"github.com/dvloznov/fraud-ledger/internal/repository"
	"github.com/dvloznov/fraud-ledger/internal/scoring"
)

// App holds every long-lived component of one process.
type App struct {
	Config     *config.Config
	Log        zerolog.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Store      repository.Store
	Ledger     ledger.Ledger
	Directory  *directory.Directory
	Jobs       jobs.JobStore
	Queue      *inmemory.Queue
	Writer     *pipeline.Writer
	Reconciler *reconcile.Reconciler
	// Redis is nil unless redis.address is set.
	Redis *goredis.Client

	queueHandler jobs.JobHandler
	closers      []func() error
}

// New builds the components described by cfg. The submission worker is not
// running until Start is called.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openLedger(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openJobStore(); err != nil {
		a.Close()
		return nil, err
	}

	dir, err := directory.Load(cfg.Directory.Path)
	if err != nil {
		if !errors.Is(err, domain.ErrDirectoryLoad) {
			a.Close()
			return nil, err
		}
		log.Warn().Err(err).Msg("Address directory unavailable, senders will show as N/A")
	}
	a.Directory = dir

	var cache pipeline.AggregateCache
	var gate pipeline.SubmissionGate
	if cfg.Redis.Address != "" {
		client, err := infraRedis.Connect(ctx, cfg.Redis.Address, cfg.Redis.PoolSize)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = client
		a.closers = append(a.closers, client.Close)

		cache = infraRedis.NewAggregateCache(client, cfg.Redis.CacheTTL)
		if cfg.Redis.Gate {
			gateCfg := infraRedis.DefaultGateConfig()
			if cfg.Redis.LockTTL > 0 {
				gateCfg.TTL = cfg.Redis.LockTTL
			}
			gate = infraRedis.NewGate(client, gateCfg)
		}
	}

	a.Queue = inmemory.NewQueue(cfg.Jobs.BufferSize, a.Jobs, log)
	a.Metrics.RegisterQueueDepth(a.Queue.Len)
	a.queueHandler = pipeline.NewSubmissionHandler(a.Ledger, gate, a.Metrics, log)

	a.Writer = pipeline.NewWriter(pipeline.WriterConfig{
		Records:    a.Store,
		Aggregates: a.Store,
		Publisher:  a.Queue,
		Cache:      cache,
		Metrics:    a.Metrics,
		Logger:     log,
	})

	a.Reconciler = reconcile.New(a.Ledger, a.Directory, log,
		reconcile.WithConcurrency(cfg.Reconcile.Concurrency),
		reconcile.WithMaxEntries(cfg.Reconcile.MaxEntries),
		reconcile.WithMetrics(a.Metrics),
	)

	return a, nil
}

// Start runs the submission worker until ctx is cancelled or Close is called.
func (a *App) Start(ctx context.Context) error {
	return a.Queue.Start(ctx, a.queueHandler)
}

// Close stops the queue, letting the in-flight submission resolve, then
// releases every connection in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.Queue.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping queue: %w", err))
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Store.Driver {
	case "bigquery":
		s, err := infraBQ.NewStore(ctx, a.Config.Store.Project, a.Config.Store.Dataset)
		if err != nil {
			return err
		}
		a.Store = s
	default:
		s, err := sqlite.Open(a.Config.Store.SQLitePath, a.Log)
		if err != nil {
			return err
		}
		a.Store = s
	}
	a.closers = append(a.closers, a.Store.Close)
	return nil
}

func (a *App) openLedger(ctx context.Context) error {
	switch a.Config.Ledger.Driver {
	case "ethereum":
		l, err := ethereum.Dial(ctx, ethereum.Config{
			NetworkURL:      a.Config.Ethereum.NetworkURL,
			ContractAddress: a.Config.Ethereum.ContractAddress,
			PrivateKey:      a.Config.Ethereum.PrivateKey,
			ChainID:         a.Config.Ethereum.ChainID,
		}, a.Log)
		if err != nil {
			return err
		}
		a.Ledger = l
	default:
		l, err := badgerledger.Open(a.Config.Ledger.BadgerPath, a.Log)
		if err != nil {
			return err
		}
		a.Ledger = l
	}
	a.closers = append(a.closers, a.Ledger.Close)
	return nil
}

// openJobStore reuses the sqlite store when there is one; the BigQuery
// store keeps its job history in a sqlite file next to the default path.
func (a *App) openJobStore() error {
	if a.Config.Jobs.Store == "memory" {
		a.Jobs = inmemory.NewStore()
		return nil
	}
	if s, ok := a.Store.(*sqlite.Store); ok {
		a.Jobs = s
		return nil
	}
	s, err := sqlite.Open(a.Config.Store.SQLitePath, a.Log)
	if err != nil {
		return fmt.Errorf("opening job store: %w", err)
	}
	a.Jobs = s
	a.closers = append(a.closers, s.Close)
	return nil
}

// NewClassifier builds the scoring oracle named by cfg. It returns nil when
// scoring is disabled.
func NewClassifier(ctx context.Context, cfg config.ScoringConfig, log zerolog.Logger) (*scoring.Classifier, error) {
	var scorer scoring.Scorer
	switch cfg.Driver {
	case "http":
		scorer = scoring.NewHTTPScorer(cfg.URL, &http.Client{Timeout: 10 * time.Second})
	case "gemini":
		g, err := scoring.NewGeminiScorer(ctx, cfg.Model)
		if err != nil {
			return nil, err
		}
		scorer = g
	default:
		return nil, nil
	}
	return scoring.NewClassifier(scorer, cfg.Threshold, log), nil
}
