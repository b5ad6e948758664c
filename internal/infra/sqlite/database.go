// Package sqlite is the default durable local store: transaction records,
// company aggregates and submission job history in one SQLite database.
package sqlite

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/dvloznov/fraud-ledger/internal/repository"
)

// DatabaseFile is the file name used inside the data directory.
const DatabaseFile = "fraud-ledger.sqlite"

// MigrateModels lists every table owned by the store.
var MigrateModels = []any{
	&RecordRow{},
	&CompanyRow{},
	&SubmissionJobRow{},
}

// Store is the SQLite implementation of repository.Store and jobs.JobStore.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// Open creates the store. An empty dataDir gives a private in-memory
// database, which is what the tests use.
func Open(dataDir string, log zerolog.Logger) (*Store, error) {
	var dsn string
	inMemory := dataDir == ""
	if inMemory {
		// a unique name keeps separate stores in one process apart
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	} else {
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("Open: reading data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("Open: creating data dir: %w", err)
			}
		}
		path := filepath.Join(dataDir, DatabaseFile)
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("Open: opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("Open: getting sql.DB: %w", err)
	}
	if inMemory {
		// shared-cache memory databases report SQLITE_LOCKED instead of waiting
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("Open: enabling tracing: %w", err)
	}

	s := &Store{db: db, log: log.With().Str("component", "sqlite").Logger()}
	if err := s.Migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates every table.
func (s *Store) Migrate() error {
	for _, model := range MigrateModels {
		s.log.Debug().Str("model", fmt.Sprintf("%T", model)).Msg("Migrating table")
		if err := s.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("Migrate: %T: %w", model, err)
		}
	}
	return nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ repository.Store = (*Store)(nil)
