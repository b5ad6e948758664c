// Command migrate applies the BigQuery schema for the warehouse-backed store.
package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/fraud-ledger/internal/config"
	"github.com/dvloznov/fraud-ledger/internal/logger"
	"github.com/dvloznov/fraud-ledger/migrations"
)

// Migration is one schema file.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

func main() {
	var (
		configPath    = flag.String("config", "", "Path to a YAML config file")
		projectID     = flag.String("project", "", "GCP project ID (defaults to store.project)")
		datasetID     = flag.String("dataset", "", "BigQuery dataset ID (defaults to store.dataset)")
		appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		migrationsDir = flag.String("migrations", "", "Directory with NNNN_name.sql files; the embedded set is used when empty")
	)
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *projectID == "" {
		*projectID = cfg.Store.Project
	}
	if *datasetID == "" {
		*datasetID = cfg.Store.Dataset
	}
	if *projectID == "" || *datasetID == "" {
		log.Fatal().Msg("Both -project and -dataset are required (or set store.project and store.dataset)")
	}

	var fsys fs.FS
	dir := "bigquery"
	if *migrationsDir != "" {
		fsys = os.DirFS(*migrationsDir)
		dir = "."
	} else {
		fsys = migrations.BigQuery
	}

	ctx := context.Background()

	client, err := bigquery.NewClient(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer client.Close()

	m := &migrator{
		client:    client,
		project:   *projectID,
		dataset:   *datasetID,
		appliedBy: *appliedBy,
		log:       log.With().Str("project", *projectID).Str("dataset", *datasetID).Logger(),
	}

	pending, err := readMigrations(fsys, dir, *projectID, *datasetID, m.log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}

	if err := m.apply(ctx, pending); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}

type migrator struct {
	client    *bigquery.Client
	project   string
	dataset   string
	appliedBy string
	log       zerolog.Logger
}

func (m *migrator) apply(ctx context.Context, all []Migration) error {
	m.log.Info().Int("files", len(all)).Msg("Connected to BigQuery")

	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return fmt.Errorf("ensuring schema_migrations: %w", err)
	}

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}

	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	count := 0
	for _, mig := range all {
		log := m.log.With().Int("version", mig.Version).Str("name", mig.Name).Logger()

		if am, ok := byVersion[mig.Version]; ok {
			if am.Checksum != "" && am.Checksum != mig.Checksum {
				log.Warn().Str("applied_checksum", am.Checksum).Msg("Applied migration was edited afterwards")
			}
			log.Debug().Msg("Already applied")
			continue
		}

		log.Info().Msg("Applying migration")
		if err := m.exec(ctx, mig.SQL, nil); err != nil {
			return fmt.Errorf("executing %s: %w", mig.Filename, err)
		}
		if err := m.record(ctx, mig); err != nil {
			return fmt.Errorf("recording %s: %w", mig.Filename, err)
		}
		count++
	}

	if count == 0 {
		m.log.Info().Msg("No new migrations to apply")
	} else {
		m.log.Info().Int("applied", count).Msg("Migrations applied")
	}
	return nil
}

func (m *migrator) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", m.project, m.dataset, name)
}

func (m *migrator) ensureSchemaMigrationsTable(ctx context.Context) error {
	sql := `
CREATE TABLE IF NOT EXISTS ` + m.table("schema_migrations") + ` (
  version    INT64 NOT NULL,
  name       STRING NOT NULL,
  applied_at TIMESTAMP NOT NULL,
  checksum   STRING,
  applied_by STRING
)`
	return m.exec(ctx, sql, nil)
}

func (m *migrator) appliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	q := m.client.Query(`
SELECT version, name, applied_at, checksum, applied_by
FROM ` + m.table("schema_migrations") + `
ORDER BY version ASC`)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}

	var out []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}
		out = append(out, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return out, nil
}

func (m *migrator) record(ctx context.Context, mig Migration) error {
	sql := `
INSERT INTO ` + m.table("schema_migrations") + `
(version, name, applied_at, checksum, applied_by)
VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)`

	return m.exec(ctx, sql, []bigquery.QueryParameter{
		{Name: "version", Value: mig.Version},
		{Name: "name", Value: mig.Name},
		{Name: "checksum", Value: mig.Checksum},
		{Name: "applied_by", Value: m.appliedBy},
	})
}

// exec runs a DDL or DML statement and waits for the job to finish.
func (m *migrator) exec(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	q := m.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

// readMigrations loads NNNN_name.sql files from dir, substitutes the
// project and dataset placeholders and sorts them by version. The checksum
// covers the file before substitution so the same schema applied to another
// dataset compares equal.
func readMigrations(fsys fs.FS, dir, project, dataset string, log zerolog.Logger) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var out []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matches := migrationPattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			log.Warn().Str("file", entry.Name()).Msg("Skipping file with invalid name")
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return nil, fmt.Errorf("parsing version of %s: %w", entry.Name(), err)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("version %04d used by both %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", project)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", dataset)

		out = append(out, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: entry.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
