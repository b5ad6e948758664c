// Package migrations embeds the BigQuery schema files applied by cmd/migrate.
package migrations

import "embed"

// BigQuery holds the files under bigquery/, named NNNN_name.sql.
//
//go:embed bigquery/*.sql
var BigQuery embed.FS
