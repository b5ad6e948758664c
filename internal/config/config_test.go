package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := writeFile(t, dir, "fraudledger.yaml", `
server:
  port: "9000"
store:
  driver: sqlite
  sqlitePath: /var/lib/fraudledger
redis:
  address: localhost:6379
  cacheTtl: 30s
scoring:
  driver: http
  url: http://localhost:8000
  threshold: 0.55
`)

	t.Setenv("FRAUDLEDGER_SERVER_PORT", "9100")
	t.Setenv("FRAUDLEDGER_REDIS_GATE", "true")
	t.Setenv("FRAUDLEDGER_RECONCILE_CONCURRENCY", "4")
	t.Setenv("FRAUDLEDGER_RECONCILE_MAX_ENTRIES", "5000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port, "environment overrides file")
	assert.Equal(t, "/var/lib/fraudledger", cfg.Store.SQLitePath)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.True(t, cfg.Redis.Gate)
	assert.Equal(t, "http", cfg.Scoring.Driver)
	assert.InDelta(t, 0.55, cfg.Scoring.Threshold, 1e-9)
	assert.Equal(t, 4, cfg.Reconcile.Concurrency)
	assert.Equal(t, uint64(5000), cfg.Reconcile.MaxEntries)
	assert.Equal(t, 2*time.Minute, cfg.Redis.LockTTL, "untouched defaults survive")
}

func TestLoad_UnprefixedLedgerVariables(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("FRAUDLEDGER_LEDGER_DRIVER", "ethereum")
	t.Setenv("NETWORK_URL", "http://127.0.0.1:8545")
	t.Setenv("CONTRACT_ADDRESS", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	t.Setenv("PRIVATE_KEY", "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8545", cfg.Ethereum.NetworkURL)
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", cfg.Ethereum.ContractAddress)
	assert.Equal(t, "***", cfg.Redacted().Ethereum.PrivateKey)
	assert.NotEqual(t, "***", cfg.Ethereum.PrivateKey)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "FRAUDLEDGER_LOG_LEVEL=debug\nFRAUDLEDGER_JOBS_STORE=memory\n")

	// godotenv never overrides variables that are already set
	t.Setenv("FRAUDLEDGER_JOBS_STORE", "sqlite")
	t.Cleanup(func() { os.Unsetenv("FRAUDLEDGER_LOG_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Jobs.Store)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		yaml string
	}{
		{name: "unknown store", env: map[string]string{"FRAUDLEDGER_STORE_DRIVER": "postgres"}},
		{name: "bigquery without project", env: map[string]string{"FRAUDLEDGER_STORE_DRIVER": "bigquery"}},
		{name: "ethereum without key", env: map[string]string{"FRAUDLEDGER_LEDGER_DRIVER": "ethereum"}},
		{name: "http scoring without url", env: map[string]string{"FRAUDLEDGER_SCORING_DRIVER": "http"}},
		{name: "threshold out of range", env: map[string]string{"FRAUDLEDGER_SCORING_THRESHOLD": "1.2"}},
		{name: "gate without redis", env: map[string]string{"FRAUDLEDGER_REDIS_GATE": "true"}},
		{name: "bad level", env: map[string]string{"FRAUDLEDGER_LOG_LEVEL": "loud"}},
		{name: "bad duration", env: map[string]string{"FRAUDLEDGER_REDIS_CACHE_TTL": "soon"}},
		{name: "malformed yaml", yaml: "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, dir, "bad.yaml", tt.yaml)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
