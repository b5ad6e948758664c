// Package config loads service settings from defaults, an optional YAML
// file, a .env file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable, e.g. FRAUDLEDGER_SERVER_PORT.
const EnvPrefix = "fraudledger"

type ServerConfig struct {
	Port         string        `yaml:"port"         envconfig:"PORT"`
	APIKey       string        `yaml:"apiKey"       split_words:"true"`
	ReadTimeout  time.Duration `yaml:"readTimeout"  split_words:"true" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"writeTimeout" split_words:"true" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level"  validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Pretty bool   `yaml:"pretty"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite bigquery"`
	// SQLitePath is a directory; empty keeps the store in memory.
	SQLitePath string `yaml:"sqlitePath" split_words:"true"`
	Project    string `yaml:"project"    validate:"required_if=Driver bigquery"`
	Dataset    string `yaml:"dataset"    validate:"required_if=Driver bigquery"`
}

type LedgerConfig struct {
	Driver string `yaml:"driver" validate:"oneof=ethereum badger"`
	// BadgerPath is a directory; empty keeps the ledger in memory.
	BadgerPath string `yaml:"badgerPath" split_words:"true"`
}

type EthereumConfig struct {
	NetworkURL      string `yaml:"networkUrl"      envconfig:"NETWORK_URL"`
	ContractAddress string `yaml:"contractAddress" envconfig:"CONTRACT_ADDRESS"`
	PrivateKey      string `yaml:"privateKey"      envconfig:"PRIVATE_KEY"`
	ChainID         int64  `yaml:"chainId"         split_words:"true" validate:"gte=0"`
}

type DirectoryConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string        `yaml:"address"`
	PoolSize int           `yaml:"poolSize" split_words:"true" validate:"gte=0"`
	CacheTTL time.Duration `yaml:"cacheTtl" split_words:"true" validate:"gte=0"`
	LockTTL  time.Duration `yaml:"lockTtl"  split_words:"true" validate:"gte=0"`
	// Gate serializes submissions across replicas sharing a signing key.
	Gate bool `yaml:"gate"`
}

type PubSubConfig struct {
	Project        string `yaml:"project"`
	Topic          string `yaml:"topic"`
	Subscription   string `yaml:"subscription"`
	MaxOutstanding int    `yaml:"maxOutstanding" split_words:"true" validate:"gte=0"`
}

type ScoringConfig struct {
	Driver    string  `yaml:"driver"    validate:"oneof=none http gemini"`
	URL       string  `yaml:"url"       validate:"required_if=Driver http"`
	Model     string  `yaml:"model"`
	Threshold float64 `yaml:"threshold" validate:"gt=0,lt=1"`
}

type ExportConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

type JobsConfig struct {
	Store      string `yaml:"store"      validate:"oneof=memory sqlite"`
	BufferSize int    `yaml:"bufferSize" split_words:"true" validate:"gte=0"`
}

type ReconcileConfig struct {
	Concurrency int    `yaml:"concurrency" validate:"gte=1,lte=256"`
	// MaxEntries caps the entry count a replay trusts.
	MaxEntries  uint64 `yaml:"maxEntries"  split_words:"true" validate:"gte=1"`
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Ethereum  EthereumConfig  `yaml:"ethereum"`
	Directory DirectoryConfig `yaml:"directory"`
	Redis     RedisConfig     `yaml:"redis"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Export    ExportConfig    `yaml:"export"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// Default returns the settings used when nothing else is configured: a
// local sqlite store and badger ledger, no cache, no scoring.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 2 * time.Minute,
		},
		Log:       LogConfig{Level: "info", Pretty: true},
		Store:     StoreConfig{Driver: "sqlite", SQLitePath: ".fraudledger"},
		Ledger:    LedgerConfig{Driver: "badger", BadgerPath: ".fraudledger/ledger"},
		Directory: DirectoryConfig{Path: "company_address_map.json"},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
			LockTTL:  2 * time.Minute,
		},
		PubSub: PubSubConfig{
			Topic:          "transactions",
			Subscription:   "transactions-worker",
			MaxOutstanding: 10,
		},
		Scoring:   ScoringConfig{Driver: "none", Threshold: 0.4},
		Jobs:      JobsConfig{Store: "sqlite", BufferSize: 256},
		Reconcile: ReconcileConfig{Concurrency: 8, MaxEntries: 1 << 20},
	}
}

// Load builds the configuration. path may be empty; a missing .env file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("Load: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("Load: parsing %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("Load: reading .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("Load: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-section requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Ledger.Driver == "ethereum" {
		if c.Ethereum.NetworkURL == "" || c.Ethereum.ContractAddress == "" || c.Ethereum.PrivateKey == "" {
			return errors.New("invalid config: ethereum ledger needs NETWORK_URL, CONTRACT_ADDRESS and PRIVATE_KEY")
		}
	}
	if c.Redis.Gate && c.Redis.Address == "" {
		return errors.New("invalid config: redis gate needs redis.address")
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	out := *c
	if out.Ethereum.PrivateKey != "" {
		out.Ethereum.PrivateKey = "***"
	}
	if out.Server.APIKey != "" {
		out.Server.APIKey = "***"
	}
	return out
}
