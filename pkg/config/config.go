// Package config loads cardtracker configuration from environment variables
// and an optional JSON file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	kJson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// StorePostgres keeps transactions in PostgreSQL.
	StorePostgres = "postgres"
	// StoreMemory keeps transactions in memory for dry runs.
	StoreMemory = "memory"

	// SourceGmail reads from a Gmail mailbox.
	SourceGmail = "gmail"
	// SourceMbox reads from an mbox archive.
	SourceMbox = "mbox"
)

// Config holds the application configuration.
type Config struct {
	// Store selects the persistence backend: "postgres" or "memory".
	// Environment variable: CARDTRACKER_STORE
	Store string `koanf:"CARDTRACKER_STORE"`

	// Source selects the message source plugin: "gmail" or "mbox".
	// Environment variable: CARDTRACKER_SOURCE
	Source string `koanf:"CARDTRACKER_SOURCE"`

	Postgres PostgresConfig `koanf:",squash"`

	// MboxPath is the archive read by the mbox source.
	// Environment variable: MBOX_PATH
	MboxPath string `koanf:"MBOX_PATH"`

	// GmailQuery overrides the search query built from the issuer domains.
	// Environment variable: GMAIL_QUERY
	GmailQuery string `koanf:"GMAIL_QUERY"`

	// Environment variable: GMAIL_MAX_RESULTS
	GmailMaxResults int64 `koanf:"GMAIL_MAX_RESULTS"`

	// GmailPollInterval is the mailbox poll interval used by watch.
	// Environment variable: GMAIL_POLL_INTERVAL
	GmailPollInterval time.Duration `koanf:"GMAIL_POLL_INTERVAL"`

	// GmailMarkRead marks stored messages as read.
	// Environment variable: GMAIL_MARK_READ
	GmailMarkRead bool `koanf:"GMAIL_MARK_READ"`

	// Environment variable: SYNC_WORKERS
	SyncWorkers int `koanf:"SYNC_WORKERS"`

	// Environment variable: SYNC_RETRY_ATTEMPTS
	SyncRetryAttempts uint `koanf:"SYNC_RETRY_ATTEMPTS"`

	// HTTPAddr is the listen address of the API server.
	// Environment variable: HTTP_ADDR
	HTTPAddr string `koanf:"HTTP_ADDR"`

	// Timezone is the IANA zone notification timestamps are written in.
	// Environment variable: TIMEZONE
	Timezone string `koanf:"TIMEZONE"`

	// Environment variable: LOG_LEVEL
	LogLevel string `koanf:"LOG_LEVEL"`

	// LogFormat is "text" or "json".
	// Environment variable: LOG_FORMAT
	LogFormat string `koanf:"LOG_FORMAT"`

	// IssuerRulesFile replaces the embedded issuer rule table.
	// Environment variable: ISSUER_RULES_FILE
	IssuerRulesFile string `koanf:"ISSUER_RULES_FILE"`

	// ClientSecretFile is the path to the Google OAuth credentials JSON file.
	// Environment variable: GOOGLE_CLIENT_SECRET_FILE
	ClientSecretFile string `koanf:"GOOGLE_CLIENT_SECRET_FILE"`

	// TokenFile is where the OAuth token is cached.
	// Environment variable: GOOGLE_TOKEN_FILE
	TokenFile string `koanf:"GOOGLE_TOKEN_FILE"`
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string `koanf:"POSTGRES_HOST"`
	Port     int    `koanf:"POSTGRES_PORT"`
	Database string `koanf:"POSTGRES_DB"`
	User     string `koanf:"POSTGRES_USER"`
	Password string `koanf:"POSTGRES_PASSWORD"`
	SSLMode  string `koanf:"POSTGRES_SSLMODE"`
	// URL, when set, takes precedence over the individual fields.
	URL      string `koanf:"DATABASE_URL"`
	MaxConns int    `koanf:"POSTGRES_MAX_CONNS"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Store:  StorePostgres,
		Source: SourceGmail,
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "cardtracker",
			User:     "cardtracker",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		GmailMaxResults:   100,
		GmailPollInterval: 5 * time.Minute,
		GmailMarkRead:     true,
		SyncWorkers:       4,
		SyncRetryAttempts: 3,
		HTTPAddr:          ":8080",
		Timezone:          "Asia/Tokyo",
		LogLevel:          "INFO",
		LogFormat:         "text",
		ClientSecretFile:  "data/client_secret.json",
		TokenFile:         "data/token.json",
	}
}

// Load reads configuration on top of Default. Values from the JSON file at
// path, when given, are overridden by environment variables.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(file.Provider(path), kJson.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return Config{}, fmt.Errorf("loading config from environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("CARDTRACKER_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	switch c.Source {
	case SourceGmail, SourceMbox:
	default:
		return fmt.Errorf("CARDTRACKER_SOURCE must be %q or %q, got %q", SourceGmail, SourceMbox, c.Source)
	}
	if c.SyncWorkers < 1 {
		return errors.New("SYNC_WORKERS must be at least 1")
	}
	if c.GmailPollInterval < 0 {
		return errors.New("GMAIL_POLL_INTERVAL must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the configured time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ReaderConfig returns the JSON configuration for the selected source plugin.
// defaultQuery is used when GMAIL_QUERY is unset. When watch is true the
// gmail source keeps polling at GMAIL_POLL_INTERVAL.
func (c Config) ReaderConfig(defaultQuery string, watch bool) (json.RawMessage, error) {
	var v any
	switch c.Source {
	case SourceGmail:
		query := c.GmailQuery
		if query == "" {
			query = defaultQuery
		}
		interval := 0
		if watch {
			interval = int(c.GmailPollInterval / time.Second)
		}
		v = map[string]any{
			"query":         query,
			"maxResults":    c.GmailMaxResults,
			"interval":      interval,
			"retryAttempts": 5,
			"markRead":      c.GmailMarkRead,
		}
	case SourceMbox:
		if c.MboxPath == "" {
			return nil, errors.New("MBOX_PATH is required for the mbox source")
		}
		v = map[string]any{"path": c.MboxPath}
	default:
		return nil, fmt.Errorf("unknown source %q", c.Source)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding reader config: %w", err)
	}
	return b, nil
}
