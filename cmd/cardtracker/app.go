package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ArionMiles/cardtracker/internal/plugins"
	"github.com/ArionMiles/cardtracker/pkg/api"
	"github.com/ArionMiles/cardtracker/pkg/client"
	"github.com/ArionMiles/cardtracker/pkg/config"
	"github.com/ArionMiles/cardtracker/pkg/diag"
	"github.com/ArionMiles/cardtracker/pkg/issuer"
	"github.com/ArionMiles/cardtracker/pkg/logging"
	"github.com/ArionMiles/cardtracker/pkg/parser"
	gmailplugin "github.com/ArionMiles/cardtracker/pkg/plugins/readers/gmail"
	mboxplugin "github.com/ArionMiles/cardtracker/pkg/plugins/readers/mbox"
	gmailreader "github.com/ArionMiles/cardtracker/pkg/reader/gmail"
	"github.com/ArionMiles/cardtracker/pkg/store"
	"github.com/ArionMiles/cardtracker/pkg/store/memory"
	"github.com/ArionMiles/cardtracker/pkg/store/postgres"
)

// app holds the wiring shared by all commands.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	loc     *time.Location
	table   *issuer.Table
	metrics *diag.Metrics
}

func loadApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(logging.NewConfig(cfg.LogLevel, cfg.LogFormat))

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	table := issuer.Default()
	if cfg.IssuerRulesFile != "" {
		table, err = issuer.Load(cfg.IssuerRulesFile)
		if err != nil {
			return nil, fmt.Errorf("loading issuer rules: %w", err)
		}
		logger.Info("loaded issuer rules", "file", cfg.IssuerRulesFile, "issuers", len(table.Priority()))
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		loc:     loc,
		table:   table,
		metrics: diag.NewMetrics(),
	}, nil
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	switch a.cfg.Store {
	case config.StoreMemory:
		a.logger.Warn("using in-memory store, transactions are not persisted")
		return memory.New(), nil
	case config.StorePostgres:
		pg := a.cfg.Postgres
		return postgres.New(ctx, postgres.Config{
			Host:        pg.Host,
			Port:        pg.Port,
			Database:    pg.Database,
			User:        pg.User,
			Password:    pg.Password,
			SSLMode:     pg.SSLMode,
			DSN:         pg.URL,
			MaxPoolSize: pg.MaxConns,
		}, a.logger.With("component", "postgres"))
	}
	return nil, fmt.Errorf("unknown store %q", a.cfg.Store)
}

func (a *app) newParser() *parser.Parser {
	sink := diag.Multi(diag.NewLogSink(a.logger.With("component", "parser")), a.metrics)
	return parser.New(a.table, parser.WithSink(sink), parser.WithLocation(a.loc))
}

func newRegistry() (*plugins.Registry, error) {
	return plugins.NewRegistry(&gmailplugin.Plugin{}, &mboxplugin.Plugin{})
}

func (a *app) oauthConfig(scopes []string) client.Config {
	return client.Config{
		SecretFile: a.cfg.ClientSecretFile,
		TokenFile:  a.cfg.TokenFile,
		Scopes:     scopes,
	}
}

// newReader creates the configured message source. Sources that need OAuth
// use the saved token; run setup first.
func (a *app) newReader(ctx context.Context, watch bool) (api.Reader, error) {
	registry, err := newRegistry()
	if err != nil {
		return nil, err
	}
	scopes, err := registry.Scopes(a.cfg.Source)
	if err != nil {
		return nil, err
	}

	var httpClient *http.Client
	if len(scopes) > 0 {
		httpClient, err = client.Load(ctx, a.oauthConfig(scopes))
		if err != nil {
			return nil, fmt.Errorf("creating http client: %w", err)
		}
	}

	readerCfg, err := a.cfg.ReaderConfig(gmailreader.BuildQuery(a.table.Domains()), watch)
	if err != nil {
		return nil, err
	}
	reader, err := registry.CreateReader(a.cfg.Source, httpClient, readerCfg, a.logger.With("component", "reader", "plugin", a.cfg.Source))
	if err != nil {
		return nil, fmt.Errorf("creating reader: %w", err)
	}
	return reader, nil
}

var yen = message.NewPrinter(language.Japanese)

// formatYen renders an amount with digit grouping, e.g. ¥1,234.
func formatYen(amount int64) string {
	return yen.Sprintf("¥%d", amount)
}
