// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/outreachlab/leadgen/internal/clock/system"
	"github.com/outreachlab/leadgen/internal/config"
	"github.com/outreachlab/leadgen/internal/enrich"
	"github.com/outreachlab/leadgen/internal/id/cardid"
	"github.com/outreachlab/leadgen/internal/leads"
	"github.com/outreachlab/leadgen/internal/normalize"
	"github.com/outreachlab/leadgen/internal/pipeline"
	"github.com/outreachlab/leadgen/internal/search"
	"github.com/outreachlab/leadgen/internal/sheets"
	"github.com/outreachlab/leadgen/internal/store/memory"
	"github.com/outreachlab/leadgen/internal/store/mongo"
	"github.com/outreachlab/leadgen/internal/store/postgres"
	"github.com/outreachlab/leadgen/internal/store/sqlite"
)

// App holds the shared, long-lived services for the pipeline. It is built
// once at startup and fails fast if any downstream cannot be reached.
type App struct {
	logger *zap.Logger
	store  leads.Store
	runner *pipeline.Runner
	clock  leads.Clock
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the configured persistence backend.
func (a *App) Store() leads.Store { return a.store }

// Runner returns the assembled pipeline runner.
func (a *App) Runner() *pipeline.Runner { return a.runner }

// Clock returns the shared clock.
func (a *App) Clock() leads.Clock { return a.clock }

// Close releases the persistence backend.
func (a *App) Close(ctx context.Context) error {
	if err := a.store.Close(ctx); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// NewApp builds every service from configuration: the store named by
// store.backend, the Sheets signal source, the search executor, the
// enrichment client, and the runner that ties them together. Remote
// key/value settings from the spreadsheet are overlaid onto cfg before the
// runner is assembled.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	clk := system.Clock{}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	logger.Info("store ready", zap.String("backend", cfg.Store.Backend))

	sheetsClient, err := sheets.New(ctx, sheets.Config{
		APIKey:        cfg.Sheets.APIKey,
		SpreadsheetID: cfg.Sheets.SpreadsheetID,
		SignalsRange:  cfg.Sheets.SignalsRange,
		KeysRange:     cfg.Sheets.KeysRange,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize sheets client: %w", err)
	}

	// Operators tune limits and the prompt from the spreadsheet without a
	// redeploy. Credentials never come from there.
	cfg.ApplyRemoteKeys(sheetsClient.FetchKeys(ctx))

	searcher, err := search.New(ctx, search.Config{
		APIKey:     cfg.Search.APIKey,
		EngineID:   cfg.Search.EngineID,
		NumResults: cfg.Search.NumResults,
	}, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize search executor: %w", err)
	}

	enricher := enrich.NewEnricher(
		store,
		enrich.NewClient(enrich.Config{
			APIKey:       cfg.OpenAI.APIKey,
			Endpoint:     cfg.OpenAI.Endpoint,
			Model:        cfg.OpenAI.Model,
			SystemPrompt: cfg.OpenAI.SystemPrompt,
		}),
		time.Duration(cfg.OpenAI.PaceMs)*time.Millisecond,
		logger,
	)

	normalizer := normalize.New(cardid.New(), clk, logger)

	runner := pipeline.NewRunner(sheetsClient, searcher, normalizer, store, enricher, clk,
		pipeline.Options{
			SignalLimit: cfg.Limits.Signals,
			EnrichLimit: cfg.Limits.Enrichment,
			SearchPace:  time.Duration(cfg.Search.PaceMs) * time.Millisecond,
		}, logger)

	return &App{
		logger: logger,
		store:  store,
		runner: runner,
		clock:  clk,
	}, nil
}

func newStore(ctx context.Context, cfg config.Config) (leads.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		store, err := sqlite.New(cfg.Store.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.Store.Postgres.DSN,
			MaxConns: cfg.Store.Postgres.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return store, nil
	case "mongo":
		store, err := mongo.New(ctx, mongo.Config{
			URI:        cfg.Store.Mongo.URI,
			Database:   cfg.Store.Mongo.Database,
			Collection: cfg.Store.Mongo.Collection,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		return store, nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
}
