// Package app wires the diff engine from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/agenthands/graphdiff/internal/config"
	"github.com/agenthands/graphdiff/internal/core"
	"github.com/agenthands/graphdiff/internal/core/calculator"
	"github.com/agenthands/graphdiff/internal/core/combiner"
	"github.com/agenthands/graphdiff/internal/core/conflict"
	"github.com/agenthands/graphdiff/internal/core/coordinator"
	"github.com/agenthands/graphdiff/internal/core/enrich"
	"github.com/agenthands/graphdiff/internal/core/merge"
	"github.com/agenthands/graphdiff/internal/core/repository"
	"github.com/agenthands/graphdiff/internal/driver"
	"github.com/agenthands/graphdiff/internal/schema"
)

type App struct {
	Config      *config.Config
	Engine      *core.Engine
	Coordinator *coordinator.Coordinator
	Repository  repository.Repository
	Driver      driver.GraphDriver
	db          *badger.DB
	logger      *slog.Logger
}

// New connects to Memgraph and builds the engine. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	d, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to memgraph: %w", err)
	}
	if err := d.BuildIndices(ctx); err != nil {
		_ = d.Close(ctx)
		return nil, fmt.Errorf("building indices: %w", err)
	}
	registry, err := schema.LoadRegistry(cfg.Schema.Path)
	if err != nil {
		_ = d.Close(ctx)
		return nil, fmt.Errorf("loading schema: %w", err)
	}
	a, err := Build(cfg, d, registry, logger)
	if err != nil {
		_ = d.Close(ctx)
		return nil, err
	}
	return a, nil
}

// Build assembles the engine on top of an open graph driver.
func Build(cfg *config.Config, d driver.GraphDriver, registry schema.Provider, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := repository.OpenBadger(repository.BadgerConfig{
		Path:       cfg.Badger.Path,
		InMemory:   cfg.Badger.InMemory,
		SyncWrites: cfg.Badger.SyncWrites,
		Logger:     logger.With("component", "badger"),
	})
	if err != nil {
		return nil, err
	}

	var repo repository.Repository
	switch cfg.Diff.Cache {
	case "graph":
		repo = repository.NewGraphRepository(d)
	default:
		repo = repository.NewBadgerRepository(db, logger)
	}

	defaultBranch := cfg.Diff.DefaultBranch
	calc := calculator.New(driver.NewPathQuery(d), registry, calculator.Filters{
		NamespacesInclude: cfg.Diff.NamespacesInclude,
		NamespacesExclude: cfg.Diff.NamespacesExclude,
		KindsInclude:      cfg.Diff.KindsInclude,
		KindsExclude:      cfg.Diff.KindsExclude,
	}, logger)
	pipeline := enrich.NewPipeline(
		enrich.NewCardinalityOne(registry),
		enrich.NewHierarchy(registry, driver.NewParentStore(d, registry, defaultBranch), logger),
		enrich.NewLabels(driver.NewLabelStore(d, defaultBranch, cfg.Diff.LabelAttribute), registry, logger),
	)
	coord := coordinator.New(
		repo,
		calc,
		pipeline,
		combiner.New(conflict.NewTransferer()),
		conflict.NewEnricher(),
		driver.NewBranchStore(d),
		logger,
	)
	engine := core.NewEngine(
		coord,
		repo,
		conflict.NewRecorder(repository.NewBadgerCheckStore(db), logger),
		merge.NewSerializer(registry, cfg.Diff.MergeBatchSize),
		driver.NewProposedChangeStore(d),
		logger,
	)

	return &App{
		Config:      cfg,
		Engine:      engine,
		Coordinator: coord,
		Repository:  repo,
		Driver:      d,
		db:          db,
		logger:      logger,
	}, nil
}

func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.db.Close(), a.Driver.Close(ctx))
}
