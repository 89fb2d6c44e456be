package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	lodelibrary "github.com/justapithecus/lode/lode"

	"github.com/justapithecus/catalogfeed/adapter"
	"github.com/justapithecus/catalogfeed/adapter/redis"
	"github.com/justapithecus/catalogfeed/adapter/webhook"
	"github.com/justapithecus/catalogfeed/artifact"
	"github.com/justapithecus/catalogfeed/catalog"
	"github.com/justapithecus/catalogfeed/catalog/postgres"
	"github.com/justapithecus/catalogfeed/cli/config"
	"github.com/justapithecus/catalogfeed/feed"
	"github.com/justapithecus/catalogfeed/lode"
	"github.com/justapithecus/catalogfeed/log"
	"github.com/justapithecus/catalogfeed/metrics"
	"github.com/justapithecus/catalogfeed/pipeline"
	"github.com/justapithecus/catalogfeed/schedule"
	"github.com/justapithecus/catalogfeed/types"
)

// environment holds the collaborators one command invocation needs.
type environment struct {
	cfg       *config.Config
	logger    *log.Logger
	collector *metrics.Collector

	states  schedule.StateStore
	backend artifact.Backend
	history lodelibrary.Dataset

	catalog catalog.Store
	adapter adapter.Adapter
}

// openStorage wires run state, the artifact backend and run history.
// It is all the read-only commands need.
func openStorage(ctx context.Context, cfg *config.Config, logger *log.Logger) (*environment, error) {
	env := &environment{
		cfg:       cfg,
		logger:    logger,
		collector: metrics.NewCollector(cfg.Feed.Name, cfg.Storage.Backend, ""),
	}

	states, err := schedule.NewFileStateStore(cfg.State.Path)
	if err != nil {
		return nil, err
	}
	env.states = states

	storeCfg := lode.StoreConfig{
		Backend:      cfg.Storage.Backend,
		Path:         cfg.Storage.Path,
		Region:       cfg.Storage.Region,
		Endpoint:     cfg.Storage.Endpoint,
		UsePathStyle: cfg.Storage.S3PathStyle,
	}
	factory, err := lode.NewStoreFactory(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	if cfg.Storage.Backend == lode.BackendFS {
		env.backend, err = artifact.NewFS(cfg.Storage.Path, cfg.Feed.File, artifact.WithCollector(env.collector))
	} else {
		var store lodelibrary.Store
		if store, err = factory(); err != nil {
			return nil, fmt.Errorf("storage: %w", lode.WrapInitError(err, cfg.Storage.Path))
		}
		env.backend, err = artifact.NewStore(lode.NewInstrumentedStore(store, env.collector),
			cfg.Feed.Name, cfg.Feed.File, env.collector)
	}
	if err != nil {
		return nil, fmt.Errorf("artifact backend: %w", err)
	}

	if !cfg.History.Disabled {
		if env.history, err = lode.NewHistoryDataset(cfg.History.Dataset, factory); err != nil {
			return nil, fmt.Errorf("run history: %w", err)
		}
	}
	return env, nil
}

// openEnvironment wires everything the mutating commands need.
func openEnvironment(ctx context.Context, cfg *config.Config, logger *log.Logger) (*environment, error) {
	env, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	switch cfg.Catalog.Driver {
	case config.DriverPostgres:
		env.catalog, err = postgres.Open(ctx, postgres.Config{
			DSN:            cfg.Catalog.DSN,
			MaxConns:       cfg.Catalog.MaxConns,
			SimpleProtocol: cfg.Catalog.SimpleProtocol,
		})
	default:
		env.catalog, err = catalog.LoadFixture(cfg.Catalog.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	if env.adapter, err = newAdapter(cfg.Adapter); err != nil {
		_ = env.catalog.Close()
		return nil, fmt.Errorf("adapter: %w", err)
	}
	return env, nil
}

func newAdapter(cfg *config.AdapterConfig) (adapter.Adapter, error) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Type {
	case config.AdapterWebhook:
		retries := webhook.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	case config.AdapterRedis:
		retries := redis.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		return redis.New(redis.Config{
			URL:       cfg.URL,
			Channel:   cfg.Channel,
			LatestKey: cfg.LatestKey,
			Timeout:   cfg.Timeout.Duration,
			Retries:   retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Type)
	}
}

// hooks builds the pipeline for the run described by state.
func (e *environment) hooks(state *types.RunState) (pipeline.Hooks, error) {
	e.collector.SetRunID(state.RunID)
	logger := e.logger.With(map[string]any{"run_id": state.RunID, "attempt": state.Attempt})

	mapper := feed.CatalogMapper{
		DefaultCurrency:  e.cfg.Feed.Currency,
		DefaultCondition: e.cfg.Feed.Condition,
	}
	return pipeline.New(pipeline.Config{
		RunMeta:       state.Meta(),
		BatchSize:     state.BatchSize,
		Source:        catalog.NewSource(e.catalog, catalog.DefaultFilter()),
		Transformer:   feed.NewTransformer(e.catalog, mapper, e.cfg.Feed.Concurrency, logger),
		Encoder:       feed.NewEncoder(mapper.Columns()),
		Backend:       e.backend,
		Adapter:       e.adapter,
		NotifyTimeout: e.cfg.Run.NotifyTimeout.Duration,
		History:       e.history,
		Totals:        func() types.RunTotals { return state.Totals },
		StartedAt:     state.StartedAt,
		Collector:     e.collector,
		Logger:        logger,
	})
}

func (e *environment) runner() (*schedule.Runner, error) {
	return schedule.NewRunner(schedule.Config{
		Feed:             e.cfg.Feed.Name,
		BatchSize:        e.cfg.Feed.BatchSize,
		State:            e.states,
		Hooks:            e.hooks,
		MaxBatchAttempts: e.cfg.Run.MaxBatchAttempts,
		Backoff:          e.cfg.Run.Backoff.Duration,
		Retryable:        retryable,
		Collector:        e.collector,
		Logger:           e.logger,
	})
}

// retryable gives up on database errors Postgres reports as permanent, such
// as a bad query or a missing column, and retries everything else.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return postgres.IsTransient(err)
	}
	return true
}

// writeMetrics exports the collector when a textfile is configured.
func (e *environment) writeMetrics() error {
	if e.cfg.Metrics.Textfile == "" {
		return nil
	}
	return metrics.WriteTextfile(e.cfg.Metrics.Textfile, e.collector.Snapshot())
}

// Close releases the catalog and adapter connections.
func (e *environment) Close() error {
	var errs []error
	if e.adapter != nil {
		errs = append(errs, e.adapter.Close())
	}
	if e.catalog != nil {
		errs = append(errs, e.catalog.Close())
	}
	return errors.Join(errs...)
}

