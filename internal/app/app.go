// Package app assembles the scanner's components from configuration. The
// worker and server binaries share it.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/polytracker/scanner/internal/adapter"
	"github.com/polytracker/scanner/internal/alert"
	"github.com/polytracker/scanner/internal/analyzer"
	"github.com/polytracker/scanner/internal/circuitbreaker"
	"github.com/polytracker/scanner/internal/config"
	"github.com/polytracker/scanner/internal/logging"
	"github.com/polytracker/scanner/internal/metrics"
	"github.com/polytracker/scanner/internal/scanner"
	"github.com/polytracker/scanner/internal/scoring"
	"github.com/polytracker/scanner/internal/storage"
	"github.com/polytracker/scanner/internal/storage/migrations"
	"github.com/polytracker/scanner/internal/storage/postgres"
	"github.com/polytracker/scanner/internal/storage/sqlite"
	"github.com/polytracker/scanner/internal/walletage"
)

// App holds the wired components. Close releases the store and cache.
type App struct {
	Config       *config.Config
	Logger       *logging.Logger
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	Store        storage.Store
	Cache        *storage.RedisCache
	Resolver     *walletage.Resolver
	Dispatcher   *alert.Dispatcher
	Orchestrator *scanner.Orchestrator
}

// NewLogger initializes the global logger from configuration
func NewLogger(cfg *config.Config) *logging.Logger {
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	return logging.GetGlobalLogger()
}

// Migrate applies pending migrations for the configured engine
func Migrate(cfg *config.Config) error {
	dialect, url := MigrationTarget(cfg)
	return migrations.Up(dialect, url)
}

// MigrationTarget returns the migration dialect and URL for the configured engine
func MigrationTarget(cfg *config.Config) (migrations.Dialect, string) {
	if cfg.Database.Driver == "postgres" {
		return migrations.Postgres, migrations.PostgresURL(cfg.Database.Postgres.URL())
	}
	return migrations.SQLite, migrations.SQLiteURL(cfg.Database.SQLite.Path)
}

// OpenStore migrates and opens the configured store
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if err := Migrate(cfg); err != nil {
		return nil, fmt.Errorf("failed to migrate %s store: %w", cfg.Database.Driver, err)
	}
	if cfg.Database.Driver == "postgres" {
		store, err := postgres.Open(ctx, cfg.Database.Postgres.URL(), cfg.Database.Postgres.MaxConnections)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := sqlite.Open(cfg.Database.SQLite.Path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// New wires the full detection pipeline
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	logger = logging.OrGlobal(logger)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	a := &App{Config: cfg, Logger: logger, Registry: reg, Metrics: m}

	logger.WithField("driver", cfg.Database.Driver).Info("Opening store")
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store

	if cfg.Database.Redis.Enabled {
		cache, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			// The shared tier is optional; the in-process cache still works
			logger.WithError(err).Warn("Redis unavailable, continuing without shared wallet-age cache")
		} else {
			a.Cache = cache
		}
	}

	polymarket := adapter.NewPolymarketClient(adapter.PolymarketConfig{
		DataURL:  cfg.Polymarket.DataURL,
		GammaURL: cfg.Polymarket.GammaURL,
		APIKey:   cfg.Polymarket.APIKey,
		RPS:      cfg.Polymarket.RPS,
		Timeout:  cfg.Polymarket.Timeout,
		Logger:   logger,
	})

	var sources []walletage.Source
	if cfg.Explorer.APIKey != "" {
		explorer := adapter.NewPolygonscanClient(adapter.PolygonscanConfig{
			BaseURL: cfg.Explorer.BaseURL,
			APIKey:  cfg.Explorer.APIKey,
			ChainID: cfg.Explorer.ChainID,
			RPS:     cfg.Explorer.RPS,
			Timeout: cfg.Explorer.Timeout,
			Logger:  logger,
		})
		breakerCfg := circuitbreaker.DefaultConfig("explorer")
		breakerCfg.Logger = logger
		sources = append(sources, walletage.NewExplorerSource(explorer, circuitbreaker.NewCircuitBreaker(breakerCfg)))
	} else {
		logger.Warn("No explorer API key configured, wallet ages come from venue activity only")
	}
	sources = append(sources, walletage.NewActivitySource(polymarket))

	resolverOpts := []walletage.Option{
		walletage.WithMetrics(m),
		walletage.WithLogger(logger),
	}
	if a.Cache != nil {
		resolverOpts = append(resolverOpts, walletage.WithSharedCache(a.Cache, cfg.WalletAge.RedisTTL))
	}
	resolver, err := walletage.NewResolver(cfg.WalletAge.CacheSize, sources, resolverOpts...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create wallet-age resolver: %w", err)
	}
	a.Resolver = resolver

	scorer := scoring.NewScorer(store, scoring.WithLogger(logger))
	an := analyzer.New(resolver, scorer, store, analyzer.WithLogger(logger))

	channels := alert.ChannelsFromConfig(cfg.Alerts, &http.Client{Timeout: cfg.Alerts.Timeout})
	a.Dispatcher = alert.NewDispatcher(channels,
		alert.WithTimeout(cfg.Alerts.Timeout),
		alert.WithMetrics(m),
		alert.WithLogger(logger))
	if len(channels) == 0 {
		logger.Warn("No alert channels configured, detections will only be stored")
	} else {
		logger.WithField("channels", a.Dispatcher.Channels()).Info("Alert channels configured")
	}

	a.Orchestrator = scanner.NewOrchestrator(polymarket, an, a.Dispatcher, store,
		scanner.WithMetrics(m),
		scanner.WithLogger(logger),
		scanner.WithLimits(cfg.Scan.RecentLimit, cfg.Scan.MarketLimit, cfg.Scan.ActivityLimit),
		scanner.WithMarketDelay(cfg.Scan.MarketDelay),
		scanner.WithRetry(cfg.Scan.MaxRetries, cfg.Scan.RetryBaseDelay))

	return a, nil
}

// NewScheduler creates a scheduler running the configured mode
func (a *App) NewScheduler(runOnStart bool) (*scanner.Scheduler, error) {
	return scanner.NewScheduler(a.Orchestrator, scanner.SchedulerConfig{
		Mode:       a.Config.Scan.Mode,
		Interval:   a.Config.Scan.Interval,
		Detection:  a.Config.DetectionConfig(),
		RunOnStart: runOnStart,
		Logger:     a.Logger,
	})
}

// Close releases the store and cache
func (a *App) Close() error {
	var firstErr error
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			firstErr = err
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
