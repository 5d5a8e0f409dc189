// Package core wires the host's components together. The server and the
// CLI both build an App and use its accessors.
package core

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/vrsandeep/mango-runner/internal/config"
	"github.com/vrsandeep/mango-runner/internal/db"
	"github.com/vrsandeep/mango-runner/internal/engine"
	"github.com/vrsandeep/mango-runner/internal/jobs"
	"github.com/vrsandeep/mango-runner/internal/logging"
	"github.com/vrsandeep/mango-runner/internal/network"
	"github.com/vrsandeep/mango-runner/internal/registry"
	"github.com/vrsandeep/mango-runner/internal/repository"
	"github.com/vrsandeep/mango-runner/internal/store"
	"github.com/vrsandeep/mango-runner/internal/websocket"
)

// App holds the components shared between the server and the CLI.
type App struct {
	config   *config.Config
	db       *sql.DB
	store    *store.Store
	logger   zerolog.Logger
	metrics  *prometheus.Registry
	registry *registry.Registry
	repos    *repository.Service
	hub      *websocket.Hub
	jobs     *jobs.JobManager

	ctx       context.Context
	cancel    context.CancelFunc
	watcher   *registry.Watcher
	scheduler *gocron.Scheduler
}

// New loads config.yml and builds an App from it.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.RunMigrations(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	app, err := NewWithDB(cfg, database, logging.New(cfg))
	if err != nil {
		database.Close()
		return nil, err
	}
	return app, nil
}

// NewWithDB builds an App around an open, migrated database.
func NewWithDB(cfg *config.Config, database *sql.DB, logger zerolog.Logger) (*App, error) {
	if cfg.SecureStore.Key == "" {
		logger.Warn().Msg("secure_store.key is empty; secure runner values are encrypted with a key derived from an empty passphrase")
	}
	secrets, err := engine.NewSecretBox(cfg.SecureStore.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to set up secure store: %w", err)
	}

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := websocket.NewHub()
	hub.SetLogger(logger.With().Str("component", "websocket").Logger())

	st := store.New(database)
	reg := registry.New(registry.Options{
		Store:       st,
		Logger:      logger,
		Notifier:    hub,
		DevToolsURL: cfg.Browser.DevToolsURL,
		NetworkDefaults: network.Defaults{
			Timeout:   time.Duration(cfg.Network.Timeout) * time.Second,
			UserAgent: cfg.Network.UserAgent,
		},
		NetworkMetrics: network.NewMetrics(metrics),
		CallMetrics:    engine.NewMetrics(metrics),
		CallTimeout:    time.Duration(cfg.Runners.CallTimeout) * time.Second,
		Secrets:        secrets,
		HostVersion:    config.Version,
	})

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		config:   cfg,
		db:       database,
		store:    st,
		logger:   logger,
		metrics:  metrics,
		registry: reg,
		hub:      hub,
		ctx:      ctx,
		cancel:   cancel,
	}
	app.repos = repository.NewService(repository.Options{
		Store:       st,
		Loader:      reg,
		RunnersDir:  cfg.Runners.Path,
		HostVersion: config.Version,
		Logger:      logger.With().Str("component", "repository").Logger(),
	})
	app.jobs = jobs.NewManager(ctx, app)
	jobs.RegisterDefaultJobs(app.jobs)

	go hub.Run()
	return app, nil
}

// LoadRunners loads every bundle in the runners directory and returns
// the directory's absolute path. Runners that fail to load are logged
// and skipped.
func (a *App) LoadRunners() (string, error) {
	dir, err := filepath.Abs(a.config.Runners.Path)
	if err != nil {
		return "", err
	}
	if _, err := a.registry.LoadAll(a.ctx, dir); err != nil {
		a.logger.Warn().Err(err).Msg("Some runners failed to load")
	}
	return dir, nil
}

// Start loads the installed runners and starts the watcher and scheduler.
func (a *App) Start() error {
	dir, err := a.LoadRunners()
	if err != nil {
		return err
	}

	if a.config.Runners.Watch {
		a.watcher = registry.NewWatcher(a.registry, dir, time.Second)
		a.watcher.OnReload = func(bundleDir string, err error) {
			if err != nil {
				a.hub.Notify("runner_error", map[string]string{"bundle": bundleDir, "error": err.Error()})
			}
		}
		if err := a.watcher.Start(a.ctx); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	a.scheduler = jobs.StartJobs(a, a.jobs)
	return nil
}

// Close stops background work, disposes every runner and closes the DB.
func (a *App) Close() {
	a.cancel()
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.jobs.Wait()
	if err := a.registry.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to dispose runners")
	}
	a.hub.Stop()
	if a.db != nil {
		a.db.Close()
	}
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.config }

// DB returns the database handle.
func (a *App) DB() *sql.DB { return a.db }

// Store returns the data access layer.
func (a *App) Store() *store.Store { return a.store }

// Logger returns the root logger.
func (a *App) Logger() zerolog.Logger { return a.logger }

// Metrics returns the prometheus registry the host reports to.
func (a *App) Metrics() *prometheus.Registry { return a.metrics }

// Registry returns the runner registry.
func (a *App) Registry() *registry.Registry { return a.registry }

// Repositories returns the repository service.
func (a *App) Repositories() *repository.Service { return a.repos }

// WsHub returns the notification hub.
func (a *App) WsHub() *websocket.Hub { return a.hub }

// JobManager returns the background job manager.
func (a *App) JobManager() *jobs.JobManager { return a.jobs }
