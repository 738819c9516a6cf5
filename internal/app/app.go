package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/domus/internal/common"
	"github.com/ternarybob/domus/internal/durable"
	"github.com/ternarybob/domus/internal/handlers"
	"github.com/ternarybob/domus/internal/interfaces"
	"github.com/ternarybob/domus/internal/services/fetch"
	"github.com/ternarybob/domus/internal/services/llm"
	"github.com/ternarybob/domus/internal/services/qa"
	"github.com/ternarybob/domus/internal/services/research"
	"github.com/ternarybob/domus/internal/services/scraper"
	badgerstore "github.com/ternarybob/domus/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager *badgerstore.Manager

	// Durable actor runtime
	Runtime *durable.Runtime

	// Scraping pipeline
	BrowserProvider *fetch.BrowserProvider
	LLMFactory      *llm.ProviderFactory
	ScraperService  *scraper.Service
	QAEngine        *qa.Engine

	// Research actor API
	ResearchService *research.Service

	// HTTP handlers
	ResearchHandler *handlers.ResearchHandler
	KVHandler       *handlers.KVHandler
	StatusHandler   *handlers.StatusHandler

	// Background maintenance
	maintenance *cron.Cron
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.initServices()
	app.initHandlers()

	if err := app.startMaintenance(); err != nil {
		return nil, fmt.Errorf("failed to start maintenance jobs: %w", err)
	}

	logger.Info().
		Str("llm_provider", string(cfg.LLM.DefaultProvider)).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage initializes the Badger storage layer
func (a *App) initStorage() error {
	manager, err := badgerstore.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}

	a.StorageManager = manager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices wires the durable runtime and the scraping pipeline
func (a *App) initServices() {
	retry := &durable.RetryPolicy{
		MaxAttempts:       a.Config.Research.MaxAttempts,
		InitialBackoff:    a.Config.Research.InitialBackoff,
		MaxBackoff:        a.Config.Research.MaxBackoff,
		BackoffMultiplier: a.Config.Research.BackoffMultiplier,
	}

	a.Runtime = durable.NewRuntime(
		a.StorageManager.JournalStorage(),
		a.StorageManager.ProjectStorage(),
		retry,
		a.Logger,
	)

	a.LLMFactory = llm.NewProviderFactory(
		&a.Config.Claude,
		&a.Config.Gemini,
		&a.Config.LLM,
		a.StorageManager.KeyValueStorage(),
		a.Logger,
	)

	a.BrowserProvider = fetch.NewBrowserProvider(a.Config.Fetch, a.Logger)
	providers := []interfaces.FetchProvider{
		fetch.NewHTTPProvider(a.Config.Fetch, a.Logger),
		a.BrowserProvider,
	}

	a.ScraperService = scraper.NewService(providers, a.LLMFactory, a.Config, a.Logger)
	a.QAEngine = qa.NewEngine(a.LLMFactory, a.Logger)
	a.ResearchService = research.NewService(a.Runtime, a.ScraperService, a.QAEngine, a.Logger)
}

// initHandlers wires the HTTP handlers
func (a *App) initHandlers() {
	a.ResearchHandler = handlers.NewResearchHandler(a.ResearchService, a.Logger)
	a.KVHandler = handlers.NewKVHandler(a.StorageManager.KeyValueStorage(), a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.Logger)
}

// startMaintenance schedules Badger value-log GC while serving
func (a *App) startMaintenance() error {
	schedule := a.Config.Maintenance.GCSchedule
	if schedule == "" {
		return nil
	}

	a.maintenance = cron.New(cron.WithSeconds())
	_, err := a.maintenance.AddFunc(schedule, func() {
		a.StorageManager.DB().RunValueLogGC()
	})
	if err != nil {
		return fmt.Errorf("invalid GC schedule %q: %w", schedule, err)
	}

	a.maintenance.Start()
	a.Logger.Debug().Str("schedule", schedule).Msg("Badger GC scheduled")
	return nil
}

// Shutdown stops background work and closes storage
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info().Msg("Shutting down application...")

	if a.maintenance != nil {
		stopCtx := a.maintenance.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}

	a.BrowserProvider.Shutdown()

	if err := a.LLMFactory.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("LLM factory close failed")
	}

	if err := a.StorageManager.Close(); err != nil {
		return fmt.Errorf("storage close failed: %w", err)
	}

	a.Logger.Info().Msg("Application shut down")
	return nil
}
