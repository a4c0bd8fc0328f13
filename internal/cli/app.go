package cli

import (
	"context"
	"errors"
	"fmt"

	"orcamento/internal/aggregate"
	"orcamento/internal/backend"
	"orcamento/internal/cache"
	"orcamento/internal/classification"
	"orcamento/internal/config"
	"orcamento/internal/export"
	"orcamento/internal/ledger"
	"orcamento/internal/log"
	"orcamento/internal/provider"
	"orcamento/internal/services"
	"orcamento/internal/sheets"
	gsheet "orcamento/internal/sheets/google"
)

// App holds the report stack every binary runs on.
type App struct {
	Config   *config.Config
	Source   ledger.Source
	Store    *cache.FileStore
	Provider *provider.Provider
	Reports  *services.ReportService
	Sheets   sheets.ReportWriter

	watch   backend.WatchFunc
	cleanup backend.CleanupFunc
	logger  *log.Logger
}

// NewApp opens the configured ledger source and assembles the provider,
// engine, exporter and report service on top of it. publisher may be nil,
// in which case jobs run inline.
func NewApp(ctx context.Context, cfg *config.Config, publisher services.JobPublisher, logger *log.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Source:  res.Source,
		watch:   res.Watch,
		cleanup: res.Cleanup,
		logger:  logger,
	}

	if cfg.CacheEnabled {
		app.Store, err = cache.NewFileStore(cache.FileStoreConfig{
			Dir:        cfg.CacheDir,
			DefaultTTL: cfg.CacheTTL,
			Retention:  cfg.CacheRetention,
		}, logger)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to open cache store: %w", err)
		}
	}

	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			TabBase:         cfg.GoogleExportSheet,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			// Sheets exports then fail with services.ErrNoSheets.
			logger.Warn("Google Sheets export disabled", log.FieldError, err)
		} else {
			app.Sheets = client
		}
	}

	app.Provider = provider.New(app.Source, app.Store, provider.Config{
		CacheEnabled: cfg.CacheEnabled,
		ExtractTTL:   cfg.CacheTTL,
		UnitsTTL:     cfg.UnitsCacheTTL,
	}, logger)

	deps := services.ReportDeps{
		Provider:  app.Provider,
		Engine:    aggregate.NewEngine(classification.Expense(), classification.Revenue(), logger),
		Store:     app.Store,
		Exporter:  export.NewExporter(cfg.ExportDir, logger),
		Sheets:    app.Sheets,
		Publisher: publisher,
	}
	app.Reports = services.NewReportService(deps, services.ReportServiceConfig{TreeTTL: cfg.CacheTTL}, logger)

	logger.Info("Report stack ready",
		"backend", cfg.LedgerBackend,
		"cache_enabled", cfg.CacheEnabled,
		"sheets_enabled", app.Sheets != nil,
		"jobs_queued", publisher != nil)
	return app, nil
}

// Watch reloads the ledger when its seed files change and drops every
// cached extract and report. Backends without a watcher are a no-op.
func (a *App) Watch(ctx context.Context) error {
	if a.watch == nil {
		return nil
	}
	return a.watch(ctx, func() {
		removed := a.Reports.ClearCache(ctx)
		a.logger.Info("Ledger changed, cache cleared", "removed", removed)
	})
}

// Close releases the ledger source.
func (a *App) Close() error {
	if a.cleanup == nil {
		return nil
	}
	if err := a.cleanup(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
