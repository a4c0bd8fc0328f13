package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"orcamento/internal/aggregate"
	"orcamento/internal/cache"
	"orcamento/internal/core"
	"orcamento/internal/export"
	"orcamento/internal/log"
	"orcamento/internal/provider"
	"orcamento/internal/sheets"
)

// Export targets accepted by RequestExport.
const (
	TargetCSV    = "csv"
	TargetXLSX   = "xlsx"
	TargetSheets = "sheets"
)

var (
	ErrNoPublisher   = errors.New("job publisher not configured")
	ErrNoSheets      = errors.New("spreadsheet export not configured")
	ErrUnknownTarget = errors.New("unknown export target")
)

var treeColumns = []string{"selector", "categories", "grand_total"}

// JobPublisher queues background jobs.
type JobPublisher interface {
	PublishCacheRefresh(ctx context.Context, reason string) (jobID string, err error)
	PublishExportRequest(ctx context.Context, sel core.Selector, target string) (jobID string, err error)
}

// ReportServiceConfig sizes the in-memory tree cache.
type ReportServiceConfig struct {
	// TreeCacheSize is the number of built trees kept in memory (default: 128)
	TreeCacheSize int

	// TreeTTL is how long a built tree stays valid in memory and on disk (default: 12h)
	TreeTTL time.Duration
}

// DefaultReportServiceConfig returns sensible defaults
func DefaultReportServiceConfig() ReportServiceConfig {
	return ReportServiceConfig{
		TreeCacheSize: 128,
		TreeTTL:       cache.DefaultTTL,
	}
}

// ReportService builds the reports: it fetches through the provider, runs
// the engine and keeps built comparative trees in two cache tiers.
type ReportService struct {
	provider  *provider.Provider
	engine    *aggregate.Engine
	trees     *cache.LRUCache[core.ComparativeTree]
	store     *cache.FileStore
	exporter  *export.Exporter
	sheets    sheets.ReportWriter
	publisher JobPublisher
	config    ReportServiceConfig
	logger    *log.Logger
}

// ReportDeps are the collaborators of a ReportService. Store, Sheets and
// Publisher are optional.
type ReportDeps struct {
	Provider  *provider.Provider
	Engine    *aggregate.Engine
	Store     *cache.FileStore
	Exporter  *export.Exporter
	Sheets    sheets.ReportWriter
	Publisher JobPublisher
}

// NewReportService creates a report service.
func NewReportService(deps ReportDeps, config ReportServiceConfig, logger *log.Logger) *ReportService {
	def := DefaultReportServiceConfig()
	if config.TreeCacheSize <= 0 {
		config.TreeCacheSize = def.TreeCacheSize
	}
	if config.TreeTTL <= 0 {
		config.TreeTTL = def.TreeTTL
	}
	return &ReportService{
		provider:  deps.Provider,
		engine:    deps.Engine,
		trees:     cache.NewLRUCache[core.ComparativeTree](config.TreeCacheSize, config.TreeTTL),
		store:     deps.Store,
		exporter:  deps.Exporter,
		sheets:    deps.Sheets,
		publisher: deps.Publisher,
		config:    config,
		logger:    logger.WithComponent(log.ComponentReport),
	}
}

// TreeCache exposes the in-memory tier so it can be registered for cleanup.
func (s *ReportService) TreeCache() *cache.LRUCache[core.ComparativeTree] { return s.trees }

// Provider returns the data provider behind the service.
func (s *ReportService) Provider() *provider.Provider { return s.provider }

func treeResult(tree core.ComparativeTree) core.Result[core.ComparativeTree] {
	if tree.IsEmpty() {
		return core.Empty(tree)
	}
	return core.Success(tree)
}

func (s *ReportService) logResult(ctx context.Context, report string, sel core.Selector, kind core.ResultKind) {
	s.logger.DebugContext(ctx, "Report built",
		"report", report,
		log.FieldFiscalYear, sel.FiscalYear,
		log.FieldMonth, sel.Month,
		log.FieldUnit, sel.UnitKey(),
		log.FieldResultKind, kind.String())
}

// Comparative returns the comparative tree for sel, built from raw ledger
// records. Successful trees are cached in memory and on disk.
func (s *ReportService) Comparative(ctx context.Context, sel core.Selector) core.Result[core.ComparativeTree] {
	key := core.ComparativeKey(sel)
	if tree, ok := s.trees.Get(key); ok {
		return treeResult(tree)
	}
	if s.store != nil && s.provider.CacheEnabled() {
		var tree core.ComparativeTree
		if s.store.Get(key, treeColumns, &tree) {
			s.trees.Set(key, tree)
			return treeResult(tree)
		}
	}

	res := core.Then(s.provider.FetchForSelector(ctx, sel), func(records []core.RawRecord) core.ComparativeTree {
		return s.engine.BuildComparative(records, sel)
	})
	if res.Kind == core.ResultSourceError {
		return res
	}
	res = treeResult(res.Value)
	if res.Kind == core.ResultSuccess {
		s.trees.Set(key, res.Value)
		if s.store != nil && s.provider.CacheEnabled() {
			s.store.Put(key, treeColumns, res.Value, s.config.TreeTTL)
		}
	}
	s.logResult(ctx, "comparative", sel, res.Kind)
	return res
}

// ComparativeFromViews builds the same tree from the pre-aggregated level
// rows of the source. Only the in-memory tier is used.
func (s *ReportService) ComparativeFromViews(ctx context.Context, sel core.Selector) core.Result[core.ComparativeTree] {
	key := core.ReportKey("comparative_views", sel)
	if tree, ok := s.trees.Get(key); ok {
		return treeResult(tree)
	}

	res := core.Then(s.provider.FetchAggregated(ctx, sel), func(rows []core.AggregatedRow) core.ComparativeTree {
		return s.engine.BuildFromAggregated(rows, sel)
	})
	if res.Kind == core.ResultSourceError {
		return res
	}
	res = treeResult(res.Value)
	if res.Kind == core.ResultSuccess {
		s.trees.Set(key, res.Value)
	}
	s.logResult(ctx, "comparative_views", sel, res.Kind)
	return res
}

// Credits returns the additional-credit summary of the selected year.
func (s *ReportService) Credits(ctx context.Context, sel core.Selector) core.Result[core.CreditTree] {
	res := core.Then(s.provider.FetchCredits(ctx, sel), func(records []core.CreditRecord) core.CreditTree {
		return s.engine.BuildCredits(records, sel)
	})
	if res.Kind != core.ResultSourceError && res.Value.IsEmpty() {
		res.Kind = core.ResultEmpty
	}
	s.logResult(ctx, "credits", sel, res.Kind)
	return res
}

// Revenue returns the revenue comparative for sel.
func (s *ReportService) Revenue(ctx context.Context, sel core.Selector) core.Result[core.RevenueTree] {
	res := core.Then(s.provider.FetchRevenue(ctx, sel), func(records []core.RevenueRecord) core.RevenueTree {
		return s.engine.BuildRevenue(records, sel)
	})
	if res.Kind != core.ResultSourceError && res.Value.IsEmpty() {
		res.Kind = core.ResultEmpty
	}
	s.logResult(ctx, "revenue", sel, res.Kind)
	return res
}

// Units lists the managing units.
func (s *ReportService) Units(ctx context.Context) core.Result[[]core.Unit] {
	return s.provider.ListUnits(ctx)
}

// Filters lists the selectable values.
func (s *ReportService) Filters(ctx context.Context) core.Result[core.FilterOptions] {
	return s.provider.Filters(ctx)
}

// Records pages through the selected year's records, through the selected
// month, for the selected unit.
func (s *ReportService) Records(ctx context.Context, sel core.Selector, page, perPage int) core.Result[core.Page[core.RawRecord]] {
	res := core.Then(s.provider.FetchForSelector(ctx, sel), func(records []core.RawRecord) core.Page[core.RawRecord] {
		current, _ := aggregate.Partition(records, sel)
		return core.Paginate(aggregate.FilterUnit(current, sel.Unit), page, perPage)
	})
	if res.Kind != core.ResultSourceError && res.Value.Total == 0 {
		res.Kind = core.ResultEmpty
	}
	return res
}

// Summary totals the records per fiscal year and per unit.
func (s *ReportService) Summary(ctx context.Context, sel core.Selector) core.Result[core.FinancialSummary] {
	return core.Then(s.provider.FetchForSelector(ctx, sel), func(records []core.RawRecord) core.FinancialSummary {
		return s.engine.Summary(records, sel)
	})
}

// Dashboard is the comparative tree and the credit summary of one selector.
type Dashboard struct {
	Comparative core.ComparativeTree `json:"comparative"`
	Credits     core.CreditTree      `json:"credits"`
}

// Dashboard builds the comparative and the credit reports concurrently. A
// source failure of either makes the whole result a source error.
func (s *ReportService) Dashboard(ctx context.Context, sel core.Selector) core.Result[Dashboard] {
	var (
		comparative core.Result[core.ComparativeTree]
		credits     core.Result[core.CreditTree]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		comparative = s.Comparative(gctx, sel)
		if comparative.Kind == core.ResultSourceError {
			return fmt.Errorf("comparative: %w", comparative.Err)
		}
		return nil
	})
	g.Go(func() error {
		credits = s.Credits(gctx, sel)
		if credits.Kind == core.ResultSourceError {
			return fmt.Errorf("credits: %w", credits.Err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.SourceError[Dashboard](err)
	}

	d := Dashboard{Comparative: comparative.Value, Credits: credits.Value}
	if comparative.Kind == core.ResultEmpty && credits.Kind == core.ResultEmpty {
		return core.Empty(d)
	}
	return core.Success(d)
}

// ExportCSV writes the comparative tree of sel to the export directory and
// returns the file path. The error is set when writing fails.
func (s *ReportService) ExportCSV(ctx context.Context, sel core.Selector) (core.Result[string], error) {
	res := s.Comparative(ctx, sel)
	if res.Kind == core.ResultSourceError {
		return core.SourceError[string](res.Err), nil
	}
	path, err := s.exporter.SaveCSV(res.Value)
	if err != nil {
		return core.Result[string]{}, fmt.Errorf("save csv: %w", err)
	}
	return core.Result[string]{Kind: res.Kind, Value: path}, nil
}

// ExportXLSX writes the comparative tree of sel to the export directory as a
// workbook and returns the file path.
func (s *ReportService) ExportXLSX(ctx context.Context, sel core.Selector) (core.Result[string], error) {
	res := s.Comparative(ctx, sel)
	if res.Kind == core.ResultSourceError {
		return core.SourceError[string](res.Err), nil
	}
	path, err := s.exporter.SaveXLSX(res.Value)
	if err != nil {
		return core.Result[string]{}, fmt.Errorf("save xlsx: %w", err)
	}
	return core.Result[string]{Kind: res.Kind, Value: path}, nil
}

// ExportCreditsCSV writes the credit summary of sel to the export directory.
func (s *ReportService) ExportCreditsCSV(ctx context.Context, sel core.Selector) (core.Result[string], error) {
	res := s.Credits(ctx, sel)
	if res.Kind == core.ResultSourceError {
		return core.SourceError[string](res.Err), nil
	}
	path, err := s.exporter.SaveCreditsCSV(res.Value)
	if err != nil {
		return core.Result[string]{}, fmt.Errorf("save credits csv: %w", err)
	}
	return core.Result[string]{Kind: res.Kind, Value: path}, nil
}

// ExportSheets writes the comparative tree of sel to the spreadsheet and
// returns the range written.
func (s *ReportService) ExportSheets(ctx context.Context, sel core.Selector) (core.Result[string], error) {
	if s.sheets == nil {
		return core.Result[string]{}, ErrNoSheets
	}
	res := s.Comparative(ctx, sel)
	if res.Kind == core.ResultSourceError {
		return core.SourceError[string](res.Err), nil
	}
	rng, err := s.sheets.WriteReport(ctx, sel.FiscalYear, export.ToSheetValues(export.Flatten(res.Value)))
	if err != nil {
		return core.Result[string]{}, fmt.Errorf("write sheet: %w", err)
	}
	return core.Result[string]{Kind: res.Kind, Value: rng}, nil
}

// RequestExport queues an export job for a worker.
func (s *ReportService) RequestExport(ctx context.Context, sel core.Selector, target string) (string, error) {
	if target != TargetCSV && target != TargetXLSX && target != TargetSheets {
		return "", fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	if s.publisher == nil {
		return "", ErrNoPublisher
	}
	return s.publisher.PublishExportRequest(ctx, sel, target)
}

// RequestRefresh queues a cache refresh job. Without a publisher the
// refresh runs inline and the returned job ID is empty.
func (s *ReportService) RequestRefresh(ctx context.Context, reason string) (string, error) {
	if s.publisher == nil {
		if res := s.Refresh(ctx); res.Kind == core.ResultSourceError {
			return "", res.Err
		}
		return "", nil
	}
	return s.publisher.PublishCacheRefresh(ctx, reason)
}

// Refresh drops the built trees and fetches the full extract again. The
// value is the number of records fetched.
func (s *ReportService) Refresh(ctx context.Context) core.Result[int] {
	dropped := s.trees.Clear()
	if s.store != nil {
		dropped += s.store.InvalidatePrefix("comparative_")
	}
	res := core.Then(s.provider.Refresh(ctx), func(records []core.RawRecord) int { return len(records) })
	s.logger.InfoContext(ctx, "Cache refreshed",
		log.FieldOperation, log.OpRefresh,
		"trees_dropped", dropped,
		log.FieldResultKind, res.Kind.String(),
		log.FieldRecords, res.Value)
	return res
}

// CacheStatus describes both cache tiers.
type CacheStatus struct {
	Enabled     bool        `json:"enabled"`
	TreeEntries int         `json:"tree_entries"`
	Files       cache.Stats `json:"files"`
}

// CacheStatus reports the state of both cache tiers.
func (s *ReportService) CacheStatus() CacheStatus {
	st := CacheStatus{Enabled: s.provider.CacheEnabled(), TreeEntries: s.trees.Size()}
	if s.store != nil {
		st.Files = s.store.Stats()
	}
	return st
}

// ClearCache empties both tiers and returns how many entries were removed.
func (s *ReportService) ClearCache(ctx context.Context) int {
	removed := s.trees.Clear()
	if s.store != nil {
		removed += s.store.InvalidateAll()
	}
	s.logger.InfoContext(ctx, "Cache cleared", log.FieldOperation, log.OpInvalidate, "removed", removed)
	return removed
}
