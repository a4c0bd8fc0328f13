// Package provider fetches ledger data for the reports, from the file cache
// when a fresh extract is available and from the ledger source otherwise.
package provider

import (
	"context"
	"slices"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"orcamento/internal/cache"
	"orcamento/internal/core"
	"orcamento/internal/ledger"
	"orcamento/internal/log"
)

const (
	DefaultUnitsTTL = 24 * time.Hour
)

var unitColumns = []string{"id", "name"}

// Config tunes the provider.
type Config struct {
	// CacheEnabled selects the cached full-extract path. When false every
	// request queries the source with narrow predicates.
	CacheEnabled bool
	ExtractTTL   time.Duration
	UnitsTTL     time.Duration
	Now          func() time.Time
}

// Provider is the single entry point to ledger data.
type Provider struct {
	source ledger.Source
	store  *cache.FileStore
	cfg    Config
	logger *log.Logger
	group  singleflight.Group
}

// New creates a provider. store may be nil, which disables caching.
func New(source ledger.Source, store *cache.FileStore, cfg Config, logger *log.Logger) *Provider {
	if cfg.ExtractTTL <= 0 {
		cfg.ExtractTTL = cache.DefaultTTL
	}
	if cfg.UnitsTTL <= 0 {
		cfg.UnitsTTL = DefaultUnitsTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if store == nil {
		cfg.CacheEnabled = false
	}
	return &Provider{
		source: source,
		store:  store,
		cfg:    cfg,
		logger: logger.WithComponent(log.ComponentProvider),
	}
}

// CacheEnabled reports whether the full-extract cache is in use.
func (p *Provider) CacheEnabled() bool { return p.cfg.CacheEnabled }

// Source exposes the underlying ledger source for health checks.
func (p *Provider) Source() ledger.Source { return p.source }

// Window returns the fiscal years covered by the full extract: the previous
// and the current calendar year.
func (p *Provider) Window() []int {
	y := p.cfg.Now().Year()
	return []int{y - 1, y}
}

// SelectorQuery narrows a ledger read to what a comparative report needs:
// the selected and the prior fiscal year, through the selected month.
func SelectorQuery(sel core.Selector) ledger.Query {
	q := ledger.Query{FiscalYears: []int{sel.PriorYear(), sel.FiscalYear}, MonthLimit: sel.Month}
	if !sel.IsConsolidated() {
		q.UnitID = sel.Unit
	}
	return q
}

func resultOf[T any](items []T) core.Result[[]T] {
	if len(items) == 0 {
		return core.Empty(items)
	}
	return core.Success(items)
}

// FetchFullExtract returns the two-year extract, from the cache when fresh.
// Concurrent misses share one source query.
func (p *Provider) FetchFullExtract(ctx context.Context) core.Result[[]core.RawRecord] {
	key := core.ExtractKey(p.cfg.Now())

	if p.cfg.CacheEnabled {
		var cached []core.RawRecord
		if p.store.Get(key, core.RawRecordColumns, &cached) {
			p.logger.DebugContext(ctx, "Extract served from cache", log.FieldCacheKey, key, log.FieldRecords, len(cached))
			return resultOf(cached)
		}
	}

	// The shared query outlives any single caller's cancellation.
	queryCtx := context.WithoutCancel(ctx)
	v, err, shared := p.group.Do(key, func() (any, error) {
		start := time.Now()
		rows, err := p.source.Extract(queryCtx, ledger.Query{FiscalYears: p.Window()})
		if err != nil {
			return nil, err
		}
		records := NormalizeRecords(rows, p.logger)
		p.logger.InfoContext(ctx, "Full extract fetched from source",
			log.FieldRecords, len(records), log.FieldDuration, time.Since(start).Milliseconds())

		if p.cfg.CacheEnabled {
			p.store.Put(key, core.RawRecordColumns, records, p.cfg.ExtractTTL)
		}
		return records, nil
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to fetch full extract",
			log.FieldOperation, log.OpFetch, log.FieldError, err)
		return core.SourceError[[]core.RawRecord](err)
	}
	if shared {
		p.logger.DebugContext(ctx, "Full extract shared with concurrent caller")
	}
	return resultOf(v.([]core.RawRecord))
}

// FetchFiltered queries the source directly with the given predicates.
func (p *Provider) FetchFiltered(ctx context.Context, q ledger.Query) core.Result[[]core.RawRecord] {
	rows, err := p.source.Extract(ctx, q)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to fetch filtered extract",
			log.FieldOperation, log.OpFetch, log.FieldError, err)
		return core.SourceError[[]core.RawRecord](err)
	}
	return resultOf(NormalizeRecords(rows, p.logger))
}

// FetchForSelector returns records covering sel. It serves the cached full
// extract when caching is on and both fiscal years fall in the window, and a
// filtered query otherwise. The engine partitions either result the same way.
func (p *Provider) FetchForSelector(ctx context.Context, sel core.Selector) core.Result[[]core.RawRecord] {
	window := p.Window()
	if p.cfg.CacheEnabled && slices.Contains(window, sel.FiscalYear) && slices.Contains(window, sel.PriorYear()) {
		return p.FetchFullExtract(ctx)
	}
	return p.FetchFiltered(ctx, SelectorQuery(sel))
}

// FetchAggregated returns pre-aggregated level rows for sel.
func (p *Provider) FetchAggregated(ctx context.Context, sel core.Selector) core.Result[[]core.AggregatedRow] {
	rows, err := p.source.AggregatedLevels(ctx, SelectorQuery(sel))
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to fetch aggregated levels", log.FieldError, err)
		return core.SourceError[[]core.AggregatedRow](err)
	}
	return resultOf(NormalizeAggregated(rows, p.logger))
}

// FetchCredits returns the additional-credit rows of the selected year.
func (p *Provider) FetchCredits(ctx context.Context, sel core.Selector) core.Result[[]core.CreditRecord] {
	q := SelectorQuery(sel)
	q.FiscalYears = []int{sel.FiscalYear}
	rows, err := p.source.Credits(ctx, q)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to fetch credits", log.FieldError, err)
		return core.SourceError[[]core.CreditRecord](err)
	}
	return resultOf(NormalizeCredits(rows, p.logger))
}

// FetchRevenue returns revenue rows of the selected and prior year.
func (p *Provider) FetchRevenue(ctx context.Context, sel core.Selector) core.Result[[]core.RevenueRecord] {
	rows, err := p.source.Revenue(ctx, SelectorQuery(sel))
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to fetch revenue", log.FieldError, err)
		return core.SourceError[[]core.RevenueRecord](err)
	}
	return resultOf(NormalizeRevenue(rows, p.logger))
}

// ListUnits returns the managing units. The list is cached for UnitsTTL; when
// the source fails or has no units it is derived from the cached extract.
func (p *Provider) ListUnits(ctx context.Context) core.Result[[]core.Unit] {
	if p.cfg.CacheEnabled {
		var cached []core.Unit
		if p.store.Get(core.UnitsKey, unitColumns, &cached) {
			return resultOf(cached)
		}
	}

	rows, err := p.source.Units(ctx)
	if err == nil {
		if units := NormalizeUnits(rows); len(units) > 0 {
			if p.cfg.CacheEnabled {
				p.store.Put(core.UnitsKey, unitColumns, units, p.cfg.UnitsTTL)
			}
			return core.Success(units)
		}
	} else {
		p.logger.WarnContext(ctx, "Failed to list units, deriving from extract", log.FieldError, err)
	}

	if p.cfg.CacheEnabled {
		var cached []core.RawRecord
		if p.store.Get(core.ExtractKey(p.cfg.Now()), core.RawRecordColumns, &cached) {
			return resultOf(UnitsFromRecords(cached, false))
		}
	}
	if err != nil {
		return core.SourceError[[]core.Unit](err)
	}
	return core.Empty([]core.Unit{})
}

// UnitsFromRecords lists the distinct units of records sorted by identifier.
// With movementOnly, units whose records are all zero are left out.
func UnitsFromRecords(records []core.RawRecord, movementOnly bool) []core.Unit {
	names := map[string]string{}
	for _, r := range records {
		if r.UnitID == "" || (movementOnly && !r.HasMovement()) {
			continue
		}
		if names[r.UnitID] == "" {
			names[r.UnitID] = r.UnitName
		}
	}
	units := make([]core.Unit, 0, len(names))
	for id, name := range names {
		units = append(units, core.Unit{ID: id, Name: name})
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
	return units
}

// Filters lists the values a caller can select, based on the full extract.
func (p *Provider) Filters(ctx context.Context) core.Result[core.FilterOptions] {
	res := p.FetchFullExtract(ctx)
	if res.Kind == core.ResultSourceError {
		return core.SourceError[core.FilterOptions](res.Err)
	}

	opts := core.FilterOptions{
		FiscalYears: []int{},
		Months:      []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		Units:       UnitsFromRecords(res.Value, true),
		Functions:   []string{},
		Sources:     []string{},
	}
	years := map[int]bool{}
	functions := map[string]bool{}
	sources := map[string]bool{}
	for _, r := range res.Value {
		if r.FiscalYear > 0 {
			years[r.FiscalYear] = true
		}
		if r.FunctionCode != "" {
			functions[r.FunctionCode] = true
		}
		if r.SourceCode != "" {
			sources[r.SourceCode] = true
		}
	}
	for y := range years {
		opts.FiscalYears = append(opts.FiscalYears, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(opts.FiscalYears)))
	opts.Functions = sortedKeys(functions)
	opts.Sources = sortedKeys(sources)

	if res.Kind == core.ResultEmpty {
		return core.Empty(opts)
	}
	return core.Success(opts)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Invalidate drops today's extract and the unit list from the cache.
func (p *Provider) Invalidate() {
	if p.store == nil {
		return
	}
	p.store.Invalidate(core.ExtractKey(p.cfg.Now()))
	p.store.Invalidate(core.UnitsKey)
}

// Refresh invalidates the cached extract and fetches it again.
func (p *Provider) Refresh(ctx context.Context) core.Result[[]core.RawRecord] {
	p.Invalidate()
	return p.FetchFullExtract(ctx)
}
