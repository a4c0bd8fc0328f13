package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orcamento/internal/aggregate"
	"orcamento/internal/cache"
	"orcamento/internal/classification"
	"orcamento/internal/core"
	"orcamento/internal/export"
	"orcamento/internal/ledger"
	"orcamento/internal/ledger/memory"
	"orcamento/internal/log"
	"orcamento/internal/provider"
	sheetsmem "orcamento/internal/sheets/memory"
)

var testNow = time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC)

var errDown = errors.New("ledger down")

// flakySource fails every read while down is set.
type flakySource struct {
	ledger.Source
	down  atomic.Bool
	reads atomic.Int32
}

func (f *flakySource) Extract(ctx context.Context, q ledger.Query) ([]ledger.Row, error) {
	f.reads.Add(1)
	if f.down.Load() {
		return nil, errDown
	}
	return f.Source.Extract(ctx, q)
}

func (f *flakySource) Credits(ctx context.Context, q ledger.Query) ([]ledger.Row, error) {
	if f.down.Load() {
		return nil, errDown
	}
	return f.Source.Credits(ctx, q)
}

func seedLedger() *memory.Store {
	d := decimal.RequireFromString
	return memory.New([]ledger.Balance{
		{FiscalYear: 2025, Month: 3, UnitID: "150001", AccountCode: 522110000, NatureCode: "31901100", Debit: d("1000")},
		{FiscalYear: 2025, Month: 3, UnitID: "150001", AccountCode: 622130100, NatureCode: "31901100", Credit: d("400")},
		{FiscalYear: 2025, Month: 5, UnitID: "150002", AccountCode: 522110000, NatureCode: "44905200", Debit: d("500")},
		{FiscalYear: 2025, Month: 5, UnitID: "150002", AccountCode: 622130100, NatureCode: "44905200", Credit: d("100")},
		{FiscalYear: 2025, Month: 8, UnitID: "150002", AccountCode: 622130100, NatureCode: "44905200", Credit: d("900")},
		{FiscalYear: 2024, Month: 3, UnitID: "150001", AccountCode: 622130100, NatureCode: "31901100", Credit: d("300")},
		{FiscalYear: 2025, Month: 6, UnitID: "150001", AccountCode: 521110000, NatureCode: "11180111", Debit: d("5000")},
		{FiscalYear: 2025, Month: 6, UnitID: "150001", AccountCode: 621210000, NatureCode: "11180111", Credit: d("1200")},
	}, []ledger.CreditMovement{
		{FiscalYear: 2025, Month: 3, UnitID: "150001", NatureCode: "31901100", Kind: ledger.ColSupplementary, Amount: d("200")},
	}, map[string]string{"150001": "SECRETARIA DA FAZENDA", "150002": "SECRETARIA DA SAUDE"})
}

type fixture struct {
	source   *flakySource
	store    *cache.FileStore
	provider *provider.Provider
	service  *ReportService
	sheets   *sheetsmem.Store
	exports  string
}

func newFixture(t *testing.T, publisher JobPublisher) *fixture {
	t.Helper()
	logger := log.Discard()
	src := &flakySource{Source: seedLedger()}
	store, err := cache.NewFileStore(cache.FileStoreConfig{Dir: t.TempDir(), Now: func() time.Time { return testNow }}, logger)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	p := provider.New(src, store, provider.Config{CacheEnabled: true, Now: func() time.Time { return testNow }}, logger)
	sheets := sheetsmem.New("")
	exports := t.TempDir()
	svc := NewReportService(ReportDeps{
		Provider:  p,
		Engine:    aggregate.NewEngine(classification.Expense(), classification.Revenue(), logger),
		Store:     store,
		Exporter:  export.NewExporter(exports, logger).WithClock(func() time.Time { return testNow }),
		Sheets:    sheets,
		Publisher: publisher,
	}, DefaultReportServiceConfig(), logger)
	return &fixture{source: src, store: store, provider: p, service: svc, sheets: sheets, exports: exports}
}

var sel2025 = core.NewSelector(2025, 6, core.Consolidated)

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestComparative(t *testing.T) {
	f := newFixture(t, nil)

	res := f.service.Comparative(context.Background(), sel2025)
	if res.Kind != core.ResultSuccess {
		t.Fatalf("kind = %s, err = %v", res.Kind, res.Err)
	}
	tree := res.Value
	if len(tree.Categories) != 2 {
		t.Fatalf("categories = %d, want 2", len(tree.Categories))
	}
	if !tree.GrandTotal.Current.Committed.Equal(decimal.NewFromInt(500)) {
		t.Errorf("current committed = %s, want 500", tree.GrandTotal.Current.Committed)
	}
	if !tree.GrandTotal.Prior.Committed.Equal(decimal.NewFromInt(300)) {
		t.Errorf("prior committed = %s, want 300", tree.GrandTotal.Prior.Committed)
	}
}

func TestComparativeServedFromCache(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := f.service.Comparative(ctx, sel2025)
	f.source.down.Store(true)

	second := f.service.Comparative(ctx, sel2025)
	if second.Kind != core.ResultSuccess || mustJSON(t, first.Value) != mustJSON(t, second.Value) {
		t.Fatalf("cached tree differs: kind=%s", second.Kind)
	}

	// A new service over the same file store reads the tree from disk.
	other := NewReportService(ReportDeps{
		Provider: f.provider,
		Engine:   aggregate.NewEngine(classification.Expense(), classification.Revenue(), log.Discard()),
		Store:    f.store,
	}, ReportServiceConfig{}, log.Discard())
	third := other.Comparative(ctx, sel2025)
	if third.Kind != core.ResultSuccess || mustJSON(t, first.Value) != mustJSON(t, third.Value) {
		t.Fatalf("tree from disk differs: kind=%s err=%v", third.Kind, third.Err)
	}
}

func TestComparativeSourceErrorNotCached(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.source.down.Store(true)

	res := f.service.Comparative(ctx, sel2025)
	if res.Kind != core.ResultSourceError || !errors.Is(res.Err, errDown) {
		t.Fatalf("kind = %s, err = %v", res.Kind, res.Err)
	}
	if f.service.CacheStatus().TreeEntries != 0 {
		t.Error("failed build was cached")
	}

	f.source.down.Store(false)
	if res := f.service.Comparative(ctx, sel2025); res.Kind != core.ResultSuccess {
		t.Errorf("after recovery kind = %s", res.Kind)
	}
}

func TestComparativeEmpty(t *testing.T) {
	f := newFixture(t, nil)
	res := f.service.Comparative(context.Background(), core.NewSelector(2022, 6, core.Consolidated))
	if res.Kind != core.ResultEmpty {
		t.Fatalf("kind = %s", res.Kind)
	}
	if res.Value.Categories == nil || len(res.Value.Categories) != 0 {
		t.Errorf("categories = %#v", res.Value.Categories)
	}
}

func TestComparativeFromViewsMatchesRaw(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, unit := range []string{core.Consolidated, "150001", "150002"} {
		sel := core.NewSelector(2025, 6, unit)
		raw := f.service.Comparative(ctx, sel)
		views := f.service.ComparativeFromViews(ctx, sel)
		if raw.Kind != views.Kind {
			t.Errorf("%s: kinds differ: %s vs %s", unit, raw.Kind, views.Kind)
		}
		if a, b := mustJSON(t, raw.Value), mustJSON(t, views.Value); a != b {
			t.Errorf("%s: trees differ\nraw:   %s\nviews: %s", unit, a, b)
		}
	}
}

func TestCreditsAndRevenue(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	credits := f.service.Credits(ctx, sel2025)
	if credits.Kind != core.ResultSuccess {
		t.Fatalf("credits kind = %s", credits.Kind)
	}
	if !credits.Value.Total.Values.TotalAlterations.Equal(decimal.NewFromInt(200)) {
		t.Errorf("credit total = %s", credits.Value.Total.Values.TotalAlterations)
	}

	revenue := f.service.Revenue(ctx, sel2025)
	if revenue.Kind != core.ResultSuccess {
		t.Fatalf("revenue kind = %s", revenue.Kind)
	}
	cur := revenue.Value.GrandTotal.Current
	if !cur.Realized.Equal(decimal.NewFromInt(1200)) || !cur.RealizedInMonth.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("realized = %s, in month = %s", cur.Realized, cur.RealizedInMonth)
	}

	if empty := f.service.Credits(ctx, core.NewSelector(2024, 6, core.Consolidated)); empty.Kind != core.ResultEmpty {
		t.Errorf("credits of 2024 kind = %s", empty.Kind)
	}
}

func TestRecordsAndSummary(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	page := f.service.Records(ctx, sel2025, 1, 1)
	if page.Kind != core.ResultSuccess {
		t.Fatalf("kind = %s", page.Kind)
	}
	if page.Value.Total != 2 || page.Value.Pages != 2 || len(page.Value.Items) != 1 {
		t.Errorf("page = %+v", page.Value)
	}

	unit := f.service.Records(ctx, core.NewSelector(2025, 6, "150002"), 1, 50)
	if unit.Value.Total != 1 || unit.Value.Items[0].UnitID != "150002" {
		t.Errorf("unit page = %+v", unit.Value)
	}

	summary := f.service.Summary(ctx, sel2025)
	if summary.Kind != core.ResultSuccess || len(summary.Value.ByUnit) != 2 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestDashboard(t *testing.T) {
	f := newFixture(t, nil)

	res := f.service.Dashboard(context.Background(), sel2025)
	if res.Kind != core.ResultSuccess {
		t.Fatalf("kind = %s err = %v", res.Kind, res.Err)
	}
	if res.Value.Comparative.IsEmpty() || res.Value.Credits.IsEmpty() {
		t.Errorf("dashboard parts missing: %+v", res.Value)
	}

	f2 := newFixture(t, nil)
	f2.source.down.Store(true)
	if res := f2.service.Dashboard(context.Background(), sel2025); res.Kind != core.ResultSourceError {
		t.Errorf("kind = %s, want source_error", res.Kind)
	}
}

func TestExports(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	csvRes, err := f.service.ExportCSV(ctx, sel2025)
	if err != nil || csvRes.Kind != core.ResultSuccess {
		t.Fatalf("ExportCSV: %+v %v", csvRes, err)
	}
	if _, err := os.Stat(csvRes.Value); err != nil {
		t.Errorf("export file missing: %v", err)
	}

	sheetRes, err := f.service.ExportSheets(ctx, sel2025)
	if err != nil || sheetRes.Kind != core.ResultSuccess {
		t.Fatalf("ExportSheets: %+v %v", sheetRes, err)
	}
	rows, ok := f.sheets.Tab("2025 Comparativo")
	if !ok || rows[len(rows)-1][0] != "TOTAL" {
		t.Errorf("sheet rows = %v", rows)
	}

	creditsRes, err := f.service.ExportCreditsCSV(ctx, sel2025)
	if err != nil || creditsRes.Kind != core.ResultSuccess {
		t.Fatalf("ExportCreditsCSV: %+v %v", creditsRes, err)
	}

	xlsxRes, err := f.service.ExportXLSX(ctx, sel2025)
	if err != nil || xlsxRes.Kind != core.ResultSuccess {
		t.Fatalf("ExportXLSX: %+v %v", xlsxRes, err)
	}
	if filepath.Ext(xlsxRes.Value) != ".xlsx" {
		t.Errorf("xlsx export path = %s", xlsxRes.Value)
	}
	if _, err := os.Stat(xlsxRes.Value); err != nil {
		t.Errorf("xlsx export file missing: %v", err)
	}
}

type recordingPublisher struct {
	mu      sync.Mutex
	exports []string
	reasons []string
}

func (p *recordingPublisher) PublishCacheRefresh(_ context.Context, reason string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reasons = append(p.reasons, reason)
	return "job-refresh", nil
}

func (p *recordingPublisher) PublishExportRequest(_ context.Context, sel core.Selector, target string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exports = append(p.exports, core.ReportKey(target, sel))
	return "job-export", nil
}

func TestRequestJobs(t *testing.T) {
	ctx := context.Background()

	none := newFixture(t, nil)
	if _, err := none.service.RequestExport(ctx, sel2025, TargetCSV); !errors.Is(err, ErrNoPublisher) {
		t.Errorf("err = %v, want ErrNoPublisher", err)
	}
	if id, err := none.service.RequestRefresh(ctx, "manual"); err != nil || id != "" {
		t.Errorf("inline refresh: id=%q err=%v", id, err)
	}

	pub := &recordingPublisher{}
	f := newFixture(t, pub)
	if _, err := f.service.RequestExport(ctx, sel2025, "pdf"); !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("err = %v, want ErrUnknownTarget", err)
	}
	id, err := f.service.RequestExport(ctx, sel2025, TargetSheets)
	if err != nil || id != "job-export" {
		t.Fatalf("RequestExport: %q %v", id, err)
	}
	if _, err := f.service.RequestExport(ctx, sel2025, TargetXLSX); err != nil {
		t.Fatalf("RequestExport xlsx: %v", err)
	}
	if _, err := f.service.RequestRefresh(ctx, "manual"); err != nil {
		t.Fatal(err)
	}
	if len(pub.exports) != 2 || pub.exports[0] != "sheets_2025_6_ALL" || pub.exports[1] != "xlsx_2025_6_ALL" || len(pub.reasons) != 1 {
		t.Errorf("published exports=%v reasons=%v", pub.exports, pub.reasons)
	}
}

func TestRefreshRebuildsCachedTrees(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	before := f.service.Comparative(ctx, sel2025)
	if !before.Value.GrandTotal.Current.Committed.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("current committed = %s, want 500", before.Value.GrandTotal.Current.Committed)
	}

	// the ledger gains a commitment after the tree was built and stored
	changed := seedLedger()
	extra := memory.New([]ledger.Balance{
		{FiscalYear: 2025, Month: 4, UnitID: "150001", AccountCode: 622130100, NatureCode: "31901100", Credit: decimal.NewFromInt(250)},
	}, nil, nil)
	f.source.Source = mergedSource{Source: changed, extra: extra}

	if res := f.service.Refresh(ctx); res.Kind != core.ResultSuccess {
		t.Fatalf("refresh kind = %s, err = %v", res.Kind, res.Err)
	}
	var stale core.ComparativeTree
	if f.store.Get(core.ComparativeKey(sel2025), treeColumns, &stale) {
		t.Fatalf("tree %q still on disk after refresh", core.ComparativeKey(sel2025))
	}

	after := f.service.Comparative(ctx, sel2025)
	if after.Kind != core.ResultSuccess {
		t.Fatalf("kind = %s, err = %v", after.Kind, after.Err)
	}
	if !after.Value.GrandTotal.Current.Committed.Equal(decimal.NewFromInt(750)) {
		t.Errorf("current committed after refresh = %s, want 750", after.Value.GrandTotal.Current.Committed)
	}
}

// mergedSource appends the extract rows of extra to those of Source.
type mergedSource struct {
	ledger.Source
	extra ledger.Source
}

func (m mergedSource) Extract(ctx context.Context, q ledger.Query) ([]ledger.Row, error) {
	rows, err := m.Source.Extract(ctx, q)
	if err != nil {
		return nil, err
	}
	more, err := m.extra.Extract(ctx, q)
	if err != nil {
		return nil, err
	}
	return append(rows, more...), nil
}

func TestRefreshAndClearCache(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.service.Comparative(ctx, sel2025)
	st := f.service.CacheStatus()
	if !st.Enabled || st.TreeEntries != 1 || st.Files.EntryCount < 2 {
		t.Fatalf("status = %+v", st)
	}

	reads := f.source.reads.Load()
	if res := f.service.Refresh(ctx); res.Kind != core.ResultSuccess || res.Value != 4 {
		t.Errorf("refresh = %+v", res)
	}
	if f.source.reads.Load() != reads+1 {
		t.Error("refresh did not query the source")
	}
	if f.service.CacheStatus().TreeEntries != 0 {
		t.Error("refresh kept built trees")
	}

	if removed := f.service.ClearCache(ctx); removed == 0 {
		t.Error("ClearCache removed nothing")
	}
	if st := f.service.CacheStatus(); st.TreeEntries != 0 || st.Files.EntryCount != 0 {
		t.Errorf("status after clear = %+v", st)
	}
}

func TestCacheWarmer(t *testing.T) {
	f := newFixture(t, nil)
	w := NewCacheWarmer(f.provider, CacheWarmerConfig{Interval: time.Hour}, log.Discard())

	if w.IsRunning() {
		t.Fatal("warmer should not be running initially")
	}
	if kind := w.Warm(context.Background()); kind != core.ResultSuccess {
		t.Fatalf("warm kind = %s", kind)
	}
	reads := f.source.reads.Load()
	w.Warm(context.Background())
	if f.source.reads.Load() != reads {
		t.Error("second pass should be served from the cache")
	}

	f.source.down.Store(true)
	f.provider.Invalidate()
	if kind := w.Warm(context.Background()); kind != core.ResultSourceError {
		t.Errorf("kind = %s, want source_error", kind)
	}
	if w.Passes() != 3 {
		t.Errorf("passes = %d", w.Passes())
	}
}

func TestCacheWarmer_StartStop(t *testing.T) {
	f := newFixture(t, nil)
	w := NewCacheWarmer(f.provider, CacheWarmerConfig{Interval: 10 * time.Millisecond}, log.Discard())
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := w.Start(ctx); err == nil {
		t.Error("second start should fail")
	}
	if !w.IsRunning() {
		t.Error("warmer should be running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for w.Passes() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if w.IsRunning() {
		t.Error("warmer should be stopped")
	}
	if w.Passes() < 2 {
		t.Errorf("passes = %d, want at least 2", w.Passes())
	}
}

func TestCacheWarmer_ConcurrentStop(t *testing.T) {
	f := newFixture(t, nil)
	w := NewCacheWarmer(f.provider, CacheWarmerConfig{Interval: 10 * time.Millisecond}, log.Discard())
	ctx := context.Background()

	for round := 0; round < 3; round++ {
		if err := w.Start(ctx); err != nil {
			t.Fatalf("round %d start: %v", round, err)
		}

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				stopCtx, cancel := context.WithTimeout(ctx, time.Second)
				defer cancel()
				errs <- w.Stop(stopCtx)
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Errorf("round %d stop: %v", round, err)
			}
		}
		if w.IsRunning() {
			t.Fatalf("round %d: warmer still running", round)
		}
	}
}
