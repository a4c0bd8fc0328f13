package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orcamento/internal/ledger"
	"orcamento/internal/log"
)

var dec = decimal.RequireFromString

func testStore() *Store {
	return New([]ledger.Balance{
		{FiscalYear: 2025, Month: 3, UnitID: "150001", AccountCode: 522110000, NatureCode: "31901100", Debit: dec("1000")},
		{FiscalYear: 2025, Month: 3, UnitID: "150001", AccountCode: 622130300, NatureCode: "31901100", Credit: dec("400")},
		{FiscalYear: 2025, Month: 3, UnitID: "150001", AccountCode: 622920104, NatureCode: "31901100", Credit: dec("300")},
		{FiscalYear: 2025, Month: 3, UnitID: "150001", AccountCode: 111110000, NatureCode: "33903900", Debit: dec("999")},
		{FiscalYear: 2025, Month: 4, UnitID: "150001", AccountCode: 522110000, NatureCode: "44905200", Debit: dec("80")},
		{FiscalYear: 2024, Month: 3, UnitID: "150002", AccountCode: 522110000, NatureCode: "31901100", Debit: dec("700")},
		{FiscalYear: 2025, Month: 2, UnitID: "150001", AccountCode: 521110000, NatureCode: "11180111", Debit: dec("5000")},
		{FiscalYear: 2025, Month: 2, UnitID: "150001", AccountCode: 621210000, NatureCode: "11180111", Credit: dec("1200")},
	}, []ledger.CreditMovement{
		{FiscalYear: 2025, Month: 3, UnitID: "150001", NatureCode: "31901100", Kind: ledger.ColSupplementary, Amount: dec("500")},
		{FiscalYear: 2025, Month: 3, UnitID: "150001", NatureCode: "31901100", Kind: ledger.ColSupplementaryCancellation, Amount: dec("-50")},
	}, map[string]string{"150001": "SECRETARIA DA FAZENDA"})
}

func TestStore_Extract(t *testing.T) {
	rows, err := testStore().Extract(context.Background(), ledger.Query{FiscalYears: []int{2025}, MonthLimit: 3, UnitID: "150001"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}

	row := rows[0]
	want := map[string]string{
		ledger.ColInitialAllocation: "1000",
		ledger.ColCommitted:         "400",
		ledger.ColLiquidated:        "400",
		ledger.ColPaid:              "300",
	}
	for col, w := range want {
		if got := row[col].(decimal.Decimal); !got.Equal(dec(w)) {
			t.Errorf("%s = %s, want %s", col, got, w)
		}
	}
	if row[ledger.ColUnitName] != "SECRETARIA DA FAZENDA" || row[ledger.ColCategoryCode] != "3" {
		t.Errorf("unexpected row %v", row)
	}
}

func TestStore_NatureNameDoesNotSplitRows(t *testing.T) {
	s := New([]ledger.Balance{
		{FiscalYear: 2025, Month: 3, UnitID: "150001", AccountCode: 522110000, NatureCode: "31901100", NatureName: "", Debit: dec("1000")},
		{FiscalYear: 2025, Month: 3, UnitID: "150001", AccountCode: 622130100, NatureCode: "31901100", NatureName: "VENCIMENTOS", Credit: dec("400")},
		{FiscalYear: 2025, Month: 3, UnitID: "150001", AccountCode: 521110000, NatureCode: "11180111", NatureName: "IPTU", Debit: dec("5000")},
		{FiscalYear: 2025, Month: 3, UnitID: "150001", AccountCode: 621210000, NatureCode: "11180111", Credit: dec("1200")},
	}, nil, nil)
	ctx := context.Background()
	q := ledger.Query{FiscalYears: []int{2025}}

	rows, err := s.Extract(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d expense rows, want 1", len(rows))
	}
	if rows[0][ledger.ColNatureName] != "VENCIMENTOS" {
		t.Errorf("nature name = %v, want VENCIMENTOS", rows[0][ledger.ColNatureName])
	}
	if got := rows[0][ledger.ColInitialAllocation].(decimal.Decimal); !got.Equal(dec("1000")) {
		t.Errorf("initial allocation = %s, want 1000", got)
	}

	revenue, err := s.Revenue(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(revenue) != 1 || revenue[0][ledger.ColNatureName] != "IPTU" {
		t.Errorf("revenue rows = %v, want one IPTU row", revenue)
	}
}

func TestStore_AggregatedLevels(t *testing.T) {
	rows, err := testStore().AggregatedLevels(context.Background(), ledger.Query{FiscalYears: []int{2024, 2025}})
	if err != nil {
		t.Fatal(err)
	}
	counts := map[any]int{}
	for _, r := range rows {
		counts[r[ledger.ColLevel]]++
	}
	for _, lvl := range []string{"CATEGORY", "GROUP", "DETAIL"} {
		if counts[lvl] != 3 {
			t.Errorf("%s rows = %d, want 3", lvl, counts[lvl])
		}
	}
}

func TestStore_CreditsAndRevenue(t *testing.T) {
	s := testStore()
	ctx := context.Background()

	credits, err := s.Credits(ctx, ledger.Query{FiscalYears: []int{2025}})
	if err != nil {
		t.Fatal(err)
	}
	if len(credits) != 1 {
		t.Fatalf("credit rows = %d", len(credits))
	}
	if got := credits[0][ledger.ColSupplementaryCancellation].(decimal.Decimal); !got.Equal(dec("-50")) {
		t.Errorf("cancellation = %s", got)
	}

	revenue, err := s.Revenue(ctx, ledger.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(revenue) != 1 {
		t.Fatalf("revenue rows = %d", len(revenue))
	}
	if got := revenue[0][ledger.ColInitialForecast].(decimal.Decimal); !got.Equal(dec("5000")) {
		t.Errorf("initial forecast = %s", got)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNewFromDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, BalancesFile),
		"fiscal_year,month,unit_id,account_code,nature_code,nature_name,function_code,subfunction_code,program_code,source_code,debit,credit\n"+
			"2025,1,150001.0,522110000,31901100,VENCIMENTOS,04,122,0001,100,\"1.234,56\",0\n")
	writeFile(t, filepath.Join(dir, UnitsFile), "unit_id,name\n150001,FAZENDA\n")

	s, err := NewFromDir(dir, log.Discard())
	if err != nil {
		t.Fatalf("NewFromDir: %v", err)
	}

	rows, _ := s.Extract(context.Background(), ledger.Query{})
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0][ledger.ColUnitID] != "150001" || rows[0][ledger.ColUnitName] != "FAZENDA" {
		t.Errorf("unit not normalized: %v", rows[0])
	}
	if got := rows[0][ledger.ColInitialAllocation].(decimal.Decimal); !got.Equal(dec("1234.56")) {
		t.Errorf("initial allocation = %s", got)
	}
}

func TestNewFromDir_InvalidRow(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, CreditsFile), "fiscal_year,month,unit_id,nature_code,kind,amount\n2025,13,1,3190,supplementary,1\n")

	if _, err := NewFromDir(dir, log.Discard()); err == nil {
		t.Fatal("expected error for month 13")
	}
}

func TestStore_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, UnitsFile), "unit_id,name\n1,A\n")

	s, err := NewFromDir(dir, log.Discard())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	if err := s.Watch(ctx, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeFile(t, filepath.Join(dir, UnitsFile), "unit_id,name\n1,A\n2,B\n")

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	units, _ := s.Units(ctx)
	if len(units) != 2 {
		t.Errorf("units after reload = %d, want 2", len(units))
	}
}
