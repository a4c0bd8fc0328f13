package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"orcamento/internal/ledger"
	"orcamento/internal/log"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"), log.Discard())
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func amount(t *testing.T, row ledger.Row, col string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(fmt.Sprint(row[col]))
	if err != nil {
		t.Fatalf("column %s: %v (%#v)", col, err, row[col])
	}
	return v
}

func seed(t *testing.T, repo *SQLiteRepository) {
	t.Helper()
	ctx := context.Background()
	dec := decimal.RequireFromString

	if err := repo.InsertUnit(ctx, "150001", "SECRETARIA DA FAZENDA"); err != nil {
		t.Fatal(err)
	}
	balances := []ledger.Balance{
		{FiscalYear: 2025, Month: 3, UnitID: "150001", AccountCode: 522110000, NatureCode: "31901100", NatureName: "VENCIMENTOS", Debit: dec("1000")},
		{FiscalYear: 2025, Month: 3, UnitID: "150001", AccountCode: 522120001, NatureCode: "31901100", Debit: dec("250.50")},
		{FiscalYear: 2025, Month: 3, UnitID: "150001", AccountCode: 622130300, NatureCode: "31901100", Credit: dec("400")},
		{FiscalYear: 2025, Month: 3, UnitID: "150001", AccountCode: 622920104, NatureCode: "31901100", Credit: dec("300")},
		{FiscalYear: 2025, Month: 4, UnitID: "150001", AccountCode: 522110000, NatureCode: "44905200", Debit: dec("80")},
		{FiscalYear: 2025, Month: 3, UnitID: "150001", AccountCode: 111110000, NatureCode: "33903900", Debit: dec("999")},
		{FiscalYear: 2024, Month: 3, UnitID: "150002", AccountCode: 522110000, NatureCode: "31901100", Debit: dec("700")},
		{FiscalYear: 2025, Month: 2, UnitID: "150001", AccountCode: 521110000, NatureCode: "11180111", Debit: dec("5000")},
		{FiscalYear: 2025, Month: 2, UnitID: "150001", AccountCode: 621210000, NatureCode: "11180111", Credit: dec("1200")},
	}
	for _, b := range balances {
		if err := repo.InsertBalance(ctx, b); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.InsertCreditMovement(ctx, ledger.CreditMovement{
		FiscalYear: 2025, Month: 3, UnitID: "150001", NatureCode: "31901100", Kind: ledger.ColSupplementary, Amount: dec("500"),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteRepository_Extract(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)

	rows, err := repo.Extract(context.Background(), ledger.Query{FiscalYears: []int{2025}, MonthLimit: 3, UnitID: "150001"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1: %v", len(rows), rows)
	}

	row := rows[0]
	if row[ledger.ColCategoryCode] != "3" || row[ledger.ColGroupCode] != "1" {
		t.Errorf("classification = %v/%v", row[ledger.ColCategoryCode], row[ledger.ColGroupCode])
	}
	if row[ledger.ColUnitName] != "SECRETARIA DA FAZENDA" {
		t.Errorf("unit name = %v", row[ledger.ColUnitName])
	}
	if row[ledger.ColNatureName] != "VENCIMENTOS" {
		t.Errorf("nature name = %v, want VENCIMENTOS", row[ledger.ColNatureName])
	}

	want := map[string]string{
		ledger.ColInitialAllocation:    "1000",
		ledger.ColAdditionalAllocation: "250.5",
		ledger.ColCommitted:            "400",
		ledger.ColLiquidated:           "400",
		ledger.ColPaid:                 "300",
	}
	for col, w := range want {
		if got := amount(t, row, col); !got.Equal(decimal.RequireFromString(w)) {
			t.Errorf("%s = %s, want %s", col, got, w)
		}
	}
}

func TestSQLiteRepository_AggregatedLevels(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)

	rows, err := repo.AggregatedLevels(context.Background(), ledger.Query{FiscalYears: []int{2024, 2025}})
	if err != nil {
		t.Fatalf("AggregatedLevels: %v", err)
	}

	counts := map[any]int{}
	for _, r := range rows {
		counts[r[ledger.ColLevel]]++
	}
	// 2025/3 (3.1), 2025/4 (4.4) and 2024/3 (3.1): one row per level each.
	for _, lvl := range []string{"CATEGORY", "GROUP", "DETAIL"} {
		if counts[lvl] != 3 {
			t.Errorf("%s rows = %d, want 3", lvl, counts[lvl])
		}
	}
}

func TestSQLiteRepository_CreditsRevenueUnits(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	credits, err := repo.Credits(ctx, ledger.Query{FiscalYears: []int{2025}, MonthLimit: 6})
	if err != nil {
		t.Fatalf("Credits: %v", err)
	}
	if len(credits) != 1 || !amount(t, credits[0], ledger.ColSupplementary).Equal(decimal.NewFromInt(500)) {
		t.Errorf("credits = %v", credits)
	}

	revenue, err := repo.Revenue(ctx, ledger.Query{FiscalYears: []int{2025}})
	if err != nil {
		t.Fatalf("Revenue: %v", err)
	}
	if len(revenue) != 1 {
		t.Fatalf("revenue rows = %d, want 1", len(revenue))
	}
	if got := amount(t, revenue[0], ledger.ColUpdatedForecast); !got.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("updated forecast = %s", got)
	}
	if got := amount(t, revenue[0], ledger.ColRealized); !got.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("realized = %s", got)
	}

	units, err := repo.Units(ctx)
	if err != nil {
		t.Fatalf("Units: %v", err)
	}
	if len(units) != 1 || units[0][ledger.ColUnitID] != "150001" {
		t.Errorf("units = %v", units)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	before, err := SchemaVersion(path)
	if err != nil {
		t.Fatalf("SchemaVersion before: %v", err)
	}
	if before != 0 {
		t.Errorf("version before migrating = %d, want 0", before)
	}

	var versions []uint
	for i := 0; i < 2; i++ {
		v, err := RunMigrations(path)
		if err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
		versions = append(versions, v)
	}
	if versions[0] != 2 || versions[1] != 2 {
		t.Errorf("versions = %v, want [2 2]", versions)
	}

	after, err := SchemaVersion(path)
	if err != nil || after != 2 {
		t.Errorf("SchemaVersion after = %d, %v", after, err)
	}
}
