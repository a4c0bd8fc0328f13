package aggregate

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"orcamento/internal/classification"
	"orcamento/internal/core"
	"orcamento/internal/log"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestEngine() *Engine {
	return NewEngine(classification.Expense(), classification.Revenue(), log.Discard())
}

func raw(year, month int, unit, cat, grp, nat string, initial, committed string) core.RawRecord {
	return core.RawRecord{
		Classification: core.Classification{
			FiscalYear: year, Month: month, UnitID: unit, UnitName: "UNIT " + unit,
			CategoryCode: cat, GroupCode: grp, NatureCode: nat, NatureName: "NATURE " + nat,
		},
		ExpenseAmounts: core.ExpenseAmounts{
			InitialAllocation: dec(initial),
			Committed:         dec(committed),
			Liquidated:        dec(committed),
		},
	}
}

// fixture spans 2024-2025 in months 1-6 over two units and two categories,
// plus one record of a year outside the comparison.
func fixture() []core.RawRecord {
	return []core.RawRecord{
		raw(2025, 3, "UNIT_A", "3", "1", "31901100", "1000", "100"),
		raw(2025, 6, "UNIT_B", "3", "3", "33903900", "500", "50"),
		raw(2025, 1, "UNIT_A", "4", "4", "44905200", "300", "60"),
		raw(2024, 2, "UNIT_A", "3", "1", "31901100", "900", "80"),
		raw(2024, 5, "UNIT_B", "4", "4", "44905200", "0", "40"),
		raw(2023, 4, "UNIT_A", "3", "1", "31901100", "700", "70"),
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func assertDec(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s = %s, want %s", name, got, want)
	}
}

func TestPartition(t *testing.T) {
	records := append(fixture(), raw(2025, 7, "UNIT_A", "3", "1", "31901100", "1", "1"))
	sel := core.NewSelector(2025, 6, core.Consolidated)

	current, prior := Partition(records, sel)
	if len(current) != 3 {
		t.Errorf("current = %d records, want 3", len(current))
	}
	if len(prior) != 2 {
		t.Errorf("prior = %d records, want 2", len(prior))
	}
	for _, r := range current {
		if r.FiscalYear != 2025 || r.Month > 6 {
			t.Errorf("unexpected current record %+v", r.Classification)
		}
	}
	for _, r := range prior {
		if r.FiscalYear != 2024 || r.Month > 6 {
			t.Errorf("unexpected prior record %+v", r.Classification)
		}
	}
}

func TestFilterUnit(t *testing.T) {
	records := []core.RawRecord{
		raw(2025, 1, "150001", "3", "1", "31901100", "1", "1"),
		raw(2025, 1, "150002", "3", "1", "31901100", "1", "1"),
		raw(2025, 1, "0150001", "3", "1", "31901100", "1", "1"),
	}

	tests := []struct {
		name string
		unit string
		want int
	}{
		{"consolidated", core.Consolidated, 3},
		{"empty means consolidated", "", 3},
		{"portuguese sentinel", "CONSOLIDADO", 3},
		{"string id", "150001", 1},
		{"float formatted id", "150001.0", 1},
		{"leading zero kept", "0150001", 1},
		{"unknown unit", "999999", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(FilterUnit(records, tt.unit)); got != tt.want {
				t.Errorf("FilterUnit(%q) = %d records, want %d", tt.unit, got, tt.want)
			}
		})
	}
}

func TestBuildComparativeConsolidated(t *testing.T) {
	tree := newTestEngine().BuildComparative(fixture(), core.NewSelector(2025, 6, core.Consolidated))

	if len(tree.Categories) != 2 {
		t.Fatalf("categories = %d, want 2", len(tree.Categories))
	}
	capex, current := tree.Categories[1], tree.Categories[0]
	if current.ID != "3" || capex.ID != "4" {
		t.Fatalf("category order = %s,%s, want 3,4", current.ID, capex.ID)
	}
	if current.DisplayName != "DESPESAS CORRENTES" {
		t.Errorf("display name = %q", current.DisplayName)
	}

	assertDec(t, "cat 3 current committed", current.Current.Committed, "150")
	assertDec(t, "cat 3 prior committed", current.Prior.Committed, "80")
	assertDec(t, "cat 3 current initial", current.Current.InitialAllocation, "1500")
	assertDec(t, "cat 3 balance", current.Current.Balance, "1350")
	assertDec(t, "cat 4 current committed", capex.Current.Committed, "60")
	assertDec(t, "cat 4 prior committed", capex.Prior.Committed, "40")

	total := tree.GrandTotal
	if total.Level != core.LevelTotal {
		t.Errorf("grand total level = %s", total.Level)
	}
	assertDec(t, "total current committed", total.Current.Committed, "210")
	assertDec(t, "total prior committed", total.Prior.Committed, "120")
	if !total.Variance.Committed.Valid {
		t.Fatal("total committed variance is null")
	}
	assertDec(t, "total committed variance", total.Variance.Committed.Decimal, "75")

	groups := current.Children
	if len(groups) != 2 || groups[0].ID != "3.1" || groups[1].ID != "3.3" {
		t.Fatalf("groups of 3 = %+v", groups)
	}
	if groups[1].Variance.Committed.Valid {
		t.Errorf("group 3.3 has no prior value, variance should be null")
	}
	if len(groups[0].Children) != 1 || groups[0].Children[0].ID != "31901100" {
		t.Errorf("details of 3.1 = %+v", groups[0].Children)
	}
}

func TestBuildComparativeUnit(t *testing.T) {
	tree := newTestEngine().BuildComparative(fixture(), core.NewSelector(2025, 6, "UNIT_A"))

	if len(tree.Categories) != 2 {
		t.Fatalf("categories = %d, want 2", len(tree.Categories))
	}
	assertDec(t, "cat 3 current", tree.Categories[0].Current.Committed, "100")
	assertDec(t, "cat 3 prior", tree.Categories[0].Prior.Committed, "80")
	assertDec(t, "cat 4 current", tree.Categories[1].Current.Committed, "60")
	assertDec(t, "cat 4 prior", tree.Categories[1].Prior.Committed, "0")
	assertDec(t, "total current", tree.GrandTotal.Current.Committed, "160")
	assertDec(t, "total prior", tree.GrandTotal.Prior.Committed, "80")

	if len(tree.Categories[0].Children) != 1 {
		t.Errorf("UNIT_A has one group under category 3, got %d", len(tree.Categories[0].Children))
	}
	if tree.Categories[1].Variance.Committed.Valid {
		t.Error("variance against a zero prior should be null")
	}
}

func checkTotals(t *testing.T, n core.ComparativeNode) {
	t.Helper()
	if len(n.Children) == 0 {
		return
	}
	cur := core.NewAggregatedValues(core.ExpenseAmounts{})
	prior := cur
	for _, c := range n.Children {
		cur = cur.Add(c.Current)
		prior = prior.Add(c.Prior)
		checkTotals(t, c)
	}
	if mustJSON(t, cur) != mustJSON(t, n.Current) {
		t.Errorf("node %s current %s != sum of children %s", n.ID, mustJSON(t, n.Current), mustJSON(t, cur))
	}
	if mustJSON(t, prior) != mustJSON(t, n.Prior) {
		t.Errorf("node %s prior %s != sum of children %s", n.ID, mustJSON(t, n.Prior), mustJSON(t, prior))
	}
}

func TestTotalsConsistent(t *testing.T) {
	e := newTestEngine()
	for _, unit := range []string{core.Consolidated, "UNIT_A", "UNIT_B"} {
		t.Run(unit, func(t *testing.T) {
			tree := e.BuildComparative(fixture(), core.NewSelector(2025, 6, unit))
			checkTotals(t, core.ComparativeNode{
				ID:       "root",
				Current:  tree.GrandTotal.Current,
				Prior:    tree.GrandTotal.Prior,
				Children: tree.Categories,
			})
		})
	}
}

func TestPriorGroupValuesDerived(t *testing.T) {
	tree := newTestEngine().BuildComparative(fixture(), core.NewSelector(2025, 6, core.Consolidated))
	g := tree.Categories[0].Children[0]
	assertDec(t, "group 3.1 prior committed", g.Prior.Committed, "80")
	assertDec(t, "group 3.1 prior initial", g.Prior.InitialAllocation, "900")
	assertDec(t, "group 3.1 prior updated", g.Prior.UpdatedAllocation, "900")
	if !g.Variance.Committed.Valid {
		t.Fatal("group 3.1 variance is null")
	}
	assertDec(t, "group 3.1 variance", g.Variance.Committed.Decimal, "25")
}

// levelRows expands raw records into one pre-aggregated row per level.
func levelRows(records []core.RawRecord) []core.AggregatedRow {
	var out []core.AggregatedRow
	for _, r := range records {
		for _, level := range []core.Level{core.LevelCategory, core.LevelGroup, core.LevelDetail} {
			c := r.Classification
			if level != core.LevelDetail {
				c.NatureCode, c.NatureName = "", ""
			}
			if level == core.LevelCategory {
				c.GroupCode, c.GroupName = "", ""
			}
			out = append(out, core.AggregatedRow{Level: level, Classification: c, ExpenseAmounts: r.ExpenseAmounts})
		}
	}
	return out
}

func TestEntryPointsAgree(t *testing.T) {
	e := newTestEngine()
	for _, unit := range []string{core.Consolidated, "UNIT_A", "UNIT_B", "NOPE"} {
		t.Run(unit, func(t *testing.T) {
			sel := core.NewSelector(2025, 6, unit)
			fromRaw := mustJSON(t, e.BuildComparative(fixture(), sel))
			fromViews := mustJSON(t, e.BuildFromAggregated(levelRows(fixture()), sel))
			if fromRaw != fromViews {
				t.Errorf("entry points differ:\nraw:   %s\nviews: %s", fromRaw, fromViews)
			}
		})
	}
}

func TestBuildComparativeIdempotent(t *testing.T) {
	e := newTestEngine()
	sel := core.NewSelector(2025, 6, core.Consolidated)
	first := mustJSON(t, e.BuildComparative(fixture(), sel))
	second := mustJSON(t, e.BuildComparative(fixture(), sel))
	if first != second {
		t.Error("repeated builds differ")
	}
}

func TestBuildComparativeSparse(t *testing.T) {
	e := newTestEngine()

	empty := e.BuildComparative(nil, core.NewSelector(2025, 6, core.Consolidated))
	if !empty.IsEmpty() || empty.Categories == nil {
		t.Errorf("empty input: categories = %#v", empty.Categories)
	}

	records := []core.RawRecord{
		raw(2025, 1, "A", "3", "1", "31901100", "100", "10"),
		raw(2025, 2, "A", "4", "4", "44905200", "0", "0"),
	}
	tree := e.BuildComparative(records, core.NewSelector(2025, 6, core.Consolidated))
	if len(tree.Categories) != 2 {
		t.Fatalf("categories = %d, want 2 (zero sums still present)", len(tree.Categories))
	}
	for _, c := range tree.Categories {
		if c.ID == "9" {
			t.Error("category absent from data was emitted")
		}
	}
}

func TestUnknownCodesFollowRegistry(t *testing.T) {
	records := []core.RawRecord{
		raw(2025, 1, "A", "8", "1", "81000000", "5", "5"),
		raw(2025, 1, "A", "3", "7", "37000000", "5", "5"),
		raw(2025, 1, "A", "3", "1", "31901100", "5", "5"),
		raw(2025, 1, "A", "", "", "", "5", "5"),
	}
	records[0].CategoryName = "CATEGORIA NOVA"

	tree := newTestEngine().BuildComparative(records, core.NewSelector(2025, 1, core.Consolidated))

	var ids []string
	for _, c := range tree.Categories {
		ids = append(ids, c.ID)
	}
	if mustJSON(t, ids) != `["3","","8"]` {
		t.Fatalf("category ids = %v", ids)
	}
	if tree.Categories[2].DisplayName != "CATEGORIA NOVA" {
		t.Errorf("unknown category name = %q", tree.Categories[2].DisplayName)
	}
	if tree.Categories[1].DisplayName != unclassifiedName {
		t.Errorf("missing category name = %q", tree.Categories[1].DisplayName)
	}
	groups := tree.Categories[0].Children
	if len(groups) != 2 || groups[0].ID != "3.1" || groups[1].ID != "3.7" {
		t.Errorf("groups = %+v", groups)
	}
	if groups[1].DisplayName != "7" {
		t.Errorf("unknown group falls back to its code, got %q", groups[1].DisplayName)
	}
}

func TestBuildCredits(t *testing.T) {
	c := func(year, month int, grp, supp string) core.CreditRecord {
		return core.CreditRecord{
			Classification: core.Classification{FiscalYear: year, Month: month, UnitID: "A", CategoryCode: "3", GroupCode: grp},
			CreditAmounts:  core.CreditAmounts{Supplementary: dec(supp), SpecialCancellation: dec("-1")},
		}
	}
	records := []core.CreditRecord{
		c(2025, 2, "1", "10"),
		c(2025, 4, "3", "20"),
		c(2024, 4, "3", "500"),
		c(2025, 8, "3", "700"),
	}

	tree := newTestEngine().BuildCredits(records, core.NewSelector(2025, 6, core.Consolidated))

	if len(tree.Categories) != 1 || len(tree.Categories[0].Children) != 2 {
		t.Fatalf("tree = %+v", tree.Categories)
	}
	for _, g := range tree.Categories[0].Children {
		if len(g.Children) != 0 {
			t.Errorf("credit group %s has detail children", g.ID)
		}
	}
	assertDec(t, "supplementary", tree.Total.Values.Supplementary, "30")
	assertDec(t, "total alterations", tree.Total.Values.TotalAlterations, "28")
}

func TestBuildRevenue(t *testing.T) {
	r := func(year, month int, realized string) core.RevenueRecord {
		return core.RevenueRecord{
			Classification: core.Classification{FiscalYear: year, Month: month, CategoryCode: "1", GroupCode: "1", NatureCode: "11180111"},
			RevenueAmounts: core.RevenueAmounts{UpdatedForecast: dec("1000"), Realized: dec(realized), RealizedInMonth: dec("999")},
		}
	}
	records := []core.RevenueRecord{r(2025, 6, "100"), r(2025, 3, "50"), r(2024, 6, "70")}

	tree := newTestEngine().BuildRevenue(records, core.NewSelector(2025, 6, core.Consolidated))

	if len(tree.Categories) != 1 || tree.Categories[0].DisplayName != "RECEITAS CORRENTES" {
		t.Fatalf("categories = %+v", tree.Categories)
	}
	cur := tree.GrandTotal.Current
	assertDec(t, "realized", cur.Realized, "150")
	assertDec(t, "realized in month", cur.RealizedInMonth, "100")
	assertDec(t, "to realize", cur.ToRealize, "1850")
	assertDec(t, "prior realized", tree.GrandTotal.Prior.Realized, "70")
	assertDec(t, "prior realized in month", tree.GrandTotal.Prior.RealizedInMonth, "70")
}

func TestSummary(t *testing.T) {
	s := newTestEngine().Summary(fixture(), core.NewSelector(2025, 6, core.Consolidated))

	if len(s.ByYear) != 3 || s.ByYear[0].FiscalYear != 2023 || s.ByYear[2].FiscalYear != 2025 {
		t.Fatalf("by year = %+v", s.ByYear)
	}
	if s.ByYear[2].Records != 3 {
		t.Errorf("2025 records = %d, want 3", s.ByYear[2].Records)
	}
	assertDec(t, "2025 committed", s.ByYear[2].Values.Committed, "210")

	if len(s.ByUnit) != 2 || s.ByUnit[0].UnitID != "UNIT_A" {
		t.Fatalf("by unit = %+v", s.ByUnit)
	}
	assertDec(t, "UNIT_A current", s.ByUnit[0].Current.Committed, "160")
	assertDec(t, "UNIT_A prior", s.ByUnit[0].Prior.Committed, "80")
	if s.ByUnit[0].UnitName != "UNIT UNIT_A" {
		t.Errorf("unit name = %q", s.ByUnit[0].UnitName)
	}
}
