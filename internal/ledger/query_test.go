package ledger

import (
	"reflect"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestStatementDollar(t *testing.T) {
	st := Statement{SQL: "SELECT * FROM t WHERE a IN (?, ?) AND b <= ?", Args: []any{1, 2, 3}}
	got := st.Dollar()
	if got.SQL != "SELECT * FROM t WHERE a IN ($1, $2) AND b <= $3" {
		t.Errorf("Dollar() = %q", got.SQL)
	}
	if !reflect.DeepEqual(got.Args, st.Args) {
		t.Errorf("args changed: %v", got.Args)
	}
}

func TestExtractStatement_Filters(t *testing.T) {
	tests := []struct {
		name     string
		query    Query
		wantArgs []any
		contains []string
		excludes []string
	}{
		{
			name:     "full window",
			query:    Query{FiscalYears: []int{2024, 2025}},
			wantArgs: []any{2024, 2025},
			contains: []string{"b.fiscal_year IN (?, ?)"},
			excludes: []string{"b.month <= ?", "b.unit_id = ?"},
		},
		{
			name:     "narrow",
			query:    Query{FiscalYears: []int{2025}, MonthLimit: 6, UnitID: "150001"},
			wantArgs: []any{2025, 6, "150001"},
			contains: []string{"b.fiscal_year IN (?)", "b.month <= ?", "b.unit_id = ?"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := ExtractStatement(tt.query)
			if !reflect.DeepEqual(st.Args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", st.Args, tt.wantArgs)
			}
			for _, s := range tt.contains {
				if !strings.Contains(st.SQL, s) {
					t.Errorf("SQL missing %q", s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(st.SQL, s) {
					t.Errorf("SQL should not contain %q", s)
				}
			}
			if strings.Count(st.SQL, "?") != len(tt.wantArgs) {
				t.Errorf("placeholder count %d != args %d", strings.Count(st.SQL, "?"), len(tt.wantArgs))
			}
		})
	}
}

func TestExpenseSums(t *testing.T) {
	st := ExtractStatement(Query{})
	want := []string{
		"SUM(CASE WHEN b.account_code BETWEEN 522110000 AND 522119999 THEN b.debit - b.credit ELSE 0 END) AS initial_allocation",
		"SUM(CASE WHEN b.account_code BETWEEN 622130000 AND 622139999 THEN b.credit - b.debit ELSE 0 END) AS committed",
		"SUM(CASE WHEN b.account_code IN (622130300, 622130400, 622130700) THEN b.credit - b.debit ELSE 0 END) AS liquidated",
		"CAST(paid AS TEXT) AS paid",
	}
	for _, w := range want {
		if !strings.Contains(st.SQL, w) {
			t.Errorf("extract SQL missing %q", w)
		}
	}
}

func TestBalanceStatements_GroupByNatureCodeOnly(t *testing.T) {
	q := Query{FiscalYears: []int{2025}}
	for name, st := range map[string]Statement{
		"extract": ExtractStatement(q),
		"levels":  LevelsStatement(q),
		"revenue": RevenueStatement(q),
	} {
		if !strings.Contains(st.SQL, "MAX(b.nature_name) AS nature_name") {
			t.Errorf("%s: nature name is not aggregated", name)
		}
		for _, line := range strings.Split(st.SQL, "\n") {
			if strings.HasPrefix(line, "GROUP BY") && strings.Contains(line, "nature_name") {
				t.Errorf("%s: grouped by nature name: %q", name, line)
			}
		}
	}
}

func TestLevelsStatement(t *testing.T) {
	st := LevelsStatement(Query{FiscalYears: []int{2025}})
	for _, lvl := range []string{"'CATEGORY' AS level", "'GROUP' AS level", "'DETAIL' AS level"} {
		if !strings.Contains(st.SQL, lvl) {
			t.Errorf("levels SQL missing %q", lvl)
		}
	}
	if strings.Count(st.SQL, "UNION ALL") != 2 {
		t.Error("expected three level branches")
	}
}

func TestAccountRange(t *testing.T) {
	liquidated := ExpenseAccounts[5]
	if !liquidated.Contains(622130400) || liquidated.Contains(622130500) {
		t.Error("liquidated must match listed accounts only")
	}

	initial := ExpenseAccounts[0]
	if !initial.Contains(522110000) || !initial.Contains(522119999) || initial.Contains(522120000) {
		t.Error("initial allocation range bounds are inclusive")
	}

	debit, credit := decimal.NewFromInt(10), decimal.NewFromInt(3)
	if got := initial.SignedAmount(debit, credit); !got.Equal(decimal.NewFromInt(7)) {
		t.Errorf("debit-credit = %s", got)
	}
	if got := liquidated.SignedAmount(debit, credit); !got.Equal(decimal.NewFromInt(-7)) {
		t.Errorf("credit-debit = %s", got)
	}
}
