// Package memory is a ledger source held in memory and seeded from CSV files.
// It computes the same rows as the SQL statements of the relational sources.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"orcamento/internal/ledger"
	"orcamento/internal/log"
)

// Store implements ledger.Source over in-memory balances.
type Store struct {
	mu       sync.RWMutex
	balances []ledger.Balance
	credits  []ledger.CreditMovement
	units    map[string]string

	dir    string
	logger *log.Logger
}

var _ ledger.Source = (*Store)(nil)

// New returns a store holding the given data.
func New(balances []ledger.Balance, credits []ledger.CreditMovement, units map[string]string) *Store {
	s := &Store{logger: log.Discard()}
	s.replace(balances, credits, units)
	return s
}

func (s *Store) replace(balances []ledger.Balance, credits []ledger.CreditMovement, units map[string]string) {
	if units == nil {
		units = map[string]string{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = slices.Clone(balances)
	s.credits = slices.Clone(credits)
	s.units = units
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op; watchers stop with their context.
func (s *Store) Close() error { return nil }

func matches(q ledger.Query, year, month int, unit string) bool {
	if len(q.FiscalYears) > 0 && !slices.Contains(q.FiscalYears, year) {
		return false
	}
	if q.MonthLimit > 0 && month > q.MonthLimit {
		return false
	}
	return q.UnitID == "" || q.UnitID == unit
}

type extractKey struct {
	year, month                                int
	unit, nature                               string
	function, subfunction, program, sourceCode string
}

type natureKey struct {
	year, month  int
	unit, nature string
}

// names keeps the greatest nature name seen per group.
type names[K comparable] map[K]string

func (n names[K]) keep(k K, name string) {
	if name > n[k] {
		n[k] = name
	}
}

type sums map[string]decimal.Decimal

func (s sums) add(col string, v decimal.Decimal) {
	s[col] = s[col].Add(v)
}

// accumulate applies every range containing the balance's account.
func accumulate(dst sums, ranges []ledger.AccountRange, b ledger.Balance) bool {
	hit := false
	for _, r := range ranges {
		if r.Contains(b.AccountCode) {
			dst.add(r.Column, r.SignedAmount(b.Debit, b.Credit))
			hit = true
		}
	}
	return hit
}

func (s *Store) expense(q ledger.Query) []ledger.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := map[extractKey]sums{}
	natureNames := names[extractKey]{}
	for _, b := range s.balances {
		if !matches(q, b.FiscalYear, b.Month, b.UnitID) {
			continue
		}
		k := extractKey{b.FiscalYear, b.Month, b.UnitID, b.NatureCode,
			b.FunctionCode, b.SubfunctionCode, b.ProgramCode, b.SourceCode}
		acc := sums{}
		if !accumulate(acc, ledger.ExpenseAccounts, b) {
			continue
		}
		if groups[k] == nil {
			groups[k] = sums{}
		}
		natureNames.keep(k, b.NatureName)
		for col, v := range acc {
			groups[k].add(col, v)
		}
	}

	rows := make([]ledger.Row, 0, len(groups))
	for k, sum := range groups {
		row := s.baseRow(k.year, k.month, k.unit, k.nature, natureNames[k])
		row[ledger.ColFunctionCode] = k.function
		row[ledger.ColSubfunctionCode] = k.subfunction
		row[ledger.ColProgramCode] = k.program
		row[ledger.ColSourceCode] = k.sourceCode
		fill(row, ledger.ExpenseAccounts, sum)
		rows = append(rows, row)
	}
	sortRows(rows, ledger.ColFunctionCode, ledger.ColSubfunctionCode, ledger.ColProgramCode, ledger.ColSourceCode)
	return rows
}

// baseRow must be called with s.mu held.
func (s *Store) baseRow(year, month int, unit, nature, natureName string) ledger.Row {
	return ledger.Row{
		ledger.ColFiscalYear:   year,
		ledger.ColMonth:        month,
		ledger.ColUnitID:       unit,
		ledger.ColUnitName:     s.units[unit],
		ledger.ColCategoryCode: prefix(nature, 0),
		ledger.ColGroupCode:    prefix(nature, 1),
		ledger.ColNatureCode:   nature,
		ledger.ColNatureName:   natureName,
	}
}

func prefix(code string, i int) string {
	if len(code) <= i {
		return ""
	}
	return code[i : i+1]
}

func fill(row ledger.Row, ranges []ledger.AccountRange, sum sums) {
	for _, r := range ranges {
		row[r.Column] = sum[r.Column]
	}
}

func str(row ledger.Row, col string) string {
	s, _ := row[col].(string)
	return s
}

func sortRows(rows []ledger.Row, extra ...string) {
	keys := append([]string{ledger.ColUnitID, ledger.ColCategoryCode, ledger.ColGroupCode, ledger.ColNatureCode}, extra...)
	slices.SortFunc(rows, func(a, b ledger.Row) int {
		if c := cmp.Compare(a[ledger.ColFiscalYear].(int), b[ledger.ColFiscalYear].(int)); c != 0 {
			return c
		}
		if c := cmp.Compare(a[ledger.ColMonth].(int), b[ledger.ColMonth].(int)); c != 0 {
			return c
		}
		for _, k := range keys {
			if c := strings.Compare(str(a, k), str(b, k)); c != 0 {
				return c
			}
		}
		return 0
	})
}

// Extract implements ledger.ExtractReader
func (s *Store) Extract(_ context.Context, q ledger.Query) ([]ledger.Row, error) {
	return s.expense(q), nil
}

// AggregatedLevels implements ledger.AggregateReader
func (s *Store) AggregatedLevels(_ context.Context, q ledger.Query) ([]ledger.Row, error) {
	type levelKey struct {
		level                 string
		year, month           int
		unit, category, group string
		nature                string
	}

	levels := map[levelKey]sums{}
	names := map[levelKey]string{}
	unitNames := map[string]string{}
	for _, row := range s.expense(q) {
		year, month := row[ledger.ColFiscalYear].(int), row[ledger.ColMonth].(int)
		unit, cat, grp, nat := str(row, ledger.ColUnitID), str(row, ledger.ColCategoryCode), str(row, ledger.ColGroupCode), str(row, ledger.ColNatureCode)
		unitNames[unit] = str(row, ledger.ColUnitName)

		for _, k := range []levelKey{
			{"CATEGORY", year, month, unit, cat, "", ""},
			{"GROUP", year, month, unit, cat, grp, ""},
			{"DETAIL", year, month, unit, cat, grp, nat},
		} {
			if levels[k] == nil {
				levels[k] = sums{}
			}
			for _, r := range ledger.ExpenseAccounts {
				levels[k].add(r.Column, row[r.Column].(decimal.Decimal))
			}
			if k.level == "DETAIL" {
				names[k] = max(names[k], str(row, ledger.ColNatureName))
			}
		}
	}

	rows := make([]ledger.Row, 0, len(levels))
	for k, sum := range levels {
		row := ledger.Row{
			ledger.ColLevel:        k.level,
			ledger.ColFiscalYear:   k.year,
			ledger.ColMonth:        k.month,
			ledger.ColUnitID:       k.unit,
			ledger.ColUnitName:     unitNames[k.unit],
			ledger.ColCategoryCode: k.category,
			ledger.ColGroupCode:    k.group,
			ledger.ColNatureCode:   k.nature,
			ledger.ColNatureName:   names[k],
		}
		fill(row, ledger.ExpenseAccounts, sum)
		rows = append(rows, row)
	}
	sortRows(rows)
	return rows, nil
}

// Revenue implements ledger.RevenueReader
func (s *Store) Revenue(_ context.Context, q ledger.Query) ([]ledger.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := map[natureKey]sums{}
	natureNames := names[natureKey]{}
	for _, b := range s.balances {
		if !matches(q, b.FiscalYear, b.Month, b.UnitID) {
			continue
		}
		acc := sums{}
		if !accumulate(acc, ledger.RevenueAccounts, b) {
			continue
		}
		k := natureKey{b.FiscalYear, b.Month, b.UnitID, b.NatureCode}
		if groups[k] == nil {
			groups[k] = sums{}
		}
		natureNames.keep(k, b.NatureName)
		for col, v := range acc {
			groups[k].add(col, v)
		}
	}

	rows := make([]ledger.Row, 0, len(groups))
	for k, sum := range groups {
		row := s.baseRow(k.year, k.month, k.unit, k.nature, natureNames[k])
		fill(row, ledger.RevenueAccounts, sum)
		rows = append(rows, row)
	}
	sortRows(rows)
	return rows, nil
}

// Credits implements ledger.CreditReader
func (s *Store) Credits(_ context.Context, q ledger.Query) ([]ledger.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type creditKey struct {
		year, month           int
		unit, category, group string
	}
	groups := map[creditKey]sums{}
	for _, m := range s.credits {
		if !matches(q, m.FiscalYear, m.Month, m.UnitID) {
			continue
		}
		k := creditKey{m.FiscalYear, m.Month, m.UnitID, prefix(m.NatureCode, 0), prefix(m.NatureCode, 1)}
		if groups[k] == nil {
			groups[k] = sums{}
		}
		if slices.Contains(ledger.CreditKinds, m.Kind) {
			groups[k].add(m.Kind, m.Amount)
		}
	}

	rows := make([]ledger.Row, 0, len(groups))
	for k, sum := range groups {
		row := ledger.Row{
			ledger.ColFiscalYear:   k.year,
			ledger.ColMonth:        k.month,
			ledger.ColUnitID:       k.unit,
			ledger.ColCategoryCode: k.category,
			ledger.ColGroupCode:    k.group,
		}
		for _, kind := range ledger.CreditKinds {
			row[kind] = sum[kind]
		}
		rows = append(rows, row)
	}
	sortRows(rows)
	return rows, nil
}

// Units implements ledger.UnitLister
func (s *Store) Units(context.Context) ([]ledger.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.units))
	for id := range s.units {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	rows := make([]ledger.Row, len(ids))
	for i, id := range ids {
		rows[i] = ledger.Row{ledger.ColUnitID: id, ledger.ColUnitName: s.units[id]}
	}
	return rows, nil
}
