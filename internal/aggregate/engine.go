// Package aggregate builds the comparative reports: it partitions ledger
// records into the selected and prior fiscal year, rolls them up along the
// classification registry and derives the computed fields.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"orcamento/internal/classification"
	"orcamento/internal/core"
	"orcamento/internal/log"
)

// Engine builds report trees. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	expense *classification.Registry
	revenue *classification.Registry
	logger  *log.Logger
}

// NewEngine creates an engine over the given registries.
func NewEngine(expense, revenue *classification.Registry, logger *log.Logger) *Engine {
	return &Engine{expense: expense, revenue: revenue, logger: logger.WithComponent(log.ComponentEngine)}
}

type classified interface {
	Classified() core.Classification
}

// Partition splits records into the year-to-date slices of the selected and
// the prior fiscal year. A record lands in at most one slice.
func Partition[T classified](records []T, sel core.Selector) (current, prior []T) {
	for _, r := range records {
		c := r.Classified()
		if c.Month > sel.Month {
			continue
		}
		switch c.FiscalYear {
		case sel.FiscalYear:
			current = append(current, r)
		case sel.PriorYear():
			prior = append(prior, r)
		}
	}
	return current, prior
}

// FilterUnit keeps the records of one unit. The consolidated selector keeps
// everything.
func FilterUnit[T classified](records []T, unit string) []T {
	if core.IsConsolidatedUnit(unit) {
		return records
	}
	want := core.NormalizeUnitID(unit)
	out := make([]T, 0, len(records))
	for _, r := range records {
		if core.NormalizeUnitID(r.Classified().UnitID) == want {
			out = append(out, r)
		}
	}
	return out
}

func selected[T classified](records []T, sel core.Selector) (current, prior []T) {
	current, prior = Partition(records, sel)
	return FilterUnit(current, sel.Unit), FilterUnit(prior, sel.Unit)
}

func plusExpense(a, b core.ExpenseAmounts) core.ExpenseAmounts { return a.Plus(b) }
func plusCredit(a, b core.CreditAmounts) core.CreditAmounts    { return a.Plus(b) }
func plusRevenue(a, b core.RevenueAmounts) core.RevenueAmounts { return a.Plus(b) }

// BuildComparative aggregates raw extract records into the comparative tree.
func (e *Engine) BuildComparative(records []core.RawRecord, sel core.Selector) core.ComparativeTree {
	current, prior := selected(records, sel)

	ix := newIndex(plusExpense)
	for _, r := range current {
		ix.addAll(r.Classification, true, r.ExpenseAmounts)
	}
	for _, r := range prior {
		ix.addAll(r.Classification, false, r.ExpenseAmounts)
	}

	e.logger.Debug("Comparative built from raw records",
		log.FieldOperation, log.OpAggregate, "current", len(current), "prior", len(prior))
	return e.comparativeTree(ix, sel)
}

// BuildFromAggregated builds the same tree from rows already summed per
// level. Each row contributes to its own level only; the amounts of the
// three levels are trusted as given and the derived fields recomputed.
func (e *Engine) BuildFromAggregated(rows []core.AggregatedRow, sel core.Selector) core.ComparativeTree {
	current, prior := selected(rows, sel)

	ix := newIndex(plusExpense)
	for _, r := range current {
		ix.addAt(r.Level, r.Classification, true, r.ExpenseAmounts)
	}
	for _, r := range prior {
		ix.addAt(r.Level, r.Classification, false, r.ExpenseAmounts)
	}

	e.logger.Debug("Comparative built from aggregated rows",
		log.FieldOperation, log.OpAggregate, "current", len(current), "prior", len(prior))
	return e.comparativeTree(ix, sel)
}

func (e *Engine) comparativeTree(ix *index[core.ExpenseAmounts], sel core.Selector) core.ComparativeTree {
	categories := walk(e.expense, ix, comparativeNode)

	cur, prior := core.NewAggregatedValues(core.ExpenseAmounts{}), core.NewAggregatedValues(core.ExpenseAmounts{})
	for _, c := range categories {
		cur = cur.Add(c.Current)
		prior = prior.Add(c.Prior)
	}

	return core.ComparativeTree{
		Selector:   sel,
		Categories: categories,
		GrandTotal: core.ComparativeNode{
			ID:          string(core.LevelTotal),
			Level:       core.LevelTotal,
			DisplayName: "TOTAL GERAL",
			Current:     cur,
			Prior:       prior,
			Variance:    core.NewVariance(cur, prior),
			Children:    []core.ComparativeNode{},
		},
	}
}

func comparativeNode(level core.Level, id, name string, n *node[core.ExpenseAmounts], children []core.ComparativeNode) core.ComparativeNode {
	cur := core.NewAggregatedValues(n.current)
	prior := core.NewAggregatedValues(n.prior)
	return core.ComparativeNode{
		ID:          id,
		Level:       level,
		DisplayName: name,
		Current:     cur,
		Prior:       prior,
		Variance:    core.NewVariance(cur, prior),
		Children:    children,
	}
}

// BuildCredits rolls additional-credit movements of the selected fiscal year
// up to category and group level.
func (e *Engine) BuildCredits(records []core.CreditRecord, sel core.Selector) core.CreditTree {
	current, _ := selected(records, sel)

	ix := newIndex(plusCredit)
	for _, r := range current {
		ix.addLevels(r.Classification, true, r.CreditAmounts)
	}

	categories := walk(e.expense, ix, func(level core.Level, id, name string, n *node[core.CreditAmounts], children []core.CreditNode) core.CreditNode {
		return core.CreditNode{ID: id, Level: level, DisplayName: name, Values: core.NewCreditValues(n.current), Children: children}
	})

	total := core.NewCreditValues(core.CreditAmounts{})
	for _, c := range categories {
		total = total.Add(c.Values)
	}

	return core.CreditTree{
		Selector:   sel,
		Categories: categories,
		Total: core.CreditNode{
			ID:          string(core.LevelTotal),
			Level:       core.LevelTotal,
			DisplayName: "TOTAL GERAL",
			Values:      total,
			Children:    []core.CreditNode{},
		},
	}
}

// BuildRevenue builds the revenue comparative. Realized amounts of the
// selected month are also reported as realized in month.
func (e *Engine) BuildRevenue(records []core.RevenueRecord, sel core.Selector) core.RevenueTree {
	current, prior := selected(records, sel)

	ix := newIndex(plusRevenue)
	add := func(rs []core.RevenueRecord, isCurrent bool) {
		for _, r := range rs {
			a := r.RevenueAmounts
			a.RealizedInMonth = decimal.Zero
			if r.Month == sel.Month {
				a.RealizedInMonth = a.Realized
			}
			ix.addAll(r.Classification, isCurrent, a)
		}
	}
	add(current, true)
	add(prior, false)

	categories := walk(e.revenue, ix, func(level core.Level, id, name string, n *node[core.RevenueAmounts], children []core.RevenueNode) core.RevenueNode {
		return core.RevenueNode{
			ID: id, Level: level, DisplayName: name,
			Current:  core.NewRevenueValues(n.current),
			Prior:    core.NewRevenueValues(n.prior),
			Children: children,
		}
	})

	cur, prev := core.NewRevenueValues(core.RevenueAmounts{}), core.NewRevenueValues(core.RevenueAmounts{})
	for _, c := range categories {
		cur = cur.Add(c.Current)
		prev = prev.Add(c.Prior)
	}

	return core.RevenueTree{
		Selector:   sel,
		Categories: categories,
		GrandTotal: core.RevenueNode{
			ID:          string(core.LevelTotal),
			Level:       core.LevelTotal,
			DisplayName: "TOTAL GERAL",
			Current:     cur,
			Prior:       prev,
			Children:    []core.RevenueNode{},
		},
	}
}

// SummarizeByYear totals the records of each fiscal year through the
// selected month, for the selected unit. Years are ascending.
func SummarizeByYear(records []core.RawRecord, sel core.Selector) []core.YearSummary {
	byYear := map[int]*core.YearSummary{}
	for _, r := range FilterUnit(records, sel.Unit) {
		if r.Month > sel.Month {
			continue
		}
		s, ok := byYear[r.FiscalYear]
		if !ok {
			s = &core.YearSummary{FiscalYear: r.FiscalYear, Values: core.NewAggregatedValues(core.ExpenseAmounts{})}
			byYear[r.FiscalYear] = s
		}
		s.Records++
		s.Values = s.Values.Add(core.NewAggregatedValues(r.ExpenseAmounts))
	}

	out := make([]core.YearSummary, 0, len(byYear))
	for _, s := range byYear {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiscalYear < out[j].FiscalYear })
	return out
}

// SummarizeByUnit compares each unit's totals across the selected and prior
// fiscal year. Units are ordered by identifier.
func SummarizeByUnit(records []core.RawRecord, sel core.Selector) []core.UnitSummary {
	current, prior := selected(records, sel)
	zero := core.NewAggregatedValues(core.ExpenseAmounts{})

	byUnit := map[string]*core.UnitSummary{}
	get := func(r core.RawRecord) *core.UnitSummary {
		s, ok := byUnit[r.UnitID]
		if !ok {
			s = &core.UnitSummary{UnitID: r.UnitID, Current: zero, Prior: zero}
			byUnit[r.UnitID] = s
		}
		if s.UnitName == "" {
			s.UnitName = r.UnitName
		}
		return s
	}
	for _, r := range current {
		s := get(r)
		s.Current = s.Current.Add(core.NewAggregatedValues(r.ExpenseAmounts))
	}
	for _, r := range prior {
		s := get(r)
		s.Prior = s.Prior.Add(core.NewAggregatedValues(r.ExpenseAmounts))
	}

	out := make([]core.UnitSummary, 0, len(byUnit))
	for _, s := range byUnit {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out
}

// Summary combines the per-year and per-unit totals.
func (e *Engine) Summary(records []core.RawRecord, sel core.Selector) core.FinancialSummary {
	return core.FinancialSummary{
		Selector: sel,
		ByYear:   SummarizeByYear(records, sel),
		ByUnit:   SummarizeByUnit(records, sel),
	}
}
