package provider

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"orcamento/internal/classification"
	"orcamento/internal/core"
	"orcamento/internal/ledger"
	"orcamento/internal/log"
)

// normalizer coerces source rows into typed records and counts the values it
// had to replace, so a bad column is reported once per batch.
type normalizer struct {
	issues map[string]int
}

func newNormalizer() *normalizer {
	return &normalizer{issues: map[string]int{}}
}

func (n *normalizer) int(row ledger.Row, col string) int {
	v, ok := core.CoerceInt(row[col])
	if !ok {
		n.issues[col]++
		return 0
	}
	return v
}

func (n *normalizer) amount(row ledger.Row, col string) decimal.Decimal {
	raw, present := row[col]
	v, ok := core.ParseAmount(raw)
	if !ok && present && !isBlank(raw) {
		n.issues[col]++
	}
	return v
}

func (n *normalizer) report(logger *log.Logger, what string) {
	if len(n.issues) == 0 {
		return
	}
	cols := make([]string, 0, len(n.issues))
	for c := range n.issues {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		logger.Warn("Invalid values replaced during normalization",
			log.FieldOperation, log.OpNormalize, log.FieldSource, what, log.FieldColumn, c, "count", n.issues[c])
	}
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []byte:
		return strings.TrimSpace(string(x)) == ""
	}
	return false
}

func text(row ledger.Row, col string) string {
	switch v := row[col].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *normalizer) classification(row ledger.Row) core.Classification {
	c := core.Classification{
		FiscalYear:   n.int(row, ledger.ColFiscalYear),
		Month:        n.int(row, ledger.ColMonth),
		UnitID:       core.NormalizeUnitID(row[ledger.ColUnitID]),
		UnitName:     text(row, ledger.ColUnitName),
		CategoryCode: core.NormalizeCode(row[ledger.ColCategoryCode]),
		CategoryName: text(row, ledger.ColCategoryName),
		GroupCode:    core.NormalizeCode(row[ledger.ColGroupCode]),
		GroupName:    text(row, ledger.ColGroupName),
		NatureCode:   core.NormalizeCode(row[ledger.ColNatureCode]),
		NatureName:   text(row, ledger.ColNatureName),
	}
	if c.CategoryCode == "" || c.GroupCode == "" {
		nat := classification.ParseNature(c.NatureCode)
		if c.CategoryCode == "" {
			c.CategoryCode = nat.Category
		}
		if c.GroupCode == "" {
			c.GroupCode = nat.Group
		}
	}
	return c
}

func (n *normalizer) expense(row ledger.Row) core.ExpenseAmounts {
	return core.ExpenseAmounts{
		InitialAllocation:        n.amount(row, ledger.ColInitialAllocation),
		AdditionalAllocation:     n.amount(row, ledger.ColAdditionalAllocation),
		AllocationCancellation:   n.amount(row, ledger.ColAllocationCancellation),
		CancellationRemanagement: n.amount(row, ledger.ColCancellationRemanagement),
		Committed:                n.amount(row, ledger.ColCommitted),
		Liquidated:               n.amount(row, ledger.ColLiquidated),
		Paid:                     n.amount(row, ledger.ColPaid),
	}
}

// NormalizeRecords converts extract rows into raw records. Unparseable years
// and months become 0; unparseable amounts become zero.
func NormalizeRecords(rows []ledger.Row, logger *log.Logger) []core.RawRecord {
	n := newNormalizer()
	out := make([]core.RawRecord, len(rows))
	for i, row := range rows {
		out[i] = core.RawRecord{
			Classification:  n.classification(row),
			FunctionCode:    text(row, ledger.ColFunctionCode),
			SubfunctionCode: text(row, ledger.ColSubfunctionCode),
			ProgramCode:     text(row, ledger.ColProgramCode),
			SourceCode:      text(row, ledger.ColSourceCode),
			ExpenseAmounts:  n.expense(row),
		}
	}
	n.report(logger, "extract")
	return out
}

// NormalizeAggregated converts pre-aggregated level rows.
func NormalizeAggregated(rows []ledger.Row, logger *log.Logger) []core.AggregatedRow {
	n := newNormalizer()
	out := make([]core.AggregatedRow, 0, len(rows))
	for _, row := range rows {
		level := core.Level(strings.ToUpper(text(row, ledger.ColLevel)))
		switch level {
		case core.LevelCategory, core.LevelGroup, core.LevelDetail:
		default:
			n.issues[ledger.ColLevel]++
			continue
		}
		out = append(out, core.AggregatedRow{
			Level:          level,
			Classification: n.classification(row),
			ExpenseAmounts: n.expense(row),
		})
	}
	n.report(logger, "aggregated")
	return out
}

// NormalizeCredits converts additional-credit rows.
func NormalizeCredits(rows []ledger.Row, logger *log.Logger) []core.CreditRecord {
	n := newNormalizer()
	out := make([]core.CreditRecord, len(rows))
	for i, row := range rows {
		out[i] = core.CreditRecord{
			Classification: n.classification(row),
			CreditAmounts: core.CreditAmounts{
				Supplementary:             n.amount(row, ledger.ColSupplementary),
				SpecialOpened:             n.amount(row, ledger.ColSpecialOpened),
				SpecialReopened:           n.amount(row, ledger.ColSpecialReopened),
				ExtraordinaryReopened:     n.amount(row, ledger.ColExtraordinaryReopened),
				SupplementaryCancellation: n.amount(row, ledger.ColSupplementaryCancellation),
				VetoRemanagement:          n.amount(row, ledger.ColVetoRemanagement),
				SpecialCancellation:       n.amount(row, ledger.ColSpecialCancellation),
			},
		}
	}
	n.report(logger, "credits")
	return out
}

// NormalizeRevenue converts revenue rows.
func NormalizeRevenue(rows []ledger.Row, logger *log.Logger) []core.RevenueRecord {
	n := newNormalizer()
	out := make([]core.RevenueRecord, len(rows))
	for i, row := range rows {
		out[i] = core.RevenueRecord{
			Classification: n.classification(row),
			RevenueAmounts: core.RevenueAmounts{
				InitialForecast: n.amount(row, ledger.ColInitialForecast),
				UpdatedForecast: n.amount(row, ledger.ColUpdatedForecast),
				Realized:        n.amount(row, ledger.ColRealized),
			},
		}
	}
	n.report(logger, "revenue")
	return out
}

// NormalizeUnits converts unit rows, dropping rows without an identifier.
func NormalizeUnits(rows []ledger.Row) []core.Unit {
	out := make([]core.Unit, 0, len(rows))
	for _, row := range rows {
		id := core.NormalizeUnitID(row[ledger.ColUnitID])
		if id == "" {
			continue
		}
		out = append(out, core.Unit{ID: id, Name: text(row, ledger.ColUnitName)})
	}
	return out
}
