// Package export turns report trees into flat tabular rows and writes them
// as CSV files, XLSX workbooks or spreadsheet values.
package export

import (
	"github.com/shopspring/decimal"

	"orcamento/internal/core"
)

// Row is one flattened node of a comparative tree, with the current and
// prior fiscal year values side by side.
type Row struct {
	NodeType    core.Level
	ID          string
	DisplayName string
	Current     core.AggregatedValues
	Prior       core.AggregatedValues
	Variance    core.Variance
}

// CreditRow is one flattened node of an additional-credit tree.
type CreditRow struct {
	NodeType    core.Level
	ID          string
	DisplayName string
	Values      core.CreditValues
}

var valueColumns = []string{
	"initial_allocation", "additional_allocation", "allocation_cancellation",
	"cancellation_remanagement", "updated_allocation", "committed", "liquidated",
	"paid", "balance",
}

var creditColumns = []string{
	"supplementary", "special_opened", "special_reopened", "extraordinary_reopened",
	"supplementary_cancellation", "veto_remanagement", "special_cancellation",
	"total_alterations",
}

// Header returns the column names of a flattened comparative row.
func Header() []string {
	h := []string{"node_type", "id", "display_name"}
	for _, prefix := range []string{"current_", "prior_"} {
		for _, c := range valueColumns {
			h = append(h, prefix+c)
		}
	}
	return append(h, "committed_pct", "liquidated_pct", "paid_pct")
}

// CreditHeader returns the column names of a flattened credit row.
func CreditHeader() []string {
	return append([]string{"node_type", "id", "display_name"}, creditColumns...)
}

// Flatten lists the nodes of tree depth first: each category, then each of
// its groups followed by the group's details. The grand total is the last row.
func Flatten(tree core.ComparativeTree) []Row {
	rows := make([]Row, 0, countNodes(tree.Categories)+1)
	var visit func(nodes []core.ComparativeNode)
	visit = func(nodes []core.ComparativeNode) {
		for _, n := range nodes {
			rows = append(rows, rowOf(n))
			visit(n.Children)
		}
	}
	visit(tree.Categories)

	total := rowOf(tree.GrandTotal)
	total.NodeType = core.LevelTotal
	return append(rows, total)
}

func rowOf(n core.ComparativeNode) Row {
	return Row{
		NodeType:    n.Level,
		ID:          n.ID,
		DisplayName: n.DisplayName,
		Current:     n.Current,
		Prior:       n.Prior,
		Variance:    n.Variance,
	}
}

func countNodes(nodes []core.ComparativeNode) int {
	n := len(nodes)
	for _, c := range nodes {
		n += countNodes(c.Children)
	}
	return n
}

// FlattenCredits is Flatten for the additional-credit tree.
func FlattenCredits(tree core.CreditTree) []CreditRow {
	var rows []CreditRow
	var visit func(nodes []core.CreditNode)
	visit = func(nodes []core.CreditNode) {
		for _, n := range nodes {
			rows = append(rows, CreditRow{NodeType: n.Level, ID: n.ID, DisplayName: n.DisplayName, Values: n.Values})
			visit(n.Children)
		}
	}
	visit(tree.Categories)
	return append(rows, CreditRow{
		NodeType:    core.LevelTotal,
		ID:          tree.Total.ID,
		DisplayName: tree.Total.DisplayName,
		Values:      tree.Total.Values,
	})
}

func amounts(v core.AggregatedValues) []decimal.Decimal {
	return []decimal.Decimal{
		v.InitialAllocation, v.AdditionalAllocation, v.AllocationCancellation,
		v.CancellationRemanagement, v.UpdatedAllocation, v.Committed, v.Liquidated,
		v.Paid, v.Balance,
	}
}

func creditAmounts(v core.CreditValues) []decimal.Decimal {
	return []decimal.Decimal{
		v.Supplementary, v.SpecialOpened, v.SpecialReopened, v.ExtraordinaryReopened,
		v.SupplementaryCancellation, v.VetoRemanagement, v.SpecialCancellation,
		v.TotalAlterations,
	}
}

func (r Row) variances() []decimal.NullDecimal {
	return []decimal.NullDecimal{r.Variance.Committed, r.Variance.Liquidated, r.Variance.Paid}
}

// Record formats r as CSV fields. Amounts have two decimal places and a
// null variance is an empty field.
func (r Row) Record() []string {
	out := []string{string(r.NodeType), r.ID, r.DisplayName}
	for _, d := range append(amounts(r.Current), amounts(r.Prior)...) {
		out = append(out, d.StringFixed(2))
	}
	for _, v := range r.variances() {
		out = append(out, nullString(v))
	}
	return out
}

// Record formats r as CSV fields.
func (r CreditRow) Record() []string {
	out := []string{string(r.NodeType), r.ID, r.DisplayName}
	for _, d := range creditAmounts(r.Values) {
		out = append(out, d.StringFixed(2))
	}
	return out
}

func nullString(v decimal.NullDecimal) string {
	if !v.Valid {
		return ""
	}
	return v.Decimal.StringFixed(2)
}
