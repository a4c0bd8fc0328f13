package core

type (
	// ComparativeNode is a category, group or detail node of the comparative
	// report. Children is empty for detail nodes.
	ComparativeNode struct {
		ID          string            `json:"id"`
		Level       Level             `json:"level"`
		DisplayName string            `json:"display_name"`
		Current     AggregatedValues  `json:"values_current"`
		Prior       AggregatedValues  `json:"values_prior"`
		Variance    Variance          `json:"variance"`
		Children    []ComparativeNode `json:"children"`
	}

	// ComparativeTree is the root of the comparative report. GrandTotal is the
	// field-wise sum of the category nodes.
	ComparativeTree struct {
		Selector   Selector          `json:"selector"`
		Categories []ComparativeNode `json:"categories"`
		GrandTotal ComparativeNode   `json:"grand_total"`
	}

	// CreditNode is a node of the additional-credit summary.
	CreditNode struct {
		ID          string       `json:"id"`
		Level       Level        `json:"level"`
		DisplayName string       `json:"display_name"`
		Values      CreditValues `json:"values"`
		Children    []CreditNode `json:"children"`
	}

	// CreditTree is the root of the additional-credit summary.
	CreditTree struct {
		Selector   Selector     `json:"selector"`
		Categories []CreditNode `json:"categories"`
		Total      CreditNode   `json:"total"`
	}

	// RevenueNode is a category, origin or detail node of the revenue report.
	RevenueNode struct {
		ID          string        `json:"id"`
		Level       Level         `json:"level"`
		DisplayName string        `json:"display_name"`
		Current     RevenueValues `json:"values_current"`
		Prior       RevenueValues `json:"values_prior"`
		Children    []RevenueNode `json:"children"`
	}

	// RevenueTree is the root of the revenue report.
	RevenueTree struct {
		Selector   Selector      `json:"selector"`
		Categories []RevenueNode `json:"categories"`
		GrandTotal RevenueNode   `json:"grand_total"`
	}

	// YearSummary totals every record of a fiscal year.
	YearSummary struct {
		FiscalYear int              `json:"fiscal_year"`
		Records    int              `json:"records"`
		Values     AggregatedValues `json:"values"`
	}

	// UnitSummary compares one unit's totals across the two fiscal years.
	UnitSummary struct {
		UnitID   string           `json:"unit_id"`
		UnitName string           `json:"unit_name"`
		Current  AggregatedValues `json:"values_current"`
		Prior    AggregatedValues `json:"values_prior"`
	}

	// FinancialSummary groups the per-year and per-unit totals.
	FinancialSummary struct {
		Selector Selector      `json:"selector"`
		ByYear   []YearSummary `json:"by_year"`
		ByUnit   []UnitSummary `json:"by_unit"`
	}

	// FilterOptions lists the values a caller can select in the reports.
	FilterOptions struct {
		FiscalYears []int    `json:"fiscal_years"`
		Months      []int    `json:"months"`
		Units       []Unit   `json:"units"`
		Functions   []string `json:"functions"`
		Sources     []string `json:"sources"`
	}
)

// IsEmpty reports whether no category matched the selector.
func (t ComparativeTree) IsEmpty() bool { return len(t.Categories) == 0 }

// IsEmpty reports whether no category matched the selector.
func (t CreditTree) IsEmpty() bool { return len(t.Categories) == 0 }

// IsEmpty reports whether no category matched the selector.
func (t RevenueTree) IsEmpty() bool { return len(t.Categories) == 0 }
