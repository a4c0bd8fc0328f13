package core

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

type (
	// AggregatedValues is a sum of expense amounts plus the fields derived from it.
	// Derived fields are always recomputed from the summed base fields.
	AggregatedValues struct {
		ExpenseAmounts
		UpdatedAllocation decimal.Decimal `json:"updated_allocation"`
		Balance           decimal.Decimal `json:"balance"`
	}

	// CreditValues is a sum of credit movements plus their total.
	CreditValues struct {
		CreditAmounts
		TotalAlterations decimal.Decimal `json:"total_alterations"`
	}

	// RevenueValues is a sum of revenue amounts plus what is left to realize.
	RevenueValues struct {
		RevenueAmounts
		ToRealize decimal.Decimal `json:"to_realize"`
	}

	// Variance is the percentage change of the execution stages against the
	// prior fiscal year. A field is null when the prior value is zero.
	Variance struct {
		Committed  decimal.NullDecimal `json:"committed_pct"`
		Liquidated decimal.NullDecimal `json:"liquidated_pct"`
		Paid       decimal.NullDecimal `json:"paid_pct"`
	}
)

// NewAggregatedValues derives the updated allocation and the balance from a.
func NewAggregatedValues(a ExpenseAmounts) AggregatedValues {
	updated := decimal.Sum(a.InitialAllocation, a.AdditionalAllocation,
		a.AllocationCancellation, a.CancellationRemanagement)
	return AggregatedValues{
		ExpenseAmounts:    a,
		UpdatedAllocation: updated,
		Balance:           updated.Sub(a.Committed),
	}
}

// Add sums the base fields of v and o and re-derives the rest.
func (v AggregatedValues) Add(o AggregatedValues) AggregatedValues {
	return NewAggregatedValues(v.ExpenseAmounts.Plus(o.ExpenseAmounts))
}

// NewCreditValues derives the total alterations from a.
func NewCreditValues(a CreditAmounts) CreditValues {
	return CreditValues{CreditAmounts: a, TotalAlterations: a.Total()}
}

// Add sums the movements of v and o and re-derives the total.
func (v CreditValues) Add(o CreditValues) CreditValues {
	return NewCreditValues(v.CreditAmounts.Plus(o.CreditAmounts))
}

// NewRevenueValues derives the amount still to be realized from a.
func NewRevenueValues(a RevenueAmounts) RevenueValues {
	return RevenueValues{RevenueAmounts: a, ToRealize: a.UpdatedForecast.Sub(a.Realized)}
}

// Add sums the base fields of v and o and re-derives the rest.
func (v RevenueValues) Add(o RevenueValues) RevenueValues {
	return NewRevenueValues(v.RevenueAmounts.Plus(o.RevenueAmounts))
}

// NewVariance compares the execution stages of current against prior.
func NewVariance(current, prior AggregatedValues) Variance {
	return Variance{
		Committed:  VariancePct(current.Committed, prior.Committed),
		Liquidated: VariancePct(current.Liquidated, prior.Liquidated),
		Paid:       VariancePct(current.Paid, prior.Paid),
	}
}

// VariancePct returns ((current - prior) / prior) * 100 rounded to two places.
func VariancePct(current, prior decimal.Decimal) decimal.NullDecimal {
	if prior.IsZero() {
		return decimal.NullDecimal{}
	}
	pct := current.Sub(prior).Div(prior).Mul(hundred).Round(2)
	return decimal.NewNullDecimal(pct)
}
