// Package core provides the domain types shared by the ledger sources, the
// aggregation engine and the report services.
//
// This file contains the monetary field sets and the coercion of loosely typed
// source values into decimals.
package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type (
	// ExpenseAmounts holds the base monetary fields of an expense row.
	ExpenseAmounts struct {
		InitialAllocation        decimal.Decimal `json:"initial_allocation"`
		AdditionalAllocation     decimal.Decimal `json:"additional_allocation"`
		AllocationCancellation   decimal.Decimal `json:"allocation_cancellation"`
		CancellationRemanagement decimal.Decimal `json:"cancellation_remanagement"`
		Committed                decimal.Decimal `json:"committed"`
		Liquidated               decimal.Decimal `json:"liquidated"`
		Paid                     decimal.Decimal `json:"paid"`
	}

	// CreditAmounts holds the additional-credit movements of a row.
	CreditAmounts struct {
		Supplementary             decimal.Decimal `json:"supplementary"`
		SpecialOpened             decimal.Decimal `json:"special_opened"`
		SpecialReopened           decimal.Decimal `json:"special_reopened"`
		ExtraordinaryReopened     decimal.Decimal `json:"extraordinary_reopened"`
		SupplementaryCancellation decimal.Decimal `json:"supplementary_cancellation"`
		VetoRemanagement          decimal.Decimal `json:"veto_remanagement"`
		SpecialCancellation       decimal.Decimal `json:"special_cancellation"`
	}

	// RevenueAmounts holds the base monetary fields of a revenue row.
	// RealizedInMonth is filled by the engine for rows of the selected month.
	RevenueAmounts struct {
		InitialForecast decimal.Decimal `json:"initial_forecast"`
		UpdatedForecast decimal.Decimal `json:"updated_forecast"`
		Realized        decimal.Decimal `json:"realized"`
		RealizedInMonth decimal.Decimal `json:"realized_in_month"`
	}
)

// Plus returns the field-wise sum of a and b.
func (a ExpenseAmounts) Plus(b ExpenseAmounts) ExpenseAmounts {
	return ExpenseAmounts{
		InitialAllocation:        a.InitialAllocation.Add(b.InitialAllocation),
		AdditionalAllocation:     a.AdditionalAllocation.Add(b.AdditionalAllocation),
		AllocationCancellation:   a.AllocationCancellation.Add(b.AllocationCancellation),
		CancellationRemanagement: a.CancellationRemanagement.Add(b.CancellationRemanagement),
		Committed:                a.Committed.Add(b.Committed),
		Liquidated:               a.Liquidated.Add(b.Liquidated),
		Paid:                     a.Paid.Add(b.Paid),
	}
}

// IsZero reports whether every field is zero.
func (a ExpenseAmounts) IsZero() bool {
	return a.InitialAllocation.IsZero() && a.AdditionalAllocation.IsZero() &&
		a.AllocationCancellation.IsZero() && a.CancellationRemanagement.IsZero() &&
		a.Committed.IsZero() && a.Liquidated.IsZero() && a.Paid.IsZero()
}

// Plus returns the field-wise sum of a and b.
func (a CreditAmounts) Plus(b CreditAmounts) CreditAmounts {
	return CreditAmounts{
		Supplementary:             a.Supplementary.Add(b.Supplementary),
		SpecialOpened:             a.SpecialOpened.Add(b.SpecialOpened),
		SpecialReopened:           a.SpecialReopened.Add(b.SpecialReopened),
		ExtraordinaryReopened:     a.ExtraordinaryReopened.Add(b.ExtraordinaryReopened),
		SupplementaryCancellation: a.SupplementaryCancellation.Add(b.SupplementaryCancellation),
		VetoRemanagement:          a.VetoRemanagement.Add(b.VetoRemanagement),
		SpecialCancellation:       a.SpecialCancellation.Add(b.SpecialCancellation),
	}
}

// Total is the sum of every credit movement.
func (a CreditAmounts) Total() decimal.Decimal {
	return decimal.Sum(a.Supplementary, a.SpecialOpened, a.SpecialReopened,
		a.ExtraordinaryReopened, a.SupplementaryCancellation,
		a.VetoRemanagement, a.SpecialCancellation)
}

// Plus returns the field-wise sum of a and b.
func (a RevenueAmounts) Plus(b RevenueAmounts) RevenueAmounts {
	return RevenueAmounts{
		InitialForecast: a.InitialForecast.Add(b.InitialForecast),
		UpdatedForecast: a.UpdatedForecast.Add(b.UpdatedForecast),
		Realized:        a.Realized.Add(b.Realized),
		RealizedInMonth: a.RealizedInMonth.Add(b.RealizedInMonth),
	}
}

// ParseAmount coerces a loosely typed monetary value into a decimal.
//
// Missing, empty, NaN, infinite and unparseable inputs yield zero with ok=false,
// so callers can log the coercion without propagating an invalid number.
// Strings may use either "1234.56" or the Brazilian "1.234,56" notation.
func ParseAmount(v any) (d decimal.Decimal, ok bool) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return x, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case float32:
		return ParseAmount(float64(x))
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case uint32:
		return decimal.NewFromInt(int64(x)), true
	case []byte:
		return parseAmountString(string(x))
	case string:
		return parseAmountString(x)
	case fmt.Stringer:
		return parseAmountString(x.String())
	default:
		return decimal.Zero, false
	}
}

func parseAmountString(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
