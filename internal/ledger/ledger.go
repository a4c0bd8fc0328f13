// Package ledger defines the read-only ports of the accounting ledger and the
// SQL shared by the relational implementations.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Row is one record as returned by a source. Values keep the source's own
// representation (numbers may arrive as strings, ints or floats); the
// provider normalizes them.
type Row map[string]any

// Column names shared by every source.
const (
	ColLevel           = "level"
	ColFiscalYear      = "fiscal_year"
	ColMonth           = "month"
	ColUnitID          = "unit_id"
	ColUnitName        = "unit_name"
	ColCategoryCode    = "category_code"
	ColCategoryName    = "category_name"
	ColGroupCode       = "group_code"
	ColGroupName       = "group_name"
	ColNatureCode      = "nature_code"
	ColNatureName      = "nature_name"
	ColFunctionCode    = "function_code"
	ColSubfunctionCode = "subfunction_code"
	ColProgramCode     = "program_code"
	ColSourceCode      = "source_code"

	ColInitialAllocation        = "initial_allocation"
	ColAdditionalAllocation     = "additional_allocation"
	ColAllocationCancellation   = "allocation_cancellation"
	ColCancellationRemanagement = "cancellation_remanagement"
	ColCommitted                = "committed"
	ColLiquidated               = "liquidated"
	ColPaid                     = "paid"

	ColSupplementary             = "supplementary"
	ColSpecialOpened             = "special_opened"
	ColSpecialReopened           = "special_reopened"
	ColExtraordinaryReopened     = "extraordinary_reopened"
	ColSupplementaryCancellation = "supplementary_cancellation"
	ColVetoRemanagement          = "veto_remanagement"
	ColSpecialCancellation       = "special_cancellation"

	ColInitialForecast = "initial_forecast"
	ColUpdatedForecast = "updated_forecast"
	ColRealized        = "realized"
)

// CreditKinds lists the credit movement kinds in report order.
var CreditKinds = []string{
	ColSupplementary, ColSpecialOpened, ColSpecialReopened, ColExtraordinaryReopened,
	ColSupplementaryCancellation, ColVetoRemanagement, ColSpecialCancellation,
}

// ErrUnsupported is returned by sources that cannot serve a query kind.
var ErrUnsupported = errors.New("operation not supported by ledger source")

// Query narrows a ledger read. Zero values mean "no restriction".
type Query struct {
	FiscalYears []int
	MonthLimit  int
	UnitID      string
}

type (
	// ExtractReader returns expense rows at nature/function/program/source
	// grain, one per fiscal year, month and unit.
	ExtractReader interface {
		Extract(ctx context.Context, q Query) ([]Row, error)
	}

	// AggregateReader returns expense rows already summed per classification
	// level (ColLevel is CATEGORY, GROUP or DETAIL), per month and unit.
	AggregateReader interface {
		AggregatedLevels(ctx context.Context, q Query) ([]Row, error)
	}

	// CreditReader returns additional-credit movements per category and group.
	CreditReader interface {
		Credits(ctx context.Context, q Query) ([]Row, error)
	}

	// RevenueReader returns revenue rows per nature, month and unit.
	RevenueReader interface {
		Revenue(ctx context.Context, q Query) ([]Row, error)
	}

	// UnitLister returns the registered managing units.
	UnitLister interface {
		Units(ctx context.Context) ([]Row, error)
	}

	// Source is a complete ledger backend.
	Source interface {
		ExtractReader
		AggregateReader
		CreditReader
		RevenueReader
		UnitLister
		Ping(ctx context.Context) error
		Close() error
	}
)

// Balance is one ledger account balance for a period.
type Balance struct {
	FiscalYear      int
	Month           int
	UnitID          string
	AccountCode     int64
	NatureCode      string
	NatureName      string
	FunctionCode    string
	SubfunctionCode string
	ProgramCode     string
	SourceCode      string
	Debit           decimal.Decimal
	Credit          decimal.Decimal
}

// CreditMovement is one additional-credit movement. Kind is one of CreditKinds.
type CreditMovement struct {
	FiscalYear int
	Month      int
	UnitID     string
	NatureCode string
	Kind       string
	Amount     decimal.Decimal
}
