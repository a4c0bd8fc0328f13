package core

import (
	"errors"
)

// Level identifies the depth of a node in a classification tree.
type Level string

const (
	LevelCategory Level = "CATEGORY"
	LevelGroup    Level = "GROUP"
	LevelDetail   Level = "DETAIL"
	LevelTotal    Level = "TOTAL"
)

type (
	// Classification carries the period, unit and budget classification shared by
	// every ledger-derived row.
	Classification struct {
		FiscalYear   int    `json:"fiscal_year"`
		Month        int    `json:"month"`
		UnitID       string `json:"unit_id"`
		UnitName     string `json:"unit_name"`
		CategoryCode string `json:"category_code"`
		CategoryName string `json:"category_name"`
		GroupCode    string `json:"group_code"`
		GroupName    string `json:"group_name"`
		NatureCode   string `json:"nature_code"`
		NatureName   string `json:"nature_name"`
	}

	// RawRecord is one normalized row of the expense ledger extract.
	RawRecord struct {
		Classification
		FunctionCode    string `json:"function_code"`
		SubfunctionCode string `json:"subfunction_code"`
		ProgramCode     string `json:"program_code"`
		SourceCode      string `json:"source_code"`
		ExpenseAmounts
	}

	// AggregatedRow is a row of the pre-aggregated expense view. Level tells
	// which node of the tree the amounts already summarize.
	AggregatedRow struct {
		Level Level `json:"level"`
		Classification
		ExpenseAmounts
	}

	// CreditRecord is one row of additional-credit movements.
	CreditRecord struct {
		Classification
		CreditAmounts
	}

	// RevenueRecord is one normalized row of the revenue ledger extract.
	RevenueRecord struct {
		Classification
		RevenueAmounts
	}

	// Unit is a managing unit (unidade gestora).
	Unit struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
)

// RawRecordColumns lists the serialized columns of a RawRecord. Cache entries
// record it so a change in the record layout invalidates stored extracts.
var RawRecordColumns = []string{
	"fiscal_year", "month", "unit_id", "unit_name",
	"category_code", "category_name", "group_code", "group_name",
	"nature_code", "nature_name",
	"function_code", "subfunction_code", "program_code", "source_code",
	"initial_allocation", "additional_allocation", "allocation_cancellation",
	"cancellation_remanagement", "committed", "liquidated", "paid",
}

var (
	ErrInvalidSelector    = errors.New("invalid selector")
	ErrInvalidFiscalYear  = errors.New("invalid fiscal year")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrFiscalYearOutRange = errors.New("fiscal year out of range")
)

// Classified exposes the embedded classification; builders that work over
// several record kinds rely on it.
func (c Classification) Classified() Classification {
	return c
}

// HasMovement reports whether any monetary field of the record is nonzero.
func (r RawRecord) HasMovement() bool {
	return !r.ExpenseAmounts.IsZero()
}
