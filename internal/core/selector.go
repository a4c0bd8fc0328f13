package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Consolidated is the unit selector meaning "all units combined".
const Consolidated = "CONSOLIDATED"

// Selector identifies a report: fiscal year, year-to-date month and unit.
type Selector struct {
	FiscalYear int    `json:"fiscal_year"`
	Month      int    `json:"month"`
	Unit       string `json:"unit"`
}

// NewSelector builds a selector, normalizing the unit identifier.
func NewSelector(fiscalYear, month int, unit string) Selector {
	return Selector{FiscalYear: fiscalYear, Month: month, Unit: normalizeUnitSelector(unit)}
}

// ParseSelector coerces loosely typed inputs (for example "2025" or 6.0) into a
// selector. It fails only when the year or the month cannot be read as an integer.
func ParseSelector(fiscalYear, month, unit any) (Selector, error) {
	year, ok := CoerceInt(fiscalYear)
	if !ok || year <= 0 {
		return Selector{}, fmt.Errorf("%w: %w %v", ErrInvalidSelector, ErrInvalidFiscalYear, fiscalYear)
	}
	m, ok := CoerceInt(month)
	if !ok {
		return Selector{}, fmt.Errorf("%w: %w %v", ErrInvalidSelector, ErrInvalidMonth, month)
	}
	return Selector{FiscalYear: year, Month: m, Unit: normalizeUnitSelector(NormalizeUnitID(unit))}, nil
}

// Validate checks the month range and the configured fiscal year bounds.
func (s Selector) Validate(minYear, maxYear int) error {
	if s.Month < 1 || s.Month > 12 {
		return fmt.Errorf("%w: %d (must be between 1 and 12)", ErrInvalidMonth, s.Month)
	}
	if s.FiscalYear < minYear || s.FiscalYear > maxYear {
		return fmt.Errorf("%w: %d (must be between %d and %d)", ErrFiscalYearOutRange, s.FiscalYear, minYear, maxYear)
	}
	return nil
}

// IsConsolidated reports whether the selector covers every unit.
func (s Selector) IsConsolidated() bool {
	return IsConsolidatedUnit(s.Unit)
}

// UnitKey returns the unit part of cache keys and file names.
func (s Selector) UnitKey() string {
	if s.IsConsolidated() {
		return "ALL"
	}
	return s.Unit
}

// PriorYear returns the fiscal year compared against.
func (s Selector) PriorYear() int {
	return s.FiscalYear - 1
}

// IsConsolidatedUnit reports whether u is the consolidated sentinel or one of
// its aliases (empty, or the legacy "CONSOLIDADO").
func IsConsolidatedUnit(u string) bool {
	switch strings.ToUpper(strings.TrimSpace(u)) {
	case "", Consolidated, "CONSOLIDADO":
		return true
	}
	return false
}

func normalizeUnitSelector(u string) string {
	if IsConsolidatedUnit(u) {
		return Consolidated
	}
	return NormalizeUnitID(u)
}

// NormalizeUnitID turns a unit identifier read from any source into its
// canonical string form, so 150001, 150001.0, "150001" and " 150001 " all
// compare equal.
func NormalizeUnitID(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return normalizeNumericString(x)
	case []byte:
		return normalizeNumericString(string(x))
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return formatFloatID(float64(x))
	case float64:
		return formatFloatID(x)
	case decimal.Decimal:
		if x.IsInteger() {
			return x.BigInt().String()
		}
		return x.String()
	case fmt.Stringer:
		return normalizeNumericString(x.String())
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// NormalizeCode normalizes a classification code read from any source with
// the same rules as NormalizeUnitID.
func NormalizeCode(v any) string {
	return NormalizeUnitID(v)
}

func formatFloatID(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// normalizeNumericString trims s and drops a zero fraction ("150001.0")
// left behind by sources that read codes as floats.
func normalizeNumericString(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i > 0 && strings.Trim(s[i+1:], "0") == "" {
		if _, err := strconv.ParseInt(s[:i], 10, 64); err == nil {
			return s[:i]
		}
	}
	return s
}

// CoerceInt reads an integer from an int, an integral float or a numeric string.
func CoerceInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case float32:
		return CoerceInt(float64(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
			return 0, false
		}
		return int(x), true
	case decimal.Decimal:
		if !x.IsInteger() {
			return 0, false
		}
		return int(x.IntPart()), true
	case []byte:
		return CoerceInt(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return CoerceInt(f)
		}
		return 0, false
	default:
		return 0, false
	}
}

// ReportKey derives the cache key of a report for a selector, for example
// "comparative_2025_6_ALL".
func ReportKey(report string, s Selector) string {
	return fmt.Sprintf("%s_%d_%d_%s", report, s.FiscalYear, s.Month, s.UnitKey())
}

// ComparativeKey is the cache key of the raw-row comparative report.
func ComparativeKey(s Selector) string {
	return ReportKey("comparative", s)
}

// ExtractKey is the cache key of the full extract taken on day t.
func ExtractKey(t time.Time) string {
	return "extract_" + t.Format("2006-01-02")
}

// UnitsKey is the cache key of the managing-unit list.
const UnitsKey = "units"
