package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// DefaultTabBase is the tab name, without the year, that reports are written to.
const DefaultTabBase = "Comparativo"

// Ports for outbound adapters.
type (
	// ReportWriter replaces the contents of a fiscal year's report tab with
	// values, header row first, and returns the A1 range written.
	ReportWriter interface {
		WriteReport(ctx context.Context, fiscalYear int, values [][]any) (rangeRef string, err error)
	}
)

// TabName returns "<year> <base>" unless base already starts with a 4-digit year.
func TabName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// A1Range returns the range covering rows x cols cells from A1 of tab.
func A1Range(tab string, rows, cols int) string {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	return fmt.Sprintf("'%s'!A1:%s%d", strings.ReplaceAll(tab, "'", "''"), columnName(cols), rows)
}

// columnName converts a 1-based column number into its letters (1 -> A, 27 -> AA).
func columnName(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}
