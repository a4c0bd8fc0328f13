package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes the header and rows to w.
func WriteCSV(w io.Writer, rows []Row) error {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.Record())
	}
	return writeTable(w, Header(), records)
}

// WriteCreditsCSV writes the credit header and rows to w.
func WriteCreditsCSV(w io.Writer, rows []CreditRow) error {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.Record())
	}
	return writeTable(w, CreditHeader(), records)
}

func writeTable(w io.Writer, header []string, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// ToSheetValues converts rows into a values matrix for a spreadsheet, header
// first. Amounts are numbers so the sheet can compute with them.
func ToSheetValues(rows []Row) [][]any {
	header := Header()
	out := make([][]any, 0, len(rows)+1)
	h := make([]any, len(header))
	for i, c := range header {
		h[i] = c
	}
	out = append(out, h)

	for _, r := range rows {
		line := []any{string(r.NodeType), r.ID, r.DisplayName}
		for _, d := range append(amounts(r.Current), amounts(r.Prior)...) {
			line = append(line, d.Round(2).InexactFloat64())
		}
		for _, v := range r.variances() {
			if v.Valid {
				line = append(line, v.Decimal.InexactFloat64())
			} else {
				line = append(line, "")
			}
		}
		out = append(out, line)
	}
	return out
}
