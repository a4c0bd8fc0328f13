package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"orcamento/internal/core"
	"orcamento/internal/log"
)

// DefaultDir is where exports are written when no directory is configured.
const DefaultDir = "exports"

const timestampLayout = "20060102_150405"

// Exporter saves report trees as CSV or XLSX files under one directory.
type Exporter struct {
	dir    string
	now    func() time.Time
	logger *log.Logger
}

// NewExporter creates an exporter writing into dir.
func NewExporter(dir string, logger *log.Logger) *Exporter {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultDir
	}
	return &Exporter{dir: dir, now: time.Now, logger: logger.WithComponent(log.ComponentExport)}
}

// WithClock replaces the clock used for file timestamps.
func (e *Exporter) WithClock(now func() time.Time) *Exporter {
	e.now = now
	return e
}

// Dir returns the export directory.
func (e *Exporter) Dir() string { return e.dir }

// FileName returns the export file name for a report and selector, for
// example "comparative_2025_6_ALL_20250715_100000.csv".
func (e *Exporter) FileName(report string, sel core.Selector) string {
	return e.fileName(report, sel, ".csv")
}

func (e *Exporter) fileName(report string, sel core.Selector, ext string) string {
	unit := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '-'
	}, sel.UnitKey())
	return fmt.Sprintf("%s_%d_%d_%s_%s%s", report, sel.FiscalYear, sel.Month, unit, e.now().Format(timestampLayout), ext)
}

// SaveCSV flattens tree and writes it to a new file. It returns the path.
func (e *Exporter) SaveCSV(tree core.ComparativeTree) (string, error) {
	rows := Flatten(tree)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return "", err
	}
	return e.save(e.FileName("comparative", tree.Selector), buf.Bytes(), len(rows))
}

// SaveXLSX flattens tree and writes it to a new workbook. It returns the path.
func (e *Exporter) SaveXLSX(tree core.ComparativeTree) (string, error) {
	rows := Flatten(tree)
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, rows); err != nil {
		return "", err
	}
	return e.save(e.fileName("comparative", tree.Selector, ".xlsx"), buf.Bytes(), len(rows))
}

// SaveCreditsCSV flattens the credit tree and writes it to a new file.
func (e *Exporter) SaveCreditsCSV(tree core.CreditTree) (string, error) {
	rows := FlattenCredits(tree)
	var buf bytes.Buffer
	if err := WriteCreditsCSV(&buf, rows); err != nil {
		return "", err
	}
	return e.save(e.FileName("credits", tree.Selector), buf.Bytes(), len(rows))
}

func (e *Exporter) save(name string, data []byte, rows int) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(e.dir, name)
	tmp := filepath.Join(e.dir, "."+name+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename export: %w", err)
	}
	e.logger.Info("Export written", log.FieldOperation, log.OpExport, log.FieldFile, path, log.FieldRecords, rows)
	return path, nil
}
