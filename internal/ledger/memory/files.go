package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"orcamento/internal/core"
	"orcamento/internal/ledger"
	"orcamento/internal/log"
)

// Seed file names looked up in the data directory. Missing files are empty.
const (
	BalancesFile = "balances.csv"
	CreditsFile  = "credits.csv"
	UnitsFile    = "units.csv"
)

const debounceDelay = 100 * time.Millisecond

// NewFromDir loads the seed files found in dir.
func NewFromDir(dir string, logger *log.Logger) (*Store, error) {
	s := &Store{dir: dir, logger: logger.WithComponent(log.ComponentLedger)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the seed files and swaps the data atomically.
func (s *Store) Reload() error {
	if s.dir == "" {
		return errors.New("memory ledger has no data directory")
	}

	balances, err := readCSV(filepath.Join(s.dir, BalancesFile), parseBalance)
	if err != nil {
		return err
	}
	credits, err := readCSV(filepath.Join(s.dir, CreditsFile), parseCredit)
	if err != nil {
		return err
	}
	unitRows, err := readCSV(filepath.Join(s.dir, UnitsFile), func(rec map[string]string) ([2]string, error) {
		return [2]string{core.NormalizeUnitID(rec["unit_id"]), rec["name"]}, nil
	})
	if err != nil {
		return err
	}

	units := make(map[string]string, len(unitRows))
	for _, u := range unitRows {
		units[u[0]] = u[1]
	}
	s.replace(balances, credits, units)

	s.logger.Info("Memory ledger loaded",
		log.FieldSource, s.dir, "balances", len(balances), "credits", len(credits), "units", len(units))
	return nil
}

// Watch reloads the store when a seed file changes and then calls onChange.
// It returns once the watcher is running; the watcher stops with ctx.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	go s.runWatcher(ctx, watcher, onChange)
	return nil
}

func (s *Store) runWatcher(ctx context.Context, watcher *fsnotify.Watcher, onChange func()) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		_ = watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isSeedFile(event.Name) || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// Editors write in several steps; reload once they settle.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceDelay, func() {
				if err := s.Reload(); err != nil {
					s.logger.Error("Failed to reload memory ledger", log.FieldError, err)
					return
				}
				if onChange != nil {
					onChange()
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("File watcher error", log.FieldError, err)
		}
	}
}

func isSeedFile(path string) bool {
	switch filepath.Base(path) {
	case BalancesFile, CreditsFile, UnitsFile:
		return true
	}
	return false
}

// readCSV parses a headed CSV file, one value per record. A missing file
// yields no records.
func readCSV[T any](path string, parse func(map[string]string) (T, error)) ([]T, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var out []T
	for line := 2; ; line++ {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		rec := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(fields) {
				rec[h] = strings.TrimSpace(fields[i])
			}
		}
		v, err := parse(rec)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), line, err)
		}
		out = append(out, v)
	}
}

func parsePeriod(rec map[string]string) (year, month int, err error) {
	year, ok := core.CoerceInt(rec["fiscal_year"])
	if !ok {
		return 0, 0, fmt.Errorf("invalid fiscal_year %q", rec["fiscal_year"])
	}
	month, ok = core.CoerceInt(rec["month"])
	if !ok || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("invalid month %q", rec["month"])
	}
	return year, month, nil
}

func parseBalance(rec map[string]string) (ledger.Balance, error) {
	year, month, err := parsePeriod(rec)
	if err != nil {
		return ledger.Balance{}, err
	}
	account, err := strconv.ParseInt(rec["account_code"], 10, 64)
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("invalid account_code %q", rec["account_code"])
	}
	debit, _ := core.ParseAmount(rec["debit"])
	credit, _ := core.ParseAmount(rec["credit"])

	return ledger.Balance{
		FiscalYear:      year,
		Month:           month,
		UnitID:          core.NormalizeUnitID(rec["unit_id"]),
		AccountCode:     account,
		NatureCode:      rec["nature_code"],
		NatureName:      rec["nature_name"],
		FunctionCode:    rec["function_code"],
		SubfunctionCode: rec["subfunction_code"],
		ProgramCode:     rec["program_code"],
		SourceCode:      rec["source_code"],
		Debit:           debit,
		Credit:          credit,
	}, nil
}

func parseCredit(rec map[string]string) (ledger.CreditMovement, error) {
	year, month, err := parsePeriod(rec)
	if err != nil {
		return ledger.CreditMovement{}, err
	}
	amount, _ := core.ParseAmount(rec["amount"])
	return ledger.CreditMovement{
		FiscalYear: year,
		Month:      month,
		UnitID:     core.NormalizeUnitID(rec["unit_id"]),
		NatureCode: rec["nature_code"],
		Kind:       strings.ToLower(rec["kind"]),
		Amount:     amount,
	}, nil
}
