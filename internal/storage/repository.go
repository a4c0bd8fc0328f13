// Package storage is the SQLite ledger: account balances and credit
// movements, read through the statements shared with the PostgreSQL source.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"orcamento/internal/ledger"
	"orcamento/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements ledger.Source on a local SQLite file.
type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
}

var _ ledger.Source = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies the migrations.
func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	r := &SQLiteRepository{
		db:     db,
		logger: logger.WithComponent(log.ComponentStorage),
	}
	r.logger.Debug("Ledger schema ready", "path", dbPath, "schema_version", version)
	return r, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Extract implements ledger.ExtractReader
func (r *SQLiteRepository) Extract(ctx context.Context, q ledger.Query) ([]ledger.Row, error) {
	return r.query(ctx, "extract", ledger.ExtractStatement(q))
}

// AggregatedLevels implements ledger.AggregateReader
func (r *SQLiteRepository) AggregatedLevels(ctx context.Context, q ledger.Query) ([]ledger.Row, error) {
	return r.query(ctx, "aggregated levels", ledger.LevelsStatement(q))
}

// Credits implements ledger.CreditReader
func (r *SQLiteRepository) Credits(ctx context.Context, q ledger.Query) ([]ledger.Row, error) {
	return r.query(ctx, "credits", ledger.CreditsStatement(q))
}

// Revenue implements ledger.RevenueReader
func (r *SQLiteRepository) Revenue(ctx context.Context, q ledger.Query) ([]ledger.Row, error) {
	return r.query(ctx, "revenue", ledger.RevenueStatement(q))
}

// Units implements ledger.UnitLister
func (r *SQLiteRepository) Units(ctx context.Context) ([]ledger.Row, error) {
	return r.query(ctx, "units", ledger.UnitsStatement())
}

func (r *SQLiteRepository) query(ctx context.Context, name string, st ledger.Statement) ([]ledger.Row, error) {
	rows, err := r.db.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}
	r.logger.DebugContext(ctx, "Ledger query completed", log.FieldOperation, name, log.FieldRecords, len(out))
	return out, nil
}

func scanRows(rows *sql.Rows) ([]ledger.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]ledger.Row, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(ledger.Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// InsertUnit registers or renames a managing unit.
func (r *SQLiteRepository) InsertUnit(ctx context.Context, id, name string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO managing_unit (unit_id, name) VALUES (?, ?)
		 ON CONFLICT (unit_id) DO UPDATE SET name = excluded.name`, id, name)
	if err != nil {
		return fmt.Errorf("insert unit %s: %w", id, err)
	}
	return nil
}

// InsertBalance stores one account balance.
func (r *SQLiteRepository) InsertBalance(ctx context.Context, b ledger.Balance) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ledger_balance (fiscal_year, month, unit_id, account_code, nature_code, nature_name,
		     function_code, subfunction_code, program_code, source_code, debit, credit)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.FiscalYear, b.Month, b.UnitID, b.AccountCode, b.NatureCode, b.NatureName,
		b.FunctionCode, b.SubfunctionCode, b.ProgramCode, b.SourceCode,
		b.Debit.String(), b.Credit.String())
	if err != nil {
		return fmt.Errorf("insert balance %d/%d account %d: %w", b.FiscalYear, b.Month, b.AccountCode, err)
	}
	return nil
}

// InsertCreditMovement stores one additional-credit movement.
func (r *SQLiteRepository) InsertCreditMovement(ctx context.Context, m ledger.CreditMovement) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credit_movement (fiscal_year, month, unit_id, nature_code, kind, amount)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.FiscalYear, m.Month, m.UnitID, m.NatureCode, m.Kind, m.Amount.String())
	if err != nil {
		return fmt.Errorf("insert credit movement %s: %w", m.Kind, err)
	}
	return nil
}
