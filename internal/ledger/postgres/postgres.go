// Package postgres is the production ledger source, backed by a pgx pool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"orcamento/internal/ledger"
	"orcamento/internal/log"
)

//go:embed schema.sql
var schemaSQL string

// Source implements ledger.Source on PostgreSQL.
type Source struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

var _ ledger.Source = (*Source)(nil)

// New connects to the database at dsn.
func New(ctx context.Context, dsn string, maxConns int32, logger *log.Logger) (*Source, error) {
	if dsn == "" {
		return nil, errors.New("database url is required")
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewWithPool(pool, logger), nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool *pgxpool.Pool, logger *log.Logger) *Source {
	return &Source{pool: pool, logger: logger.WithComponent(log.ComponentLedger)}
}

// EnsureSchema creates the ledger tables and views when they are missing.
func (s *Source) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

// Ping checks the pool.
func (s *Source) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Source) Close() error {
	s.pool.Close()
	return nil
}

// Extract implements ledger.ExtractReader
func (s *Source) Extract(ctx context.Context, q ledger.Query) ([]ledger.Row, error) {
	return s.query(ctx, "extract", ledger.ExtractStatement(q))
}

// AggregatedLevels implements ledger.AggregateReader
func (s *Source) AggregatedLevels(ctx context.Context, q ledger.Query) ([]ledger.Row, error) {
	return s.query(ctx, "aggregated levels", ledger.LevelsStatement(q))
}

// Credits implements ledger.CreditReader
func (s *Source) Credits(ctx context.Context, q ledger.Query) ([]ledger.Row, error) {
	return s.query(ctx, "credits", ledger.CreditsStatement(q))
}

// Revenue implements ledger.RevenueReader
func (s *Source) Revenue(ctx context.Context, q ledger.Query) ([]ledger.Row, error) {
	return s.query(ctx, "revenue", ledger.RevenueStatement(q))
}

// Units implements ledger.UnitLister
func (s *Source) Units(ctx context.Context) ([]ledger.Row, error) {
	return s.query(ctx, "units", ledger.UnitsStatement())
}

func (s *Source) query(ctx context.Context, name string, st ledger.Statement) ([]ledger.Row, error) {
	st = st.Dollar()
	rows, err := s.pool.Query(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}

	out := make([]ledger.Row, len(maps))
	for i, m := range maps {
		out[i] = ledger.Row(m)
	}
	s.logger.DebugContext(ctx, "Ledger query completed", log.FieldOperation, name, log.FieldRecords, len(out))
	return out, nil
}
