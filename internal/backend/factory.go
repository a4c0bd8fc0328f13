package backend

import (
	"context"
	"fmt"

	"orcamento/internal/ledger/memory"
	"orcamento/internal/ledger/postgres"
	"orcamento/internal/log"
	"orcamento/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Source:  repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	src, err := postgres.New(ctx, config.DatabaseURL, config.MaxConns, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL source: %w", err)
	}
	if config.EnsureSchema {
		if err := src.EnsureSchema(ctx); err != nil {
			src.Close()
			return nil, err
		}
	}

	f.logger.Info("Initialized PostgreSQL backend", "max_conns", config.MaxConns)

	return &BackendResult{
		Source:  src,
		Cleanup: src.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	store, err := memory.NewFromDir(config.DataDirectory, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory ledger: %w", err)
	}

	f.logger.Info("Initialized memory backend", "data_directory", config.DataDirectory)

	return &BackendResult{
		Source:  store,
		Cleanup: store.Close,
		Watch:   store.Watch,
	}, nil
}
