package backend

import (
	"context"

	"orcamento/internal/ledger"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// WatchFunc starts watching the backend's data for changes and calls
// onChange after each reload. It returns once the watcher is running.
type WatchFunc func(ctx context.Context, onChange func()) error

// BackendResult contains the ledger source and its lifecycle hooks.
// Watch is nil for backends whose data cannot change underneath us.
type BackendResult struct {
	Source  ledger.Source
	Cleanup CleanupFunc
	Watch   WatchFunc
}

// Factory creates ledger sources based on configuration
type Factory interface {
	// CreateBackend creates a ledger source based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// PostgreSQL specific
	DatabaseURL  string
	MaxConns     int32
	EnsureSchema bool

	// Memory backend specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
