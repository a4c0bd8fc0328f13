package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Ledger backends
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Ledger source
	LedgerBackend string
	SQLiteDBPath  string
	DatabaseURL   string
	MemoryDataDir string

	// Cache
	CacheDir             string
	CacheEnabled         bool
	CacheTTL             time.Duration
	UnitsCacheTTL        time.Duration
	CacheRetention       time.Duration
	CacheCleanupInterval time.Duration
	CacheWarmInterval    time.Duration

	// Reports
	ExportDir     string
	MinFiscalYear int
	MaxFiscalYear int

	// AMQP (optional: without a URL jobs run inline)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export (optional)
	GoogleSpreadsheetID      string
	GoogleExportSheet        string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),

		LedgerBackend: getEnv("LEDGER_BACKEND", BackendSQLite),
		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/orcamento.db"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		MemoryDataDir: getEnv("MEMORY_DATA_DIR", "./data/ledger"),

		CacheDir:             getEnv("CACHE_DIR", "./cache"),
		CacheEnabled:         getEnvBool("CACHE_ENABLED", true),
		CacheTTL:             getEnvDuration("CACHE_TTL", 12*time.Hour),
		UnitsCacheTTL:        getEnvDuration("UNITS_CACHE_TTL", 24*time.Hour),
		CacheRetention:       getEnvDuration("CACHE_RETENTION", 7*24*time.Hour),
		CacheCleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", 10*time.Minute),
		CacheWarmInterval:    getEnvDuration("CACHE_WARM_INTERVAL", 30*time.Minute),

		ExportDir:     getEnv("EXPORT_DIR", "./exports"),
		MinFiscalYear: getEnvInt("MIN_FISCAL_YEAR", 2020),
		MaxFiscalYear: getEnvInt("MAX_FISCAL_YEAR", 2030),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "orcamento"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "orcamento_jobs"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleExportSheet:        getEnv("GOOGLE_EXPORT_SHEET", "Comparativo"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// SheetsEnabled reports whether exports to Google Sheets are configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// AMQPEnabled reports whether jobs go through the broker.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	// Validate ledger backend
	validBackends := []string{BackendSQLite, BackendPostgres, BackendMemory}
	if !slices.Contains(validBackends, c.LedgerBackend) {
		errors = append(errors, fmt.Sprintf("invalid ledger backend '%s': must be one of %v", c.LedgerBackend, validBackends))
	}

	switch c.LedgerBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if msg := ensureDir(filepath.Dir(c.SQLiteDBPath), "SQLite database"); msg != "" {
			errors = append(errors, msg)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, "invalid DATABASE_URL: scheme must be 'postgres' or 'postgresql'")
		}
	case BackendMemory:
		if c.MemoryDataDir == "" {
			errors = append(errors, "MEMORY_DATA_DIR cannot be empty when using memory backend")
		} else if info, err := os.Stat(c.MemoryDataDir); err != nil || !info.IsDir() {
			errors = append(errors, fmt.Sprintf("memory ledger directory does not exist: %s", c.MemoryDataDir))
		}
	}

	// Validate cache configuration
	if c.CacheEnabled {
		if c.CacheDir == "" {
			errors = append(errors, "CACHE_DIR cannot be empty when the cache is enabled")
		} else if msg := ensureDir(c.CacheDir, "cache"); msg != "" {
			errors = append(errors, msg)
		}
	}
	if c.CacheTTL < time.Minute || c.CacheTTL > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be between 1 minute and 7 days", c.CacheTTL))
	}
	if c.UnitsCacheTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid units cache TTL %v: must be at least 1 minute", c.UnitsCacheTTL))
	}
	if c.CacheRetention < c.CacheTTL {
		errors = append(errors, fmt.Sprintf("invalid cache retention %v: must not be shorter than the cache TTL %v", c.CacheRetention, c.CacheTTL))
	}
	if c.CacheCleanupInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid cache cleanup interval %v: must be at least 1 minute", c.CacheCleanupInterval))
	}
	// zero disables the warmer
	if c.CacheWarmInterval != 0 && c.CacheWarmInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid cache warm interval %v: must be 0 or at least 1 minute", c.CacheWarmInterval))
	}

	// Validate report configuration
	if c.ExportDir == "" {
		errors = append(errors, "EXPORT_DIR cannot be empty")
	}
	if c.MinFiscalYear < 1900 {
		errors = append(errors, fmt.Sprintf("invalid minimum fiscal year %d: must be at least 1900", c.MinFiscalYear))
	}
	if c.MaxFiscalYear < c.MinFiscalYear {
		errors = append(errors, fmt.Sprintf("invalid fiscal year range %d-%d: maximum is before minimum", c.MinFiscalYear, c.MaxFiscalYear))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate Google Sheets configuration if enabled
	if c.SheetsEnabled() {
		if c.GoogleExportSheet == "" {
			errors = append(errors, "GOOGLE_EXPORT_SHEET cannot be empty when GOOGLE_SPREADSHEET_ID is set")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	// Validate logging
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ensureDir creates dir when missing and returns a validation message on
// failure.
func ensureDir(dir, what string) string {
	if dir == "." || dir == "" {
		return ""
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Sprintf("cannot create %s directory '%s': %v", what, dir, err)
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
