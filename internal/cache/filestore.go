package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"orcamento/internal/log"
)

const (
	// SchemaVersion is written into every entry. Bumping it invalidates all
	// entries written by older builds.
	SchemaVersion = 1

	DefaultTTL       = 12 * time.Hour
	DefaultRetention = 7 * 24 * time.Hour

	fileExt    = ".json"
	tempPrefix = ".tmp-"
)

var (
	ErrCorrupt  = errors.New("cache entry corrupt")
	ErrMismatch = errors.New("cache entry schema mismatch")
)

// FileStoreConfig configures a FileStore.
type FileStoreConfig struct {
	Dir        string
	DefaultTTL time.Duration
	Retention  time.Duration
	Now        func() time.Time
}

// Stats describes the entries currently on disk.
type Stats struct {
	EntryCount  int       `json:"entry_count"`
	TotalSize   int64     `json:"total_size_bytes"`
	TotalSizeMB float64   `json:"total_size_mb"`
	Oldest      time.Time `json:"oldest,omitzero"`
	Newest      time.Time `json:"newest,omitzero"`
	Directory   string    `json:"directory"`
}

type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Key           string          `json:"key"`
	Columns       []string        `json:"columns"`
	CreatedAt     time.Time       `json:"created_at"`
	TTLSeconds    int64           `json:"ttl_seconds"`
	Checksum      string          `json:"checksum"`
	Payload       json.RawMessage `json:"payload"`
}

func (e envelope) ttl() time.Duration {
	return time.Duration(e.TTLSeconds) * time.Second
}

// FileStore persists one JSON envelope per key under a directory. Every
// failure degrades to a miss: Get reports absent and Put reports false.
type FileStore struct {
	dir        string
	defaultTTL time.Duration
	retention  time.Duration
	now        func() time.Time
	logger     *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates the cache directory and deletes files older than the
// retention window.
func NewFileStore(cfg FileStoreConfig, logger *log.Logger) (*FileStore, error) {
	if cfg.Dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &FileStore{
		dir:        cfg.Dir,
		defaultTTL: cfg.DefaultTTL,
		retention:  cfg.Retention,
		now:        cfg.Now,
		logger:     logger.WithComponent(log.ComponentCache),
		locks:      make(map[string]*sync.Mutex),
	}
	if n := s.sweep(); n > 0 {
		s.logger.Info("Removed cache files past retention", "removed", n, "retention", s.retention.String())
	}
	return s, nil
}

// Dir returns the cache directory.
func (s *FileStore) Dir() string { return s.dir }

// Get decodes the payload stored under key into dst. It reports false when the
// entry is missing, stale, corrupt or was written with other columns or
// another schema version; in every case but "missing" the file is removed.
func (s *FileStore) Get(key string, columns []string, dst any) bool {
	unlock := s.lock(key)
	defer unlock()

	path := s.path(key)
	env, err := s.read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Discarding unreadable cache entry", log.FieldCacheKey, key, log.FieldError, err)
			s.remove(path)
		}
		return false
	}

	switch {
	case env.Key != key:
		// Another key sanitized to the same file name.
		return false
	case env.SchemaVersion != SchemaVersion || !slices.Equal(env.Columns, columns):
		s.logger.Info("Discarding cache entry with different schema",
			log.FieldCacheKey, key, "schema_version", env.SchemaVersion)
		s.remove(path)
		return false
	case s.now().Sub(env.CreatedAt) > env.ttl():
		s.logger.Debug("Cache entry expired", log.FieldCacheKey, key, "created_at", env.CreatedAt)
		s.remove(path)
		return false
	}

	if err := json.Unmarshal(env.Payload, dst); err != nil {
		s.logger.Warn("Discarding cache entry with invalid payload", log.FieldCacheKey, key, log.FieldError, err)
		s.remove(path)
		return false
	}
	return true
}

// Put stores payload under key, replacing any previous entry. A ttl of zero
// selects the store default.
func (s *FileStore) Put(key string, columns []string, payload any, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to serialize cache payload", log.FieldCacheKey, key, log.FieldError, err)
		return false
	}

	created := s.now()
	sum := sha256.Sum256(raw)
	data, err := json.Marshal(envelope{
		SchemaVersion: SchemaVersion,
		Key:           key,
		Columns:       columns,
		CreatedAt:     created,
		TTLSeconds:    int64(ttl / time.Second),
		Checksum:      hex.EncodeToString(sum[:]),
		Payload:       raw,
	})
	if err != nil {
		s.logger.Error("Failed to serialize cache envelope", log.FieldCacheKey, key, log.FieldError, err)
		return false
	}

	unlock := s.lock(key)
	defer unlock()

	if err := s.writeAtomic(s.path(key), data, created); err != nil {
		s.logger.Error("Failed to write cache entry", log.FieldCacheKey, key, log.FieldError, err)
		return false
	}
	s.logger.Debug("Cache entry stored", log.FieldCacheKey, key, "bytes", len(data))
	return true
}

// Invalidate removes the entry stored under key.
func (s *FileStore) Invalidate(key string) bool {
	unlock := s.lock(key)
	defer unlock()
	return s.remove(s.path(key))
}

// InvalidateAll removes every entry and returns how many were removed.
func (s *FileStore) InvalidateAll() int {
	removed := 0
	for _, path := range s.files() {
		if s.remove(path) {
			removed++
		}
	}
	s.logger.Info("Cache cleared", "removed", removed)
	return removed
}

// InvalidatePrefix removes the entries whose key starts with prefix and
// returns how many were removed.
func (s *FileStore) InvalidatePrefix(prefix string) int {
	removed := 0
	for _, path := range s.files() {
		if !strings.HasPrefix(filepath.Base(path), sanitize(prefix)) {
			continue
		}
		env, err := s.read(path)
		if err == nil && !strings.HasPrefix(env.Key, prefix) {
			continue
		}
		if s.remove(path) {
			removed++
		}
	}
	return removed
}

// CleanExpired removes entries whose TTL has elapsed.
func (s *FileStore) CleanExpired() int {
	removed := 0
	now := s.now()
	for _, path := range s.files() {
		env, err := s.read(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) && s.remove(path) {
				removed++
			}
			continue
		}
		if now.Sub(env.CreatedAt) > env.ttl() && s.remove(path) {
			removed++
		}
	}
	return removed
}

// Stats reports entry count, total size and the age bounds of the entries.
func (s *FileStore) Stats() Stats {
	st := Stats{Directory: s.dir}
	for _, path := range s.files() {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		st.EntryCount++
		st.TotalSize += info.Size()
		mod := info.ModTime()
		if st.Oldest.IsZero() || mod.Before(st.Oldest) {
			st.Oldest = mod
		}
		if mod.After(st.Newest) {
			st.Newest = mod
		}
	}
	st.TotalSizeMB = float64(st.TotalSize*100/(1024*1024)) / 100
	return st
}

// sweep deletes entries and leftover temp files whose modification time is
// older than the retention window, whatever their TTL.
func (s *FileStore) sweep() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	cutoff := s.now().Add(-s.retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, fileExt) && !strings.HasPrefix(name, tempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if s.remove(filepath.Join(s.dir, name)) {
			removed++
		}
	}
	return removed
}

func (s *FileStore) read(path string) (envelope, error) {
	var env envelope
	data, err := os.ReadFile(path)
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	sum := sha256.Sum256(env.Payload)
	if hex.EncodeToString(sum[:]) != env.Checksum {
		return env, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return env, nil
}

func (s *FileStore) writeAtomic(path string, data []byte, modTime time.Time) error {
	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chtimes(tmpName, modTime, modTime); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (s *FileStore) remove(path string) bool {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove cache file", log.FieldFile, path, log.FieldError, err)
	}
	return err == nil
}

func (s *FileStore) files() []string {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+fileExt))
	if err != nil {
		return nil
	}
	return matches
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, fileName(key))
}

func (s *FileStore) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// fileName maps a key to its file name.
func fileName(key string) string {
	name := sanitize(key)
	if name == "" {
		name = "_"
	}
	return name + fileExt
}

// sanitize replaces anything outside [A-Za-z0-9_.-] with an underscore and
// drops leading dots.
func sanitize(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.TrimLeft(b.String(), ".")
}
