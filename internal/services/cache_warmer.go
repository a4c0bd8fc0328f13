package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"orcamento/internal/core"
	"orcamento/internal/log"
)

// Warmable is the part of the provider the warmer drives.
type Warmable interface {
	FetchFullExtract(ctx context.Context) core.Result[[]core.RawRecord]
	ListUnits(ctx context.Context) core.Result[[]core.Unit]
}

// CacheWarmerConfig holds configuration for the cache warmer
type CacheWarmerConfig struct {
	// Interval is how often the extract cache is checked (default: 30m)
	Interval time.Duration
}

// DefaultCacheWarmerConfig returns sensible defaults
func DefaultCacheWarmerConfig() CacheWarmerConfig {
	return CacheWarmerConfig{Interval: 30 * time.Minute}
}

// CacheWarmer keeps the full extract cached so report requests do not pay
// for the source scan. Each pass fetches through the provider, which serves
// a fresh entry from the cache and queries the source only on a miss.
type CacheWarmer struct {
	provider Warmable
	config   CacheWarmerConfig
	logger   *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	passes int
}

// NewCacheWarmer creates a new cache warmer
func NewCacheWarmer(provider Warmable, config CacheWarmerConfig, logger *log.Logger) *CacheWarmer {
	if config.Interval <= 0 {
		config.Interval = DefaultCacheWarmerConfig().Interval
	}
	return &CacheWarmer{
		provider: provider,
		config:   config,
		logger:   logger.WithComponent(log.ComponentWarmer),
	}
}

// Start begins the warming loop. Returns an error if already running.
func (w *CacheWarmer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("cache warmer is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	go w.runLoop(ctx, stopCh, doneCh)

	w.logger.InfoContext(ctx, "Cache warmer started", "interval", w.config.Interval)
	return nil
}

// Stop gracefully stops the warmer and waits for the current pass.
func (w *CacheWarmer) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	doneCh := w.doneCh
	w.mu.Unlock()

	select {
	case <-doneCh:
		w.logger.InfoContext(ctx, "Cache warmer stopped gracefully")
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Cache warmer stop timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the warmer is currently running
func (w *CacheWarmer) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Passes returns how many warming passes have completed.
func (w *CacheWarmer) Passes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.passes
}

func (w *CacheWarmer) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	// Warm immediately on startup
	w.Warm(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Warm(ctx)
		}
	}
}

// Warm runs one pass and reports the kind of the extract result.
func (w *CacheWarmer) Warm(ctx context.Context) core.ResultKind {
	start := time.Now()
	res := w.provider.FetchFullExtract(ctx)
	if res.Kind == core.ResultSourceError {
		w.logger.WarnContext(ctx, "Cache warm pass failed", log.FieldError, res.Err)
	} else {
		units := w.provider.ListUnits(ctx)
		w.logger.DebugContext(ctx, "Cache warm pass done",
			log.FieldRecords, len(res.Value),
			"units", len(units.Value),
			log.FieldDuration, time.Since(start).Milliseconds())
	}

	w.mu.Lock()
	w.passes++
	w.mu.Unlock()
	return res.Kind
}
