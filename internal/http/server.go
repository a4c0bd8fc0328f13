package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"orcamento/internal/core"
	"orcamento/internal/log"
	"orcamento/internal/middleware/ratelimit"
	"orcamento/internal/middleware/security"
	"orcamento/internal/middleware/trace"
	"orcamento/internal/services"
)

// Reports is the report service as seen by the handlers.
type Reports interface {
	Comparative(ctx context.Context, sel core.Selector) core.Result[core.ComparativeTree]
	ComparativeFromViews(ctx context.Context, sel core.Selector) core.Result[core.ComparativeTree]
	Credits(ctx context.Context, sel core.Selector) core.Result[core.CreditTree]
	Revenue(ctx context.Context, sel core.Selector) core.Result[core.RevenueTree]
	Records(ctx context.Context, sel core.Selector, page, perPage int) core.Result[core.Page[core.RawRecord]]
	Summary(ctx context.Context, sel core.Selector) core.Result[core.FinancialSummary]
	Dashboard(ctx context.Context, sel core.Selector) core.Result[services.Dashboard]
	Units(ctx context.Context) core.Result[[]core.Unit]
	Filters(ctx context.Context) core.Result[core.FilterOptions]

	ExportCSV(ctx context.Context, sel core.Selector) (core.Result[string], error)
	ExportXLSX(ctx context.Context, sel core.Selector) (core.Result[string], error)
	ExportCreditsCSV(ctx context.Context, sel core.Selector) (core.Result[string], error)
	RequestExport(ctx context.Context, sel core.Selector, target string) (string, error)
	RequestRefresh(ctx context.Context, reason string) (string, error)

	CacheStatus() services.CacheStatus
	ClearCache(ctx context.Context) int
}

// Check is a readiness probe of one dependency.
type Check func(ctx context.Context) error

// Config holds server settings.
type Config struct {
	Addr              string
	Bounds            SelectorBounds
	RequestsPerMinute int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	// Now overrides the clock used for parameter defaults (tests)
	Now func() time.Time
}

type Server struct {
	http.Server
	reports Reports
	checks  map[string]Check
	config  Config
	logger  *log.Logger

	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer wires the middleware chain and the routes, returning a
// ready-to-run server.
func NewServer(config Config, reports Reports, checks map[string]Check, logger *log.Logger) *Server {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 15 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 60 * time.Second
	}

	logger = logger.WithComponent(log.ComponentHTTP)
	detector := security.NewDetector(logger)
	s := &Server{
		reports:  reports,
		checks:   checks,
		config:   config,
		logger:   logger,
		detector: detector,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: config.RequestsPerMinute}),
		tracer:   trace.NewMiddleware(detector.ExtractClientIP, logger),
		started:  config.Now(),
	}
	s.Server = http.Server{
		Addr:              config.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.tracer.Middleware)
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, _ *http.Request) {
			TooManyRequestsError().Write(w)
		}))

		// Reports
		r.Get("/comparative", s.handleComparative)
		r.Get("/credits", s.handleCredits)
		r.Get("/revenue", s.handleRevenue)
		r.Get("/records", s.handleRecords)
		r.Get("/summary", s.handleSummary)
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/units", s.handleUnits)
		r.Get("/filters", s.handleFilters)

		// Exports
		r.Get("/exports/comparative.csv", s.handleExportComparativeCSV)
		r.Get("/exports/comparative.xlsx", s.handleExportComparativeXLSX)
		r.Get("/exports/credits.csv", s.handleExportCreditsCSV)
		r.Post("/exports", s.handleRequestExport)

		// Cache administration
		r.Get("/cache", s.handleCacheStatus)
		r.Delete("/cache", s.handleClearCache)
		r.Post("/cache/refresh", s.handleRefresh)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		NotFoundError("resource not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})
	return r
}

// Shutdown stops accepting requests and releases the middleware goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) selector(p Params) (core.Selector, error) {
	return ParseSelectorParams(p, s.config.Bounds, s.config.Now())
}
