package http

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"status": "ok",
		"uptime": s.config.Now().Sub(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady runs every dependency check with a shared timeout.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ready := true
	checks := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	data := map[string]any{
		"status": "ready",
		"checks": checks,
		"cache":  s.reports.CacheStatus(),
	}
	if !ready {
		data["status"] = "not_ready"
		s.logger.WarnContext(ctx, "Readiness check failed", "checks", checks)
		ServiceUnavailableError("not ready").Data(data).Write(w)
		return
	}
	NewJSONResponse().Data(data).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.tracer.GetMetrics()
	limitMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	cacheStatus := s.reports.CacheStatus()

	metrics := []struct {
		name, help, typ string
		value           any
	}{
		{"http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests},
		{"http_server_errors_total", "Responses with a 5xx status", "counter", traceMetrics.ServerErrors},
		{"http_response_time_avg_microseconds", "Average response time", "gauge", traceMetrics.AverageResponseTime},
		{"rate_limit_hits_total", "Total rate limit hits", "counter", limitMetrics.TotalHits},
		{"rate_limit_clients", "Currently tracked rate limit clients", "gauge", limitMetrics.ClientCount},
		{"suspicious_requests_total", "Total suspicious requests detected", "counter", securityMetrics.SuspiciousRequests},
		{"blocked_requests_total", "Requests rejected for their method", "counter", securityMetrics.BlockedRequests},
		{"report_cache_entries", "Built reports held in memory", "gauge", cacheStatus.TreeEntries},
		{"file_cache_entries", "Entries in the file cache", "gauge", cacheStatus.Files.EntryCount},
		{"file_cache_bytes", "Size of the file cache", "gauge", cacheStatus.Files.TotalSize},
		{"uptime_seconds", "Application uptime in seconds", "gauge", int64(s.config.Now().Sub(s.started).Seconds())},
	}
	sort.SliceStable(metrics, func(i, j int) bool { return metrics[i].name < metrics[j].name })

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	for _, m := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", m.name, m.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", m.name, m.typ)
		fmt.Fprintf(w, "%s %v\n\n", m.name, m.value)
	}
}
