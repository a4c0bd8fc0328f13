package http

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"orcamento/internal/core"
	"orcamento/internal/log"
	"orcamento/internal/services"
)

func (s *Server) handleExportComparativeCSV(w http.ResponseWriter, r *http.Request) {
	s.serveExport(w, r, "export_comparative", s.reports.ExportCSV)
}

func (s *Server) handleExportComparativeXLSX(w http.ResponseWriter, r *http.Request) {
	s.serveExport(w, r, "export_comparative_xlsx", s.reports.ExportXLSX)
}

func (s *Server) handleExportCreditsCSV(w http.ResponseWriter, r *http.Request) {
	s.serveExport(w, r, "export_credits", s.reports.ExportCreditsCSV)
}

// serveExport writes the report to the export directory and sends the file
// as an attachment.
func (s *Server) serveExport(w http.ResponseWriter, r *http.Request, operation string,
	export func(context.Context, core.Selector) (core.Result[string], error)) {
	sel, err := s.selector(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	res, err := export(r.Context(), sel)
	if err != nil {
		writeFailure(w, r, operation, err)
		return
	}
	if res.Kind == core.ResultSourceError {
		writeResult(w, r, operation, res)
		return
	}

	f, err := os.Open(res.Value)
	if err != nil {
		writeFailure(w, r, operation, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeFailure(w, r, operation, err)
		return
	}

	name := filepath.Base(res.Value)
	w.Header().Set("Content-Type", contentType(name))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("X-Result-Kind", res.Kind.String())
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func contentType(name string) string {
	if filepath.Ext(name) == ".xlsx" {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// handleRequestExport queues an export job. The body carries fiscal_year,
// month, unit and target (csv, xlsx or sheets, default csv).
func (s *Server) handleRequestExport(w http.ResponseWriter, r *http.Request) {
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	sel, err := s.selector(body)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	target := body.Get("target")
	if target == "" {
		target = services.TargetCSV
	}

	jobID, err := s.reports.RequestExport(r.Context(), sel, target)
	switch {
	case errors.Is(err, services.ErrUnknownTarget):
		BadRequestError(err.Error()).Write(w)
		return
	case err != nil:
		s.jobQueueUnavailable(w, r, "request_export", err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Export queued",
		log.FieldJobID, jobID, "target", target, log.FieldFiscalYear, sel.FiscalYear, log.FieldMonth, sel.Month)
	NewJSONResponse().Status(http.StatusAccepted).Data(map[string]any{
		"job_id":   jobID,
		"target":   target,
		"selector": sel,
	}).Write(w)
}

func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(s.reports.CacheStatus()).Write(w)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	removed := s.reports.ClearCache(r.Context())
	NewJSONResponse().Data(map[string]int{"removed": removed}).Write(w)
}

// handleRefresh queues a cache refresh, or runs it inline when no job queue
// is configured.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	reason := body.Get("reason")
	if reason == "" {
		reason = "api"
	}

	jobID, err := s.reports.RequestRefresh(r.Context(), reason)
	if err != nil {
		s.jobQueueUnavailable(w, r, "refresh", err)
		return
	}
	if jobID == "" {
		NewJSONResponse().Data(map[string]any{"queued": false}).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusAccepted).Data(map[string]any{"queued": true, "job_id": jobID}).Write(w)
}

func (s *Server) jobQueueUnavailable(w http.ResponseWriter, r *http.Request, operation string, err error) {
	log.FromContext(r.Context()).LogError(r.Context(), "Job not accepted", err, operation, nil)
	if errors.Is(err, services.ErrNoPublisher) {
		ServiceUnavailableError("job queue not configured").Write(w)
		return
	}
	ServiceUnavailableError("job could not be accepted").Write(w)
}
