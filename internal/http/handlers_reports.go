package http

import (
	"net/http"

	"orcamento/internal/log"
)

// handleComparative serves the comparative tree. source=views reads the
// pre-aggregated rows; the default aggregates the raw extract.
func (s *Server) handleComparative(w http.ResponseWriter, r *http.Request) {
	sel, err := s.selector(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	switch source := r.URL.Query().Get("source"); source {
	case "", "raw":
		writeResult(w, r, "comparative", s.reports.Comparative(r.Context(), sel))
	case "views":
		writeResult(w, r, "comparative_views", s.reports.ComparativeFromViews(r.Context(), sel))
	default:
		BadRequestError("source must be raw or views").Write(w)
	}
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	sel, err := s.selector(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	writeResult(w, r, "credits", s.reports.Credits(r.Context(), sel))
}

func (s *Server) handleRevenue(w http.ResponseWriter, r *http.Request) {
	sel, err := s.selector(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	writeResult(w, r, "revenue", s.reports.Revenue(r.Context(), sel))
}

// handleRecords pages through the selected records.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	sel, err := s.selector(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	page := ParsePageParams(r.URL.Query())

	log.FromContext(r.Context()).DebugContext(r.Context(), "Listing records",
		log.NewFields().WithSelector(sel).ToSlice()...)
	writeResult(w, r, "records", s.reports.Records(r.Context(), sel, page.Page, page.PerPage))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sel, err := s.selector(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	writeResult(w, r, "summary", s.reports.Summary(r.Context(), sel))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sel, err := s.selector(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	writeResult(w, r, "dashboard", s.reports.Dashboard(r.Context(), sel))
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	writeResult(w, r, "units", s.reports.Units(r.Context()))
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	writeResult(w, r, "filters", s.reports.Filters(r.Context()))
}
