package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/finquest-app/finquest/internal/domain"
	"github.com/finquest-app/finquest/internal/infra/history"
)

// ─── History & Diagnostics ──────────────────────────────────────────────────
//
// GET /api/history                       - available categories
// GET /api/history/{category}?granularity=month&steps=12
//                                        - annual series plus per-step percents
// GET /api/traces?limit=50               - recent spans

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.d.History == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}
	cats, err := s.d.History.Categories()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": cats,
		"base_year":  s.d.History.BaseYear(),
	})
}

type periodReturn struct {
	TimePoint int     `json:"time_point"`
	Percent   float64 `json:"percent"`
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.d.History == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}
	category := domain.Category(chi.URLParam(r, "category"))
	series, err := s.d.History.Prices(category)
	if errors.Is(err, domain.ErrUnknownCategory) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"category":       series.Category,
		"start_year":     series.StartYear,
		"end_year":       series.EndYear(),
		"annual_returns": series.AnnualReturns,
		"base_year":      s.d.History.BaseYear(),
	}

	if gs := r.URL.Query().Get("granularity"); gs != "" {
		g := domain.Granularity(gs)
		if !g.Valid() {
			writeError(w, http.StatusBadRequest, "unknown granularity "+strconv.Quote(gs))
			return
		}
		steps := g.PeriodsPerYear()
		if v := r.URL.Query().Get("steps"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > s.opts.MaxPlanSteps {
				writeError(w, http.StatusBadRequest, "steps must be between 1 and "+strconv.Itoa(s.opts.MaxPlanSteps))
				return
			}
			steps = n
		}
		periods := make([]periodReturn, 0, steps)
		for tp := 0; tp < steps; tp++ {
			p, err := history.Percent(tp, g, series, s.d.History.BaseYear())
			if err != nil {
				break
			}
			periods = append(periods, periodReturn{TimePoint: tp, Percent: p})
		}
		resp["granularity"] = g
		resp["periods"] = periods
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"spans": s.d.Tracer.Spans(limit),
	})
}
