package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/finquest-app/finquest/internal/app/executor"
	"github.com/finquest-app/finquest/internal/infra/catalog"
)

// ─── Plan Comparison ────────────────────────────────────────────────────────
//
// POST /api/compare       - replay several plans of one quest side by side
// GET  /api/compare/stats - executor slots and counters

// maxComparePlans caps the plans in one comparison.
const maxComparePlans = 32

type comparePlan struct {
	Name    string            `json:"name"`
	Batches [][]catalog.Entry `json:"batches"`
}

type compareRequest struct {
	QuestID string        `json:"quest_id"`
	Plans   []comparePlan `json:"plans"`
}

type compareResponse struct {
	QuestID string            `json:"quest_id"`
	Results []executor.Result `json:"results"`
	Stats   executor.Stats    `json:"stats"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if s.d.Executor == nil {
		writeError(w, http.StatusServiceUnavailable, "plan comparison is not configured")
		return
	}

	var req compareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Plans) == 0 || len(req.Plans) > maxComparePlans {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("need 1 to %d plans, got %d", maxComparePlans, len(req.Plans)))
		return
	}

	desc, err := s.d.Catalog.Lookup(req.QuestID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	plans := make([]executor.Plan, len(req.Plans))
	for i, p := range req.Plans {
		if len(p.Batches) > s.opts.MaxPlanSteps {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("plan %d has %d steps, limit is %d", i, len(p.Batches), s.opts.MaxPlanSteps))
			return
		}
		batches, err := s.d.Catalog.ResolveBatches(p.Batches)
		if err != nil {
			s.writeDomainError(w, r, fmt.Errorf("plan %d: %w", i, err))
			return
		}
		name := p.Name
		if name == "" {
			name = "plan-" + strconv.Itoa(i+1)
		}
		plans[i] = executor.Plan{Name: name, Batches: batches}
	}

	span := s.d.Tracer.StartSpan(r.Context(), "compare", map[string]string{
		"quest": desc.ID,
		"plans": strconv.Itoa(len(plans)),
	})
	results, err := s.d.Executor.Compare(r.Context(), desc, plans)
	s.d.Tracer.EndSpan(span, err)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, compareResponse{
		QuestID: desc.ID,
		Results: results,
		Stats:   s.d.Executor.Stats(),
	})
}

func (s *Server) handleCompareStats(w http.ResponseWriter, r *http.Request) {
	if s.d.Executor == nil {
		writeError(w, http.StatusServiceUnavailable, "plan comparison is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.d.Executor.Stats())
}
