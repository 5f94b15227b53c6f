package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/finquest-app/finquest/internal/app/engine"
	"github.com/finquest-app/finquest/internal/app/quest"
	"github.com/finquest-app/finquest/internal/app/session"
	"github.com/finquest-app/finquest/internal/domain"
	"github.com/finquest-app/finquest/internal/infra/catalog"
)

// ─── Stateless Simulation ───────────────────────────────────────────────────
//
// POST /api/simulate - replay batches from a quest or a custom initial step
// POST /api/step     - compute one transition

type simulateRequest struct {
	QuestID     string             `json:"quest_id,omitempty"`
	InitialStep *domain.Step       `json:"initial_step,omitempty"`
	Granularity domain.Granularity `json:"granularity,omitempty"`
	Batches     [][]catalog.Entry  `json:"batches"`
}

type simulateResponse struct {
	Steps     []domain.Step  `json:"steps"`
	Durations []durationView `json:"durations"`
	Payouts   []quest.Payout `json:"payouts"`
	Completed *bool          `json:"completed,omitempty"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	desc, err := s.describe(req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if len(req.Batches) > s.opts.MaxPlanSteps {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("plan has %d steps, limit is %d", len(req.Batches), s.opts.MaxPlanSteps))
		return
	}
	if req.QuestID != "" && len(req.Batches) > desc.MaxStepCount {
		s.writeDomainError(w, r, fmt.Errorf("%w: %s allows %d steps", domain.ErrQuestOver, desc.ID, desc.MaxStepCount))
		return
	}
	batches, err := s.d.Catalog.ResolveBatches(req.Batches)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	span := s.d.Tracer.StartSpan(r.Context(), "simulate", map[string]string{"quest": desc.ID})
	start := time.Now()
	q, err := s.d.Simulator.Build(desc, batches)
	s.d.Metrics.ObserveSimulation(len(batches), time.Since(start), err, session.IsHistoryFailure(err))
	s.d.Tracer.EndSpan(span, err)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := simulateResponse{
		Steps:     q.Steps,
		Durations: toDurationViews(quest.ActionDurations(q)),
		Payouts:   nonNilPayouts(quest.Payouts(q)),
	}
	if desc.Goal != nil {
		done, err := quest.IsCompleted(q)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		resp.Completed = &done
	}
	writeJSON(w, http.StatusOK, resp)
}

// describe builds the quest description a simulate request runs against.
func (s *Server) describe(req simulateRequest) (domain.QuestDescription, error) {
	if req.QuestID != "" {
		if req.InitialStep != nil {
			return domain.QuestDescription{}, fmt.Errorf("%w: quest_id and initial_step are exclusive", domain.ErrInvalidQuest)
		}
		return s.d.Catalog.Lookup(req.QuestID)
	}
	if req.InitialStep == nil {
		return domain.QuestDescription{}, fmt.Errorf("%w: quest_id or initial_step is required", domain.ErrInvalidQuest)
	}

	g := req.Granularity
	if g == "" {
		g = s.opts.DefaultGranularity
	}
	if !g.Valid() {
		return domain.QuestDescription{}, fmt.Errorf("%w: %q", domain.ErrInvalidGranularity, g)
	}
	initial, err := validStep(*req.InitialStep)
	if err != nil {
		return domain.QuestDescription{}, err
	}
	return domain.QuestDescription{
		ID:           "custom",
		Name:         "Custom simulation",
		InitialStep:  initial,
		MaxStepCount: s.opts.MaxPlanSteps,
		Granularity:  g,
	}, nil
}

// validStep rejects steps the engine would refuse with a panic.
func validStep(step domain.Step) (domain.Step, error) {
	if err := domain.ValidateActions(step.ContinuingActions); err != nil {
		return domain.Step{}, fmt.Errorf("continuing actions: %w", err)
	}
	if err := domain.ValidateActions(step.NewActions); err != nil {
		return domain.Step{}, fmt.Errorf("new actions: %w", err)
	}
	if step.NewActions == nil {
		step.NewActions = []domain.Action{}
	}
	if step.ContinuingActions == nil {
		step.ContinuingActions = []domain.Action{}
	}
	return step, nil
}

type stepRequest struct {
	Previous    domain.Step        `json:"previous"`
	NewActions  []catalog.Entry    `json:"new_actions"`
	Granularity domain.Granularity `json:"granularity,omitempty"`
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	g := req.Granularity
	if g == "" {
		g = s.opts.DefaultGranularity
	}
	if !g.Valid() {
		s.writeDomainError(w, r, fmt.Errorf("%w: %q", domain.ErrInvalidGranularity, g))
		return
	}
	prev, err := validStep(req.Previous)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	actions, err := s.d.Catalog.Resolve(req.NewActions)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	next, err := engine.ComputeNextStep(prev, actions, g, s.lookup())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

// ─── Durations ──────────────────────────────────────────────────────────────

// durationView replaces the perpetual end marker with null, since JSON
// clients cannot represent math.MaxInt exactly.
type durationView struct {
	Action         domain.Action `json:"action"`
	StartTimePoint int           `json:"start_time_point"`
	EndTimePoint   *int          `json:"end_time_point"`
	Perpetual      bool          `json:"perpetual"`
}

func toDurationViews(ds []domain.ActionDuration) []durationView {
	out := make([]durationView, len(ds))
	for i, d := range ds {
		v := durationView{Action: d.Action, StartTimePoint: d.StartTimePoint, Perpetual: d.Perpetual()}
		if !d.Perpetual() {
			end := d.EndTimePoint
			v.EndTimePoint = &end
		}
		out[i] = v
	}
	return out
}

func nonNilPayouts(p []quest.Payout) []quest.Payout {
	if p == nil {
		return []quest.Payout{}
	}
	return p
}

// lookup returns the history source, or nil when none is configured.
func (s *Server) lookup() domain.HistoryLookup {
	if s.d.History == nil {
		return nil
	}
	return s.d.History
}
