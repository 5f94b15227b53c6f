// Package session manages persisted quest runs. A run stores only the
// chosen action batches; every read replays them through the simulator.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finquest-app/finquest/internal/app/quest"
	"github.com/finquest-app/finquest/internal/domain"
	"github.com/finquest-app/finquest/internal/infra/observability"
	"github.com/finquest-app/finquest/internal/logging"
)

// QuestSource resolves quest descriptions by ID.
type QuestSource interface {
	Lookup(id string) (domain.QuestDescription, error)
}

// Deps are the collaborators of a Service. Metrics, Tracer and Logger may
// be nil.
type Deps struct {
	Store     domain.RunStore
	Quests    QuestSource
	Simulator *quest.Simulator
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
	Logger    *slog.Logger
	Now       func() time.Time
}

// View is a run replayed into its full step history.
type View struct {
	Run       domain.Run    `json:"run"`
	Quest     *domain.Quest `json:"quest"`
	Completed bool          `json:"completed"`
}

// Service runs quests on behalf of players.
type Service struct {
	// mu serializes read-modify-write cycles on runs.
	mu  sync.Mutex
	d   Deps
	log *slog.Logger
}

// New creates a Service.
func New(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	log := d.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Service{d: d, log: log.With("component", "session")}
}

// Start opens a new run of questID positioned on the initial step.
func (s *Service) Start(ctx context.Context, questID string) (v *View, err error) {
	span := s.d.Tracer.StartSpan(ctx, "run.start", map[string]string{"quest": questID})
	defer func() { s.d.Tracer.EndSpan(span, err) }()

	desc, err := s.d.Quests.Lookup(questID)
	if err != nil {
		return nil, err
	}

	now := s.d.Now().UTC()
	run := domain.Run{
		ID:        uuid.NewString(),
		QuestID:   questID,
		Batches:   [][]domain.Action{},
		Cursor:    0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	v, err = s.view(ctx, desc, run)
	if err != nil {
		return nil, err
	}
	if err := s.d.Store.SaveRun(run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	s.refreshStoredRuns()

	s.log.Info("run started", "run_id", run.ID, "quest", questID)
	return v, nil
}

// Load replays a stored run.
func (s *Service) Load(ctx context.Context, runID string) (*View, error) {
	run, err := s.d.Store.GetRun(runID)
	if err != nil {
		return nil, err
	}
	desc, err := s.d.Quests.Lookup(run.QuestID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, desc, *run)
}

// Choose introduces actions as the batch that follows the cursor's step.
// Batches after the cursor are discarded, so choosing from an earlier step
// branches the run. Choosing past the quest's maximum step count fails
// with domain.ErrQuestOver.
func (s *Service) Choose(ctx context.Context, runID string, actions []domain.Action) (v *View, err error) {
	span := s.d.Tracer.StartSpan(ctx, "run.choose", map[string]string{"run_id": runID})
	defer func() { s.d.Tracer.EndSpan(span, err) }()

	if err := domain.ValidateNewActions(actions); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, desc, err := s.get(runID)
	if err != nil {
		return nil, err
	}
	if run.Cursor >= desc.MaxStepCount {
		return nil, fmt.Errorf("%w: %s allows %d steps", domain.ErrQuestOver, desc.ID, desc.MaxStepCount)
	}

	discarded := len(run.Batches) - run.Cursor
	batches := make([][]domain.Action, run.Cursor, run.Cursor+1)
	copy(batches, run.Batches[:run.Cursor])
	batches = append(batches, domain.CloneActions(nonNil(actions)))

	run.Batches = batches
	run.Cursor = len(batches)
	run.UpdatedAt = s.d.Now().UTC()

	v, err = s.view(ctx, desc, *run)
	if err != nil {
		return nil, err
	}
	if err := s.d.Store.SaveRun(*run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	s.log.Debug("actions chosen", "run_id", runID, "time_point", run.Cursor,
		"actions", len(actions), "discarded_batches", discarded)
	if last, err := quest.LatestStep(v.Quest); err == nil {
		for _, p := range quest.Payouts(v.Quest) {
			if p.TimePoint == last.TimePoint {
				s.d.Metrics.ObservePayout(p.Action.Capital)
			}
		}
		s.log.Log(ctx, logging.LevelTrace, "step computed", "run_id", runID,
			"time_point", last.TimePoint, "bank_account", last.BankAccount,
			"joy", last.Joy, "free_time_hours", last.FreeTimeHours)
	}
	return v, nil
}

// Edit replaces one earlier batch and replays everything after it. The
// cursor does not move.
func (s *Service) Edit(ctx context.Context, runID string, index int, actions []domain.Action) (v *View, err error) {
	span := s.d.Tracer.StartSpan(ctx, "run.edit", map[string]string{"run_id": runID})
	defer func() { s.d.Tracer.EndSpan(span, err) }()

	if err := domain.ValidateNewActions(actions); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, desc, err := s.get(runID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(run.Batches) {
		return nil, fmt.Errorf("%w: %d of %d", domain.ErrBatchOutOfRange, index, len(run.Batches))
	}

	batches := make([][]domain.Action, len(run.Batches))
	copy(batches, run.Batches)
	batches[index] = domain.CloneActions(nonNil(actions))
	run.Batches = batches
	run.UpdatedAt = s.d.Now().UTC()

	v, err = s.view(ctx, desc, *run)
	if err != nil {
		return nil, err
	}
	if err := s.d.Store.SaveRun(*run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	s.log.Debug("batch edited", "run_id", runID, "index", index)
	return v, nil
}

// Seek moves the cursor to an existing step.
func (s *Service) Seek(ctx context.Context, runID string, cursor int) (*View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, desc, err := s.get(runID)
	if err != nil {
		return nil, err
	}
	if cursor < 0 || cursor > len(run.Batches) {
		return nil, fmt.Errorf("%w: %d of %d", domain.ErrCursorOutOfRange, cursor, len(run.Batches)+1)
	}
	run.Cursor = cursor
	run.UpdatedAt = s.d.Now().UTC()

	v, err := s.view(ctx, desc, *run)
	if err != nil {
		return nil, err
	}
	if err := s.d.Store.SaveRun(*run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	return v, nil
}

// Completed reports whether the run's latest step meets the quest goal.
func (s *Service) Completed(ctx context.Context, runID string) (bool, error) {
	v, err := s.Load(ctx, runID)
	if err != nil {
		return false, err
	}
	return v.Completed, nil
}

// List returns every stored run, most recently updated first.
func (s *Service) List() ([]domain.Run, error) {
	runs, err := s.d.Store.ListRuns()
	if err != nil {
		return nil, err
	}
	s.d.Metrics.SetStoredRuns(len(runs))
	return runs, nil
}

// Delete removes a run.
func (s *Service) Delete(runID string) error {
	if err := s.d.Store.DeleteRun(runID); err != nil {
		return err
	}
	s.refreshStoredRuns()
	s.log.Info("run deleted", "run_id", runID)
	return nil
}

// ─── Internals ──────────────────────────────────────────────────────────────

func (s *Service) get(runID string) (*domain.Run, domain.QuestDescription, error) {
	run, err := s.d.Store.GetRun(runID)
	if err != nil {
		return nil, domain.QuestDescription{}, err
	}
	desc, err := s.d.Quests.Lookup(run.QuestID)
	if err != nil {
		return nil, domain.QuestDescription{}, err
	}
	return run, desc, nil
}

// view replays run and records simulation metrics.
func (s *Service) view(ctx context.Context, desc domain.QuestDescription, run domain.Run) (*View, error) {
	start := time.Now()
	q, err := s.d.Simulator.Build(desc, run.Batches)
	s.d.Metrics.ObserveSimulation(len(run.Batches), time.Since(start), err, IsHistoryFailure(err))
	if err != nil {
		s.log.Warn("replay failed", "run_id", run.ID, "quest", desc.ID, "error", err)
		return nil, err
	}
	q.Cursor = run.Cursor
	if q.Cursor > len(q.Steps)-1 {
		q.Cursor = len(q.Steps) - 1
	}

	done, err := quest.IsCompleted(q)
	if err != nil {
		return nil, err
	}
	return &View{Run: run, Quest: q, Completed: done}, nil
}

func (s *Service) refreshStoredRuns() {
	if s.d.Metrics == nil {
		return
	}
	runs, err := s.d.Store.ListRuns()
	if err != nil {
		s.log.Warn("count runs", "error", err)
		return
	}
	s.d.Metrics.SetStoredRuns(len(runs))
}

// IsHistoryFailure reports whether err stems from missing historical data.
func IsHistoryFailure(err error) bool {
	return errors.Is(err, domain.ErrHistoryUnavailable) || errors.Is(err, domain.ErrUnknownCategory)
}

func nonNil(actions []domain.Action) []domain.Action {
	if actions == nil {
		return []domain.Action{}
	}
	return actions
}
