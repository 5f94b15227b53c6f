// Package executor replays several candidate plans for one quest side by
// side.
//
// The executor:
//  1. Waits for a free slot (bounded by MaxConcurrent)
//  2. Validates the plan and replays it under a per-plan timeout
//  3. Checks the quest goal and counts payouts
//  4. Fingerprints the final step (SHA-256) so identical outcomes group
//  5. Records completion or failure in its stats
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/finquest-app/finquest/internal/app/quest"
	"github.com/finquest-app/finquest/internal/domain"
	"github.com/finquest-app/finquest/internal/infra/observability"
	"github.com/finquest-app/finquest/internal/logging"
)

// ErrNoPlans is returned when Compare is called without plans.
var ErrNoPlans = errors.New("no plans to compare")

// Simulator builds a quest from action batches.
type Simulator interface {
	Build(desc domain.QuestDescription, batches [][]domain.Action) (*domain.Quest, error)
}

// Config controls executor behavior.
type Config struct {
	MaxConcurrent  int           // Maximum plans replayed at once (default: 4)
	DefaultTimeout time.Duration // Per-plan timeout (default: 30s)
}

// DefaultConfig returns safe executor defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:  4,
		DefaultTimeout: 30 * time.Second,
	}
}

// Plan is one candidate sequence of action batches.
type Plan struct {
	Name    string
	Batches [][]domain.Action
}

// Result is the outcome of one plan.
type Result struct {
	Name        string       `json:"name"`
	Steps       int          `json:"steps"`
	Final       *domain.Step `json:"final,omitempty"`
	Completed   bool         `json:"completed"`
	Payouts     int          `json:"payouts"`
	Fingerprint string       `json:"fingerprint,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Executor replays plans concurrently.
type Executor struct {
	mu        sync.RWMutex
	config    Config
	sim       Simulator
	metrics   *observability.Metrics
	log       *slog.Logger
	sem       chan struct{} // Concurrency semaphore
	active    int
	completed int64
	failed    int64
}

// New creates an executor. metrics and logger may be nil.
func New(cfg Config, sim Simulator, metrics *observability.Metrics, logger *slog.Logger) *Executor {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{
		config:  cfg,
		sim:     sim,
		metrics: metrics,
		log:     logger.With("component", "executor"),
		sem:     make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Compare replays every plan against desc and returns one result per plan,
// in input order. A failing plan is reported in its Result; Compare itself
// fails only when ctx ends before every plan got a slot.
func (e *Executor) Compare(ctx context.Context, desc domain.QuestDescription, plans []Plan) ([]Result, error) {
	if len(plans) == 0 {
		return nil, ErrNoPlans
	}

	results := make([]Result, len(plans))
	var wg sync.WaitGroup
	for i, p := range plans {
		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(i int, p Plan) {
			defer wg.Done()
			defer func() { <-e.sem }()
			results[i] = e.execute(ctx, desc, p)
		}(i, p)
	}
	wg.Wait()
	return results, nil
}

// execute runs one plan through the full lifecycle.
func (e *Executor) execute(ctx context.Context, desc domain.QuestDescription, p Plan) Result {
	e.mu.Lock()
	e.active++
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
	}()

	res := Result{Name: p.Name}

	execCtx, cancel := context.WithTimeout(ctx, e.config.DefaultTimeout)
	defer cancel()
	if err := execCtx.Err(); err != nil {
		return e.fail(res, err)
	}

	if len(p.Batches) > desc.MaxStepCount {
		return e.fail(res, fmt.Errorf("%w: %d steps, %s allows %d",
			domain.ErrQuestOver, len(p.Batches), desc.ID, desc.MaxStepCount))
	}

	for i, batch := range p.Batches {
		if err := domain.ValidateNewActions(batch); err != nil {
			return e.fail(res, fmt.Errorf("batch %d: %w", i, err))
		}
	}

	start := time.Now()
	q, err := e.build(desc, p)
	e.metrics.ObserveSimulation(len(p.Batches), time.Since(start), err, historyFailure(err))
	if err != nil {
		return e.fail(res, err)
	}
	if err := execCtx.Err(); err != nil {
		return e.fail(res, err)
	}

	completed, err := quest.IsCompleted(q)
	if err != nil {
		return e.fail(res, err)
	}

	final := q.Steps[len(q.Steps)-1]
	res.Steps = len(q.Steps) - 1
	res.Final = &final
	res.Completed = completed
	res.Payouts = len(quest.Payouts(q))
	res.Fingerprint = fingerprint(final)

	e.log.Log(ctx, logging.LevelTrace, "plan replayed", "plan", p.Name, "steps", res.Steps, "completed", completed)

	e.mu.Lock()
	e.completed++
	e.mu.Unlock()
	return res
}

// build replays a plan. Plans run off the request goroutine, so an engine
// invariant panic is turned into the plan's error instead of ending the
// process. Any other panic is re-raised.
func (e *Executor) build(desc domain.QuestDescription, p Plan) (q *domain.Quest, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		ie, ok := r.(*domain.InvariantError)
		if !ok {
			panic(r)
		}
		e.log.Error("engine invariant violated", "plan", p.Name, "quest", desc.ID, "error", ie)
		q, err = nil, ie
	}()
	return e.sim.Build(desc, p.Batches)
}

// fail records a failed plan.
func (e *Executor) fail(res Result, err error) Result {
	res.Error = err.Error()
	e.log.Debug("plan failed", "plan", res.Name, "error", err)

	e.mu.Lock()
	e.failed++
	e.mu.Unlock()
	return res
}

func historyFailure(err error) bool {
	return errors.Is(err, domain.ErrHistoryUnavailable) || errors.Is(err, domain.ErrUnknownCategory)
}

// fingerprint hashes the metrics and running actions of a step.
func fingerprint(s domain.Step) string {
	data, err := json.Marshal(struct {
		BankAccount   float64         `json:"b"`
		Joy           float64         `json:"j"`
		FreeTimeHours float64         `json:"f"`
		Continuing    []domain.Action `json:"c"`
	}{s.BankAccount, s.Joy, s.FreeTimeHours, s.ContinuingActions})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Stats returns executor statistics.
type Stats struct {
	Active    int   `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	MaxSlots  int   `json:"max_slots"`
	FreeSlots int   `json:"free_slots"`
}

// Stats returns current executor statistics.
func (e *Executor) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Stats{
		Active:    e.active,
		Completed: e.completed,
		Failed:    e.failed,
		MaxSlots:  e.config.MaxConcurrent,
		FreeSlots: e.config.MaxConcurrent - e.active,
	}
}

// ActiveCount returns the number of plans being replayed.
func (e *Executor) ActiveCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}
