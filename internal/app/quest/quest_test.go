package quest

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/finquest-app/finquest/internal/app/engine"
	"github.com/finquest-app/finquest/internal/domain"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

func testDescription() domain.QuestDescription {
	life := domain.NewAction("Life", domain.KindExpense, domain.Forever)
	life.BankAccountImpact = domain.Delta(-1000)
	life.FreeTimeImpact = domain.Delta(100)

	return domain.QuestDescription{
		ID:   "test",
		Name: "Test quest",
		InitialStep: domain.Step{
			BankAccount:       10000,
			Joy:               100,
			ContinuingActions: []domain.Action{life},
		},
		MaxStepCount: 12,
		Granularity:  domain.GranularityMonth,
	}
}

func job() domain.Action {
	a := domain.NewAction("job", domain.KindIncome, domain.Forever)
	a.BankAccountImpact = domain.Delta(2500)
	a.FreeTimeImpact = domain.Delta(-40)
	return a
}

func deposit(remaining domain.StepCount) domain.Action {
	a := domain.NewAction("deposit", domain.KindInvestment, remaining)
	a.InvestmentImpact = domain.Growth(1)
	a.InvestmentImpact.InitialPrice = 1000
	return a
}

func newSimulator() *Simulator {
	return NewSimulator(engine.New(nil))
}

// ─── Simulate Tests ─────────────────────────────────────────────────────────

func TestSimulate_StepCount(t *testing.T) {
	sim := newSimulator()
	for _, n := range []int{0, 1, 5, 12} {
		batches := make([][]domain.Action, n)
		steps, err := sim.Simulate(testDescription(), batches)
		if err != nil {
			t.Fatalf("Simulate(%d batches) error: %v", n, err)
		}
		if len(steps) != n+1 {
			t.Errorf("Simulate(%d batches) = %d steps, want %d", n, len(steps), n+1)
		}
		for i, s := range steps {
			if s.TimePoint != i {
				t.Errorf("steps[%d].TimePoint = %d", i, s.TimePoint)
			}
		}
	}
}

func TestSimulate_InitialStepFirst(t *testing.T) {
	desc := testDescription()
	steps, err := newSimulator().Simulate(desc, [][]domain.Action{{job()}})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(steps[0], desc.InitialStep) {
		t.Errorf("steps[0] = %+v, want initial step", steps[0])
	}
	// 10000 - 1000 (life) + 2500 (job)
	if steps[1].BankAccount != 11500 {
		t.Errorf("steps[1].BankAccount = %f, want 11500", steps[1].BankAccount)
	}
	if steps[1].FreeTimeHours != 60 {
		t.Errorf("steps[1].FreeTimeHours = %f, want 60", steps[1].FreeTimeHours)
	}
}

func TestSimulate_Replayable(t *testing.T) {
	sim := newSimulator()
	batches := [][]domain.Action{{job()}, {}, {deposit(3)}, {}, {}, {}}

	a, err := sim.Simulate(testDescription(), batches)
	if err != nil {
		t.Fatal(err)
	}
	b, err := sim.Simulate(testDescription(), batches)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("Simulate is not deterministic")
	}
}

func TestSimulate_HistoryErrorNamesStep(t *testing.T) {
	failing := engine.New(domain.HistoryLookupFunc(func(domain.Category, int, domain.Granularity) (float64, error) {
		return 0, domain.ErrHistoryUnavailable
	}))
	etf := domain.NewAction("etf", domain.KindInvestment, 12)
	etf.InvestmentImpact.HasImpact = true
	etf.InvestmentImpact.RepeatedPercent = domain.HistoryPercent{Category: "etf"}

	_, err := NewSimulator(failing).Simulate(testDescription(), [][]domain.Action{{}, {etf}})
	if !errors.Is(err, domain.ErrHistoryUnavailable) {
		t.Errorf("error = %v, want ErrHistoryUnavailable", err)
	}
}

func TestReplace_WhatIf(t *testing.T) {
	sim := newSimulator()
	desc := testDescription()
	batches := [][]domain.Action{{}, {}, {}}

	edited, err := sim.Replace(desc, batches, 1, []domain.Action{job()})
	if err != nil {
		t.Fatal(err)
	}
	if len(batches[1]) != 0 {
		t.Error("Replace mutated the caller's batches")
	}
	if len(edited[2].NewActions) != 1 || edited[2].NewActions[0].Name != "job" {
		t.Errorf("edited[2].NewActions = %+v", edited[2].NewActions)
	}
	// life twice, job twice
	if edited[3].BankAccount != 10000-3000+5000 {
		t.Errorf("edited[3].BankAccount = %f", edited[3].BankAccount)
	}

	if _, err := sim.Replace(desc, batches, 3, nil); !errors.Is(err, domain.ErrBatchOutOfRange) {
		t.Errorf("Replace(out of range) error = %v", err)
	}
}

func TestNewActionsPerStep_RoundTrip(t *testing.T) {
	sim := newSimulator()
	desc := testDescription()
	batches := [][]domain.Action{{job()}, {}, {deposit(2)}}

	q, err := sim.Build(desc, batches)
	if err != nil {
		t.Fatal(err)
	}
	per := NewActionsPerStep(q)
	if len(per) != len(q.Steps) {
		t.Fatalf("NewActionsPerStep len = %d, want %d", len(per), len(q.Steps))
	}

	replayed, err := sim.Simulate(desc, Batches(q))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(replayed, q.Steps) {
		t.Error("replaying Batches(q) does not reproduce the quest")
	}
}

// ─── Query Tests ────────────────────────────────────────────────────────────

func TestActionDurations(t *testing.T) {
	q, err := newSimulator().Build(testDescription(), [][]domain.Action{{}, {deposit(3), job()}})
	if err != nil {
		t.Fatal(err)
	}

	durations := ActionDurations(q)
	if len(durations) != 2 {
		t.Fatalf("ActionDurations len = %d, want 2", len(durations))
	}

	d := durations[0]
	if d.Action.Name != "deposit" || d.StartTimePoint != 2 || d.EndTimePoint != 4 {
		t.Errorf("deposit duration = %d..%d", d.StartTimePoint, d.EndTimePoint)
	}
	if d.Perpetual() {
		t.Error("deposit should not be perpetual")
	}
	if !durations[1].Perpetual() || durations[1].EndTimePoint != math.MaxInt {
		t.Errorf("job duration = %+v, want perpetual", durations[1])
	}
}

func TestActionDurations_LongFiniteActionDoesNotOverflow(t *testing.T) {
	long := domain.NewAction("long", domain.KindOther, domain.Forever-1)
	q := &domain.Quest{Steps: []domain.Step{{TimePoint: 5, NewActions: []domain.Action{long}}}}

	d := ActionDurations(q)[0]
	if d.EndTimePoint != math.MaxInt-1 {
		t.Errorf("EndTimePoint = %d, want %d", d.EndTimePoint, math.MaxInt-1)
	}
	if d.Perpetual() {
		t.Error("a finite action should never be reported perpetual")
	}
}

func TestLatestAndCurrentStep(t *testing.T) {
	q, err := newSimulator().Build(testDescription(), make([][]domain.Action, 3))
	if err != nil {
		t.Fatal(err)
	}

	latest, err := LatestStep(q)
	if err != nil || latest.TimePoint != 3 {
		t.Errorf("LatestStep() = %d, %v", latest.TimePoint, err)
	}

	q.Cursor = 1
	current, err := CurrentStep(q)
	if err != nil || current.TimePoint != 1 {
		t.Errorf("CurrentStep() = %d, %v", current.TimePoint, err)
	}

	q.Cursor = 4
	if _, err := CurrentStep(q); !errors.Is(err, domain.ErrCursorOutOfRange) {
		t.Errorf("CurrentStep(out of range) error = %v", err)
	}

	empty := &domain.Quest{}
	if _, err := LatestStep(empty); !errors.Is(err, domain.ErrEmptyQuest) {
		t.Errorf("LatestStep(empty) error = %v", err)
	}
	if _, err := CurrentStep(empty); !errors.Is(err, domain.ErrEmptyQuest) {
		t.Errorf("CurrentStep(empty) error = %v", err)
	}
}

func TestIsCompleted(t *testing.T) {
	desc := testDescription()
	desc.Goal = domain.GoalFunc(func(ctx domain.GoalContext) bool {
		return ctx.LastStep.BankAccount >= 12000 && ctx.Quest != nil
	})
	sim := newSimulator()

	q, err := sim.Build(desc, [][]domain.Action{{}})
	if err != nil {
		t.Fatal(err)
	}
	if done, err := IsCompleted(q); err != nil || done {
		t.Errorf("IsCompleted() = %v, %v, want false", done, err)
	}

	q, err = sim.Build(desc, [][]domain.Action{{job()}, {}, {}})
	if err != nil {
		t.Fatal(err)
	}
	if done, err := IsCompleted(q); err != nil || !done {
		t.Errorf("IsCompleted() = %v, %v, want true", done, err)
	}

	q.Description.Goal = nil
	if done, _ := IsCompleted(q); done {
		t.Error("quest without goal should never be completed")
	}
	if _, err := IsCompleted(&domain.Quest{Description: desc}); !errors.Is(err, domain.ErrEmptyQuest) {
		t.Errorf("IsCompleted(empty) error = %v", err)
	}
}

func TestPayouts(t *testing.T) {
	q, err := newSimulator().Build(testDescription(), [][]domain.Action{{deposit(2)}, {}, {}, {}})
	if err != nil {
		t.Fatal(err)
	}

	payouts := Payouts(q)
	if len(payouts) != 1 {
		t.Fatalf("Payouts len = %d, want 1", len(payouts))
	}
	p := payouts[0]
	if p.TimePoint != 3 || p.Action.Name != "deposit" {
		t.Errorf("payout = %+v", p)
	}
	if want := 1000 * 1.01 * 1.01; math.Abs(p.Action.Capital-want) > 1e-9 {
		t.Errorf("payout capital = %v, want %v", p.Action.Capital, want)
	}
	gain := q.Steps[3].BankAccount - q.Steps[2].BankAccount
	if want := p.Action.Capital - 1000; math.Abs(gain-want) > 1e-9 {
		t.Errorf("bank delta at payout = %v, want %v", gain, want)
	}

	if got := Payouts(&domain.Quest{}); got != nil {
		t.Errorf("Payouts(empty) = %v", got)
	}
}
