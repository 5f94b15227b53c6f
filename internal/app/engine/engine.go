package engine

import (
	"fmt"

	"github.com/finquest-app/finquest/internal/domain"
)

// Engine computes step transitions against one history source.
type Engine struct {
	lookup domain.HistoryLookup
}

// New creates an engine. lookup may be nil when no action uses
// history-sourced percentages.
func New(lookup domain.HistoryLookup) *Engine {
	return &Engine{lookup: lookup}
}

// ComputeNextStep is NextStep on a throwaway engine.
func ComputeNextStep(prev domain.Step, newActions []domain.Action,
	granularity domain.Granularity, lookup domain.HistoryLookup) (domain.Step, error) {
	return New(lookup).NextStep(prev, newActions, granularity)
}

// NextStep produces the step that follows prev when newActions are
// introduced. It panics with *domain.InvariantError if a continuing action
// has negative remaining steps or a new action has none left.
func (e *Engine) NextStep(prev domain.Step, newActions []domain.Action,
	granularity domain.Granularity) (domain.Step, error) {
	next := domain.Step{
		TimePoint:         prev.TimePoint + 1,
		BankAccount:       prev.BankAccount,
		Joy:               prev.Joy,
		FreeTimeHours:     0, // free time is rebuilt from this step's actions
		NewActions:        domain.CloneActions(newActions),
		ContinuingActions: make([]domain.Action, 0, len(prev.ContinuingActions)+len(newActions)),
	}
	if next.NewActions == nil {
		next.NewActions = []domain.Action{}
	}

	for _, action := range prev.ContinuingActions {
		if action.RemainingSteps < 0 {
			panic(&domain.InvariantError{
				Action:         action.Name,
				RemainingSteps: action.RemainingSteps,
				Reason:         "negative remaining steps entering a transition",
			})
		}
		if action.IsFinished() {
			next.BankAccount = finishAction(action, next.BankAccount)
			continue
		}
		derived, err := e.apply(&next, action, false, granularity)
		if err != nil {
			return domain.Step{}, err
		}
		next.ContinuingActions = append(next.ContinuingActions, derived)
	}

	for _, action := range newActions {
		if action.RemainingSteps < 1 {
			panic(&domain.InvariantError{
				Action:         action.Name,
				RemainingSteps: action.RemainingSteps,
				Reason:         "new action has no steps left",
			})
		}
		derived, err := e.apply(&next, action, true, granularity)
		if err != nil {
			return domain.Step{}, err
		}
		next.ContinuingActions = append(next.ContinuingActions, derived)
	}

	return next, nil
}

// apply advances one action by a step and folds its impacts into step.
// The returned action is a new value; the argument is left untouched.
func (e *Engine) apply(step *domain.Step, action domain.Action, isNew bool,
	granularity domain.Granularity) (domain.Action, error) {
	inv := action.InvestmentImpact
	tp := step.TimePoint

	seed := action.Capital
	if isNew {
		seed = inv.InitialPrice
	}
	capital, err := ResolveMetric(inv, inv.RepeatedPrice+seed, tp, granularity, e.lookup)
	if err != nil {
		return domain.Action{}, wrapApply(action, "investment", err)
	}

	derived := action
	derived.Capital = capital
	derived.RemainingSteps = action.RemainingSteps.Next()

	bank, err := ResolveMetric(action.BankAccountImpact, step.BankAccount, tp, granularity, e.lookup)
	if err != nil {
		return domain.Action{}, wrapApply(action, "bank account", err)
	}
	if isNew {
		bank -= derived.InvestmentImpact.InitialPrice
	}
	bank -= derived.InvestmentImpact.RepeatedPrice

	joy, err := ResolveMetric(action.JoyImpact, step.Joy, tp, granularity, e.lookup)
	if err != nil {
		return domain.Action{}, wrapApply(action, "joy", err)
	}

	freeTime, err := ResolveMetric(action.FreeTimeImpact, step.FreeTimeHours, tp, granularity, e.lookup)
	if err != nil {
		return domain.Action{}, wrapApply(action, "free time", err)
	}

	step.BankAccount = bank
	step.Joy = joy
	step.FreeTimeHours = freeTime
	return derived, nil
}

// finishAction pays a finished action's capital into the bank account.
func finishAction(action domain.Action, bankAccount float64) float64 {
	if !action.IsFinished() {
		panic(&domain.InvariantError{
			Action:         action.Name,
			RemainingSteps: action.RemainingSteps,
			Reason:         "finishing an action that still has steps left",
		})
	}
	return bankAccount + action.Capital
}

func wrapApply(action domain.Action, metric string, err error) error {
	return fmt.Errorf("apply %q (%s): %w", action.Name, metric, err)
}
