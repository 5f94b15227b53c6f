// Package quest replays action batches through the step engine and answers
// questions about the resulting step history.
//
// A quest's history is never patched in place: editing an earlier decision
// means replaying every batch again from the initial step.
package quest

import (
	"fmt"

	"github.com/finquest-app/finquest/internal/app/engine"
	"github.com/finquest-app/finquest/internal/domain"
)

// Simulator replays quests on one engine.
type Simulator struct {
	engine *engine.Engine
}

// NewSimulator creates a simulator on top of e.
func NewSimulator(e *engine.Engine) *Simulator {
	return &Simulator{engine: e}
}

// Simulate folds batches into a step history starting at the description's
// initial step. The result always has len(batches)+1 steps.
func (s *Simulator) Simulate(desc domain.QuestDescription, batches [][]domain.Action) ([]domain.Step, error) {
	steps := make([]domain.Step, 0, len(batches)+1)
	prev := desc.InitialStep.Clone()
	steps = append(steps, prev)

	for i, batch := range batches {
		next, err := s.engine.NextStep(prev, batch, desc.Granularity)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		steps = append(steps, next)
		prev = next
	}
	return steps, nil
}

// Replace re-simulates with batch index swapped for batch. The caller's
// batch list is left untouched.
func (s *Simulator) Replace(desc domain.QuestDescription, batches [][]domain.Action,
	index int, batch []domain.Action) ([]domain.Step, error) {
	if index < 0 || index >= len(batches) {
		return nil, fmt.Errorf("%w: %d of %d", domain.ErrBatchOutOfRange, index, len(batches))
	}
	edited := make([][]domain.Action, len(batches))
	copy(edited, batches)
	edited[index] = domain.CloneActions(batch)
	return s.Simulate(desc, edited)
}

// Build simulates and wraps the history in a Quest with the cursor on the
// latest step.
func (s *Simulator) Build(desc domain.QuestDescription, batches [][]domain.Action) (*domain.Quest, error) {
	steps, err := s.Simulate(desc, batches)
	if err != nil {
		return nil, err
	}
	return &domain.Quest{
		Description: desc,
		Steps:       steps,
		Cursor:      len(steps) - 1,
	}, nil
}
