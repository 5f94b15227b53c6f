package quest

import (
	"fmt"
	"math"

	"github.com/finquest-app/finquest/internal/domain"
)

// NewActionsPerStep returns each step's newly introduced actions, including
// the initial step's.
func NewActionsPerStep(q *domain.Quest) [][]domain.Action {
	out := make([][]domain.Action, len(q.Steps))
	for i, s := range q.Steps {
		out[i] = s.NewActions
	}
	return out
}

// Batches returns the input needed to replay q: the new actions of every
// step after the initial one.
func Batches(q *domain.Quest) [][]domain.Action {
	per := NewActionsPerStep(q)
	if len(per) == 0 {
		return nil
	}
	return per[1:]
}

// ActionDurations lists every introduced action with the time points it is
// active for.
func ActionDurations(q *domain.Quest) []domain.ActionDuration {
	var out []domain.ActionDuration
	for _, s := range q.Steps {
		for _, a := range s.NewActions {
			end := math.MaxInt
			if !a.RemainingSteps.Perpetual() {
				end = endTimePoint(s.TimePoint, int(a.RemainingSteps))
			}
			out = append(out, domain.ActionDuration{
				Action:         a,
				StartTimePoint: s.TimePoint,
				EndTimePoint:   end,
			})
		}
	}
	return out
}

// endTimePoint is start+remaining-1, saturating just below the perpetual
// marker.
func endTimePoint(start, remaining int) int {
	if start > 0 && remaining-1 >= math.MaxInt-start {
		return math.MaxInt - 1
	}
	return start + remaining - 1
}

// LatestStep returns the last step of q.
func LatestStep(q *domain.Quest) (domain.Step, error) {
	if len(q.Steps) == 0 {
		return domain.Step{}, domain.ErrEmptyQuest
	}
	return q.Steps[len(q.Steps)-1], nil
}

// CurrentStep returns the step under the cursor.
func CurrentStep(q *domain.Quest) (domain.Step, error) {
	if len(q.Steps) == 0 {
		return domain.Step{}, domain.ErrEmptyQuest
	}
	if q.Cursor < 0 || q.Cursor >= len(q.Steps) {
		return domain.Step{}, fmt.Errorf("%w: %d of %d", domain.ErrCursorOutOfRange, q.Cursor, len(q.Steps))
	}
	return q.Steps[q.Cursor], nil
}

// IsCompleted evaluates the quest goal against the latest step. A quest
// without a goal is never completed.
func IsCompleted(q *domain.Quest) (bool, error) {
	last, err := LatestStep(q)
	if err != nil {
		return false, err
	}
	if q.Description.Goal == nil {
		return false, nil
	}
	return q.Description.Goal.Reached(domain.GoalContext{LastStep: last, Quest: q})
}

// Payout is a finished action's capital moving into the bank account.
type Payout struct {
	TimePoint int           `json:"time_point"`
	Action    domain.Action `json:"action"`
}

// Payouts lists every payout in q. An action that reaches zero remaining
// steps at step i is paid out while step i+1 is produced.
func Payouts(q *domain.Quest) []Payout {
	var out []Payout
	for i := 1; i < len(q.Steps); i++ {
		for _, a := range q.Steps[i-1].ContinuingActions {
			if a.IsFinished() {
				out = append(out, Payout{TimePoint: q.Steps[i].TimePoint, Action: a})
			}
		}
	}
	return out
}
