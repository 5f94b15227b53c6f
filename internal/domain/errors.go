package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure - no infrastructure dependency.

var (
	// Action errors
	ErrInvalidAction   = errors.New("invalid action")
	ErrNotCustomizable = errors.New("action price cannot be changed")
	ErrActionNotFound  = errors.New("action template not found")

	// History errors
	ErrHistoryUnavailable = errors.New("no historical data for requested time")
	ErrUnknownCategory    = errors.New("unknown return series category")

	// Quest errors
	ErrQuestNotFound      = errors.New("quest not found")
	ErrInvalidQuest       = errors.New("invalid quest description")
	ErrEmptyQuest         = errors.New("quest has no steps")
	ErrCursorOutOfRange   = errors.New("step cursor out of range")
	ErrBatchOutOfRange    = errors.New("action batch index out of range")
	ErrQuestOver          = errors.New("quest reached its maximum step count")
	ErrInvalidGoal        = errors.New("invalid quest goal")
	ErrInvalidGranularity = errors.New("invalid time granularity")

	// Run errors
	ErrRunNotFound = errors.New("quest run not found")
)

// InvariantError is the panic value raised when the step engine detects a
// caller contract violation, such as resuming an already finished action.
// It signals a programming error and must not be recovered as a normal error.
// The plan executor is the one exception: it reports the panic as the failed
// plan's error so a background replay cannot end the process.
type InvariantError struct {
	Action         string
	RemainingSteps StepCount
	Reason         string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("engine invariant violated: action %q (remaining %s): %s",
		e.Action, e.RemainingSteps, e.Reason)
}
