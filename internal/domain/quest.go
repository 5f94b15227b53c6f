package domain

import (
	"math"
	"time"
)

// ─── Quest Types ────────────────────────────────────────────────────────────

// GoalContext is what a goal predicate sees when a quest is checked.
type GoalContext struct {
	LastStep Step
	Quest    *Quest
	// Steps counts the steps up to and including LastStep. Zero means
	// every step of Quest.
	Steps int
}

// StepCount returns the number of steps the predicate should see.
func (c GoalContext) StepCount() int {
	if c.Steps > 0 {
		return c.Steps
	}
	if c.Quest != nil {
		return len(c.Quest.Steps)
	}
	return 0
}

// Goal decides whether a quest has been won.
type Goal interface {
	Reached(ctx GoalContext) (bool, error)
}

// GoalFunc adapts a plain predicate to Goal.
type GoalFunc func(ctx GoalContext) bool

// Reached calls f.
func (f GoalFunc) Reached(ctx GoalContext) (bool, error) { return f(ctx), nil }

// QuestDescription is the static configuration of one playable scenario.
type QuestDescription struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Summary      string      `json:"summary,omitempty"`
	InitialStep  Step        `json:"initial_step"`
	MaxStepCount int         `json:"max_step_count"`
	Granularity  Granularity `json:"granularity"`
	// Goal is evaluated against the latest step. Nil means never completed.
	Goal        Goal     `json:"-"`
	GoalExpr    string   `json:"goal,omitempty"`
	ActionNames []string `json:"actions,omitempty"`
}

// Quest is a specific run of a QuestDescription: every step produced so far
// plus the step the player is currently looking at.
type Quest struct {
	Description QuestDescription `json:"description"`
	Steps       []Step           `json:"steps"`
	Cursor      int              `json:"cursor"`
}

// ActionDuration is the span of time points an action is active.
type ActionDuration struct {
	Action         Action `json:"action"`
	StartTimePoint int    `json:"start_time_point"`
	// EndTimePoint is math.MaxInt for perpetual actions.
	EndTimePoint int `json:"end_time_point"`
}

// Perpetual reports whether the action never ends.
func (d ActionDuration) Perpetual() bool { return d.EndTimePoint == math.MaxInt }

// ─── Run Types ──────────────────────────────────────────────────────────────

// Run is the persisted form of a Quest: the chosen action batches, one per
// simulated step, and the cursor.
type Run struct {
	ID        string     `json:"id"`
	QuestID   string     `json:"quest_id"`
	Batches   [][]Action `json:"batches"`
	Cursor    int        `json:"cursor"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
