// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture - it depends on nothing.
package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ─── Time Granularity ───────────────────────────────────────────────────────

// Granularity is the real-world period one simulated step represents.
type Granularity string

const (
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityWeek, GranularityMonth, GranularityYear:
		return true
	}
	return false
}

// PeriodsPerYear returns how many steps of this granularity fit in a year.
func (g Granularity) PeriodsPerYear() int {
	switch g {
	case GranularityWeek:
		return 52
	case GranularityMonth:
		return 12
	default:
		return 1
	}
}

// ─── Action Kind ────────────────────────────────────────────────────────────

// ActionKind classifies an action for presentation and filtering.
type ActionKind string

const (
	KindInvestment ActionKind = "investment"
	KindIncome     ActionKind = "income"
	KindExpense    ActionKind = "expense"
	KindOther      ActionKind = "other"
)

// Valid reports whether k is a known kind.
func (k ActionKind) Valid() bool {
	switch k {
	case KindInvestment, KindIncome, KindExpense, KindOther:
		return true
	}
	return false
}

// ─── Repeated Percent ───────────────────────────────────────────────────────

// Category keys a historical return series ("etf", "btc", "gold", ...).
type Category string

// RepeatedPercent is the per-step growth rate of a metric. It is either a
// ConstantPercent or a HistoryPercent, never both. A nil RepeatedPercent
// means no growth.
type RepeatedPercent interface {
	isRepeatedPercent()
}

// ConstantPercent is a fixed per-step rate.
type ConstantPercent struct {
	Percent float64
}

// HistoryPercent pulls the per-step rate from a historical return series.
type HistoryPercent struct {
	Category Category
}

func (ConstantPercent) isRepeatedPercent() {}
func (HistoryPercent) isRepeatedPercent()  {}

// Percent sources as they appear on the wire.
const (
	SourceConstant = "constant"
	SourceHistory  = "history"
)

// percentWire is the serialized form of a RepeatedPercent.
type percentWire struct {
	Source   string   `json:"source" yaml:"source"`
	Percent  float64  `json:"percent,omitempty" yaml:"percent,omitempty"`
	Category Category `json:"category,omitempty" yaml:"category,omitempty"`
}

func percentToWire(p RepeatedPercent) *percentWire {
	switch v := p.(type) {
	case ConstantPercent:
		return &percentWire{Source: SourceConstant, Percent: v.Percent}
	case HistoryPercent:
		return &percentWire{Source: SourceHistory, Category: v.Category}
	default:
		return nil
	}
}

func percentFromWire(w *percentWire) (RepeatedPercent, error) {
	if w == nil {
		return nil, nil
	}
	switch w.Source {
	case SourceConstant, "":
		return ConstantPercent{Percent: w.Percent}, nil
	case SourceHistory:
		if w.Category == "" {
			return nil, fmt.Errorf("%w: history percent without category", ErrInvalidAction)
		}
		return HistoryPercent{Category: w.Category}, nil
	default:
		return nil, fmt.Errorf("%w: unknown percent source %q", ErrInvalidAction, w.Source)
	}
}

// ─── Metric Impact ──────────────────────────────────────────────────────────

// MetricImpact describes how one metric changes per step while an action is
// active. When HasImpact is false every other field is ignored.
type MetricImpact struct {
	HasImpact             bool
	MinRequired           float64 // advisory, never enforced by the engine
	MaxRequired           float64 // advisory, never enforced by the engine
	RepeatedAbsoluteDelta float64
	RepeatedPercent       RepeatedPercent
	InitialPrice          float64
	RepeatedPrice         float64
}

// NoImpact returns the neutral impact: nothing changes, bounds are open.
func NoImpact() MetricImpact {
	return MetricImpact{
		MinRequired: math.Inf(-1),
		MaxRequired: math.Inf(1),
	}
}

// Delta returns an impact that adds d every step.
func Delta(d float64) MetricImpact {
	m := NoImpact()
	m.HasImpact = true
	m.RepeatedAbsoluteDelta = d
	return m
}

// Growth returns an impact that grows the metric by a constant percent.
func Growth(percent float64) MetricImpact {
	m := NoImpact()
	m.HasImpact = true
	m.RepeatedPercent = ConstantPercent{Percent: percent}
	return m
}

type impactWire struct {
	HasImpact             bool         `json:"has_impact" yaml:"has_impact"`
	MinRequired           *float64     `json:"min_required,omitempty" yaml:"min_required,omitempty"`
	MaxRequired           *float64     `json:"max_required,omitempty" yaml:"max_required,omitempty"`
	RepeatedAbsoluteDelta float64      `json:"repeated_absolute_delta,omitempty" yaml:"repeated_absolute_delta,omitempty"`
	RepeatedPercent       *percentWire `json:"repeated_percent,omitempty" yaml:"repeated_percent,omitempty"`
	InitialPrice          float64      `json:"initial_price,omitempty" yaml:"initial_price,omitempty"`
	RepeatedPrice         float64      `json:"repeated_price,omitempty" yaml:"repeated_price,omitempty"`
}

func (m MetricImpact) toWire() impactWire {
	w := impactWire{
		HasImpact:             m.HasImpact,
		RepeatedAbsoluteDelta: m.RepeatedAbsoluteDelta,
		RepeatedPercent:       percentToWire(m.RepeatedPercent),
		InitialPrice:          m.InitialPrice,
		RepeatedPrice:         m.RepeatedPrice,
	}
	// JSON has no infinities; open bounds are omitted.
	if !math.IsInf(m.MinRequired, 0) {
		v := m.MinRequired
		w.MinRequired = &v
	}
	if !math.IsInf(m.MaxRequired, 0) {
		v := m.MaxRequired
		w.MaxRequired = &v
	}
	return w
}

func (m *MetricImpact) fromWire(w impactWire) error {
	p, err := percentFromWire(w.RepeatedPercent)
	if err != nil {
		return err
	}
	*m = NoImpact()
	m.HasImpact = w.HasImpact
	m.RepeatedAbsoluteDelta = w.RepeatedAbsoluteDelta
	m.RepeatedPercent = p
	m.InitialPrice = w.InitialPrice
	m.RepeatedPrice = w.RepeatedPrice
	if w.MinRequired != nil {
		m.MinRequired = *w.MinRequired
	}
	if w.MaxRequired != nil {
		m.MaxRequired = *w.MaxRequired
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (m MetricImpact) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.toWire())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *MetricImpact) UnmarshalJSON(data []byte) error {
	var w impactWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return m.fromWire(w)
}

// MarshalYAML implements yaml.Marshaler without importing the yaml package.
func (m MetricImpact) MarshalYAML() (interface{}, error) {
	return m.toWire(), nil
}

// UnmarshalYAML implements the yaml.v3 obsolete-style Unmarshaler, which
// keeps this package free of infrastructure imports.
func (m *MetricImpact) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var w impactWire
	if err := unmarshal(&w); err != nil {
		return err
	}
	return m.fromWire(w)
}

// ─── Step Count ─────────────────────────────────────────────────────────────

// StepCount is the number of steps an action stays active.
type StepCount int

// Forever marks a perpetual action. Forever.Next() is Forever.
const Forever StepCount = math.MaxInt

// MaxFiniteSteps bounds a finite remaining-step count. Anything longer
// should be Forever.
const MaxFiniteSteps StepCount = 1_000_000

const foreverText = "forever"

// Perpetual reports whether the count never runs out.
func (c StepCount) Perpetual() bool { return c == Forever }

// Next returns the count after one step.
func (c StepCount) Next() StepCount {
	if c == Forever {
		return c
	}
	return c - 1
}

// String formats the count, printing "forever" for perpetual actions.
func (c StepCount) String() string {
	if c == Forever {
		return foreverText
	}
	return strconv.Itoa(int(c))
}

// MarshalJSON implements json.Marshaler.
func (c StepCount) MarshalJSON() ([]byte, error) {
	if c == Forever {
		return []byte(`"` + foreverText + `"`), nil
	}
	return []byte(strconv.Itoa(int(c))), nil
}

// UnmarshalJSON accepts an integer or the string "forever".
func (c *StepCount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	return c.parse(s)
}

// UnmarshalYAML accepts an integer, "forever" or ".inf".
func (c *StepCount) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return c.parse(s)
}

// MarshalYAML implements yaml.Marshaler.
func (c StepCount) MarshalYAML() (interface{}, error) {
	if c == Forever {
		return foreverText, nil
	}
	return int(c), nil
}

func (c *StepCount) parse(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case foreverText, "inf", ".inf", "infinity":
		*c = Forever
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%w: remaining steps %q", ErrInvalidAction, s)
	}
	*c = StepCount(n)
	return nil
}

// ─── Action ─────────────────────────────────────────────────────────────────

// Action is a financial or lifestyle effect tracked over a number of steps.
// Actions are values: the engine derives new copies and never mutates the
// ones it is given.
type Action struct {
	Name             string     `json:"name" yaml:"name"`
	ShortDescription string     `json:"short_description,omitempty" yaml:"short_description,omitempty"`
	LLMDescription   string     `json:"llm_description,omitempty" yaml:"llm_description,omitempty"`
	Kind             ActionKind `json:"kind" yaml:"kind"`
	RemainingSteps   StepCount  `json:"remaining_steps" yaml:"remaining_steps"`

	BankAccountImpact MetricImpact `json:"bank_account_impact" yaml:"bank_account_impact"`
	InvestmentImpact  MetricImpact `json:"investment_impact" yaml:"investment_impact"`
	JoyImpact         MetricImpact `json:"joy_impact" yaml:"joy_impact"`
	FreeTimeImpact    MetricImpact `json:"free_time_impact" yaml:"free_time_impact"`

	// Capital is the running investment value owned by this action. It is
	// paid into the bank account once, when RemainingSteps reaches zero.
	Capital float64 `json:"capital" yaml:"capital"`

	CanChangeInitialPrice  bool `json:"can_change_initial_price,omitempty" yaml:"can_change_initial_price,omitempty"`
	CanChangeRepeatedPrice bool `json:"can_change_repeated_price,omitempty" yaml:"can_change_repeated_price,omitempty"`
}

// NewAction returns an action with neutral impacts on every metric.
func NewAction(name string, kind ActionKind, remaining StepCount) Action {
	return Action{
		Name:              name,
		Kind:              kind,
		RemainingSteps:    remaining,
		BankAccountImpact: NoImpact(),
		InvestmentImpact:  NoImpact(),
		JoyImpact:         NoImpact(),
		FreeTimeImpact:    NoImpact(),
	}
}

// UnmarshalJSON decodes an action, leaving omitted impacts neutral.
func (a *Action) UnmarshalJSON(data []byte) error {
	type plain Action
	p := plain(NewAction("", "", 0))
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Action(p)
	return nil
}

// IsFinished reports whether the action has no steps left and awaits payout.
func (a Action) IsFinished() bool { return a.RemainingSteps == 0 }

// Validate checks an externally supplied action before it reaches the engine.
func (a Action) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidAction)
	}
	if !a.Kind.Valid() {
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidAction, a.Name, a.Kind)
	}
	if a.RemainingSteps < 0 {
		return fmt.Errorf("%w: %s: negative remaining steps %d", ErrInvalidAction, a.Name, a.RemainingSteps)
	}
	if !a.RemainingSteps.Perpetual() && a.RemainingSteps > MaxFiniteSteps {
		return fmt.Errorf("%w: %s: remaining steps %d exceed %d, use %q", ErrInvalidAction,
			a.Name, a.RemainingSteps, MaxFiniteSteps, foreverText)
	}
	for _, m := range []MetricImpact{a.BankAccountImpact, a.InvestmentImpact, a.JoyImpact, a.FreeTimeImpact} {
		if hp, ok := m.RepeatedPercent.(HistoryPercent); ok && hp.Category == "" {
			return fmt.Errorf("%w: %s: history percent without category", ErrInvalidAction, a.Name)
		}
	}
	return nil
}

// ValidateNew checks an action that is about to be introduced. A new action
// is applied in the step it enters, so it needs at least one step left.
func (a Action) ValidateNew() error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.RemainingSteps < 1 {
		return fmt.Errorf("%w: %s: a new action needs at least one remaining step", ErrInvalidAction, a.Name)
	}
	return nil
}

// ValidateActions validates every action in a batch.
func ValidateActions(actions []Action) error {
	for _, a := range actions {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateNewActions runs ValidateNew on every action in a batch.
func ValidateNewActions(actions []Action) error {
	for _, a := range actions {
		if err := a.ValidateNew(); err != nil {
			return err
		}
	}
	return nil
}

// ─── Step ───────────────────────────────────────────────────────────────────

// Step is a snapshot of the simulated world at one time index.
type Step struct {
	TimePoint         int      `json:"time_point" yaml:"time_point"`
	BankAccount       float64  `json:"bank_account" yaml:"bank_account"`
	Joy               float64  `json:"joy" yaml:"joy"`
	FreeTimeHours     float64  `json:"free_time_hours" yaml:"free_time_hours"`
	NewActions        []Action `json:"new_actions" yaml:"new_actions"`
	ContinuingActions []Action `json:"continuing_actions" yaml:"continuing_actions"`
}

// Clone returns a copy of s that shares no slices with it.
func (s Step) Clone() Step {
	out := s
	out.NewActions = CloneActions(s.NewActions)
	out.ContinuingActions = CloneActions(s.ContinuingActions)
	return out
}

// CloneActions copies a batch of actions. Nil stays nil.
func CloneActions(actions []Action) []Action {
	if actions == nil {
		return nil
	}
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}
