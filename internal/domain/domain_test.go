package domain

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

// ─── StepCount Tests ────────────────────────────────────────────────────────

func TestStepCount_Next(t *testing.T) {
	tests := []struct {
		name string
		in   StepCount
		want StepCount
	}{
		{"finite counts down", 3, 2},
		{"one reaches zero", 1, 0},
		{"forever stays forever", Forever, Forever},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Next(); got != tt.want {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStepCount_JSON(t *testing.T) {
	data, err := json.Marshal(Forever)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"forever"` {
		t.Errorf("Marshal(Forever) = %s, want \"forever\"", data)
	}

	var c StepCount
	if err := json.Unmarshal([]byte(`12`), &c); err != nil {
		t.Fatal(err)
	}
	if c != 12 {
		t.Errorf("Unmarshal(12) = %v", c)
	}
	if err := json.Unmarshal([]byte(`"Infinity"`), &c); err != nil {
		t.Fatal(err)
	}
	if !c.Perpetual() {
		t.Errorf("Unmarshal(Infinity) = %v, want forever", c)
	}
	if err := json.Unmarshal([]byte(`"soon"`), &c); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("Unmarshal(soon) error = %v, want ErrInvalidAction", err)
	}
}

// ─── MetricImpact Tests ─────────────────────────────────────────────────────

func TestNoImpact_OpenBounds(t *testing.T) {
	m := NoImpact()
	if m.HasImpact {
		t.Error("NoImpact().HasImpact = true")
	}
	if !math.IsInf(m.MinRequired, -1) || !math.IsInf(m.MaxRequired, 1) {
		t.Errorf("bounds = [%v, %v], want open", m.MinRequired, m.MaxRequired)
	}
}

func TestMetricImpact_JSONPercentSources(t *testing.T) {
	in := `{"has_impact":true,"repeated_percent":{"source":"history","category":"etf"},"initial_price":500}`
	var m MetricImpact
	if err := json.Unmarshal([]byte(in), &m); err != nil {
		t.Fatal(err)
	}
	hp, ok := m.RepeatedPercent.(HistoryPercent)
	if !ok || hp.Category != "etf" {
		t.Fatalf("RepeatedPercent = %#v, want HistoryPercent{etf}", m.RepeatedPercent)
	}
	if !math.IsInf(m.MaxRequired, 1) {
		t.Errorf("missing max_required should stay open, got %v", m.MaxRequired)
	}

	out, err := json.Marshal(Growth(-10))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"source":"constant","percent":-10`) {
		t.Errorf("Marshal(Growth(-10)) = %s", out)
	}
	if strings.Contains(string(out), "min_required") {
		t.Errorf("open bounds must be omitted: %s", out)
	}
}

func TestMetricImpact_UnknownSource(t *testing.T) {
	var m MetricImpact
	err := json.Unmarshal([]byte(`{"has_impact":true,"repeated_percent":{"source":"oracle"}}`), &m)
	if !errors.Is(err, ErrInvalidAction) {
		t.Errorf("error = %v, want ErrInvalidAction", err)
	}
}

// ─── Action Tests ───────────────────────────────────────────────────────────

func TestAction_Validate(t *testing.T) {
	valid := NewAction("waiter job", KindIncome, Forever)

	tests := []struct {
		name    string
		mutate  func(a *Action)
		wantErr bool
	}{
		{"valid", func(a *Action) {}, false},
		{"missing name", func(a *Action) { a.Name = "" }, true},
		{"unknown kind", func(a *Action) { a.Kind = "gift" }, true},
		{"negative remaining", func(a *Action) { a.RemainingSteps = -1 }, true},
		{"finished", func(a *Action) { a.RemainingSteps = 0 }, false},
		{"longest finite", func(a *Action) { a.RemainingSteps = MaxFiniteSteps }, false},
		{"beyond finite bound", func(a *Action) { a.RemainingSteps = MaxFiniteSteps + 1 }, true},
		{"near forever", func(a *Action) { a.RemainingSteps = Forever - 1 }, true},
		{"forever", func(a *Action) { a.RemainingSteps = Forever }, false},
		{"history without category", func(a *Action) {
			a.InvestmentImpact.RepeatedPercent = HistoryPercent{}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			err := a.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidAction) {
				t.Errorf("Validate() error = %v, want ErrInvalidAction", err)
			}
		})
	}
}

func TestAction_ValidateNew(t *testing.T) {
	tests := []struct {
		name      string
		remaining StepCount
		wantErr   bool
	}{
		{"finished", 0, true},
		{"negative", -3, true},
		{"one step", 1, false},
		{"forever", Forever, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewAction("z", KindOther, tt.remaining).ValidateNew()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNew() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidAction) {
				t.Errorf("ValidateNew() error = %v, want ErrInvalidAction", err)
			}
		})
	}

	batch := []Action{NewAction("a", KindOther, 2), NewAction("z", KindOther, 0)}
	if err := ValidateActions(batch); err != nil {
		t.Errorf("ValidateActions() = %v, finished actions are valid state", err)
	}
	if err := ValidateNewActions(batch); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("ValidateNewActions() = %v, want ErrInvalidAction", err)
	}
}

func TestAction_IsFinished(t *testing.T) {
	a := NewAction("deposit", KindInvestment, 0)
	if !a.IsFinished() {
		t.Error("remaining 0 should be finished")
	}
	a.RemainingSteps = Forever
	if a.IsFinished() {
		t.Error("perpetual action should never be finished")
	}
}

// ─── Step Tests ─────────────────────────────────────────────────────────────

func TestStep_CloneDoesNotAlias(t *testing.T) {
	s := Step{
		NewActions:        []Action{NewAction("a", KindOther, 1)},
		ContinuingActions: []Action{NewAction("b", KindOther, 2)},
	}
	c := s.Clone()
	c.NewActions[0].Name = "changed"
	c.ContinuingActions[0].Capital = 99

	if s.NewActions[0].Name != "a" {
		t.Error("Clone shares NewActions with original")
	}
	if s.ContinuingActions[0].Capital != 0 {
		t.Error("Clone shares ContinuingActions with original")
	}
}

func TestGranularity_PeriodsPerYear(t *testing.T) {
	tests := []struct {
		g    Granularity
		want int
	}{
		{GranularityWeek, 52},
		{GranularityMonth, 12},
		{GranularityYear, 1},
	}
	for _, tt := range tests {
		if got := tt.g.PeriodsPerYear(); got != tt.want {
			t.Errorf("%s.PeriodsPerYear() = %d, want %d", tt.g, got, tt.want)
		}
	}
	if Granularity("decade").Valid() {
		t.Error("decade should not be valid")
	}
}

func TestInvariantError_Message(t *testing.T) {
	err := &InvariantError{Action: "deposit", RemainingSteps: -1, Reason: "negative remaining steps"}
	if !strings.Contains(err.Error(), `"deposit"`) || !strings.Contains(err.Error(), "-1") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestAction_UnmarshalJSONDefaults(t *testing.T) {
	data := `{"name":"Bonus","kind":"income","remaining_steps":1,
		"bank_account_impact":{"has_impact":true,"repeated_absolute_delta":500}}`

	var a Action
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if a.BankAccountImpact.RepeatedAbsoluteDelta != 500 || !a.BankAccountImpact.HasImpact {
		t.Errorf("bank impact = %+v", a.BankAccountImpact)
	}
	if a.JoyImpact.HasImpact || !math.IsInf(a.JoyImpact.MinRequired, -1) {
		t.Errorf("omitted joy impact should be neutral, got %+v", a.JoyImpact)
	}
	if a.RemainingSteps != 1 || a.Kind != KindIncome {
		t.Errorf("action = %+v", a)
	}

	var list []Action
	if err := json.Unmarshal([]byte(`[{"name":"x","kind":"other","remaining_steps":"forever"}]`), &list); err != nil {
		t.Fatal(err)
	}
	if !list[0].RemainingSteps.Perpetual() || !math.IsInf(list[0].FreeTimeImpact.MaxRequired, 1) {
		t.Errorf("list[0] = %+v", list[0])
	}
}
