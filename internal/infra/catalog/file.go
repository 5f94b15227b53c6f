package catalog

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/finquest-app/finquest/internal/app/goal"
	"github.com/finquest-app/finquest/internal/domain"
)

// ─── YAML Quest Files ───────────────────────────────────────────────────────
//
//	actions:
//	  - id: side-hustle
//	    unlock: "steps >= 3"
//	    action:
//	      name: Side hustle
//	      kind: income
//	      remaining_steps: forever
//	      bank_account_impact: {has_impact: true, repeated_absolute_delta: 300}
//	quests:
//	  - id: house-fund
//	    name: House fund
//	    granularity: month
//	    max_step_count: 60
//	    goal: "last.bank_account >= 50000.0"
//	    actions: [office-job, side-hustle]
//	    initial_step:
//	      bank_account: 5000
//	      joy: 80
//	      continuing: [life, rent]

type fileSpec struct {
	Actions []templateSpec `yaml:"actions"`
	Quests  []questSpec    `yaml:"quests"`
}

type templateSpec struct {
	ID     string    `yaml:"id"`
	Unlock string    `yaml:"unlock"`
	Action yaml.Node `yaml:"action"`
}

type questSpec struct {
	ID           string             `yaml:"id"`
	Name         string             `yaml:"name"`
	Summary      string             `yaml:"summary"`
	Granularity  domain.Granularity `yaml:"granularity"`
	MaxStepCount int                `yaml:"max_step_count"`
	Goal         string             `yaml:"goal"`
	Actions      []string           `yaml:"actions"`
	InitialStep  initialStepSpec    `yaml:"initial_step"`
}

type initialStepSpec struct {
	TimePoint     int      `yaml:"time_point"`
	BankAccount   float64  `yaml:"bank_account"`
	Joy           float64  `yaml:"joy"`
	FreeTimeHours float64  `yaml:"free_time_hours"`
	Continuing    []string `yaml:"continuing"`
}

// LoadFile registers the quests and templates defined in a YAML file.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read quest file: %w", err)
	}
	if err := c.Load(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Load registers the quests and templates read from r. Either every entry
// is registered or none is.
func (c *Catalog) Load(r io.Reader) error {
	var doc fileSpec
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return fmt.Errorf("parse quest file: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	quests, questOrder := maps.Clone(c.quests), append([]string(nil), c.questOrder...)
	templates, tmplOrder := maps.Clone(c.templates), append([]string(nil), c.tmplOrder...)
	rollback := func() {
		c.quests, c.questOrder = quests, questOrder
		c.templates, c.tmplOrder = templates, tmplOrder
	}

	for _, ts := range doc.Actions {
		t, err := ts.template()
		if err != nil {
			rollback()
			return err
		}
		c.addTemplate(t)
	}
	for _, qs := range doc.Quests {
		q, err := c.questFromSpec(qs)
		if err == nil {
			err = c.addQuest(q)
		}
		if err != nil {
			rollback()
			return err
		}
	}
	return nil
}

func (ts templateSpec) template() (Template, error) {
	if ts.ID == "" {
		return Template{}, fmt.Errorf("%w: template without id", domain.ErrInvalidAction)
	}
	if ts.Action.Kind == 0 {
		return Template{}, fmt.Errorf("%w: template %s has no action", domain.ErrInvalidAction, ts.ID)
	}
	a := domain.NewAction("", "", 0)
	if err := ts.Action.Decode(&a); err != nil {
		return Template{}, fmt.Errorf("template %s: %w", ts.ID, err)
	}
	if err := a.ValidateNew(); err != nil {
		return Template{}, fmt.Errorf("template %s: %w", ts.ID, err)
	}

	t := Template{ID: ts.ID, Action: a}
	if ts.Unlock != "" {
		u, err := goal.Compile(ts.Unlock)
		if err != nil {
			return Template{}, fmt.Errorf("template %s unlock: %w", ts.ID, err)
		}
		t.Unlock = u
	}
	return t, nil
}

// questFromSpec must be called with c.mu held.
func (c *Catalog) questFromSpec(qs questSpec) (domain.QuestDescription, error) {
	continuing := make([]domain.Action, 0, len(qs.InitialStep.Continuing))
	for _, id := range qs.InitialStep.Continuing {
		t, ok := c.templates[id]
		if !ok {
			return domain.QuestDescription{}, fmt.Errorf("%w: quest %s starts with %q", domain.ErrActionNotFound, qs.ID, id)
		}
		continuing = append(continuing, t.Action)
	}

	name := qs.Name
	if name == "" {
		name = qs.ID
	}
	return domain.QuestDescription{
		ID:           qs.ID,
		Name:         name,
		Summary:      qs.Summary,
		MaxStepCount: qs.MaxStepCount,
		Granularity:  qs.Granularity,
		GoalExpr:     qs.Goal,
		ActionNames:  qs.Actions,
		InitialStep: domain.Step{
			TimePoint:         qs.InitialStep.TimePoint,
			BankAccount:       qs.InitialStep.BankAccount,
			Joy:               qs.InitialStep.Joy,
			FreeTimeHours:     qs.InitialStep.FreeTimeHours,
			NewActions:        []domain.Action{},
			ContinuingActions: continuing,
		},
	}, nil
}
