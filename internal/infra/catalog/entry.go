package catalog

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/finquest-app/finquest/internal/domain"
)

// Entry names either a template, with optional price overrides, or a fully
// spelled-out action. In YAML a bare string is shorthand for a template ID.
type Entry struct {
	Template string         `json:"template,omitempty" yaml:"template,omitempty"`
	Params   Params         `json:"params,omitempty" yaml:"params,omitempty"`
	Action   *domain.Action `json:"action,omitempty" yaml:"action,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*e = Entry{Template: node.Value}
		return nil
	}

	var raw struct {
		Template string    `yaml:"template"`
		Params   Params    `yaml:"params"`
		Action   yaml.Node `yaml:"action"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*e = Entry{Template: raw.Template, Params: raw.Params}
	if raw.Action.Kind != 0 {
		a := domain.NewAction("", "", 0)
		if err := raw.Action.Decode(&a); err != nil {
			return err
		}
		e.Action = &a
	}
	return nil
}

// Resolve turns entries into actions that are ready to be introduced.
func (c *Catalog) Resolve(entries []Entry) ([]domain.Action, error) {
	out := make([]domain.Action, 0, len(entries))
	for i, e := range entries {
		var (
			a   domain.Action
			err error
		)
		switch {
		case e.Template != "" && e.Action != nil:
			return nil, fmt.Errorf("%w: entry %d sets both template and action", domain.ErrInvalidAction, i)
		case e.Template != "":
			a, err = c.Instantiate(e.Template, e.Params)
		case e.Action != nil:
			a = *e.Action
			err = a.ValidateNew()
		default:
			err = fmt.Errorf("%w: entry %d needs a template or an action", domain.ErrInvalidAction, i)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// ResolveBatches resolves one batch per step.
func (c *Catalog) ResolveBatches(batches [][]Entry) ([][]domain.Action, error) {
	out := make([][]domain.Action, len(batches))
	for i, batch := range batches {
		actions, err := c.Resolve(batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		out[i] = actions
	}
	return out, nil
}

// ─── Plans ──────────────────────────────────────────────────────────────────

// Plan is a scripted playthrough of a quest, one batch per step:
//
//	quest: savings-goal
//	batches:
//	  - [etf-savings-plan]
//	  - []
//	  - - template: savings-deposit
//	      params: {initial_price: 500}
type Plan struct {
	Quest   string    `yaml:"quest"`
	Batches [][]Entry `yaml:"batches"`
}

// ReadPlan parses a YAML plan.
func ReadPlan(r io.Reader) (Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if err == io.EOF {
			return Plan{}, fmt.Errorf("%w: plan is empty", domain.ErrInvalidAction)
		}
		return Plan{}, fmt.Errorf("parse plan: %w", err)
	}
	return p, nil
}
