// Package goal compiles quest goals written as CEL expressions.
//
// Expressions see two variables:
//
//	last   map: time_point, bank_account, joy, free_time_hours,
//	       continuing (action names), new (action names)
//	steps  int: number of steps in the quest, initial step included
//
// Example: `last.bank_account >= 150000.0 && last.joy > 50.0`
package goal

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/finquest-app/finquest/internal/domain"
)

var env *cel.Env

func init() {
	var err error
	env, err = cel.NewEnv(
		cel.Variable("last", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("steps", cel.IntType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		panic(fmt.Sprintf("goal: CEL env: %v", err))
	}
}

// Expr is a compiled goal. It implements domain.Goal.
type Expr struct {
	source  string
	program cel.Program
}

// Compile parses and type-checks expr. The expression must yield a bool.
func Compile(expr string) (*Expr, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidGoal, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: %q yields %s, want bool", domain.ErrInvalidGoal, expr, out)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidGoal, err)
	}
	return &Expr{source: expr, program: prg}, nil
}

// MustCompile is Compile for static catalogs; it panics on error.
func MustCompile(expr string) *Expr {
	e, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the expression source.
func (e *Expr) String() string { return e.source }

// Reached evaluates the goal against the latest step.
func (e *Expr) Reached(ctx domain.GoalContext) (bool, error) {
	out, _, err := e.program.Eval(map[string]interface{}{
		"last":  activation(ctx.LastStep),
		"steps": int64(ctx.StepCount()),
	})
	if err != nil {
		return false, fmt.Errorf("goal %q: %w", e.source, err)
	}
	reached, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q did not return bool", domain.ErrInvalidGoal, e.source)
	}
	return reached, nil
}

func activation(s domain.Step) map[string]interface{} {
	return map[string]interface{}{
		"time_point":      int64(s.TimePoint),
		"bank_account":    s.BankAccount,
		"joy":             s.Joy,
		"free_time_hours": s.FreeTimeHours,
		"continuing":      names(s.ContinuingActions),
		"new":             names(s.NewActions),
	}
}

func names(actions []domain.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.Name
	}
	return out
}
