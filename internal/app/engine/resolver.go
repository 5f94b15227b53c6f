// Package engine folds financial and lifestyle actions into metric snapshots.
//
// The engine is pure: given the same previous step, actions, granularity and
// history data it always produces the same next step, and it never mutates
// its inputs.
//
// One transition:
//  1. Carries bank account and joy over, resets free time, advances time
//  2. Pays out finished continuing actions, re-applies the others
//  3. Applies the newly introduced actions
package engine

import (
	"fmt"

	"github.com/finquest-app/finquest/internal/domain"
)

// ResolveMetric computes a metric's new value under one impact.
//
// The flat delta is added before the percentage is applied, so a deposit made
// this step also grows this step.
func ResolveMetric(impact domain.MetricImpact, previous float64, timePoint int,
	granularity domain.Granularity, lookup domain.HistoryLookup) (float64, error) {
	if !impact.HasImpact {
		return previous, nil
	}

	percent, err := resolvePercent(impact.RepeatedPercent, timePoint, granularity, lookup)
	if err != nil {
		return 0, err
	}

	base := previous + impact.RepeatedAbsoluteDelta
	return base + base*(percent/100), nil
}

func resolvePercent(p domain.RepeatedPercent, timePoint int,
	granularity domain.Granularity, lookup domain.HistoryLookup) (float64, error) {
	switch v := p.(type) {
	case nil:
		return 0, nil
	case domain.ConstantPercent:
		return v.Percent, nil
	case domain.HistoryPercent:
		if lookup == nil {
			return 0, fmt.Errorf("%w: no history source for %q", domain.ErrHistoryUnavailable, v.Category)
		}
		percent, err := lookup.Percent(v.Category, timePoint, granularity)
		if err != nil {
			return 0, fmt.Errorf("history %q at %d/%s: %w", v.Category, timePoint, granularity, err)
		}
		return percent, nil
	default:
		panic(fmt.Sprintf("engine: unknown repeated percent %T", p))
	}
}
