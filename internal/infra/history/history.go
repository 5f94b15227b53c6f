// Package history supplies historical market returns to the step engine.
//
// Series are stored as annual percentage returns. A step's return is the
// geometric share of its year's return:
//
//	period% = ((1 + annual%/100)^(1/periodsPerYear) − 1) × 100
//
// Time point 0 falls in the provider's base year. Requests outside a
// series fail with domain.ErrHistoryUnavailable; nothing defaults to zero.
package history

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/finquest-app/finquest/internal/domain"
)

// DefaultBaseYear is the first year every built-in series covers.
const DefaultBaseYear = 2011

// Series is an annual return series for one category.
type Series struct {
	Category      domain.Category `json:"category"`
	StartYear     int             `json:"start_year"`
	AnnualReturns []float64       `json:"annual_returns"`
}

// EndYear returns the last covered year.
func (s Series) EndYear() int { return s.StartYear + len(s.AnnualReturns) - 1 }

// AnnualReturn returns the percentage return of year.
func (s Series) AnnualReturn(year int) (float64, error) {
	i := year - s.StartYear
	if i < 0 || i >= len(s.AnnualReturns) {
		return 0, fmt.Errorf("%w: %s covers %d-%d, not %d",
			domain.ErrHistoryUnavailable, s.Category, s.StartYear, s.EndYear(), year)
	}
	return s.AnnualReturns[i], nil
}

// Percent returns the per-step percentage return of series at timePoint,
// where time point 0 is the first step of baseYear.
func Percent(timePoint int, granularity domain.Granularity, series Series, baseYear int) (float64, error) {
	if !granularity.Valid() {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidGranularity, granularity)
	}
	if timePoint < 0 {
		return 0, fmt.Errorf("%w: negative time point %d", domain.ErrHistoryUnavailable, timePoint)
	}
	ppy := granularity.PeriodsPerYear()
	annual, err := series.AnnualReturn(baseYear + timePoint/ppy)
	if err != nil {
		return 0, err
	}
	if ppy == 1 {
		return annual, nil
	}
	return (math.Pow(1+annual/100, 1/float64(ppy)) - 1) * 100, nil
}

// ─── Provider ───────────────────────────────────────────────────────────────

// Provider resolves series by category, preferring stored series over the
// built-in ones. Resolved series are memoized. It is safe for concurrent use.
type Provider struct {
	mu       sync.Mutex
	store    domain.SeriesStore
	baseYear int
	cache    map[domain.Category]Series
}

// NewProvider creates a provider. store may be nil.
func NewProvider(store domain.SeriesStore, baseYear int) *Provider {
	if baseYear == 0 {
		baseYear = DefaultBaseYear
	}
	return &Provider{
		store:    store,
		baseYear: baseYear,
		cache:    make(map[domain.Category]Series),
	}
}

// BaseYear returns the year time point 0 falls in.
func (p *Provider) BaseYear() int { return p.baseYear }

// Prices returns the series for category.
func (p *Provider) Prices(category domain.Category) (Series, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.cache[category]; ok {
		return s, nil
	}

	if p.store != nil {
		start, returns, err := p.store.GetSeries(category)
		switch {
		case err == nil:
			s := Series{Category: category, StartYear: start, AnnualReturns: returns}
			p.cache[category] = s
			return s, nil
		case !errors.Is(err, domain.ErrUnknownCategory):
			return Series{}, fmt.Errorf("load series %q: %w", category, err)
		}
	}

	s, ok := builtin[category]
	if !ok {
		return Series{}, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, category)
	}
	p.cache[category] = s
	return s, nil
}

// Percent implements domain.HistoryLookup.
func (p *Provider) Percent(category domain.Category, timePoint int, granularity domain.Granularity) (float64, error) {
	s, err := p.Prices(category)
	if err != nil {
		return 0, err
	}
	return Percent(timePoint, granularity, s, p.baseYear)
}

// Import stores a series, replacing any earlier one for the category.
func (p *Provider) Import(s Series) error {
	if p.store == nil {
		return errors.New("history: no series store configured")
	}
	if s.Category == "" || len(s.AnnualReturns) == 0 {
		return fmt.Errorf("history: empty series %q", s.Category)
	}
	if err := p.store.UpsertSeries(s.Category, s.StartYear, s.AnnualReturns); err != nil {
		return fmt.Errorf("store series %q: %w", s.Category, err)
	}

	p.mu.Lock()
	delete(p.cache, s.Category)
	p.mu.Unlock()
	return nil
}

// Categories lists every category the provider can serve, sorted.
func (p *Provider) Categories() ([]domain.Category, error) {
	seen := make(map[domain.Category]bool)
	for c := range builtin {
		seen[c] = true
	}
	if p.store != nil {
		stored, err := p.store.ListSeriesCategories()
		if err != nil {
			return nil, err
		}
		for _, c := range stored {
			seen[c] = true
		}
	}

	out := make([]domain.Category, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
