package domain

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// HistoryLookup supplies the per-step percentage return of a historical
// series. Implementations must fail when they have no data rather than
// returning zero.
type HistoryLookup interface {
	Percent(category Category, timePoint int, granularity Granularity) (float64, error)
}

// HistoryLookupFunc adapts a plain function to HistoryLookup.
type HistoryLookupFunc func(category Category, timePoint int, granularity Granularity) (float64, error)

// Percent calls f.
func (f HistoryLookupFunc) Percent(category Category, timePoint int, granularity Granularity) (float64, error) {
	return f(category, timePoint, granularity)
}

// RunStore persists quest runs. Only the action batches are stored; steps
// are recomputed on load.
type RunStore interface {
	SaveRun(run Run) error
	GetRun(id string) (*Run, error)
	ListRuns() ([]Run, error)
	DeleteRun(id string) error
}

// SeriesStore persists annual return series by category.
type SeriesStore interface {
	UpsertSeries(category Category, startYear int, annualReturns []float64) error
	GetSeries(category Category) (startYear int, annualReturns []float64, err error)
	ListSeriesCategories() ([]Category, error)
}
