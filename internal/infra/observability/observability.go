// Package observability records what the simulator does.
//
// This provides:
//   - Lightweight spans for quest operations (simulate → choose → edit → seek)
//   - Prometheus metrics for steps, payouts and history lookups
//   - Trace IDs that HTTP handlers and logs can share
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Trace Spans - in-memory ring buffer, inspectable through the API
// ═══════════════════════════════════════════════════════════════════════════

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// Span is one recorded operation.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer keeps the most recent spans in memory.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 1_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 1_000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = DefaultTracerConfig().MaxSpans
	}
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a span. The caller must call EndSpan when done.
// A nil Tracer returns a span that is never recorded.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if t == nil || !t.enabled {
		return &Span{Operation: operation}
	}
	return &Span{
		TraceID:   TraceIDFromContext(ctx),
		SpanID:    uuid.NewString(),
		Operation: operation,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if t == nil || !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Ring buffer: overwrite oldest if at capacity
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent spans, oldest first.
func (t *Tracer) Spans(limit int) []Span {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const traceIDKey contextKey = "finquest-trace-id"

// WithTraceID returns a context carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext returns the context's trace ID or a fresh one.
func TraceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok && v != "" {
		return v
	}
	return uuid.NewString()
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// Metrics groups the simulator's Prometheus collectors. A nil *Metrics is
// safe to use; every method is a no-op.
type Metrics struct {
	Simulations        *prometheus.CounterVec
	StepsComputed      prometheus.Counter
	Payouts            prometheus.Counter
	PayoutCapital      prometheus.Counter
	HistoryFailures    prometheus.Counter
	SimulationDuration prometheus.Histogram
	ActiveRuns         prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Simulations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finquest",
			Subsystem: "simulation",
			Name:      "runs_total",
			Help:      "Total simulations by outcome.",
		}, []string{"outcome"}),
		StepsComputed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "finquest",
			Subsystem: "simulation",
			Name:      "steps_computed_total",
			Help:      "Total step transitions computed.",
		}),
		Payouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "finquest",
			Subsystem: "simulation",
			Name:      "payouts_total",
			Help:      "Total finished actions whose capital was paid out.",
		}),
		PayoutCapital: f.NewCounter(prometheus.CounterOpts{
			Namespace: "finquest",
			Subsystem: "simulation",
			Name:      "payout_capital_total",
			Help:      "Sum of positive capital paid into bank accounts.",
		}),
		HistoryFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "finquest",
			Subsystem: "history",
			Name:      "lookup_failures_total",
			Help:      "Simulations aborted by missing historical data.",
		}),
		SimulationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "finquest",
			Subsystem: "simulation",
			Name:      "duration_seconds",
			Help:      "Wall time of a full sequence replay.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		ActiveRuns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "finquest",
			Subsystem: "runs",
			Name:      "stored",
			Help:      "Number of stored quest runs.",
		}),
	}
}

// ObserveSimulation records one sequence replay.
func (m *Metrics) ObserveSimulation(steps int, elapsed time.Duration, err error, historyFailure bool) {
	if m == nil {
		return
	}
	m.SimulationDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.Simulations.WithLabelValues("error").Inc()
		if historyFailure {
			m.HistoryFailures.Inc()
		}
		return
	}
	m.Simulations.WithLabelValues("ok").Inc()
	m.StepsComputed.Add(float64(steps))
}

// ObservePayout records a finished action's payout.
func (m *Metrics) ObservePayout(capital float64) {
	if m == nil {
		return
	}
	m.Payouts.Inc()
	if capital > 0 {
		m.PayoutCapital.Add(capital)
	}
}

// SetStoredRuns sets the stored-runs gauge.
func (m *Metrics) SetStoredRuns(n int) {
	if m == nil {
		return
	}
	m.ActiveRuns.Set(float64(n))
}
