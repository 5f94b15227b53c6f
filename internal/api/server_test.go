package api

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finquest-app/finquest/internal/app/engine"
	"github.com/finquest-app/finquest/internal/app/executor"
	"github.com/finquest-app/finquest/internal/app/quest"
	"github.com/finquest-app/finquest/internal/app/session"
	"github.com/finquest-app/finquest/internal/domain"
	"github.com/finquest-app/finquest/internal/infra/catalog"
	"github.com/finquest-app/finquest/internal/infra/history"
	"github.com/finquest-app/finquest/internal/infra/observability"
	"github.com/finquest-app/finquest/internal/infra/sqlite"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

func setupServer(t *testing.T) http.Handler {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	tracer := observability.NewTracer(observability.DefaultTracerConfig())
	cat := catalog.New()
	provider := history.NewProvider(db, 0)
	sim := quest.NewSimulator(engine.New(provider))

	srv := NewServer(Deps{
		Catalog:   cat,
		Simulator: sim,
		Executor:  executor.New(executor.DefaultConfig(), sim, metrics, nil),
		History:   provider,
		Metrics:   metrics,
		Tracer:    tracer,
		Gatherer:  reg,
		Sessions: session.New(session.Deps{
			Store:     db,
			Quests:    cat,
			Simulator: sim,
			Metrics:   metrics,
			Tracer:    tracer,
		}),
	}, Options{
		Version:     "1.2.3",
		CORSOrigins: []string{"*"},
		MetricsPath: "/metrics",
	})
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

type runView struct {
	Run struct {
		ID      string            `json:"id"`
		Cursor  int               `json:"cursor"`
		Batches [][]domain.Action `json:"batches"`
	} `json:"run"`
	Quest struct {
		Steps  []domain.Step `json:"steps"`
		Cursor int           `json:"cursor"`
	} `json:"quest"`
	Completed bool `json:"completed"`
}

const waiterJSON = `{"name":"waiter job","kind":"income","remaining_steps":"forever",
	"bank_account_impact":{"has_impact":true,"repeated_absolute_delta":1000},
	"joy_impact":{"has_impact":true,"repeated_percent":{"source":"constant","percent":-5}},
	"free_time_impact":{"has_impact":true,"repeated_absolute_delta":-20}}`

// ─── Basics ─────────────────────────────────────────────────────────────────

func TestHealthAndVersion(t *testing.T) {
	h := setupServer(t)

	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/api/version", "")
	var v map[string]string
	decode(t, w, &v)
	assert.Equal(t, "1.2.3", v["version"])
}

func TestCORSPreflight(t *testing.T) {
	h := setupServer(t)
	w := do(t, h, http.MethodOptions, "/api/simulate", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidAction, http.StatusBadRequest},
		{domain.ErrNotCustomizable, http.StatusBadRequest},
		{domain.ErrRunNotFound, http.StatusNotFound},
		{domain.ErrQuestNotFound, http.StatusNotFound},
		{domain.ErrHistoryUnavailable, http.StatusUnprocessableEntity},
		{domain.ErrUnknownCategory, http.StatusUnprocessableEntity},
		{domain.ErrQuestOver, http.StatusConflict},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

// ─── Catalog ────────────────────────────────────────────────────────────────

func TestQuestsAndActions(t *testing.T) {
	h := setupServer(t)

	var quests struct {
		Quests []domain.QuestDescription `json:"quests"`
	}
	w := do(t, h, http.MethodGet, "/api/quests", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &quests)
	assert.Len(t, quests.Quests, 3)

	w = do(t, h, http.MethodGet, "/api/quests/first-job", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"goal":"last.bank_account`)

	w = do(t, h, http.MethodGet, "/api/quests/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var actions struct {
		Actions []templateView `json:"actions"`
	}
	w = do(t, h, http.MethodGet, "/api/actions", "")
	decode(t, w, &actions)
	assert.Len(t, actions.Actions, 10)
}

// ─── Stateless Simulation ───────────────────────────────────────────────────

func TestStep_NewIncomeAction(t *testing.T) {
	h := setupServer(t)

	for _, entry := range []string{`{"action":` + waiterJSON + `}`, `{"template":"waiter-job"}`} {
		body := `{"previous":{"time_point":0,"bank_account":100000,"joy":100,"free_time_hours":100},
			"new_actions":[` + entry + `],"granularity":"month"}`
		w := do(t, h, http.MethodPost, "/api/step", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var next domain.Step
		decode(t, w, &next)
		assert.Equal(t, 1, next.TimePoint)
		assert.Equal(t, 101000.0, next.BankAccount)
		assert.Equal(t, 95.0, next.Joy)
		assert.Equal(t, -20.0, next.FreeTimeHours)
		require.Len(t, next.ContinuingActions, 1)
		assert.True(t, next.ContinuingActions[0].RemainingSteps.Perpetual())
		assert.Len(t, next.NewActions, 1)
	}
}

func TestStep_RejectsBrokenInput(t *testing.T) {
	h := setupServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"negative remaining", `{"previous":{"continuing_actions":[{"name":"x","kind":"other","remaining_steps":-1}]},"new_actions":[]}`, http.StatusBadRequest},
		{"bad granularity", `{"previous":{},"new_actions":[],"granularity":"decade"}`, http.StatusBadRequest},
		{"unknown template", `{"previous":{},"new_actions":[{"template":"yacht"}]}`, http.StatusNotFound},
		{"not customizable", `{"previous":{},"new_actions":[{"template":"rent","params":{"initial_price":5}}]}`, http.StatusBadRequest},
		{"empty entry", `{"previous":{},"new_actions":[{}]}`, http.StatusBadRequest},
		{"unknown field", `{"previous":{},"surprise":1}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/step", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestSimulate_DepositPayout(t *testing.T) {
	h := setupServer(t)
	deposit := `{"action":{"name":"savings deposit","kind":"investment","remaining_steps":2,
		"investment_impact":{"has_impact":true,"initial_price":1000,
			"repeated_percent":{"source":"constant","percent":0.2}}}}`
	body := `{"initial_step":{"bank_account":2000},"granularity":"month",
		"batches":[[` + deposit + `],[],[]]}`

	w := do(t, h, http.MethodPost, "/api/simulate", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Steps     []domain.Step  `json:"steps"`
		Durations []durationView `json:"durations"`
		Payouts   []quest.Payout `json:"payouts"`
		Completed *bool          `json:"completed"`
	}
	decode(t, w, &resp)

	require.Len(t, resp.Steps, 4)
	assert.InDelta(t, 1000.0, resp.Steps[1].BankAccount, 1e-9)
	assert.InDelta(t, 1000.0, resp.Steps[2].BankAccount, 1e-9)
	assert.InDelta(t, 1000+1000*math.Pow(1.002, 2), resp.Steps[3].BankAccount, 1e-9)
	assert.Empty(t, resp.Steps[3].ContinuingActions)

	require.Len(t, resp.Payouts, 1)
	assert.Equal(t, 3, resp.Payouts[0].TimePoint)
	require.Len(t, resp.Durations, 1)
	require.NotNil(t, resp.Durations[0].EndTimePoint)
	assert.Equal(t, 2, *resp.Durations[0].EndTimePoint)
	assert.Nil(t, resp.Completed, "custom simulations have no goal")
}

func TestSimulate_Quest(t *testing.T) {
	h := setupServer(t)

	w := do(t, h, http.MethodPost, "/api/simulate",
		`{"quest_id":"market-journey","batches":[[{"template":"etf-savings-plan","params":{"repeated_price":1000}}],[]]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Steps     []domain.Step `json:"steps"`
		Completed *bool         `json:"completed"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Steps, 3)
	require.NotNil(t, resp.Completed)

	etf := resp.Steps[1].ContinuingActions[0]
	assert.InDelta(t, 1000*1.16, etf.Capital, 1e-6, "time point 1 falls in 2012")
	assert.InDelta(t, 19000.0, resp.Steps[1].BankAccount, 1e-9)
}

func TestSimulate_Errors(t *testing.T) {
	h := setupServer(t)
	oil := `{"action":{"name":"oil","kind":"investment","remaining_steps":3,
		"investment_impact":{"has_impact":true,"repeated_percent":{"source":"history","category":"oil"}}}}`

	tests := []struct {
		name string
		body string
		want int
	}{
		{"no source", `{"batches":[]}`, http.StatusBadRequest},
		{"both sources", `{"quest_id":"first-job","initial_step":{},"batches":[]}`, http.StatusBadRequest},
		{"unknown quest", `{"quest_id":"nope","batches":[]}`, http.StatusNotFound},
		{"unknown history", `{"initial_step":{},"batches":[[` + oil + `]]}`, http.StatusUnprocessableEntity},
		{"quest over", `{"quest_id":"market-journey","batches":[` + strings.Repeat(`[],`, 10) + `[]]}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/simulate", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestActionWithoutSteps_RejectedEverywhere(t *testing.T) {
	h := setupServer(t)
	zero := `[{"action":{"name":"z","kind":"other","remaining_steps":0}}]`

	w := do(t, h, http.MethodPost, "/api/simulate", `{"quest_id":"market-journey","batches":[`+zero+`,[]]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/api/step", `{"previous":{},"new_actions":`+zero+`}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/api/compare", `{"quest_id":"market-journey","plans":[{"batches":[`+zero+`,[]]}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/api/runs", `{"quest_id":"first-job"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var v runView
	decode(t, w, &v)
	id := v.Run.ID

	w = do(t, h, http.MethodPost, "/api/runs/"+id+"/choices", `{"actions":`+zero+`}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	// the run still advances
	for i := 1; i <= 2; i++ {
		w = do(t, h, http.MethodPost, "/api/runs/"+id+"/choices", `{"actions":[]}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		decode(t, w, &v)
		assert.Equal(t, i, v.Run.Cursor)
	}
}

// ─── Runs ───────────────────────────────────────────────────────────────────

func TestRunLifecycle(t *testing.T) {
	h := setupServer(t)

	w := do(t, h, http.MethodPost, "/api/runs", `{"quest_id":"first-job"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var v runView
	decode(t, w, &v)
	id := v.Run.ID
	require.NotEmpty(t, id)
	assert.Len(t, v.Quest.Steps, 1)

	w = do(t, h, http.MethodPost, "/api/runs/"+id+"/choices", `{"actions":[{"template":"waiter-job"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &v)
	assert.Len(t, v.Quest.Steps, 2)
	assert.Equal(t, 1, v.Run.Cursor)

	w = do(t, h, http.MethodPost, "/api/runs/"+id+"/choices", `{"actions":[]}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPut, "/api/runs/"+id+"/cursor", `{"cursor":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &v)
	assert.Equal(t, 1, v.Quest.Cursor)

	w = do(t, h, http.MethodPut, "/api/runs/"+id+"/batches/0", `{"actions":[{"template":"rent"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &v)
	assert.Equal(t, "Rent", v.Run.Batches[0][0].Name)
	assert.Len(t, v.Quest.Steps, 3)

	w = do(t, h, http.MethodGet, "/api/runs/"+id+"/durations", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"perpetual":true`)

	w = do(t, h, http.MethodGet, "/api/runs/"+id+"/actions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"waiter-job"`)

	w = do(t, h, http.MethodGet, "/api/runs/"+id+"/payouts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"payouts":[]}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id)

	w = do(t, h, http.MethodDelete, "/api/runs/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/api/runs/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunErrors(t *testing.T) {
	h := setupServer(t)

	w := do(t, h, http.MethodPost, "/api/runs", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/runs", `{"quest_id":"nope"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodPost, "/api/runs", `{"quest_id":"first-job"}`)
	var v runView
	decode(t, w, &v)
	id := v.Run.ID

	w = do(t, h, http.MethodPut, "/api/runs/"+id+"/batches/x", `{"actions":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPut, "/api/runs/"+id+"/batches/4", `{"actions":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPut, "/api/runs/"+id+"/cursor", `{"cursor":9}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/runs/missing/choices", `{"actions":[]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// ─── History & Diagnostics ──────────────────────────────────────────────────

func TestHistory(t *testing.T) {
	h := setupServer(t)

	w := do(t, h, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"etf"`)

	w = do(t, h, http.MethodGet, "/api/history/etf?granularity=month&steps=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		StartYear int            `json:"start_year"`
		Periods   []periodReturn `json:"periods"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 2000, resp.StartYear)
	require.Len(t, resp.Periods, 3)
	want := (math.Pow(1.021, 1.0/12) - 1) * 100
	assert.InDelta(t, want, resp.Periods[0].Percent, 1e-9)

	w = do(t, h, http.MethodGet, "/api/history/oil", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/api/history/etf?granularity=decade", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsAndTraces(t *testing.T) {
	h := setupServer(t)
	do(t, h, http.MethodPost, "/api/runs", `{"quest_id":"first-job"}`)

	w := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "finquest_simulation_runs_total")

	w = do(t, h, http.MethodGet, "/api/traces?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"operation":"run.start"`)

	w = do(t, h, http.MethodGet, "/api/traces?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
