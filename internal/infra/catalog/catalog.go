// Package catalog holds the playable quests and the action templates a
// player can pick from.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/finquest-app/finquest/internal/app/goal"
	"github.com/finquest-app/finquest/internal/domain"
	"github.com/finquest-app/finquest/internal/infra/history"
)

// Template is an action a player can instantiate.
type Template struct {
	ID     string        `json:"id" yaml:"id"`
	Action domain.Action `json:"action" yaml:"action"`
	// Unlock gates availability on the current step. Nil means always available.
	Unlock *goal.Expr `json:"-" yaml:"-"`
}

// UnlockExpr returns the unlock expression source, or "".
func (t Template) UnlockExpr() string {
	if t.Unlock == nil {
		return ""
	}
	return t.Unlock.String()
}

// Params are player overrides applied when a template is instantiated.
// Prices refer to the investment impact.
type Params struct {
	InitialPrice  *float64 `json:"initial_price,omitempty" yaml:"initial_price,omitempty"`
	RepeatedPrice *float64 `json:"repeated_price,omitempty" yaml:"repeated_price,omitempty"`
}

// Catalog is a registry of quests and templates. It is safe for
// concurrent use.
type Catalog struct {
	mu         sync.RWMutex
	quests     map[string]domain.QuestDescription
	questOrder []string
	templates  map[string]Template
	tmplOrder  []string
}

// New returns a catalog holding the built-in quests and templates.
func New() *Catalog {
	c := &Catalog{
		quests:    make(map[string]domain.QuestDescription),
		templates: make(map[string]Template),
	}
	for _, t := range builtinTemplates() {
		c.addTemplate(t)
	}
	for _, q := range builtinQuests() {
		if err := c.addQuest(q); err != nil {
			panic(fmt.Sprintf("catalog: built-in quest %s: %v", q.ID, err))
		}
	}
	return c
}

func (c *Catalog) addTemplate(t Template) {
	if _, ok := c.templates[t.ID]; !ok {
		c.tmplOrder = append(c.tmplOrder, t.ID)
	}
	c.templates[t.ID] = t
}

// addQuest validates q, compiles its goal and registers it.
func (c *Catalog) addQuest(q domain.QuestDescription) error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", domain.ErrInvalidQuest)
	}
	if !q.Granularity.Valid() {
		return fmt.Errorf("%w: %s: %q", domain.ErrInvalidGranularity, q.ID, q.Granularity)
	}
	if q.MaxStepCount <= 0 {
		return fmt.Errorf("%w: %s: max step count %d", domain.ErrInvalidQuest, q.ID, q.MaxStepCount)
	}
	if err := domain.ValidateActions(q.InitialStep.ContinuingActions); err != nil {
		return err
	}
	for _, id := range q.ActionNames {
		if _, ok := c.templates[id]; !ok {
			return fmt.Errorf("%w: quest %s lists %q", domain.ErrActionNotFound, q.ID, id)
		}
	}
	if q.GoalExpr != "" {
		g, err := goal.Compile(q.GoalExpr)
		if err != nil {
			return fmt.Errorf("quest %s: %w", q.ID, err)
		}
		q.Goal = g
	}
	if q.InitialStep.NewActions == nil {
		q.InitialStep.NewActions = []domain.Action{}
	}
	if q.InitialStep.ContinuingActions == nil {
		q.InitialStep.ContinuingActions = []domain.Action{}
	}

	if _, ok := c.quests[q.ID]; !ok {
		c.questOrder = append(c.questOrder, q.ID)
	}
	c.quests[q.ID] = q
	return nil
}

// ─── Quests ─────────────────────────────────────────────────────────────────

// Lookup returns the quest with the given ID.
func (c *Catalog) Lookup(id string) (domain.QuestDescription, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q, ok := c.quests[id]
	if !ok {
		return domain.QuestDescription{}, fmt.Errorf("%w: %q", domain.ErrQuestNotFound, id)
	}
	q.InitialStep = q.InitialStep.Clone()
	return q, nil
}

// Quests returns every quest in registration order.
func (c *Catalog) Quests() []domain.QuestDescription {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.QuestDescription, 0, len(c.questOrder))
	for _, id := range c.questOrder {
		q := c.quests[id]
		q.InitialStep = q.InitialStep.Clone()
		out = append(out, q)
	}
	return out
}

// ─── Templates ──────────────────────────────────────────────────────────────

// LookupAction returns the template with the given ID.
func (c *Catalog) LookupAction(id string) (Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.templates[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", domain.ErrActionNotFound, id)
	}
	return t, nil
}

// Actions returns every template sorted by ID.
func (c *Catalog) Actions() []Template {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := append([]string(nil), c.tmplOrder...)
	sort.Strings(ids)
	out := make([]Template, len(ids))
	for i, id := range ids {
		out[i] = c.templates[id]
	}
	return out
}

// Instantiate builds a fresh action from a template. Price overrides are
// rejected with domain.ErrNotCustomizable unless the template allows them.
func (c *Catalog) Instantiate(id string, p Params) (domain.Action, error) {
	t, err := c.LookupAction(id)
	if err != nil {
		return domain.Action{}, err
	}
	a := t.Action
	a.Capital = 0

	if p.InitialPrice != nil {
		if !a.CanChangeInitialPrice {
			return domain.Action{}, fmt.Errorf("%w: %s initial price", domain.ErrNotCustomizable, id)
		}
		if *p.InitialPrice < 0 {
			return domain.Action{}, fmt.Errorf("%w: %s: negative initial price", domain.ErrInvalidAction, id)
		}
		a.InvestmentImpact.InitialPrice = *p.InitialPrice
	}
	if p.RepeatedPrice != nil {
		if !a.CanChangeRepeatedPrice {
			return domain.Action{}, fmt.Errorf("%w: %s repeated price", domain.ErrNotCustomizable, id)
		}
		if *p.RepeatedPrice < 0 {
			return domain.Action{}, fmt.Errorf("%w: %s: negative repeated price", domain.ErrInvalidAction, id)
		}
		a.InvestmentImpact.RepeatedPrice = *p.RepeatedPrice
	}
	if err := a.ValidateNew(); err != nil {
		return domain.Action{}, fmt.Errorf("template %s: %w", id, err)
	}
	return a, nil
}

// Available returns the templates of a quest that are unlocked at the
// quest's cursor. Unlock rules see only the steps up to the cursor.
func (c *Catalog) Available(q *domain.Quest) ([]Template, error) {
	if len(q.Steps) == 0 {
		return nil, domain.ErrEmptyQuest
	}
	cursor := q.Cursor
	if cursor < 0 || cursor >= len(q.Steps) {
		return nil, fmt.Errorf("%w: %d of %d", domain.ErrCursorOutOfRange, cursor, len(q.Steps))
	}
	ctx := domain.GoalContext{LastStep: q.Steps[cursor], Quest: q, Steps: cursor + 1}

	var out []Template
	for _, id := range q.Description.ActionNames {
		t, err := c.LookupAction(id)
		if err != nil {
			return nil, err
		}
		if t.Unlock != nil {
			ok, err := t.Unlock.Reached(ctx)
			if err != nil {
				return nil, fmt.Errorf("unlock %s: %w", id, err)
			}
			if !ok {
				continue
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// ─── Built-ins ──────────────────────────────────────────────────────────────

func builtinTemplates() []Template {
	life := domain.NewAction("Life", domain.KindOther, domain.Forever)
	life.ShortDescription = "Rent-free basics: food, transport, phone."
	life.LLMDescription = "Unavoidable monthly living costs with inflation eating into savings."
	life.BankAccountImpact = domain.Delta(-1000)
	life.BankAccountImpact.RepeatedPercent = domain.ConstantPercent{Percent: -2.0 / 12}
	life.JoyImpact = domain.Growth(-1)
	life.FreeTimeImpact = domain.Delta(100)

	waiter := domain.NewAction("Waiter job", domain.KindIncome, domain.Forever)
	waiter.ShortDescription = "Evening shifts at a restaurant."
	waiter.BankAccountImpact = domain.Delta(1000)
	waiter.JoyImpact = domain.Growth(-5)
	waiter.FreeTimeImpact = domain.Delta(-20)

	office := domain.NewAction("Office job", domain.KindIncome, domain.Forever)
	office.ShortDescription = "Full-time desk job with a steady salary."
	office.BankAccountImpact = domain.Delta(3200)
	office.JoyImpact = domain.Growth(-1.5)
	office.FreeTimeImpact = domain.Delta(-40)

	deposit := domain.NewAction("Savings deposit", domain.KindInvestment, 12)
	deposit.ShortDescription = "Fixed-term deposit paying 0.2% per step."
	deposit.InvestmentImpact = domain.Growth(0.2)
	deposit.InvestmentImpact.InitialPrice = 1000
	deposit.CanChangeInitialPrice = true

	etf := domain.NewAction("ETF savings plan", domain.KindInvestment, 24)
	etf.ShortDescription = "Monthly contribution into a world index fund."
	etf.InvestmentImpact = historyImpact(history.CategoryETF)
	etf.InvestmentImpact.RepeatedPrice = 200
	etf.CanChangeRepeatedPrice = true

	btc := domain.NewAction("Bitcoin", domain.KindInvestment, 12)
	btc.ShortDescription = "One-off bitcoin purchase held for a year."
	btc.InvestmentImpact = historyImpact(history.CategoryBTC)
	btc.InvestmentImpact.InitialPrice = 1000
	btc.CanChangeInitialPrice = true
	btc.JoyImpact = domain.Delta(-2)

	gold := domain.NewAction("Gold", domain.KindInvestment, 24)
	gold.ShortDescription = "Physical gold bought once and held."
	gold.InvestmentImpact = historyImpact(history.CategoryGold)
	gold.InvestmentImpact.InitialPrice = 1000
	gold.CanChangeInitialPrice = true

	vacation := domain.NewAction("Vacation", domain.KindExpense, 1)
	vacation.ShortDescription = "A week away."
	vacation.BankAccountImpact = domain.Delta(-1500)
	vacation.JoyImpact = domain.Delta(25)
	vacation.FreeTimeImpact = domain.Delta(80)

	gym := domain.NewAction("Gym membership", domain.KindExpense, domain.Forever)
	gym.BankAccountImpact = domain.Delta(-40)
	gym.JoyImpact = domain.Growth(2)
	gym.FreeTimeImpact = domain.Delta(-8)

	rent := domain.NewAction("Rent", domain.KindExpense, domain.Forever)
	rent.ShortDescription = "A small flat of your own."
	rent.BankAccountImpact = domain.Delta(-800)
	rent.JoyImpact = domain.Delta(3)

	return []Template{
		{ID: "life", Action: life},
		{ID: "waiter-job", Action: waiter},
		{ID: "office-job", Action: office, Unlock: goal.MustCompile(`steps >= 6`)},
		{ID: "savings-deposit", Action: deposit, Unlock: goal.MustCompile(`last.bank_account >= 1000.0`)},
		{ID: "etf-savings-plan", Action: etf},
		{ID: "bitcoin", Action: btc, Unlock: goal.MustCompile(`last.bank_account >= 5000.0`)},
		{ID: "gold", Action: gold, Unlock: goal.MustCompile(`last.bank_account >= 1000.0`)},
		{ID: "vacation", Action: vacation, Unlock: goal.MustCompile(`last.bank_account >= 1500.0`)},
		{ID: "gym-membership", Action: gym},
		{ID: "rent", Action: rent},
	}
}

func historyImpact(category domain.Category) domain.MetricImpact {
	m := domain.NoImpact()
	m.HasImpact = true
	m.RepeatedPercent = domain.HistoryPercent{Category: category}
	return m
}

func builtinQuests() []domain.QuestDescription {
	tmpl := make(map[string]domain.Action)
	for _, t := range builtinTemplates() {
		tmpl[t.ID] = t.Action
	}

	return []domain.QuestDescription{
		{
			ID:           "first-job",
			Name:         "First job",
			Summary:      "Move out, find work and keep your head above water for two years.",
			MaxStepCount: 24,
			Granularity:  domain.GranularityMonth,
			InitialStep: domain.Step{
				BankAccount:       3000,
				Joy:               100,
				NewActions:        []domain.Action{},
				ContinuingActions: []domain.Action{tmpl["life"]},
			},
			GoalExpr:    `last.bank_account >= 5000.0 && last.joy > 0.0`,
			ActionNames: []string{"waiter-job", "office-job", "rent", "gym-membership", "vacation", "savings-deposit"},
		},
		{
			ID:           "savings-goal",
			Name:         "Savings goal",
			Summary:      "Save 15,000 in three years without burning out.",
			MaxStepCount: 36,
			Granularity:  domain.GranularityMonth,
			InitialStep: domain.Step{
				BankAccount:       2000,
				Joy:               80,
				NewActions:        []domain.Action{},
				ContinuingActions: []domain.Action{tmpl["life"], tmpl["office-job"]},
			},
			GoalExpr:    `last.bank_account >= 15000.0 && last.joy >= 10.0`,
			ActionNames: []string{"savings-deposit", "etf-savings-plan", "gold", "vacation", "gym-membership", "rent"},
		},
		{
			ID:           "market-journey",
			Name:         "Market journey",
			Summary:      "Grow an inheritance through a decade of real markets.",
			MaxStepCount: 10,
			Granularity:  domain.GranularityYear,
			InitialStep: domain.Step{
				BankAccount:       20000,
				Joy:               50,
				NewActions:        []domain.Action{},
				ContinuingActions: []domain.Action{},
			},
			GoalExpr:    `last.bank_account >= 40000.0`,
			ActionNames: []string{"etf-savings-plan", "bitcoin", "gold", "savings-deposit"},
		},
	}
}
