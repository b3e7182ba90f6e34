// Package cost tracks LLM token spend, enforces per-user monthly budgets and
// recommends models by price.
package cost

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tradetaper/agentcore/kv"
	"github.com/tradetaper/agentcore/logging"
)

// SystemStatsTTL is how long rolling system totals live without updates.
const SystemStatsTTL = 24 * time.Hour

const systemStatsKey = "system-stats:tokens"

// Tier is a subscription tier.
type Tier string

const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// DefaultBudgets are the monthly USD budgets per tier.
var DefaultBudgets = map[Tier]float64{
	TierFree:       1.0,
	TierBasic:      5.0,
	TierPro:        25.0,
	TierEnterprise: 1000.0,
}

// UserBudget is the monthly budget view of a user.
type UserBudget struct {
	UserID          string    `json:"userId"`
	Tier            Tier      `json:"tier"`
	MonthlyBudget   float64   `json:"monthlyBudget"`
	CurrentUsage    float64   `json:"currentUsage"`
	PercentUsed     float64   `json:"percentUsed"`
	RemainingBudget float64   `json:"remainingBudget"`
	ResetDate       time.Time `json:"resetDate"`
}

// SystemStats are rolling totals over every recorded call.
type SystemStats struct {
	TotalTokens   int                `json:"totalTokens"`
	TotalCost     float64            `json:"totalCost"`
	TotalRequests int                `json:"totalRequests"`
	CostByModel   map[string]float64 `json:"costByModel"`
}

type monthlyUsage struct {
	Cost     float64 `json:"cost"`
	Tokens   int     `json:"tokens"`
	Requests int     `json:"requests"`
}

// Options configures a Manager.
type Options struct {
	Logger  logging.Logger
	Ledger  Ledger
	Pricing []ModelPricing
	Budgets map[Tier]float64
	// WarnThreshold is the fraction of the budget at which a warning is logged.
	WarnThreshold float64
	Now           func() time.Time
}

// Manager is the LLM cost manager. It is safe for concurrent use.
type Manager struct {
	store   kv.Store
	ledger  Ledger
	logger  logging.Logger
	pricing map[string]ModelPricing
	order   []string
	budgets map[Tier]float64
	warnAt  float64
	now     func() time.Time

	// mu serializes read-modify-write of the accumulators in the store and
	// guards reserved.
	mu sync.Mutex
	// reserved is the estimated cost of calls in flight, per user.
	reserved map[string]float64
}

// New creates a Manager persisting accumulators in store.
func New(store kv.Store, optFns ...func(o *Options)) *Manager {
	opts := Options{
		Logger:        logging.NoOpLogger{},
		Ledger:        NewMemoryLedger(0),
		Pricing:       DefaultPricing,
		Budgets:       DefaultBudgets,
		WarnThreshold: 0.8,
		Now:           time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	m := &Manager{
		store:   store,
		ledger:  opts.Ledger,
		logger:  opts.Logger,
		pricing: make(map[string]ModelPricing, len(opts.Pricing)),
		budgets: opts.Budgets,
		warnAt:  opts.WarnThreshold,
		now:     opts.Now,

		reserved: make(map[string]float64),
	}
	for _, p := range opts.Pricing {
		if _, dup := m.pricing[p.Model]; !dup {
			m.order = append(m.order, p.Model)
		}
		m.pricing[p.Model] = p
	}
	return m
}

// Pricing returns the rate table in declaration order.
func (m *Manager) Pricing() []ModelPricing {
	out := make([]ModelPricing, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.pricing[name])
	}
	return out
}

// ModelPricing returns the rates of a model.
func (m *Manager) ModelPricing(model string) (ModelPricing, bool) {
	p, ok := m.pricing[model]
	return p, ok
}

// CalculateCost returns the USD cost of a call. Unknown models are priced at
// the DefaultModel rate.
func (m *Manager) CalculateCost(promptTokens, completionTokens int, model string) float64 {
	p, ok := m.pricing[model]
	if !ok {
		m.logger.Warn("Unknown model pricing, using default", "model", model, "default", DefaultModel)
		p = fallbackPricing
	}
	return p.cost(promptTokens, completionTokens)
}

// EstimateTokens approximates the token count of text.
func (m *Manager) EstimateTokens(text string) int { return EstimateTokens(text) }

// SetUserTier stores the subscription tier of a user.
func (m *Manager) SetUserTier(ctx context.Context, userID string, tier Tier) error {
	if _, ok := m.budgets[tier]; !ok {
		return fmt.Errorf("unknown tier %q", tier)
	}
	return m.store.Set(ctx, tierKey(userID), []byte(tier), 0)
}

func (m *Manager) userTier(ctx context.Context, userID string) (Tier, error) {
	raw, found, err := m.store.Get(ctx, tierKey(userID))
	if err != nil {
		return TierFree, fmt.Errorf("load tier: %w", err)
	}
	tier := Tier(raw)
	if _, known := m.budgets[tier]; !found || !known {
		return TierFree, nil
	}
	return tier, nil
}

// UserBudget returns the current month's budget view of a user.
func (m *Manager) UserBudget(ctx context.Context, userID string) (UserBudget, error) {
	tier, err := m.userTier(ctx, userID)
	if err != nil {
		return UserBudget{}, err
	}
	budget := m.budgets[tier]

	now := m.now()
	usage, err := m.loadMonthly(ctx, userID, now)
	if err != nil {
		return UserBudget{}, err
	}

	var percent float64
	if budget > 0 {
		percent = usage.Cost / budget * 100
	}
	return UserBudget{
		UserID:          userID,
		Tier:            tier,
		MonthlyBudget:   budget,
		CurrentUsage:    usage.Cost,
		PercentUsed:     percent,
		RemainingBudget: math.Max(0, budget-usage.Cost),
		ResetDate:       monthStart(now, 1),
	}, nil
}

// CheckBudget fails with *BudgetExceededError when the estimated cost would
// push the user over budget. Reservations of calls in flight count as usage.
func (m *Manager) CheckBudget(ctx context.Context, userID string, estimatedCost float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkBudgetLocked(ctx, userID, estimatedCost)
}

// ReserveBudget checks the budget like CheckBudget and holds estimatedCost
// against it until release is called, so concurrent estimates for one user
// cannot together exceed the budget. Call release once the usage is recorded
// or the call failed; extra calls are no-ops.
func (m *Manager) ReserveBudget(ctx context.Context, userID string, estimatedCost float64) (release func(), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkBudgetLocked(ctx, userID, estimatedCost); err != nil {
		return nil, err
	}
	m.reserved[userID] += estimatedCost

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if left := m.reserved[userID] - estimatedCost; left > 1e-12 {
				m.reserved[userID] = left
			} else {
				delete(m.reserved, userID)
			}
		})
	}, nil
}

func (m *Manager) checkBudgetLocked(ctx context.Context, userID string, estimatedCost float64) error {
	b, err := m.UserBudget(ctx, userID)
	if err != nil {
		return err
	}
	current := b.CurrentUsage + m.reserved[userID]
	if current+estimatedCost > b.MonthlyBudget {
		return &BudgetExceededError{
			UserID:        userID,
			CurrentUsage:  current,
			Budget:        b.MonthlyBudget,
			EstimatedCost: estimatedCost,
		}
	}
	if b.PercentUsed >= m.warnAt*100 && b.PercentUsed < 100 {
		m.logger.Warn("User approaching AI budget", "user_id", userID, "percent_used", b.PercentUsed)
	}
	return nil
}

// RecordUsage appends usage to the ledger and updates the monthly and
// system accumulators. Missing totals, cost and timestamp are filled in.
func (m *Manager) RecordUsage(ctx context.Context, usage TokenUsage) error {
	if usage.Timestamp.IsZero() {
		usage.Timestamp = m.now()
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	if usage.Cost == 0 && usage.TotalTokens > 0 {
		usage.Cost = m.CalculateCost(usage.PromptTokens, usage.CompletionTokens, usage.Model)
	}

	var errs []error
	if err := m.ledger.Append(ctx, usage); err != nil {
		errs = append(errs, fmt.Errorf("append ledger: %w", err))
	}

	m.mu.Lock()
	if usage.UserID != "" {
		if err := m.addMonthly(ctx, usage); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.addSystem(ctx, usage); err != nil {
		errs = append(errs, err)
	}
	m.mu.Unlock()

	m.logger.Debug("Recorded usage", "tokens", usage.TotalTokens, "cost", usage.Cost, "model", usage.Model, "user_id", usage.UserID)
	return errors.Join(errs...)
}

// Usage lists ledger records.
func (m *Manager) Usage(ctx context.Context, filter Filter) ([]TokenUsage, error) {
	return m.ledger.List(ctx, filter)
}

// SystemStats returns the rolling system totals.
func (m *Manager) SystemStats(ctx context.Context) (SystemStats, error) {
	stats := SystemStats{CostByModel: map[string]float64{}}
	if _, err := kv.GetJSON(ctx, m.store, systemStatsKey, &stats); err != nil {
		return SystemStats{}, err
	}
	if stats.CostByModel == nil {
		stats.CostByModel = map[string]float64{}
	}
	return stats, nil
}

// SelectOptimalModel returns the cheapest model recommended for the
// complexity whose prompt rate does not exceed maxCost (when given). When
// nothing qualifies it returns the cheapest model of the whole table,
// preferring one within maxCost.
func (m *Manager) SelectOptimalModel(complexity Complexity, maxCost *float64) string {
	within := func(p ModelPricing) bool { return maxCost == nil || p.PromptCostPer1K <= *maxCost }

	var candidates []ModelPricing
	for _, name := range complexityModels[complexity] {
		if p, ok := m.pricing[name]; ok && within(p) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) > 0 {
		return cheapest(candidates).Model
	}

	all := m.Pricing()
	for _, p := range all {
		if within(p) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		candidates = all
	}
	if len(candidates) == 0 {
		return DefaultModel
	}
	return cheapest(candidates).Model
}

// cheapest returns the model with the lowest blended rate; ties keep the
// earlier entry.
func cheapest(ps []ModelPricing) ModelPricing {
	best := ps[0]
	for _, p := range ps[1:] {
		if p.blended() < best.blended() {
			best = p
		}
	}
	return best
}

func (m *Manager) loadMonthly(ctx context.Context, userID string, now time.Time) (monthlyUsage, error) {
	var usage monthlyUsage
	if _, err := kv.GetJSON(ctx, m.store, monthlyKey(userID, now), &usage); err != nil {
		return monthlyUsage{}, fmt.Errorf("load monthly usage: %w", err)
	}
	return usage, nil
}

func (m *Manager) addMonthly(ctx context.Context, u TokenUsage) error {
	usage, err := m.loadMonthly(ctx, u.UserID, u.Timestamp)
	if err != nil {
		return err
	}
	usage.Cost += u.Cost
	usage.Tokens += u.TotalTokens
	usage.Requests++

	ttl := monthStart(m.now(), 2).Sub(m.now())
	if err := kv.SetJSON(ctx, m.store, monthlyKey(u.UserID, u.Timestamp), usage, ttl); err != nil {
		return fmt.Errorf("store monthly usage: %w", err)
	}
	return nil
}

func (m *Manager) addSystem(ctx context.Context, u TokenUsage) error {
	stats, err := m.SystemStats(ctx)
	if err != nil {
		return fmt.Errorf("load system stats: %w", err)
	}
	stats.TotalTokens += u.TotalTokens
	stats.TotalCost += u.Cost
	stats.TotalRequests++
	stats.CostByModel[u.Model] += u.Cost
	if err := kv.SetJSON(ctx, m.store, systemStatsKey, stats, SystemStatsTTL); err != nil {
		return fmt.Errorf("store system stats: %w", err)
	}
	return nil
}

func tierKey(userID string) string { return "user-tier:" + userID }

func monthlyKey(userID string, t time.Time) string {
	return fmt.Sprintf("monthly-usage:%s:%s", userID, t.UTC().Format("2006-01"))
}

// monthStart returns the first instant of the month offset months after t, in UTC.
func monthStart(t time.Time, offset int) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+time.Month(offset), 1, 0, 0, 0, 0, time.UTC)
}
