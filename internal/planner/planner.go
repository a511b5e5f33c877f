// Package planner generates and persists the farming agent's daily
// activity schedule: a budget- and weekend-aware action count,
// Gaussian-spaced action times, and a no-repeat-type action sequence,
// matching the original activity planner's exact constants.
package planner

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/data"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// actionTypes is the rotation for mainnet farming actions. lpRemove is
// intentionally excluded from generation — spec §9 treats its
// always-degrades fallback as authoritative, not something the
// planner schedules directly.
var actionTypes = []types.ActionType{
	types.ActionSwapEthToToken,
	types.ActionSwapTokenToEth,
	types.ActionSelfTransfer,
	types.ActionLPAdd,
}

const weekendReduction = 0.5
const minDailyActions = 2
const historyCap = 7

type schedule struct {
	Plan    types.DailyPlan   `json:"plan"`
	History []types.DailyPlan `json:"history"`
}

// Planner owns the persisted daily schedule.
type Planner struct {
	mu     sync.Mutex
	logger *zap.Logger
	store  *data.Store
	cfg    types.FarmingConfig
	rng    *rand.Rand
	state  schedule
}

// New constructs a Planner, loading any existing schedule.
func New(logger *zap.Logger, path string, cfg types.FarmingConfig) (*Planner, error) {
	store, err := data.New(logger, path, 0o644)
	if err != nil {
		return nil, err
	}
	p := &Planner{logger: logger, store: store, cfg: cfg, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	if _, err := store.Load(&p.state); err != nil {
		return nil, fmt.Errorf("planner: loading schedule: %w", err)
	}
	return p, nil
}

// GetDailyPlan returns date's plan, generating and persisting it on
// first call for that date. Subsequent calls for the same date return
// the stored plan unchanged (idempotent generation).
func (p *Planner) GetDailyPlan(date time.Time, budgetRemaining decimal.Decimal) (types.DailyPlan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dateStr := date.UTC().Format("2006-01-02")
	if p.state.Plan.Date == dateStr {
		return p.state.Plan, nil
	}

	entries := p.generate(date, budgetRemaining)
	newPlan := types.DailyPlan{Date: dateStr, Entries: entries}

	if len(p.state.Plan.Entries) > 0 {
		p.state.History = append(p.state.History, p.state.Plan)
		if len(p.state.History) > historyCap {
			p.state.History = p.state.History[len(p.state.History)-historyCap:]
		}
	}
	p.state.Plan = newPlan

	if err := p.store.Save(&p.state); err != nil {
		return newPlan, fmt.Errorf("planner: persisting schedule: %w", err)
	}
	return newPlan, nil
}

// MarkDone records a completed or failed action and persists the
// schedule.
func (p *Planner) MarkDone(id, txHash, execErr string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.state.Plan.Entries {
		e := &p.state.Plan.Entries[i]
		if e.ID != id {
			continue
		}
		now := time.Now().UTC()
		e.ExecutedAt = &now
		if execErr != "" {
			e.Status = types.PlanStatusFailed
			e.Error = execErr
		} else {
			e.Status = types.PlanStatusDone
			e.TxHash = txHash
		}
		return p.store.Save(&p.state)
	}
	return fmt.Errorf("planner: no entry with id %q", id)
}

// PendingDue returns entries that are still pending and whose
// scheduled time has arrived.
func (p *Planner) PendingDue(now time.Time) []types.PlanEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	var due []types.PlanEntry
	for _, e := range p.state.Plan.Entries {
		if e.Status == types.PlanStatusPending && !now.Before(e.TimeUTC) {
			due = append(due, e)
		}
	}
	return due
}

// NextActionTime returns the soonest pending entry's time, if any.
func (p *Planner) NextActionTime() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var soonest time.Time
	found := false
	for _, e := range p.state.Plan.Entries {
		if e.Status != types.PlanStatusPending {
			continue
		}
		if !found || e.TimeUTC.Before(soonest) {
			soonest = e.TimeUTC
			found = true
		}
	}
	return soonest, found
}

// Stats summarises the persisted plan's current day.
type Stats struct {
	Date    string
	Total   int
	Pending int
	Done    int
	Failed  int
}

// Stats returns today's schedule summary.
func (p *Planner) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{Date: p.state.Plan.Date}
	for _, e := range p.state.Plan.Entries {
		s.Total++
		switch e.Status {
		case types.PlanStatusPending:
			s.Pending++
		case types.PlanStatusDone:
			s.Done++
		case types.PlanStatusFailed:
			s.Failed++
		}
	}
	return s
}

// generate builds one day's randomized action sequence per spec §4.11.
func (p *Planner) generate(date time.Time, budgetRemaining decimal.Decimal) []types.PlanEntry {
	maxActions := p.cfg.DailyMaxActions
	if isWeekend(date) {
		maxActions = maxInt(1, int(float64(maxActions)*weekendReduction))
	}

	daysElapsed := int(date.UTC().Sub(p.cfg.CampaignStart).Hours() / 24)
	if daysElapsed < 0 {
		daysElapsed = 0
	}
	daysLeft := maxInt(1, p.cfg.FarmingDurationDays-daysElapsed)
	dailyGasBudget := budgetRemaining.Div(decimal.NewFromInt(int64(daysLeft)))

	avgCost := p.primaryAvgGasCost()
	affordable := maxActions
	if avgCost.IsPositive() {
		affordable = int(dailyGasBudget.Div(avgCost).IntPart())
	}
	numActions := minDailyActions
	if hi := maxInt(minDailyActions, minInt(maxActions, maxInt(minDailyActions, affordable))); hi > minDailyActions {
		numActions = minDailyActions + p.rng.Intn(hi-minDailyActions+1)
	}

	startH, endH := float64(p.cfg.DayStartHour), float64(p.cfg.DayEndHour)
	nowHour := float64(date.UTC().Hour()) + float64(date.UTC().Minute())/60.0
	effectiveStart := math.Max(startH, nowHour+0.5)
	if effectiveStart >= endH-1 {
		numActions = minInt(numActions, 2)
		effectiveStart = math.Min(nowHour+0.25, endH-0.5)
	}

	times := p.generateTimes(date, numActions, effectiveStart, endH)

	entries := make([]types.PlanEntry, 0, len(times))
	lastType := types.ActionType("")
	tokenIdx := 0
	primaryChain := p.primaryChain()

	for i, t := range times {
		actionType := p.pickType(lastType)
		lastType = actionType

		params := p.generateParams(actionType, primaryChain, tokenIdx)
		if actionType == types.ActionSwapEthToToken || actionType == types.ActionSwapTokenToEth {
			tokenIdx = (tokenIdx + 1) % maxInt(1, len(primaryChain.Tokens))
		}

		entries = append(entries, types.PlanEntry{
			ID:         fmt.Sprintf("a%d_%s_%s", i+1, date.UTC().Format("0102"), uuid.NewString()[:8]),
			TimeUTC:    t,
			ActionType: actionType,
			Chain:      primaryChain.Name,
			Params:     params,
			Status:     types.PlanStatusPending,
		})
	}
	return entries
}

// generateTimes draws count action times with Gaussian spacing
// between startH and endH, each gap floored at 0.5h, the final time
// clipped before endH.
func (p *Planner) generateTimes(date time.Time, count int, startH, endH float64) []time.Time {
	if count <= 0 || startH >= endH {
		return nil
	}

	totalHours := endH - startH
	meanGap := totalHours / float64(count+1)
	times := make([]time.Time, 0, count)
	current := startH

	baseDay := time.Date(date.UTC().Year(), date.UTC().Month(), date.UTC().Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		gap := math.Max(0.5, p.rng.NormFloat64()*meanGap/2+meanGap)
		current += gap
		if current >= endH {
			current = endH - (0.1 + p.rng.Float64()*0.4)
		}

		hour := int(current)
		minute := int((current - float64(hour)) * 60)
		second := p.rng.Intn(60)
		times = append(times, baseDay.Add(time.Duration(hour)*time.Hour+time.Duration(minute)*time.Minute+time.Duration(second)*time.Second))
	}

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}

// pickType selects uniformly among actionTypes excluding lastType.
func (p *Planner) pickType(lastType types.ActionType) types.ActionType {
	available := make([]types.ActionType, 0, len(actionTypes))
	for _, t := range actionTypes {
		if t != lastType {
			available = append(available, t)
		}
	}
	return available[p.rng.Intn(len(available))]
}

// generateParams draws a micro-amount and builds per-action-type
// params. Amounts are expressed in native-unit decimal strings so the
// executor can parse them without float round-tripping ambiguity.
func (p *Planner) generateParams(actionType types.ActionType, chainCfg types.ChainConfig, tokenIdx int) map[string]string {
	amountUsd := p.cfg.MinActionUsd.Add(decimal.NewFromFloat(p.rng.Float64()).Mul(p.cfg.MaxActionUsd.Sub(p.cfg.MinActionUsd)))
	amountEth := amountUsd.Div(p.cfg.EthPriceUsd)

	token := ""
	if len(chainCfg.Tokens) > 0 {
		token = chainCfg.Tokens[tokenIdx%len(chainCfg.Tokens)]
	}

	switch actionType {
	case types.ActionSwapEthToToken:
		return map[string]string{"tokenOut": token, "amountEth": amountEth.String()}
	case types.ActionSwapTokenToEth:
		return map[string]string{"tokenIn": token}
	case types.ActionSelfTransfer:
		return map[string]string{"amountEth": amountEth.String()}
	case types.ActionLPAdd:
		return map[string]string{"token": token, "amountEth": amountEth.Div(decimal.NewFromInt(2)).String()}
	default:
		return map[string]string{}
	}
}

func (p *Planner) primaryChain() types.ChainConfig {
	for _, c := range p.cfg.Chains {
		if c.Type == types.ChainTypeMainnet {
			return c
		}
	}
	if len(p.cfg.Chains) > 0 {
		return p.cfg.Chains[0]
	}
	return types.ChainConfig{}
}

func (p *Planner) primaryAvgGasCost() decimal.Decimal {
	return p.primaryChain().AvgGasCostUsd
}

func isWeekend(t time.Time) bool {
	wd := t.UTC().Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
