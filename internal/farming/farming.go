// Package farming is the airdrop-farming agent: it ties the activity
// planner, the on-chain executor, the chain manager's gas budget, and
// the notifier together into the daily plan / execute / testnet /
// scan / report cycle.
package farming

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/chain"
	"github.com/atlas-desktop/trading-backend/internal/data"
	"github.com/atlas-desktop/trading-backend/internal/notify"
	"github.com/atlas-desktop/trading-backend/internal/onchain"
	"github.com/atlas-desktop/trading-backend/internal/planner"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"go.uber.org/zap"
)

// Executor dispatches a single plan entry on-chain.
type Executor interface {
	Execute(ctx context.Context, entry types.PlanEntry, wallet onchain.Wallet) (string, error)
}

// TestnetFarmer generates testnet transaction history on its own
// cadence. Production wiring can leave this nil — the farming cycle
// simply skips that stage.
type TestnetFarmer interface {
	RunCycle(ctx context.Context) error
}

// Scanner checks for new airdrop opportunities. Production wiring can
// leave this nil — the scan stage is then a no-op.
type Scanner interface {
	Scan(ctx context.Context) (found int, err error)
}

const (
	testnetMinDelay   = 2 * time.Hour
	testnetMaxDelay   = 8 * time.Hour
	scanInterval      = 12 * time.Hour
	reportInterval    = 24 * time.Hour
	actionLogCap      = 100
	maxSleepInterval  = 30 * time.Minute
	minSleepInterval  = time.Minute
	jitterLowSeconds  = -60
	jitterHighSeconds = 300
	errorBackoff      = 10 * time.Minute
	minActionDelay    = 10 * time.Second
	maxActionDelay    = 120 * time.Second
)

// actionLogEntry is one executed action kept for the daily report.
type actionLogEntry struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Chain   string    `json:"chain"`
	TxHash  string    `json:"txHash"`
	Time    time.Time `json:"time"`
	Failed  bool      `json:"failed,omitempty"`
}

type runState struct {
	StartedAt         time.Time         `json:"startedAt"`
	TotalActions      int               `json:"totalActions"`
	ActionsLog        []actionLogEntry  `json:"actionsLog"`
	LastTestnetCycle  time.Time         `json:"lastTestnetCycle"`
	LastScan          time.Time         `json:"lastScan"`
	LastDailyReport   time.Time         `json:"lastDailyReport"`
}

// Agent is the airdrop-farming orchestrator.
type Agent struct {
	mu       sync.Mutex
	logger   *zap.Logger
	store    *data.Store
	state    runState
	planner  *planner.Planner
	chains   *chain.Manager
	executor Executor
	testnet  TestnetFarmer
	scanner  Scanner
	notifier notify.Notifier
	wallet   onchain.Wallet
	dryRun   bool
	rng      *rand.Rand

	stopCh chan struct{}
}

// Config bundles Agent's collaborators.
type Config struct {
	Planner  *planner.Planner
	Chains   *chain.Manager
	Executor Executor
	Testnet  TestnetFarmer
	Scanner  Scanner
	Notifier notify.Notifier
	Wallet   onchain.Wallet
	DryRun   bool
}

// New constructs an Agent, loading any persisted run state.
func New(logger *zap.Logger, statePath string, cfg Config) (*Agent, error) {
	store, err := data.New(logger, statePath, 0o644)
	if err != nil {
		return nil, err
	}
	a := &Agent{
		logger:   logger,
		store:    store,
		planner:  cfg.Planner,
		chains:   cfg.Chains,
		executor: cfg.Executor,
		testnet:  cfg.Testnet,
		scanner:  cfg.Scanner,
		notifier: cfg.Notifier,
		wallet:   cfg.Wallet,
		dryRun:   cfg.DryRun,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh:   make(chan struct{}),
	}
	loaded, err := store.Load(&a.state)
	if err != nil {
		return nil, fmt.Errorf("farming: loading state: %w", err)
	}
	if !loaded {
		a.state.StartedAt = time.Now().UTC()
	}
	return a, nil
}

func (a *Agent) save() error {
	return a.store.Save(&a.state)
}

// Run starts the 24/7 loop: an immediate cycle followed by
// sleep-until-next-action iterations. A panic inside a cycle is
// recovered and treated as a failed cycle; a failed cycle in the loop
// backs off for errorBackoff instead of terminating the agent.
func (a *Agent) Run(ctx context.Context) error {
	notify.Status(ctx, a.logger, a.notifier, fmt.Sprintf("airdrop farmer started (dryRun=%v)", a.dryRun))

	runCycle := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("farming: cycle panicked: %v", r)
			}
		}()
		return a.RunOnce(ctx)
	}

	if err := runCycle(); err != nil {
		a.logger.Error("initial farming cycle failed", zap.Error(err))
	}

	for {
		sleepFor := a.nextSleepDuration()
		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			notify.Status(ctx, a.logger, a.notifier, "airdrop farmer stopped")
			return ctx.Err()
		case <-a.stopCh:
			timer.Stop()
			notify.Status(ctx, a.logger, a.notifier, "airdrop farmer stopped")
			return nil
		case <-timer.C:
		}

		if err := runCycle(); err != nil {
			a.logger.Error("farming cycle failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(errorBackoff):
			}
		}
	}
}

// Stop signals Run to return.
func (a *Agent) Stop() {
	close(a.stopCh)
}

// nextSleepDuration mirrors the original farmer's sleep-until-next-
// action logic: capped at 30 minutes, jittered, floored at a minute.
func (a *Agent) nextSleepDuration() time.Duration {
	base := maxSleepInterval
	if t, ok := a.planner.NextActionTime(); ok {
		if until := time.Until(t); until > 0 && until < maxSleepInterval {
			base = until
		}
	}
	jitter := time.Duration(jitterLowSeconds+a.rng.Intn(jitterHighSeconds-jitterLowSeconds+1)) * time.Second
	sleepFor := base + jitter
	if sleepFor < minSleepInterval {
		sleepFor = minSleepInterval
	}
	return sleepFor
}

// RunOnce executes one full cycle: plan -> execute -> testnet -> scan
// -> report.
func (a *Agent) RunOnce(ctx context.Context) error {
	remaining := a.chains.Budget().Remaining()
	a.logger.Info("farming cycle starting", zap.String("budgetRemaining", remaining.String()))

	if _, err := a.planner.GetDailyPlan(time.Now().UTC(), remaining); err != nil {
		return fmt.Errorf("farming: generating daily plan: %w", err)
	}

	executed, err := a.runPendingActions(ctx)
	if err != nil {
		a.logger.Error("executing pending actions", zap.Error(err))
	}
	a.logger.Info("farming cycle: executed pending actions", zap.Int("count", executed))

	a.runTestnetCycle(ctx)
	a.runAirdropScan(ctx)
	a.sendDailyReport(ctx)

	return nil
}

// runPendingActions executes every action whose scheduled time has
// arrived, with an organic delay before each to avoid bot-like
// back-to-back submissions.
func (a *Agent) runPendingActions(ctx context.Context) (int, error) {
	due := a.planner.PendingDue(time.Now().UTC())
	if len(due) == 0 {
		return 0, nil
	}

	executed := 0
	for _, entry := range due {
		if !a.dryRun {
			delay := minActionDelay + time.Duration(a.rng.Int63n(int64(maxActionDelay-minActionDelay)))
			select {
			case <-ctx.Done():
				return executed, ctx.Err()
			case <-time.After(delay):
			}
		}

		txHash, err := a.executor.Execute(ctx, entry, a.wallet)
		if err != nil {
			a.logger.Warn("farming action failed", zap.String("type", string(entry.ActionType)), zap.Error(err))
			if merr := a.planner.MarkDone(entry.ID, "", err.Error()); merr != nil {
				a.logger.Error("marking action failed", zap.Error(merr))
			}
			continue
		}

		if merr := a.planner.MarkDone(entry.ID, txHash, ""); merr != nil {
			a.logger.Error("marking action done", zap.Error(merr))
		}

		a.mu.Lock()
		a.state.TotalActions++
		a.state.ActionsLog = append(a.state.ActionsLog, actionLogEntry{
			ID: entry.ID, Type: string(entry.ActionType), Chain: entry.Chain, TxHash: txHash, Time: time.Now().UTC(),
		})
		if len(a.state.ActionsLog) > actionLogCap {
			a.state.ActionsLog = a.state.ActionsLog[len(a.state.ActionsLog)-actionLogCap:]
		}
		if err := a.save(); err != nil {
			a.logger.Error("persisting farming state", zap.Error(err))
		}
		a.mu.Unlock()

		notify.FarmAction(ctx, a.logger, a.notifier, entry, a.chains.Budget().Remaining())
		executed++
	}
	return executed, nil
}

func (a *Agent) runTestnetCycle(ctx context.Context) {
	a.mu.Lock()
	elapsed := time.Since(a.state.LastTestnetCycle)
	a.mu.Unlock()

	threshold := testnetMinDelay + time.Duration(a.rng.Int63n(int64(testnetMaxDelay-testnetMinDelay)))
	if elapsed < threshold {
		return
	}

	if a.testnet != nil && !a.dryRun {
		if err := a.testnet.RunCycle(ctx); err != nil {
			a.logger.Error("testnet farming cycle failed", zap.Error(err))
		}
	}

	a.mu.Lock()
	a.state.LastTestnetCycle = time.Now().UTC()
	saveErr := a.save()
	a.mu.Unlock()
	if saveErr != nil {
		a.logger.Error("persisting farming state", zap.Error(saveErr))
	}
}

func (a *Agent) runAirdropScan(ctx context.Context) {
	a.mu.Lock()
	elapsed := time.Since(a.state.LastScan)
	a.mu.Unlock()
	if elapsed < scanInterval {
		return
	}

	if a.scanner != nil && !a.dryRun {
		found, err := a.scanner.Scan(ctx)
		if err != nil {
			a.logger.Error("airdrop scan failed", zap.Error(err))
		} else if found > 0 {
			notify.Alert(ctx, a.logger, a.notifier, fmt.Sprintf("airdrop scan found %d opportunities", found))
		}
	}

	a.mu.Lock()
	a.state.LastScan = time.Now().UTC()
	saveErr := a.save()
	a.mu.Unlock()
	if saveErr != nil {
		a.logger.Error("persisting farming state", zap.Error(saveErr))
	}
}

func (a *Agent) sendDailyReport(ctx context.Context) {
	a.mu.Lock()
	elapsed := time.Since(a.state.LastDailyReport)
	a.mu.Unlock()
	if elapsed < reportInterval {
		return
	}

	stats := a.planner.Stats()
	budget := a.chains.Budget()

	today := time.Now().UTC().Format("2006-01-02")
	a.mu.Lock()
	todayCount := 0
	for _, e := range a.state.ActionsLog {
		if e.Time.Format("2006-01-02") == today {
			todayCount++
		}
	}
	totalActions := a.state.TotalActions
	a.mu.Unlock()

	var gasLines strings.Builder
	if len(budget.SpentByChain) == 0 {
		gasLines.WriteString("  (none yet)")
	} else {
		for c, spent := range budget.SpentByChain {
			fmt.Fprintf(&gasLines, "  %s: $%s\n", c, spent.String())
		}
	}

	report := fmt.Sprintf(
		"date=%s actions_today=%d total_actions=%d spent=$%s remaining=$%s planned=%d done=%d pending=%d failed=%d\ngas by chain:\n%s",
		today, todayCount, totalActions, budget.TotalSpent.String(), budget.Remaining().String(),
		stats.Total, stats.Done, stats.Pending, stats.Failed, gasLines.String(),
	)

	notify.DailySummary(ctx, a.logger, a.notifier, report)

	a.mu.Lock()
	a.state.LastDailyReport = time.Now().UTC()
	saveErr := a.save()
	a.mu.Unlock()
	if saveErr != nil {
		a.logger.Error("persisting farming state", zap.Error(saveErr))
	}
}

// Status returns a human-readable snapshot for the CLI status surface.
func (a *Agent) Status() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	budget := a.chains.Budget()
	return fmt.Sprintf(
		"started=%s total_actions=%d gas_spent=$%s gas_remaining=$%s",
		a.state.StartedAt.Format(time.RFC3339), a.state.TotalActions, budget.TotalSpent.String(), budget.Remaining().String(),
	)
}

// StatusSnapshot is a JSON-friendly status summary for the API.
type StatusSnapshot struct {
	StartedAt      time.Time      `json:"startedAt"`
	TotalActions   int            `json:"totalActions"`
	GasSpentUsd    string         `json:"gasSpentUsd"`
	GasRemaining   string         `json:"gasRemaining"`
	Plan           planner.Stats  `json:"plan"`
}

// StatusSnapshot returns a structured status summary.
func (a *Agent) StatusSnapshot() StatusSnapshot {
	a.mu.Lock()
	started := a.state.StartedAt
	total := a.state.TotalActions
	a.mu.Unlock()

	budget := a.chains.Budget()
	return StatusSnapshot{
		StartedAt:    started,
		TotalActions: total,
		GasSpentUsd:  budget.TotalSpent.String(),
		GasRemaining: budget.Remaining().String(),
		Plan:         a.planner.Stats(),
	}
}
