package agent

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacahan/casualtrader-go/internal/domain"
	"github.com/sacahan/casualtrader-go/internal/eventbus"
	"github.com/sacahan/casualtrader-go/internal/gateway"
	"github.com/sacahan/casualtrader-go/internal/repository"
	"github.com/sacahan/casualtrader-go/internal/repository/memory"
	"github.com/sacahan/casualtrader-go/internal/session"
	"github.com/sacahan/casualtrader-go/internal/tool"
)

// fakeQuoteFetcher prices every symbol the same, for tests that need
// mark-to-market drawdown without a real gateway.
type fakeQuoteFetcher struct{ price float64 }

func (f fakeQuoteFetcher) Fetch(ctx context.Context, symbol string, k gateway.Kind, forceRefresh bool) (gateway.Result, error) {
	return gateway.Result{Payload: gateway.Quote{Symbol: symbol, Price: f.price}}, nil
}

func newAutoAdjustHarness(t *testing.T, cfg AutoAdjustConfig, runner *session.Runner) (*Manager, *AutoAdjuster, *memory.Store) {
	t.Helper()
	return newAutoAdjustHarnessWithGateway(t, cfg, runner, nil)
}

func newAutoAdjustHarnessWithGateway(t *testing.T, cfg AutoAdjustConfig, runner *session.Runner, gw quoteFetcher) (*Manager, *AutoAdjuster, *memory.Store) {
	t.Helper()
	repo := memory.New()
	bus := eventbus.New(8, zerolog.Nop())
	mgrCfg := Config{DefaultTurnBudget: 3, SessionWallClockBudget: time.Second, ToolCallTimeout: time.Second, StopGrace: 50 * time.Millisecond}
	m := New(repo, runner, bus, mgrCfg, zerolog.Nop())
	recordTool := tool.NewRecordStrategyChangeTool(repo, zerolog.Nop())
	a := NewAutoAdjuster(m, repo, recordTool, gw, cfg, zerolog.Nop())
	return m, a, repo
}

func TestAutoAdjuster_TimeCadenceTriggersWithNoHistory(t *testing.T) {
	m, a, repo := newAutoAdjustHarness(t, AutoAdjustConfig{TimeCadence: time.Hour}, quickRunner())

	p := validProfile()
	p.CreatedAt = time.Now().Add(-48 * time.Hour)
	id, err := m.Create(context.Background(), p)
	require.NoError(t, err)

	a.Tick(context.Background())

	changes, err := repo.ListStrategyChanges(context.Background(), id, repository.Page{})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.TriggerAutoTime, changes[0].TriggerKind)
}

func TestAutoAdjuster_SkipsWithinCadenceAndNoDrawdown(t *testing.T) {
	m, a, repo := newAutoAdjustHarness(t, AutoAdjustConfig{TimeCadence: 24 * time.Hour}, quickRunner())

	p := validProfile()
	p.CreatedAt = time.Now()
	id, err := m.Create(context.Background(), p)
	require.NoError(t, err)

	a.Tick(context.Background())

	changes, err := repo.ListStrategyChanges(context.Background(), id, repository.Page{})
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestAutoAdjuster_PerformanceDrawdownTriggers(t *testing.T) {
	m, a, repo := newAutoAdjustHarness(t, AutoAdjustConfig{
		TimeCadence:                24 * time.Hour,
		PerformanceDrawdownTrigger: 0.1,
	}, quickRunner())

	p := validProfile()
	p.CreatedAt = time.Now()
	p.InitialFunds = 1_000_000
	id, err := m.Create(context.Background(), p)
	require.NoError(t, err)

	state, err := repo.GetAgentRuntimeState(context.Background(), id)
	require.NoError(t, err)
	state.Cash = 800_000 // 20% drawdown
	require.NoError(t, repo.UpdateAgentRuntimeState(context.Background(), state))

	a.Tick(context.Background())

	changes, err := repo.ListStrategyChanges(context.Background(), id, repository.Page{})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.TriggerAutoPerformance, changes[0].TriggerKind)
}

func TestAutoAdjuster_MarkToMarketHoldingsOffsetCashDrawdown(t *testing.T) {
	// Cash alone looks like a 40% drawdown, but the agent's holdings are
	// worth enough at current quotes that the true drawdown stays below
	// the trigger threshold.
	m, a, repo := newAutoAdjustHarnessWithGateway(t, AutoAdjustConfig{
		TimeCadence:                24 * time.Hour,
		PerformanceDrawdownTrigger: 0.1,
	}, quickRunner(), fakeQuoteFetcher{price: 500})

	p := validProfile()
	p.CreatedAt = time.Now()
	p.InitialFunds = 1_000_000
	id, err := m.Create(context.Background(), p)
	require.NoError(t, err)

	state, err := repo.GetAgentRuntimeState(context.Background(), id)
	require.NoError(t, err)
	state.Cash = 600_000
	state.Holdings = map[string]domain.Holding{
		"2330": {Symbol: "2330", Quantity: 1000, AverageCost: 400},
	}
	require.NoError(t, repo.UpdateAgentRuntimeState(context.Background(), state))

	a.Tick(context.Background())

	changes, err := repo.ListStrategyChanges(context.Background(), id, repository.Page{})
	require.NoError(t, err)
	assert.Empty(t, changes, "mark-to-market value (600k cash + 500k holdings) should not trip a 10% drawdown trigger")
}

func TestAutoAdjuster_UsesMostRecentChangeForCadence(t *testing.T) {
	m, a, repo := newAutoAdjustHarness(t, AutoAdjustConfig{TimeCadence: time.Hour}, quickRunner())

	p := validProfile()
	p.CreatedAt = time.Now().Add(-72 * time.Hour)
	id, err := m.Create(context.Background(), p)
	require.NoError(t, err)

	_, err = repo.InsertStrategyChange(context.Background(), domain.StrategyChange{
		AgentID:     id,
		CreatedAt:   time.Now().Add(-70 * time.Hour),
		TriggerKind: domain.TriggerManual,
		Summary:     "stale change",
	})
	require.NoError(t, err)
	_, err = repo.InsertStrategyChange(context.Background(), domain.StrategyChange{
		AgentID:     id,
		CreatedAt:   time.Now().Add(-10 * time.Minute),
		TriggerKind: domain.TriggerManual,
		Summary:     "recent change",
	})
	require.NoError(t, err)

	a.Tick(context.Background())

	changes, err := repo.ListStrategyChanges(context.Background(), id, repository.Page{})
	require.NoError(t, err)
	// The 10-minutes-ago change is within the hour cadence, so no new
	// auto_time change should have been appended.
	require.Len(t, changes, 2)
}

func TestAutoAdjuster_SkipsRunningAgents(t *testing.T) {
	m, a, repo := newAutoAdjustHarness(t, AutoAdjustConfig{TimeCadence: time.Millisecond}, blockingRunner())

	p := validProfile()
	p.CreatedAt = time.Now().Add(-48 * time.Hour)
	id, err := m.Create(context.Background(), p)
	require.NoError(t, err)

	_, err = m.StartAgent(context.Background(), id, domain.ModeTrading, 2, "go")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		view, err := m.Get(id)
		return err == nil && view.State.Status == domain.StatusRunning
	}, time.Second, 5*time.Millisecond)

	a.Tick(context.Background())

	changes, err := repo.ListStrategyChanges(context.Background(), id, repository.Page{})
	require.NoError(t, err)
	assert.Empty(t, changes)

	_, _ = m.StopAgent(context.Background(), id)
}

