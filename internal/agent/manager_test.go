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
	"github.com/sacahan/casualtrader-go/internal/reasoner/fake"
	"github.com/sacahan/casualtrader-go/internal/repository/memory"
	"github.com/sacahan/casualtrader-go/internal/session"
	"github.com/sacahan/casualtrader-go/internal/tool"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	repo := memory.New()
	bus := eventbus.New(8, zerolog.Nop())
	reg := tool.NewRegistry(zerolog.Nop())
	runner := session.New(fake.New(fake.Script{FinalText: "no action"}), reg, bus, zerolog.Nop())
	cfg := Config{DefaultTurnBudget: 3, SessionWallClockBudget: time.Second, ToolCallTimeout: time.Second, StopGrace: time.Second}
	return New(repo, runner, bus, cfg, zerolog.Nop())
}

func validProfile() domain.AgentProfile {
	return domain.AgentProfile{
		Name:          "Momentum Scout",
		InitialFunds:  1_000_000,
		MaxTurns:      10,
		RiskTolerance: 0.5,
		EnabledTools:  map[string]bool{"get_stock_price": true},
	}
}

func TestManager_CreateAssignsIDAndIdleState(t *testing.T) {
	m := testManager(t)
	id, err := m.Create(context.Background(), validProfile())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	view, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, view.State.Status)
	assert.Equal(t, 1_000_000.0, view.State.Cash)
	assert.Equal(t, domain.ModeObservation, view.State.Mode)
}

func TestManager_CreateRejectsInvalidProfile(t *testing.T) {
	m := testManager(t)
	cases := []struct {
		name    string
		mutate  func(p *domain.AgentProfile)
	}{
		{"missing name", func(p *domain.AgentProfile) { p.Name = "" }},
		{"non-positive funds", func(p *domain.AgentProfile) { p.InitialFunds = 0 }},
		{"non-positive max turns", func(p *domain.AgentProfile) { p.MaxTurns = 0 }},
		{"risk tolerance too high", func(p *domain.AgentProfile) { p.RiskTolerance = 1.5 }},
		{"risk tolerance negative", func(p *domain.AgentProfile) { p.RiskTolerance = -0.1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validProfile()
			tc.mutate(&p)
			_, err := m.Create(context.Background(), p)
			assert.Error(t, err)
		})
	}
}

func TestManager_DeleteRemovesAgent(t *testing.T) {
	m := testManager(t)
	id, err := m.Create(context.Background(), validProfile())
	require.NoError(t, err)

	require.NoError(t, m.Delete(context.Background(), id))

	_, err = m.Get(id)
	assert.Error(t, err)
}

func TestManager_ListOrdersByID(t *testing.T) {
	m := testManager(t)
	id1, err := m.Create(context.Background(), validProfile())
	require.NoError(t, err)
	p2 := validProfile()
	p2.Name = "Second Agent"
	id2, err := m.Create(context.Background(), p2)
	require.NoError(t, err)

	views := m.List()
	require.Len(t, views, 2)
	ids := []string{views[0].Profile.ID, views[1].Profile.ID}
	assert.ElementsMatch(t, []string{id1, id2}, ids)
	assert.Less(t, views[0].Profile.ID, views[1].Profile.ID)
}

func TestManager_StartRunsSessionToCompletion(t *testing.T) {
	m := testManager(t)
	id, err := m.Create(context.Background(), validProfile())
	require.NoError(t, err)

	sessionID, err := m.StartAgent(context.Background(), id, domain.ModeTrading, 2, "go")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	assert.Eventually(t, func() bool {
		view, err := m.Get(id)
		return err == nil && view.State.Status == domain.StatusIdle
	}, time.Second, 5*time.Millisecond)
}

func TestManager_SetAgentModeRejectsUnknownMode(t *testing.T) {
	m := testManager(t)
	id, err := m.Create(context.Background(), validProfile())
	require.NoError(t, err)

	err = m.SetAgentMode(id, domain.Mode("NOT_A_MODE"))
	assert.Error(t, err)
}

func TestManager_UpdateAgentProfilePersists(t *testing.T) {
	m := testManager(t)
	id, err := m.Create(context.Background(), validProfile())
	require.NoError(t, err)

	newDesc := "Rebalances weekly."
	err = m.UpdateAgentProfile(context.Background(), id, ProfileUpdate{Description: &newDesc})
	require.NoError(t, err)

	view, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, newDesc, view.Profile.Description)
}

func TestManager_GetUnknownAgentFails(t *testing.T) {
	m := testManager(t)
	_, err := m.Get("does-not-exist")
	assert.Error(t, err)
}
