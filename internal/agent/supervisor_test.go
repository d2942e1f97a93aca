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
	"github.com/sacahan/casualtrader-go/internal/reasoner"
	"github.com/sacahan/casualtrader-go/internal/reasoner/fake"
	"github.com/sacahan/casualtrader-go/internal/repository/memory"
	"github.com/sacahan/casualtrader-go/internal/session"
	"github.com/sacahan/casualtrader-go/internal/tool"
)

func newTestSupervisor(t *testing.T, runner *session.Runner) (*Supervisor, *memory.Store) {
	t.Helper()
	repo := memory.New()
	profile := validProfile()
	profile.ID = "agent-sup-1"
	require.NoError(t, repo.InsertAgentProfile(context.Background(), profile))
	state := domain.AgentRuntimeState{
		AgentID:        profile.ID,
		Mode:           domain.ModeObservation,
		Status:         domain.StatusIdle,
		Cash:           profile.InitialFunds,
		Holdings:       make(map[string]domain.Holding),
		LastActivityAt: time.Now(),
	}
	require.NoError(t, repo.UpdateAgentRuntimeState(context.Background(), state))
	cfg := Config{DefaultTurnBudget: 3, SessionWallClockBudget: time.Second, ToolCallTimeout: time.Second, StopGrace: 50 * time.Millisecond}
	sup := newSupervisor(profile, state, repo, runner, eventbus.New(8, zerolog.Nop()), cfg, zerolog.Nop())
	return sup, repo
}

func quickRunner() *session.Runner {
	reg := tool.NewRegistry(zerolog.Nop())
	bus := eventbus.New(8, zerolog.Nop())
	return session.New(fake.New(fake.Script{FinalText: "done"}), reg, bus, zerolog.Nop())
}

func blockingRunner() *session.Runner {
	reg := tool.NewRegistry(zerolog.Nop())
	bus := eventbus.New(8, zerolog.Nop())
	return session.New(blockingReasoner{}, reg, bus, zerolog.Nop())
}

func TestSupervisor_StartThenIdlesOnCompletion(t *testing.T) {
	sup, _ := newTestSupervisor(t, quickRunner())

	sessionID, err := sup.Start(context.Background(), domain.ModeTrading, 2, "go")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	assert.Eventually(t, func() bool {
		return sup.Snapshot().Status == domain.StatusIdle
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.ModeTrading, sup.Snapshot().Mode)
}

func TestSupervisor_StartRejectedWhenNotIdle(t *testing.T) {
	sup, _ := newTestSupervisor(t, blockingRunner())

	_, err := sup.Start(context.Background(), domain.ModeTrading, 2, "go")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return sup.Snapshot().Status == domain.StatusRunning
	}, time.Second, 5*time.Millisecond)

	_, err = sup.Start(context.Background(), domain.ModeTrading, 2, "go again")
	assert.Error(t, err)

	_, _ = sup.Stop(context.Background())
}

func TestSupervisor_StartRejectsUnrecognizedMode(t *testing.T) {
	sup, _ := newTestSupervisor(t, quickRunner())
	_, err := sup.Start(context.Background(), domain.Mode("NOT_A_MODE"), 2, "go")
	assert.Error(t, err)
}

func TestSupervisor_StopOnIdleIsNoOp(t *testing.T) {
	sup, _ := newTestSupervisor(t, quickRunner())
	status, err := sup.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, status)
}

func TestSupervisor_StopCancelsRunningSession(t *testing.T) {
	sup, _ := newTestSupervisor(t, blockingRunner())

	_, err := sup.Start(context.Background(), domain.ModeTrading, 2, "go")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return sup.Snapshot().Status == domain.StatusRunning
	}, time.Second, 5*time.Millisecond)

	status, err := sup.Stop(context.Background())
	require.NoError(t, err)
	assert.Contains(t, []domain.AgentStatus{domain.StatusIdle, domain.StatusError}, status)
}

func TestSupervisor_SetModeRejectedWhileRunning(t *testing.T) {
	sup, _ := newTestSupervisor(t, blockingRunner())

	_, err := sup.Start(context.Background(), domain.ModeTrading, 2, "go")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return sup.Snapshot().Status == domain.StatusRunning
	}, time.Second, 5*time.Millisecond)

	err = sup.SetMode(domain.ModeObservation)
	assert.Error(t, err)

	_, _ = sup.Stop(context.Background())
}

func TestSupervisor_SetModeAppliesWhenIdle(t *testing.T) {
	sup, _ := newTestSupervisor(t, quickRunner())
	require.NoError(t, sup.SetMode(domain.ModeRebalancing))
	assert.Equal(t, domain.ModeRebalancing, sup.Snapshot().Mode)
}

func TestSupervisor_UpdateProfileRejectedWhileRunning(t *testing.T) {
	sup, _ := newTestSupervisor(t, blockingRunner())

	_, err := sup.Start(context.Background(), domain.ModeTrading, 2, "go")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return sup.Snapshot().Status == domain.StatusRunning
	}, time.Second, 5*time.Millisecond)

	desc := "new description"
	err = sup.UpdateProfile(ProfileUpdate{Description: &desc})
	assert.Error(t, err)

	_, _ = sup.Stop(context.Background())
}

func TestSupervisor_UpdateProfileAppliesWhenIdle(t *testing.T) {
	sup, _ := newTestSupervisor(t, quickRunner())
	desc := "new description"
	require.NoError(t, sup.UpdateProfile(ProfileUpdate{Description: &desc}))
	assert.Equal(t, desc, sup.Profile().Description)
}

// blockingReasoner never emits a final message until ctx is cancelled,
// exercising Start-while-running and Stop's cancellation path.
type blockingReasoner struct{}

func (blockingReasoner) Start(ctx context.Context, instructions string, tools []tool.Descriptor, userMessage string, budgets reasoner.Budgets) (reasoner.Stream, error) {
	return blockingStream{}, nil
}

type blockingStream struct{}

func (blockingStream) Next(ctx context.Context) (reasoner.Event, bool, error) {
	<-ctx.Done()
	return reasoner.Event{}, false, ctx.Err()
}
func (blockingStream) Reply(ctx context.Context, toolCallID string, result tool.Result) error {
	return nil
}
func (blockingStream) Close() error { return nil }
