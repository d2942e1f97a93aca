package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacahan/casualtrader-go/internal/domain"
	"github.com/sacahan/casualtrader-go/internal/eventbus"
	"github.com/sacahan/casualtrader-go/internal/reasoner"
	"github.com/sacahan/casualtrader-go/internal/reasoner/fake"
	"github.com/sacahan/casualtrader-go/internal/tool"
)

func baseInput(sessionID string, mode domain.Mode) RunInput {
	return RunInput{
		SessionID: sessionID,
		AgentID:   "agent-1",
		Profile: domain.AgentProfile{
			ID:            "agent-1",
			Name:          "Test Agent",
			RiskTolerance: 0.5,
			EnabledTools:  map[string]bool{},
		},
		Mode:            mode,
		UserMessage:     "go",
		TurnBudget:      5,
		WallClockBudget: time.Minute,
		ToolCallTimeout: time.Second,
	}
}

func TestRun_CompletesWithFinalMessageOnly(t *testing.T) {
	reg := tool.NewRegistry(zerolog.Nop())
	bus := eventbus.New(8, zerolog.Nop())
	r := New(fake.New(fake.Script{FinalText: "done, no trades"}), reg, bus, zerolog.Nop())

	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	rec := r.Run(context.Background(), baseInput("sess-1", domain.ModeObservation))

	assert.Equal(t, domain.SessionCompleted, rec.Status)
	assert.Equal(t, "done, no trades", rec.FinalOutput)
	assert.Equal(t, 0, rec.Turns)
	assert.False(t, rec.EndedAt.IsZero())

	seen := drain(events)
	assertHasType(t, seen, eventbus.SessionStarted)
	assertHasType(t, seen, eventbus.SessionCompleted)
}

func TestRun_InvokesToolThenCompletes(t *testing.T) {
	reg := tool.NewRegistry(zerolog.Nop())
	reg.Register(recordingTool{name: "calculate_technical_indicators"})
	bus := eventbus.New(8, zerolog.Nop())

	script := fake.Script{
		Calls:     []fake.Call{{Name: "calculate_technical_indicators", Args: json.RawMessage(`{"symbol":"2330"}`)}},
		FinalText: "analysis complete",
	}
	r := New(fake.New(script), reg, bus, zerolog.Nop())

	rec := r.Run(context.Background(), baseInput("sess-2", domain.ModeTrading))

	require.Equal(t, domain.SessionCompleted, rec.Status)
	assert.Equal(t, 1, rec.Turns)
	require.Len(t, rec.Invocations, 1)
	assert.Equal(t, "calculate_technical_indicators", rec.Invocations[0].Tool)
	assert.True(t, rec.Invocations[0].Success)
}

func TestRun_TurnBudgetExceededStopsNotFails(t *testing.T) {
	reg := tool.NewRegistry(zerolog.Nop())
	reg.Register(recordingTool{name: "calculate_technical_indicators"})
	bus := eventbus.New(8, zerolog.Nop())

	script := fake.Script{
		Calls: []fake.Call{
			{Name: "calculate_technical_indicators", Args: json.RawMessage(`{}`)},
			{Name: "calculate_technical_indicators", Args: json.RawMessage(`{}`)},
		},
		FinalText: "should never be reached",
	}
	r := New(fake.New(script), reg, bus, zerolog.Nop())

	in := baseInput("sess-3", domain.ModeTrading)
	in.TurnBudget = 1

	rec := r.Run(context.Background(), in)

	assert.Equal(t, domain.SessionStopped, rec.Status)
	assert.Equal(t, 1, rec.Turns)
	assert.Empty(t, rec.FinalOutput)
}

func TestRun_ModeMaskDeniesOutOfScopeTool(t *testing.T) {
	reg := tool.NewRegistry(zerolog.Nop())
	reg.Register(recordingTool{name: "simulate_buy"})
	bus := eventbus.New(8, zerolog.Nop())

	script := fake.Script{
		Calls:     []fake.Call{{Name: "simulate_buy", Args: json.RawMessage(`{}`)}},
		FinalText: "observation pass complete",
	}
	r := New(fake.New(script), reg, bus, zerolog.Nop())

	rec := r.Run(context.Background(), baseInput("sess-4", domain.ModeObservation))

	require.Equal(t, domain.SessionCompleted, rec.Status)
	require.Len(t, rec.Invocations, 1)
	assert.False(t, rec.Invocations[0].Success)
	assert.Contains(t, rec.Invocations[0].Error, "not available in current mode")
}

func TestRun_UnrecognizedModeFailsImmediately(t *testing.T) {
	reg := tool.NewRegistry(zerolog.Nop())
	bus := eventbus.New(8, zerolog.Nop())
	r := New(fake.New(fake.Script{FinalText: "unreachable"}), reg, bus, zerolog.Nop())

	rec := r.Run(context.Background(), baseInput("sess-5", domain.Mode("NOT_A_MODE")))

	assert.Equal(t, domain.SessionFailed, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "unrecognized mode", rec.Error.Message)
}

func TestRun_ParentCancellationStopsSession(t *testing.T) {
	reg := tool.NewRegistry(zerolog.Nop())
	bus := eventbus.New(8, zerolog.Nop())
	r := New(blockingReasoner{}, reg, bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := r.Run(ctx, baseInput("sess-6", domain.ModeTrading))

	assert.Equal(t, domain.SessionStopped, rec.Status)
}

// recordingTool is a pure stand-in used to exercise the Runner's tool-call
// plumbing without depending on the gateway or a repository.
type recordingTool struct {
	name string
}

func (t recordingTool) Name() string                      { return t.name }
func (t recordingTool) Description() string                { return "test tool" }
func (t recordingTool) SideEffect() tool.SideEffect         { return tool.Pure }
func (t recordingTool) InputSchema() *jsonschema.Schema     { return nil }
func (t recordingTool) Execute(ctx context.Context, raw json.RawMessage) tool.Result {
	return tool.Ok(map[string]interface{}{"received": string(raw)})
}

// blockingReasoner's stream blocks on Next until ctx is done, exercising the
// parent-cancellation and wall-clock-timeout paths without a real timer.
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

func drain(ch <-chan eventbus.Event) []eventbus.Event {
	var out []eventbus.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func assertHasType(t *testing.T, events []eventbus.Event, typ eventbus.Type) {
	t.Helper()
	for _, ev := range events {
		if ev.Type == typ {
			return
		}
	}
	t.Fatalf("expected an event of type %q, got %+v", typ, events)
}
