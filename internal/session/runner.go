// Package session is the Session Runner (§4.5): it executes exactly one
// bounded reasoning session, gating the tool catalog by mode, driving the
// reasoner's tool-call stream, enforcing turn and wall-clock budgets, and
// producing a complete domain.Session record. A Runner owns no state
// beyond one invocation — reentrancy is "one instance per session," never
// a shared long-lived object (§4.5 "Reentrancy").
//
// Per the repository-porosity design note, the Runner never writes to the
// repository itself: only tool executors write transactions and strategy
// changes, and only the owning Supervisor persists the Session record this
// package returns.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/sacahan/casualtrader-go/internal/apperr"
	"github.com/sacahan/casualtrader-go/internal/composer"
	"github.com/sacahan/casualtrader-go/internal/domain"
	"github.com/sacahan/casualtrader-go/internal/eventbus"
	"github.com/sacahan/casualtrader-go/internal/modepolicy"
	"github.com/sacahan/casualtrader-go/internal/reasoner"
	"github.com/sacahan/casualtrader-go/internal/tool"
)

// RunInput is everything one session execution needs. Profile and
// RuntimeState are snapshots taken at start time; the Runner never mutates
// them directly, only through tool calls that themselves write via the
// repository.
type RunInput struct {
	SessionID       string
	AgentID         string
	Profile         domain.AgentProfile
	RuntimeState    domain.AgentRuntimeState
	Mode            domain.Mode
	StrategyChanges []domain.StrategyChange
	UserMessage     string
	TurnBudget      int
	WallClockBudget time.Duration
	ToolCallTimeout time.Duration
}

// Runner drives one reasoning session end to end.
type Runner struct {
	reasoner reasoner.Reasoner
	tools    *tool.Registry
	bus      *eventbus.Bus
	log      zerolog.Logger
	now      func() time.Time
}

// New builds a Runner. tools is the root catalog; Mode Policy narrows it to
// a per-session view before it is ever handed to the reasoner.
func New(r reasoner.Reasoner, tools *tool.Registry, bus *eventbus.Bus, log zerolog.Logger) *Runner {
	return &Runner{reasoner: r, tools: tools, bus: bus, log: log.With().Str("component", "session_runner").Logger(), now: time.Now}
}

// Run executes one session against in and returns the complete record.
// ctx's cancellation (whether from the caller's own deadline or an explicit
// Supervisor.Stop) ends the session with status Stopped; a turn-budget or
// wall-clock-budget breach also ends it Stopped per §7 "budget_exceeded ...
// session ends stopped, not failed." Only a reasoner or tool-adapter fault
// outside those paths produces status Failed.
func (r *Runner) Run(ctx context.Context, in RunInput) domain.Session {
	start := r.now()
	rec := domain.Session{
		ID:        in.SessionID,
		AgentID:   in.AgentID,
		Mode:      in.Mode,
		StartedAt: start,
		Status:    domain.SessionRunning,
	}

	mask := modepolicy.For(in.Mode)
	if mask == nil {
		rec.Status = domain.SessionFailed
		rec.Error = &domain.SessionError{Kind: string(apperr.KindValidation), Message: "unrecognized mode"}
		rec.EndedAt = r.now()
		return rec
	}
	view := r.tools.WithSubset(mask)
	instructions := composer.Compose(in.Profile, in.StrategyChanges)

	budget := in.WallClockBudget
	if budget <= 0 {
		budget = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	stream, err := r.reasoner.Start(runCtx, instructions, view.Descriptors(), in.UserMessage, reasoner.Budgets{MaxTurns: in.TurnBudget})
	if err != nil {
		rec.Status = domain.SessionFailed
		rec.Error = &domain.SessionError{Kind: string(apperr.KindInternal), Message: err.Error()}
		rec.EndedAt = r.now()
		return rec
	}
	defer stream.Close()

	r.publish(eventbus.SessionStarted, in.AgentID, in.SessionID, nil)

	for {
		ev, ok, err := stream.Next(runCtx)
		if err != nil {
			rec.Status = r.terminalStatusForErr(runCtx, err)
			if rec.Status == domain.SessionFailed {
				rec.Error = &domain.SessionError{Kind: string(apperr.KindInternal), Message: err.Error()}
			}
			break
		}
		if !ok {
			// Stream ended without a final message: treat as a clean stop.
			rec.Status = domain.SessionStopped
			break
		}

		switch ev.Kind {
		case reasoner.EventToolCallStarted:
			if in.TurnBudget > 0 && rec.Turns >= in.TurnBudget {
				rec.Status = domain.SessionStopped
				r.publish(eventbus.SessionStopped, in.AgentID, in.SessionID, map[string]interface{}{"reason": "turn_budget_exceeded"})
				goto done
			}
			rec.Turns++
			inv, result := r.invokeTool(runCtx, in, view, ev)
			rec.Invocations = append(rec.Invocations, inv)
			r.publish(eventbus.ToolInvoked, in.AgentID, in.SessionID, map[string]interface{}{"tool": inv.Tool, "success": inv.Success})

			if err := stream.Reply(runCtx, ev.ToolCallID, result); err != nil {
				rec.Status = domain.SessionFailed
				rec.Error = &domain.SessionError{Kind: string(apperr.KindInternal), Message: err.Error()}
				goto done
			}

		case reasoner.EventFinal:
			rec.Status = domain.SessionCompleted
			rec.FinalOutput = ev.FinalText
			goto done
		}
	}

done:
	rec.EndedAt = r.now()
	switch rec.Status {
	case domain.SessionCompleted:
		r.publish(eventbus.SessionCompleted, in.AgentID, in.SessionID, nil)
	case domain.SessionFailed:
		r.publish(eventbus.SessionFailed, in.AgentID, in.SessionID, map[string]interface{}{"error": errMessage(rec.Error)})
	case domain.SessionStopped:
		r.publish(eventbus.SessionStopped, in.AgentID, in.SessionID, nil)
	}
	return rec
}

func errMessage(e *domain.SessionError) string {
	if e == nil {
		return ""
	}
	return e.Message
}

// terminalStatusForErr distinguishes a cancelled/budget-exceeded stream
// break (Stopped) from a genuine reasoner fault (Failed).
func (r *Runner) terminalStatusForErr(ctx context.Context, err error) domain.SessionStatus {
	if ctx.Err() != nil {
		return domain.SessionStopped
	}
	return domain.SessionFailed
}

// invokeTool looks up and executes one tool call, converting any lookup or
// execution fault into a Result the reasoner can react to rather than
// letting it escape as a Go error, per §7's propagation policy.
func (r *Runner) invokeTool(ctx context.Context, in RunInput, view *tool.Registry, ev reasoner.Event) (domain.ToolInvocation, tool.Result) {
	started := r.now()
	inv := domain.ToolInvocation{Tool: ev.ToolName, Input: json.RawMessage(ev.Arguments), StartedAt: started}

	t, ok := view.Get(ev.ToolName)
	if !ok {
		result := tool.Err(apperr.New(apperr.KindNotFound, "tool not available in current mode"))
		inv.Success = false
		inv.Error = result.Error.Message
		inv.Latency = r.now().Sub(started)
		return inv, result
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if in.ToolCallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, in.ToolCallTimeout)
		defer cancel()
	}
	callCtx = tool.WithScope(callCtx, in.AgentID, in.SessionID)

	result := t.Execute(callCtx, ev.Arguments)
	inv.Latency = r.now().Sub(started)
	inv.Success = result.OK
	if result.OK {
		inv.Output = result.Data
	} else if result.Error != nil {
		inv.Error = result.Error.Message
	}
	return inv, result
}

func (r *Runner) publish(t eventbus.Type, agentID, sessionID string, payload map[string]interface{}) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: t, AgentID: agentID, SessionID: sessionID, Payload: payload})
}
