package tool

import "context"

// ctxKey scopes the values the session runner injects before each Execute
// call: tools never take an agent or session ID as an input field, since
// the reasoner is never trusted to supply them.
type ctxKey string

const (
	ctxAgentID   ctxKey = "agent_id"
	ctxSessionID ctxKey = "session_id"
)

// WithScope returns a context carrying the agent and session a tool call is
// executing on behalf of.
func WithScope(ctx context.Context, agentID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, ctxAgentID, agentID)
	ctx = context.WithValue(ctx, ctxSessionID, sessionID)
	return ctx
}

// AgentIDFromContext returns the agent ID injected by WithScope, or "" if none.
func AgentIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxAgentID).(string)
	return v
}

// SessionIDFromContext returns the session ID injected by WithScope, or "" if none.
func SessionIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxSessionID).(string)
	return v
}
