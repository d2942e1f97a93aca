// Package reasoner describes the external LLM adapter as a contract, not a
// concrete provider: an asynchronous stream of tool calls terminated by a
// final message, narrowed to what a tool-using reasoning loop needs and
// simplified away from any concrete transport (OpenAI, litellm, ...), which
// stays out of scope.
package reasoner

import (
	"context"
	"encoding/json"

	"github.com/sacahan/casualtrader-go/internal/tool"
)

// EventKind discriminates the three event shapes a reasoning stream emits.
type EventKind string

const (
	EventToolCallStarted   EventKind = "tool_call_started"
	EventToolCallCompleted EventKind = "tool_call_completed"
	EventFinal             EventKind = "final"
)

// Event is one item from a reasoner's stream. Exactly the fields matching
// Kind are populated; callers switch on Kind before reading the rest.
type Event struct {
	Kind EventKind

	// EventToolCallStarted / EventToolCallCompleted
	ToolCallID string
	ToolName   string
	Arguments  json.RawMessage

	// EventFinal
	FinalText string
}

// Budgets bounds one reasoning session. It mirrors only the Session Runner's
// turn limit; the wall-clock budget is not passed here. The Session Runner
// enforces both limits itself.
type Budgets struct {
	MaxTurns int
}

// Reasoner is the injected external collaborator: it consumes composed
// instructions, the tool descriptors visible in the current mode, and an
// optional user message, and emits a stream of Events. The Session Runner
// answers every EventToolCallStarted with a tool result via Reply before
// requesting the next event.
type Reasoner interface {
	// Start begins a session and returns a Stream to read from.
	Start(ctx context.Context, instructions string, tools []tool.Descriptor, userMessage string, budgets Budgets) (Stream, error)
}

// Stream is one reasoning session's event channel plus the reply sink the
// Session Runner uses to answer tool calls. Implementations must not
// produce a new Event until the prior EventToolCallStarted has been
// answered via Reply, matching §5's "tool calls are sequenced by the
// reasoner's stream."
type Stream interface {
	// Next blocks until the next Event is available, ctx is cancelled, or
	// the stream ends (io.EOF-shaped via the returned bool).
	Next(ctx context.Context) (Event, bool, error)

	// Reply answers the most recently emitted EventToolCallStarted with the
	// tool's {ok, data, error} result.
	Reply(ctx context.Context, toolCallID string, result tool.Result) error

	// Close releases any resources the stream holds; safe to call more
	// than once.
	Close() error
}
