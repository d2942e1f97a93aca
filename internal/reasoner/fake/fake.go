// Package fake provides a deterministic, scripted reasoner.Reasoner for
// tests, grounded on the teacher's hand-written fakes (e.g. the mock
// Tradernet/currency clients in the teacher's service tests) rather than a
// generated mock: a Script names the tool calls to emit, in order, followed
// by a final message, and Next simply replays it.
package fake

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/sacahan/casualtrader-go/internal/reasoner"
	"github.com/sacahan/casualtrader-go/internal/tool"
)

// Call is one scripted tool invocation.
type Call struct {
	Name string
	Args json.RawMessage
}

// Script is the fixed sequence of tool calls a fake session will issue,
// followed by FinalText once every call has been answered.
type Script struct {
	Calls     []Call
	FinalText string
}

// Reasoner replays the same Script for every session it starts. Safe for
// concurrent Start calls; each returns an independent Stream.
type Reasoner struct {
	script Script
}

// New builds a fake Reasoner that will replay script for every session.
func New(script Script) *Reasoner {
	return &Reasoner{script: script}
}

func (r *Reasoner) Start(ctx context.Context, instructions string, tools []tool.Descriptor, userMessage string, budgets reasoner.Budgets) (reasoner.Stream, error) {
	return &stream{script: r.script, tools: toolNames(tools)}, nil
}

func toolNames(descs []tool.Descriptor) map[string]bool {
	names := make(map[string]bool, len(descs))
	for _, d := range descs {
		names[d.Name] = true
	}
	return names
}

type stream struct {
	mu        sync.Mutex
	script    Script
	tools     map[string]bool
	pos       int
	awaiting  string // toolCallID awaiting Reply
	finalSent bool
	closed    bool
}

func (s *stream) Next(ctx context.Context) (reasoner.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return reasoner.Event{}, false, errors.New("fake reasoner: stream closed")
	}
	if s.awaiting != "" {
		return reasoner.Event{}, false, errors.New("fake reasoner: prior tool call not yet answered")
	}

	if s.pos < len(s.script.Calls) {
		call := s.script.Calls[s.pos]
		s.pos++
		id := call.Name
		s.awaiting = id
		if !s.tools[call.Name] {
			// The mode masked this tool out; the reasoner still "calls" it
			// per the script, and the Session Runner's lookup will fail it.
		}
		return reasoner.Event{Kind: reasoner.EventToolCallStarted, ToolCallID: id, ToolName: call.Name, Arguments: call.Args}, true, nil
	}

	if !s.finalSent {
		s.finalSent = true
		return reasoner.Event{Kind: reasoner.EventFinal, FinalText: s.script.FinalText}, true, nil
	}

	return reasoner.Event{}, false, nil
}

func (s *stream) Reply(ctx context.Context, toolCallID string, result tool.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awaiting != toolCallID {
		return errors.New("fake reasoner: reply does not match the outstanding tool call")
	}
	s.awaiting = ""
	return nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
