// Package eventbus is the fan-out of lifecycle, tool-invocation, portfolio,
// strategy-change, and error events described in §4.8, grounded directly on
// the teacher's internal/events.Manager (a struct plus a typed EventType
// enum and an Emit method), generalized from the teacher's log-only
// emission into genuine multi-subscriber fan-out: at-most-once, unordered
// across subscribers, a slow subscriber dropped rather than blocking
// publishers.
package eventbus

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Type enumerates the event kinds from §4.8.
type Type string

const (
	AgentCreated           Type = "agent_created"
	AgentDeleted           Type = "agent_deleted"
	AgentStatusChanged     Type = "agent_status_changed"
	SessionStarted         Type = "session_started"
	SessionCompleted       Type = "session_completed"
	SessionFailed          Type = "session_failed"
	SessionStopped         Type = "session_stopped"
	ToolInvoked            Type = "tool_invoked"
	TransactionRecorded    Type = "transaction_recorded"
	StrategyChangeRecorded Type = "strategy_change_recorded"
	PortfolioSnapshot      Type = "portfolio_snapshot"
	Error                  Type = "error"
)

// Event is the minimal schema every event shares, per §4.8.
type Event struct {
	Type      Type                   `json:"type"`
	AgentID   string                 `json:"agent_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// subscriber is one buffered delivery channel plus bookkeeping to detect a
// full (slow) consumer.
type subscriber struct {
	id  uint64
	ch  chan Event
}

// Bus is the multi-producer, multi-consumer fan-out. The repository remains
// the system of record; Bus delivery is best-effort and never persisted.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	nextID      uint64
	bufferSize  int
	nowFunc     func() time.Time
	log         zerolog.Logger
}

// New builds an empty Bus. bufferSize is the per-subscriber channel
// capacity; a subscriber whose channel is full when Publish tries to send
// is disconnected rather than allowed to block the publisher.
func New(bufferSize int, log zerolog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		subscribers: make(map[uint64]*subscriber),
		bufferSize:  bufferSize,
		nowFunc:     time.Now,
		log:         log.With().Str("component", "eventbus").Logger(),
	}
}

// Subscribe registers a new subscriber and returns its delivery channel and
// an unsubscribe function. The channel is closed once unsubscribe runs.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{id: id, ch: make(chan Event, b.bufferSize)}
	b.subscribers[id] = sub

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(s.ch)
		}
	}
	return sub.ch, unsubscribe
}

// Publish fans an event out to every current subscriber, assigning
// Timestamp if unset. A subscriber whose buffer is full is disconnected
// immediately (its channel closed) rather than blocking this call, per §5's
// "drop-subscriber-on-overflow."
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.nowFunc()
	}

	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	var stale []uint64
	for _, s := range targets {
		select {
		case s.ch <- ev:
		default:
			stale = append(stale, s.id)
		}
	}
	if len(stale) > 0 {
		b.mu.Lock()
		for _, id := range stale {
			if s, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(s.ch)
			}
		}
		b.mu.Unlock()
		b.log.Warn().Int("count", len(stale)).Str("event_type", string(ev.Type)).Msg("disconnected slow subscriber(s)")
	}
}

// SubscriberCount reports the current number of live subscribers, mostly
// for tests and the /health surface.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
