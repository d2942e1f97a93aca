package eventbus

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_FansOutToAllSubscribers(t *testing.T) {
	bus := New(8, zerolog.Nop())
	ch1, unsub1 := bus.Subscribe()
	defer unsub1()
	ch2, unsub2 := bus.Subscribe()
	defer unsub2()

	bus.Publish(Event{Type: AgentCreated, AgentID: "agent-1"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, AgentCreated, ev.Type)
			assert.Equal(t, "agent-1", ev.AgentID)
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out delivery")
		}
	}
}

func TestPublish_DropsSlowSubscriberOnOverflow(t *testing.T) {
	bus := New(1, zerolog.Nop())
	ch, _ := bus.Subscribe()

	bus.Publish(Event{Type: AgentCreated})
	bus.Publish(Event{Type: AgentDeleted}) // channel full, subscriber dropped

	require.Eventually(t, func() bool { return bus.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)

	// The buffered first event is still readable, but the channel is closed
	// once drained.
	first := <-ch
	assert.Equal(t, AgentCreated, first.Type)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	bus := New(4, zerolog.Nop())
	ch, unsub := bus.Subscribe()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestSubscriberCount_TracksActiveSubscribers(t *testing.T) {
	bus := New(4, zerolog.Nop())
	assert.Equal(t, 0, bus.SubscriberCount())

	_, unsub1 := bus.Subscribe()
	assert.Equal(t, 1, bus.SubscriberCount())

	_, unsub2 := bus.Subscribe()
	assert.Equal(t, 2, bus.SubscriberCount())

	unsub1()
	assert.Equal(t, 1, bus.SubscriberCount())
	unsub2()
	assert.Equal(t, 0, bus.SubscriberCount())
}
