package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDeliversToSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)
	require.Equal(t, 1, b.SubscriberCount())

	b.Publish(&Event{Type: EventNoteDispatched, Stem: "EMAIL_x_20250601120000"})

	select {
	case ev := <-sub:
		assert.Equal(t, EventNoteDispatched, ev.Type)
		assert.Equal(t, "EMAIL_x_20250601120000", ev.Stem)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBrokerPublishNeverBlocks(t *testing.T) {
	b := NewBroker()
	// Broker not started: the buffer fills, further publishes drop.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			b.Publish(&Event{Type: EventNoteDeferred})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full buffer")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	b.Unsubscribe(sub)
	_, open := <-sub
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())
}
