package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversEventsToSubscriber(t *testing.T) {
	b := newBus()
	events, cancel := b.subscribe("term-1")
	defer cancel()

	b.publish(Event{Name: "terminal-output", TerminalID: "term-1", Seq: 1, Text: "hi"})

	select {
	case evt := <-events:
		assert.Equal(t, uint64(1), evt.Seq)
		assert.Equal(t, "hi", evt.Text)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusIgnoresOtherTerminals(t *testing.T) {
	b := newBus()
	events, cancel := b.subscribe("term-1")
	defer cancel()

	b.publish(Event{Name: "terminal-output", TerminalID: "term-2", Seq: 1, Text: "other"})

	select {
	case evt := <-events:
		t.Fatalf("unexpected event for wrong terminal: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	b := newBus()
	events, cancel := b.subscribe("term-1")
	cancel()

	_, ok := <-events
	assert.False(t, ok)
}

func TestSanitizeEventName(t *testing.T) {
	assert.Equal(t, "session_feature_x_top", sanitizeEventName("session feature.x top"))
	assert.Equal(t, "a-b/c:d_e", sanitizeEventName("a-b/c:d e"))
}
