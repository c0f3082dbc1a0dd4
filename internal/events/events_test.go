package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-ordering/internal/events"
	"ms-ordering/internal/logger"
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
	err    error
	block  chan struct{}
}

func (s *recordingSink) Publish(_ context.Context, e events.Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) received() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.events...)
}

func TestNewEncodesPayload(t *testing.T) {
	e, err := events.New(events.OrderNew, "branch-1", "session-1", map[string]int{"order_number": 7})
	require.NoError(t, err)
	assert.Equal(t, events.OrderNew, e.Type)
	assert.False(t, e.Timestamp.IsZero())

	var payload map[string]int
	require.NoError(t, json.Unmarshal(e.Payload, &payload))
	assert.Equal(t, 7, payload["order_number"])

	_, err = events.New(events.OrderNew, "branch-1", "", make(chan int))
	assert.Error(t, err)
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	first := &recordingSink{}
	failing := &recordingSink{err: errors.New("broker down")}
	d := events.NewDispatcher(logger.NewTestLogger(), 8, first, failing)
	d.Start()

	events.Emit(d, events.OrderNew, "branch-1", "", map[string]string{"id": "o-1"})
	events.Emit(d, events.OrderCancelled, "branch-1", "", map[string]string{"id": "o-1"})
	d.Close()

	require.Len(t, first.received(), 2)
	assert.Equal(t, events.OrderCancelled, first.received()[1].Type)
	assert.Len(t, failing.received(), 2)

	// Emitting after Close is ignored.
	events.Emit(d, events.OrderNew, "branch-1", "", nil)
	assert.Len(t, first.received(), 2)
}

func TestDispatcherNeverBlocksCaller(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := events.NewDispatcher(logger.NewTestLogger(), 1, sink)
	d.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			events.Emit(d, events.OrderNew, "branch-1", "", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a stalled sink")
	}

	close(sink.block)
	d.Close()
	assert.NotEmpty(t, sink.received())
	assert.Less(t, len(sink.received()), 50)
}

func TestEmitWithNilPublisher(t *testing.T) {
	assert.NotPanics(t, func() {
		events.Emit(nil, events.OrderNew, "branch-1", "", nil)
		events.Discard{}.Emit(events.Event{})
	})
}

func TestBroadcasterRoutesByBranchAndSession(t *testing.T) {
	b := events.NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())

	kitchen := b.SubscribeBranch(ctx, "branch-1")
	otherKitchen := b.SubscribeBranch(ctx, "branch-2")
	table := b.SubscribeSession(ctx, "session-1")
	assert.Equal(t, 1, b.BranchClientCount("branch-1"))
	assert.Equal(t, 1, b.SessionClientCount("session-1"))

	e, err := events.New(events.OrderNew, "branch-1", "session-1", nil)
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), e))

	assert.Equal(t, events.OrderNew, (<-kitchen).Type)
	assert.Equal(t, events.OrderNew, (<-table).Type)
	select {
	case <-otherKitchen:
		t.Fatal("event leaked to another branch")
	default:
	}

	cancel()
	assert.Eventually(t, func() bool {
		return b.BranchClientCount("branch-1") == 0 && b.SessionClientCount("session-1") == 0
	}, time.Second, 10*time.Millisecond)

	_, open := <-kitchen
	assert.False(t, open)
}

func TestBroadcasterSkipsSlowClients(t *testing.T) {
	b := events.NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.SubscribeBranch(ctx, "branch-1")
	e, _ := events.New(events.OrderNew, "branch-1", "", nil)
	for i := 0; i < 25; i++ {
		require.NoError(t, b.Publish(ctx, e))
	}
	assert.Len(t, ch, 10)
}
