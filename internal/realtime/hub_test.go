package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestHubFiltersByTable(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ctx := context.Background()
	progress := hub.Subscribe(ctx, Filter{Tables: []string{TableProgress}})
	all := hub.Subscribe(ctx, Filter{})

	hub.Publish(Event{Table: TableAttendance, Kind: KindInsert})
	hub.Publish(Event{Table: TableProgress, Kind: KindUpdate})

	assert.Equal(t, TableProgress, receive(t, progress).Table)
	assert.Equal(t, TableAttendance, receive(t, all).Table)
	assert.Equal(t, TableProgress, receive(t, all).Table)
}

func TestHubAlwaysDeliversSubscribed(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	sub := hub.Subscribe(context.Background(), Filter{Tables: []string{TablePeople}})
	hub.Publish(Event{Kind: KindSubscribed})
	assert.Equal(t, KindSubscribed, receive(t, sub).Kind)
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	sub := hub.Subscribe(context.Background(), Filter{})
	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Publish(Event{Table: TableProgress, Kind: KindUpdate})
	}
	assert.Len(t, sub.ch, subscriberBuffer)
	assert.True(t, sub.lagged.Load())
}

func TestHubResyncsSubscriberAfterDrop(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	sub := hub.Subscribe(context.Background(), Filter{Tables: []string{TableProgress}})
	for i := 0; i <= subscriberBuffer; i++ {
		hub.Publish(Event{Table: TableProgress, Kind: KindUpdate})
	}
	for i := 0; i < subscriberBuffer; i++ {
		receive(t, sub)
	}

	// the marker is queued even when the event itself is filtered out
	hub.Publish(Event{Table: TableAttendance, Kind: KindInsert})
	assert.Equal(t, KindSubscribed, receive(t, sub).Kind)
	assert.False(t, sub.lagged.Load())

	hub.Publish(Event{Table: TableProgress, Kind: KindInsert})
	assert.Equal(t, KindInsert, receive(t, sub).Kind)
	assert.Empty(t, sub.ch)
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub := hub.Subscribe(ctx, Filter{})
	require.Equal(t, 1, hub.Len())

	cancel()
	require.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-sub.Events()
	assert.False(t, ok)

	sub.Close()
}

func TestSubscribeAfterCloseIsClosed(t *testing.T) {
	hub := NewHub()
	hub.Close()

	sub := hub.Subscribe(context.Background(), Filter{})
	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Len())
	hub.Publish(Event{Table: TableProgress, Kind: KindInsert})
}
