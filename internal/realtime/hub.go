package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"servidores/api/internal/util"
)

const subscriberBuffer = 64

// Filter selects events by table. An empty filter receives everything. Subscribed
// markers are always delivered.
type Filter struct {
	Tables []string
}

func (f Filter) accepts(ev Event) bool {
	if ev.Kind == KindSubscribed || len(f.Tables) == 0 {
		return true
	}
	for _, t := range f.Tables {
		if t == ev.Table {
			return true
		}
	}
	return false
}

type Subscription struct {
	id     string
	filter Filter
	ch     chan Event
	done   chan struct{}
	hub    *Hub
	once   sync.Once
	// lagged is set when an event was dropped and cleared once a resync marker is queued.
	lagged atomic.Bool
}

func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes and closes the event channel. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub is an in-process fan-out of change events. Publishing never blocks: a subscriber
// whose buffer is full misses the event, and the next publish that finds room queues a
// KindSubscribed marker first so the subscriber knows to resync.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]*Subscription)}
}

func (h *Hub) Subscribe(ctx context.Context, filter Filter) *Subscription {
	sub := &Subscription{
		id:     util.NewID("sub"),
		filter: filter,
		ch:     make(chan Event, subscriberBuffer),
		done:   make(chan struct{}),
		hub:    h,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.shut()
		return sub
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub
}

func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.lagged.Load() {
			select {
			case sub.ch <- Event{Kind: KindSubscribed, At: time.Now()}:
				sub.lagged.Store(false)
			default:
				continue
			}
		}
		if !sub.filter.accepts(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.lagged.Store(true)
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close drops all subscribers and closes their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.closed = true
	h.mu.Unlock()

	for _, sub := range subs {
		sub.shut()
	}
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()
	sub.shut()
}

func (s *Subscription) shut() {
	s.once.Do(func() {
		close(s.ch)
		close(s.done)
	})
}
