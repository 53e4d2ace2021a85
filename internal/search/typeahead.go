package search

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Lookup runs one remote search.
type Lookup interface {
	Search(ctx context.Context, q Query) (Response, error)
}

// Results is what a Typeahead delivers for the latest query. Err is set, and People empty,
// when the lookup failed.
type Results struct {
	Query  string
	People []Person
	Cached bool
	Err    error
}

type TypeaheadOptions struct {
	Clock     clockwork.Clock
	Debounce  time.Duration
	CacheTTL  time.Duration
	MinLength int
	Limit     int
}

// Typeahead debounces keystrokes into lookups and caches successful responses by
// normalised query.
type Typeahead struct {
	lookup    Lookup
	cache     *Cache
	clock     clockwork.Clock
	debounce  time.Duration
	minLength int
	limit     int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	timer   clockwork.Timer
	seq     uint64
	closed  bool
	results chan Results
}

func NewTypeahead(lookup Lookup, opts TypeaheadOptions) *Typeahead {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 350 * time.Millisecond
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 60 * time.Second
	}
	if opts.MinLength <= 0 {
		opts.MinLength = 3
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Typeahead{
		lookup:    lookup,
		cache:     NewCache(opts.Clock, opts.CacheTTL),
		clock:     opts.Clock,
		debounce:  opts.Debounce,
		minLength: opts.MinLength,
		limit:     opts.Limit,
		ctx:       ctx,
		cancel:    cancel,
		results:   make(chan Results, 1),
	}
}

// Results delivers the outcome of the most recent query. Only the latest undelivered
// value is kept.
func (t *Typeahead) Results() <-chan Results {
	return t.results
}

// Type records a keystroke. Any pending lookup is superseded.
func (t *Typeahead) Type(query string) {
	normalized := Normalize(query)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.seq++
	seq := t.seq

	if len([]rune(normalized)) < t.minLength {
		t.emitLocked(Results{Query: normalized, People: []Person{}})
		return
	}
	t.timer = t.clock.AfterFunc(t.debounce, func() { t.fire(seq, normalized) })
}

// Clear drops every cached response. Writers call it after a mutation that may change
// search results.
func (t *Typeahead) Clear() {
	t.cache.Clear()
}

// Close cancels pending work and closes the results channel.
func (t *Typeahead) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
	close(t.results)
}

func (t *Typeahead) fire(seq uint64, query string) {
	t.mu.Lock()
	if t.closed || seq != t.seq {
		t.mu.Unlock()
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()

	if people, ok := t.cache.Get(query); ok {
		t.emit(seq, Results{Query: query, People: people, Cached: true})
		return
	}

	resp, err := t.lookup.Search(t.ctx, Query{Text: query, Limit: t.limit})
	if err != nil {
		t.emit(seq, Results{Query: query, People: []Person{}, Err: err})
		return
	}
	t.cache.Set(query, resp.Results)
	t.emit(seq, Results{Query: query, People: resp.Results})
}

func (t *Typeahead) emit(seq uint64, r Results) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || seq != t.seq {
		return
	}
	t.emitLocked(r)
}

func (t *Typeahead) emitLocked(r Results) {
	select {
	case t.results <- r:
		return
	default:
	}
	select {
	case <-t.results:
	default:
	}
	t.results <- r
}
