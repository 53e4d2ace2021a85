package liveview

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"servidores/api/internal/assignment"
	"servidores/api/internal/realtime"
)

type RegistryOptions struct {
	Timing  Timing
	IdleTTL time.Duration
	Clock   clockwork.Clock
	Logger  *zap.Logger
	OnWrite func()
}

type registryEntry struct {
	view     *View
	scope    assignment.Scope
	hasScope bool

	// push serialises scope sends to the view; sent is the last scope delivered.
	push    sync.Mutex
	sent    assignment.Scope
	hasSent bool
	pushed  bool
}

// Registry holds one View per signed-in user and closes views nobody has used for IdleTTL.
type Registry struct {
	backend Backend
	hub     *realtime.Hub
	opts    RegistryOptions
	logger  *zap.Logger

	mu    sync.Mutex
	views map[string]*registryEntry
}

func NewRegistry(backend Backend, hub *realtime.Hub, opts RegistryOptions) *Registry {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	return &Registry{
		backend: backend,
		hub:     hub,
		opts:    opts,
		logger:  opts.Logger.Named("registry"),
		views:   make(map[string]*registryEntry),
	}
}

// Open returns the user's view, creating it on first use. A view whose scope differs from
// scope is moved to it; hasScope false leaves the view empty. The scope is delivered after
// the registry lock is released, so a busy view only delays its own user.
func (r *Registry) Open(userID string, scope assignment.Scope, hasScope bool) *View {
	r.mu.Lock()
	entry, ok := r.views[userID]
	if ok {
		entry.view.touch()
		if entry.hasScope != hasScope || entry.scope != scope {
			entry.scope, entry.hasScope = scope, hasScope
			r.logger.Info("view scope changed", zap.String("user_id", userID), zap.Stringer("scope", scope))
		}
	} else {
		view := New(r.backend, Options{
			Timing:  r.opts.Timing,
			Clock:   r.opts.Clock,
			Logger:  r.opts.Logger,
			ActorID: userID,
			OnWrite: r.opts.OnWrite,
		})
		if r.hub != nil {
			view.Follow(r.hub.Subscribe(view.ctx, realtime.Filter{}))
		}
		entry = &registryEntry{view: view, scope: scope, hasScope: hasScope}
		r.views[userID] = entry
		r.logger.Info("view opened", zap.String("user_id", userID), zap.Bool("has_scope", hasScope))
	}
	r.mu.Unlock()

	r.applyScope(entry)
	return entry.view
}

// applyScope sends the entry's latest recorded scope unless the view already has it.
func (r *Registry) applyScope(entry *registryEntry) {
	entry.push.Lock()
	defer entry.push.Unlock()

	r.mu.Lock()
	scope, hasScope := entry.scope, entry.hasScope
	r.mu.Unlock()

	if entry.pushed && entry.hasSent == hasScope && entry.sent == scope {
		return
	}
	if hasScope {
		entry.view.SetScope(scope)
	} else {
		entry.view.ClearScope()
	}
	entry.sent, entry.hasSent, entry.pushed = scope, hasScope, true
}

func (r *Registry) Get(userID string) (*View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.views[userID]
	if !ok {
		return nil, false
	}
	entry.view.touch()
	return entry.view, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Sweep closes every view idle for at least IdleTTL and returns how many were closed.
func (r *Registry) Sweep() int {
	now := r.opts.Clock.Now()
	r.mu.Lock()
	var idle []*View
	for userID, entry := range r.views {
		if now.Sub(entry.view.LastUsed()) >= r.opts.IdleTTL {
			idle = append(idle, entry.view)
			delete(r.views, userID)
			r.logger.Info("closing idle view", zap.String("user_id", userID))
		}
	}
	r.mu.Unlock()

	for _, view := range idle {
		view.Close()
	}
	return len(idle)
}

// Run sweeps idle views until ctx ends.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.opts.IdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := r.opts.Clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			r.Sweep()
		}
	}
}

// Close closes every view.
func (r *Registry) Close() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, entry := range views {
		entry.view.Close()
	}
}
