package liveview

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"servidores/api/internal/assignment"
	"servidores/api/internal/realtime"
	"servidores/api/internal/store"
)

const (
	inboxSize      = 64
	requestTimeout = 15 * time.Second
	awaitPoll      = 25 * time.Millisecond
)

type Options struct {
	Timing  Timing
	Clock   clockwork.Clock
	Logger  *zap.Logger
	ActorID string
	// OnWrite runs in the view loop after every successful action. It must not block.
	OnWrite func()
}

// View is one open panel. A single goroutine owns its State; every public method is a
// message to that goroutine.
type View struct {
	backend Backend
	clock   clockwork.Clock
	logger  *zap.Logger
	actorID string
	onWrite func()

	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc
	loop   chan struct{}
	work   sync.WaitGroup
	once   sync.Once

	state    atomic.Pointer[State]
	updates  chan struct{}
	lastUsed atomic.Int64

	// owned by the loop goroutine
	clears  map[string]clockwork.Timer
	refresh clockwork.Timer
}

func New(backend Backend, opts Options) *View {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	v := &View{
		backend: backend,
		clock:   opts.Clock,
		logger:  opts.Logger.Named("liveview"),
		actorID: opts.ActorID,
		onWrite: opts.OnWrite,
		inbox:   make(chan Msg, inboxSize),
		ctx:     ctx,
		cancel:  cancel,
		loop:    make(chan struct{}),
		updates: make(chan struct{}, 1),
		clears:  make(map[string]clockwork.Timer),
	}
	initial := NewState(opts.Timing)
	v.state.Store(&initial)
	v.touch()
	go v.run(initial)
	return v
}

func (v *View) run(s State) {
	defer close(v.loop)
	ticker := v.clock.NewTicker(s.Timing().RefreshInterval)
	defer ticker.Stop()

	step := func(msg Msg) {
		var effs []Effect
		s, effs = Reduce(s, msg, v.clock.Now())
		published := s
		v.state.Store(&published)
		for _, eff := range effs {
			v.perform(eff)
		}
		v.notify()
	}
	for {
		select {
		case <-v.ctx.Done():
			v.stopTimers()
			return
		case msg := <-v.inbox:
			step(msg)
		case <-ticker.Chan():
			step(Refresh{Quiet: true})
		}
	}
}

func (v *View) perform(eff Effect) {
	switch e := eff.(type) {
	case FetchPanel:
		v.spawn(func(ctx context.Context) Msg { return v.fetchPanel(ctx, e) })
	case FetchConfirmed:
		v.spawn(func(ctx context.Context) Msg {
			rows, err := v.backend.Confirmed(ctx, e.Scope)
			if err != nil {
				v.logger.Warn("confirmed read failed", zap.Stringer("scope", e.Scope), zap.Error(err))
			}
			return ConfirmedLoaded{Gen: e.Gen, Rows: rows, Err: err}
		})
	case FetchArchived:
		v.spawn(func(ctx context.Context) Msg {
			rows, err := v.backend.Archived(ctx, e.Scope)
			if err != nil {
				v.logger.Warn("archived read failed", zap.Stringer("scope", e.Scope), zap.Error(err))
			}
			return ArchivedLoaded{Gen: e.Gen, Rows: rows, Err: err}
		})
	case LookupMinimal:
		v.spawn(func(ctx context.Context) Msg {
			fields, err := v.backend.LookupMinimal(ctx, e.ItemID)
			if err != nil {
				v.logger.Warn("minimal lookup failed", zap.String("item_id", e.ItemID), zap.Error(err))
			}
			return MinimalLoaded{Gen: e.Gen, ItemID: e.ItemID, PersonID: e.PersonID, Fields: fields, Err: err}
		})
	case RunCommit:
		v.spawn(func(ctx context.Context) Msg {
			err := e.Command.Commit(ctx)
			if err != nil {
				v.logger.Warn("action failed", zap.String("action", string(e.Command.Action)),
					zap.String("item_id", e.Command.ItemID), zap.Error(err))
			}
			return Settled{Command: e.Command, Gen: e.Gen, Err: err, Reply: e.Reply}
		})
	case ScheduleClear:
		if t, ok := v.clears[e.ItemID]; ok {
			t.Stop()
		}
		v.clears[e.ItemID] = v.clock.AfterFunc(e.After, func() {
			v.send(ClearAnnotation{ItemID: e.ItemID, At: e.At})
		})
	case ScheduleRefresh:
		if v.refresh != nil {
			v.refresh.Stop()
		}
		v.refresh = v.clock.AfterFunc(e.After, func() { v.send(RefreshDue{Gen: e.Gen}) })
	case CancelTimers:
		v.stopTimers()
	case Reply:
		if e.To != nil {
			e.To <- e.Err
		}
	case Invalidate:
		if v.onWrite != nil {
			v.onWrite()
		}
	}
}

// fetchPanel issues the history and eligibility reads concurrently. Both always run to
// completion so each failure is reported on its own.
func (v *View) fetchPanel(ctx context.Context, e FetchPanel) Msg {
	var (
		g        errgroup.Group
		history  []store.HistoryRow
		eligible []store.EligibleRow
		hErr     error
		eErr     error
	)
	g.Go(func() error {
		history, hErr = v.backend.History(ctx, e.Scope)
		return nil
	})
	g.Go(func() error {
		eligible, eErr = v.backend.Eligible(ctx, e.Scope)
		return nil
	})
	_ = g.Wait()
	if err := multierr.Combine(hErr, eErr); err != nil {
		v.logger.Warn("panel read failed", zap.Stringer("scope", e.Scope), zap.Error(err))
	}
	return PanelLoaded{Gen: e.Gen, Seq: e.Seq, History: history, Eligible: eligible, HistoryErr: hErr, EligibleErr: eErr}
}

func (v *View) spawn(fn func(ctx context.Context) Msg) {
	v.work.Add(1)
	go func() {
		defer v.work.Done()
		ctx, cancel := context.WithTimeout(v.ctx, requestTimeout)
		defer cancel()
		v.send(fn(ctx))
	}()
}

func (v *View) stopTimers() {
	for id, t := range v.clears {
		t.Stop()
		delete(v.clears, id)
	}
	if v.refresh != nil {
		v.refresh.Stop()
		v.refresh = nil
	}
}

func (v *View) send(msg Msg) bool {
	select {
	case v.inbox <- msg:
		return true
	case <-v.ctx.Done():
		return false
	}
}

func (v *View) notify() {
	select {
	case v.updates <- struct{}{}:
	default:
	}
}

func (v *View) touch() {
	v.lastUsed.Store(v.clock.Now().UnixNano())
}

// LastUsed is the time of the most recent caller interaction.
func (v *View) LastUsed() time.Time {
	return time.Unix(0, v.lastUsed.Load())
}

// Updates receives a value after state changes. Bursts coalesce.
func (v *View) Updates() <-chan struct{} {
	return v.updates
}

// Snapshot returns the latest state with annotations evaluated now.
func (v *View) Snapshot() Snapshot {
	return v.state.Load().Snapshot(v.clock.Now())
}

func (v *View) SetScope(scope assignment.Scope) {
	v.touch()
	v.send(SetScope{Scope: scope})
}

func (v *View) ClearScope() {
	v.touch()
	v.send(ClearScope{})
}

func (v *View) Refresh(quiet bool) {
	v.touch()
	v.send(Refresh{Quiet: quiet})
}

// ApplyChangeEvent feeds one change notification to the view.
func (v *View) ApplyChangeEvent(ev realtime.Event) {
	v.send(Change{Event: ev})
}

// Follow forwards a subscription's events until it closes or the view does.
func (v *View) Follow(sub *realtime.Subscription) {
	v.work.Add(1)
	go func() {
		defer v.work.Done()
		defer sub.Close()
		for {
			select {
			case <-v.ctx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				if !v.send(Change{Event: ev}) {
					return
				}
			}
		}
	}()
}

// Await waits until every message sent before it has been reduced and no read is in
// flight, then returns the snapshot. A ctx that ends first returns the latest snapshot.
func (v *View) Await(ctx context.Context) (Snapshot, error) {
	if err := v.request(ctx, func(reply chan error) Msg { return Sync{Reply: reply} }); err != nil {
		return v.Snapshot(), err
	}
	poll := time.NewTicker(awaitPoll)
	defer poll.Stop()
	for {
		snap := v.Snapshot()
		if !snap.Busy {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-v.ctx.Done():
			return snap, ErrClosed
		case <-v.updates:
		case <-poll.C:
		}
	}
}

func (v *View) Select(ctx context.Context, itemID string) error {
	v.touch()
	return v.request(ctx, func(reply chan error) Msg { return Select{ItemID: itemID, Reply: reply} })
}

// Submit records a call outcome for itemID and returns once the backend has answered.
func (v *View) Submit(ctx context.Context, itemID string, outcome store.Outcome, notes string) error {
	return v.Execute(ctx, SubmitOutcome(v.backend, v.actorID, itemID, outcome, notes))
}

func (v *View) MarkAttendance(ctx context.Context, itemID string, attended bool) error {
	return v.Execute(ctx, MarkAttendance(v.backend, v.actorID, itemID, attended))
}

func (v *View) Reactivate(ctx context.Context, itemID, notes string) error {
	return v.Execute(ctx, ReactivateArchived(v.backend, v.actorID, itemID, notes))
}

// Execute runs an optimistic command. The returned error is the validation or state error
// from Apply, or an *ActionError once the change has been rolled back.
func (v *View) Execute(ctx context.Context, cmd *Command) error {
	v.touch()
	return v.request(ctx, func(reply chan error) Msg { return Apply{Command: cmd, Reply: reply} })
}

func (v *View) request(ctx context.Context, build func(chan error) Msg) error {
	reply := make(chan error, 1)
	if !v.send(build(reply)) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-v.ctx.Done():
		return ErrClosed
	}
}

// Close stops the loop, cancels in-flight reads and commits, and tears down every timer.
func (v *View) Close() {
	v.once.Do(func() {
		v.cancel()
		<-v.loop
		v.work.Wait()
	})
}
