package liveview

import (
	"time"

	"servidores/api/internal/assignment"
	"servidores/api/internal/realtime"
	"servidores/api/internal/store"
)

// Msg is an input to Reduce.
type Msg interface{ msg() }

// SetScope replaces the view's scope, discarding everything held for the previous one.
type SetScope struct{ Scope assignment.Scope }

// ClearScope leaves the view without a scope; it renders empty.
type ClearScope struct{}

// Refresh reloads the pending list. A non-quiet refresh also reloads the confirmed and
// archived lists and raises Loading.
type Refresh struct{ Quiet bool }

// RefreshDue fires when the change-event debounce window closes.
type RefreshDue struct{ Gen uint64 }

type PanelLoaded struct {
	Gen, Seq    uint64
	History     []store.HistoryRow
	Eligible    []store.EligibleRow
	HistoryErr  error
	EligibleErr error
}

type ConfirmedLoaded struct {
	Gen  uint64
	Rows []store.ConfirmedRow
	Err  error
}

type ArchivedLoaded struct {
	Gen  uint64
	Rows []store.ArchivedRow
	Err  error
}

// Change carries one change notification.
type Change struct{ Event realtime.Event }

type MinimalLoaded struct {
	Gen      uint64
	ItemID   string
	PersonID string
	Fields   store.MinimalFields
	Err      error
}

// Select opens an item; an empty ItemID clears the selection.
type Select struct {
	ItemID string
	Reply  chan error
}

// ClearAnnotation is sent by an annotation timer. It only clears the annotation that was
// set at At.
type ClearAnnotation struct {
	ItemID string
	At     time.Time
}

// Apply runs a command's optimistic step.
type Apply struct {
	Command *Command
	Reply   chan error
}

// Settled reports a command's commit result.
type Settled struct {
	Command *Command
	Gen     uint64
	Err     error
	Reply   chan error
}

func (SetScope) msg()        {}
func (ClearScope) msg()      {}
func (Refresh) msg()         {}
func (RefreshDue) msg()      {}
func (PanelLoaded) msg()     {}
func (ConfirmedLoaded) msg() {}
func (ArchivedLoaded) msg()  {}
func (Change) msg()          {}
func (MinimalLoaded) msg()   {}
func (Select) msg()          {}
func (ClearAnnotation) msg() {}
func (Apply) msg()           {}
func (Settled) msg()         {}

// Sync changes nothing. Its reply marks that every earlier message has been reduced.
type Sync struct{ Reply chan error }

func (Sync) msg() {}

// Effect is work Reduce asks the runtime to perform.
type Effect interface{ effect() }

// FetchPanel reads history and eligibility concurrently.
type FetchPanel struct {
	Gen, Seq uint64
	Scope    assignment.Scope
}

type FetchConfirmed struct {
	Gen   uint64
	Scope assignment.Scope
}

type FetchArchived struct {
	Gen   uint64
	Scope assignment.Scope
}

type LookupMinimal struct {
	Gen      uint64
	ItemID   string
	PersonID string
}

// ScheduleClear arms the annotation timer for ItemID, replacing any earlier one.
type ScheduleClear struct {
	ItemID string
	At     time.Time
	After  time.Duration
}

type ScheduleRefresh struct {
	Gen   uint64
	After time.Duration
}

// CancelTimers stops every timer the view owns.
type CancelTimers struct{}

type RunCommit struct {
	Command *Command
	Gen     uint64
	Reply   chan error
}

type Reply struct {
	To  chan error
	Err error
}

// Invalidate tells the runtime a write succeeded, so dependent caches can be dropped.
type Invalidate struct{}

func (FetchPanel) effect()      {}
func (FetchConfirmed) effect()  {}
func (FetchArchived) effect()   {}
func (LookupMinimal) effect()   {}
func (ScheduleClear) effect()   {}
func (ScheduleRefresh) effect() {}
func (CancelTimers) effect()    {}
func (RunCommit) effect()       {}
func (Reply) effect()           {}
func (Invalidate) effect()      {}
