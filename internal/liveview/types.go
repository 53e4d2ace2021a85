// Package liveview keeps a caller's pending-call list consistent with the database while
// full refreshes, optimistic actions and change notifications interleave.
package liveview

import (
	"context"
	"time"

	"servidores/api/internal/assignment"
	"servidores/api/internal/store"
)

type Annotation string

const (
	AnnotationNone    Annotation = "none"
	AnnotationNew     Annotation = "new"
	AnnotationChanged Annotation = "changed"
)

// PendingItem is a person awaiting a follow-up call in the current scope.
type PendingItem struct {
	ItemID      string                            `json:"itemId"`
	PersonID    string                            `json:"personId,omitempty"`
	Name        string                            `json:"name"`
	Contact     string                            `json:"contact,omitempty"`
	Outcomes    [store.OutcomeSlots]store.Outcome `json:"outcomes"`
	Annotation  Annotation                        `json:"annotation"`
	AnnotatedAt time.Time                         `json:"-"`
}

func (p PendingItem) sameFields(o PendingItem) bool {
	return p.Name == o.Name && p.Contact == o.Contact && p.Outcomes == o.Outcomes
}

type ConfirmedItem struct {
	ItemID  string `json:"itemId"`
	Name    string `json:"name"`
	Contact string `json:"contact,omitempty"`
	Week    int    `json:"week"`
}

type ArchivedItem struct {
	ItemID     string    `json:"itemId"`
	PersonID   string    `json:"personId"`
	Name       string    `json:"name"`
	Contact    string    `json:"contact,omitempty"`
	StageBase  string    `json:"stageBase"`
	Module     int       `json:"module,omitempty"`
	Week       int       `json:"week,omitempty"`
	Day        string    `json:"day"`
	ArchivedAt time.Time `json:"archivedAt"`
}

// Backend is the data contract the view reads and writes through.
type Backend interface {
	History(ctx context.Context, scope assignment.Scope) ([]store.HistoryRow, error)
	Eligible(ctx context.Context, scope assignment.Scope) ([]store.EligibleRow, error)
	Confirmed(ctx context.Context, scope assignment.Scope) ([]store.ConfirmedRow, error)
	Archived(ctx context.Context, scope assignment.Scope) ([]store.ArchivedRow, error)
	RecordOutcome(ctx context.Context, itemID string, scope assignment.Scope, outcome store.Outcome, notes, actorID string) error
	RecordAttendance(ctx context.Context, itemID string, attended bool, actorID string) error
	Reactivate(ctx context.Context, req store.ReactivateRequest) error
	LookupMinimal(ctx context.Context, id string) (store.MinimalFields, error)
}

// Timing holds the view's delays.
type Timing struct {
	NewTTL          time.Duration
	ChangedTTL      time.Duration
	RefreshDebounce time.Duration
	ReactivationTTL time.Duration
	// RefreshInterval is the period of the background quiet refresh that catches
	// anything the change feed missed.
	RefreshInterval time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		NewTTL:          6 * time.Second,
		ChangedTTL:      3 * time.Second,
		RefreshDebounce: 150 * time.Millisecond,
		ReactivationTTL: 2 * time.Minute,
		RefreshInterval: 5 * time.Minute,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.NewTTL <= 0 {
		t.NewTTL = d.NewTTL
	}
	if t.ChangedTTL <= 0 {
		t.ChangedTTL = d.ChangedTTL
	}
	if t.RefreshDebounce <= 0 {
		t.RefreshDebounce = d.RefreshDebounce
	}
	if t.ReactivationTTL <= 0 {
		t.ReactivationTTL = d.ReactivationTTL
	}
	if t.RefreshInterval <= 0 {
		t.RefreshInterval = d.RefreshInterval
	}
	return t
}

func (t Timing) ttl(a Annotation) time.Duration {
	switch a {
	case AnnotationNew:
		return t.NewTTL
	case AnnotationChanged:
		return t.ChangedTTL
	default:
		return 0
	}
}

// Snapshot is an immutable copy of a view's state with annotations evaluated at At.
type Snapshot struct {
	Scope      assignment.Scope
	HasScope   bool
	Generation uint64
	Items      []PendingItem
	Confirmed  []ConfirmedItem
	Archived   []ArchivedItem
	Selected   string
	Loading    bool
	// Busy is set while any read for the current scope is in flight.
	Busy        bool
	Reactivated []string
	FetchErrors []*FetchError
	ActionError *ActionError
	At          time.Time
}

// Item returns the pending item with id, if present.
func (s Snapshot) Item(id string) (PendingItem, bool) {
	for _, item := range s.Items {
		if item.ItemID == id {
			return item, true
		}
	}
	return PendingItem{}, false
}
