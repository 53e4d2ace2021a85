package liveview

import (
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"servidores/api/internal/assignment"
)

// State is owned by a view's loop goroutine. Reduce never mutates the State it is given.
type State struct {
	Scope      assignment.Scope
	HasScope   bool
	Generation uint64

	Items     []PendingItem
	Confirmed []ConfirmedItem
	Archived  []ArchivedItem
	Selected  string
	Loading   bool

	// Reactivated maps a just-reactivated item id to the time its "new" tag expires.
	Reactivated map[string]time.Time

	FetchErrors map[Read]*FetchError
	ActionError *ActionError

	timing         Timing
	panelSeq       uint64
	panelApplied   uint64
	refreshPending bool
	lookups        map[string]bool

	confirmedPending bool
	archivedPending  bool
}

func NewState(timing Timing) State {
	return State{timing: timing.withDefaults()}
}

func (s State) clone() State {
	s.Items = slices.Clone(s.Items)
	s.Confirmed = slices.Clone(s.Confirmed)
	s.Archived = slices.Clone(s.Archived)
	s.Reactivated = maps.Clone(s.Reactivated)
	s.FetchErrors = maps.Clone(s.FetchErrors)
	s.lookups = maps.Clone(s.lookups)
	return s
}

func (s State) Timing() Timing {
	return s.timing
}

func (s State) indexOf(id string) int {
	return slices.IndexFunc(s.Items, func(p PendingItem) bool { return p.ItemID == id })
}

func (s State) confirmedIndex(id string) int {
	return slices.IndexFunc(s.Confirmed, func(c ConfirmedItem) bool { return c.ItemID == id })
}

func (s State) archivedIndex(id string) int {
	return slices.IndexFunc(s.Archived, func(a ArchivedItem) bool { return a.ItemID == id })
}

// effective returns the annotation as observed at now: a tag past its TTL reads none.
func (s State) effective(p PendingItem, now time.Time) Annotation {
	if p.Annotation == "" || p.Annotation == AnnotationNone {
		return AnnotationNone
	}
	if now.Sub(p.AnnotatedAt) >= s.timing.ttl(p.Annotation) {
		return AnnotationNone
	}
	return p.Annotation
}

func (s *State) setFetchError(read Read, err error) {
	if s.FetchErrors == nil {
		s.FetchErrors = make(map[Read]*FetchError)
	}
	s.FetchErrors[read] = &FetchError{Read: read, Err: err}
}

func (s *State) clearFetchError(reads ...Read) {
	for _, r := range reads {
		delete(s.FetchErrors, r)
	}
}

// reactivatedTag consumes a still-valid reactivation tag for id.
func (s *State) reactivatedTag(id string, now time.Time) bool {
	expires, ok := s.Reactivated[id]
	if !ok {
		return false
	}
	delete(s.Reactivated, id)
	return now.Before(expires)
}

func (s *State) pruneReactivated(now time.Time) {
	for id, expires := range s.Reactivated {
		if !now.Before(expires) {
			delete(s.Reactivated, id)
		}
	}
}

// removeItem drops id from Items and clears the selection if it pointed at it.
func (s *State) removeItem(id string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.Items = slices.Delete(s.Items, i, i+1)
	if s.Selected == id {
		s.Selected = ""
	}
	return true
}

// busy reports whether any read issued for the current generation has not landed yet.
func (s State) busy() bool {
	return s.panelApplied < s.panelSeq || s.confirmedPending || s.archivedPending
}

// Snapshot copies the state with annotations evaluated at now.
func (s State) Snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		Scope:       s.Scope,
		HasScope:    s.HasScope,
		Generation:  s.Generation,
		Items:       make([]PendingItem, len(s.Items)),
		Confirmed:   slices.Clone(s.Confirmed),
		Archived:    slices.Clone(s.Archived),
		Selected:    s.Selected,
		Loading:     s.Loading,
		Busy:        s.busy(),
		ActionError: s.ActionError,
		At:          now,
	}
	for i, item := range s.Items {
		item.Annotation = s.effective(item, now)
		if item.Annotation == AnnotationNone {
			item.AnnotatedAt = time.Time{}
		}
		snap.Items[i] = item
	}
	if snap.Confirmed == nil {
		snap.Confirmed = []ConfirmedItem{}
	}
	if snap.Archived == nil {
		snap.Archived = []ArchivedItem{}
	}
	for id, expires := range s.Reactivated {
		if now.Before(expires) {
			snap.Reactivated = append(snap.Reactivated, id)
		}
	}
	sort.Strings(snap.Reactivated)
	for _, read := range []Read{ReadHistory, ReadEligibility, ReadConfirmed, ReadArchived, ReadLookup} {
		if fe, ok := s.FetchErrors[read]; ok {
			snap.FetchErrors = append(snap.FetchErrors, fe)
		}
	}
	return snap
}

// sortItems orders by display name under Spanish collation, then by id.
func sortItems(items []PendingItem) {
	c := collate.New(language.Spanish, collate.IgnoreCase)
	slices.SortStableFunc(items, func(a, b PendingItem) int {
		if n := c.CompareString(a.Name, b.Name); n != 0 {
			return n
		}
		return strings.Compare(a.ItemID, b.ItemID)
	})
}

// insertSorted inserts item keeping Items name-sorted.
func insertSorted(items []PendingItem, item PendingItem) []PendingItem {
	c := collate.New(language.Spanish, collate.IgnoreCase)
	i := slices.IndexFunc(items, func(p PendingItem) bool {
		n := c.CompareString(item.Name, p.Name)
		return n < 0 || (n == 0 && item.ItemID < p.ItemID)
	})
	if i < 0 {
		return append(items, item)
	}
	return slices.Insert(items, i, item)
}
