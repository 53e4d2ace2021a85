package liveview

import (
	"slices"
	"time"

	"servidores/api/internal/assignment"
	"servidores/api/internal/realtime"
)

// Reduce applies msg to s at time now. It is pure: the returned effects describe all
// I/O and timers, and s itself is left untouched.
func Reduce(s State, msg Msg, now time.Time) (State, []Effect) {
	base := s
	s = s.clone()

	switch m := msg.(type) {
	case SetScope:
		next := base.reset(&m.Scope)
		effs := []Effect{CancelTimers{}, next.panelFetch(), next.confirmedFetch(), next.archivedFetch()}
		return next, effs
	case ClearScope:
		return base.reset(nil), []Effect{CancelTimers{}}
	case Refresh:
		effs := s.refresh(m.Quiet)
		return s, effs
	case RefreshDue:
		if m.Gen != s.Generation || !s.HasScope {
			return base, nil
		}
		s.refreshPending = false
		effs := []Effect{s.panelFetch(), s.confirmedFetch()}
		return s, effs
	case PanelLoaded:
		if m.Gen != s.Generation || m.Seq <= s.panelApplied {
			return base, nil
		}
		effs := s.panelLoaded(m, now)
		return s, effs
	case ConfirmedLoaded:
		if m.Gen != s.Generation {
			return base, nil
		}
		s.confirmedLoaded(m)
		return s, nil
	case ArchivedLoaded:
		if m.Gen != s.Generation {
			return base, nil
		}
		s.archivedLoaded(m)
		return s, nil
	case Change:
		effs := s.change(m.Event)
		return s, effs
	case MinimalLoaded:
		if m.Gen != s.Generation {
			return base, nil
		}
		effs := s.minimalLoaded(m, now)
		return s, effs
	case Select:
		err := s.selectItem(m.ItemID)
		return s, []Effect{Reply{To: m.Reply, Err: err}}
	case ClearAnnotation:
		if i := s.indexOf(m.ItemID); i >= 0 && s.Items[i].AnnotatedAt.Equal(m.At) {
			s.Items[i].Annotation = AnnotationNone
			s.Items[i].AnnotatedAt = time.Time{}
			return s, nil
		}
		return base, nil
	case Apply:
		next, err := m.Command.Apply(s, now)
		if err != nil {
			return base, []Effect{Reply{To: m.Reply, Err: err}}
		}
		next.ActionError = nil
		return next, []Effect{RunCommit{Command: m.Command, Gen: next.Generation, Reply: m.Reply}}
	case Settled:
		return s.settled(m)
	case Sync:
		return base, []Effect{Reply{To: m.Reply}}
	}
	return base, nil
}

// reset discards everything held for the current scope and moves to a new generation,
// so results still in flight for the old scope are dropped on arrival.
func (s State) reset(scope *assignment.Scope) State {
	next := NewState(s.timing)
	next.Generation = s.Generation + 1
	if scope != nil {
		next.Scope = *scope
		next.HasScope = true
		next.Loading = true
	}
	return next
}

func (s *State) panelFetch() Effect {
	s.panelSeq++
	return FetchPanel{Gen: s.Generation, Seq: s.panelSeq, Scope: s.Scope}
}

func (s *State) confirmedFetch() Effect {
	s.confirmedPending = true
	return FetchConfirmed{Gen: s.Generation, Scope: s.Scope}
}

func (s *State) archivedFetch() Effect {
	s.archivedPending = true
	return FetchArchived{Gen: s.Generation, Scope: s.Scope}
}

func (s *State) refresh(quiet bool) []Effect {
	if !s.HasScope {
		return nil
	}
	if quiet {
		return []Effect{s.panelFetch()}
	}
	s.Loading = true
	return []Effect{s.panelFetch(), s.confirmedFetch(), s.archivedFetch()}
}

// scheduleRefresh opens a debounce window unless one is already open; events arriving
// inside it share the refresh that closes it.
func (s *State) scheduleRefresh() []Effect {
	if s.refreshPending {
		return nil
	}
	s.refreshPending = true
	return []Effect{ScheduleRefresh{Gen: s.Generation, After: s.timing.RefreshDebounce}}
}

func (s *State) annotate(item *PendingItem, a Annotation, now time.Time) Effect {
	item.Annotation = a
	item.AnnotatedAt = now
	return ScheduleClear{ItemID: item.ItemID, At: now, After: s.timing.ttl(a)}
}

func (s *State) panelLoaded(m PanelLoaded, now time.Time) []Effect {
	s.panelApplied = m.Seq
	if m.Seq == s.panelSeq {
		s.Loading = false
	}

	if m.HistoryErr != nil || m.EligibleErr != nil {
		s.clearFetchError(ReadHistory, ReadEligibility)
		if m.HistoryErr != nil {
			s.setFetchError(ReadHistory, m.HistoryErr)
		}
		if m.EligibleErr != nil {
			s.setFetchError(ReadEligibility, m.EligibleErr)
		}
		s.Items = []PendingItem{}
		s.Selected = ""
		return nil
	}
	s.clearFetchError(ReadHistory, ReadEligibility)
	s.pruneReactivated(now)

	eligible := make(map[string]struct{}, len(m.Eligible))
	for _, row := range m.Eligible {
		eligible[row.ItemID] = struct{}{}
	}
	prev := make(map[string]PendingItem, len(s.Items))
	for _, item := range s.Items {
		prev[item.ItemID] = item
	}

	var effs []Effect
	items := make([]PendingItem, 0, len(m.History))
	seen := make(map[string]struct{}, len(m.History))
	for _, row := range m.History {
		if _, ok := eligible[row.ItemID]; !ok {
			continue
		}
		if _, dup := seen[row.ItemID]; dup {
			continue
		}
		seen[row.ItemID] = struct{}{}

		item := PendingItem{
			ItemID:     row.ItemID,
			PersonID:   row.PersonID,
			Name:       row.Name,
			Contact:    row.Contact,
			Outcomes:   row.Outcomes,
			Annotation: AnnotationNone,
		}
		old, existed := prev[row.ItemID]
		switch {
		case s.reactivatedTag(row.ItemID, now), !existed:
			effs = append(effs, s.annotate(&item, AnnotationNew, now))
		case !item.sameFields(old):
			effs = append(effs, s.annotate(&item, AnnotationChanged, now))
		case s.effective(old, now) != AnnotationNone:
			item.Annotation = old.Annotation
			item.AnnotatedAt = old.AnnotatedAt
		}
		items = append(items, item)
	}
	sortItems(items)
	s.Items = items
	if s.Selected != "" && s.indexOf(s.Selected) < 0 {
		s.Selected = ""
	}
	return effs
}

func (s *State) confirmedLoaded(m ConfirmedLoaded) {
	s.confirmedPending = false
	if m.Err != nil {
		s.setFetchError(ReadConfirmed, m.Err)
		s.Confirmed = []ConfirmedItem{}
		return
	}
	s.clearFetchError(ReadConfirmed)
	s.Confirmed = make([]ConfirmedItem, 0, len(m.Rows))
	for _, row := range m.Rows {
		s.Confirmed = append(s.Confirmed, ConfirmedItem{ItemID: row.ItemID, Name: row.Name, Contact: row.Contact, Week: row.Week})
	}
}

func (s *State) archivedLoaded(m ArchivedLoaded) {
	s.archivedPending = false
	if m.Err != nil {
		s.setFetchError(ReadArchived, m.Err)
		s.Archived = []ArchivedItem{}
		return
	}
	s.clearFetchError(ReadArchived)
	s.Archived = make([]ArchivedItem, 0, len(m.Rows))
	for _, row := range m.Rows {
		s.Archived = append(s.Archived, ArchivedItem{
			ItemID:     row.ItemID,
			PersonID:   row.PersonID,
			Name:       row.Name,
			Contact:    row.Contact,
			StageBase:  row.StageBase,
			Module:     row.Module,
			Week:       row.Week,
			Day:        row.Day,
			ArchivedAt: row.ArchivedAt,
		})
	}
}

func (s *State) change(ev realtime.Event) []Effect {
	if !s.HasScope {
		return nil
	}
	if ev.Kind == realtime.KindSubscribed {
		return []Effect{s.panelFetch()}
	}
	if ev.Table != realtime.TableProgress {
		return s.scheduleRefresh()
	}

	before, after, err := ev.Progress()
	if err != nil {
		return s.scheduleRefresh()
	}
	var id string
	switch {
	case after != nil:
		id = after.ID
	case before != nil:
		id = before.ID
	default:
		return s.scheduleRefresh()
	}
	present := s.indexOf(id) >= 0

	if ev.Kind == realtime.KindDelete {
		s.supersedeLookup(id)
		s.removeItem(id)
		if i := s.confirmedIndex(id); i >= 0 {
			s.Confirmed = slices.Delete(s.Confirmed, i, i+1)
		}
		if i := s.archivedIndex(id); i >= 0 {
			s.Archived = slices.Delete(s.Archived, i, i+1)
		}
		return nil
	}

	afterMatch := after != nil && s.Scope.Matches(after.Placement())
	if !afterMatch {
		s.supersedeLookup(id)
	}
	beforeMatch := false
	switch {
	case before != nil:
		beforeMatch = s.Scope.Matches(before.Placement())
	case ev.Kind == realtime.KindUpdate:
		// no previous image: trust what is held locally
		beforeMatch = present
	}

	switch {
	case afterMatch && !beforeMatch:
		if present {
			return s.scheduleRefresh()
		}
		if s.lookups[id] {
			return nil
		}
		if s.lookups == nil {
			s.lookups = make(map[string]bool)
		}
		s.lookups[id] = true
		return []Effect{LookupMinimal{Gen: s.Generation, ItemID: id, PersonID: after.PersonID}}
	case beforeMatch && !afterMatch:
		s.removeItem(id)
		if after != nil && after.ArchivedAt != nil {
			return []Effect{s.archivedFetch()}
		}
		return nil
	case afterMatch && beforeMatch:
		return s.scheduleRefresh()
	}
	return nil
}

// supersedeLookup marks an in-flight lookup for id as stale: the row has since left scope.
func (s *State) supersedeLookup(id string) {
	if s.lookups[id] {
		s.lookups[id] = false
	}
}

func (s *State) minimalLoaded(m MinimalLoaded, now time.Time) []Effect {
	inFlight, tracked := s.lookups[m.ItemID]
	delete(s.lookups, m.ItemID)
	if tracked && !inFlight {
		return nil
	}
	if m.Err != nil {
		s.setFetchError(ReadLookup, m.Err)
		return s.scheduleRefresh()
	}
	s.clearFetchError(ReadLookup)
	if s.indexOf(m.ItemID) >= 0 {
		return nil
	}
	s.reactivatedTag(m.ItemID, now)
	item := PendingItem{
		ItemID:   m.ItemID,
		PersonID: m.PersonID,
		Name:     m.Fields.Name,
		Contact:  m.Fields.Contact,
	}
	eff := s.annotate(&item, AnnotationNew, now)
	s.Items = insertSorted(s.Items, item)
	return []Effect{eff}
}

func (s *State) selectItem(id string) error {
	if id == "" {
		s.Selected = ""
		return nil
	}
	if !s.HasScope {
		return ErrInvalidState
	}
	if s.indexOf(id) < 0 {
		return ErrNotFound
	}
	s.Selected = id
	return nil
}

func (s State) settled(m Settled) (State, []Effect) {
	if m.Err != nil {
		actionErr := &ActionError{Action: m.Command.Action, ItemID: m.Command.ItemID, Err: m.Err}
		if m.Gen == s.Generation {
			s = m.Command.Rollback(s)
			s.ActionError = actionErr
		}
		return s, []Effect{Reply{To: m.Reply, Err: actionErr}}
	}
	var effs []Effect
	if m.Gen == s.Generation {
		s.ActionError = nil
		s, effs = m.Command.Settle(s)
	}
	return s, append(effs, Invalidate{}, Reply{To: m.Reply})
}
