package liveview

import (
	"context"
	"fmt"
	"slices"
	"time"

	"servidores/api/internal/assignment"
	"servidores/api/internal/store"
)

// Command is an optimistic mutation. Apply runs in the view's loop and returns the
// provisional state, or an error that rejects the command before any backend call.
// Commit runs outside the loop. When it fails Rollback undoes the provisional change on
// whatever the state has become since; when it succeeds Settle reconciles.
type Command struct {
	Action   Action
	ItemID   string
	Apply    func(s State, now time.Time) (State, error)
	Commit   func(ctx context.Context) error
	Rollback func(s State) State
	Settle   func(s State) (State, []Effect)
}

func requireItem(s State, id string) (PendingItem, error) {
	if !s.HasScope {
		return PendingItem{}, fmt.Errorf("%w: no scope", ErrInvalidState)
	}
	i := s.indexOf(id)
	if i < 0 {
		return PendingItem{}, ErrNotFound
	}
	return s.Items[i], nil
}

// SubmitOutcome records a call result. A confirmed outcome provisionally adds the item to
// the confirmed list; any other outcome removes it from there.
func SubmitOutcome(backend Backend, actorID, itemID string, outcome store.Outcome, notes string) *Command {
	var (
		scope     assignment.Scope
		added     bool
		removed   ConfirmedItem
		removedAt = -1
	)
	return &Command{
		Action: ActionSubmitOutcome,
		ItemID: itemID,
		Apply: func(s State, _ time.Time) (State, error) {
			if outcome == "" {
				return s, fmt.Errorf("%w: outcome is required", ErrValidation)
			}
			if !outcome.Valid() {
				return s, fmt.Errorf("%w: unknown outcome %q", ErrValidation, outcome)
			}
			item, err := requireItem(s, itemID)
			if err != nil {
				return s, err
			}
			scope = s.Scope
			added, removedAt = false, -1

			i := s.confirmedIndex(itemID)
			switch {
			case outcome == store.OutcomeConfirmed && i < 0:
				s.Confirmed = append(s.Confirmed, ConfirmedItem{
					ItemID:  item.ItemID,
					Name:    item.Name,
					Contact: item.Contact,
					Week:    s.Scope.Week,
				})
				added = true
			case outcome != store.OutcomeConfirmed && i >= 0:
				removed, removedAt = s.Confirmed[i], i
				s.Confirmed = slices.Delete(s.Confirmed, i, i+1)
			}
			return s, nil
		},
		Commit: func(ctx context.Context) error {
			return backend.RecordOutcome(ctx, itemID, scope, outcome, notes, actorID)
		},
		Rollback: func(s State) State {
			// undo only this command's change
			i := s.confirmedIndex(itemID)
			switch {
			case added && i >= 0:
				s.Confirmed = slices.Delete(s.Confirmed, i, i+1)
			case removedAt >= 0 && i < 0:
				s.Confirmed = slices.Insert(s.Confirmed, min(removedAt, len(s.Confirmed)), removed)
			}
			return s
		},
		Settle: func(s State) (State, []Effect) {
			s.Selected = ""
			effs := []Effect{s.panelFetch(), s.confirmedFetch()}
			return s, effs
		},
	}
}

// MarkAttendance records whether the person attended. The item leaves the pending list
// provisionally.
func MarkAttendance(backend Backend, actorID, itemID string, attended bool) *Command {
	var removed PendingItem
	return &Command{
		Action: ActionAttendance,
		ItemID: itemID,
		Apply: func(s State, _ time.Time) (State, error) {
			item, err := requireItem(s, itemID)
			if err != nil {
				return s, err
			}
			removed = item
			s.removeItem(itemID)
			return s, nil
		},
		Commit: func(ctx context.Context) error {
			return backend.RecordAttendance(ctx, itemID, attended, actorID)
		},
		Rollback: func(s State) State {
			if s.indexOf(itemID) < 0 {
				s.Items = insertSorted(s.Items, removed)
			}
			return s
		},
		Settle: func(s State) (State, []Effect) {
			effs := []Effect{s.panelFetch()}
			return s, effs
		},
	}
}

// ReactivateArchived moves an archived record back into the pending scope. The item is
// tagged so the refresh or change event that brings it back shows it as new.
func ReactivateArchived(backend Backend, actorID, itemID, notes string) *Command {
	var (
		row   ArchivedItem
		index int
	)
	return &Command{
		Action: ActionReactivate,
		ItemID: itemID,
		Apply: func(s State, now time.Time) (State, error) {
			if !s.HasScope {
				return s, fmt.Errorf("%w: no scope", ErrInvalidState)
			}
			index = s.archivedIndex(itemID)
			if index < 0 {
				return s, ErrNotFound
			}
			row = s.Archived[index]
			s.Archived = slices.Delete(s.Archived, index, index+1)
			if s.Reactivated == nil {
				s.Reactivated = make(map[string]time.Time)
			}
			s.Reactivated[itemID] = now.Add(s.timing.ReactivationTTL)
			return s, nil
		},
		Commit: func(ctx context.Context) error {
			return backend.Reactivate(ctx, store.ReactivateRequest{
				ItemID:   row.ItemID,
				PersonID: row.PersonID,
				Name:     row.Name,
				Contact:  row.Contact,
				Day:      row.Day,
				Notes:    notes,
				ActorID:  actorID,
			})
		},
		Rollback: func(s State) State {
			delete(s.Reactivated, itemID)
			if s.archivedIndex(itemID) < 0 {
				s.Archived = slices.Insert(s.Archived, min(index, len(s.Archived)), row)
			}
			return s
		},
		Settle: func(s State) (State, []Effect) {
			effs := []Effect{s.panelFetch()}
			return s, effs
		},
	}
}
