package liveview

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks action input that was rejected before any backend call.
	ErrValidation = errors.New("liveview: invalid input")
	// ErrInvalidState marks an action attempted without a scope or against local state
	// that does not allow it.
	ErrInvalidState = errors.New("liveview: invalid state")
	// ErrNotFound is an ErrInvalidState for an item that is no longer held locally.
	ErrNotFound = fmt.Errorf("%w: item not found", ErrInvalidState)
	// ErrClosed is returned by a view that has been closed.
	ErrClosed = errors.New("liveview: view closed")
)

// Read names one backend read.
type Read string

const (
	ReadHistory     Read = "history"
	ReadEligibility Read = "eligibility"
	ReadConfirmed   Read = "confirmed"
	ReadArchived    Read = "archived"
	ReadLookup      Read = "lookup"
)

// FetchError records a failed read. The affected list is left empty until the next
// successful read.
type FetchError struct {
	Read Read
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("liveview: %s read failed: %v", e.Read, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Action names a mutating user action.
type Action string

const (
	ActionSubmitOutcome Action = "submit_outcome"
	ActionAttendance    Action = "mark_attendance"
	ActionReactivate    Action = "reactivate"
)

// ActionError is a backend failure of a mutating action. Its optimistic change has been
// rolled back by the time it is returned.
type ActionError struct {
	Action Action
	ItemID string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("liveview: %s %s failed: %v", e.Action, e.ItemID, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }
