// Package realtime carries row-change notifications from PostgreSQL to open panels.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"servidores/api/internal/assignment"
)

type Kind string

const (
	KindInsert Kind = "INSERT"
	KindUpdate Kind = "UPDATE"
	KindDelete Kind = "DELETE"
	// KindSubscribed is emitted whenever an upstream subscription is (re)established, so
	// consumers can resync anything missed while it was down.
	KindSubscribed Kind = "SUBSCRIBED"
)

// Tables published by the notify trigger.
const (
	TableProgress           = "program_progress"
	TableCallOutcomes       = "call_outcomes"
	TableAttendance         = "attendance"
	TablePeople             = "people"
	TableContactAssignments = "contact_assignments"
	TableTeacherAssignments = "teacher_assignments"
)

type Event struct {
	Table string          `json:"table"`
	Kind  Kind            `json:"type"`
	Old   json.RawMessage `json:"old,omitempty"`
	New   json.RawMessage `json:"new,omitempty"`
	At    time.Time       `json:"at"`
}

var (
	ErrNotProgress = errors.New("realtime: event is not a progress change")
	ErrNotPerson   = errors.New("realtime: event is not a people change")
)

// PersonRow is the row image of people.
type PersonRow struct {
	ID        string  `json:"id"`
	FullName  string  `json:"full_name"`
	Phone     *string `json:"phone"`
	Cedula    *string `json:"cedula"`
	DeletedAt *string `json:"deleted_at"`
}

// Person returns the row a people event leaves behind. removed is true for deletes and
// soft deletes; only the id is set then.
func (e Event) Person() (row PersonRow, removed bool, err error) {
	if e.Table != TablePeople {
		return PersonRow{}, false, ErrNotPerson
	}
	raw := e.New
	if e.Kind == KindDelete {
		raw = e.Old
	}
	if len(raw) == 0 || string(raw) == "null" {
		return PersonRow{}, false, fmt.Errorf("decode person: missing row image")
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return PersonRow{}, false, fmt.Errorf("decode person: %w", err)
	}
	return row, e.Kind == KindDelete || row.DeletedAt != nil, nil
}

// ProgressRow is the row image of program_progress as produced by row_to_json.
type ProgressRow struct {
	ID         string  `json:"id"`
	PersonID   string  `json:"person_id"`
	StageBase  string  `json:"stage_base"`
	Module     *int    `json:"module"`
	Day        string  `json:"day"`
	Week       int     `json:"week"`
	DeletedAt  *string `json:"deleted_at"`
	ArchivedAt *string `json:"archived_at"`
}

func (r ProgressRow) Placement() assignment.Placement {
	module := 0
	if r.Module != nil {
		module = *r.Module
	}
	return assignment.Placement{
		StageBase: r.StageBase,
		Module:    module,
		Day:       r.Day,
		Week:      r.Week,
		Removed:   r.DeletedAt != nil || r.ArchivedAt != nil,
	}
}

// Progress decodes the previous and next row images. Either may be nil: inserts carry no
// previous image and some publishers omit it on update.
func (e Event) Progress() (before, after *ProgressRow, err error) {
	if e.Table != TableProgress {
		return nil, nil, ErrNotProgress
	}
	if before, err = decodeRow(e.Old); err != nil {
		return nil, nil, fmt.Errorf("decode old row: %w", err)
	}
	if after, err = decodeRow(e.New); err != nil {
		return nil, nil, fmt.Errorf("decode new row: %w", err)
	}
	return before, after, nil
}

func decodeRow(raw json.RawMessage) (*ProgressRow, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var row ProgressRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// Decode parses a notify payload.
func Decode(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Table == "" || ev.Kind == "" {
		return Event{}, fmt.Errorf("decode event: missing table or type")
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	return ev, nil
}

// Publisher accepts events for fan-out.
type Publisher interface {
	Publish(Event)
}
