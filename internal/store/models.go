package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced progress record does not exist or is
	// no longer active.
	ErrNotFound = errors.New("store: not found")
	// ErrOutOfScope is returned when the caller's scope does not cover the record.
	ErrOutOfScope = errors.New("store: record outside caller scope")
)

// Outcome is the result of one follow-up call.
type Outcome string

const (
	OutcomeConfirmed   Outcome = "confirmo_asistencia"
	OutcomeNoAnswer    Outcome = "no_contesta"
	OutcomeCallLater   Outcome = "llamar_despues"
	OutcomeCannotCome  Outcome = "no_puede_asistir"
	OutcomeWrongNumber Outcome = "numero_equivocado"
	OutcomeNotInterest Outcome = "no_interesado"
)

var outcomes = []Outcome{
	OutcomeConfirmed,
	OutcomeNoAnswer,
	OutcomeCallLater,
	OutcomeCannotCome,
	OutcomeWrongNumber,
	OutcomeNotInterest,
}

// Outcomes lists every known outcome in presentation order.
func Outcomes() []Outcome {
	return append([]Outcome(nil), outcomes...)
}

func (o Outcome) Valid() bool {
	for _, known := range outcomes {
		if o == known {
			return true
		}
	}
	return false
}

// Label is the Spanish caption shown to callers.
func (o Outcome) Label() string {
	switch o {
	case OutcomeConfirmed:
		return "Confirmó asistencia"
	case OutcomeNoAnswer:
		return "No contesta"
	case OutcomeCallLater:
		return "Llamar después"
	case OutcomeCannotCome:
		return "No puede asistir"
	case OutcomeWrongNumber:
		return "Número equivocado"
	case OutcomeNotInterest:
		return "No interesado"
	default:
		return string(o)
	}
}

// OutcomeSlots is the number of prior outcomes tracked per pending item.
const OutcomeSlots = 3

// HistoryRow is one row of v_call_history. Empty outcome slots are "".
type HistoryRow struct {
	ItemID   string
	PersonID string
	Name     string
	Contact  string
	Outcomes [OutcomeSlots]Outcome
}

type EligibleRow struct {
	ItemID string
}

type ConfirmedRow struct {
	ItemID  string
	Name    string
	Contact string
	Week    int
}

type ArchivedRow struct {
	ItemID     string
	PersonID   string
	Name       string
	Contact    string
	StageBase  string
	Module     int // 0 when the stage has no module
	Week       int
	Day        string
	ArchivedAt time.Time
}

type MinimalFields struct {
	Name    string
	Contact string
}

type ReactivateRequest struct {
	ItemID   string
	PersonID string
	Name     string
	Contact  string
	Day      string
	Notes    string
	ActorID  string
}

type PortalUser struct {
	ID          string
	DisplayName string
	Role        string
}

// Person is a searchable people record. StageLabel and Week describe the person's most
// recent program placement and are empty when none exists.
type Person struct {
	ID         string
	Name       string
	Contact    string
	Cedula     string
	StageLabel string
	Week       int
}

// Stage is a person's current program placement.
type Stage struct {
	Label string
	Week  int
}
