// Package assignment models a servant's role assignments and picks the one that governs
// which pending calls they see.
package assignment

import "time"

type Kind string

const (
	KindContact       Kind = "contact"
	KindTeacher       Kind = "teacher"
	KindLogistics     Kind = "logistics"
	KindDirector      Kind = "director"
	KindAdministrator Kind = "administrator"
)

// RoleAssignment is one of Contact, Teacher, Logistics, Director or Administrator.
type RoleAssignment interface {
	Kind() Kind
	assignment()
}

// Contact is a call-campaign ("timoteo") assignment. It is the only kind scoped by week.
type Contact struct {
	ID         int64
	StageLabel string
	Day        string
	Week       int
	Current    bool
	CreatedAt  time.Time
}

// Teacher is a classroom ("maestro") assignment.
type Teacher struct {
	ID         int64
	StageLabel string
	Day        string
	Current    bool
	CreatedAt  time.Time
}

type Logistics struct {
	ID        int64
	Day       string
	Current   bool
	CreatedAt time.Time
}

type Director struct{}

type Administrator struct{}

func (Contact) Kind() Kind       { return KindContact }
func (Teacher) Kind() Kind       { return KindTeacher }
func (Logistics) Kind() Kind     { return KindLogistics }
func (Director) Kind() Kind      { return KindDirector }
func (Administrator) Kind() Kind { return KindAdministrator }

func (Contact) assignment()       {}
func (Teacher) assignment()       {}
func (Logistics) assignment()     {}
func (Director) assignment()      {}
func (Administrator) assignment() {}
