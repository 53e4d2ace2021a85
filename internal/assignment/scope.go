package assignment

import (
	"fmt"

	"servidores/api/internal/util"
)

// Scope partitions pending, confirmed and archived data. Week 0 means the governing role
// does not filter by week.
type Scope struct {
	Base      Base
	Module    int
	HasModule bool
	Day       string
	Week      int
}

// Placement is where a progress record currently sits in the program.
type Placement struct {
	StageBase string
	Module    int
	Day       string
	Week      int
	// Removed is set for soft-deleted or archived records.
	Removed bool
}

func (s Scope) Matches(p Placement) bool {
	if p.Removed {
		return false
	}
	if util.Fold(p.StageBase) != util.Fold(string(s.Base)) {
		return false
	}
	if util.Fold(p.Day) != util.Fold(s.Day) {
		return false
	}
	if s.Week > 0 && p.Week != s.Week {
		return false
	}
	if s.HasModule && p.Module != s.Module {
		return false
	}
	return true
}

func (s Scope) String() string {
	module := "-"
	if s.HasModule {
		module = fmt.Sprint(s.Module)
	}
	return fmt.Sprintf("%s/%s/%s/w%d", s.Base, module, util.Fold(s.Day), s.Week)
}
