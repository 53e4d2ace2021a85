package assignment

import "time"

type candidate struct {
	id        int64
	createdAt time.Time
	current   bool
	scope     Scope
}

// Resolve picks the single assignment that governs the pending-call view. Current records
// win over historical ones and a contact assignment wins over a teacher one; otherwise the
// newest record across both kinds is used, ties broken by the highest id. Records whose
// stage label cannot be parsed never govern.
func Resolve(records []RoleAssignment) (Scope, bool) {
	var contacts, teachers []candidate
	for _, record := range records {
		switch a := record.(type) {
		case Contact:
			if c, ok := newCandidate(a.ID, a.CreatedAt, a.Current, a.StageLabel, a.Day, a.Week); ok {
				contacts = append(contacts, c)
			}
		case Teacher:
			if c, ok := newCandidate(a.ID, a.CreatedAt, a.Current, a.StageLabel, a.Day, 0); ok {
				teachers = append(teachers, c)
			}
		case Logistics, Director, Administrator:
			// no pending-call scope
		}
	}

	for _, group := range [][]candidate{contacts, teachers} {
		if c, ok := newest(group, true); ok {
			return c.scope, true
		}
	}
	all := append(append([]candidate{}, contacts...), teachers...)
	if c, ok := newest(all, false); ok {
		return c.scope, true
	}
	return Scope{}, false
}

func newCandidate(id int64, createdAt time.Time, current bool, label, day string, week int) (candidate, bool) {
	stage, ok := ParseStage(label)
	if !ok {
		return candidate{}, false
	}
	return candidate{
		id:        id,
		createdAt: createdAt,
		current:   current,
		scope: Scope{
			Base:      stage.Base,
			Module:    stage.Module,
			HasModule: stage.HasModule,
			Day:       day,
			Week:      week,
		},
	}, true
}

func newest(group []candidate, currentOnly bool) (candidate, bool) {
	var best candidate
	found := false
	for _, c := range group {
		if currentOnly && !c.current {
			continue
		}
		if !found || c.createdAt.After(best.createdAt) || (c.createdAt.Equal(best.createdAt) && c.id > best.id) {
			best = c
			found = true
		}
	}
	return best, found
}
