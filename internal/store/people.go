package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"servidores/api/internal/assignment"
)

func (s *PostgresStore) GetPortalUser(ctx context.Context, userID string) (PortalUser, error) {
	var user PortalUser
	err := s.db.QueryRowContext(ctx, `SELECT id, display_name, role FROM portal_users WHERE id=$1`, userID).
		Scan(&user.ID, &user.DisplayName, &user.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return PortalUser{}, fmt.Errorf("portal user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return PortalUser{}, fmt.Errorf("get portal user: %w", err)
	}
	return user, nil
}

// Assignments loads every role assignment a user has held, current or not. Director and
// administrator roles come from the user's portal role.
func (s *PostgresStore) Assignments(ctx context.Context, userID string) ([]assignment.RoleAssignment, error) {
	records := make([]assignment.RoleAssignment, 0)

	contacts, err := s.db.QueryContext(ctx, `
		SELECT id, stage_label, day, week, vigente, created_at
		FROM contact_assignments WHERE user_id=$1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list contact assignments: %w", err)
	}
	for contacts.Next() {
		var a assignment.Contact
		if err := contacts.Scan(&a.ID, &a.StageLabel, &a.Day, &a.Week, &a.Current, &a.CreatedAt); err != nil {
			contacts.Close()
			return nil, fmt.Errorf("scan contact assignment: %w", err)
		}
		records = append(records, a)
	}
	if err := closeRows(contacts, "contact assignments"); err != nil {
		return nil, err
	}

	teachers, err := s.db.QueryContext(ctx, `
		SELECT id, stage_label, day, vigente, created_at
		FROM teacher_assignments WHERE user_id=$1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list teacher assignments: %w", err)
	}
	for teachers.Next() {
		var a assignment.Teacher
		if err := teachers.Scan(&a.ID, &a.StageLabel, &a.Day, &a.Current, &a.CreatedAt); err != nil {
			teachers.Close()
			return nil, fmt.Errorf("scan teacher assignment: %w", err)
		}
		records = append(records, a)
	}
	if err := closeRows(teachers, "teacher assignments"); err != nil {
		return nil, err
	}

	logistics, err := s.db.QueryContext(ctx, `
		SELECT id, day, vigente, created_at
		FROM logistics_assignments WHERE user_id=$1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list logistics assignments: %w", err)
	}
	for logistics.Next() {
		var a assignment.Logistics
		if err := logistics.Scan(&a.ID, &a.Day, &a.Current, &a.CreatedAt); err != nil {
			logistics.Close()
			return nil, fmt.Errorf("scan logistics assignment: %w", err)
		}
		records = append(records, a)
	}
	if err := closeRows(logistics, "logistics assignments"); err != nil {
		return nil, err
	}

	var role string
	err = s.db.QueryRowContext(ctx, `SELECT role FROM portal_users WHERE id=$1`, userID).Scan(&role)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read portal role: %w", err)
	}
	switch strings.ToLower(role) {
	case "director":
		records = append(records, assignment.Director{})
	case "administrador", "admin":
		records = append(records, assignment.Administrator{})
	}
	return records, nil
}

func closeRows(rows *sql.Rows, what string) error {
	defer rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", what, err)
	}
	return nil
}

const personStageQuery = `
	LEFT JOIN LATERAL (
		SELECT p.stage_base, p.module, p.week
		FROM program_progress p
		WHERE p.person_id = pe.id AND p.deleted_at IS NULL
		ORDER BY p.archived_at IS NULL DESC, p.created_at DESC
		LIMIT 1
	) st ON TRUE`

// SearchPeople is the PostgreSQL fallback for people search: a case-insensitive substring
// match on name, phone and cedula.
func (s *PostgresStore) SearchPeople(ctx context.Context, query string, limit int) ([]Person, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT pe.id, pe.full_name, pe.phone, pe.cedula, st.stage_base, st.module, st.week
		FROM people pe`+personStageQuery+`
		WHERE pe.deleted_at IS NULL
			AND (pe.full_name ILIKE $1 OR pe.phone ILIKE $1 OR pe.cedula ILIKE $1)
		ORDER BY pe.full_name, pe.id
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search people: %w", err)
	}
	return scanPeople(rows)
}

// ListPeople returns every active person, for search index rebuilds.
func (s *PostgresStore) ListPeople(ctx context.Context) ([]Person, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pe.id, pe.full_name, pe.phone, pe.cedula, st.stage_base, st.module, st.week
		FROM people pe`+personStageQuery+`
		WHERE pe.deleted_at IS NULL
		ORDER BY pe.full_name, pe.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	return scanPeople(rows)
}

func scanPeople(rows *sql.Rows) ([]Person, error) {
	defer rows.Close()
	people := make([]Person, 0)
	for rows.Next() {
		var (
			p                     Person
			contact, cedula, base sql.NullString
			module, week          sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Name, &contact, &cedula, &base, &module, &week); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		p.Contact = nullString(contact)
		p.Cedula = nullString(cedula)
		if base.Valid {
			p.StageLabel = stageLabel(base.String, module)
			p.Week = int(week.Int64)
		}
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}
	return people, nil
}

// CurrentStage returns the person's most recent active placement. ok is false when the
// person has none.
func (s *PostgresStore) CurrentStage(ctx context.Context, personID string) (Stage, bool, error) {
	var (
		base   string
		module sql.NullInt64
		week   int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT stage_base, module, week
		FROM program_progress
		WHERE person_id = $1 AND deleted_at IS NULL AND archived_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, personID).Scan(&base, &module, &week)
	if errors.Is(err, sql.ErrNoRows) {
		return Stage{}, false, nil
	}
	if err != nil {
		return Stage{}, false, mapProcedureError("current stage", err)
	}
	return Stage{Label: stageLabel(base, module), Week: week}, true, nil
}

func stageLabel(base string, module sql.NullInt64) string {
	if base == string(assignment.BaseRestauracion) {
		base = "Restauración"
	}
	if !module.Valid {
		return base
	}
	return fmt.Sprintf("%s %d", base, module.Int64)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// SeedPerson inserts a person with one active placement. Used by integration tests and
// the panel's demo data loader.
func (s *PostgresStore) SeedPerson(ctx context.Context, name, phone string, scope assignment.Scope, createdAt time.Time) (personID, itemID string, err error) {
	base, day, week, module := scopeArgs(scope)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", "", fmt.Errorf("begin seed: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = tx.QueryRowContext(ctx, `INSERT INTO people (full_name, phone) VALUES ($1, NULLIF($2, '')) RETURNING id`, name, phone).Scan(&personID); err != nil {
		return "", "", fmt.Errorf("insert person: %w", err)
	}
	if err = tx.QueryRowContext(ctx, `
		INSERT INTO program_progress (person_id, stage_base, module, day, week, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id
	`, personID, base, module, day, week, createdAt).Scan(&itemID); err != nil {
		return "", "", fmt.Errorf("insert progress: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return "", "", fmt.Errorf("commit seed: %w", err)
	}
	return personID, itemID, nil
}
