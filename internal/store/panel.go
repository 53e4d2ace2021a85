package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"servidores/api/internal/assignment"
)

const scopeFilter = `stage_base = $1 AND day = $2 AND ($3::int = 0 OR week = $3) AND ($4::int IS NULL OR module = $4)`

func (s *PostgresStore) History(ctx context.Context, scope assignment.Scope) ([]HistoryRow, error) {
	base, day, week, module := scopeArgs(scope)
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, person_id, name, contact, outcome1, outcome2, outcome3
		FROM v_call_history
		WHERE `+scopeFilter+`
		ORDER BY name, item_id
	`, base, day, week, module)
	if err != nil {
		return nil, fmt.Errorf("list call history: %w", err)
	}
	defer rows.Close()

	items := make([]HistoryRow, 0)
	for rows.Next() {
		var (
			item    HistoryRow
			contact sql.NullString
			slots   [OutcomeSlots]sql.NullString
		)
		if err := rows.Scan(&item.ItemID, &item.PersonID, &item.Name, &contact, &slots[0], &slots[1], &slots[2]); err != nil {
			return nil, fmt.Errorf("scan call history: %w", err)
		}
		item.Contact = nullString(contact)
		for i, slot := range slots {
			item.Outcomes[i] = Outcome(nullString(slot))
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call history: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Eligible(ctx context.Context, scope assignment.Scope) ([]EligibleRow, error) {
	base, day, week, module := scopeArgs(scope)
	rows, err := s.db.QueryContext(ctx, `SELECT item_id FROM v_call_eligible WHERE `+scopeFilter, base, day, week, module)
	if err != nil {
		return nil, fmt.Errorf("list eligible: %w", err)
	}
	defer rows.Close()

	items := make([]EligibleRow, 0)
	for rows.Next() {
		var item EligibleRow
		if err := rows.Scan(&item.ItemID); err != nil {
			return nil, fmt.Errorf("scan eligible: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eligible: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Confirmed(ctx context.Context, scope assignment.Scope) ([]ConfirmedRow, error) {
	base, day, week, module := scopeArgs(scope)
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, name, contact, week
		FROM v_call_confirmed
		WHERE `+scopeFilter+`
		ORDER BY name, item_id
	`, base, day, week, module)
	if err != nil {
		return nil, fmt.Errorf("list confirmed: %w", err)
	}
	defer rows.Close()

	items := make([]ConfirmedRow, 0)
	for rows.Next() {
		var (
			item    ConfirmedRow
			contact sql.NullString
		)
		if err := rows.Scan(&item.ItemID, &item.Name, &contact, &item.Week); err != nil {
			return nil, fmt.Errorf("scan confirmed: %w", err)
		}
		item.Contact = nullString(contact)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate confirmed: %w", err)
	}
	return items, nil
}

// Archived lists archived records for the scope's base, day and module. Archived rows are
// not filtered by week.
func (s *PostgresStore) Archived(ctx context.Context, scope assignment.Scope) ([]ArchivedRow, error) {
	base, day, _, module := scopeArgs(scope)
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, person_id, name, contact, stage_base, module, week, day, archived_at
		FROM v_progress_archived
		WHERE stage_base = $1 AND day = $2 AND ($3::int IS NULL OR module = $3)
		ORDER BY archived_at DESC, item_id
	`, base, day, module)
	if err != nil {
		return nil, fmt.Errorf("list archived: %w", err)
	}
	defer rows.Close()

	items := make([]ArchivedRow, 0)
	for rows.Next() {
		item, err := scanArchived(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archived: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived: %w", err)
	}
	return items, nil
}

// ArchivedByID loads one archived record regardless of scope.
func (s *PostgresStore) ArchivedByID(ctx context.Context, itemID string) (ArchivedRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT item_id, person_id, name, contact, stage_base, module, week, day, archived_at
		FROM v_progress_archived
		WHERE item_id = $1
	`, itemID)
	item, err := scanArchived(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ArchivedRow{}, fmt.Errorf("archived item %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return ArchivedRow{}, mapProcedureError("get archived item", err)
	}
	return item, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArchived(sc scanner) (ArchivedRow, error) {
	var (
		item    ArchivedRow
		contact sql.NullString
		mod     sql.NullInt64
	)
	if err := sc.Scan(&item.ItemID, &item.PersonID, &item.Name, &contact, &item.StageBase, &mod, &item.Week, &item.Day, &item.ArchivedAt); err != nil {
		return ArchivedRow{}, err
	}
	item.Contact = nullString(contact)
	if mod.Valid {
		item.Module = int(mod.Int64)
	}
	return item, nil
}

func (s *PostgresStore) RecordOutcome(ctx context.Context, itemID string, scope assignment.Scope, outcome Outcome, notes, actorID string) error {
	base, day, week, module := scopeArgs(scope)
	_, err := s.db.ExecContext(ctx, `SELECT record_call_outcome($1, $2, $3, $4, $5, $6, $7, $8)`,
		itemID, base, module, day, week, string(outcome), notes, actorID)
	if err != nil {
		return mapProcedureError("record outcome", err)
	}
	return nil
}

func (s *PostgresStore) RecordAttendance(ctx context.Context, itemID string, attended bool, actorID string) error {
	_, err := s.db.ExecContext(ctx, `SELECT record_attendance($1, $2, $3)`, itemID, attended, actorID)
	if err != nil {
		return mapProcedureError("record attendance", err)
	}
	return nil
}

func (s *PostgresStore) Reactivate(ctx context.Context, req ReactivateRequest) error {
	_, err := s.db.ExecContext(ctx, `SELECT reactivate_progress($1, $2, $3, $4, $5, $6, $7)`,
		req.ItemID, req.PersonID, req.Name, req.Contact, req.Day, req.Notes, req.ActorID)
	if err != nil {
		return mapProcedureError("reactivate", err)
	}
	return nil
}

// LookupMinimal resolves display fields for a progress id or a person id.
func (s *PostgresStore) LookupMinimal(ctx context.Context, id string) (MinimalFields, error) {
	var (
		fields  MinimalFields
		contact sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT name, contact FROM lookup_progress_minimal($1)`, id).Scan(&fields.Name, &contact)
	if errors.Is(err, sql.ErrNoRows) {
		return MinimalFields{}, fmt.Errorf("lookup minimal fields %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return MinimalFields{}, mapProcedureError("lookup minimal fields", err)
	}
	fields.Contact = nullString(contact)
	return fields, nil
}
