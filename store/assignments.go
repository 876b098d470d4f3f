package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const assignmentColumns = "id, lead_id, caller_id, assigned_at, assignment_reason, status"

func scanAssignment(row pgx.Row) (*LeadAssignment, error) {
	var a LeadAssignment
	err := row.Scan(&a.ID, &a.LeadID, &a.CallerID, &a.AssignedAt, &a.Reason, &a.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// InsertAssignment appends an assignment row for a lead. callerID must be nil
// iff status is unassigned. assignedAt is supplied by the caller so the row's
// timestamp and the daily counter bucket come from the same clock. Rows are
// append-only.
func InsertAssignment(ctx context.Context, q Querier, leadID uuid.UUID, callerID *uuid.UUID, status AssignmentStatus, reason string, assignedAt time.Time) (*LeadAssignment, error) {
	a, err := scanAssignment(q.QueryRow(ctx, `
		INSERT INTO lead_assignments (id, lead_id, caller_id, assignment_reason, status, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+assignmentColumns,
		uuid.New(), leadID, callerID, reason, status, assignedAt))
	if err != nil {
		return nil, fmt.Errorf("insert assignment: %w", err)
	}
	return a, nil
}

// LatestAssignment returns the lead's most recent assignment, or nil when the
// lead has none yet.
func LatestAssignment(ctx context.Context, q Querier, leadID uuid.UUID) (*LeadAssignment, error) {
	a, err := scanAssignment(q.QueryRow(ctx, `
		SELECT `+assignmentColumns+` FROM lead_assignments
		WHERE lead_id = $1
		ORDER BY assigned_at DESC, id DESC
		LIMIT 1`, leadID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return a, err
}
