package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const leadColumns = "id, name, phone, timestamp_from_sheet, lead_source, city, state, metadata, created_at, unassigned"

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.Name, &l.Phone, &l.SheetTimestamp, &l.LeadSource,
		&l.City, &l.State, &l.Metadata, &l.CreatedAt, &l.Unassigned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

// CreateLeadParams holds the webhook payload fields for a new lead.
type CreateLeadParams struct {
	Name           *string
	Phone          string
	SheetTimestamp time.Time
	LeadSource     *string
	City           *string
	State          *string
	Metadata       json.RawMessage
}

// CreateLead inserts a lead, deduplicating on (phone, timestamp_from_sheet).
// When the key already exists the stored lead is returned with created=false,
// making webhook retries safe.
func CreateLead(ctx context.Context, q Querier, p CreateLeadParams) (*Lead, bool, error) {
	lead, err := scanLead(q.QueryRow(ctx, `
		INSERT INTO leads (id, name, phone, timestamp_from_sheet, lead_source, city, state, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT uq_lead_phone_ts DO NOTHING
		RETURNING `+leadColumns,
		uuid.New(), p.Name, p.Phone, p.SheetTimestamp, p.LeadSource, p.City, p.State, p.Metadata))
	if err == nil {
		return lead, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("insert lead: %w", err)
	}

	lead, err = scanLead(q.QueryRow(ctx,
		"SELECT "+leadColumns+" FROM leads WHERE phone = $1 AND timestamp_from_sheet = $2",
		p.Phone, p.SheetTimestamp))
	if err != nil {
		return nil, false, fmt.Errorf("lookup existing lead: %w", err)
	}
	return lead, false, nil
}

// GetLead returns a lead by id, or ErrNotFound.
func GetLead(ctx context.Context, q Querier, id uuid.UUID) (*Lead, error) {
	return scanLead(q.QueryRow(ctx, "SELECT "+leadColumns+" FROM leads WHERE id = $1", id))
}

// MarkLeadUnassigned flags a lead that the engine could not place.
func MarkLeadUnassigned(ctx context.Context, q Querier, id uuid.UUID, unassigned bool) error {
	_, err := q.Exec(ctx, "UPDATE leads SET unassigned = $2 WHERE id = $1", id, unassigned)
	return err
}

// LeadFilter narrows ListLeads. Zero values mean "no filter".
type LeadFilter struct {
	State    string
	CallerID *uuid.UUID
	Search   string
	Limit    int
	Offset   int
}

// LeadListRow is a lead joined with its latest assignment.
type LeadListRow struct {
	Lead
	AssignedCallerID   *uuid.UUID        `json:"assigned_caller_id"`
	AssignedCallerName *string           `json:"assigned_caller_name"`
	AssignmentStatus   *AssignmentStatus `json:"assignment_status"`
	AssignmentReason   *string           `json:"assignment_reason"`
	AssignedAt         *time.Time        `json:"assigned_at"`
}

// ListLeads returns leads newest first, each carrying its latest assignment.
func ListLeads(ctx context.Context, q Querier, f LeadFilter) ([]LeadListRow, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}

	query := `
		SELECT l.id, l.name, l.phone, l.timestamp_from_sheet, l.lead_source, l.city, l.state,
		       l.metadata, l.created_at, l.unassigned,
		       la.caller_id, c.name, la.status, la.assignment_reason, la.assigned_at
		FROM leads l
		LEFT JOIN LATERAL (
			SELECT caller_id, status, assignment_reason, assigned_at
			FROM lead_assignments
			WHERE lead_id = l.id
			ORDER BY assigned_at DESC, id DESC
			LIMIT 1
		) la ON true
		LEFT JOIN callers c ON c.id = la.caller_id
		WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.State != "" {
		query += " AND l.state = " + arg(f.State)
	}
	if f.CallerID != nil {
		query += " AND la.caller_id = " + arg(*f.CallerID)
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		query += " AND (l.phone ILIKE " + p + " OR l.name ILIKE " + p + ")"
	}
	query += " ORDER BY l.created_at DESC, l.id LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []LeadListRow{}
	for rows.Next() {
		var r LeadListRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Phone, &r.SheetTimestamp, &r.LeadSource,
			&r.City, &r.State, &r.Metadata, &r.CreatedAt, &r.Unassigned,
			&r.AssignedCallerID, &r.AssignedCallerName, &r.AssignmentStatus,
			&r.AssignmentReason, &r.AssignedAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
