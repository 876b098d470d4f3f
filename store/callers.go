package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const callerColumns = "id, name, role, languages, daily_limit, status, created_at, updated_at"

func scanCaller(row pgx.Row) (*Caller, error) {
	var c Caller
	err := row.Scan(&c.ID, &c.Name, &c.Role, &c.Languages, &c.DailyLimit, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if c.Languages == nil {
		c.Languages = []string{}
	}
	return &c, nil
}

func collectCallers(rows pgx.Rows) ([]Caller, error) {
	defer rows.Close()
	var callers []Caller
	for rows.Next() {
		var c Caller
		if err := rows.Scan(&c.ID, &c.Name, &c.Role, &c.Languages, &c.DailyLimit, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if c.Languages == nil {
			c.Languages = []string{}
		}
		callers = append(callers, c)
	}
	return callers, rows.Err()
}

// CreateCallerParams holds the fields for a new caller.
type CreateCallerParams struct {
	Name       string
	Role       *string
	Languages  []string
	DailyLimit int
	Status     CallerStatus
	States     []string
}

// CreateCaller inserts a caller and its state mappings.
func CreateCaller(ctx context.Context, q Querier, p CreateCallerParams) (*Caller, error) {
	if p.Languages == nil {
		p.Languages = []string{}
	}
	if p.Status == "" {
		p.Status = CallerActive
	}
	caller, err := scanCaller(q.QueryRow(ctx, `
		INSERT INTO callers (id, name, role, languages, daily_limit, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+callerColumns,
		uuid.New(), p.Name, p.Role, p.Languages, p.DailyLimit, p.Status))
	if err != nil {
		return nil, fmt.Errorf("insert caller: %w", err)
	}
	if err := ReplaceCallerStates(ctx, q, caller.ID, p.States); err != nil {
		return nil, err
	}
	return caller, nil
}

// GetCaller returns a caller by id, or ErrNotFound.
func GetCaller(ctx context.Context, q Querier, id uuid.UUID) (*Caller, error) {
	return scanCaller(q.QueryRow(ctx,
		"SELECT "+callerColumns+" FROM callers WHERE id = $1", id))
}

// ListCallers returns all callers, newest first.
func ListCallers(ctx context.Context, q Querier) ([]Caller, error) {
	rows, err := q.Query(ctx,
		"SELECT "+callerColumns+" FROM callers ORDER BY created_at DESC, id")
	if err != nil {
		return nil, err
	}
	return collectCallers(rows)
}

// UpdateCallerParams carries a partial caller update; nil fields are left
// unchanged. States nil leaves the state mappings alone, an empty non-nil
// slice clears them.
type UpdateCallerParams struct {
	Role       *string
	Languages  []string
	DailyLimit *int
	Status     *CallerStatus
	States     []string
}

// UpdateCaller applies a partial update and returns the updated caller.
func UpdateCaller(ctx context.Context, q Querier, id uuid.UUID, p UpdateCallerParams) (*Caller, error) {
	caller, err := scanCaller(q.QueryRow(ctx, `
		UPDATE callers SET
			role = COALESCE($2, role),
			languages = COALESCE($3, languages),
			daily_limit = COALESCE($4, daily_limit),
			status = COALESCE($5, status),
			updated_at = now()
		WHERE id = $1
		RETURNING `+callerColumns,
		id, p.Role, p.Languages, p.DailyLimit, p.Status))
	if err != nil {
		return nil, err
	}
	if p.States != nil {
		if err := ReplaceCallerStates(ctx, q, id, p.States); err != nil {
			return nil, err
		}
	}
	return caller, nil
}

// SetCallerStatus flips a caller's status. Soft delete is SetCallerStatus to
// paused.
func SetCallerStatus(ctx context.Context, q Querier, id uuid.UUID, status CallerStatus) (*Caller, error) {
	return scanCaller(q.QueryRow(ctx, `
		UPDATE callers SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+callerColumns,
		id, status))
}

// ReplaceCallerStates swaps the caller's state mappings for the given set.
func ReplaceCallerStates(ctx context.Context, q Querier, id uuid.UUID, states []string) error {
	if _, err := q.Exec(ctx, "DELETE FROM caller_states WHERE caller_id = $1", id); err != nil {
		return fmt.Errorf("clear caller states: %w", err)
	}
	for _, state := range states {
		if _, err := q.Exec(ctx, `
			INSERT INTO caller_states (caller_id, state) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, id, state); err != nil {
			return fmt.Errorf("insert caller state: %w", err)
		}
	}
	return nil
}

// CallerStates returns the state mappings for a set of callers.
func CallerStates(ctx context.Context, q Querier, ids []uuid.UUID) (map[uuid.UUID][]string, error) {
	states := make(map[uuid.UUID][]string)
	if len(ids) == 0 {
		return states, nil
	}
	rows, err := q.Query(ctx,
		"SELECT caller_id, state FROM caller_states WHERE caller_id = ANY($1) ORDER BY state", ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var state string
		if err := rows.Scan(&id, &state); err != nil {
			return nil, err
		}
		states[id] = append(states[id], state)
	}
	return states, rows.Err()
}

// ActiveCallersByState returns active callers explicitly mapped to the given
// state, locking the caller rows for the duration of the transaction.
func ActiveCallersByState(ctx context.Context, q Querier, state string) ([]Caller, error) {
	rows, err := q.Query(ctx, `
		SELECT c.id, c.name, c.role, c.languages, c.daily_limit, c.status, c.created_at, c.updated_at
		FROM callers c
		JOIN caller_states cs ON cs.caller_id = c.id
		WHERE c.status = 'active' AND cs.state = $1
		ORDER BY c.id
		FOR UPDATE OF c`, state)
	if err != nil {
		return nil, err
	}
	return collectCallers(rows)
}

// ActiveCallers returns all active callers with their rows locked.
func ActiveCallers(ctx context.Context, q Querier) ([]Caller, error) {
	rows, err := q.Query(ctx,
		"SELECT "+callerColumns+" FROM callers WHERE status = 'active' ORDER BY id FOR UPDATE")
	if err != nil {
		return nil, err
	}
	return collectCallers(rows)
}
