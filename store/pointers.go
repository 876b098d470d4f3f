package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// PointerForUpdate returns the last-chosen caller for a routing key, creating
// the pointer row lazily on first use. The row is locked until commit so
// concurrent assignments on the same key serialize here.
func PointerForUpdate(ctx context.Context, q Querier, key string) (*uuid.UUID, error) {
	if _, err := q.Exec(ctx, `
		INSERT INTO rr_pointers (key, last_caller_id) VALUES ($1, NULL)
		ON CONFLICT (key) DO NOTHING`, key); err != nil {
		return nil, fmt.Errorf("ensure pointer %q: %w", key, err)
	}

	var last *uuid.UUID
	err := q.QueryRow(ctx,
		"SELECT last_caller_id FROM rr_pointers WHERE key = $1 FOR UPDATE", key).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("lock pointer %q: %w", key, err)
	}
	return last, nil
}

// SetPointer records the chosen caller for the key. Must run in the same
// transaction as the PointerForUpdate that preceded it.
func SetPointer(ctx context.Context, q Querier, key string, callerID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		UPDATE rr_pointers SET last_caller_id = $2, updated_at = now() WHERE key = $1`,
		key, callerID)
	return err
}
