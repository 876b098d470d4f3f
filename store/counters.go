package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CountersForUpdate returns the daily counts for the given callers on the
// given business date, locking each counter row until commit. Callers without
// a counter row are absent from the map (count zero).
func CountersForUpdate(ctx context.Context, q Querier, callerIDs []uuid.UUID, date time.Time) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int)
	if len(callerIDs) == 0 {
		return counts, nil
	}
	rows, err := q.Query(ctx, `
		SELECT caller_id, count FROM caller_daily_counters
		WHERE caller_id = ANY($1) AND date = $2
		FOR UPDATE`, callerIDs, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// IncrementDailyCounter bumps the caller's counter for the business date,
// creating the row on the caller's first assignment of the day.
func IncrementDailyCounter(ctx context.Context, q Querier, callerID uuid.UUID, date time.Time) error {
	_, err := q.Exec(ctx, `
		INSERT INTO caller_daily_counters (caller_id, date, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (caller_id, date)
		DO UPDATE SET count = caller_daily_counters.count + 1`,
		callerID, date)
	return err
}

// DailyCount returns a single caller's count for the date, zero when absent.
func DailyCount(ctx context.Context, q Querier, callerID uuid.UUID, date time.Time) (int, error) {
	var count int
	err := q.QueryRow(ctx,
		"SELECT count FROM caller_daily_counters WHERE caller_id = $1 AND date = $2",
		callerID, date).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

// DailyCounts returns all counters for the date keyed by caller.
func DailyCounts(ctx context.Context, q Querier, date time.Time) (map[uuid.UUID]int, error) {
	rows, err := q.Query(ctx,
		"SELECT caller_id, count FROM caller_daily_counters WHERE date = $1", date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}
