package store_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/blochq/bloc/store"
	apitesting "github.com/blochq/bloc/testing"
)

func setup(t *testing.T) *pgxpool.Pool {
	t.Helper()
	apitesting.Migrate(t, testDB)
	pool := apitesting.NewTestPool(t, testDB)
	apitesting.Truncate(t, pool)
	return pool
}

func strPtr(s string) *string { return &s }

func newLead(t *testing.T, pool *pgxpool.Pool, phone string) *store.Lead {
	t.Helper()
	lead, created, err := store.CreateLead(t.Context(), pool, store.CreateLeadParams{
		Phone:          phone,
		SheetTimestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.True(t, created)
	return lead
}

func TestCreateLeadIdempotent(t *testing.T) {
	pool := setup(t)
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	params := store.CreateLeadParams{
		Name:           strPtr("Asha"),
		Phone:          "9876543210",
		SheetTimestamp: ts,
		State:          strPtr("MH"),
		Metadata:       json.RawMessage(`{"utm":"google"}`),
	}

	first, created, err := store.CreateLead(t.Context(), pool, params)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := store.CreateLead(t.Context(), pool, params)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	// Same phone with a different sheet timestamp is a distinct lead.
	params.SheetTimestamp = ts.Add(time.Hour)
	third, created, err := store.CreateLead(t.Context(), pool, params)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, first.ID, third.ID)
}

func TestGetLeadNotFound(t *testing.T) {
	pool := setup(t)
	_, err := store.GetLead(t.Context(), pool, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestLatestAssignmentOrdering(t *testing.T) {
	pool := setup(t)
	lead := newLead(t, pool, "9000000001")

	caller, err := store.CreateCaller(t.Context(), pool, store.CreateCallerParams{Name: "A"})
	require.NoError(t, err)

	latest, err := store.LatestAssignment(t.Context(), pool, lead.ID)
	require.NoError(t, err)
	require.Nil(t, latest)

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	_, err = store.InsertAssignment(t.Context(), pool, lead.ID, nil, store.AssignmentUnassigned, "unassigned_no_eligible", base)
	require.NoError(t, err)
	second, err := store.InsertAssignment(t.Context(), pool, lead.ID, &caller.ID, store.AssignmentAssigned, "manual_reassign", base.Add(time.Minute))
	require.NoError(t, err)

	latest, err = store.LatestAssignment(t.Context(), pool, lead.ID)
	require.NoError(t, err)
	require.Equal(t, second.ID, latest.ID)
	require.Equal(t, caller.ID, *latest.CallerID)
}

func TestDailyCounterUpsert(t *testing.T) {
	pool := setup(t)
	caller, err := store.CreateCaller(t.Context(), pool, store.CreateCallerParams{Name: "A"})
	require.NoError(t, err)
	date := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	count, err := store.DailyCount(t.Context(), pool, caller.ID, date)
	require.NoError(t, err)
	require.Zero(t, count)

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.IncrementDailyCounter(t.Context(), pool, caller.ID, date))
		count, err = store.DailyCount(t.Context(), pool, caller.ID, date)
		require.NoError(t, err)
		require.Equal(t, i, count)
	}

	// A different date keeps its own counter.
	count, err = store.DailyCount(t.Context(), pool, caller.ID, date.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestPointerLifecycle(t *testing.T) {
	pool := setup(t)
	caller, err := store.CreateCaller(t.Context(), pool, store.CreateCallerParams{Name: "A"})
	require.NoError(t, err)

	ctx := t.Context()
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	last, err := store.PointerForUpdate(ctx, tx, "state:MH")
	require.NoError(t, err)
	require.Nil(t, last)

	require.NoError(t, store.SetPointer(ctx, tx, "state:MH", caller.ID))
	require.NoError(t, tx.Commit(ctx))

	tx, err = pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	last, err = store.PointerForUpdate(ctx, tx, "state:MH")
	require.NoError(t, err)
	require.Equal(t, caller.ID, *last)

	// Keys are independent.
	global, err := store.PointerForUpdate(ctx, tx, "global")
	require.NoError(t, err)
	require.Nil(t, global)
	require.NoError(t, tx.Commit(ctx))
}

func TestCallerStateMappings(t *testing.T) {
	pool := setup(t)
	caller, err := store.CreateCaller(t.Context(), pool, store.CreateCallerParams{
		Name:   "A",
		States: []string{"MH", "KA"},
	})
	require.NoError(t, err)

	states, err := store.CallerStates(t.Context(), pool, []uuid.UUID{caller.ID})
	require.NoError(t, err)
	require.Equal(t, []string{"KA", "MH"}, states[caller.ID])

	_, err = store.UpdateCaller(t.Context(), pool, caller.ID, store.UpdateCallerParams{
		States: []string{"KL"},
	})
	require.NoError(t, err)

	states, err = store.CallerStates(t.Context(), pool, []uuid.UUID{caller.ID})
	require.NoError(t, err)
	require.Equal(t, []string{"KL"}, states[caller.ID])

	// Empty non-nil slice clears the mappings.
	_, err = store.UpdateCaller(t.Context(), pool, caller.ID, store.UpdateCallerParams{
		States: []string{},
	})
	require.NoError(t, err)
	states, err = store.CallerStates(t.Context(), pool, []uuid.UUID{caller.ID})
	require.NoError(t, err)
	require.Empty(t, states[caller.ID])
}

func TestUpdateCallerPartial(t *testing.T) {
	pool := setup(t)
	role := "senior"
	caller, err := store.CreateCaller(t.Context(), pool, store.CreateCallerParams{
		Name:       "A",
		Role:       &role,
		DailyLimit: 5,
	})
	require.NoError(t, err)

	limit := 10
	updated, err := store.UpdateCaller(t.Context(), pool, caller.ID, store.UpdateCallerParams{
		DailyLimit: &limit,
	})
	require.NoError(t, err)
	require.Equal(t, 10, updated.DailyLimit)
	require.Equal(t, "senior", *updated.Role)
	require.Equal(t, store.CallerActive, updated.Status)
}

func TestActiveCallersByState(t *testing.T) {
	pool := setup(t)
	ctx := t.Context()

	mh, err := store.CreateCaller(ctx, pool, store.CreateCallerParams{Name: "MH caller", States: []string{"MH"}})
	require.NoError(t, err)
	_, err = store.CreateCaller(ctx, pool, store.CreateCallerParams{Name: "KA caller", States: []string{"KA"}})
	require.NoError(t, err)
	_, err = store.CreateCaller(ctx, pool, store.CreateCallerParams{
		Name: "paused MH caller", States: []string{"MH"}, Status: store.CallerPaused,
	})
	require.NoError(t, err)

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	callers, err := store.ActiveCallersByState(ctx, tx, "MH")
	require.NoError(t, err)
	require.Len(t, callers, 1)
	require.Equal(t, mh.ID, callers[0].ID)

	all, err := store.ActiveCallers(ctx, tx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestListLeadsFilters(t *testing.T) {
	pool := setup(t)
	ctx := t.Context()

	caller, err := store.CreateCaller(ctx, pool, store.CreateCallerParams{Name: "A"})
	require.NoError(t, err)

	var mhLead *store.Lead
	for i := 0; i < 3; i++ {
		lead, created, err := store.CreateLead(ctx, pool, store.CreateLeadParams{
			Name:           strPtr(fmt.Sprintf("Lead %d", i)),
			Phone:          fmt.Sprintf("900000000%d", i),
			SheetTimestamp: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
			State:          strPtr([]string{"MH", "KA", "KA"}[i]),
		})
		require.NoError(t, err)
		require.True(t, created)
		if i == 0 {
			mhLead = lead
		}
	}
	_, err = store.InsertAssignment(ctx, pool, mhLead.ID, &caller.ID, store.AssignmentAssigned, "state_round_robin", time.Now().UTC())
	require.NoError(t, err)

	all, err := store.ListLeads(ctx, pool, store.LeadFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	byState, err := store.ListLeads(ctx, pool, store.LeadFilter{State: "KA"})
	require.NoError(t, err)
	require.Len(t, byState, 2)

	byCaller, err := store.ListLeads(ctx, pool, store.LeadFilter{CallerID: &caller.ID})
	require.NoError(t, err)
	require.Len(t, byCaller, 1)
	require.Equal(t, mhLead.ID, byCaller[0].ID)
	require.Equal(t, "A", *byCaller[0].AssignedCallerName)
	require.Equal(t, "state_round_robin", *byCaller[0].AssignmentReason)

	bySearch, err := store.ListLeads(ctx, pool, store.LeadFilter{Search: "Lead 1"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)

	paged, err := store.ListLeads(ctx, pool, store.LeadFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, paged, 1)
}
