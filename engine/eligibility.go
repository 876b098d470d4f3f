package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/blochq/bloc/store"
)

// eligibleCallers produces the candidate set and routing key for a lead.
//
// The key is state-scoped iff at least one active caller is explicitly
// mapped to the lead's state, decided before the cap filter. A state whose
// mapped callers are all capped out keeps the state pointer and yields an
// unassigned outcome instead of leaking the lead to a global caller.
//
// hadActive reports whether any active candidate existed before the cap
// filter, which disambiguates the two unassigned reason codes.
func (e *Engine) eligibleCallers(ctx context.Context, q store.Querier, lead *store.Lead, businessDate time.Time) (eligible []store.Caller, key string, hadActive bool, err error) {
	var candidates []store.Caller

	key = GlobalKey
	if lead.State != nil && *lead.State != "" {
		candidates, err = store.ActiveCallersByState(ctx, q, *lead.State)
		if err != nil {
			return nil, "", false, err
		}
		if len(candidates) > 0 {
			key = StateKey(*lead.State)
		}
	}
	if len(candidates) == 0 {
		candidates, err = store.ActiveCallers(ctx, q)
		if err != nil {
			return nil, "", false, err
		}
	}
	hadActive = len(candidates) > 0
	if !hadActive {
		return nil, key, false, nil
	}

	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	counts, err := store.CountersForUpdate(ctx, q, ids, businessDate)
	if err != nil {
		return nil, "", false, err
	}

	// daily_limit 0 encodes unlimited and is never dropped.
	for _, c := range candidates {
		if c.DailyLimit > 0 && counts[c.ID] >= c.DailyLimit {
			continue
		}
		eligible = append(eligible, c)
	}
	return eligible, key, true, nil
}
