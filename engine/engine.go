// Package engine implements the transactional lead assignment decision
// procedure: eligibility filtering, round-robin selection, and counter
// accounting. The engine never begins or commits transactions; callers pass
// an open pgx transaction and commit after the engine returns so event
// emission can be composed with the write.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/blochq/bloc/store"
)

// ErrInvalidForcedCaller is returned when a manual assignment names a caller
// that does not exist or is not active.
var ErrInvalidForcedCaller = errors.New("forced caller is not active or does not exist")

// Config holds the engine dependencies.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	// Location is the business time zone used to bucket daily counters.
	Location *time.Location
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return nil
}

// Engine makes assignment decisions. Safe for concurrent use; all mutable
// state lives in the database.
type Engine struct {
	log   *slog.Logger
	clock clockwork.Clock
	loc   *time.Location
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{log: cfg.Logger, clock: cfg.Clock, loc: cfg.Location}, nil
}

// BusinessDate returns today's date in the engine's time zone, normalized to
// UTC midnight for the date column. Captured once per Assign call.
func (e *Engine) BusinessDate() time.Time {
	y, m, d := e.clock.Now().In(e.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Assign places one lead inside an open transaction. With forcedCallerID set
// it is an operator action that bypasses state affinity and the daily cap;
// reasonOverride replaces the default manual_reassign reason and is ignored
// in automatic mode. Returns the inserted assignment row.
func (e *Engine) Assign(ctx context.Context, q store.Querier, lead *store.Lead, forcedCallerID *uuid.UUID, reasonOverride string) (*store.LeadAssignment, error) {
	businessDate := e.BusinessDate()
	e.log.Debug("assigning lead",
		"lead_id", lead.ID, "phone", lead.Phone, "state", strOrEmpty(lead.State),
		"business_date", businessDate.Format(time.DateOnly), "manual", forcedCallerID != nil)

	var chosen *store.Caller
	reason := reasonOverride

	if forcedCallerID != nil {
		caller, err := store.GetCaller(ctx, q, *forcedCallerID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidForcedCaller
		}
		if err != nil {
			return nil, fmt.Errorf("load forced caller: %w", err)
		}
		if caller.Status != store.CallerActive {
			return nil, ErrInvalidForcedCaller
		}
		chosen = caller
		if reason == "" {
			reason = ReasonManualReassign
		}
	} else {
		eligible, key, hadActive, err := e.eligibleCallers(ctx, q, lead, businessDate)
		if err != nil {
			return nil, err
		}

		if len(eligible) == 0 {
			unassignedReason := ReasonUnassignedCapReached
			if !hadActive {
				unassignedReason = ReasonUnassignedNoEligible
			}
			return e.recordUnassigned(ctx, q, lead, unassignedReason)
		}

		last, err := store.PointerForUpdate(ctx, q, key)
		if err != nil {
			return nil, err
		}
		next := nextRoundRobin(last, eligible)
		chosen = &next
		if err := store.SetPointer(ctx, q, key, chosen.ID); err != nil {
			return nil, fmt.Errorf("advance pointer %q: %w", key, err)
		}

		reason = ReasonGlobalRoundRobin
		if key != GlobalKey {
			reason = ReasonStateRoundRobin
		}
	}

	if err := store.IncrementDailyCounter(ctx, q, chosen.ID, businessDate); err != nil {
		return nil, fmt.Errorf("increment counter: %w", err)
	}
	if lead.Unassigned {
		if err := store.MarkLeadUnassigned(ctx, q, lead.ID, false); err != nil {
			return nil, err
		}
		lead.Unassigned = false
	}

	assignment, err := store.InsertAssignment(ctx, q, lead.ID, &chosen.ID, store.AssignmentAssigned, reason, e.clock.Now().UTC())
	if err != nil {
		return nil, err
	}

	e.log.Info("lead assigned",
		"lead_id", lead.ID, "caller_id", chosen.ID, "caller", chosen.Name, "reason", reason)
	return assignment, nil
}

func (e *Engine) recordUnassigned(ctx context.Context, q store.Querier, lead *store.Lead, reason string) (*store.LeadAssignment, error) {
	e.log.Warn("lead unassigned", "lead_id", lead.ID, "reason", reason)
	if err := store.MarkLeadUnassigned(ctx, q, lead.ID, true); err != nil {
		return nil, err
	}
	lead.Unassigned = true
	return store.InsertAssignment(ctx, q, lead.ID, nil, store.AssignmentUnassigned, reason, e.clock.Now().UTC())
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
