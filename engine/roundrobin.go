package engine

import (
	"sort"

	"github.com/google/uuid"

	"github.com/blochq/bloc/store"
)

// nextRoundRobin picks the caller after the last-chosen one in a stable
// order. Sorting on the lexicographic form of the caller id keeps the
// rotation deterministic as callers join or leave; a vanished last caller
// (paused, deleted, or capped out) resets the rotation to the front.
func nextRoundRobin(last *uuid.UUID, eligible []store.Caller) store.Caller {
	ordered := make([]store.Caller, len(eligible))
	copy(ordered, eligible)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ID.String() < ordered[j].ID.String()
	})

	if last == nil {
		return ordered[0]
	}
	for i, c := range ordered {
		if c.ID == *last {
			return ordered[(i+1)%len(ordered)]
		}
	}
	return ordered[0]
}
