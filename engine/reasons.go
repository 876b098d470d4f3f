package engine

// Assignment reason codes. The engine emits exactly one per assignment row.
const (
	ReasonStateRoundRobin      = "state_round_robin"
	ReasonGlobalRoundRobin     = "global_round_robin"
	ReasonManualReassign       = "manual_reassign"
	ReasonUnassignedCapReached = "unassigned_cap_reached"
	ReasonUnassignedNoEligible = "unassigned_no_eligible"
)

// GlobalKey is the routing key for the fallback rotation across all active
// callers.
const GlobalKey = "global"

// StateKey builds the routing key for a state-scoped rotation.
func StateKey(state string) string {
	return "state:" + state
}
