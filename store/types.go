package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CallerStatus is stored as lowercase text.
type CallerStatus string

const (
	CallerActive CallerStatus = "active"
	CallerPaused CallerStatus = "paused"
)

// AssignmentStatus discriminates the two assignment variants.
type AssignmentStatus string

const (
	AssignmentAssigned   AssignmentStatus = "assigned"
	AssignmentUnassigned AssignmentStatus = "unassigned"
)

// Caller is a human agent who receives leads.
type Caller struct {
	ID         uuid.UUID    `json:"id"`
	Name       string       `json:"name"`
	Role       *string      `json:"role"`
	Languages  []string     `json:"languages"`
	DailyLimit int          `json:"daily_limit"`
	Status     CallerStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Lead is an inbound sales lead. (Phone, SheetTimestamp) is the idempotency
// key for webhook ingestion.
type Lead struct {
	ID             uuid.UUID       `json:"id"`
	Name           *string         `json:"name"`
	Phone          string          `json:"phone"`
	SheetTimestamp time.Time       `json:"timestamp"`
	LeadSource     *string         `json:"lead_source"`
	City           *string         `json:"city"`
	State          *string         `json:"state"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
	Unassigned     bool            `json:"unassigned"`
}

// LeadAssignment records one assignment decision. CallerID is nil iff
// Status is unassigned. Rows are never updated in place; the latest row by
// AssignedAt is the lead's effective state.
type LeadAssignment struct {
	ID         uuid.UUID        `json:"id"`
	LeadID     uuid.UUID        `json:"lead_id"`
	CallerID   *uuid.UUID       `json:"caller_id"`
	AssignedAt time.Time        `json:"assigned_at"`
	Reason     string           `json:"assignment_reason"`
	Status     AssignmentStatus `json:"status"`
}
