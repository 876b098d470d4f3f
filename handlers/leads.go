package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blochq/bloc/engine"
	"github.com/blochq/bloc/store"
)

// LeadOut is the lead representation carrying the latest assignment.
type LeadOut struct {
	ID               uuid.UUID               `json:"id"`
	Name             *string                 `json:"name"`
	Phone            string                  `json:"phone"`
	LeadSource       *string                 `json:"lead_source"`
	City             *string                 `json:"city"`
	State            *string                 `json:"state"`
	Metadata         json.RawMessage         `json:"metadata"`
	CreatedAt        time.Time               `json:"created_at"`
	AssignedCallerID *uuid.UUID              `json:"assigned_caller_id"`
	AssignmentStatus *store.AssignmentStatus `json:"assignment_status"`
	AssignmentReason *string                 `json:"assignment_reason"`
}

func leadOut(lead *store.Lead, a *store.LeadAssignment) LeadOut {
	out := LeadOut{
		ID:         lead.ID,
		Name:       lead.Name,
		Phone:      lead.Phone,
		LeadSource: lead.LeadSource,
		City:       lead.City,
		State:      lead.State,
		Metadata:   lead.Metadata,
		CreatedAt:  lead.CreatedAt,
	}
	if a != nil {
		out.AssignedCallerID = a.CallerID
		out.AssignmentStatus = &a.Status
		out.AssignmentReason = &a.Reason
	}
	return out
}

// ListLeads returns leads newest first with their latest assignment, filtered
// by state, caller, and a case-insensitive phone/name search.
func (h *Handlers) ListLeads(w http.ResponseWriter, r *http.Request) {
	filter := store.LeadFilter{
		State:  r.URL.Query().Get("state"),
		Search: r.URL.Query().Get("search"),
	}
	if raw := r.URL.Query().Get("caller_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid caller_id")
			return
		}
		filter.CallerID = &id
	}
	p := ParsePagination(r, DefaultLeadLimit)
	filter.Limit = p.Limit
	filter.Offset = p.Offset

	rows, err := store.ListLeads(r.Context(), h.pool, filter)
	if err != nil {
		storageError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetLead returns a single lead with its latest assignment.
func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "leadID"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid lead id")
		return
	}

	ctx := r.Context()
	lead, err := store.GetLead(ctx, h.pool, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	if err != nil {
		storageError(w, h.log, err)
		return
	}
	latest, err := store.LatestAssignment(ctx, h.pool, id)
	if err != nil {
		storageError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, leadOut(lead, latest))
}

// ReassignRequest is the manual reassign body. A null caller_id re-runs the
// automatic pipeline; a UUID forces that caller, bypassing state affinity and
// the daily cap.
type ReassignRequest struct {
	CallerID *uuid.UUID `json:"caller_id"`
}

// ReassignLead routes a lead again, manually or automatically.
func (h *Handlers) ReassignLead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "leadID"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid lead id")
		return
	}
	var req ReassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body: "+err.Error())
		return
	}

	ctx := r.Context()
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		storageError(w, h.log, err)
		return
	}
	defer tx.Rollback(ctx)

	lead, err := store.GetLead(ctx, tx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	if err != nil {
		storageError(w, h.log, err)
		return
	}

	assignment, err := h.engine.Assign(ctx, tx, lead, req.CallerID, "")
	if errors.Is(err, engine.ErrInvalidForcedCaller) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		storageError(w, h.log, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		storageError(w, h.log, err)
		return
	}

	h.broadcastAssignment(lead, assignment)
	writeJSON(w, http.StatusOK, leadOut(lead, assignment))
}
