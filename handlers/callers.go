package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blochq/bloc/store"
)

// CallerOut is the caller representation with routing state and today's
// assignment count.
type CallerOut struct {
	ID                 uuid.UUID          `json:"id"`
	Name               string             `json:"name"`
	Role               *string            `json:"role"`
	Languages          []string           `json:"languages"`
	DailyLimit         int                `json:"daily_limit"`
	AssignedStates     []string           `json:"assigned_states"`
	LeadsAssignedToday int                `json:"leads_assigned_today"`
	Status             store.CallerStatus `json:"status"`
}

func callerOut(c *store.Caller, states []string, today int) CallerOut {
	if states == nil {
		states = []string{}
	}
	return CallerOut{
		ID:                 c.ID,
		Name:               c.Name,
		Role:               c.Role,
		Languages:          c.Languages,
		DailyLimit:         c.DailyLimit,
		AssignedStates:     states,
		LeadsAssignedToday: today,
		Status:             c.Status,
	}
}

func validCallerStatus(s store.CallerStatus) bool {
	return s == store.CallerActive || s == store.CallerPaused
}

// CreateCallerRequest is the POST /api/callers body.
type CreateCallerRequest struct {
	Name           string             `json:"name"`
	Role           *string            `json:"role"`
	Languages      []string           `json:"languages"`
	DailyLimit     int                `json:"daily_limit"`
	AssignedStates []string           `json:"assigned_states"`
	Status         store.CallerStatus `json:"status"`
}

// CreateCaller registers a new caller with its state mappings.
func (h *Handlers) CreateCaller(w http.ResponseWriter, r *http.Request) {
	var req CreateCallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	if req.DailyLimit < 0 {
		writeError(w, http.StatusBadRequest, "daily_limit must be non-negative")
		return
	}
	if req.Status == "" {
		req.Status = store.CallerActive
	}
	if !validCallerStatus(req.Status) {
		writeError(w, http.StatusUnprocessableEntity, "status must be active or paused")
		return
	}

	ctx := r.Context()
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		storageError(w, h.log, err)
		return
	}
	defer tx.Rollback(ctx)

	caller, err := store.CreateCaller(ctx, tx, store.CreateCallerParams{
		Name:       req.Name,
		Role:       req.Role,
		Languages:  req.Languages,
		DailyLimit: req.DailyLimit,
		Status:     req.Status,
		States:     req.AssignedStates,
	})
	if err != nil {
		storageError(w, h.log, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		storageError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, callerOut(caller, req.AssignedStates, 0))
}

// ListCallers returns all callers with assigned states and today's counts.
func (h *Handlers) ListCallers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callers, err := store.ListCallers(ctx, h.pool)
	if err != nil {
		storageError(w, h.log, err)
		return
	}

	ids := make([]uuid.UUID, len(callers))
	for i, c := range callers {
		ids[i] = c.ID
	}
	states, err := store.CallerStates(ctx, h.pool, ids)
	if err != nil {
		storageError(w, h.log, err)
		return
	}
	counts, err := store.DailyCounts(ctx, h.pool, h.engine.BusinessDate())
	if err != nil {
		storageError(w, h.log, err)
		return
	}

	out := make([]CallerOut, len(callers))
	for i, c := range callers {
		out[i] = callerOut(&c, states[c.ID], counts[c.ID])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCaller returns one caller.
func (h *Handlers) GetCaller(w http.ResponseWriter, r *http.Request) {
	id, ok := h.callerID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	caller, err := store.GetCaller(ctx, h.pool, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "caller not found")
		return
	}
	if err != nil {
		storageError(w, h.log, err)
		return
	}
	h.respondCaller(w, r, caller)
}

// UpdateCallerRequest is the PUT /api/callers/{id} body; nil fields are left
// unchanged.
type UpdateCallerRequest struct {
	Role           *string             `json:"role"`
	Languages      []string            `json:"languages"`
	DailyLimit     *int                `json:"daily_limit"`
	AssignedStates []string            `json:"assigned_states"`
	Status         *store.CallerStatus `json:"status"`
}

// UpdateCaller applies a partial update.
func (h *Handlers) UpdateCaller(w http.ResponseWriter, r *http.Request) {
	id, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req UpdateCallerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body: "+err.Error())
		return
	}
	if req.DailyLimit != nil && *req.DailyLimit < 0 {
		writeError(w, http.StatusBadRequest, "daily_limit must be non-negative")
		return
	}
	if req.Status != nil && !validCallerStatus(*req.Status) {
		writeError(w, http.StatusUnprocessableEntity, "status must be active or paused")
		return
	}

	ctx := r.Context()
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		storageError(w, h.log, err)
		return
	}
	defer tx.Rollback(ctx)

	caller, err := store.UpdateCaller(ctx, tx, id, store.UpdateCallerParams{
		Role:       req.Role,
		Languages:  req.Languages,
		DailyLimit: req.DailyLimit,
		Status:     req.Status,
		States:     req.AssignedStates,
	})
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "caller not found")
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
	h.respondCaller(w, r, caller)
}

// CallerStatusRequest is the PATCH /api/callers/{id}/status body.
type CallerStatusRequest struct {
	Status store.CallerStatus `json:"status"`
}

// UpdateCallerStatus flips a caller between active and paused.
func (h *Handlers) UpdateCallerStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req CallerStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body: "+err.Error())
		return
	}
	if !validCallerStatus(req.Status) {
		writeError(w, http.StatusUnprocessableEntity, "status must be active or paused")
		return
	}

	caller, err := store.SetCallerStatus(r.Context(), h.pool, id, req.Status)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "caller not found")
		return
	}
	if err != nil {
		storageError(w, h.log, err)
		return
	}
	h.respondCaller(w, r, caller)
}

// DeleteCaller soft-deletes by flipping the caller to paused.
func (h *Handlers) DeleteCaller(w http.ResponseWriter, r *http.Request) {
	id, ok := h.callerID(w, r)
	if !ok {
		return
	}
	_, err := store.SetCallerStatus(r.Context(), h.pool, id, store.CallerPaused)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "caller not found")
		return
	}
	if err != nil {
		storageError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "callerID"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid caller id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) respondCaller(w http.ResponseWriter, r *http.Request, caller *store.Caller) {
	ctx := r.Context()
	states, err := store.CallerStates(ctx, h.pool, []uuid.UUID{caller.ID})
	if err != nil {
		storageError(w, h.log, err)
		return
	}
	today, err := store.DailyCount(ctx, h.pool, caller.ID, h.engine.BusinessDate())
	if err != nil {
		storageError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, callerOut(caller, states[caller.ID], today))
}
