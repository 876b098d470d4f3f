package handlers

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/blochq/bloc/metrics"
	"github.com/blochq/bloc/realtime"
	"github.com/blochq/bloc/store"
)

// WebhookPayload is the spreadsheet webhook body.
type WebhookPayload struct {
	Name       *string         `json:"name"`
	Phone      string          `json:"phone"`
	Timestamp  time.Time       `json:"timestamp"`
	LeadSource *string         `json:"lead_source"`
	City       *string         `json:"city"`
	State      *string         `json:"state"`
	Metadata   json.RawMessage `json:"metadata"`
}

// LeadWebhook ingests one spreadsheet lead and assigns it. Safe to retry: a
// duplicate (phone, timestamp) returns the stored lead and its existing
// assignment without touching counters or creating assignment rows.
func (h *Handlers) LeadWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.verifyWebhookSecret(r) {
		h.log.Warn("webhook rejected, invalid secret", "remote", requestIP(r))
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var payload WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body: "+err.Error())
		return
	}
	if payload.Phone == "" {
		writeError(w, http.StatusUnprocessableEntity, "phone is required")
		return
	}
	if payload.Timestamp.IsZero() {
		writeError(w, http.StatusUnprocessableEntity, "timestamp is required")
		return
	}
	if !validMetadata(payload.Metadata) {
		writeError(w, http.StatusUnprocessableEntity, "metadata must be a JSON object")
		return
	}

	ctx := r.Context()
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		storageError(w, h.log, err)
		return
	}
	defer tx.Rollback(ctx)

	lead, created, err := store.CreateLead(ctx, tx, store.CreateLeadParams{
		Name:           payload.Name,
		Phone:          payload.Phone,
		SheetTimestamp: payload.Timestamp,
		LeadSource:     payload.LeadSource,
		City:           payload.City,
		State:          payload.State,
		Metadata:       payload.Metadata,
	})
	if err != nil {
		storageError(w, h.log, err)
		return
	}

	if !created {
		metrics.WebhookDuplicatesTotal.Inc()
		latest, err := store.LatestAssignment(ctx, tx, lead.ID)
		if err != nil {
			storageError(w, h.log, err)
			return
		}
		if latest != nil {
			// Idempotent repeat: mirror the existing outcome, run nothing.
			h.log.Info("webhook duplicate", "lead_id", lead.ID, "phone", lead.Phone)
			writeJSON(w, http.StatusOK, leadOut(lead, latest))
			return
		}
		// The lead exists but was never assigned (crash between insert and
		// assignment commit); fall through and let the engine place it.
	}

	assignment, err := h.engine.Assign(ctx, tx, lead, nil, "")
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

// validMetadata accepts an absent, null, or object-valued metadata field.
// Scalars and arrays would round-trip through JSONB but break every consumer
// that indexes into it.
func validMetadata(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return true
	}
	return trimmed[0] == '{' && json.Valid(trimmed)
}

func (h *Handlers) verifyWebhookSecret(r *http.Request) bool {
	if h.webhookSecret == "" {
		return true
	}
	got := r.Header.Get("X-Webhook-Secret")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) == 1
}

// broadcastAssignment emits the committed assignment to dashboards and
// records it in metrics. Called only after a successful commit.
func (h *Handlers) broadcastAssignment(lead *store.Lead, a *store.LeadAssignment) {
	metrics.AssignmentsTotal.WithLabelValues(string(a.Status), a.Reason).Inc()
	h.rt.Broadcast(realtime.AssignmentEvent{
		LeadID:           lead.ID,
		CallerID:         a.CallerID,
		AssignmentStatus: a.Status,
		AssignmentReason: a.Reason,
		Timestamp:        a.AssignedAt,
	})
}
