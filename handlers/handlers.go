// Package handlers is the HTTP surface: webhook ingest, lead listing and
// reassignment, caller CRUD, the dashboard WebSocket, and health. Handlers
// own the transaction boundary — the engine runs inside a transaction the
// handler begins and commits, and events are broadcast only after commit.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blochq/bloc/engine"
	"github.com/blochq/bloc/metrics"
	"github.com/blochq/bloc/realtime"
)

// Handlers carries the shared dependencies of the HTTP surface.
type Handlers struct {
	log           *slog.Logger
	pool          *pgxpool.Pool
	engine        *engine.Engine
	rt            *realtime.ConnectionManager
	webhookSecret string
	corsOrigins   []string
}

func New(log *slog.Logger, pool *pgxpool.Pool, eng *engine.Engine, rt *realtime.ConnectionManager, webhookSecret string, corsOrigins []string) *Handlers {
	return &Handlers{
		log:           log,
		pool:          pool,
		engine:        eng,
		rt:            rt,
		webhookSecret: webhookSecret,
		corsOrigins:   corsOrigins,
	}
}

// Router builds the chi router with logging, recovery, CORS, and metrics
// middleware. The same origin list gates the dashboard WebSocket handshake.
func (h *Handlers) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Webhook-Secret"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/leads/webhook", h.LeadWebhook)
		r.With(ListRateLimitMiddleware).Get("/leads", h.ListLeads)
		r.Get("/leads/{leadID}", h.GetLead)
		r.Patch("/leads/{leadID}/reassign", h.ReassignLead)

		r.Post("/callers", h.CreateCaller)
		r.Get("/callers", h.ListCallers)
		r.Get("/callers/{callerID}", h.GetCaller)
		r.Put("/callers/{callerID}", h.UpdateCaller)
		r.Patch("/callers/{callerID}/status", h.UpdateCallerStatus)
		r.Delete("/callers/{callerID}", h.DeleteCaller)
	})

	r.Get("/ws/dashboard", h.DashboardWS)
	r.Get("/health", h.Health)

	return r
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
