/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/leaves/*       Leave request lifecycle
  /api/balances/*     Balance rows and their journal
  /api/leave-types/*  Catalog management
  /api/admin/*        Adjustments, seeding, manual job triggers

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-Id"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/leaves", func(r chi.Router) {
			r.Post("/", h.ApplyLeave)
			r.Get("/", h.ListLeaves)
			r.Get("/pending", h.ListPendingLeaves)
			r.Get("/{id}", h.GetLeave)
			r.Post("/{id}/approve", h.ApproveLeave)
			r.Post("/{id}/reject", h.RejectLeave)
			r.Post("/{id}/cancel", h.CancelLeave)
		})

		r.Route("/balances", func(r chi.Router) {
			r.Get("/", h.GetBalances)
			r.Get("/entries", h.GetBalanceEntries)
		})

		r.Route("/leave-types", func(r chi.Router) {
			r.Get("/", h.ListLeaveTypes)
			r.Post("/", h.CreateLeaveType)
			r.Get("/{id}", h.GetLeaveType)
			r.Put("/{id}", h.UpdateLeaveType)
			r.Delete("/{id}", h.DeleteLeaveType)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/adjustments", h.CreateAdjustment)
			r.Post("/bulk-adjustments", h.CreateBulkAdjustment)
			r.Post("/initialize-balances", h.InitializeBalances)
			r.Post("/run-accrual", h.RunAccrual)
			r.Post("/run-carryover", h.RunCarryOver)
		})
	})

	return r
}
