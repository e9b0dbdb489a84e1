/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/subjects/*   Subject management, day views, scores, snapshots
  /api/routines/*   Routine versions and day resolution
  /api/items/*      Mid-version item transitions
  /api/habits/*     Habits and streaks
  /api/admin/*      Snapshot rebuilds

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Subject routes
		r.Route("/subjects", func(r chi.Router) {
			r.Get("/", h.ListSubjects)
			r.Post("/", h.CreateSubject)
			r.Get("/{id}", h.GetSubject)
			r.Get("/{id}/day/{date}", h.SubjectDay)
			r.Get("/{id}/routines", h.ListRoutines)
			r.Post("/{id}/routines", h.CreateRoutine)
			r.Get("/{id}/habits", h.ListHabits)
			r.Post("/{id}/habits", h.CreateHabit)
			r.Post("/{id}/completions", h.RecordCompletion)
			r.Get("/{id}/completions", h.ListCompletions)
			r.Get("/{id}/items/{itemID}/history", h.ItemHistory)
			r.Get("/{id}/score/{date}", h.GetScore)
			r.Get("/{id}/snapshots/{date}", h.GetSnapshot)
		})

		// Routine routes
		r.Route("/routines", func(r chi.Router) {
			r.Get("/{id}", h.GetRoutine)
			r.Get("/{id}/versions", h.ListVersions)
			r.Post("/{id}/versions", h.CreateVersion)
			r.Get("/{id}/day/{date}", h.RoutineDay)
		})

		// Item transition routes
		r.Route("/items", func(r chi.Router) {
			r.Post("/{id}/supersede", h.SupersedeItem)
		})

		// Habit routes
		r.Route("/habits", func(r chi.Router) {
			r.Get("/{id}", h.GetHabit)
			r.Get("/{id}/streak", h.GetStreak)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/snapshots/rebuild", h.RebuildSnapshot)
		})
	})

	return r
}
