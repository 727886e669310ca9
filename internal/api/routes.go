package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router. Everything under /api requires
// the bearer API key; /health does not.
func SetupRoutes(h *Handlers, apiKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(apiKey))

		r.Route("/user", func(r chi.Router) {
			r.Post("/{id}", h.CreateUser)
			r.Patch("/{id}", h.UpdateUser)
			r.Get("/{id}", h.GetUser)
			r.Delete("/{id}", h.DeleteUser)
			r.Post("/{id}/event/{name}", h.EmitEvent)
			r.Get("/{id}/event", h.ListEvents)
			r.Get("/{id}/segment", h.UserSegments)
			r.Get("/{id}/execution", h.UserExecutions)
		})

		r.Route("/segment", func(r chi.Router) {
			r.Get("/", h.ListSegments)
			r.Post("/preview", h.PreviewSegment)
			r.Post("/{id}", h.CreateSegment)
			r.Patch("/{id}", h.UpdateSegment)
			r.Delete("/{id}", h.DeleteSegment)
			r.Get("/{id}", h.GetSegment)
			r.Get("/{id}/user", h.SegmentMembers)
		})

		r.Route("/campaign", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/{id}", h.CreateCampaign)
			r.Delete("/{id}", h.DeleteCampaign)
			r.Get("/{id}", h.GetCampaign)
		})

		r.Route("/template", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/{id}", h.CreateTemplate)
			r.Patch("/{id}", h.UpdateTemplate)
			r.Delete("/{id}", h.DeleteTemplate)
			r.Get("/{id}", h.GetTemplate)
		})

		r.Route("/transaction", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Get("/{id}", h.GetTransaction)
		})

		r.Post("/email/config", h.SetEmailProvider)

		r.Post("/config", h.PushConfig)
		r.Get("/config", h.CurrentConfig)
	})

	return r
}

// bearerAuth rejects requests whose Authorization header does not
// carry the configured key.
func bearerAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			header := req.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
