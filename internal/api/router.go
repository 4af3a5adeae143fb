// Package api is the REST surface of the chat service: account registration
// and login, profile reads and writes, and file uploads. Everything the
// client does outside the socket goes through here.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(h *Handler, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Public routes.
	r.Post("/api/register", h.Register)
	r.Post("/api/login", h.Login)

	// Uploaded files are public once their random URL is known.
	r.Handle("/uploads/*", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(h.blobs.Dir()))))

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(h.tokens))

		r.Get("/api/profile", h.GetProfile)
		r.Put("/api/profile", h.UpdateProfile)
		r.Post("/api/upload", h.Upload)
	})

	return r
}
