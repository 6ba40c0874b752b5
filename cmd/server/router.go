package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/genqueue/internal/api"
	apiMiddleware "github.com/phrazzld/genqueue/internal/api/middleware"
	"github.com/phrazzld/genqueue/internal/api/shared"
	"github.com/rs/cors"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: app.config.Server.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}).Handler)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))

	jobHandler := api.NewJobHandler(app.jobService, app.broker, api.DefaultStreamRefresh)

	jobRoutes := func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if app.jwtService != nil {
				r.Use(apiMiddleware.NewAuthMiddleware(app.jwtService).Authenticate)
			}
			jobHandler.RegisterRoutes(r)
		})
	}

	// The API lives under /api; the same routes are served from the root.
	r.Route("/api", jobRoutes)
	jobRoutes(r)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
