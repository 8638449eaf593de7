package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/kovalyov-valentin/style-feed/internal/httpserver/deps"
	"github.com/kovalyov-valentin/style-feed/internal/httpserver/handlers"
)

func init() { Register(registerAPI) }

func registerAPI(r chi.Router, d deps.Deps) {
	r.Route("/api/users/{userId}", func(r chi.Router) {
		r.Get("/feed", handlers.Feed(d))
		r.Post("/feed/refresh", handlers.RefreshFeed(d))
		r.Get("/trending", handlers.Trending(d))

		r.Get("/sources", handlers.ListSources(d))
		r.Post("/sources", handlers.AddSource(d))
		r.Post("/sources/reset", handlers.ResetSources(d))
		r.Patch("/sources/{sourceId}", handlers.UpdateSource(d))
		r.Delete("/sources/{sourceId}", handlers.RemoveSource(d))
	})
}
