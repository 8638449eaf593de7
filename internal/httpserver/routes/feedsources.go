package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/kovalyov-valentin/style-feed/internal/httpserver/deps"
	"github.com/kovalyov-valentin/style-feed/internal/httpserver/handlers"
)

func init() { Register(registerFeedSources) }

func registerFeedSources(r chi.Router, d deps.Deps) {
	r.Route("/users/{userId}/feed-sources", func(r chi.Router) {
		r.Get("/", handlers.GetFeedSources(d))
		r.Put("/", handlers.PutFeedSources(d))
	})
}
