package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/icco/cinerec/lib/auth"
)

// Deps are the collaborators behind the JSON API.
type Deps struct {
	Store       UserStore
	Recommender Recommender
	Catalog     Catalog
	JWTSecret   string
}

// APIRoutes returns the authenticated /api subtree.
func APIRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.Middleware(d.JWTSecret))
	r.Use(EnsureUser(d.Store))

	r.Get("/recommendations", HandleRecommendations(d.Store, d.Recommender))

	r.Route("/movies", func(r chi.Router) {
		r.Get("/search", HandleSearch(d.Store, d.Catalog))
		r.Get("/{id}", HandleMovie(d.Catalog))
		r.Post("/like/{id}", HandleLike(d.Store))
		r.Post("/dislike/{id}", HandleDislike(d.Store))
	})

	r.Route("/users/me", func(r chi.Router) {
		r.Get("/", HandleProfile(d.Store))
		r.Get("/preferences", HandleGetPreferences(d.Store))
		r.Put("/preferences", HandlePutPreferences(d.Store))
		r.Get("/searches", HandleSearchHistory(d.Store))
	})

	return r
}
