package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/icco/cinerec/lib/auth"
	"github.com/icco/cinerec/lib/omdb"
	"github.com/icco/cinerec/lib/recommend"
	"github.com/icco/cinerec/lib/users"
	"github.com/icco/cinerec/lib/validation"
	"github.com/icco/cinerec/models"
)

// SearchHistoryLimit is how many past searches the history endpoint returns.
const SearchHistoryLimit = 20

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// SourceHeader tells clients which path produced a recommendation list.
const SourceHeader = "X-Recommendation-Source"

// UserStore is the slice of users.Store the handlers need.
type UserStore interface {
	EnsureUser(ctx context.Context, id uuid.UUID) error
	Snapshot(ctx context.Context, id uuid.UUID) (recommend.Snapshot, error)
	Preferences(ctx context.Context, id uuid.UUID) (users.Preferences, error)
	UpdatePreferences(ctx context.Context, id uuid.UUID, p users.Preferences) (users.Preferences, error)
	Like(ctx context.Context, id uuid.UUID, m users.Movie) ([]models.LikedMovie, error)
	Dislike(ctx context.Context, id uuid.UUID, m users.Movie) ([]models.DislikedMovie, error)
	RecordSearch(ctx context.Context, id uuid.UUID, query string) error
	SearchHistory(ctx context.Context, id uuid.UUID, limit int) ([]models.SearchEntry, error)
	Profile(ctx context.Context, id uuid.UUID) (*users.Profile, error)
}

// Recommender produces recommendations from a user snapshot.
type Recommender interface {
	Generate(ctx context.Context, snap recommend.Snapshot) (*recommend.Result, error)
}

// Catalog is the catalog lookups exposed directly over HTTP.
type Catalog interface {
	SearchByTerm(ctx context.Context, q omdb.SearchQuery) ([]omdb.MovieSummary, error)
	LookupByID(ctx context.Context, id string) (*omdb.MovieDetail, error)
}

// RateRequest is the body of a like or dislike.
type RateRequest struct {
	Title  string `json:"title" validate:"required,max=500"`
	Year   string `json:"year" validate:"max=20"`
	Poster string `json:"poster" validate:"max=2048"`
}

// EnsureUser creates the authenticated caller's user row on first sight.
func EnsureUser(store UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				validation.WriteError(w, errors.New("unauthenticated"), http.StatusUnauthorized)
				return
			}
			if err := store.EnsureUser(r.Context(), id); err != nil {
				internalError(w, r, "Failed to ensure user", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func HandleRecommendations(store UserStore, rec Recommender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := userID(r)

		snap, err := store.Snapshot(r.Context(), id)
		if err != nil {
			storeError(w, r, "Failed to load user", err)
			return
		}

		result, err := rec.Generate(r.Context(), snap)
		if err != nil {
			internalError(w, r, "Failed to generate recommendations", err)
			return
		}

		slog.Info("Served recommendations",
			slog.String("user", id.String()),
			slog.String("source", string(result.Source)),
			slog.Int("count", result.Len()))

		w.Header().Set(SourceHeader, string(result.Source))
		if result.Source == recommend.SourceFallback {
			validation.WriteJSON(w, result.Popular, http.StatusOK)
			return
		}
		validation.WriteJSON(w, result.Movies, http.StatusOK)
	}
}

func HandleSearch(store UserStore, catalog Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		title := strings.TrimSpace(r.URL.Query().Get("title"))
		if err := validation.ValidateSearchTerm(title); err != nil {
			validation.WriteError(w, err, http.StatusBadRequest)
			return
		}

		page := 1
		if raw := r.URL.Query().Get("page"); raw != "" {
			p, err := strconv.Atoi(raw)
			if err != nil {
				validation.WriteError(w, errors.New("page must be a number"), http.StatusBadRequest)
				return
			}
			page = p
		}
		if err := validation.ValidatePage(page); err != nil {
			validation.WriteError(w, err, http.StatusBadRequest)
			return
		}

		id := userID(r)
		if err := store.RecordSearch(r.Context(), id, title); err != nil {
			storeError(w, r, "Failed to record search", err)
			return
		}

		movies, err := catalog.SearchByTerm(r.Context(), omdb.SearchQuery{Term: title, Page: page})
		if err != nil {
			catalogError(w, err)
			return
		}
		validation.WriteJSON(w, movies, http.StatusOK)
	}
}

func HandleMovie(catalog Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		imdbID := chi.URLParam(r, "id")
		if err := validation.ValidateIMDbID(imdbID); err != nil {
			validation.WriteError(w, err, http.StatusBadRequest)
			return
		}

		movie, err := catalog.LookupByID(r.Context(), imdbID)
		if err != nil {
			catalogError(w, err)
			return
		}
		validation.WriteJSON(w, movie, http.StatusOK)
	}
}

func HandleLike(store UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		movie, ok := decodeRating(w, r)
		if !ok {
			return
		}

		liked, err := store.Like(r.Context(), userID(r), movie)
		if errors.Is(err, users.ErrAlreadyLiked) {
			validation.WriteJSON(w, map[string]string{"error": "Movie already liked"}, http.StatusBadRequest)
			return
		}
		if err != nil {
			storeError(w, r, "Failed to like movie", err)
			return
		}
		validation.WriteJSON(w, liked, http.StatusOK)
	}
}

func HandleDislike(store UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		movie, ok := decodeRating(w, r)
		if !ok {
			return
		}

		disliked, err := store.Dislike(r.Context(), userID(r), movie)
		if errors.Is(err, users.ErrAlreadyDisliked) {
			validation.WriteJSON(w, map[string]string{"error": "Movie already disliked"}, http.StatusBadRequest)
			return
		}
		if err != nil {
			storeError(w, r, "Failed to dislike movie", err)
			return
		}
		validation.WriteJSON(w, disliked, http.StatusOK)
	}
}

func HandleGetPreferences(store UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefs, err := store.Preferences(r.Context(), userID(r))
		if err != nil {
			storeError(w, r, "Failed to load preferences", err)
			return
		}
		validation.WriteJSON(w, prefs, http.StatusOK)
	}
}

func HandlePutPreferences(store UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var prefs users.Preferences
		if !decodeJSON(w, r, &prefs) {
			return
		}

		saved, err := store.UpdatePreferences(r.Context(), userID(r), prefs)
		if err != nil {
			storeError(w, r, "Failed to update preferences", err)
			return
		}
		validation.WriteJSON(w, saved, http.StatusOK)
	}
}

func HandleProfile(store UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := store.Profile(r.Context(), userID(r))
		if err != nil {
			storeError(w, r, "Failed to load profile", err)
			return
		}
		validation.WriteJSON(w, profile, http.StatusOK)
	}
}

func HandleSearchHistory(store UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := store.SearchHistory(r.Context(), userID(r), SearchHistoryLimit)
		if err != nil {
			storeError(w, r, "Failed to load search history", err)
			return
		}
		validation.WriteJSON(w, entries, http.StatusOK)
	}
}

// decodeRating reads the movie id from the path and the rest from the body.
func decodeRating(w http.ResponseWriter, r *http.Request) (users.Movie, bool) {
	imdbID := chi.URLParam(r, "id")
	if err := validation.ValidateIMDbID(imdbID); err != nil {
		validation.WriteError(w, err, http.StatusBadRequest)
		return users.Movie{}, false
	}

	var req RateRequest
	if !decodeJSON(w, r, &req) {
		return users.Movie{}, false
	}
	return users.Movie{
		IMDbID: imdbID,
		Title:  strings.TrimSpace(req.Title),
		Year:   req.Year,
		Poster: req.Poster,
	}, true
}

// decodeJSON decodes and validates the request body into v, writing a 400
// on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		validation.WriteError(w, errors.New("failed to read request body"), http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		validation.WriteError(w, errors.New("invalid JSON body"), http.StatusBadRequest)
		return false
	}
	if err := validation.Struct(v); err != nil {
		validation.WriteError(w, err, http.StatusBadRequest)
		return false
	}
	return true
}

// userID is only called behind auth.Middleware.
func userID(r *http.Request) uuid.UUID {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

func catalogError(w http.ResponseWriter, err error) {
	if errors.Is(err, omdb.ErrNotFound) {
		validation.WriteError(w, err, http.StatusNotFound)
		return
	}
	validation.WriteError(w, errors.New("movie catalog unavailable"), http.StatusBadGateway)
}

func storeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, users.ErrUserNotFound) {
		validation.WriteError(w, err, http.StatusNotFound)
		return
	}
	internalError(w, r, msg, err)
}

func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.ErrorContext(r.Context(), msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	validation.WriteError(w, errors.New("internal server error"), http.StatusInternalServerError)
}
