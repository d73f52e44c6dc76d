package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/icco/cinerec/lib/auth"
	"github.com/icco/cinerec/lib/db"
	"github.com/icco/cinerec/lib/lock"
	"github.com/icco/cinerec/lib/omdb"
	"github.com/icco/cinerec/lib/recommend"
	"github.com/icco/cinerec/lib/users"
	"github.com/icco/cinerec/models"
)

const testSecret = "handler-test-secret-0123456789"

type fakeCatalog struct {
	searches map[string][]omdb.MovieSummary
	details  map[string]*omdb.MovieDetail
	down     bool
}

func (f *fakeCatalog) SearchByTerm(ctx context.Context, q omdb.SearchQuery) ([]omdb.MovieSummary, error) {
	if f.down {
		return nil, fmt.Errorf("%w: connection refused", omdb.ErrUpstream)
	}
	if res, ok := f.searches[q.Term]; ok {
		return res, nil
	}
	return nil, fmt.Errorf("%w: Movie not found!", omdb.ErrNotFound)
}

func (f *fakeCatalog) LookupByID(ctx context.Context, id string) (*omdb.MovieDetail, error) {
	if f.down {
		return nil, fmt.Errorf("%w: connection refused", omdb.ErrUpstream)
	}
	for _, d := range f.details {
		if d.IMDbID == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: Incorrect IMDb ID.", omdb.ErrNotFound)
}

func (f *fakeCatalog) LookupByTitle(ctx context.Context, title string) (*omdb.MovieDetail, error) {
	if d, ok := f.details[title]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: Movie not found!", omdb.ErrNotFound)
}

type testServer struct {
	handler http.Handler
	store   *users.Store
	catalog *fakeCatalog
	token   string
	userID  uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	gdb, err := db.Open(context.Background(), filepath.Join(dir, "api.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	store := users.NewStore(gdb, lock.NewFileLock(filepath.Join(dir, "locks"), logger), logger)

	catalog := &fakeCatalog{
		searches: map[string][]omdb.MovieSummary{
			"Comedy": {
				{IMDbID: "tt0107048", Title: "Groundhog Day", Year: "1993"},
				{IMDbID: "tt0118715", Title: "The Big Lebowski", Year: "1998"},
			},
			"Heat": {
				{IMDbID: "tt0113277", Title: "Heat", Year: "1995"},
			},
		},
		details: map[string]*omdb.MovieDetail{
			"Inception":    {IMDbID: "tt1375666", Title: "Inception", Genre: "Action, Sci-Fi"},
			"Pulp Fiction": {IMDbID: "tt0110912", Title: "Pulp Fiction", Genre: "Crime, Drama"},
		},
	}

	engine := recommend.New(catalog, recommend.NewFallback(catalog, recommend.DefaultFallbackTitles, logger), logger)

	id := uuid.New()
	token, err := auth.IssueToken(id, testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	return &testServer{
		handler: APIRoutes(Deps{Store: store, Recommender: engine, Catalog: catalog, JWTSecret: testSecret}),
		store:   store,
		catalog: catalog,
		token:   token,
		userID:  id,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decode(t, rec, &body)
	return body["error"]
}

func TestAPI_RequiresToken(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/recommendations", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRecommendations(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/recommendations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(SourceHeader); got != string(recommend.SourceFallback) {
		t.Errorf("%s = %q, want fallback", SourceHeader, got)
	}
	var popular []omdb.MovieDetail
	decode(t, rec, &popular)
	if len(popular) != 2 || popular[0].IMDbID != "tt1375666" || popular[1].IMDbID != "tt0110912" {
		t.Errorf("fallback list = %+v", popular)
	}

	if rec := s.do(t, http.MethodPut, "/users/me/preferences", `{"genres":["Comedy"]}`); rec.Code != http.StatusOK {
		t.Fatalf("PUT preferences status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec := s.do(t, http.MethodPost, "/movies/like/tt0118715", `{"title":"The Big Lebowski"}`); rec.Code != http.StatusOK {
		t.Fatalf("like status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/recommendations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(SourceHeader); got != string(recommend.SourcePersonalized) {
		t.Errorf("%s = %q, want personalized", SourceHeader, got)
	}
	var movies []omdb.MovieSummary
	decode(t, rec, &movies)
	if len(movies) != 1 || movies[0].IMDbID != "tt0107048" {
		t.Errorf("personalized list = %+v, want only Groundhog Day", movies)
	}
}

func TestSearch(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		query    string
		down     bool
		wantCode int
	}{
		{name: "missing title", query: "", wantCode: http.StatusBadRequest},
		{name: "blank title", query: "title=%20%20", wantCode: http.StatusBadRequest},
		{name: "page zero", query: "title=Heat&page=0", wantCode: http.StatusBadRequest},
		{name: "page too large", query: "title=Heat&page=101", wantCode: http.StatusBadRequest},
		{name: "page not a number", query: "title=Heat&page=two", wantCode: http.StatusBadRequest},
		{name: "found", query: "title=Heat", wantCode: http.StatusOK},
		{name: "found with page", query: "title=Heat&page=2", wantCode: http.StatusOK},
		{name: "not found", query: "title=Zzzz", wantCode: http.StatusNotFound},
		{name: "catalog down", query: "title=Heat", down: true, wantCode: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.catalog.down = tt.down
			rec := s.do(t, http.MethodGet, "/movies/search?"+tt.query, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK && errorMessage(t, rec) == "" {
				t.Error("error body missing message")
			}
		})
	}
	s.catalog.down = false

	rec := s.do(t, http.MethodGet, "/users/me/searches", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var history []models.SearchEntry
	decode(t, rec, &history)
	// Every accepted search is recorded, including ones the catalog rejects.
	if len(history) != 4 || history[0].Query != "Heat" || history[1].Query != "Zzzz" {
		t.Errorf("history = %+v", history)
	}
}

func TestMovie(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodGet, "/movies/not-an-id", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/movies/tt9999999", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/movies/tt1375666", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var movie omdb.MovieDetail
	decode(t, rec, &movie)
	if movie.Title != "Inception" {
		t.Errorf("movie = %+v", movie)
	}
}

func TestLikeDislike(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodPost, "/movies/like/tt0113277", `{"year":"1995"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing title status = %d, want 400", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/movies/like/tt0113277", `{not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want 400", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/movies/like/bogus", `{"title":"Heat"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/movies/like/tt0113277", `{"title":"Heat","year":"1995","poster":"N/A"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("like status = %d, body %s", rec.Code, rec.Body.String())
	}
	var liked []models.LikedMovie
	decode(t, rec, &liked)
	if len(liked) != 1 || liked[0].IMDbID != "tt0113277" || liked[0].Title != "Heat" {
		t.Errorf("liked = %+v", liked)
	}

	rec = s.do(t, http.MethodPost, "/movies/like/tt0113277", `{"title":"Heat"}`)
	if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != "Movie already liked" {
		t.Errorf("repeat like = %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/movies/dislike/tt0113277", `{"title":"Heat"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("dislike status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/movies/dislike/tt0113277", `{"title":"Heat"}`)
	if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != "Movie already disliked" {
		t.Errorf("repeat dislike = %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/users/me", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("profile status = %d", rec.Code)
	}
	var profile users.Profile
	decode(t, rec, &profile)
	if profile.User.ID != s.userID {
		t.Errorf("profile id = %s, want %s", profile.User.ID, s.userID)
	}
	if len(profile.User.Liked) != 0 || len(profile.User.Disliked) != 1 {
		t.Errorf("profile liked=%d disliked=%d, want 0 and 1", len(profile.User.Liked), len(profile.User.Disliked))
	}
	if profile.Stats.TotalDisliked != 1 {
		t.Errorf("stats = %+v", profile.Stats)
	}
}

func TestPreferences(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/users/me/preferences", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var prefs users.Preferences
	decode(t, rec, &prefs)
	if len(prefs.Genres) != 0 || len(prefs.Actors) != 0 || len(prefs.Directors) != 0 {
		t.Errorf("fresh preferences = %+v", prefs)
	}

	body := `{"genres":["Drama"," Drama ",""],"actors":["Al Pacino"],"directors":["Michael Mann"]}`
	rec = s.do(t, http.MethodPut, "/users/me/preferences", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &prefs)
	if len(prefs.Genres) != 1 || prefs.Genres[0] != "Drama" || prefs.Directors[0] != "Michael Mann" {
		t.Errorf("saved preferences = %+v", prefs)
	}

	long := bytes.Repeat([]byte("x"), 101)
	rec = s.do(t, http.MethodPut, "/users/me/preferences", `{"genres":["`+string(long)+`"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("oversized entry status = %d, want 400", rec.Code)
	}
}
