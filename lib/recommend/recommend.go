// Package recommend builds movie recommendations from a user's preferences
// and like/dislike history.
//
// Candidates come from up to three signals, each one catalog search:
//
//   - genre: a random preferred genre
//   - liked: the first word of a random liked title
//   - actor: a random preferred actor
//
// Results are merged in that order, deduplicated by IMDb id, stripped of
// anything the user already liked or disliked and capped at MaxResults.
// Users with no signal at all get the Fallback list instead.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/icco/cinerec/lib/metrics"
	"github.com/icco/cinerec/lib/omdb"
	"golang.org/x/sync/errgroup"
)

// MaxResults caps every personalized list.
const MaxResults = 10

// DefaultSignalTimeout bounds a single signal query.
const DefaultSignalTimeout = 5 * time.Second

// Source says which path produced a Result.
type Source string

const (
	SourcePersonalized Source = "personalized"
	SourceFallback     Source = "fallback"
)

// Signal names, in merge order.
const (
	SignalGenre = "genre"
	SignalLiked = "liked"
	SignalActor = "actor"
)

// RatedMovie is a movie the user liked or disliked.
type RatedMovie struct {
	IMDbID string
	Title  string
	Year   string
	Poster string
}

// Snapshot is the read-only view of one user the engine works from.
type Snapshot struct {
	Genres    []string
	Actors    []string
	Directors []string
	Liked     []RatedMovie
	Disliked  []RatedMovie
}

// HasSignal reports whether any preference or like exists. Dislikes alone
// do not count.
func (s Snapshot) HasSignal() bool {
	return len(s.Genres) > 0 || len(s.Actors) > 0 || len(s.Directors) > 0 || len(s.Liked) > 0
}

// excluded returns the ids of every liked and disliked movie.
func (s Snapshot) excluded() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.Liked)+len(s.Disliked))
	for _, m := range s.Liked {
		ids[m.IMDbID] = struct{}{}
	}
	for _, m := range s.Disliked {
		ids[m.IMDbID] = struct{}{}
	}
	return ids
}

// Result holds either a personalized list or the fallback list; callers
// switch on Source.
type Result struct {
	Source  Source
	Movies  []omdb.MovieSummary
	Popular []omdb.MovieDetail
}

// Len is the number of movies in whichever list is populated.
func (r *Result) Len() int {
	if r.Source == SourceFallback {
		return len(r.Popular)
	}
	return len(r.Movies)
}

// Searcher runs a catalog search.
type Searcher interface {
	SearchByTerm(ctx context.Context, q omdb.SearchQuery) ([]omdb.MovieSummary, error)
}

type Engine struct {
	catalog       Searcher
	fallback      *Fallback
	picker        Picker
	signalTimeout time.Duration
	logger        *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPicker replaces the random source used to choose signal terms.
func WithPicker(p Picker) Option {
	return func(e *Engine) { e.picker = p }
}

// WithSignalTimeout bounds each signal query. Zero disables the bound.
func WithSignalTimeout(d time.Duration) Option {
	return func(e *Engine) { e.signalTimeout = d }
}

func New(catalog Searcher, fallback *Fallback, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		catalog:       catalog,
		fallback:      fallback,
		picker:        NewPicker(0),
		signalTimeout: DefaultSignalTimeout,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// query is one planned signal search.
type query struct {
	signal string
	term   string
	// filterRated drops liked and disliked ids before merging.
	filterRated bool
}

// Generate computes a fresh recommendation for snap. Individual signal
// failures are logged and skipped, so the only error is a failed fallback.
func (e *Engine) Generate(ctx context.Context, snap Snapshot) (*Result, error) {
	if !snap.HasSignal() {
		e.logger.Debug("No preference signal, serving fallback list")
		popular, err := e.fallback.Popular(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to build fallback list: %w", err)
		}
		metrics.RecordRecommendation(string(SourceFallback), len(popular))
		return &Result{Source: SourceFallback, Popular: popular}, nil
	}

	queries := e.plan(snap)
	exclude := snap.excluded()

	// Each query owns its slot, so merge order is fixed regardless of
	// which search finishes first.
	groups := make([][]omdb.MovieSummary, len(queries))
	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			groups[i] = e.run(ctx, q, exclude)
			return nil
		})
	}
	_ = g.Wait()

	movies := merge(groups, exclude, MaxResults)
	e.logger.Debug("Generated recommendations",
		slog.Int("signals", len(queries)),
		slog.Int("count", len(movies)))
	metrics.RecordRecommendation(string(SourcePersonalized), len(movies))
	return &Result{Source: SourcePersonalized, Movies: movies}, nil
}

// plan picks the term for every active signal, in merge order.
func (e *Engine) plan(snap Snapshot) []query {
	var queries []query
	if len(snap.Genres) > 0 {
		queries = append(queries, query{
			signal: SignalGenre,
			term:   snap.Genres[e.picker.Intn(len(snap.Genres))],
		})
	}
	if len(snap.Liked) > 0 {
		liked := snap.Liked[e.picker.Intn(len(snap.Liked))]
		queries = append(queries, query{
			signal:      SignalLiked,
			term:        SimilarityTerm(liked.Title),
			filterRated: true,
		})
	}
	if len(snap.Actors) > 0 {
		queries = append(queries, query{
			signal: SignalActor,
			term:   snap.Actors[e.picker.Intn(len(snap.Actors))],
		})
	}
	return queries
}

// run executes one signal query and returns its usable candidates.
func (e *Engine) run(ctx context.Context, q query, exclude map[string]struct{}) []omdb.MovieSummary {
	if q.term == "" {
		metrics.RecordSignal(q.signal, "skipped")
		return nil
	}

	if e.signalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.signalTimeout)
		defer cancel()
	}

	movies, err := e.catalog.SearchByTerm(ctx, omdb.SearchQuery{Term: q.term, Type: omdb.TypeMovie})
	if err != nil {
		outcome := "upstream_error"
		if errors.Is(err, omdb.ErrNotFound) {
			outcome = "not_found"
		}
		metrics.RecordSignal(q.signal, outcome)
		e.logger.Warn("Signal query failed",
			slog.String("signal", q.signal),
			slog.String("term", q.term),
			slog.Any("error", err))
		return nil
	}

	if q.filterRated {
		movies = without(movies, exclude)
	}

	if len(movies) == 0 {
		metrics.RecordSignal(q.signal, "empty")
	} else {
		metrics.RecordSignal(q.signal, "ok")
	}
	return movies
}

// SimilarityTerm derives the search term for a liked title: its first
// whitespace-delimited word.
func SimilarityTerm(title string) string {
	fields := strings.Fields(title)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// merge flattens groups in order, keeping the first occurrence of each id,
// dropping excluded ids and stopping at limit.
func merge(groups [][]omdb.MovieSummary, exclude map[string]struct{}, limit int) []omdb.MovieSummary {
	out := make([]omdb.MovieSummary, 0, limit)
	seen := make(map[string]struct{})
	for _, group := range groups {
		for _, m := range group {
			if _, dup := seen[m.IMDbID]; dup {
				continue
			}
			seen[m.IMDbID] = struct{}{}
			if _, skip := exclude[m.IMDbID]; skip {
				continue
			}
			out = append(out, m)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

func without(movies []omdb.MovieSummary, exclude map[string]struct{}) []omdb.MovieSummary {
	kept := make([]omdb.MovieSummary, 0, len(movies))
	for _, m := range movies {
		if _, skip := exclude[m.IMDbID]; !skip {
			kept = append(kept, m)
		}
	}
	return kept
}
