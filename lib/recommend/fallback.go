package recommend

import (
	"context"
	"errors"
	"log/slog"

	"github.com/icco/cinerec/lib/omdb"
)

// ErrNoFallbackTitles is returned when the curated list is empty.
var ErrNoFallbackTitles = errors.New("no fallback titles configured")

// DefaultFallbackTitles are well-known titles shown to users without any signal.
var DefaultFallbackTitles = []string{
	"Inception",
	"The Dark Knight",
	"Pulp Fiction",
	"The Godfather",
	"Forrest Gump",
}

// TitleLookup resolves a title to its catalog record.
type TitleLookup interface {
	LookupByTitle(ctx context.Context, title string) (*omdb.MovieDetail, error)
}

// Fallback serves a fixed list of popular movies.
type Fallback struct {
	catalog TitleLookup
	titles  []string
	logger  *slog.Logger
}

// NewFallback builds a Fallback over the given titles, looked up in order.
func NewFallback(catalog TitleLookup, titles []string, logger *slog.Logger) *Fallback {
	return &Fallback{
		catalog: catalog,
		titles:  append([]string(nil), titles...),
		logger:  logger,
	}
}

// Popular looks up every curated title. Titles that fail to resolve are
// logged and left out, so the result may be shorter than the list.
func (f *Fallback) Popular(ctx context.Context) ([]omdb.MovieDetail, error) {
	if len(f.titles) == 0 {
		return nil, ErrNoFallbackTitles
	}

	movies := make([]omdb.MovieDetail, 0, len(f.titles))
	for _, title := range f.titles {
		movie, err := f.catalog.LookupByTitle(ctx, title)
		if err != nil {
			f.logger.Warn("Failed to fetch fallback movie",
				slog.String("title", title),
				slog.Any("error", err))
			continue
		}
		movies = append(movies, *movie)
	}

	f.logger.Debug("Built fallback list",
		slog.Int("requested", len(f.titles)),
		slog.Int("found", len(movies)))
	return movies, nil
}
