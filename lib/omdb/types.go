package omdb

import "strings"

// MovieSummary is a single search result.
type MovieSummary struct {
	IMDbID string `json:"imdbID"`
	Title  string `json:"Title"`
	Year   string `json:"Year"`
	Poster string `json:"Poster"`
	Type   string `json:"Type,omitempty"`
}

// MovieDetail is the full record returned by a single-title lookup.
type MovieDetail struct {
	IMDbID     string `json:"imdbID"`
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	Poster     string `json:"Poster"`
	Type       string `json:"Type,omitempty"`
	Rated      string `json:"Rated"`
	Released   string `json:"Released,omitempty"`
	Runtime    string `json:"Runtime"`
	Genre      string `json:"Genre"`
	Director   string `json:"Director"`
	Writer     string `json:"Writer,omitempty"`
	Actors     string `json:"Actors"`
	Plot       string `json:"Plot"`
	Language   string `json:"Language,omitempty"`
	Country    string `json:"Country,omitempty"`
	Awards     string `json:"Awards,omitempty"`
	IMDbRating string `json:"imdbRating"`
}

// Summary returns the search-shaped view of the detail.
func (d MovieDetail) Summary() MovieSummary {
	return MovieSummary{
		IMDbID: d.IMDbID,
		Title:  d.Title,
		Year:   d.Year,
		Poster: d.Poster,
		Type:   d.Type,
	}
}

// Genres splits the comma-separated genre field.
func (d MovieDetail) Genres() []string {
	return splitList(d.Genre)
}

// Cast splits the comma-separated actors field.
func (d MovieDetail) Cast() []string {
	return splitList(d.Actors)
}

func splitList(s string) []string {
	if s == "" || s == NotAvailable {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SearchQuery parameterizes a search by term.
type SearchQuery struct {
	Term string
	// Type restricts results to "movie", "series" or "episode". Empty means any.
	Type string
	// Page is 1-based; zero leaves paging to the upstream default.
	Page int
}

// NotAvailable is the placeholder the catalog uses for missing values.
const NotAvailable = "N/A"

// TypeMovie restricts a search to movies.
const TypeMovie = "movie"

type searchEnvelope struct {
	Response     string         `json:"Response"`
	Error        string         `json:"Error"`
	TotalResults string         `json:"totalResults"`
	Search       []MovieSummary `json:"Search"`
}

type detailEnvelope struct {
	MovieDetail
	Response string `json:"Response"`
	Error    string `json:"Error"`
}
