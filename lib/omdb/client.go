// Package omdb is a client for OMDb-compatible movie catalog APIs.
package omdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/icco/cinerec/lib/metrics"
	"github.com/icco/cinerec/lib/validation"
)

var (
	// ErrNotFound is returned when the catalog reports no result for a query.
	ErrNotFound = errors.New("catalog: not found")
	// ErrUpstream is returned on transport failures and malformed responses.
	ErrUpstream = errors.New("catalog: upstream error")
)

// DefaultBaseURL is the public OMDb endpoint.
const DefaultBaseURL = "https://www.omdbapi.com/"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 4 << 20

// Config holds everything the client needs to talk to the catalog.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// SearchByTerm returns the movies matching q.Term.
func (c *Client) SearchByTerm(ctx context.Context, q SearchQuery) ([]MovieSummary, error) {
	params := url.Values{}
	params.Set("s", q.Term)
	if q.Type != "" {
		params.Set("type", q.Type)
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}

	start := time.Now()
	body, err := c.get(ctx, params)
	if err == nil {
		err = validation.ValidateSearchEnvelope(body)
		if err != nil {
			err = fmt.Errorf("%w: malformed search response: %v", ErrUpstream, err)
		}
	}

	var env searchEnvelope
	if err == nil {
		if derr := json.Unmarshal(body, &env); derr != nil {
			err = fmt.Errorf("%w: failed to decode response: %v", ErrUpstream, derr)
		}
	}
	if err == nil {
		switch {
		case env.Response == "False":
			err = fmt.Errorf("%w: %s", ErrNotFound, env.Error)
		case len(env.Search) == 0:
			err = fmt.Errorf("%w: search for %q returned no results", ErrNotFound, q.Term)
		}
	}

	c.record("search", start, err)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Catalog search",
		slog.String("term", q.Term),
		slog.Int("page", q.Page),
		slog.Int("results", len(env.Search)))
	return env.Search, nil
}

// LookupByID returns the full record, including the long plot, for an IMDb id.
func (c *Client) LookupByID(ctx context.Context, id string) (*MovieDetail, error) {
	params := url.Values{}
	params.Set("i", id)
	params.Set("plot", "full")
	return c.lookup(ctx, "lookup_id", params)
}

// LookupByTitle returns the best catalog match for an exact title.
func (c *Client) LookupByTitle(ctx context.Context, title string) (*MovieDetail, error) {
	params := url.Values{}
	params.Set("t", title)
	return c.lookup(ctx, "lookup_title", params)
}

func (c *Client) lookup(ctx context.Context, operation string, params url.Values) (*MovieDetail, error) {
	start := time.Now()
	body, err := c.get(ctx, params)
	if err == nil {
		err = validation.ValidateDetailEnvelope(body)
		if err != nil {
			err = fmt.Errorf("%w: malformed lookup response: %v", ErrUpstream, err)
		}
	}

	var env detailEnvelope
	if err == nil {
		if derr := json.Unmarshal(body, &env); derr != nil {
			err = fmt.Errorf("%w: failed to decode response: %v", ErrUpstream, derr)
		}
	}
	if err == nil && env.Response == "False" {
		err = fmt.Errorf("%w: %s", ErrNotFound, env.Error)
	}

	c.record(operation, start, err)
	if err != nil {
		return nil, err
	}
	return &env.MovieDetail, nil
}

func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	params.Set("apikey", c.apiKey)
	u := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to make request: %v", ErrUpstream, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrUpstream, err)
	}
	return body, nil
}

func (c *Client) record(operation string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "upstream_error"
		c.logger.Warn("Catalog request failed",
			slog.String("operation", operation),
			slog.Any("error", err))
	}
	metrics.RecordCatalogRequest(operation, outcome, time.Since(start))
}
