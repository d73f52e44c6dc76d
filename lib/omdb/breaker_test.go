package omdb

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

type stubCatalog struct {
	calls atomic.Int32
	err   error
}

func (s *stubCatalog) SearchByTerm(ctx context.Context, q SearchQuery) ([]MovieSummary, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return []MovieSummary{{IMDbID: "tt0000001", Title: q.Term}}, nil
}

func (s *stubCatalog) LookupByID(ctx context.Context, id string) (*MovieDetail, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &MovieDetail{IMDbID: id}, nil
}

func (s *stubCatalog) LookupByTitle(ctx context.Context, title string) (*MovieDetail, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &MovieDetail{IMDbID: "tt0000002", Title: title}, nil
}

func testSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:  3,
		FailureRatio: 0.5,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MaxRequests:  1,
	}
}

func TestBreaker_PassesThrough(t *testing.T) {
	stub := &stubCatalog{}
	b := NewBreaker("test-pass", stub, testSettings(), testLogger())

	res, err := b.SearchByTerm(context.Background(), SearchQuery{Term: "Alien"})
	if err != nil || len(res) != 1 || res[0].Title != "Alien" {
		t.Fatalf("SearchByTerm() = %v, %v", res, err)
	}
	d, err := b.LookupByID(context.Background(), "tt0078748")
	if err != nil || d.IMDbID != "tt0078748" {
		t.Fatalf("LookupByID() = %v, %v", d, err)
	}
	d, err = b.LookupByTitle(context.Background(), "Alien")
	if err != nil || d.Title != "Alien" {
		t.Fatalf("LookupByTitle() = %v, %v", d, err)
	}
	if b.State() != "closed" {
		t.Errorf("State() = %q, want closed", b.State())
	}
}

func TestBreaker_OpensOnUpstreamErrors(t *testing.T) {
	stub := &stubCatalog{err: fmt.Errorf("%w: boom", ErrUpstream)}
	b := NewBreaker("test-open", stub, testSettings(), testLogger())

	for i := 0; i < 3; i++ {
		if _, err := b.LookupByID(context.Background(), "tt0000001"); !errors.Is(err, ErrUpstream) {
			t.Fatalf("call %d error = %v, want ErrUpstream", i, err)
		}
	}
	if b.State() != "open" {
		t.Fatalf("State() = %q, want open", b.State())
	}

	_, err := b.SearchByTerm(context.Background(), SearchQuery{Term: "x"})
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("open breaker error = %v, want ErrUpstream", err)
	}
	if got := stub.calls.Load(); got != 3 {
		t.Errorf("upstream calls = %d, want 3 (open breaker must short-circuit)", got)
	}
}

func TestBreaker_NotFoundKeepsClosed(t *testing.T) {
	stub := &stubCatalog{err: fmt.Errorf("%w: Movie not found!", ErrNotFound)}
	b := NewBreaker("test-notfound", stub, testSettings(), testLogger())

	for i := 0; i < 10; i++ {
		if _, err := b.LookupByTitle(context.Background(), "Nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("call %d error = %v, want ErrNotFound", i, err)
		}
	}
	if b.State() != "closed" {
		t.Errorf("State() = %q, want closed", b.State())
	}
}
