package omdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/icco/cinerec/lib/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Catalog is the set of catalog operations the rest of the service uses.
type Catalog interface {
	SearchByTerm(ctx context.Context, q SearchQuery) ([]MovieSummary, error)
	LookupByID(ctx context.Context, id string) (*MovieDetail, error)
	LookupByTitle(ctx context.Context, title string) (*MovieDetail, error)
}

// BreakerSettings tunes when the breaker opens and how long it stays open.
type BreakerSettings struct {
	// MinRequests is the number of requests in an interval before the
	// failure ratio is considered.
	MinRequests uint32
	// FailureRatio opens the breaker once reached.
	FailureRatio float64
	// Interval resets the counts while closed.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32
}

// DefaultBreakerSettings opens after 60% failures across at least 10 requests.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:  10,
		FailureRatio: 0.6,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MaxRequests:  3,
	}
}

// Breaker wraps a Catalog with a circuit breaker. Not-found answers are
// healthy responses and never count toward opening it.
type Breaker struct {
	next   Catalog
	cb     *gobreaker.CircuitBreaker[any]
	name   string
	logger *slog.Logger
}

// NewBreaker wraps next with a circuit breaker named name.
func NewBreaker(name string, next Catalog, s BreakerSettings, logger *slog.Logger) *Breaker {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	b := &Breaker{next: next, name: name, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return b
}

// State returns the breaker state as "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) SearchByTerm(ctx context.Context, q SearchQuery) ([]MovieSummary, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.SearchByTerm(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return res.([]MovieSummary), nil
}

func (b *Breaker) LookupByID(ctx context.Context, id string) (*MovieDetail, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.LookupByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return res.(*MovieDetail), nil
}

func (b *Breaker) LookupByTitle(ctx context.Context, title string) (*MovieDetail, error) {
	res, err := b.execute(func() (any, error) {
		return b.next.LookupByTitle(ctx, title)
	})
	if err != nil {
		return nil, err
	}
	return res.(*MovieDetail), nil
}

func (b *Breaker) execute(fn func() (any, error)) (any, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %v", ErrUpstream, b.name, err)
	}
	return res, err
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
