// Package storage holds the decorators shared by every content index and
// history store backend.
package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/selection"
)

// Ensure decorators implement the selection collaborators
var (
	_ selection.ContentIndex = (*ResilientContentIndex)(nil)
	_ selection.HistoryStore = (*ResilientHistoryStore)(nil)
)

// ResilienceConfig configures retry, circuit breaking and concurrency limits
// around store calls
type ResilienceConfig struct {
	// MaxAttempts per call, including the first (default: 3)
	MaxAttempts int

	// InitialDelay before the first retry (default: 50ms)
	InitialDelay time.Duration

	// MaxConcurrent store calls per decorator (default: 16)
	MaxConcurrent int

	// Timeout bounds each attempt. Zero disables it.
	Timeout time.Duration

	// Name labels log lines
	Name string
}

// DefaultResilienceConfig returns the defaults used by the daemon
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		MaxAttempts:   3,
		InitialDelay:  50 * time.Millisecond,
		MaxConcurrent: 16,
		Timeout:       2 * time.Second,
	}
}

// guard runs store calls through bulkhead, retry and circuit breaker
type guard struct {
	circuitBreaker circuitbreaker.CircuitBreaker[any]
	retrier        retry.Retry[any]
	bulkhead       bulkhead.Bulkhead[any]
	timeout        time.Duration
}

func newGuard(cfg ResilienceConfig) *guard {
	def := DefaultResilienceConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}

	return &guard{
		circuitBreaker: circuitbreaker.New[any](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				slog.Warn("store circuit breaker state change",
					"store", cfg.Name,
					"from", from.String(),
					"to", to.String())
			},
		}),
		retrier: retry.New[any](retry.Config{
			MaxAttempts:   cfg.MaxAttempts,
			InitialDelay:  cfg.InitialDelay,
			MaxDelay:      time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isRetryable,
		}),
		bulkhead: bulkhead.New[any](bulkhead.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueue:      cfg.MaxConcurrent * 4,
			QueueTimeout:  5 * time.Second,
		}),
		timeout: cfg.Timeout,
	}
}

// isRetryable rejects outcomes that a retry cannot change
func isRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

func execute[T any](ctx context.Context, g *guard, fn func(context.Context) (T, error)) (T, error) {
	attempt := func(ctx context.Context) (any, error) {
		return g.bulkhead.Execute(ctx, func(ctx context.Context) (any, error) {
			if g.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, g.timeout)
				defer cancel()
			}
			v, err := fn(ctx)
			if errors.Is(err, domain.ErrNotFound) {
				// a lookup miss is an answer, not a store failure
				return outcome{err: err}, nil
			}
			return v, err
		})
	}

	var zero T
	v, err := g.circuitBreaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return g.retrier.Do(ctx, attempt)
	})
	if err != nil {
		return zero, err
	}
	if o, ok := v.(outcome); ok {
		return zero, o.err
	}
	out, _ := v.(T)
	return out, nil
}

// outcome carries a domain error through the breaker without counting it as
// a failure
type outcome struct {
	err error
}

// ResilientContentIndex wraps a ContentIndex with retry and circuit breaking
type ResilientContentIndex struct {
	inner selection.ContentIndex
	guard *guard
}

// NewResilientContentIndex wraps inner
func NewResilientContentIndex(inner selection.ContentIndex, cfg ResilienceConfig) *ResilientContentIndex {
	if cfg.Name == "" {
		cfg.Name = "content"
	}
	return &ResilientContentIndex{inner: inner, guard: newGuard(cfg)}
}

func (r *ResilientContentIndex) ResolveTopicScope(ctx context.Context, topic int, positionType string) ([]domain.ScopeGroup, error) {
	return execute(ctx, r.guard, func(ctx context.Context) ([]domain.ScopeGroup, error) {
		return r.inner.ResolveTopicScope(ctx, topic, positionType)
	})
}

func (r *ResilientContentIndex) ResolveSectionScope(ctx context.Context, law, section string) (domain.ArticleRange, error) {
	return execute(ctx, r.guard, func(ctx context.Context) (domain.ArticleRange, error) {
		return r.inner.ResolveSectionScope(ctx, law, section)
	})
}

func (r *ResilientContentIndex) ListArticles(ctx context.Context, law string) ([]domain.Article, error) {
	return execute(ctx, r.guard, func(ctx context.Context) ([]domain.Article, error) {
		return r.inner.ListArticles(ctx, law)
	})
}

func (r *ResilientContentIndex) QueryQuestions(ctx context.Context, scopes []domain.ArticleScope, filter domain.QuestionFilter) ([]domain.Question, error) {
	return execute(ctx, r.guard, func(ctx context.Context) ([]domain.Question, error) {
		return r.inner.QueryQuestions(ctx, scopes, filter)
	})
}

func (r *ResilientContentIndex) EssentialArticleIDs(ctx context.Context, law string) ([]string, error) {
	return execute(ctx, r.guard, func(ctx context.Context) ([]string, error) {
		return r.inner.EssentialArticleIDs(ctx, law)
	})
}

// ResilientHistoryStore wraps a HistoryStore with retry and circuit breaking
type ResilientHistoryStore struct {
	inner selection.HistoryStore
	guard *guard
}

// NewResilientHistoryStore wraps inner
func NewResilientHistoryStore(inner selection.HistoryStore, cfg ResilienceConfig) *ResilientHistoryStore {
	if cfg.Name == "" {
		cfg.Name = "history"
	}
	return &ResilientHistoryStore{inner: inner, guard: newGuard(cfg)}
}

func (r *ResilientHistoryStore) GetAttempts(ctx context.Context, userID string, questionIDs []string) ([]domain.AttemptRecord, error) {
	return execute(ctx, r.guard, func(ctx context.Context) ([]domain.AttemptRecord, error) {
		return r.inner.GetAttempts(ctx, userID, questionIDs)
	})
}
