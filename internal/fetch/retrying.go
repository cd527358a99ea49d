package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ambientdata/horaria/internal/config"
	"github.com/ambientdata/horaria/internal/schema"
	"github.com/ambientdata/horaria/pkg/util/exception"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

// ResilientFetcher wraps a Fetcher with a bounded retry budget and a
// per-source circuit breaker. Only retryable failures consume the budget;
// permanent failures and context cancellation surface immediately.
type ResilientFetcher struct {
	next Fetcher
	cfg  config.FetchConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewResilientFetcher creates a ResilientFetcher around next.
func NewResilientFetcher(next *SQLFetcher, cfg *config.Config) *ResilientFetcher {
	return newResilientFetcher(next, cfg.Horaria.Fetch)
}

func newResilientFetcher(next Fetcher, cfg config.FetchConfig) *ResilientFetcher {
	return &ResilientFetcher{
		next:     next,
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (f *ResilientFetcher) breakerFor(source string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := f.breakers[source]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    fmt.Sprintf("fetch-%s", source),
		Timeout: f.cfg.Breaker.ResetTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= f.cfg.Breaker.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("Circuit breaker %s changed state from %s to %s.", name, from, to)
		},
	})
	f.breakers[source] = cb
	return cb
}

// Fetch runs the wrapped fetch through the source's circuit breaker, retrying
// retryable failures up to the configured attempt budget.
func (f *ResilientFetcher) Fetch(ctx context.Context, source config.Source, start, end *time.Time) ([]schema.Reading, error) {
	cb := f.breakerFor(source.Name)
	maxAttempts := f.cfg.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, exception.New(moduleName, fmt.Sprintf("fetch of %q cancelled", source.Name), err, false)
		}

		result, err := cb.Execute(func() (interface{}, error) {
			return f.next.Fetch(ctx, source, start, end)
		})
		if err == nil {
			return result.([]schema.Reading), nil
		}
		lastErr = err

		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, exception.New(moduleName, fmt.Sprintf("circuit open for source %q", source.Name), err, true)
		}
		if !exception.IsTemporary(err) {
			return nil, err
		}
		if attempt < maxAttempts {
			logger.Warnf("Fetch of %s failed (attempt %d/%d), retrying in %v: %v",
				source.Name, attempt, maxAttempts, f.cfg.Retry.RetryBackoff(), err)
			select {
			case <-time.After(f.cfg.Retry.RetryBackoff()):
			case <-ctx.Done():
				return nil, exception.New(moduleName, fmt.Sprintf("fetch of %q cancelled during backoff", source.Name), ctx.Err(), false)
			}
		}
	}

	return nil, exception.New(moduleName,
		fmt.Sprintf("fetch of %q exhausted %d attempts", source.Name, maxAttempts), lastErr, false)
}

var _ Fetcher = (*ResilientFetcher)(nil)
