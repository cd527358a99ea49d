// Package fetch supplies the source fetch capability consumed by the
// orchestrator: "give me the raw rows for source S in [start, end)". The SQL
// fetcher binds it to a SQL-speaking time-series store; the retrying fetcher
// wraps any Fetcher with the run's retry budget and a circuit breaker.
package fetch

import (
	"context"
	"time"

	"github.com/ambientdata/horaria/internal/config"
	"github.com/ambientdata/horaria/internal/schema"
)

// Fetcher retrieves raw minute-level readings for one source.
//
// Both bounds are optional; with both omitted the fetch covers the most
// recently completed hour. A zero-row result is valid and must not error.
type Fetcher interface {
	Fetch(ctx context.Context, source config.Source, start, end *time.Time) ([]schema.Reading, error)
}
