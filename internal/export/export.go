// Package export fans hourly output rows out to the configured destinations:
// the warehouse table and timestamped parquet objects.
package export

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/ambientdata/horaria/internal/schema"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

const moduleName = "export"

// Exporter writes a table to one destination. Implementations no-op on empty
// input.
type Exporter interface {
	// Name identifies the destination in reports and logs.
	Name() string
	// Export writes the table. A nil error means the destination accepted
	// every row.
	Export(ctx context.Context, table schema.Table) error
}

// Outcome is the per-destination result of one fan-out.
type Outcome struct {
	Destination string
	Rows        int
	Err         error
}

// FanOut delivers a table to every destination. Export is best effort, not a
// transaction: each destination gets its own attempt and its own outcome, and
// a failure never rolls back a sibling.
type FanOut struct {
	exporters []Exporter
}

// NewFanOut creates a FanOut over the given destinations.
func NewFanOut(exporters []Exporter) *FanOut {
	return &FanOut{exporters: exporters}
}

// Destinations returns the configured destination names.
func (f *FanOut) Destinations() []string {
	names := make([]string, len(f.exporters))
	for i, e := range f.exporters {
		names[i] = e.Name()
	}
	return names
}

// Export delivers the table to all destinations concurrently and collects one
// Outcome per destination. The aggregated error is for reporting only; the
// caller decides whether failures are fatal.
func (f *FanOut) Export(ctx context.Context, table schema.Table) ([]Outcome, error) {
	if table.IsEmpty() {
		logger.Debugf("Fan-out skipped: empty table.")
		return nil, nil
	}

	outcomes := make([]Outcome, len(f.exporters))
	var wg sync.WaitGroup
	for i, e := range f.exporters {
		wg.Add(1)
		go func(i int, e Exporter) {
			defer wg.Done()
			err := e.Export(ctx, table)
			outcomes[i] = Outcome{Destination: e.Name(), Rows: len(table), Err: err}
			if err != nil {
				logger.Errorf("Export to %s failed: %v", e.Name(), err)
			} else {
				logger.Infof("Exported %d rows to %s.", len(table), e.Name())
			}
		}(i, e)
	}
	wg.Wait()

	var multiErr error
	for _, o := range outcomes {
		if o.Err != nil {
			multiErr = multierror.Append(multiErr, o.Err)
		}
	}
	return outcomes, multiErr
}
