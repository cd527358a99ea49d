package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "embed"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"go.uber.org/fx"

	"github.com/ambientdata/horaria/internal/app"
	"github.com/ambientdata/horaria/internal/config"
	"github.com/ambientdata/horaria/internal/migration"
	"github.com/ambientdata/horaria/internal/pipeline"
	"github.com/ambientdata/horaria/internal/scheduler"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

// embeddedConfig embeds the application's YAML configuration. Environment
// variables override it at startup.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

const usage = `usage: horaria <command> [flags]

commands:
  run       execute one incremental pipeline run
  backfill  reprocess an explicit hour range
  missing   report hours not yet covered by the watermark
  reset     delete the watermark, forcing full reprocessing
  serve     run on a schedule with a /metrics listener
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var entry fx.Option
	switch os.Args[1] {
	case "run":
		entry = runCommand(os.Args[2:])
	case "backfill":
		entry = backfillCommand(os.Args[2:])
	case "missing":
		entry = missingCommand()
	case "reset":
		entry = resetCommand()
	case "serve":
		entry = serveCommand()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	application := app.New(config.EmbeddedConfig(embeddedConfig), entry)
	application.Run()
	if err := application.Err(); err != nil {
		logger.Fatalf("horaria failed: %v", err)
	}
}

// oneShot runs fn once the app has started, then shuts the app down with an
// exit code reflecting the outcome. Migrations run first so a fresh state
// database works out of the box.
func oneShot(fn func(ctx context.Context, orch *pipeline.Orchestrator) error) fx.Option {
	return fx.Invoke(func(lc fx.Lifecycle, sd fx.Shutdowner, mig *migration.Migrator, orch *pipeline.Orchestrator) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					ctx := context.Background()
					err := mig.Up(ctx)
					if err == nil {
						err = fn(ctx, orch)
					}
					code := 0
					if err != nil {
						logger.Errorf("%v", err)
						code = 1
					}
					_ = sd.Shutdown(fx.ExitCode(code))
				}()
				return nil
			},
		})
	})
}

func splitSources(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func runCommand(args []string) fx.Option {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	sources := fs.String("sources", "", "comma-separated source subset (default: all)")
	fs.Parse(args)

	return oneShot(func(ctx context.Context, orch *pipeline.Orchestrator) error {
		report, err := orch.Run(ctx, splitSources(*sources))
		if err != nil {
			return err
		}
		printRunReport(report)
		return nil
	})
}

func backfillCommand(args []string) fx.Option {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	start := fs.String("start", "", "range start, RFC 3339 (inclusive)")
	end := fs.String("end", "", "range end, RFC 3339 (exclusive)")
	sources := fs.String("sources", "", "comma-separated source subset (default: all)")
	advance := fs.Bool("advance-watermark", false, "advance the watermark to the last covered hour")
	fs.Parse(args)

	startT, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		logger.Fatalf("invalid --start: %v", err)
	}
	endT, err := time.Parse(time.RFC3339, *end)
	if err != nil {
		logger.Fatalf("invalid --end: %v", err)
	}

	return oneShot(func(ctx context.Context, orch *pipeline.Orchestrator) error {
		report, err := orch.Backfill(ctx, pipeline.BackfillRequest{
			Start:            startT,
			End:              endT,
			Sources:          splitSources(*sources),
			AdvanceWatermark: *advance,
		})
		if err != nil {
			return err
		}
		printBackfillReport(report)
		return nil
	})
}

func missingCommand() fx.Option {
	return oneShot(func(ctx context.Context, orch *pipeline.Orchestrator) error {
		hours, err := orch.MissingHours(ctx)
		if err != nil {
			return err
		}
		if len(hours) == 0 {
			fmt.Println("no missing hours")
			return nil
		}
		for _, h := range hours {
			fmt.Println(h.Format(time.RFC3339))
		}
		return nil
	})
}

func resetCommand() fx.Option {
	return oneShot(func(ctx context.Context, orch *pipeline.Orchestrator) error {
		return orch.Reset(ctx)
	})
}

// serveCommand keeps the app alive: the scheduler starts on app start and
// stops on shutdown signal.
func serveCommand() fx.Option {
	return fx.Invoke(func(lc fx.Lifecycle, mig *migration.Migrator, sched *scheduler.Scheduler) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := mig.Up(ctx); err != nil {
					return err
				}
				return sched.Start()
			},
			OnStop: func(ctx context.Context) error {
				return sched.Stop(ctx)
			},
		})
	})
}

func printRunReport(report *pipeline.RunReport) {
	fmt.Printf("run %s: %s\n", report.RunID, report.Status)
	for _, s := range report.Sources {
		fmt.Printf("  %-8s fetched=%d aggregated=%d\n", s.Source, s.FetchedRows, s.AggregateRows)
	}
	fmt.Printf("  output rows: %d\n", report.OutputRows)
	for _, o := range report.Outcomes {
		status := "ok"
		if o.Err != nil {
			status = o.Err.Error()
		}
		fmt.Printf("  export %-10s rows=%d %s\n", o.Destination, o.Rows, status)
	}
	if report.AdvancedTo != nil {
		fmt.Printf("  watermark: %s\n", report.AdvancedTo.Format(time.RFC3339))
	}
}

func printBackfillReport(report *pipeline.BackfillReport) {
	fmt.Printf("backfill %s: %d hour(s) covered, %d skipped, %d rows\n",
		report.RunID, len(report.CoveredHours), len(report.SkippedHours), report.OutputRows)
	for _, h := range report.SkippedHours {
		fmt.Printf("  skipped %s (no data)\n", h.Format(time.RFC3339))
	}
	for _, o := range report.Outcomes {
		status := "ok"
		if o.Err != nil {
			status = o.Err.Error()
		}
		fmt.Printf("  export %-10s rows=%d %s\n", o.Destination, o.Rows, status)
	}
	if report.AdvancedTo != nil {
		fmt.Printf("  watermark: %s\n", report.AdvancedTo.Format(time.RFC3339))
	}
}
