// Package indexer runs the collector over many translation units in
// parallel. Each unit gets its own front-end and collector; only the path
// resolver is shared.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"macrodex/internal/compdb"
	"macrodex/internal/frontend"
	"macrodex/internal/macros"
	"macrodex/internal/slogutil"
)

// Options configures a Runner.
type Options struct {
	// Workers is the number of concurrent units; 0 means GOMAXPROCS.
	Workers int
	// Flags apply to every unit, before the unit's own flags.
	Flags           compdb.Flags
	MaxIncludeDepth int
	NoBuiltins      bool
	// Resolver is shared by all workers and must be safe for concurrent use.
	Resolver macros.PathResolver
	Namer    macros.StableNamer
	// RecordEvents keeps each unit's event stream in Output.Events.
	RecordEvents bool
	Logger       *slog.Logger
}

// Output is the result of one successful unit.
type Output struct {
	Unit       compdb.Unit
	Result     macros.Result
	Events     *macros.Script
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failure is a unit whose main file could not be processed. Its partial
// results are discarded.
type Failure struct {
	File string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.File, f.Err)
}

// Report holds the outcome of Run. Outputs keep the order of the input units.
type Report struct {
	Outputs []Output
	Failed  []Failure
}

// Runner processes translation units with a pool of workers.
type Runner struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) *Runner {
	return &Runner{opts: opts, logger: slogutil.OrDiscard(opts.Logger)}
}

func (r *Runner) workers(n int) int {
	w := r.opts.Workers
	if w <= 0 {
		w = runtime.GOMAXPROCS(0)
	}
	if w > n {
		w = n
	}
	return w
}

// Run collects every unit. A failed unit does not stop its siblings. When
// ctx is cancelled no further units are started; units already finished are
// reported and ctx.Err() is returned.
func (r *Runner) Run(ctx context.Context, units []compdb.Unit) (*Report, error) {
	type result struct {
		output Output
		err    error
	}
	done := make([]*result, len(units))

	var g errgroup.Group
	g.SetLimit(r.workers(len(units)))
	for i := range units {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			out, err := r.collect(ctx, units[i])
			done[i] = &result{output: out, err: err}
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{}
	for i, res := range done {
		switch {
		case res == nil:
			// never started
		case res.err != nil:
			r.logger.Warn("Unit failed", "file", units[i].File, "error", res.err)
			report.Failed = append(report.Failed, Failure{File: units[i].File, Err: res.err})
		default:
			report.Outputs = append(report.Outputs, res.output)
		}
	}
	r.logger.Info("Collection finished", "units", len(units), "ok", len(report.Outputs), "failed", len(report.Failed))
	return report, ctx.Err()
}

func (r *Runner) collect(ctx context.Context, unit compdb.Unit) (out Output, err error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	defer func() {
		if p := recover(); p != nil {
			out, err = Output{}, fmt.Errorf("preprocessor panic: %v", p)
		}
	}()
	started := time.Now()

	pp := frontend.New(frontend.Options{
		Flags:           r.opts.Flags.Merge(unit.Flags),
		MaxIncludeDepth: r.opts.MaxIncludeDepth,
		NoBuiltins:      r.opts.NoBuiltins,
		Logger:          r.logger,
	})

	var copts []macros.Option
	if r.opts.Namer != nil {
		copts = append(copts, macros.WithStableNamer(r.opts.Namer))
	}
	copts = append(copts, macros.WithLogger(r.logger))
	collector := macros.NewCollector(r.opts.Resolver, pp, copts...)

	var cb macros.Callbacks = collector
	var rec *macros.Recorder
	if r.opts.RecordEvents {
		rec = &macros.Recorder{Next: collector}
		cb = rec
	}

	if err := pp.Run(ctx, unit.File, cb); err != nil {
		return Output{}, err
	}
	res, ok := collector.Result()
	if !ok {
		return Output{}, fmt.Errorf("collector did not reach end of main file")
	}

	out = Output{Unit: unit, Result: res, StartedAt: started, FinishedAt: time.Now()}
	if rec != nil {
		out.Events = &rec.Script
	}
	r.logger.Debug("Collected unit", "file", unit.File,
		"symbols", len(res.Symbols), "files", len(res.Files), "usedDefines", len(res.UsedDefines))
	return out, nil
}
