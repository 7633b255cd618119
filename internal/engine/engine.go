// Package engine orchestrates the full reconciliation pipeline: parse a
// definition, resolve tables and columns, find join paths, generate SQL,
// and execute it. Batch mode fans definitions out over a bounded worker
// pool while keeping results in input order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"reconql/internal/catalog"
	"reconql/internal/columns"
	"reconql/internal/executor"
	"reconql/internal/intent"
	"reconql/internal/joinpath"
	"reconql/internal/knowledge"
	"reconql/internal/observability"
	"reconql/internal/resolve"
	"reconql/internal/sqlgen"
)

// Outcome is the result of running one definition. Exactly one of Result
// being populated or Err being set holds for execution failures;
// resolution failures surface in Err before any SQL is generated.
type Outcome struct {
	Definition string
	Intent     *intent.Intent
	Result     *executor.QueryResult
	Err        error
}

// Failed reports whether the definition produced no usable result.
func (o *Outcome) Failed() bool {
	return o.Err != nil || (o.Result != nil && o.Result.Err != nil)
}

// Stats summarizes a batch run.
type Stats struct {
	Total         int
	Succeeded     int
	Failed        int
	TotalRecords  int
	AvgConfidence float64
	Elapsed       time.Duration
}

// Engine wires the pipeline components over one immutable schema snapshot.
type Engine struct {
	catalog  *catalog.Catalog
	resolver *resolve.TableResolver
	graph    *knowledge.Graph
	finder   *joinpath.Finder
	parser   *intent.Parser
	colres   *columns.Resolver
	gen      *sqlgen.Generator
	exec     *executor.Executor
	metrics  *observability.QueryMetrics
	workers  int
	defLimit int
	logger   *slog.Logger
}

// Options configures engine construction beyond the schema snapshot.
type Options struct {
	Assist  intent.Strategy
	Metrics *observability.QueryMetrics
	Workers int
	// DefaultLimit caps LIST results when the definition names no limit.
	DefaultLimit int
	Logger       *slog.Logger
}

// New creates an Engine. The catalog and graph are treated as immutable;
// rebuilding them requires a new Engine.
func New(cat *catalog.Catalog, graph *knowledge.Graph, gen *sqlgen.Generator, exec *executor.Executor, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	resolver := resolve.NewTableResolver(cat.TableNames(), logger)
	finder := joinpath.NewFinder(graph, cat, logger)
	return &Engine{
		catalog:  cat,
		resolver: resolver,
		graph:    graph,
		finder:   finder,
		parser:   intent.NewParser(opts.Assist, logger),
		colres:   columns.NewResolver(cat, resolver, finder, logger),
		gen:      gen,
		exec:     exec,
		metrics:  opts.Metrics,
		workers:  workers,
		defLimit: opts.DefaultLimit,
		logger:   logger,
	}
}

// Run executes one definition through the full pipeline. Resolution
// failures are returned before any SQL is generated or executed.
func (e *Engine) Run(ctx context.Context, definition string) *Outcome {
	out := &Outcome{Definition: definition}
	start := time.Now()

	if e.metrics != nil {
		e.metrics.IncrementActiveQueries()
		defer e.metrics.DecrementActiveQueries()
	}

	sc := &intent.SchemaContext{Catalog: e.catalog, Resolver: e.resolver, Graph: e.graph}
	it := e.parser.Parse(ctx, definition, sc)
	out.Intent = it
	if e.metrics != nil {
		e.metrics.RecordConfidence(it.Confidence)
	}

	if it.SourceTable == "" {
		out.Err = fmt.Errorf("no source table recognized in definition %q", definition)
		e.finish(out, start)
		return out
	}

	if it.Operation == intent.OpList && it.Limit == 0 && e.defLimit > 0 {
		it.Limit = e.defLimit
	}

	var primary *joinpath.JoinPath
	if it.Operation == intent.OpIn || it.Operation == intent.OpNotIn {
		primary = e.finder.FindPath(it.SourceTable, it.TargetTable)
		if primary == nil {
			out.Err = &joinpath.NotFoundError{Source: it.SourceTable, Target: it.TargetTable}
			e.finish(out, start)
			return out
		}
	}

	resolved, colErrs := e.colres.Validate(it.AdditionalColumns, it.SourceTable)
	if len(colErrs) > 0 {
		// A failed inclusion invalidates the definition rather than
		// silently dropping the requested column. All failures are
		// reported at once.
		out.Err = errors.Join(colErrs...)
		e.finish(out, start)
		return out
	}

	stmt, err := e.gen.Generate(it, primary, resolved)
	if err != nil {
		out.Err = err
		e.finish(out, start)
		return out
	}

	res := e.exec.Execute(ctx, stmt)
	res.Confidence = it.Confidence
	out.Result = res
	if e.metrics != nil {
		if retried(stmt, res) {
			e.metrics.RecordRetry()
		}
		if res.Err == nil {
			e.metrics.RecordResultSize(res.RecordCount)
		}
	}
	e.finish(out, start)
	return out
}

// retried reports whether execution fell back to the unqualified SQL:
// either the result carries the fallback rendering, or the failure
// records both attempts.
func retried(stmt sqlgen.Statement, res *executor.QueryResult) bool {
	if stmt.FallbackSQL == "" {
		return false
	}
	if res.Err == nil {
		return res.SQL == stmt.FallbackSQL
	}
	var exe *executor.ExecutionError
	return errors.As(res.Err, &exe) && exe.FallbackSQL != ""
}

func (e *Engine) finish(out *Outcome, start time.Time) {
	elapsed := time.Since(start)
	op := "UNKNOWN"
	if out.Intent != nil {
		op = string(out.Intent.Operation)
	}
	if e.metrics != nil {
		e.metrics.RecordQuery(op, elapsed, out.Failed())
	}
	if out.Failed() {
		err := out.Err
		if err == nil {
			err = out.Result.Err
		}
		e.logger.Warn("definition failed",
			"definition", out.Definition, "operation", op, "error", err)
		return
	}
	e.logger.Info("definition completed",
		"operation", op,
		"records", out.Result.RecordCount,
		"confidence", out.Result.Confidence,
		"duration", elapsed)
}

// RunBatch processes definitions concurrently over a bounded pool. One
// definition's failure never aborts the batch; results come back in input
// order regardless of completion order.
func (e *Engine) RunBatch(ctx context.Context, definitions []string) ([]*Outcome, Stats) {
	start := time.Now()
	outcomes := make([]*Outcome, len(definitions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, def := range definitions {
		i, def := i, def
		g.Go(func() error {
			outcomes[i] = e.Run(gctx, def)
			return nil
		})
	}
	// Workers never return errors; failures live in their outcomes.
	_ = g.Wait()

	stats := Stats{Total: len(definitions), Elapsed: time.Since(start)}
	var confidenceSum float64
	var confidenceCount int
	for _, out := range outcomes {
		if out.Failed() {
			stats.Failed++
		} else {
			stats.Succeeded++
			stats.TotalRecords += out.Result.RecordCount
		}
		if out.Intent != nil {
			confidenceSum += out.Intent.Confidence
			confidenceCount++
		}
	}
	if confidenceCount > 0 {
		stats.AvgConfidence = confidenceSum / float64(confidenceCount)
	}

	e.logger.Info("batch completed",
		"total", stats.Total,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"records", stats.TotalRecords,
		"duration", stats.Elapsed)
	return outcomes, stats
}
