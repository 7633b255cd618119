// Package columns validates additional-column requests against the schema:
// the business term must resolve to a table, the column must exist on it,
// and a join path from the primary table must be computable. Failures are
// accumulated per request so one bad request never sinks the rest.
package columns

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/agnivade/levenshtein"

	"reconql/internal/catalog"
	"reconql/internal/intent"
	"reconql/internal/joinpath"
	"reconql/internal/resolve"
)

// TableNotFoundError reports a business term that resolved to no table.
type TableNotFoundError struct {
	Term       string
	Suggestion string
}

func (e *TableNotFoundError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("no table matches %q (closest: %s)", e.Term, e.Suggestion)
	}
	return fmt.Sprintf("no table matches %q", e.Term)
}

// ColumnNotFoundError reports a column absent from its resolved table.
type ColumnNotFoundError struct {
	Table      string
	Column     string
	Suggestion string
}

func (e *ColumnNotFoundError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("table %s has no column %q (closest: %s)", e.Table, e.Column, e.Suggestion)
	}
	return fmt.Sprintf("table %s has no column %q", e.Table, e.Column)
}

// InclusionError is the umbrella over every way an additional-column
// request can fail. Callers can match it broadly or unwrap to the
// specific cause.
type InclusionError struct {
	Column string
	Term   string
	Err    error
}

func (e *InclusionError) Error() string {
	return fmt.Sprintf("cannot include column %q from %q: %v", e.Column, e.Term, e.Err)
}

func (e *InclusionError) Unwrap() error { return e.Err }

// ResolvedColumn is a fully validated additional-column request.
type ResolvedColumn struct {
	Request  intent.AdditionalColumn
	Table    string
	Column   string
	Alias    string
	JoinPath *joinpath.JoinPath
}

// Resolver validates additional-column requests.
type Resolver struct {
	catalog *catalog.Catalog
	tables  *resolve.TableResolver
	finder  *joinpath.Finder
	logger  *slog.Logger
}

// NewResolver creates a Resolver over the immutable schema state.
func NewResolver(c *catalog.Catalog, tr *resolve.TableResolver, f *joinpath.Finder, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{catalog: c, tables: tr, finder: f, logger: logger}
}

// Validate resolves each request independently, returning the resolved
// columns and one error per failed request. It never aborts early:
// partial success is the point.
func (r *Resolver) Validate(requests []intent.AdditionalColumn, primaryTable string) ([]ResolvedColumn, []error) {
	var resolved []ResolvedColumn
	var errs []error

	for _, req := range requests {
		rc, err := r.validateOne(req, primaryTable)
		if err != nil {
			r.logger.Debug("additional column rejected",
				"column", req.ColumnName, "term", req.SourceTableTerm, "error", err)
			errs = append(errs, &InclusionError{
				Column: req.ColumnName,
				Term:   req.SourceTableTerm,
				Err:    err,
			})
			continue
		}
		resolved = append(resolved, rc)
	}
	return resolved, errs
}

func (r *Resolver) validateOne(req intent.AdditionalColumn, primaryTable string) (ResolvedColumn, error) {
	table, ok := r.tables.Resolve(req.SourceTableTerm)
	if !ok {
		e := &TableNotFoundError{Term: req.SourceTableTerm}
		if suggestion, found := r.tables.Suggest(req.SourceTableTerm); found {
			e.Suggestion = suggestion
		}
		return ResolvedColumn{}, e
	}

	col, ok := r.catalog.Column(table, req.ColumnName)
	if !ok {
		return ResolvedColumn{}, &ColumnNotFoundError{
			Table:      table,
			Column:     req.ColumnName,
			Suggestion: nearestColumn(req.ColumnName, r.catalog.ColumnNames(table)),
		}
	}

	path := r.finder.FindPath(primaryTable, table)
	if path == nil {
		return ResolvedColumn{}, &joinpath.NotFoundError{Source: primaryTable, Target: table}
	}

	alias := req.Alias
	if alias == "" {
		alias = col.Name
	}
	return ResolvedColumn{
		Request:  req,
		Table:    table,
		Column:   col.Name,
		Alias:    alias,
		JoinPath: path,
	}, nil
}

// nearestColumn returns the closest column name by edit distance, or ""
// when nothing is remotely close.
func nearestColumn(want string, names []string) string {
	lower := strings.ToLower(want)
	best, bestDist := "", -1
	for _, name := range names {
		dist := levenshtein.ComputeDistance(lower, strings.ToLower(name))
		if bestDist < 0 || dist < bestDist {
			best, bestDist = name, dist
		}
	}
	if bestDist < 0 || bestDist > len(want) {
		return ""
	}
	return best
}
