// Package executor runs generated statements against the database and
// materializes rows into generic records. A statement that fails because
// its schema-qualified table names do not exist is retried once with the
// unqualified rendering before the error is surfaced.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"reconql/internal/logging"
	"reconql/internal/sqlgen"
)

// Querier abstracts the database handle so tests can substitute sqlmock
// and callers can wrap execution with roles or tracing.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// QueryResult is the outcome of executing one statement. Records holds
// one map per row keyed by result-set column name; Duration is wall
// clock across all attempts including a retry.
type QueryResult struct {
	ID          string
	SQL         string
	Records     []map[string]any
	RecordCount int
	Duration    time.Duration
	Confidence  float64
	JoinColumns []string
	Err         error
}

// ExecutionError carries both renderings of a statement that failed on
// the first attempt and again on the fallback.
type ExecutionError struct {
	SQL         string
	FallbackSQL string
	Err         error
}

func (e *ExecutionError) Error() string {
	if e.FallbackSQL != "" {
		return fmt.Sprintf("query failed (retried without schema qualification): %v", e.Err)
	}
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Executor runs statements with an optional per-query timeout.
type Executor struct {
	db      Querier
	timeout time.Duration
	logger  *logging.Logger
}

// NewExecutor creates an Executor. A zero timeout disables the
// per-query deadline.
func NewExecutor(db Querier, timeout time.Duration, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Executor{db: db, timeout: timeout, logger: logger}
}

// Execute runs the statement and collects every row. When the first
// attempt fails with a missing-table error and the statement carries a
// fallback rendering, the fallback is tried once; on success the result
// reports the SQL that actually ran. A result is always returned; Err is
// set instead of returning an error so batch callers keep per-query
// outcomes positional.
func (e *Executor) Execute(ctx context.Context, stmt sqlgen.Statement) *QueryResult {
	res := &QueryResult{
		ID:          uuid.NewString(),
		SQL:         stmt.SQL,
		JoinColumns: stmt.JoinColumns,
	}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	qlog := e.logger.WithQueryID(res.ID)
	records, err := e.attempt(ctx, stmt.SQL, "FIRST", qlog)
	if err != nil && stmt.FallbackSQL != "" && isMissingTable(err) {
		firstErr := err
		qlog.Warn("table not found, retrying without schema qualification", "error", firstErr)
		var retryErr error
		records, retryErr = e.attempt(ctx, stmt.FallbackSQL, "RETRY", qlog)
		if retryErr == nil {
			res.SQL = stmt.FallbackSQL
			err = nil
		} else {
			// The first attempt's error is the one that names the
			// statement the caller asked for; the retry outcome is
			// logged, not surfaced.
			qlog.Warn("retry without schema qualification failed", "error", retryErr)
			res.Err = &ExecutionError{SQL: stmt.SQL, FallbackSQL: stmt.FallbackSQL, Err: firstErr}
			return res
		}
	}
	if err != nil {
		res.Err = &ExecutionError{SQL: stmt.SQL, Err: err}
		return res
	}

	res.Records = records
	res.RecordCount = len(records)
	return res
}

func (e *Executor) attempt(ctx context.Context, query, tag string, qlog *logging.Logger) ([]map[string]any, error) {
	qlog.Debug("executing query", "attempt", tag, "sql", query)
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []map[string]any
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		record := make(map[string]any, len(cols))
		for i, col := range cols {
			record[col] = normalize(values[i])
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// normalize converts driver byte slices into strings so records are
// JSON-friendly and safe to retain past the scan loop.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// isMissingTable reports whether err is a table-not-found error from the
// MySQL or Postgres driver, or matches the textual forms other engines
// produce.
func isMissingTable(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1146
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"doesn't exist",
		"does not exist",
		"unknown table",
		"no such table",
		"invalid object name",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
