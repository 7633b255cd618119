package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconql/internal/sqlgen"
)

func newMock(t *testing.T) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewExecutor(db, 0, nil), mock
}

func TestExecuteCollectsRecords(t *testing.T) {
	e, mock := newMock(t)
	mock.ExpectQuery("SELECT s.* FROM RBP_GPU s").
		WillReturnRows(sqlmock.NewRows([]string{"Material", "Active_Inactive"}).
			AddRow("GPU-100", "Active").
			AddRow("GPU-200", "Inactive"))

	res := e.Execute(context.Background(), sqlgen.Statement{SQL: "SELECT s.* FROM RBP_GPU s"})

	require.NoError(t, res.Err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 2, res.RecordCount)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "GPU-100", res.Records[0]["Material"])
	assert.Equal(t, "Inactive", res.Records[1]["Active_Inactive"])
	assert.Greater(t, res.Duration, time.Duration(0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteRetriesOnMissingTable(t *testing.T) {
	e, mock := newMock(t)
	stmt := sqlgen.Statement{
		SQL:         "SELECT s.* FROM recon.RBP_GPU s",
		FallbackSQL: "SELECT s.* FROM RBP_GPU s",
		JoinColumns: []string{"RBP_GPU.Material = OPS_EXCEL_GPU.PLANNING_SKU"},
	}
	mock.ExpectQuery(stmt.SQL).
		WillReturnError(&mysql.MySQLError{Number: 1146, Message: "Table 'recon.RBP_GPU' doesn't exist"})
	mock.ExpectQuery(stmt.FallbackSQL).
		WillReturnRows(sqlmock.NewRows([]string{"Material"}).AddRow("GPU-100"))

	res := e.Execute(context.Background(), stmt)

	require.NoError(t, res.Err)
	// The result reports the SQL that actually produced rows.
	assert.Equal(t, stmt.FallbackSQL, res.SQL)
	assert.Equal(t, 1, res.RecordCount)
	assert.Equal(t, stmt.JoinColumns, res.JoinColumns)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSurfacesOriginalErrorWhenRetryFails(t *testing.T) {
	e, mock := newMock(t)
	stmt := sqlgen.Statement{
		SQL:         "SELECT s.* FROM recon.RBP_GPU s",
		FallbackSQL: "SELECT s.* FROM RBP_GPU s",
	}
	first := &mysql.MySQLError{Number: 1146, Message: "Table 'recon.RBP_GPU' doesn't exist"}
	second := &mysql.MySQLError{Number: 1146, Message: "Table 'RBP_GPU' doesn't exist"}
	mock.ExpectQuery(stmt.SQL).WillReturnError(first)
	mock.ExpectQuery(stmt.FallbackSQL).WillReturnError(second)

	res := e.Execute(context.Background(), stmt)

	require.Error(t, res.Err)
	var exe *ExecutionError
	require.True(t, errors.As(res.Err, &exe))
	assert.Equal(t, stmt.SQL, exe.SQL)
	assert.Equal(t, stmt.FallbackSQL, exe.FallbackSQL)
	// The FIRST attempt's error is the one surfaced, not the retry's.
	assert.ErrorIs(t, res.Err, first)
	var myErr *mysql.MySQLError
	require.True(t, errors.As(res.Err, &myErr))
	assert.Equal(t, "Table 'recon.RBP_GPU' doesn't exist", myErr.Message)
	assert.Zero(t, res.RecordCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteDoesNotRetryWithoutFallback(t *testing.T) {
	e, mock := newMock(t)
	stmt := sqlgen.Statement{SQL: "SELECT s.* FROM RBP_GPU s"}
	mock.ExpectQuery(stmt.SQL).
		WillReturnError(&mysql.MySQLError{Number: 1146, Message: "Table 'RBP_GPU' doesn't exist"})

	res := e.Execute(context.Background(), stmt)

	require.Error(t, res.Err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteDoesNotRetryNonTableErrors(t *testing.T) {
	e, mock := newMock(t)
	stmt := sqlgen.Statement{
		SQL:         "SELECT bogus FROM recon.RBP_GPU s",
		FallbackSQL: "SELECT bogus FROM RBP_GPU s",
	}
	mock.ExpectQuery(stmt.SQL).
		WillReturnError(&mysql.MySQLError{Number: 1054, Message: "Unknown column 'bogus'"})

	res := e.Execute(context.Background(), stmt)

	require.Error(t, res.Err)
	var exe *ExecutionError
	require.True(t, errors.As(res.Err, &exe))
	assert.Empty(t, exe.FallbackSQL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsMissingTable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"mysql 1146", &mysql.MySQLError{Number: 1146}, true},
		{"mysql other", &mysql.MySQLError{Number: 1054}, false},
		{"postgres undefined table", &pq.Error{Code: "42P01"}, true},
		{"postgres other", &pq.Error{Code: "23505"}, false},
		{"sqlite text", errors.New("no such table: RBP_GPU"), true},
		{"sqlserver text", errors.New("Invalid object name 'RBP_GPU'"), true},
		{"generic text", errors.New("relation \"rbp_gpu\" does not exist"), true},
		{"unrelated", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isMissingTable(tc.err))
		})
	}
}

func TestExecuteTimeout(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	e := NewExecutor(db, 10*time.Millisecond, nil)

	mock.ExpectQuery("SELECT s.* FROM RBP_GPU s").
		WillDelayFor(200 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"Material"}))

	res := e.Execute(context.Background(), sqlgen.Statement{SQL: "SELECT s.* FROM RBP_GPU s"})

	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}
