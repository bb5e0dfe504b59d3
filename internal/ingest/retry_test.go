package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"eventpipeline/pkg/models"
)

var eventCols = []string{
	"id", "event_type", "user_id", "data", "source", "event_timestamp", "processed",
	"topic", "partition", "kafka_offset", "retry_count", "last_error", "created_at",
}

func retryableRow(rows *sqlmock.Rows, id string, eventType models.EventType, userID string, data string, ts time.Time, retryCount int) *sqlmock.Rows {
	return rows.AddRow(id, string(eventType), userID, []byte(data), "kafka", ts, false,
		"user-events", 2, 10, retryCount, "previous failure", ts)
}

func TestRetrySelectsBelowCeilingOldestFirst(t *testing.T) {
	p, mock := newPipeline(t)
	c := NewCoordinator(p)

	t1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	rows := sqlmock.NewRows(eventCols)
	retryableRow(rows, "evt-1", models.EventUserCreated, "user-1",
		`{"email":"a@x.com","name":"A"}`, t1, 1)
	retryableRow(rows, "evt-2", models.EventUserCreated, "user-2",
		`{"email":"b@x.com","name":"B"}`, t2, 2)

	// The ceiling is part of the selection, not a post-filter.
	mock.ExpectQuery(`WHERE processed = FALSE AND retry_count < \$1`).
		WithArgs(RetryCeiling, 2).
		WillReturnRows(rows)

	// evt-1 (older) first.
	mock.ExpectExec(`UPDATE events SET retry_count = retry_count \+ 1, last_error = NULL`).
		WithArgs("evt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO users").
		WithArgs("user-1", "a@x.com", "A", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE events SET processed = TRUE").
		WithArgs("evt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(`UPDATE events SET retry_count = retry_count \+ 1, last_error = NULL`).
		WithArgs("evt-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO users").
		WithArgs("user-2", "b@x.com", "B", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE events SET processed = TRUE").
		WithArgs("evt-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := c.Retry(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryDefaultsAndClampsBatchSize(t *testing.T) {
	p, mock := newPipeline(t)
	c := NewCoordinator(p)

	mock.ExpectQuery(`WHERE processed = FALSE AND retry_count < \$1`).
		WithArgs(RetryCeiling, DefaultRetryBatch).
		WillReturnRows(sqlmock.NewRows(eventCols))
	mock.ExpectQuery(`WHERE processed = FALSE AND retry_count < \$1`).
		WithArgs(RetryCeiling, MaxRetryBatch).
		WillReturnRows(sqlmock.NewRows(eventCols))

	n, err := c.Retry(context.Background(), 0)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = c.Retry(context.Background(), 500)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryOneFailureDoesNotAbortBatch(t *testing.T) {
	p, mock := newPipeline(t)
	c := NewCoordinator(p)

	t1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(eventCols)
	retryableRow(rows, "evt-1", models.EventUserCreated, "user-1",
		`{"email":"a@x.com","name":"A"}`, t1, 1)
	retryableRow(rows, "evt-2", models.EventUserCreated, "user-2",
		`{"email":"b@x.com","name":"B"}`, t1.Add(time.Minute), 1)

	mock.ExpectQuery(`WHERE processed = FALSE AND retry_count < \$1`).
		WithArgs(RetryCeiling, 10).
		WillReturnRows(rows)

	// evt-1: side effect fails again; its error is recorded without a
	// second count bump.
	mock.ExpectExec(`UPDATE events SET retry_count = retry_count \+ 1, last_error = NULL`).
		WithArgs("evt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO users").
		WillReturnError(errors.New("still unavailable"))
	mock.ExpectExec(`UPDATE events SET last_error = \$1 WHERE id = \$2`).
		WithArgs(sqlmock.AnyArg(), "evt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// evt-2: succeeds.
	mock.ExpectExec(`UPDATE events SET retry_count = retry_count \+ 1, last_error = NULL`).
		WithArgs("evt-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE events SET processed = TRUE").
		WithArgs("evt-2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := c.Retry(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryQuarantinedEventReplaysAsNoop(t *testing.T) {
	p, mock := newPipeline(t)
	c := NewCoordinator(p)

	rows := sqlmock.NewRows(eventCols)
	retryableRow(rows, "evt-err", models.EventSystemError, "",
		`{"raw_body":"{not json"}`, time.Now(), 1)

	mock.ExpectQuery(`WHERE processed = FALSE AND retry_count < \$1`).
		WithArgs(RetryCeiling, 10).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE events SET retry_count = retry_count \+ 1, last_error = NULL`).
		WithArgs("evt-err").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE events SET processed = TRUE").
		WithArgs("evt-err").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := c.Retry(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
