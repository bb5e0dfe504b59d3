package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"eventpipeline/pkg/models"
)

func newEventStore(t *testing.T) (*EventStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewEventStore(db), mock
}

func TestInsertKafkaEventWritesProvenance(t *testing.T) {
	s, mock := newEventStore(t)

	mock.ExpectExec("INSERT INTO events").
		WithArgs("evt-1", "user.created", "user-1", []byte(`{"email":"a@x.com"}`), "kafka",
			sqlmock.AnyArg(), false, "user-events", 3, 99, 0, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := &models.Event{
		ID:        "evt-1",
		Type:      models.EventUserCreated,
		UserID:    "user-1",
		Data:      map[string]any{"email": "a@x.com"},
		Source:    models.SourceKafka,
		Timestamp: time.Now(),
		Provenance: &models.Provenance{
			Topic:     "user-events",
			Partition: 3,
			Offset:    99,
		},
	}

	if err := s.Insert(context.Background(), e); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestInsertAPIEventHasNoProvenance(t *testing.T) {
	s, mock := newEventStore(t)

	mock.ExpectExec("INSERT INTO events").
		WithArgs("evt-2", "purchase.created", nil, sqlmock.AnyArg(), "api",
			sqlmock.AnyArg(), true, nil, nil, nil, 0, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := &models.Event{
		ID:        "evt-2",
		Type:      models.EventPurchaseCreated,
		Data:      map[string]any{"item": "book"},
		Source:    models.SourceAPI,
		Timestamp: time.Now(),
		Processed: true,
	}

	if err := s.Insert(context.Background(), e); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestFindByIDNotFound(t *testing.T) {
	s, mock := newEventStore(t)

	mock.ExpectQuery("SELECT (.+) FROM events WHERE id =").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	e, err := s.FindByID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if e != nil {
		t.Fatalf("expected nil event, got %+v", e)
	}
}

func TestFindByIDAssemblesProvenance(t *testing.T) {
	s, mock := newEventStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "event_type", "user_id", "data", "source", "event_timestamp", "processed",
		"topic", "partition", "kafka_offset", "retry_count", "last_error", "created_at",
	}).AddRow("evt-1", "user.created", "user-1", []byte(`{"email":"a@x.com"}`), "kafka", now, false,
		"user-events", 3, 99, 2, "boom", now)

	mock.ExpectQuery("SELECT (.+) FROM events WHERE id =").
		WithArgs("evt-1").
		WillReturnRows(rows)

	e, err := s.FindByID(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if e.Provenance == nil {
		t.Fatal("expected provenance for kafka event")
	}
	if e.Provenance.Topic != "user-events" || e.Provenance.Partition != 3 || e.Provenance.Offset != 99 {
		t.Errorf("unexpected provenance: %+v", e.Provenance)
	}
	if e.Provenance.RetryCount != 2 || e.Provenance.LastError != "boom" {
		t.Errorf("unexpected retry bookkeeping: %+v", e.Provenance)
	}
	if e.Data["email"] != "a@x.com" {
		t.Errorf("unexpected data: %v", e.Data)
	}
}

func TestUpdateByIDRejectsImmutableFields(t *testing.T) {
	s, _ := newEventStore(t)

	_, err := s.UpdateByID(context.Background(), "evt-1", map[string]any{"event_type": "custom"})
	if err == nil {
		t.Fatal("expected error for immutable field")
	}
}

func TestUpdateByIDMissingEventReturnsNil(t *testing.T) {
	s, mock := newEventStore(t)

	mock.ExpectExec(`UPDATE events SET processed = \$1 WHERE id = \$2`).
		WithArgs(true, "nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	e, err := s.UpdateByID(context.Background(), "nope", map[string]any{"processed": true})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if e != nil {
		t.Fatalf("expected nil event, got %+v", e)
	}
}

func TestBuildWhere(t *testing.T) {
	yes := true
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		filter   Filter
		clause   string
		argCount int
	}{
		{"empty", Filter{}, "", 0},
		{"type only", Filter{Type: models.EventUserCreated}, " WHERE event_type = $1", 1},
		{
			"all fields",
			Filter{
				Type:      models.EventUserCreated,
				Source:    models.SourceKafka,
				Processed: &yes,
				UserID:    "user-1",
				From:      &from,
				To:        &from,
			},
			" WHERE event_type = $1 AND source = $2 AND processed = $3 AND user_id = $4 AND event_timestamp >= $5 AND event_timestamp <= $6",
			6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args := buildWhere(tt.filter)
			if clause != tt.clause {
				t.Errorf("clause: expected %q, got %q", tt.clause, clause)
			}
			if len(args) != tt.argCount {
				t.Errorf("args: expected %d, got %d", tt.argCount, len(args))
			}
		})
	}
}

func TestFindAppliesPagination(t *testing.T) {
	s, mock := newEventStore(t)

	no := false
	mock.ExpectQuery(`ORDER BY event_timestamp DESC LIMIT \$2 OFFSET \$3`).
		WithArgs(false, 20, 40).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_type", "user_id", "data", "source", "event_timestamp", "processed",
			"topic", "partition", "kafka_offset", "retry_count", "last_error", "created_at",
		}))

	_, err := s.Find(context.Background(), Filter{Processed: &no}, ListOptions{Limit: 20, Skip: 40})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestCountUsesFilter(t *testing.T) {
	s, mock := newEventStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM events WHERE source = \$1`).
		WithArgs("kafka").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.Count(context.Background(), Filter{Source: models.SourceKafka})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7, got %d", n)
	}
}

func TestGetStats(t *testing.T) {
	s, mock := newEventStore(t)

	mock.ExpectQuery("FROM events").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"total", "processed", "unprocessed", "failed"}).
			AddRow(10, 7, 3, 1))
	mock.ExpectQuery("GROUP BY event_type").
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}).
			AddRow("user.created", 6).AddRow("system.error", 4))
	mock.ExpectQuery("GROUP BY source").
		WillReturnRows(sqlmock.NewRows([]string{"source", "count"}).
			AddRow("kafka", 9).AddRow("api", 1))

	stats, err := s.GetStats(context.Background(), 3)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stats.Total != 10 || stats.Processed != 7 || stats.Unprocessed != 3 || stats.PermanentlyFailed != 1 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	if stats.ByType[models.EventUserCreated] != 6 {
		t.Errorf("unexpected by-type counts: %v", stats.ByType)
	}
	if stats.BySource[models.SourceKafka] != 9 {
		t.Errorf("unexpected by-source counts: %v", stats.BySource)
	}
}
